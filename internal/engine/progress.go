package engine

import (
	"math"
	"time"
)

// Percent 完成百分比；总行数未知或为 0 时返回 0
func Percent(linesProcessed int64, totalLines *int64) int {
	if totalLines == nil || *totalLines <= 0 {
		return 0
	}
	percent := int(math.Round(float64(linesProcessed) / float64(*totalLines) * 100))
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}

// EstimatedEndTime 按已处理行的平均速度外推完成时间。
// linesProcessed 为 0 或总行数未知时无定义，返回 nil。
func EstimatedEndTime(startTime *time.Time, linesProcessed int64, totalLines *int64, now time.Time) *time.Time {
	if startTime == nil || linesProcessed <= 0 || totalLines == nil || *totalLines <= 0 {
		return nil
	}

	remaining := *totalLines - linesProcessed
	if remaining <= 0 {
		return &now
	}

	elapsed := now.Sub(*startTime)
	perLine := elapsed / time.Duration(linesProcessed)
	eta := now.Add(perLine * time.Duration(remaining))
	return &eta
}
