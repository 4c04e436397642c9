package testutil

import (
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/opensoc/soc_log_server/internal/model"
)

// TestLogFile 创建测试目标文件
func TestLogFile(t *testing.T, db *gorm.DB, opts ...func(*model.LogFile)) *model.LogFile {
	t.Helper()

	file := &model.LogFile{
		OrganizationID: 1,
		UserID:         1,
		Filename:       fmt.Sprintf("auth_%d.log", time.Now().UnixNano()%100000),
		SourceSystem:   "sshd",
	}

	for _, opt := range opts {
		opt(file)
	}

	if err := db.Create(file).Error; err != nil {
		t.Fatalf("Failed to create test log file: %v", err)
	}

	return file
}

// WithOrganization 设置组织
func WithOrganization(orgID int64) func(*model.LogFile) {
	return func(f *model.LogFile) {
		f.OrganizationID = orgID
	}
}

// WithSourceSystem 设置来源系统
func WithSourceSystem(source string) func(*model.LogFile) {
	return func(f *model.LogFile) {
		f.SourceSystem = source
	}
}

// SeedLogLines 为目标批量写入未分析的日志行
func SeedLogLines(t *testing.T, db *gorm.DB, targetID int64, count int) []*model.LogLine {
	t.Helper()

	lines := make([]*model.LogLine, 0, count)
	for i := 1; i <= count; i++ {
		line := &model.LogLine{
			TargetID:   targetID,
			LineNumber: int64(i),
			Content:    fmt.Sprintf("Jan 10 12:00:%02d host sshd[814]: Accepted password for user from 10.0.0.%d", i%60, i%250+1),
		}
		if err := db.Create(line).Error; err != nil {
			t.Fatalf("Failed to create test log line %d: %v", i, err)
		}
		lines = append(lines, line)
	}

	if err := db.Model(&model.LogFile{}).Where("id = ?", targetID).
		Update("line_count", count).Error; err != nil {
		t.Fatalf("Failed to update line count: %v", err)
	}

	return lines
}

// TestJob 创建测试任务
func TestJob(t *testing.T, db *gorm.DB, targetID int64, status string, opts ...func(*model.AnalysisJob)) *model.AnalysisJob {
	t.Helper()

	job := &model.AnalysisJob{
		TargetID:       targetID,
		OrganizationID: 1,
		UserID:         1,
		Status:         status,
		BatchSize:      25,
	}

	if status != model.JobStatusQueued {
		now := time.Now().Add(-time.Minute)
		job.StartTime = &now
	}

	for _, opt := range opts {
		opt(job)
	}

	if err := db.Create(job).Error; err != nil {
		t.Fatalf("Failed to create test job: %v", err)
	}

	return job
}

// WithBatchSize 设置批大小
func WithBatchSize(size int) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.BatchSize = size
	}
}

// WithMaxBatches 设置批数上限
func WithMaxBatches(max int) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.MaxBatches = &max
	}
}

// WithCheckpoint 设置已有进度（恢复场景）
func WithCheckpoint(currentBatch int, linesProcessed int64) func(*model.AnalysisJob) {
	return func(j *model.AnalysisJob) {
		j.CurrentBatch = currentBatch
		j.LinesProcessed = linesProcessed
	}
}
