package model

import (
	"time"
)

// 任务状态常量（终态：cancelled / completed / error）
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusPaused    = "paused"
	JobStatusCancelled = "cancelled"
	JobStatusCompleted = "completed"
	JobStatusError     = "error"
)

// AllowedBatchSizes 允许的批大小
var AllowedBatchSizes = []int{1, 5, 10, 25, 50, 100}

// AnalysisJob 一次日志安全分析任务（每个目标文件同一时刻最多一个非终态任务）
type AnalysisJob struct {
	ID             int64  `gorm:"primaryKey" json:"id"`
	TargetID       int64  `gorm:"not null;index" json:"target_id"`
	OrganizationID int64  `gorm:"not null;index" json:"organization_id"`
	UserID         int64  `gorm:"not null;index" json:"user_id"`
	Status         string `gorm:"size:20;default:queued;index" json:"status"`

	BatchSize    int    `gorm:"not null" json:"batch_size"`
	CurrentBatch int    `gorm:"not null;default:0" json:"current_batch"`
	TotalBatches *int   `json:"total_batches,omitempty"` // 行数未知前为空
	MaxBatches   *int   `json:"max_batches,omitempty"`   // 用户设置的批数上限
	LinesProcessed int64 `gorm:"not null;default:0" json:"lines_processed"`
	TotalLines   *int64 `json:"total_lines,omitempty"`

	IssuesFound   int `gorm:"not null;default:0" json:"issues_found"`
	AlertsCreated int `gorm:"not null;default:0" json:"alerts_created"`

	// 协作式控制标志，仅在批边界被消费
	PauseRequested  bool `gorm:"not null;default:false" json:"pause_requested"`
	CancelRequested bool `gorm:"not null;default:false" json:"cancel_requested"`

	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`

	StartTime        *time.Time `json:"start_time,omitempty"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	EstimatedEndTime *time.Time `json:"estimated_end_time,omitempty"`

	// 乐观锁版本号，claim 时 CAS
	Version int64 `gorm:"not null;default:0" json:"-"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (AnalysisJob) TableName() string {
	return "analysis_jobs"
}

// IsTerminal 是否处于终态
func (j *AnalysisJob) IsTerminal() bool {
	switch j.Status {
	case JobStatusCancelled, JobStatusCompleted, JobStatusError:
		return true
	}
	return false
}

// ValidBatchSize 校验批大小是否在允许集合内
func ValidBatchSize(size int) bool {
	for _, s := range AllowedBatchSizes {
		if s == size {
			return true
		}
	}
	return false
}
