package model

import (
	"time"
)

// 安全问题严重级别
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// IssueTypeAnalysisError 标记分类失败的行（不计入 issues_found）
const IssueTypeAnalysisError = "analysis_error"

// LogLine 日志文件中的一行，line_number 在同一目标内唯一
type LogLine struct {
	ID         int64  `gorm:"primaryKey" json:"id"`
	TargetID   int64  `gorm:"not null;index:idx_target_line,unique;index:idx_target_analyzed" json:"target_id"`
	LineNumber int64  `gorm:"not null;index:idx_target_line,unique" json:"line_number"`
	Content    string `gorm:"type:text;not null" json:"content"`

	// securityAnalyzed=true 的行在后续恢复中不会被重复处理（幂等恢复）
	SecurityAnalyzed bool `gorm:"not null;default:false;index:idx_target_analyzed" json:"security_analyzed"`
	HasSecurityIssue bool `gorm:"not null;default:false" json:"has_security_issue"`

	IssueSeverity    *string `gorm:"size:20" json:"issue_severity,omitempty"`
	IssueType        *string `gorm:"size:100" json:"issue_type,omitempty"`
	IssueDescription *string `gorm:"type:text" json:"issue_description,omitempty"`

	AnalysisTimestamp *time.Time `json:"analysis_timestamp,omitempty"`

	// 每行最多关联一个告警，写入后不再覆盖
	CreatedAlertID *int64 `gorm:"index" json:"created_alert_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (LogLine) TableName() string {
	return "log_lines"
}
