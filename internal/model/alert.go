package model

import (
	"time"
)

// Alert 由分析引擎产出的安全告警（告警的完整 CRUD 由外围系统负责）
type Alert struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	Reference      string    `gorm:"size:36;uniqueIndex" json:"reference"` // 对外引用的 UUID
	OrganizationID int64     `gorm:"not null;index" json:"organization_id"`
	TargetID       int64     `gorm:"not null;index" json:"target_id"`
	LogLineID      int64     `gorm:"not null;index" json:"log_line_id"`
	SourceSystem   string    `gorm:"size:100;not null" json:"source_system"`
	Severity       string    `gorm:"size:20;not null" json:"severity"`
	Title          string    `gorm:"size:255;not null" json:"title"`
	Description    string    `gorm:"type:text" json:"description"`
	Status         string    `gorm:"size:20;default:open" json:"status"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// AlertTimelineEntry 告警时间线条目，AI 产出的条目带置信度
type AlertTimelineEntry struct {
	ID         int64     `gorm:"primaryKey" json:"id"`
	AlertID    int64     `gorm:"not null;index" json:"alert_id"`
	EntryType  string    `gorm:"size:50;not null" json:"entry_type"`
	Message    string    `gorm:"type:text" json:"message"`
	AISourced  bool      `gorm:"not null;default:false" json:"ai_sourced"`
	Confidence *float64  `json:"confidence,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

func (AlertTimelineEntry) TableName() string {
	return "alert_timeline_entries"
}
