package model

import (
	"time"
)

// LogFile 被分析的目标日志文件（由外围系统在上传时写入，此处只读）
type LogFile struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	OrganizationID int64     `gorm:"not null;index" json:"organization_id"`
	UserID         int64     `gorm:"not null;index" json:"user_id"`
	Filename       string    `gorm:"size:255;not null" json:"filename"`
	SourceSystem   string    `gorm:"size:100" json:"source_system,omitempty"`
	LineCount      int64     `gorm:"not null;default:0" json:"line_count"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

func (LogFile) TableName() string {
	return "log_files"
}
