package repository

import (
	"time"

	"gorm.io/gorm"

	"github.com/opensoc/soc_log_server/internal/model"
)

type LogLineRepository struct {
	db *gorm.DB
}

func NewLogLineRepository(db *gorm.DB) *LogLineRepository {
	return &LogLineRepository{db: db}
}

func (r *LogLineRepository) Create(line *model.LogLine) error {
	return r.db.Create(line).Error
}

func (r *LogLineRepository) GetByID(id int64) (*model.LogLine, error) {
	var line model.LogLine
	err := r.db.Where("id = ?", id).First(&line).Error
	if err != nil {
		return nil, err
	}
	return &line, nil
}

// CountByTarget 目标文件的总行数
func (r *LogLineRepository) CountByTarget(targetID int64) (int64, error) {
	var count int64
	err := r.db.Model(&model.LogLine{}).
		Where("target_id = ?", targetID).
		Count(&count).Error
	return count, err
}

// GetUnanalyzedBatch 按行号顺序取下一批未分析的行
func (r *LogLineRepository) GetUnanalyzedBatch(targetID int64, limit int) ([]*model.LogLine, error) {
	var lines []*model.LogLine
	err := r.db.Where("target_id = ? AND security_analyzed = ?", targetID, false).
		Order("line_number ASC").
		Limit(limit).
		Find(&lines).Error
	return lines, err
}

// MarkAnalyzed 持久化单行的分类结论
func (r *LogLineRepository) MarkAnalyzed(lineID int64, hasIssue bool, severity, issueType, description string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"security_analyzed":  true,
		"has_security_issue": hasIssue,
		"analysis_timestamp": now,
	}
	if hasIssue {
		updates["issue_severity"] = severity
		updates["issue_type"] = issueType
		updates["issue_description"] = description
	}

	return r.db.Model(&model.LogLine{}).
		Where("id = ?", lineID).
		Updates(updates).Error
}

// MarkAnalyzedError 将分类失败的行标记为已分析（带错误说明），不计为安全问题
func (r *LogLineRepository) MarkAnalyzedError(lineID int64, errMsg string) error {
	now := time.Now()
	return r.db.Model(&model.LogLine{}).
		Where("id = ?", lineID).
		Updates(map[string]interface{}{
			"security_analyzed":  true,
			"has_security_issue": false,
			"issue_type":         model.IssueTypeAnalysisError,
			"issue_description":  errMsg,
			"analysis_timestamp": now,
		}).Error
}

// SetAlertID 仅在 created_alert_id 为空时写入，保证每行至多一个告警。
// 返回是否真正写入。
func (r *LogLineRepository) SetAlertID(lineID, alertID int64) (bool, error) {
	result := r.db.Model(&model.LogLine{}).
		Where("id = ? AND created_alert_id IS NULL", lineID).
		Update("created_alert_id", alertID)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// TargetStats 目标的分析统计
type TargetStats struct {
	TotalLines        int64
	AnalyzedLines     int64
	SecurityIssues    int64
	AlertsCreated     int64
	SeverityBreakdown map[string]int64
}

// StatsByTarget 汇总目标的分析统计（含严重级别分布）
func (r *LogLineRepository) StatsByTarget(targetID int64) (*TargetStats, error) {
	stats := &TargetStats{SeverityBreakdown: make(map[string]int64)}

	base := r.db.Model(&model.LogLine{}).Where("target_id = ?", targetID)

	if err := base.Session(&gorm.Session{}).Count(&stats.TotalLines).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("security_analyzed = ?", true).
		Count(&stats.AnalyzedLines).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("has_security_issue = ?", true).
		Count(&stats.SecurityIssues).Error; err != nil {
		return nil, err
	}
	if err := base.Session(&gorm.Session{}).
		Where("created_alert_id IS NOT NULL").
		Count(&stats.AlertsCreated).Error; err != nil {
		return nil, err
	}

	type severityRow struct {
		IssueSeverity string
		Count         int64
	}
	var rows []severityRow
	err := r.db.Model(&model.LogLine{}).
		Select("issue_severity, COUNT(*) as count").
		Where("target_id = ? AND has_security_issue = ? AND issue_severity IS NOT NULL", targetID, true).
		Group("issue_severity").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		stats.SeverityBreakdown[row.IssueSeverity] = row.Count
	}

	return stats, nil
}

// ResetAnalysis 清空目标所有行的分析标记（force 重新分析）。
// created_alert_id 保留，告警去重不受重分析影响。
func (r *LogLineRepository) ResetAnalysis(targetID int64) error {
	return r.db.Model(&model.LogLine{}).
		Where("target_id = ?", targetID).
		Updates(map[string]interface{}{
			"security_analyzed":  false,
			"has_security_issue": false,
			"issue_severity":     nil,
			"issue_type":         nil,
			"issue_description":  nil,
			"analysis_timestamp": nil,
		}).Error
}
