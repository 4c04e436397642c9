package engine

import (
	"context"
	"fmt"

	"github.com/opensoc/soc_log_server/internal/classifier"
	"github.com/opensoc/soc_log_server/internal/model"
	"github.com/opensoc/soc_log_server/internal/repository"
)

// AlertRequest 交给告警协作方的创建请求
type AlertRequest struct {
	OrganizationID int64
	TargetID       int64
	LogLineID      int64
	LineNumber     int64
	SourceSystem   string
	Severity       string
	Title          string
	Description    string
	Confidence     float64
}

// AlertSink 外部告警协作方：创建告警记录和 AI 时间线条目，返回告警 ID
type AlertSink interface {
	CreateAlert(ctx context.Context, req *AlertRequest) (int64, error)
}

// AlertEmitter 负责告警的去重与关联：每行至多产生一个告警，
// 已有 created_alert_id 的行直接返回既有告警（崩溃重跑安全）。
type AlertEmitter struct {
	lineRepo *repository.LogLineRepository
	sink     AlertSink
}

func NewAlertEmitter(lineRepo *repository.LogLineRepository, sink AlertSink) *AlertEmitter {
	return &AlertEmitter{
		lineRepo: lineRepo,
		sink:     sink,
	}
}

// Emit 将分类结论转为告警。返回告警 ID 以及本次是否新建。
func (e *AlertEmitter) Emit(ctx context.Context, job *model.AnalysisJob, line *model.LogLine, finding *classifier.Finding) (int64, bool, error) {
	if line.CreatedAlertID != nil {
		return *line.CreatedAlertID, false, nil
	}

	req := &AlertRequest{
		OrganizationID: job.OrganizationID,
		TargetID:       job.TargetID,
		LogLineID:      line.ID,
		LineNumber:     line.LineNumber,
		SourceSystem:   "ai_log_analysis",
		Severity:       classifier.NormalizeSeverity(finding.Severity),
		Title:          fmt.Sprintf("%s detected at line %d", finding.Type, line.LineNumber),
		Description:    finding.Description,
		Confidence:     finding.Confidence,
	}

	alertID, err := e.sink.CreateAlert(ctx, req)
	if err != nil {
		return 0, false, fmt.Errorf("failed to create alert: %w", err)
	}

	linked, err := e.lineRepo.SetAlertID(line.ID, alertID)
	if err != nil {
		return 0, false, fmt.Errorf("failed to link alert to line: %w", err)
	}
	if !linked {
		// 并发/重跑时别人已写入，保留既有告警
		current, err := e.lineRepo.GetByID(line.ID)
		if err != nil {
			return 0, false, err
		}
		if current.CreatedAlertID != nil {
			return *current.CreatedAlertID, false, nil
		}
	}

	line.CreatedAlertID = &alertID
	return alertID, true, nil
}
