package alerting

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/opensoc/soc_log_server/internal/engine"
	"github.com/opensoc/soc_log_server/internal/model"
	"github.com/opensoc/soc_log_server/internal/repository"
)

// Sink 仓储后端的告警协作方：写入告警记录并附带 AI 来源的时间线条目。
// 去重不在此处理，由 AlertEmitter 持有每行至多一个告警的契约。
type Sink struct {
	alertRepo *repository.AlertRepository
}

func NewSink(alertRepo *repository.AlertRepository) *Sink {
	return &Sink{alertRepo: alertRepo}
}

func (s *Sink) CreateAlert(ctx context.Context, req *engine.AlertRequest) (int64, error) {
	alert := &model.Alert{
		Reference:      uuid.NewString(),
		OrganizationID: req.OrganizationID,
		TargetID:       req.TargetID,
		LogLineID:      req.LogLineID,
		SourceSystem:   req.SourceSystem,
		Severity:       req.Severity,
		Title:          req.Title,
		Description:    req.Description,
		Status:         "open",
	}

	if err := s.alertRepo.Create(alert); err != nil {
		return 0, fmt.Errorf("failed to create alert: %w", err)
	}

	confidence := req.Confidence
	entry := &model.AlertTimelineEntry{
		AlertID:    alert.ID,
		EntryType:  "ai_analysis",
		Message:    fmt.Sprintf("Alert created by AI log analysis (line %d)", req.LineNumber),
		AISourced:  true,
		Confidence: &confidence,
	}
	if err := s.alertRepo.AddTimelineEntry(entry); err != nil {
		return 0, fmt.Errorf("failed to add timeline entry: %w", err)
	}

	return alert.ID, nil
}

var _ engine.AlertSink = (*Sink)(nil)
