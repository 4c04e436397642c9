package repository

import (
	"gorm.io/gorm"

	"github.com/opensoc/soc_log_server/internal/model"
)

type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(alert *model.Alert) error {
	return r.db.Create(alert).Error
}

func (r *AlertRepository) GetByID(id int64) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.Where("id = ?", id).First(&alert).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *AlertRepository) AddTimelineEntry(entry *model.AlertTimelineEntry) error {
	return r.db.Create(entry).Error
}

// ListTimeline 告警的时间线条目
func (r *AlertRepository) ListTimeline(alertID int64) ([]*model.AlertTimelineEntry, error) {
	var entries []*model.AlertTimelineEntry
	err := r.db.Where("alert_id = ?", alertID).
		Order("created_at ASC").
		Find(&entries).Error
	return entries, err
}
