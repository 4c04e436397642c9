package repository

import (
	"gorm.io/gorm"

	"github.com/opensoc/soc_log_server/internal/model"
)

type LogFileRepository struct {
	db *gorm.DB
}

func NewLogFileRepository(db *gorm.DB) *LogFileRepository {
	return &LogFileRepository{db: db}
}

func (r *LogFileRepository) GetByID(id int64) (*model.LogFile, error) {
	var file model.LogFile
	err := r.db.Where("id = ?", id).First(&file).Error
	if err != nil {
		return nil, err
	}
	return &file, nil
}
