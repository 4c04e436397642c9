package repository

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/opensoc/soc_log_server/internal/model"
)

// ErrClaimConflict 任务已被其他 worker 认领（或状态已变化）
var ErrClaimConflict = errors.New("job already claimed by another worker")

var nonTerminalStatuses = []string{
	model.JobStatusQueued,
	model.JobStatusRunning,
	model.JobStatusPaused,
}

type JobRepository struct {
	db *gorm.DB
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(job *model.AnalysisJob) error {
	return r.db.Create(job).Error
}

func (r *JobRepository) GetByID(id int64) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.Where("id = ?", id).First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// GetActiveByTarget 获取目标的非终态任务（不变式：每个目标最多一个）
func (r *JobRepository) GetActiveByTarget(targetID int64) (*model.AnalysisJob, error) {
	var job model.AnalysisJob
	err := r.db.Where("target_id = ? AND status IN ?", targetID, nonTerminalStatuses).
		Order("created_at DESC").
		First(&job).Error
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// ListByTarget 目标的任务历史
func (r *JobRepository) ListByTarget(targetID int64, limit int) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("target_id = ?", targetID).
		Order("created_at DESC").
		Limit(limit).
		Find(&jobs).Error
	return jobs, err
}

// Claim 以乐观锁（status+version CAS）将任务从 queued/paused 置为 running。
// 同一任务并发认领时只有一个成功，其余返回 ErrClaimConflict。
func (r *JobRepository) Claim(jobID int64) (*model.AnalysisJob, error) {
	job, err := r.GetByID(jobID)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{
		"status":  model.JobStatusRunning,
		"version": gorm.Expr("version + 1"),
	}
	if job.StartTime == nil {
		updates["start_time"] = time.Now()
	}

	result := r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status IN ? AND version = ?",
			jobID, []string{model.JobStatusQueued, model.JobStatusPaused}, job.Version).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrClaimConflict
	}

	return r.GetByID(jobID)
}

// SetPauseRequested 设置暂停标志（仅对 running 生效；标志在批边界被消费）
func (r *JobRepository) SetPauseRequested(jobID int64, requested bool) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status IN ?", jobID, nonTerminalStatuses).
		Update("pause_requested", requested).Error
}

// SetCancelRequested 设置取消标志
func (r *JobRepository) SetCancelRequested(jobID int64) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status IN ?", jobID, nonTerminalStatuses).
		Update("cancel_requested", true).Error
}

// ClearControlFlags 清除控制标志（resume 时使用）
func (r *JobRepository) ClearControlFlags(jobID int64) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"pause_requested":  false,
			"cancel_requested": false,
		}).Error
}

// Requeue 将 paused 任务放回 queued（resume 的持久化部分）
func (r *JobRepository) Requeue(jobID int64) error {
	result := r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, model.JobStatusPaused).
		Updates(map[string]interface{}{
			"status":          model.JobStatusQueued,
			"pause_requested": false,
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetTotals 首次统计总行数后写入 total_lines / total_batches
func (r *JobRepository) SetTotals(jobID int64, totalLines int64, totalBatches int) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"total_lines":   totalLines,
			"total_batches": totalBatches,
		}).Error
}

// BatchCheckpoint 一个批次完成后需要原子提交的增量
type BatchCheckpoint struct {
	LinesProcessed int
	IssuesFound    int
	AlertsCreated  int
}

// PersistBatchCheckpoint 原子提交批次检查点：计数器自增 + current_batch+1。
// 事件只允许在该写入成功后发布，保证观察者不会看到领先于持久化状态的进度。
func (r *JobRepository) PersistBatchCheckpoint(jobID int64, cp BatchCheckpoint) error {
	result := r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status = ?", jobID, model.JobStatusRunning).
		Updates(map[string]interface{}{
			"lines_processed": gorm.Expr("lines_processed + ?", cp.LinesProcessed),
			"issues_found":    gorm.Expr("issues_found + ?", cp.IssuesFound),
			"alerts_created":  gorm.Expr("alerts_created + ?", cp.AlertsCreated),
			"current_batch":   gorm.Expr("current_batch + 1"),
			"version":         gorm.Expr("version + 1"),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// SetEstimatedEndTime 写入预计完成时间（仅供展示）
func (r *JobRepository) SetEstimatedEndTime(jobID int64, eta *time.Time) error {
	return r.db.Model(&model.AnalysisJob{}).
		Where("id = ?", jobID).
		Update("estimated_end_time", eta).Error
}

// MarkTerminal 置为终态（cancelled/completed/error）或 paused，带当前状态保护
func (r *JobRepository) MarkTerminal(jobID int64, status, errorMessage string) error {
	updates := map[string]interface{}{
		"status":  status,
		"version": gorm.Expr("version + 1"),
	}
	if status != model.JobStatusPaused {
		updates["end_time"] = time.Now()
	}
	if errorMessage != "" {
		updates["error_message"] = errorMessage
	}

	result := r.db.Model(&model.AnalysisJob{}).
		Where("id = ? AND status IN ?", jobID, nonTerminalStatuses).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteTerminalBefore 删除指定时间前进入终态的任务，返回删除数量
func (r *JobRepository) DeleteTerminalBefore(cutoff time.Time) (int64, error) {
	result := r.db.Where("status IN ? AND end_time IS NOT NULL AND end_time < ?",
		[]string{model.JobStatusCancelled, model.JobStatusCompleted, model.JobStatusError}, cutoff).
		Delete(&model.AnalysisJob{})
	return result.RowsAffected, result.Error
}

// ListStaleRunning 查找长时间没有检查点更新的 running 任务（worker 异常退出）
func (r *JobRepository) ListStaleRunning(cutoff time.Time) ([]*model.AnalysisJob, error) {
	var jobs []*model.AnalysisJob
	err := r.db.Where("status = ? AND updated_at < ?", model.JobStatusRunning, cutoff).
		Find(&jobs).Error
	return jobs, err
}

// CountQueued 队列中等待的任务数
func (r *JobRepository) CountQueued() (int64, error) {
	var count int64
	err := r.db.Model(&model.AnalysisJob{}).
		Where("status = ?", model.JobStatusQueued).
		Count(&count).Error
	return count, err
}

// Transaction 在事务中执行 fn（启动时的冲突检查使用）
func (r *JobRepository) Transaction(fn func(txRepo *JobRepository) error) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return fn(NewJobRepository(tx))
	})
}
