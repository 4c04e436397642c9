package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/opensoc/soc_log_server/config"
	"github.com/opensoc/soc_log_server/internal/engine"
	"github.com/opensoc/soc_log_server/internal/model"
	"github.com/opensoc/soc_log_server/internal/model/dto"
	"github.com/opensoc/soc_log_server/internal/pkg/queue"
	"github.com/opensoc/soc_log_server/internal/repository"
)

var (
	ErrTargetNotFound    = errors.New("目标日志文件不存在")
	ErrJobNotFound       = errors.New("分析任务不存在")
	ErrJobConflict       = errors.New("目标已有进行中的分析任务")
	ErrInvalidBatchSize  = errors.New("批大小必须是 1/5/10/25/50/100 之一")
	ErrInvalidMaxBatches = errors.New("max_batches 必须大于 0")
	ErrAlreadyAnalyzed   = errors.New("目标已完成分析，重新分析需要 force=true")
)

// JobQueue 入队侧的队列操作（worker 的 Pop 不在此列）
type JobQueue interface {
	Push(ctx context.Context, msg *queue.JobMessage) error
	Length(ctx context.Context) (int64, error)
}

// AnalysisService 批量分析的控制面：启动、暂停/恢复/取消、状态与统计查询
type AnalysisService struct {
	jobRepo  *repository.JobRepository
	lineRepo *repository.LogLineRepository
	fileRepo *repository.LogFileRepository
	jobQueue JobQueue
	pub      engine.EventPublisher
	cfg      *config.Config
}

func NewAnalysisService(
	jobRepo *repository.JobRepository,
	lineRepo *repository.LogLineRepository,
	fileRepo *repository.LogFileRepository,
	jobQueue JobQueue,
	pub engine.EventPublisher,
	cfg *config.Config,
) *AnalysisService {
	return &AnalysisService{
		jobRepo:  jobRepo,
		lineRepo: lineRepo,
		fileRepo: fileRepo,
		jobQueue: jobQueue,
		pub:      pub,
		cfg:      cfg,
	}
}

// Start 为目标创建分析任务并入队。
// 同一目标存在非终态任务时返回 ErrJobConflict。
func (s *AnalysisService) Start(ctx context.Context, targetID, userID int64, req *dto.StartAnalysisRequest) (*dto.StartAnalysisResponse, error) {
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = s.cfg.Engine.DefaultBatchSize
	}
	if !model.ValidBatchSize(batchSize) {
		return nil, ErrInvalidBatchSize
	}
	if req.MaxBatches != nil && *req.MaxBatches < 1 {
		return nil, ErrInvalidMaxBatches
	}

	file, err := s.fileRepo.GetByID(targetID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	stats, err := s.lineRepo.StatsByTarget(targetID)
	if err != nil {
		return nil, err
	}
	fullyAnalyzed := stats.TotalLines > 0 && stats.AnalyzedLines == stats.TotalLines
	if fullyAnalyzed && !req.Force {
		return nil, ErrAlreadyAnalyzed
	}

	job := &model.AnalysisJob{
		TargetID:       targetID,
		OrganizationID: file.OrganizationID,
		UserID:         userID,
		Status:         model.JobStatusQueued,
		BatchSize:      batchSize,
		MaxBatches:     req.MaxBatches,
	}

	// 冲突检查和创建放在同一事务内，配合 claim 的 CAS 保证单活任务不变式
	err = s.jobRepo.Transaction(func(txRepo *repository.JobRepository) error {
		_, err := txRepo.GetActiveByTarget(targetID)
		if err == nil {
			return ErrJobConflict
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		return txRepo.Create(job)
	})
	if err != nil {
		return nil, err
	}

	// force 重新分析：清空行分析标记（告警关联保留，去重不受影响）
	if req.Force {
		if err := s.lineRepo.ResetAnalysis(targetID); err != nil {
			s.failJob(job.ID, fmt.Sprintf("failed to reset analysis: %v", err))
			return nil, err
		}
	}

	if err := s.jobQueue.Push(ctx, &queue.JobMessage{
		JobID:    job.ID,
		TargetID: targetID,
		UserID:   userID,
	}); err != nil {
		s.failJob(job.ID, fmt.Sprintf("failed to enqueue job: %v", err))
		return nil, err
	}

	return &dto.StartAnalysisResponse{JobID: job.ID}, nil
}

// Pause 请求暂停。标志在批边界被消费；终态任务为 no-op。
func (s *AnalysisService) Pause(jobID int64) error {
	job, err := s.getJob(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() || job.Status == model.JobStatusPaused {
		return nil
	}

	return s.jobRepo.SetPauseRequested(jobID, true)
}

// Resume 恢复 paused 任务：清除标志、重新入队，由 worker CAS 认领。
func (s *AnalysisService) Resume(ctx context.Context, jobID int64) error {
	job, err := s.getJob(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}

	if job.Status != model.JobStatusPaused {
		// 任务仍在运行/排队：撤回未消费的暂停请求即可
		return s.jobRepo.SetPauseRequested(jobID, false)
	}

	if err := s.jobRepo.Requeue(jobID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil // 状态已变化（并发 resume/cancel），不重复入队
		}
		return err
	}

	return s.jobQueue.Push(ctx, &queue.JobMessage{
		JobID:    jobID,
		TargetID: job.TargetID,
		UserID:   job.UserID,
	})
}

// Cancel 请求取消。running 任务在下一个批边界停止；
// paused 任务没有 worker 驱动，由此处直接转入 cancelled。
func (s *AnalysisService) Cancel(jobID int64) error {
	job, err := s.getJob(jobID)
	if err != nil {
		return err
	}
	if job.IsTerminal() {
		return nil
	}

	if err := s.jobRepo.SetCancelRequested(jobID); err != nil {
		return err
	}

	if job.Status == model.JobStatusPaused {
		next, err := engine.Transition(job.Status, engine.EventCancelObserved)
		if err != nil {
			return err
		}
		if err := s.jobRepo.MarkTerminal(jobID, next, ""); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if err := s.pub.Publish(context.Background(), job.ID, job.TargetID, engine.EventTypeCancelled, map[string]interface{}{
			"current_batch":   job.CurrentBatch,
			"lines_processed": job.LinesProcessed,
		}); err != nil {
			log.Printf("Job %d: failed to publish cancelled event: %v", job.ID, err)
		}
	}

	return nil
}

// Status 任务状态快照（含进度百分比与预计完成时间）
func (s *AnalysisService) Status(jobID int64) (*dto.JobStatusResponse, error) {
	job, err := s.getJob(jobID)
	if err != nil {
		return nil, err
	}

	resp := &dto.JobStatusResponse{
		JobID:           job.ID,
		TargetID:        job.TargetID,
		Status:          job.Status,
		BatchSize:       job.BatchSize,
		CurrentBatch:    job.CurrentBatch,
		TotalBatches:    job.TotalBatches,
		LinesProcessed:  job.LinesProcessed,
		TotalLines:      job.TotalLines,
		IssuesFound:     job.IssuesFound,
		AlertsCreated:   job.AlertsCreated,
		Percent:         engine.Percent(job.LinesProcessed, job.TotalLines),
		PauseRequested:  job.PauseRequested,
		CancelRequested: job.CancelRequested,
		ErrorMessage:    job.ErrorMessage,
	}

	if job.StartTime != nil {
		resp.StartTime = job.StartTime.Format(time.RFC3339)
	}
	if job.EndTime != nil {
		resp.EndTime = job.EndTime.Format(time.RFC3339)
	}
	if job.EstimatedEndTime != nil {
		resp.EstimatedEndTime = job.EstimatedEndTime.Format(time.RFC3339)
	}

	return resp, nil
}

// List 目标的任务历史
func (s *AnalysisService) List(targetID int64, limit int) ([]*dto.JobListItem, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	jobs, err := s.jobRepo.ListByTarget(targetID, limit)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.JobListItem, len(jobs))
	for i, job := range jobs {
		items[i] = &dto.JobListItem{
			JobID:          job.ID,
			TargetID:       job.TargetID,
			Status:         job.Status,
			BatchSize:      job.BatchSize,
			LinesProcessed: job.LinesProcessed,
			IssuesFound:    job.IssuesFound,
			AlertsCreated:  job.AlertsCreated,
			CreatedAt:      job.CreatedAt.Format(time.RFC3339),
		}
		if job.EndTime != nil {
			items[i].EndTime = job.EndTime.Format(time.RFC3339)
		}
	}

	return items, nil
}

// Stats 目标的分析统计
func (s *AnalysisService) Stats(ctx context.Context, targetID int64) (*dto.TargetStatsResponse, error) {
	if _, err := s.fileRepo.GetByID(targetID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTargetNotFound
		}
		return nil, err
	}

	stats, err := s.lineRepo.StatsByTarget(targetID)
	if err != nil {
		return nil, err
	}

	queueDepth, err := s.jobQueue.Length(ctx)
	if err != nil {
		log.Printf("Failed to read queue depth: %v", err)
		queueDepth = 0
	}

	progress := 0
	if stats.TotalLines > 0 {
		progress = int(stats.AnalyzedLines * 100 / stats.TotalLines)
	}

	return &dto.TargetStatsResponse{
		TargetID:          targetID,
		TotalLines:        stats.TotalLines,
		AnalyzedLines:     stats.AnalyzedLines,
		SecurityIssues:    stats.SecurityIssues,
		AlertsCreated:     stats.AlertsCreated,
		SeverityBreakdown: stats.SeverityBreakdown,
		AnalysisProgress:  progress,
		QueueDepth:        queueDepth,
	}, nil
}

func (s *AnalysisService) getJob(jobID int64) (*model.AnalysisJob, error) {
	job, err := s.jobRepo.GetByID(jobID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (s *AnalysisService) failJob(jobID int64, msg string) {
	if err := s.jobRepo.MarkTerminal(jobID, model.JobStatusError, msg); err != nil {
		log.Printf("Job %d: failed to mark error state: %v", jobID, err)
	}
}
