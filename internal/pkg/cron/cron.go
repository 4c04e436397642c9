package cron

import (
	"log"
	"time"

	"github.com/opensoc/soc_log_server/internal/model"
	"github.com/opensoc/soc_log_server/internal/repository"
)

// Service 后台保留策略：清理过期终态任务，回收失联的 running 任务。
// 引擎自身从不删除任务记录。
type Service struct {
	jobRepo          *repository.JobRepository
	jobRetentionDays int
	staleJobHours    int
	stopChan         chan struct{}
}

func NewService(jobRepo *repository.JobRepository, jobRetentionDays, staleJobHours int) *Service {
	return &Service{
		jobRepo:          jobRepo,
		jobRetentionDays: jobRetentionDays,
		staleJobHours:    staleJobHours,
		stopChan:         make(chan struct{}),
	}
}

// Start 启动定时任务
func (s *Service) Start() {
	go s.runRetention()
	go s.runStaleReaper()
	log.Println("Cron service started (job retention + stale reaper)")
}

// Stop 停止定时任务
func (s *Service) Stop() {
	close(s.stopChan)
	log.Println("Cron service stopped")
}

// runRetention 每天执行一次终态任务清理
func (s *Service) runRetention() {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanupTerminalJobs()
		}
	}
}

// runStaleReaper 每小时回收一次失联任务
func (s *Service) runStaleReaper() {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.reapStaleJobs()
		}
	}
}

func (s *Service) cleanupTerminalJobs() {
	retentionDays := s.jobRetentionDays
	if retentionDays <= 0 {
		retentionDays = 30
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	deleted, err := s.jobRepo.DeleteTerminalBefore(cutoff)
	if err != nil {
		log.Printf("Retention: failed to delete terminal jobs: %v", err)
		return
	}
	if deleted > 0 {
		log.Printf("Retention: deleted %d terminal jobs older than %d days", deleted, retentionDays)
	}
}

// reapStaleJobs 将长时间没有检查点更新的 running 任务置为 error
// （worker 崩溃时任务卡在 running，行级幂等标记保证之后重跑不重复处理）
func (s *Service) reapStaleJobs() {
	staleHours := s.staleJobHours
	if staleHours <= 0 {
		staleHours = 6
	}
	cutoff := time.Now().Add(-time.Duration(staleHours) * time.Hour)

	jobs, err := s.jobRepo.ListStaleRunning(cutoff)
	if err != nil {
		log.Printf("Stale reaper: failed to list stale jobs: %v", err)
		return
	}

	for _, job := range jobs {
		err := s.jobRepo.MarkTerminal(job.ID, model.JobStatusError,
			"job stalled: no checkpoint update, worker presumed dead")
		if err != nil {
			log.Printf("Stale reaper: failed to reap job %d: %v", job.ID, err)
			continue
		}
		log.Printf("Stale reaper: job %d marked error (last update %s)", job.ID, job.UpdatedAt.Format(time.RFC3339))
	}
}

// RunNow 立即执行一轮清理（用于测试或手动触发）
func (s *Service) RunNow() {
	s.cleanupTerminalJobs()
	s.reapStaleJobs()
}
