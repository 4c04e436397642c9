package engine

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/opensoc/soc_log_server/internal/classifier"
	"github.com/opensoc/soc_log_server/internal/model"
	"github.com/opensoc/soc_log_server/internal/repository"
)

// Options 批处理器参数
type Options struct {
	// LineRetries 单行分类失败时的行内重试次数
	LineRetries int
	// MaxConsecutiveErrors 连续失败多少行后判定分类器不可用，任务转入 error
	MaxConsecutiveErrors int
}

// Processor 驱动一个分析任务直到终态或 paused。
// 任务内严格串行（无批内并行），暂停/取消只在批边界被消费。
type Processor struct {
	jobRepo  *repository.JobRepository
	lineRepo *repository.LogLineRepository
	fileRepo *repository.LogFileRepository
	clf      classifier.Classifier
	emitter  *AlertEmitter
	pub      EventPublisher
	opts     Options
}

func NewProcessor(
	jobRepo *repository.JobRepository,
	lineRepo *repository.LogLineRepository,
	fileRepo *repository.LogFileRepository,
	clf classifier.Classifier,
	emitter *AlertEmitter,
	pub EventPublisher,
	opts Options,
) *Processor {
	if opts.MaxConsecutiveErrors <= 0 {
		opts.MaxConsecutiveErrors = 10
	}
	return &Processor{
		jobRepo:  jobRepo,
		lineRepo: lineRepo,
		fileRepo: fileRepo,
		clf:      clf,
		emitter:  emitter,
		pub:      pub,
		opts:     opts,
	}
}

// batchStats 单个批次的统计，随 batch_completed 事件发布
type batchStats struct {
	BatchNumber   int `json:"batch_number"`
	Analyzed      int `json:"analyzed"`
	IssuesFound   int `json:"issues_found"`
	AlertsCreated int `json:"alerts_created"`
	Errors        int `json:"errors"`
}

// Run 认领并驱动任务。返回 repository.ErrClaimConflict 表示任务已被其他 worker 处理。
func (p *Processor) Run(ctx context.Context, jobID int64) error {
	job, err := p.jobRepo.Claim(jobID)
	if err != nil {
		return err
	}

	// 事件为尽力而为投递，独立于 worker 的关闭上下文
	publish := func(eventType string, payload interface{}) {
		if err := p.pub.Publish(context.Background(), job.ID, job.TargetID, eventType, payload); err != nil {
			log.Printf("Job %d: failed to publish %s event: %v", job.ID, eventType, err)
		}
	}

	// 致命错误：终止任务并发布 error 事件
	fail := func(cause error) error {
		log.Printf("Job %d: fatal error: %v", job.ID, cause)
		if err := p.jobRepo.MarkTerminal(job.ID, model.JobStatusError, cause.Error()); err != nil {
			log.Printf("Job %d: failed to persist error state: %v", job.ID, err)
		}
		publish(EventTypeError, map[string]interface{}{"error": cause.Error()})
		return cause
	}

	publish(EventTypeStarted, map[string]interface{}{
		"batch_size":    job.BatchSize,
		"current_batch": job.CurrentBatch,
	})

	lineCtx := p.buildLineContext(job.TargetID)

	// 首次运行时统计总行数并写入批次总数
	if job.TotalLines == nil || job.TotalBatches == nil {
		totalLines, err := p.lineRepo.CountByTarget(job.TargetID)
		if err != nil {
			return fail(fmt.Errorf("failed to count log lines: %w", err))
		}

		totalBatches := int((totalLines + int64(job.BatchSize) - 1) / int64(job.BatchSize))
		if job.MaxBatches != nil && *job.MaxBatches < totalBatches {
			totalBatches = *job.MaxBatches
		}

		if err := p.jobRepo.SetTotals(job.ID, totalLines, totalBatches); err != nil {
			return fail(fmt.Errorf("failed to persist totals: %w", err))
		}
		job.TotalLines = &totalLines
		job.TotalBatches = &totalBatches
	}

	// 本地累计值跟随检查点推进，用于 progress 事件
	linesProcessed := job.LinesProcessed
	issuesTotal := job.IssuesFound
	alertsTotal := job.AlertsCreated
	consecutiveErrors := 0

	for job.CurrentBatch < *job.TotalBatches {
		// 检查点边界：消费控制标志
		stopped, err := p.consumeControlFlags(ctx, job, publish)
		if err != nil {
			return fail(err)
		}
		if stopped {
			return nil
		}

		lines, err := p.lineRepo.GetUnanalyzedBatch(job.TargetID, job.BatchSize)
		if err != nil {
			return fail(fmt.Errorf("failed to fetch batch: %w", err))
		}
		if len(lines) == 0 {
			// 未分析的行提前耗尽（恢复场景下已分析的行不会重读）
			break
		}

		batchNumber := job.CurrentBatch + 1
		publish(EventTypeBatchStarted, map[string]interface{}{
			"batch_number": batchNumber,
			"size":         len(lines),
		})

		stats := batchStats{BatchNumber: batchNumber}

		for i, line := range lines {
			finding, err := p.classifyLine(ctx, line, lineCtx)
			if err != nil {
				// 单行失败隔离：记录后继续下一行
				if markErr := p.lineRepo.MarkAnalyzedError(line.ID, err.Error()); markErr != nil {
					return fail(fmt.Errorf("failed to mark line %d: %w", line.LineNumber, markErr))
				}
				stats.Analyzed++
				stats.Errors++
				consecutiveErrors++
				publish(EventTypeBatchError, map[string]interface{}{
					"batch_number": batchNumber,
					"line_number":  line.LineNumber,
					"error":        err.Error(),
				})
				if consecutiveErrors >= p.opts.MaxConsecutiveErrors {
					return fail(fmt.Errorf("classifier unavailable: %d consecutive line failures", consecutiveErrors))
				}
				continue
			}
			consecutiveErrors = 0

			if err := p.lineRepo.MarkAnalyzed(line.ID, finding.HasIssue, finding.Severity, finding.Type, finding.Description); err != nil {
				return fail(fmt.Errorf("failed to persist finding for line %d: %w", line.LineNumber, err))
			}
			stats.Analyzed++

			if finding.HasIssue {
				stats.IssuesFound++
				alertID, created, err := p.emitter.Emit(ctx, job, line, finding)
				if err != nil {
					return fail(fmt.Errorf("failed to emit alert for line %d: %w", line.LineNumber, err))
				}
				if created {
					stats.AlertsCreated++
				}
				publish(EventTypeIssueFound, map[string]interface{}{
					"line_number": line.LineNumber,
					"severity":    finding.Severity,
					"type":        finding.Type,
					"alert_id":    alertID,
					"confidence":  finding.Confidence,
				})
			}

			publish(EventTypeBatchProgress, map[string]interface{}{
				"batch_number": batchNumber,
				"line_number":  line.LineNumber,
				"position":     i + 1,
				"size":         len(lines),
			})
		}

		// 原子提交检查点；事件只在写入成功后发布
		cp := repository.BatchCheckpoint{
			LinesProcessed: stats.Analyzed,
			IssuesFound:    stats.IssuesFound,
			AlertsCreated:  stats.AlertsCreated,
		}
		if err := p.jobRepo.PersistBatchCheckpoint(job.ID, cp); err != nil {
			return fail(fmt.Errorf("failed to persist batch checkpoint: %w", err))
		}

		job.CurrentBatch++
		linesProcessed += int64(stats.Analyzed)
		issuesTotal += stats.IssuesFound
		alertsTotal += stats.AlertsCreated

		publish(EventTypeBatchCompleted, stats)

		eta := EstimatedEndTime(job.StartTime, linesProcessed, job.TotalLines, time.Now())
		if err := p.jobRepo.SetEstimatedEndTime(job.ID, eta); err != nil {
			log.Printf("Job %d: failed to persist ETA: %v", job.ID, err)
		}
		progress := map[string]interface{}{
			"percent":         Percent(linesProcessed, job.TotalLines),
			"lines_processed": linesProcessed,
			"total_lines":     *job.TotalLines,
			"current_batch":   job.CurrentBatch,
			"total_batches":   *job.TotalBatches,
			"issues_found":    issuesTotal,
			"alerts_created":  alertsTotal,
		}
		if eta != nil {
			progress["estimated_end_time"] = eta.Format(time.RFC3339)
		}
		publish(EventTypeProgress, progress)
	}

	if err := p.jobRepo.MarkTerminal(job.ID, model.JobStatusCompleted, ""); err != nil {
		return fail(fmt.Errorf("failed to persist completed state: %w", err))
	}

	summary := map[string]interface{}{
		"lines_processed": linesProcessed,
		"issues_found":    issuesTotal,
		"alerts_created":  alertsTotal,
	}
	if job.StartTime != nil {
		summary["elapsed_seconds"] = int(time.Since(*job.StartTime).Seconds())
	}
	publish(EventTypeCompleted, summary)

	log.Printf("Job %d: completed, %d lines, %d issues, %d alerts",
		job.ID, linesProcessed, issuesTotal, alertsTotal)

	return nil
}

// consumeControlFlags 在批边界读取最新控制标志并执行相应转移。
// worker 关闭（ctx 取消）按暂停处理，重启后可从同一批继续。
func (p *Processor) consumeControlFlags(ctx context.Context, job *model.AnalysisJob, publish func(string, interface{})) (bool, error) {
	fresh, err := p.jobRepo.GetByID(job.ID)
	if err != nil {
		return false, fmt.Errorf("failed to refresh job: %w", err)
	}

	if fresh.CancelRequested {
		next, err := Transition(fresh.Status, EventCancelObserved)
		if err != nil {
			return false, err
		}
		if err := p.jobRepo.MarkTerminal(job.ID, next, ""); err != nil {
			return false, fmt.Errorf("failed to persist cancelled state: %w", err)
		}
		publish(EventTypeCancelled, map[string]interface{}{
			"current_batch":   job.CurrentBatch,
			"lines_processed": fresh.LinesProcessed,
		})
		log.Printf("Job %d: cancelled at batch %d", job.ID, job.CurrentBatch)
		return true, nil
	}

	if fresh.PauseRequested || ctx.Err() != nil {
		next, err := Transition(fresh.Status, EventPauseObserved)
		if err != nil {
			return false, err
		}
		if err := p.jobRepo.MarkTerminal(job.ID, next, ""); err != nil {
			return false, fmt.Errorf("failed to persist paused state: %w", err)
		}
		publish(EventTypePaused, map[string]interface{}{
			"current_batch":   job.CurrentBatch,
			"lines_processed": fresh.LinesProcessed,
		})
		log.Printf("Job %d: paused at batch %d", job.ID, job.CurrentBatch)
		return true, nil
	}

	return false, nil
}

// classifyLine 行内重试瞬时错误，重试耗尽后错误交由调用方隔离
func (p *Processor) classifyLine(ctx context.Context, line *model.LogLine, lineCtx classifier.LineContext) (*classifier.Finding, error) {
	lineCtx.LineNumber = line.LineNumber

	var lastErr error
	for attempt := 0; attempt <= p.opts.LineRetries; attempt++ {
		finding, err := p.clf.Classify(ctx, line.Content, lineCtx)
		if err == nil {
			return finding, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, lastErr
}

func (p *Processor) buildLineContext(targetID int64) classifier.LineContext {
	file, err := p.fileRepo.GetByID(targetID)
	if err != nil {
		return classifier.LineContext{}
	}
	return classifier.LineContext{
		SourceSystem: file.SourceSystem,
		Filename:     file.Filename,
	}
}
