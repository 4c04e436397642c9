package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/opensoc/soc_log_server/config"
	"github.com/opensoc/soc_log_server/internal/alerting"
	"github.com/opensoc/soc_log_server/internal/classifier"
	"github.com/opensoc/soc_log_server/internal/database"
	"github.com/opensoc/soc_log_server/internal/engine"
	"github.com/opensoc/soc_log_server/internal/pkg/pubsub"
	"github.com/opensoc/soc_log_server/internal/pkg/queue"
	"github.com/opensoc/soc_log_server/internal/repository"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化数据库
	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化分类器
	clf, err := classifier.NewOpenAIClassifier(
		cfg.Engine.ClassifierAPIKey,
		cfg.Engine.ClassifierModel,
		cfg.Engine.ClassifierTimeoutDuration(),
	)
	if err != nil {
		log.Fatalf("Failed to init classifier: %v", err)
	}

	// 初始化 Queue 和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	lineRepo := repository.NewLogLineRepository(db)
	fileRepo := repository.NewLogFileRepository(db)
	alertRepo := repository.NewAlertRepository(db)

	// 创建批处理器
	sink := alerting.NewSink(alertRepo)
	emitter := engine.NewAlertEmitter(lineRepo, sink)
	processor := engine.NewProcessor(jobRepo, lineRepo, fileRepo, clf, emitter, publisher, engine.Options{
		LineRetries:          cfg.Engine.LineRetries,
		MaxConsecutiveErrors: cfg.Engine.MaxConsecutiveErrors,
	})

	// 创建 context 用于优雅关闭
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听退出信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal")
		cancel()
	}()

	log.Printf("Worker started, max workers: %d", cfg.Queue.MaxWorkers)

	// 启动 worker 循环
	var wg sync.WaitGroup
	for i := 0; i < cfg.Queue.MaxWorkers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					log.Printf("Worker %d shutting down", workerID)
					return
				default:
					// 从队列获取任务
					msg, err := jobQueue.Pop(ctx, 5*time.Second)
					if err != nil {
						if ctx.Err() != nil {
							return
						}
						log.Printf("Worker %d: failed to pop job: %v", workerID, err)
						continue
					}

					if msg == nil {
						continue // 超时，继续等待
					}

					log.Printf("Worker %d: processing job %d", workerID, msg.JobID)
					if err := processor.Run(ctx, msg.JobID); err != nil {
						if errors.Is(err, repository.ErrClaimConflict) {
							// 任务已被其他 worker 认领或已终止
							log.Printf("Worker %d: job %d already claimed, skipping", workerID, msg.JobID)
							continue
						}
						log.Printf("Worker %d: job %d failed: %v", workerID, msg.JobID, err)
					}
				}
			}
		}(i)
	}

	// 等待 context 取消和 worker 退出
	<-ctx.Done()
	wg.Wait()
	log.Println("Worker shutdown complete")
}
