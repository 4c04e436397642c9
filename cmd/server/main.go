package main

import (
	"fmt"
	"log"

	"github.com/opensoc/soc_log_server/config"
	"github.com/opensoc/soc_log_server/internal/api"
	"github.com/opensoc/soc_log_server/internal/api/handler"
	"github.com/opensoc/soc_log_server/internal/database"
	"github.com/opensoc/soc_log_server/internal/pkg/cron"
	"github.com/opensoc/soc_log_server/internal/pkg/pubsub"
	"github.com/opensoc/soc_log_server/internal/pkg/queue"
	"github.com/opensoc/soc_log_server/internal/repository"
	"github.com/opensoc/soc_log_server/internal/service"
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
	if err := database.AutoMigrate(db); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}
	log.Println("Database connected")

	// 初始化 Redis
	rdb, err := database.NewRedis(&cfg.Redis)
	if err != nil {
		log.Fatalf("Failed to connect redis: %v", err)
	}
	log.Println("Redis connected")

	// 初始化 Queue 和 Pub/Sub
	jobQueue := queue.NewQueue(rdb, cfg.Queue.AnalysisQueue)
	publisher := pubsub.NewPublisher(rdb)

	// 初始化 Repository
	jobRepo := repository.NewJobRepository(db)
	lineRepo := repository.NewLogLineRepository(db)
	fileRepo := repository.NewLogFileRepository(db)

	// 初始化 Service
	analysisService := service.NewAnalysisService(jobRepo, lineRepo, fileRepo, jobQueue, publisher, cfg)

	// 启动保留策略
	cronService := cron.NewService(jobRepo, cfg.Retention.JobRetentionDays, cfg.Retention.StaleJobHours)
	cronService.Start()
	defer cronService.Stop()

	// 初始化路由
	analysisHandler := handler.NewAnalysisHandler(analysisService)
	router := api.NewRouter(analysisHandler, cfg)
	engine := router.Setup()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	log.Printf("Server starting on %s", addr)
	if err := engine.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
