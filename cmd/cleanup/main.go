package main

import (
	"flag"
	"log"
	"os"
	"time"

	"github.com/opensoc/soc_log_server/config"
	"github.com/opensoc/soc_log_server/internal/database"
	"github.com/opensoc/soc_log_server/internal/model"
	"github.com/opensoc/soc_log_server/internal/repository"
)

var (
	dryRun        = flag.Bool("dry-run", true, "Dry run mode, don't actually delete anything")
	retentionDays = flag.Int("retention-days", 0, "Days to keep terminal jobs (0 = use config)")
	reapStale     = flag.Bool("reap-stale", true, "Mark stalled running jobs as error")
)

func main() {
	flag.Parse()

	log.Println("Starting cleanup task...")
	log.Printf("Mode: dry-run=%v", *dryRun)

	// 加载配置
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewMySQL(&cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	jobRepo := repository.NewJobRepository(db)

	days := *retentionDays
	if days <= 0 {
		days = cfg.Retention.JobRetentionDays
	}
	cutoff := time.Now().AddDate(0, 0, -days)

	// 1. 清理过期终态任务
	log.Printf("Cleaning terminal jobs older than %d days (before %s)...", days, cutoff.Format(time.RFC3339))
	if *dryRun {
		log.Println("Dry run: skipping delete")
	} else {
		deleted, err := jobRepo.DeleteTerminalBefore(cutoff)
		if err != nil {
			log.Fatalf("Failed to delete terminal jobs: %v", err)
		}
		log.Printf("Deleted %d terminal jobs", deleted)
	}

	// 2. 回收失联的 running 任务
	if *reapStale {
		staleCutoff := time.Now().Add(-time.Duration(cfg.Retention.StaleJobHours) * time.Hour)
		stale, err := jobRepo.ListStaleRunning(staleCutoff)
		if err != nil {
			log.Fatalf("Failed to list stale jobs: %v", err)
		}
		log.Printf("Found %d stalled running jobs (no update since %s)", len(stale), staleCutoff.Format(time.RFC3339))

		for _, job := range stale {
			if *dryRun {
				log.Printf("Dry run: would mark job %d as error", job.ID)
				continue
			}
			err := jobRepo.MarkTerminal(job.ID, model.JobStatusError,
				"job stalled: no checkpoint update, worker presumed dead")
			if err != nil {
				log.Printf("Failed to reap job %d: %v", job.ID, err)
				continue
			}
			log.Printf("Job %d marked as error", job.ID)
		}
	}

	log.Println("Cleanup complete")
}
