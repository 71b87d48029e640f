// Command sweep runs a single publication sweep over due scheduled posts and
// exits. It is meant for cron-style deployments where the server's built-in
// scheduler is disabled.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"murmur/internal/cache"
	"murmur/internal/config"
	"murmur/internal/database"
	"murmur/internal/middleware"
	"murmur/internal/notifications"
	"murmur/internal/repository"
	"murmur/internal/scheduler"
	"murmur/internal/service"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	middleware.ConfigureLogger(cfg.Env, cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() { _ = database.Close(db) }()

	rdb := cache.Connect(cfg.RedisURL)
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	publisher := service.NewPublisher(
		repository.NewScheduledPostRepository(db),
		cache.New(rdb),
		notifications.NewNotifier(rdb),
		service.PublisherOptions{BatchSize: cfg.SchedulerBatchSize},
	)

	var res service.SweepResult
	var sweepErr error
	job, err := scheduler.New(cfg.SchedulerInterval, func(ctx context.Context) {
		res, sweepErr = publisher.PublishDue(ctx)
	}, scheduler.WithName("sweep-once"), scheduler.WithTimeout(cfg.SchedulerSweepTimeout))
	if err != nil {
		log.Fatalf("Failed to build sweep: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	job.RunOnce(ctx)

	if sweepErr != nil {
		log.Fatalf("Sweep failed: %v", sweepErr)
	}
	log.Printf("due=%d published=%d skipped=%d failed=%d deferred=%d took=%s",
		res.Due, res.Published, res.Skipped, res.Failed, res.Deferred, res.Duration)
	if res.Failed > 0 {
		os.Exit(1)
	}
}
