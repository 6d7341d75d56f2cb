package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/feichai0017/certificate-processor/config"
	"github.com/feichai0017/certificate-processor/internal/app"
	"github.com/feichai0017/certificate-processor/pkg/logger"
	"github.com/feichai0017/certificate-processor/pkg/worker"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}

	log, err := app.NewLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Error("Failed to initialise services", logger.Error(err))
		os.Exit(1)
	}
	defer a.Close(context.Background())

	if a.Documents == nil {
		log.Error("The worker needs an archive bucket (archive.bucket)")
		os.Exit(1)
	}

	workerCfg := &worker.Config{
		RedisAddr:       cfg.Redis.Addr,
		RedisDB:         cfg.Redis.DB,
		RedisPassword:   cfg.Redis.Password,
		Concurrency:     cfg.Worker.Concurrency,
		Queues:          cfg.Worker.Queues,
		CleanupSchedule: cfg.Worker.CleanupSchedule,
	}

	documentWorker, err := worker.NewDocumentWorker(workerCfg, a.Documents, log)
	if err != nil {
		log.Error("Failed to create document worker", logger.Error(err))
		os.Exit(1)
	}

	if err := documentWorker.Start(ctx); err != nil {
		log.Error("Failed to start worker", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Worker started", logger.Int("concurrency", cfg.Worker.Concurrency))

	<-ctx.Done()

	log.Info("Shutting down worker...")
	_ = documentWorker.Stop()
	log.Info("Worker stopped")
}
