// Package worker runs queued certificate tasks on an asynq server.
package worker

import (
	"context"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type Worker interface {
	Start(ctx context.Context) error
	Stop() error
}

type Config struct {
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	Concurrency   int
	Queues        map[string]int
	// CleanupSchedule is a cron spec or "@every <duration>". Empty disables
	// the periodic archive cleanup.
	CleanupSchedule string
}

func (c *Config) redisOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{Addr: c.RedisAddr, DB: c.RedisDB, Password: c.RedisPassword}
}

type BaseWorker struct {
	server    *asynq.Server
	scheduler *asynq.Scheduler
	mux       *asynq.ServeMux
	logger    logger.Logger
	stopChan  chan struct{}
}

func (w *BaseWorker) Stop() error {
	select {
	case <-w.stopChan:
		return nil
	default:
	}
	close(w.stopChan)
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return nil
}
