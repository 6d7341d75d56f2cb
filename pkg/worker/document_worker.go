package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/feichai0017/certificate-processor/pkg/logger"
	"github.com/feichai0017/certificate-processor/pkg/queue"
)

// TaskHandler is the part of the certificate service the worker drives.
type TaskHandler interface {
	HandleDocument(ctx context.Context, task *queue.Task) error
	CleanupArchive(ctx context.Context) (int, error)
}

type DocumentWorker struct {
	BaseWorker
	handler TaskHandler
	cfg     *Config
}

func NewDocumentWorker(cfg *Config, handler TaskHandler, log logger.Logger) (*DocumentWorker, error) {
	server := asynq.NewServer(
		cfg.redisOpt(),
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues:      cfg.Queues,
		},
	)

	w := &DocumentWorker{
		BaseWorker: BaseWorker{
			server:   server,
			mux:      asynq.NewServeMux(),
			logger:   log.Named("worker"),
			stopChan: make(chan struct{}),
		},
		handler: handler,
		cfg:     cfg,
	}

	if cfg.CleanupSchedule != "" {
		w.scheduler = asynq.NewScheduler(cfg.redisOpt(), nil)
		entryID, err := w.scheduler.Register(
			cfg.CleanupSchedule,
			asynq.NewTask(queue.TaskTypeArchiveCleanup, nil),
			asynq.Queue(queue.QueueLow),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to register cleanup schedule: %w", err)
		}
		w.logger.Info("Archive cleanup scheduled",
			logger.String("schedule", cfg.CleanupSchedule),
			logger.String("entryId", entryID),
		)
	}

	w.registerHandlers()
	return w, nil
}

func (w *DocumentWorker) registerHandlers() {
	w.mux.HandleFunc(queue.TaskTypeCertificateUpload, w.handleCertificate)
	w.mux.HandleFunc(queue.TaskTypeCertificateURL, w.handleCertificate)
	w.mux.HandleFunc(queue.TaskTypeArchiveCleanup, w.handleCleanup)
}

func (w *DocumentWorker) handleCertificate(ctx context.Context, t *asynq.Task) error {
	var task queue.Task
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		w.logger.Error("Failed to unmarshal task",
			logger.Error(err),
			logger.String("payload", string(t.Payload())),
		)
		return fmt.Errorf("failed to unmarshal task: %w: %v", asynq.SkipRetry, err)
	}

	if task.ID == "" || task.Payload.StudentID == "" {
		w.logger.Error("Invalid task data",
			logger.String("taskId", task.ID),
			logger.Any("metadata", task.Metadata),
		)
		return fmt.Errorf("invalid task data: %w", asynq.SkipRetry)
	}

	w.logger.Info("Processing certificate task",
		logger.String("taskId", task.ID),
		logger.String("type", t.Type()),
		logger.String("studentId", task.Payload.StudentID),
	)

	ctx = logger.ContextWithRequestID(ctx, task.ID)
	ctx = logger.ContextWithStudentID(ctx, task.Payload.StudentID)

	if err := w.handler.HandleDocument(ctx, &task); err != nil {
		if rw := t.ResultWriter(); rw != nil {
			if _, writeErr := rw.Write([]byte(fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error()))); writeErr != nil {
				w.logger.Error("Failed to write task failure", logger.Error(writeErr))
			}
		}
		// the run already merged whatever it could; a retry would append twice
		return fmt.Errorf("%w: %v", asynq.SkipRetry, err)
	}

	if rw := t.ResultWriter(); rw != nil {
		if _, err := rw.Write([]byte(`{"status":"completed","progress":100}`)); err != nil {
			w.logger.Error("Failed to write task completion", logger.Error(err))
		}
	}
	return nil
}

func (w *DocumentWorker) handleCleanup(ctx context.Context, _ *asynq.Task) error {
	removed, err := w.handler.CleanupArchive(ctx)
	if err != nil {
		w.logger.Error("Archive cleanup failed", logger.Error(err))
		return err
	}
	w.logger.Debug("Archive cleanup done", logger.Int("removed", removed))
	return nil
}

func (w *DocumentWorker) Start(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return fmt.Errorf("failed to start worker server: %w", err)
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			_ = w.Stop()
		case <-w.stopChan:
		}
	}()

	return nil
}
