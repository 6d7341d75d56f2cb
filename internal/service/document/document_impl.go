package document

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/service/pipeline"
	"github.com/feichai0017/certificate-processor/internal/utils/validator"
	"github.com/feichai0017/certificate-processor/pkg/logger"
	"github.com/feichai0017/certificate-processor/pkg/queue"
	"github.com/feichai0017/certificate-processor/pkg/storage"
)

// ArchivePrefix scopes uploaded documents inside the archive bucket.
const ArchivePrefix = "uploads/"

var (
	ErrInvalidFile = errors.New("invalid file")
	ErrTaskUnknown = errors.New("unknown task")
)

type DocumentService struct {
	pipeline Submitter
	queue    queue.Queue
	storage  storage.Storage
	logger   logger.Logger
	config   *ServiceConfig
}

type ServiceConfig struct {
	MaxFileSize     int64
	AllowedTypes    map[string][]string // extension -> MIME types
	QueuePriority   int
	MaxConcurrent   int
	RetentionPeriod time.Duration
}

func DefaultServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		MaxFileSize:     20 * 1024 * 1024,
		AllowedTypes:    validator.DefaultAllowedTypes(),
		QueuePriority:   2,
		MaxConcurrent:   5,
		RetentionPeriod: 24 * time.Hour,
	}
}

func NewService(
	p Submitter,
	q queue.Queue,
	store storage.Storage,
	log logger.Logger,
	cfg *ServiceConfig,
) *DocumentService {
	if cfg == nil {
		cfg = DefaultServiceConfig()
	}
	if len(cfg.AllowedTypes) == 0 {
		cfg.AllowedTypes = validator.DefaultAllowedTypes()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	return &DocumentService{
		pipeline: p,
		queue:    q,
		storage:  store,
		logger:   log.Named("document_service"),
		config:   cfg,
	}
}

// SubmitFile archives an upload and queues its run.
func (s *DocumentService) SubmitFile(
	ctx context.Context,
	studentID string,
	file io.Reader,
	header *multipart.FileHeader,
) (*models.ProcessingTask, error) {
	if strings.TrimSpace(studentID) == "" {
		return nil, fmt.Errorf("%w: student_id is required", ErrInvalidFile)
	}
	if err := s.validateFile(header); err != nil {
		s.logger.Warn("File validation failed", logger.Error(err))
		return nil, err
	}

	taskID := uuid.NewString()
	filename := filepath.Base(header.Filename)
	key := path.Join(strings.TrimSuffix(ArchivePrefix, "/"), taskID, filename)

	if _, err := s.storage.Store(ctx, file, key); err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	task, err := s.enqueue(ctx, taskID, queue.TaskTypeCertificateUpload, queue.CertificatePayload{
		StudentID:  studentID,
		ArchiveKey: key,
		Filename:   filename,
	}, map[string]string{
		"filename": filename,
		"size":     fmt.Sprintf("%d", header.Size),
		"type":     strings.ToLower(filepath.Ext(filename)),
	})
	if err != nil {
		if delErr := s.storage.Delete(ctx, key); delErr != nil {
			s.logger.Warn("Failed to remove orphaned upload", logger.String("key", key), logger.Error(delErr))
		}
		return nil, err
	}
	return task, nil
}

// SubmitURL queues a run that fetches documentURL inside the worker.
func (s *DocumentService) SubmitURL(ctx context.Context, studentID, documentURL string) (*models.ProcessingTask, error) {
	if strings.TrimSpace(studentID) == "" || strings.TrimSpace(documentURL) == "" {
		return nil, fmt.Errorf("%w: student_id and document_url are required", ErrInvalidFile)
	}
	return s.enqueue(ctx, uuid.NewString(), queue.TaskTypeCertificateURL, queue.CertificatePayload{
		StudentID:   studentID,
		DocumentURL: documentURL,
	}, map[string]string{"documentUrl": documentURL})
}

func (s *DocumentService) enqueue(ctx context.Context, taskID, taskType string, payload queue.CertificatePayload, metadata map[string]string) (*models.ProcessingTask, error) {
	now := time.Now()
	qt := &queue.Task{
		ID:        taskID,
		Type:      taskType,
		Priority:  s.config.QueuePriority,
		Payload:   payload,
		Metadata:  metadata,
		CreatedAt: now,
	}
	if err := s.queue.Enqueue(ctx, qt); err != nil {
		s.logger.Error("Failed to enqueue task",
			logger.String("taskId", taskID),
			logger.Error(err),
		)
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}

	s.logger.Info("Certificate task created",
		logger.String("taskId", qt.ID),
		logger.String("type", taskType),
		logger.String("studentId", payload.StudentID),
	)
	return &models.ProcessingTask{
		ID:        qt.ID,
		Status:    models.StatusPending,
		Type:      taskType,
		Priority:  qt.Priority,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SubmitBatch archives and queues every file concurrently. Tasks created
// before a failure are returned with the error.
func (s *DocumentService) SubmitBatch(ctx context.Context, studentID string, files []*multipart.FileHeader) ([]*models.ProcessingTask, error) {
	tasks := make([]*models.ProcessingTask, 0, len(files))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.MaxConcurrent)

	for _, header := range files {
		header := header
		g.Go(func() error {
			file, err := header.Open()
			if err != nil {
				return fmt.Errorf("failed to open file %s: %w", header.Filename, err)
			}
			defer file.Close()

			task, err := s.SubmitFile(ctx, studentID, file, header)
			if err != nil {
				return fmt.Errorf("failed to submit file %s: %w", header.Filename, err)
			}

			mu.Lock()
			tasks = append(tasks, task)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return tasks, err
	}
	return tasks, nil
}

// HandleDocument runs the pipeline for a queued task and records the
// outcome. The returned error is the pipeline's StageError, if any.
func (s *DocumentService) HandleDocument(ctx context.Context, task *queue.Task) error {
	if task == nil || task.Payload.StudentID == "" {
		return fmt.Errorf("invalid task: missing required data")
	}
	log := s.logger.With(logger.String("taskId", task.ID), logger.String("studentId", task.Payload.StudentID))

	started := time.Now()
	s.saveStatus(ctx, log, &queue.TaskStatus{
		TaskID:    task.ID,
		StudentID: task.Payload.StudentID,
		Status:    models.StatusRunning,
		Progress:  0.1,
		StartedAt: started,
	})

	var (
		result *models.ProcessingResult
		err    error
	)
	switch task.Type {
	case queue.TaskTypeCertificateUpload:
		result, err = s.runUpload(ctx, task)
	case queue.TaskTypeCertificateURL:
		result, err = s.pipeline.SubmitURL(ctx, task.Payload.StudentID, task.Payload.DocumentURL)
	default:
		err = fmt.Errorf("unsupported task type: %s", task.Type)
	}

	final := &queue.TaskStatus{
		TaskID:     task.ID,
		StudentID:  task.Payload.StudentID,
		Status:     models.StatusCompleted,
		Progress:   1.0,
		Result:     result,
		StartedAt:  started,
		FinishedAt: time.Now(),
	}
	if err != nil {
		final.Status = models.StatusFailed
		final.ErrorCode = string(pipeline.CodeOf(err))
		final.Error = pipeline.MessageOf(err)
	}
	s.saveStatus(ctx, log, final)

	if err != nil {
		log.Warn("Certificate task failed", logger.Error(err))
		return err
	}
	log.Info("Certificate task completed", logger.Duration("duration", time.Since(started)))
	return nil
}

func (s *DocumentService) runUpload(ctx context.Context, task *queue.Task) (*models.ProcessingResult, error) {
	key := task.Payload.ArchiveKey
	reader, err := s.storage.Get(ctx, key)
	if err != nil {
		return nil, pipeline.NewStageError(pipeline.CodeAcquisitionFailed, pipeline.StageAcquire, "archived upload is unavailable", err)
	}
	defer reader.Close()
	defer func() {
		if err := s.storage.Delete(context.WithoutCancel(ctx), key); err != nil {
			s.logger.Warn("Failed to delete archived upload", logger.String("key", key), logger.Error(err))
		}
	}()

	return s.pipeline.SubmitUpload(ctx, task.Payload.StudentID, reader, task.Payload.Filename)
}

func (s *DocumentService) saveStatus(ctx context.Context, log logger.Logger, status *queue.TaskStatus) {
	if err := s.queue.SaveStatus(ctx, status); err != nil {
		log.Error("Failed to save task status",
			logger.String("status", string(status.Status)),
			logger.Error(err),
		)
	}
}

func (s *DocumentService) GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error) {
	status, err := s.queue.GetTaskStatus(ctx, taskID)
	if errors.Is(err, queue.ErrTaskNotFound) {
		return nil, ErrTaskUnknown
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task status: %w", err)
	}

	metadata := map[string]string{}
	if status.StudentID != "" {
		metadata["studentId"] = status.StudentID
	}
	if status.ErrorCode != "" {
		metadata["errorCode"] = status.ErrorCode
	}
	return &models.ProcessingTask{
		ID:        status.TaskID,
		Status:    status.Status,
		Progress:  status.Progress,
		Error:     status.Error,
		Metadata:  metadata,
		Result:    status.Result,
		CreatedAt: status.StartedAt,
		UpdatedAt: status.FinishedAt,
	}, nil
}

func (s *DocumentService) CancelTask(ctx context.Context, taskID string) error {
	if err := s.queue.CancelTask(ctx, taskID); err != nil {
		if errors.Is(err, queue.ErrTaskNotFound) {
			return ErrTaskUnknown
		}
		return fmt.Errorf("failed to cancel task: %w", err)
	}
	s.logger.Info("Task cancelled", logger.String("taskId", taskID))
	return nil
}

// CleanupArchive removes archived uploads older than the retention period.
// Uploads are normally deleted after their run; this catches runs that never
// happened.
func (s *DocumentService) CleanupArchive(ctx context.Context) (int, error) {
	threshold := time.Now().Add(-s.config.RetentionPeriod)

	removed, err := s.storage.CleanupBefore(ctx, ArchivePrefix, threshold)
	if err != nil {
		return removed, fmt.Errorf("failed to cleanup storage: %w", err)
	}

	s.logger.Info("Archive cleanup finished",
		logger.Time("threshold", threshold),
		logger.Int("removed", removed),
	)
	return removed, nil
}

func (s *DocumentService) validateFile(header *multipart.FileHeader) error {
	if header == nil || header.Filename == "" {
		return fmt.Errorf("%w: no file provided", ErrInvalidFile)
	}
	if header.Size <= 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidFile)
	}
	if header.Size > s.config.MaxFileSize {
		return fmt.Errorf("%w: file size exceeds maximum limit of %d bytes", ErrInvalidFile, s.config.MaxFileSize)
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if _, ok := s.config.AllowedTypes[ext]; !ok {
		return fmt.Errorf("%w: unsupported file type: %s", ErrInvalidFile, ext)
	}
	return nil
}
