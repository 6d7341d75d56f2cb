// Package queue enqueues certificate runs on asynq and keeps their status in
// redis.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/feichai0017/certificate-processor/internal/models"
)

const (
	TaskTypeCertificateUpload = "certificate:upload"
	TaskTypeCertificateURL    = "certificate:url"
	TaskTypeArchiveCleanup    = "archive:cleanup"
)

// Queue names, highest weight first.
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

var queueNames = []string{QueueCritical, QueueDefault, QueueLow}

// ErrTaskNotFound is returned when neither redis nor asynq knows a task.
var ErrTaskNotFound = errors.New("task not found")

type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error)
	CancelTask(ctx context.Context, taskID string) error
	SaveStatus(ctx context.Context, status *TaskStatus) error
}

// Task is what the worker receives.
type Task struct {
	ID        string             `json:"id"`
	Type      string             `json:"type"`
	Priority  int                `json:"priority"`
	Payload   CertificatePayload `json:"payload"`
	Metadata  map[string]string  `json:"metadata,omitempty"`
	CreatedAt time.Time          `json:"createdAt"`
}

// CertificatePayload identifies the document of an asynchronous run. Uploads
// carry an archive key; URL runs carry the URL.
type CertificatePayload struct {
	StudentID   string `json:"studentId"`
	ArchiveKey  string `json:"archiveKey,omitempty"`
	Filename    string `json:"filename,omitempty"`
	DocumentURL string `json:"documentUrl,omitempty"`
}

// TaskStatus is stored in redis for StatusTTL.
type TaskStatus struct {
	TaskID     string                   `json:"taskId"`
	StudentID  string                   `json:"studentId,omitempty"`
	Status     models.ProcessingStatus  `json:"status"`
	Progress   float64                  `json:"progress"`
	ErrorCode  string                   `json:"errorCode,omitempty"`
	Error      string                   `json:"error,omitempty"`
	Result     *models.ProcessingResult `json:"result,omitempty"`
	StartedAt  time.Time                `json:"startedAt"`
	FinishedAt time.Time                `json:"finishedAt,omitempty"`
}

type Config struct {
	RedisAddr     string
	RedisDB       int
	RedisPassword string
	// TaskTimeout bounds one run inside the worker.
	TaskTimeout time.Duration
	StatusTTL   time.Duration
}

type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	redis     *redis.Client
	cfg       Config
}

func RedisOpt(cfg Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		DB:       cfg.RedisDB,
		Password: cfg.RedisPassword,
	}
}

func NewAsynqQueue(cfg Config, redisClient *redis.Client) *AsynqQueue {
	if cfg.TaskTimeout <= 0 {
		cfg.TaskTimeout = 10 * time.Minute
	}
	if cfg.StatusTTL <= 0 {
		cfg.StatusTTL = 24 * time.Hour
	}
	return &AsynqQueue{
		client:    asynq.NewClient(RedisOpt(cfg)),
		inspector: asynq.NewInspector(RedisOpt(cfg)),
		redis:     redisClient,
		cfg:       cfg,
	}
}

// Enqueue submits task and records it as pending. Certificate runs are not
// retried: a second merge would duplicate the certificate history.
func (q *AsynqQueue) Enqueue(ctx context.Context, task *Task) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	opts := []asynq.Option{
		asynq.MaxRetry(0),
		asynq.Timeout(q.cfg.TaskTimeout),
		asynq.Queue(QueueForPriority(task.Priority)),
		asynq.Retention(q.cfg.StatusTTL),
	}
	if task.ID != "" {
		opts = append(opts, asynq.TaskID(task.ID))
	}

	info, err := q.client.EnqueueContext(ctx, asynq.NewTask(task.Type, payload), opts...)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}
	task.ID = info.ID

	return q.SaveStatus(ctx, &TaskStatus{
		TaskID:    task.ID,
		StudentID: task.Payload.StudentID,
		Status:    models.StatusPending,
		StartedAt: task.CreatedAt,
	})
}

// QueueForPriority maps 1 to critical, 2 to default and anything else to low.
func QueueForPriority(p int) string {
	switch p {
	case 1:
		return QueueCritical
	case 2:
		return QueueDefault
	default:
		return QueueLow
	}
}

// GetTaskStatus prefers the status saved by the worker and falls back to
// asynq's own view of the task.
func (q *AsynqQueue) GetTaskStatus(ctx context.Context, taskID string) (*TaskStatus, error) {
	data, err := q.redis.Get(ctx, statusKey(taskID)).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get status from redis: %w", err)
	}
	if err == nil {
		var status TaskStatus
		if err := json.Unmarshal(data, &status); err != nil {
			return nil, fmt.Errorf("failed to unmarshal status: %w", err)
		}
		return &status, nil
	}

	for _, name := range queueNames {
		info, err := q.inspector.GetTaskInfo(name, taskID)
		if err == nil {
			return convertAsynqStatus(info), nil
		}
	}
	return nil, ErrTaskNotFound
}

// CancelTask deletes a task that has not started and marks it cancelled.
func (q *AsynqQueue) CancelTask(ctx context.Context, taskID string) error {
	var lastErr error
	for _, name := range queueNames {
		err := q.inspector.DeleteTask(name, taskID)
		if err == nil {
			return q.SaveStatus(ctx, &TaskStatus{
				TaskID:     taskID,
				Status:     models.StatusCancelled,
				FinishedAt: time.Now(),
			})
		}
		lastErr = err
	}
	if errors.Is(lastErr, asynq.ErrTaskNotFound) {
		return ErrTaskNotFound
	}
	return fmt.Errorf("failed to cancel task: %w", lastErr)
}

func (q *AsynqQueue) SaveStatus(ctx context.Context, status *TaskStatus) error {
	data, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("failed to marshal status: %w", err)
	}
	if err := q.redis.Set(ctx, statusKey(status.TaskID), data, q.cfg.StatusTTL).Err(); err != nil {
		return fmt.Errorf("failed to save status: %w", err)
	}
	return nil
}

func (q *AsynqQueue) Close() error {
	if err := q.inspector.Close(); err != nil {
		return err
	}
	return q.client.Close()
}

func statusKey(taskID string) string {
	return fmt.Sprintf("task_status:%s", taskID)
}

func convertAsynqStatus(info *asynq.TaskInfo) *TaskStatus {
	status := &TaskStatus{
		TaskID:    info.ID,
		StartedAt: info.NextProcessAt,
	}

	var task Task
	if err := json.Unmarshal(info.Payload, &task); err == nil {
		status.StudentID = task.Payload.StudentID
	}

	switch info.State {
	case asynq.TaskStatePending, asynq.TaskStateScheduled:
		status.Status = models.StatusPending
	case asynq.TaskStateActive:
		status.Status = models.StatusRunning
		status.Progress = 0.5
	case asynq.TaskStateCompleted:
		status.Status = models.StatusCompleted
		status.Progress = 1.0
		status.FinishedAt = info.CompletedAt
	default:
		status.Status = models.StatusFailed
		status.Error = info.LastErr
	}
	return status
}
