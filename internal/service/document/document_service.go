// Package document runs certificate submissions asynchronously: uploads are
// archived to object storage, queued, and processed by the worker.
package document

import (
	"context"
	"io"
	"mime/multipart"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/queue"
)

type DocumentProcessor interface {
	SubmitFile(ctx context.Context, studentID string, file io.Reader, header *multipart.FileHeader) (*models.ProcessingTask, error)
	SubmitURL(ctx context.Context, studentID, documentURL string) (*models.ProcessingTask, error)
	SubmitBatch(ctx context.Context, studentID string, files []*multipart.FileHeader) ([]*models.ProcessingTask, error)
	HandleDocument(ctx context.Context, task *queue.Task) error
	GetProcessingStatus(ctx context.Context, taskID string) (*models.ProcessingTask, error)
	CancelTask(ctx context.Context, taskID string) error
	CleanupArchive(ctx context.Context) (int, error)
}

// Submitter is the synchronous pipeline the worker drives.
type Submitter interface {
	SubmitUpload(ctx context.Context, studentID string, r io.Reader, filename string) (*models.ProcessingResult, error)
	SubmitURL(ctx context.Context, studentID, documentURL string) (*models.ProcessingResult, error)
}
