package document

import (
	"context"

	"github.com/feichai0017/certificate-processor/internal/models"
)

// Processor extracts text from one kind of document.
type Processor interface {
	// CanProcess reports whether the processor handles kind.
	CanProcess(kind models.DocumentKind) bool

	// Process runs OCR on the handle and returns ordered text chunks.
	Process(ctx context.Context, h *models.DocumentHandle) ([]models.DocumentChunk, error)

	// Close releases engine resources.
	Close() error
}
