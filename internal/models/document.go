package models

import (
	"time"
)

// DocumentKind selects the OCR strategy for a document.
type DocumentKind string

const (
	KindImage             DocumentKind = "image"
	KindPaginatedDocument DocumentKind = "paginated_document"
)

// DocumentHandle is a locally addressable copy of a submitted document. It is
// owned by a single pipeline run and removed when the run ends.
type DocumentHandle struct {
	Path             string       `json:"path"`
	OriginalFilename string       `json:"originalFilename"`
	Kind             DocumentKind `json:"kind"`
	MimeType         string       `json:"mimeType"`
	Size             int64        `json:"size"`
	SourceURL        string       `json:"sourceUrl,omitempty"`
}

// DocumentChunk is a unit of OCR output (a page or an image region).
type DocumentChunk struct {
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

type ProcessingTask struct {
	ID        string            `json:"id"`
	Status    ProcessingStatus  `json:"status"`
	Type      string            `json:"type"`
	Priority  int               `json:"priority"`
	Progress  float64           `json:"progress"`
	Error     string            `json:"error,omitempty"`
	Metadata  map[string]string `json:"metadata"`
	Result    *ProcessingResult `json:"result,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt,omitempty"`
}

type ProcessingStatus string

const (
	StatusPending   ProcessingStatus = "pending"
	StatusRunning   ProcessingStatus = "running"
	StatusCompleted ProcessingStatus = "completed"
	StatusFailed    ProcessingStatus = "failed"
	StatusCancelled ProcessingStatus = "cancelled"
)
