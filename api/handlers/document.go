package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/certificate-processor/internal/service/document"
	"github.com/feichai0017/certificate-processor/internal/service/pipeline"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// DocumentHandler serves the queued variants of certificate submission.
type DocumentHandler struct {
	service document.DocumentProcessor
	logger  logger.Logger
}

// TaskResponse describes a queued task.
type TaskResponse struct {
	TaskID    string `json:"taskId"`
	Status    string `json:"status"`
	Filename  string `json:"filename,omitempty"`
	FileSize  int64  `json:"fileSize,omitempty"`
	FileType  string `json:"fileType,omitempty"`
	CreatedAt string `json:"createdAt"`
}

func NewDocumentHandler(service document.DocumentProcessor, log logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		service: service,
		logger:  log.Named("document_handler"),
	}
}

// SubmitAsync archives one upload and queues it.
func (h *DocumentHandler) SubmitAsync(c *gin.Context) {
	studentID := c.PostForm("student_id")
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		abort(c, h.logger, pipeline.CodeInvalidInput, "file is required", err)
		return
	}
	defer file.Close()

	task, err := h.service.SubmitFile(c.Request.Context(), studentID, file, header)
	if err != nil {
		h.handleError(c, "Failed to queue certificate", err)
		return
	}

	c.JSON(http.StatusAccepted, TaskResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		Filename:  header.Filename,
		FileSize:  header.Size,
		FileType:  filepath.Ext(header.Filename),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

// SubmitAsyncURL queues a URL run.
func (h *DocumentHandler) SubmitAsyncURL(c *gin.Context) {
	var req URLRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abort(c, h.logger, pipeline.CodeInvalidInput, "invalid request body", err)
		return
	}

	task, err := h.service.SubmitURL(c.Request.Context(), req.StudentID, req.DocumentURL)
	if err != nil {
		h.handleError(c, "Failed to queue certificate", err)
		return
	}

	c.JSON(http.StatusAccepted, TaskResponse{
		TaskID:    task.ID,
		Status:    string(task.Status),
		CreatedAt: task.CreatedAt.Format(time.RFC3339),
	})
}

// SubmitBatch queues every file of a multipart "files" field for one student.
func (h *DocumentHandler) SubmitBatch(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		abort(c, h.logger, pipeline.CodeInvalidInput, "Invalid form data", err)
		return
	}

	files := form.File["files"]
	if len(files) == 0 {
		abort(c, h.logger, pipeline.CodeInvalidInput, "No files provided", nil)
		return
	}
	studentID := c.PostForm("student_id")

	tasks, err := h.service.SubmitBatch(c.Request.Context(), studentID, files)
	if err != nil && len(tasks) == 0 {
		h.handleError(c, "Failed to queue files", err)
		return
	}

	responses := make([]TaskResponse, len(tasks))
	for i, task := range tasks {
		responses[i] = TaskResponse{
			TaskID:    task.ID,
			Status:    string(task.Status),
			Filename:  task.Metadata["filename"],
			FileType:  task.Metadata["type"],
			CreatedAt: task.CreatedAt.Format(time.RFC3339),
		}
	}

	body := gin.H{
		"message": fmt.Sprintf("Queued %d of %d documents", len(tasks), len(files)),
		"tasks":   responses,
	}
	if err != nil {
		body["error"] = err.Error()
	}
	c.JSON(http.StatusAccepted, body)
}

func (h *DocumentHandler) GetStatus(c *gin.Context) {
	taskID := c.Param("taskId")

	task, err := h.service.GetProcessingStatus(c.Request.Context(), taskID)
	if err != nil {
		h.handleError(c, "Failed to get status", err)
		return
	}

	body := gin.H{
		"taskId":    task.ID,
		"status":    string(task.Status),
		"progress":  task.Progress,
		"error":     task.Error,
		"metadata":  task.Metadata,
		"createdAt": task.CreatedAt.Format(time.RFC3339),
		"updatedAt": task.UpdatedAt.Format(time.RFC3339),
	}
	if task.Result != nil {
		body["result"] = task.Result
	}
	c.JSON(http.StatusOK, body)
}

func (h *DocumentHandler) CancelTask(c *gin.Context) {
	taskID := c.Param("taskId")

	if err := h.service.CancelTask(c.Request.Context(), taskID); err != nil {
		h.handleError(c, "Failed to cancel task", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task cancelled successfully",
		"taskId":  taskID,
	})
}

func (h *DocumentHandler) handleError(c *gin.Context, message string, err error) {
	switch {
	case errors.Is(err, document.ErrInvalidFile):
		abort(c, h.logger, pipeline.CodeInvalidInput, err.Error(), err)
	case errors.Is(err, document.ErrTaskUnknown):
		abort(c, h.logger, pipeline.CodeNotFound, "Task not found", err)
	default:
		abort(c, h.logger, pipeline.CodeInternal, message, err)
	}
}
