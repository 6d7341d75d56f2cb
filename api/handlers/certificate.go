package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/service/pipeline"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// Submitter runs the certificate pipeline synchronously.
type Submitter interface {
	SubmitUpload(ctx context.Context, studentID string, r io.Reader, filename string) (*models.ProcessingResult, error)
	SubmitURL(ctx context.Context, studentID, documentURL string) (*models.ProcessingResult, error)
}

type CertificateHandler struct {
	pipeline Submitter
	logger   logger.Logger
}

// URLRequest is the JSON body of a URL submission.
type URLRequest struct {
	StudentID   string `json:"student_id" form:"student_id"`
	DocumentURL string `json:"document_url" form:"document_url"`
}

func NewCertificateHandler(p Submitter, log logger.Logger) *CertificateHandler {
	return &CertificateHandler{pipeline: p, logger: log.Named("certificate_handler")}
}

// ProcessUpload handles a multipart upload with student_id and file fields.
func (h *CertificateHandler) ProcessUpload(c *gin.Context) {
	studentID := c.PostForm("student_id")
	if studentID == "" {
		abort(c, h.logger, pipeline.CodeInvalidInput, "student_id is required", nil)
		return
	}
	file, header, err := c.Request.FormFile("file")
	if err != nil {
		abort(c, h.logger, pipeline.CodeInvalidInput, "file is required", err)
		return
	}
	defer file.Close()

	ctx := logger.ContextWithStudentID(c.Request.Context(), studentID)
	result, err := h.pipeline.SubmitUpload(ctx, studentID, file, header.Filename)
	h.respond(c, result, err)
}

// ProcessURL accepts a JSON body for POST and query parameters for GET.
func (h *CertificateHandler) ProcessURL(c *gin.Context) {
	var req URLRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		abort(c, h.logger, pipeline.CodeInvalidInput, "invalid request body", err)
		return
	}
	if req.StudentID == "" || req.DocumentURL == "" {
		abort(c, h.logger, pipeline.CodeInvalidInput, "student_id and document_url are required", nil)
		return
	}

	ctx := logger.ContextWithStudentID(c.Request.Context(), req.StudentID)
	result, err := h.pipeline.SubmitURL(ctx, req.StudentID, req.DocumentURL)
	h.respond(c, result, err)
}

// respond sends the pipeline's own result body, which still carries parsed
// data when only persistence failed.
func (h *CertificateHandler) respond(c *gin.Context, result *models.ProcessingResult, err error) {
	if err == nil {
		c.JSON(http.StatusOK, result)
		return
	}
	code := pipeline.CodeOf(err)
	if result == nil {
		result = errorBody(code, pipeline.MessageOf(err))
	}
	logger.FromContext(c.Request.Context(), h.logger).Warn("Certificate run failed",
		logger.String("errorCode", string(code)),
		logger.Error(err),
	)
	c.JSON(StatusFor(code), result)
}
