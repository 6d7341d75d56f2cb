package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/service/pipeline"
	"github.com/feichai0017/certificate-processor/internal/service/persistence"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// StatusFor maps a run's error code to an HTTP status.
func StatusFor(code pipeline.Code) int {
	switch code {
	case pipeline.CodeInvalidInput:
		return http.StatusBadRequest
	case pipeline.CodeNotFound:
		return http.StatusNotFound
	case pipeline.CodeAcquisitionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func errorBody(code pipeline.Code, message string) *models.ProcessingResult {
	return &models.ProcessingResult{
		Status:       models.ResultError,
		ErrorCode:    string(code),
		ErrorMessage: message,
	}
}

// abort writes the standard error body and logs the failure.
func abort(c *gin.Context, log logger.Logger, code pipeline.Code, message string, err error) {
	l := logger.FromContext(c.Request.Context(), log)
	fields := []logger.Field{
		logger.String("path", c.Request.URL.Path),
		logger.String("errorCode", string(code)),
	}
	if err != nil {
		fields = append(fields, logger.Error(err))
	}
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		l.Error(message, fields...)
	} else {
		l.Warn(message, fields...)
	}
	c.AbortWithStatusJSON(status, errorBody(code, message))
}

// abortErr derives the code from err.
func abortErr(c *gin.Context, log logger.Logger, message string, err error) {
	code := pipeline.CodeOf(err)
	if errors.Is(err, persistence.ErrNotFound) {
		code = pipeline.CodeNotFound
	}
	abort(c, log, code, message, err)
}
