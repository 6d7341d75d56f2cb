package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/certificate-processor/internal/service/document"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type Handlers struct {
	Certificate *CertificateHandler
	Profile     *ProfileHandler
	// Document is nil when no archive backend is configured.
	Document *DocumentHandler
}

func NewHandlers(
	submitter Submitter,
	profiles ProfileStore,
	documentService document.DocumentProcessor,
	log logger.Logger,
) *Handlers {
	h := &Handlers{
		Certificate: NewCertificateHandler(submitter, log),
		Profile:     NewProfileHandler(profiles, log),
	}
	if documentService != nil {
		h.Document = NewDocumentHandler(documentService, log)
	}
	return h
}

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
