package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/service/pipeline"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// ProfileStore is the query side of the persistence gateway.
type ProfileStore interface {
	GetProfile(ctx context.Context) (*models.Profile, error)
	GetStudentProfile(ctx context.Context, studentID string) (*models.Profile, error)
	ReplaceProfile(ctx context.Context, p *models.Profile) error
	GetRoadmap(ctx context.Context, studentID string) (*models.RoadmapRecord, error)
}

type ProfileHandler struct {
	store  ProfileStore
	logger logger.Logger
}

func NewProfileHandler(store ProfileStore, log logger.Logger) *ProfileHandler {
	return &ProfileHandler{store: store, logger: log.Named("profile_handler")}
}

// GetProfile returns every student's data, or one student's when student_id
// is given.
func (h *ProfileHandler) GetProfile(c *gin.Context) {
	var (
		p   *models.Profile
		err error
	)
	if id := c.Query("student_id"); id != "" {
		p, err = h.store.GetStudentProfile(c.Request.Context(), id)
	} else {
		p, err = h.store.GetProfile(c.Request.Context())
	}
	if err != nil {
		abortErr(c, h.logger, "Failed to read profile", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ReplaceProfile overwrites the namespaces present in the body.
func (h *ProfileHandler) ReplaceProfile(c *gin.Context) {
	var p models.Profile
	if err := c.ShouldBindJSON(&p); err != nil {
		abort(c, h.logger, pipeline.CodeInvalidInput, "invalid request body", err)
		return
	}
	if p.DetailedData == nil && p.SkillData == nil {
		abort(c, h.logger, pipeline.CodeInvalidInput, "detailed_data or skills_data is required", nil)
		return
	}
	if err := h.store.ReplaceProfile(c.Request.Context(), &p); err != nil {
		abort(c, h.logger, pipeline.CodePersistenceFailed, "Failed to update profile", err)
		return
	}

	logger.FromContext(c.Request.Context(), h.logger).Info("Profile replaced",
		logger.Int("students", len(p.DetailedData)),
		logger.Int("skillEntries", len(p.SkillData)),
	)
	c.JSON(http.StatusOK, gin.H{
		"status":  models.ResultSuccess,
		"message": "Student data updated successfully",
	})
}

func (h *ProfileHandler) GetRoadmap(c *gin.Context) {
	studentID := c.Param("studentId")
	r, err := h.store.GetRoadmap(c.Request.Context(), studentID)
	if err != nil {
		abortErr(c, h.logger, "No roadmap found for student "+studentID, err)
		return
	}
	c.JSON(http.StatusOK, r)
}
