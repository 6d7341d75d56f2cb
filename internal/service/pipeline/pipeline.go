// Package pipeline runs one certificate submission through acquisition,
// OCR, parsing, merging and roadmap generation.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/certificate-processor/internal/agent/acquire"
	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/service/profile"
	"github.com/feichai0017/certificate-processor/pkg/converters"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

const previewLength = 200

type Acquirer interface {
	FromUpload(ctx context.Context, r io.Reader, filename string) (*models.DocumentHandle, error)
	FromURL(ctx context.Context, rawURL string) (*models.DocumentHandle, error)
	Release(h *models.DocumentHandle) error
}

type TextExtractor interface {
	Extract(ctx context.Context, h *models.DocumentHandle) (*converters.ExtractedText, error)
}

type StructuredParser interface {
	Parse(ctx context.Context, text string) (*models.ParsedCertificate, error)
}

type SkillExtractor interface {
	Extract(ctx context.Context, course string) []string
}

type ProfileMerger interface {
	Merge(ctx context.Context, rec models.CertificateRecord, skills []string) (*profile.Merged, error)
}

type RoadmapGenerator interface {
	Generate(studentID string, cert models.ParsedCertificate, skills []string) *models.RoadmapRecord
}

// Persistence covers the writes the orchestrator makes directly. Profile
// merging goes through ProfileMerger.
type Persistence interface {
	SaveRoadmap(ctx context.Context, r *models.RoadmapRecord) error
	MirrorCertificate(ctx context.Context, rec *models.CertificateRecord)
}

// Deps are the stages of a run.
type Deps struct {
	Acquirer  Acquirer
	Extractor TextExtractor
	Parser    StructuredParser
	Skills    SkillExtractor
	Merger    ProfileMerger
	Roadmaps  RoadmapGenerator
	Store     Persistence
}

// Orchestrator sequences the stages of one submission. It keeps no state
// between runs, so concurrent calls are safe.
type Orchestrator struct {
	deps   Deps
	logger logger.Logger
}

func NewOrchestrator(deps Deps, log logger.Logger) *Orchestrator {
	return &Orchestrator{
		deps:   deps,
		logger: log.Named("pipeline"),
	}
}

// SubmitUpload processes an uploaded document. On failure the result has
// status error and err is a *StageError.
func (o *Orchestrator) SubmitUpload(ctx context.Context, studentID string, r io.Reader, filename string) (*models.ProcessingResult, error) {
	if err := validateStudentID(studentID); err != nil {
		return errorResult(err), err
	}
	if r == nil || strings.TrimSpace(filename) == "" {
		err := NewStageError(CodeInvalidInput, StageAcquire, "no file provided", nil)
		return errorResult(err), err
	}

	return o.run(ctx, studentID, "", func(ctx context.Context) (*models.DocumentHandle, error) {
		return o.deps.Acquirer.FromUpload(ctx, r, filename)
	})
}

// SubmitURL fetches and processes the document at documentURL.
func (o *Orchestrator) SubmitURL(ctx context.Context, studentID, documentURL string) (*models.ProcessingResult, error) {
	if err := validateStudentID(studentID); err != nil {
		return errorResult(err), err
	}
	documentURL = strings.TrimSpace(documentURL)
	if documentURL == "" {
		err := NewStageError(CodeInvalidInput, StageAcquire, "document_url is required", nil)
		return errorResult(err), err
	}

	return o.run(ctx, studentID, documentURL, func(ctx context.Context) (*models.DocumentHandle, error) {
		return o.deps.Acquirer.FromURL(ctx, documentURL)
	})
}

func (o *Orchestrator) run(ctx context.Context, studentID, documentURL string, acquire func(context.Context) (*models.DocumentHandle, error)) (*models.ProcessingResult, error) {
	runID := uuid.NewString()
	ctx = logger.ContextWithStudentID(ctx, studentID)
	log := logger.FromContext(ctx, o.logger).With(logger.String("runId", runID))
	start := time.Now()

	// acquire
	h, err := acquire(ctx)
	if err != nil {
		serr := acquisitionError(err)
		log.Error("Run stopped", logger.String("stage", StageAcquire), logger.Error(serr))
		return errorResult(serr), serr
	}
	defer func() {
		if err := o.deps.Acquirer.Release(h); err != nil {
			log.Warn("Failed to release document", logger.String("path", h.Path), logger.Error(err))
		}
	}()
	log.Debug("Document acquired",
		logger.String("file", h.OriginalFilename),
		logger.String("kind", string(h.Kind)),
		logger.Int64("size", h.Size),
	)

	// extract
	if serr := abandoned(ctx, StageExtract); serr != nil {
		log.Warn("Run abandoned", logger.String("stage", StageExtract), logger.Error(serr))
		return errorResult(serr), serr
	}
	text, err := o.deps.Extractor.Extract(ctx, h)
	if err != nil {
		serr := NewStageError(CodeExtractionFailed, StageExtract, "OCR failed for the document", err)
		log.Error("Run stopped", logger.String("stage", StageExtract), logger.Error(serr))
		return errorResult(serr), serr
	}
	if text.Empty() {
		serr := NewStageError(CodeNoTextFound, StageExtract, "OCR extracted no text from the document", nil)
		log.Error("Run stopped", logger.String("stage", StageExtract), logger.Error(serr))
		return errorResult(serr), serr
	}

	// parse
	if serr := abandoned(ctx, StageParse); serr != nil {
		log.Warn("Run abandoned", logger.String("stage", StageParse), logger.Error(serr))
		return errorResult(serr), serr
	}
	parsed, err := o.deps.Parser.Parse(ctx, text.Text)
	if err != nil {
		serr := NewStageError(CodeParseFailed, StageParse, "could not parse and classify the certificate", err)
		log.Error("Run stopped", logger.String("stage", StageParse), logger.Error(serr))
		return errorResult(serr), serr
	}

	// skills are best-effort; the extractor never fails
	skills := o.deps.Skills.Extract(ctx, parsed.CourseTitle())

	rec := models.CertificateRecord{
		ParsedCertificate: *parsed,
		Skills:            skills,
		StudentID:         studentID,
		DocumentURL:       documentURL,
	}

	result := &models.ProcessingResult{
		Status:               models.ResultSuccess,
		ParsedCertificate:    &rec,
		DocumentURL:          documentURL,
		ExtractedTextPreview: text.Preview(previewLength),
	}

	// merge; nothing is written once the caller has gone
	if serr := abandoned(ctx, StageMerge); serr != nil {
		log.Warn("Run abandoned", logger.String("stage", StageMerge), logger.Error(serr))
		result.Status = models.ResultError
		result.ErrorCode = string(serr.Code)
		result.ErrorMessage = serr.Message
		return result, serr
	}
	merged, err := o.deps.Merger.Merge(ctx, rec, skills)
	if err != nil {
		serr := NewStageError(CodePersistenceFailed, StageMerge, "could not store the certificate", err)
		log.Error("Run stopped", logger.String("stage", StageMerge), logger.Error(serr))
		result.Status = models.ResultError
		result.ErrorCode = string(serr.Code)
		result.ErrorMessage = serr.Message
		return result, serr
	}
	result.UpdatedDetailedData = merged.Certificates
	result.UpdatedSkillData = merged.Skills

	if ctx.Err() != nil {
		log.Warn("Run abandoned after merge, skipping mirror and roadmap", logger.Error(ctx.Err()))
	} else {
		o.deps.Store.MirrorCertificate(ctx, &rec)

		// roadmap
		roadmap := o.deps.Roadmaps.Generate(studentID, *parsed, skills)
		if err := o.deps.Store.SaveRoadmap(ctx, roadmap); err != nil {
			log.Warn("Roadmap not saved", logger.String("stage", StageRoadmap), logger.Error(err))
		} else {
			result.Roadmap = roadmap
		}
	}

	result.Message = fmt.Sprintf("Certificate processed, classified, and stored for student %s.", studentID)
	log.Info("Run finished",
		logger.String("category", parsed.Category),
		logger.Int("skills", len(skills)),
		logger.Duration("duration", time.Since(start)),
	)
	return result, nil
}

// abandoned reports a caller that cancelled or timed out before stage.
func abandoned(ctx context.Context, stage string) *StageError {
	if err := ctx.Err(); err != nil {
		return NewStageError(CodeInternal, stage, "the run was abandoned before "+stage, err)
	}
	return nil
}

func validateStudentID(studentID string) error {
	if strings.TrimSpace(studentID) == "" {
		return NewStageError(CodeInvalidInput, StageAcquire, "student_id is required", nil)
	}
	return nil
}

func acquisitionError(err error) *StageError {
	if errors.Is(err, acquire.ErrInvalidDocument) || errors.Is(err, acquire.ErrTooLarge) {
		return NewStageError(CodeInvalidInput, StageAcquire, "the document was rejected: "+err.Error(), err)
	}
	return NewStageError(CodeAcquisitionFailed, StageAcquire, "could not obtain the document", err)
}

func errorResult(err error) *models.ProcessingResult {
	return &models.ProcessingResult{
		Status:       models.ResultError,
		ErrorCode:    string(CodeOf(err)),
		ErrorMessage: MessageOf(err),
	}
}
