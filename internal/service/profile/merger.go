// Package profile folds processed certificates into a student's cumulative
// record.
package profile

import (
	"context"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// Store is the slice of the persistence gateway the merger needs.
type Store interface {
	LockStudent(studentID string) func()
	UpdateCertificates(ctx context.Context, studentID string, fn func([]models.CertificateRecord) []models.CertificateRecord) ([]models.CertificateRecord, error)
	UpdateSkills(ctx context.Context, studentID string, fn func([]string) []string) ([]string, error)
}

// Merged is the student's state after a merge.
type Merged struct {
	Certificates []models.CertificateRecord
	Skills       []string
}

type Merger struct {
	store  Store
	logger logger.Logger
}

func NewMerger(store Store, log logger.Logger) *Merger {
	return &Merger{
		store:  store,
		logger: log.Named("merger"),
	}
}

// Merge appends rec to the certificate history and adds any skill not yet
// present (ignoring case). Both writes happen under the student's lock, and
// each store applies its write atomically.
func (m *Merger) Merge(ctx context.Context, rec models.CertificateRecord, skills []string) (*Merged, error) {
	unlock := m.store.LockStudent(rec.StudentID)
	defer unlock()

	history, err := m.store.UpdateCertificates(ctx, rec.StudentID, func(cur []models.CertificateRecord) []models.CertificateRecord {
		return AppendCertificate(cur, rec)
	})
	if err != nil {
		return nil, err
	}

	merged, err := m.store.UpdateSkills(ctx, rec.StudentID, func(cur []string) []string {
		return MergeSkills(cur, skills)
	})
	if err != nil {
		return nil, err
	}

	logger.FromContext(ctx, m.logger).Debug("Profile merged",
		logger.Int("certificates", len(history)),
		logger.Int("skills", len(merged)),
	)
	return &Merged{Certificates: history, Skills: merged}, nil
}

// AppendCertificate never deduplicates: the history is append-only.
func AppendCertificate(history []models.CertificateRecord, rec models.CertificateRecord) []models.CertificateRecord {
	out := make([]models.CertificateRecord, 0, len(history)+1)
	out = append(out, history...)
	return append(out, rec)
}

// MergeSkills appends each incoming skill whose lower-cased form is new,
// keeping the casing of its first occurrence. Existing entries keep their
// order.
func MergeSkills(existing, incoming []string) []string {
	return models.UnionSkills(existing, incoming)
}
