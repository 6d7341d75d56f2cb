// Package persistence owns the three student stores and mirrors writes to the
// secondary document store.
package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/docstore"
	"github.com/feichai0017/certificate-processor/pkg/kvstore"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// Namespaces of the primary stores. The file backend appends ".json".
const (
	NamespaceDetailedData = "student_detailed_data"
	NamespaceSkills       = "student_skills"
	NamespaceRoadmaps     = "roadmaps"
)

// Collections of the secondary document store.
const (
	CollectionCertificates = "ocroutput"
	CollectionRoadmaps     = "roadmap"
)

// ErrNotFound is returned when a student has no record in a store.
var ErrNotFound = errors.New("record not found")

// Stores groups the primary namespaces.
type Stores struct {
	DetailedData kvstore.Store
	Skills       kvstore.Store
	Roadmaps     kvstore.Store
}

type Gateway struct {
	stores Stores
	mirror docstore.Store
	locks  *keyedMutex
	logger logger.Logger
}

func NewGateway(stores Stores, mirror docstore.Store, log logger.Logger) *Gateway {
	if mirror == nil {
		mirror = docstore.Nop{}
	}
	return &Gateway{
		stores: stores,
		mirror: mirror,
		locks:  newKeyedMutex(),
		logger: log.Named("persistence"),
	}
}

// LockStudent serializes read-modify-write cycles for one student within
// this process. Backends still make each Update atomic on their own.
func (g *Gateway) LockStudent(studentID string) func() {
	return g.locks.Lock(studentID)
}

// UpdateCertificates applies fn to the student's certificate history and
// returns the stored result.
func (g *Gateway) UpdateCertificates(ctx context.Context, studentID string, fn func([]models.CertificateRecord) []models.CertificateRecord) ([]models.CertificateRecord, error) {
	var out []models.CertificateRecord
	err := g.stores.DetailedData.Update(ctx, studentID, func(cur json.RawMessage) (json.RawMessage, error) {
		var history []models.CertificateRecord
		if err := decode(cur, &history); err != nil {
			return nil, err
		}
		out = fn(history)
		return json.Marshal(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update certificate history: %w", err)
	}
	return out, nil
}

// UpdateSkills applies fn to the student's skill set and returns the stored
// result.
func (g *Gateway) UpdateSkills(ctx context.Context, studentID string, fn func([]string) []string) ([]string, error) {
	var out []string
	err := g.stores.Skills.Update(ctx, studentID, func(cur json.RawMessage) (json.RawMessage, error) {
		var skills []string
		if err := decode(cur, &skills); err != nil {
			return nil, err
		}
		out = fn(skills)
		return json.Marshal(out)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update skill set: %w", err)
	}
	return out, nil
}

// SaveRoadmap replaces the student's roadmap and mirrors it. A mirror
// failure is logged only.
func (g *Gateway) SaveRoadmap(ctx context.Context, r *models.RoadmapRecord) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode roadmap: %w", err)
	}
	if err := g.stores.Roadmaps.Put(ctx, r.StudentID, raw); err != nil {
		return fmt.Errorf("failed to save roadmap: %w", err)
	}

	filter := map[string]any{"student_id": r.StudentID}
	if err := g.mirror.Upsert(ctx, CollectionRoadmaps, filter, r); err != nil {
		logger.FromContext(ctx, g.logger).Warn("Failed to mirror roadmap", logger.Error(err))
	}
	return nil
}

// MirrorCertificate copies one processed certificate to the document store.
// It never fails the caller.
func (g *Gateway) MirrorCertificate(ctx context.Context, rec *models.CertificateRecord) {
	if err := g.mirror.Insert(ctx, CollectionCertificates, rec); err != nil {
		logger.FromContext(ctx, g.logger).Warn("Failed to mirror certificate", logger.Error(err))
	}
}

// GetRoadmap returns ErrNotFound when the student has no roadmap.
func (g *Gateway) GetRoadmap(ctx context.Context, studentID string) (*models.RoadmapRecord, error) {
	raw, err := g.stores.Roadmaps.Get(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read roadmap: %w", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	var r models.RoadmapRecord
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode roadmap: %w", err)
	}
	return &r, nil
}

// GetProfile returns the full detailed-data and skill-data stores.
func (g *Gateway) GetProfile(ctx context.Context) (*models.Profile, error) {
	details, err := g.stores.DetailedData.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read detailed data: %w", err)
	}
	skills, err := g.stores.Skills.ReadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read skill data: %w", err)
	}

	p := &models.Profile{
		DetailedData: make(map[string][]models.CertificateRecord, len(details)),
		SkillData:    make(map[string][]string, len(skills)),
	}
	for id, raw := range details {
		var history []models.CertificateRecord
		if err := decode(raw, &history); err != nil {
			return nil, fmt.Errorf("failed to decode detailed data for %s: %w", id, err)
		}
		p.DetailedData[id] = history
	}
	for id, raw := range skills {
		var s []string
		if err := decode(raw, &s); err != nil {
			return nil, fmt.Errorf("failed to decode skill data for %s: %w", id, err)
		}
		p.SkillData[id] = s
	}
	return p, nil
}

// GetStudentProfile returns one student's slice of the profile, or
// ErrNotFound when neither store knows the student.
func (g *Gateway) GetStudentProfile(ctx context.Context, studentID string) (*models.Profile, error) {
	unlock := g.LockStudent(studentID)
	defer unlock()

	detailsRaw, err := g.stores.DetailedData.Get(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read detailed data: %w", err)
	}
	skillsRaw, err := g.stores.Skills.Get(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to read skill data: %w", err)
	}
	if detailsRaw == nil && skillsRaw == nil {
		return nil, ErrNotFound
	}

	var history []models.CertificateRecord
	if err := decode(detailsRaw, &history); err != nil {
		return nil, err
	}
	var skills []string
	if err := decode(skillsRaw, &skills); err != nil {
		return nil, err
	}
	return &models.Profile{
		DetailedData: map[string][]models.CertificateRecord{studentID: history},
		SkillData:    map[string][]string{studentID: skills},
	}, nil
}

// ReplaceProfile overwrites whichever of the two stores p carries. A nil map
// leaves that store untouched. Skill lists are reduced to one entry per
// case-insensitive skill.
func (g *Gateway) ReplaceProfile(ctx context.Context, p *models.Profile) error {
	if p.DetailedData != nil {
		entries, err := encodeAll(p.DetailedData)
		if err != nil {
			return err
		}
		if err := g.stores.DetailedData.ReplaceAll(ctx, entries); err != nil {
			return fmt.Errorf("failed to replace detailed data: %w", err)
		}
	}
	if p.SkillData != nil {
		skills := make(map[string][]string, len(p.SkillData))
		for id, list := range p.SkillData {
			skills[id] = models.UnionSkills(nil, list)
		}
		entries, err := encodeAll(skills)
		if err != nil {
			return err
		}
		if err := g.stores.Skills.ReplaceAll(ctx, entries); err != nil {
			return fmt.Errorf("failed to replace skill data: %w", err)
		}
	}
	return nil
}

func (g *Gateway) Close(ctx context.Context) error {
	var errs []error
	for _, s := range []kvstore.Store{g.stores.DetailedData, g.stores.Skills, g.stores.Roadmaps} {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := g.mirror.Close(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func decode(raw json.RawMessage, dst any) error {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("failed to decode stored value: %w", err)
	}
	return nil
}

func encodeAll[T any](m map[string]T) (map[string]json.RawMessage, error) {
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

// keyedMutex hands out one mutex per key and drops it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[string]*refMutex)}
}

func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
