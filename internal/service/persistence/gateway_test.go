package persistence

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/kvstore/file"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type recordingMirror struct {
	mu      sync.Mutex
	inserts map[string]int
	upserts map[string]int
	err     error
}

func newRecordingMirror(err error) *recordingMirror {
	return &recordingMirror{inserts: map[string]int{}, upserts: map[string]int{}, err: err}
}

func (m *recordingMirror) Insert(_ context.Context, collection string, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inserts[collection]++
	return m.err
}

func (m *recordingMirror) Upsert(_ context.Context, collection string, _ map[string]any, _ any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.upserts[collection]++
	return m.err
}

func (m *recordingMirror) Close(context.Context) error { return nil }

func newGateway(t *testing.T, mirror *recordingMirror) (*Gateway, *logger.TestLogger) {
	t.Helper()
	dir := t.TempDir()
	open := func(name string) *file.Store {
		s, err := file.New(filepath.Join(dir, name+".json"))
		require.NoError(t, err)
		return s
	}
	log := logger.NewTestLogger()
	return NewGateway(Stores{
		DetailedData: open(NamespaceDetailedData),
		Skills:       open(NamespaceSkills),
		Roadmaps:     open(NamespaceRoadmaps),
	}, mirror, log), log
}

func TestRoadmapReplacesPrevious(t *testing.T) {
	mirror := newRecordingMirror(nil)
	g, _ := newGateway(t, mirror)
	ctx := context.Background()

	_, err := g.GetRoadmap(ctx, "s1")
	assert.ErrorIs(t, err, ErrNotFound)

	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	first := models.NewRoadmapRecord("s1", at, []models.CareerTrack{{CareerTitle: "Course Specialist"}})
	second := models.NewRoadmapRecord("s1", at.Add(time.Hour), []models.CareerTrack{{CareerTitle: "Frontend Developer"}})
	require.NoError(t, g.SaveRoadmap(ctx, first))
	require.NoError(t, g.SaveRoadmap(ctx, second))

	got, err := g.GetRoadmap(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, second, got)
	assert.Equal(t, 2, mirror.upserts[CollectionRoadmaps])
}

func TestMirrorFailuresAreAbsorbed(t *testing.T) {
	mirror := newRecordingMirror(errors.New("mongo down"))
	g, log := newGateway(t, mirror)
	ctx := context.Background()

	g.MirrorCertificate(ctx, &models.CertificateRecord{StudentID: "s1"})
	require.NoError(t, g.SaveRoadmap(ctx, models.NewRoadmapRecord("s1", time.Now(), nil)))

	assert.Equal(t, 1, mirror.inserts[CollectionCertificates])
	assert.Equal(t, 2, log.CountLevel("WARN"))

	_, err := g.GetRoadmap(ctx, "s1")
	assert.NoError(t, err)
}

func TestProfileRoundTrip(t *testing.T) {
	g, _ := newGateway(t, newRecordingMirror(nil))
	ctx := context.Background()

	_, err := g.UpdateSkills(ctx, "s1", func([]string) []string { return []string{"Go"} })
	require.NoError(t, err)
	_, err = g.UpdateCertificates(ctx, "s2", func(cur []models.CertificateRecord) []models.CertificateRecord {
		return append(cur, models.CertificateRecord{StudentID: "s2"})
	})
	require.NoError(t, err)

	p, err := g.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, p.SkillData["s1"])
	assert.Len(t, p.DetailedData["s2"], 1)

	one, err := g.GetStudentProfile(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, one.SkillData["s1"])
	assert.Empty(t, one.DetailedData["s1"])

	_, err = g.GetStudentProfile(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceProfileLeavesMissingPartAlone(t *testing.T) {
	g, _ := newGateway(t, newRecordingMirror(nil))
	ctx := context.Background()

	_, err := g.UpdateSkills(ctx, "s1", func([]string) []string { return []string{"Go"} })
	require.NoError(t, err)

	require.NoError(t, g.ReplaceProfile(ctx, &models.Profile{
		DetailedData: map[string][]models.CertificateRecord{"s9": {{StudentID: "s9"}}},
	}))

	p, err := g.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, p.SkillData["s1"])
	assert.Len(t, p.DetailedData, 1)
	assert.Contains(t, p.DetailedData, "s9")

	require.NoError(t, g.ReplaceProfile(ctx, &models.Profile{SkillData: map[string][]string{}}))
	p, err = g.GetProfile(ctx)
	require.NoError(t, err)
	assert.Empty(t, p.SkillData)
}

func TestReplaceProfileDropsCaseDuplicateSkills(t *testing.T) {
	g, _ := newGateway(t, newRecordingMirror(nil))
	ctx := context.Background()

	require.NoError(t, g.ReplaceProfile(ctx, &models.Profile{
		SkillData: map[string][]string{"s1": {"Go", "go", "GO", "Rust"}},
	}))

	p, err := g.GetProfile(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go", "Rust"}, p.SkillData["s1"])
}

func TestKeyedMutexReleasesEntries(t *testing.T) {
	k := newKeyedMutex()
	unlock := k.Lock("a")
	assert.Len(t, k.locks, 1)
	unlock()
	assert.Empty(t, k.locks)
}
