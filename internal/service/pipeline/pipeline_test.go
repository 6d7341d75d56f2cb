package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/internal/agent/acquire"
	"github.com/feichai0017/certificate-processor/internal/agent/parser"
	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/service/persistence"
	"github.com/feichai0017/certificate-processor/internal/service/profile"
	"github.com/feichai0017/certificate-processor/internal/service/roadmap"
	"github.com/feichai0017/certificate-processor/internal/testutil"
	"github.com/feichai0017/certificate-processor/pkg/converters"
	"github.com/feichai0017/certificate-processor/pkg/kvstore"
	"github.com/feichai0017/certificate-processor/pkg/kvstore/file"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type fakeExtractor struct {
	text   string
	err    error
	panics bool
	calls  int
}

func (e *fakeExtractor) Extract(_ context.Context, h *models.DocumentHandle) (*converters.ExtractedText, error) {
	e.calls++
	if _, err := os.Stat(h.Path); err != nil {
		return nil, err
	}
	if e.panics {
		panic("ocr engine crashed")
	}
	if e.err != nil {
		return nil, e.err
	}
	return &converters.ExtractedText{Text: e.text, Pages: 1}, nil
}

// scriptedOracle answers the certificate prompt and the skills prompt.
type scriptedOracle struct {
	certificate string
	skills      string
	skillsErr   error
	onSkills    func()
	calls       int
}

func (o *scriptedOracle) Complete(_ context.Context, prompt string) (string, error) {
	o.calls++
	if bytes.Contains([]byte(prompt), []byte(`"skills"`)) {
		if o.onSkills != nil {
			o.onSkills()
		}
		return o.skills, o.skillsErr
	}
	return o.certificate, nil
}

func (o *scriptedOracle) Close() error { return nil }

type failingStore struct {
	kvstore.Store
}

func (failingStore) Update(context.Context, string, kvstore.UpdateFunc) error {
	return errors.New("disk full")
}

type failingPutStore struct {
	kvstore.Store
}

func (failingPutStore) Put(context.Context, string, json.RawMessage) error {
	return errors.New("roadmap store offline")
}

type fixture struct {
	orch      *Orchestrator
	tempDir   string
	storeDir  string
	extractor *fakeExtractor
	oracle    *scriptedOracle
	gateway   *persistence.Gateway
	log       *logger.TestLogger
}

type fixtureOpts struct {
	text          string
	extractErr    error
	certificate   string
	skills        string
	skillsErr     error
	brokenHistory  bool
	brokenRoadmaps bool
	extractPanics  bool
}

func newFixture(t *testing.T, opts fixtureOpts) *fixture {
	t.Helper()
	log := logger.NewTestLogger()
	tempDir := t.TempDir()
	storeDir := filepath.Join(t.TempDir(), "data")

	open := func(name string) kvstore.Store {
		s, err := file.New(filepath.Join(storeDir, name+".json"))
		require.NoError(t, err)
		return s
	}
	stores := persistence.Stores{
		DetailedData: open(persistence.NamespaceDetailedData),
		Skills:       open(persistence.NamespaceSkills),
		Roadmaps:     open(persistence.NamespaceRoadmaps),
	}
	if opts.brokenHistory {
		stores.DetailedData = failingStore{stores.DetailedData}
	}
	if opts.brokenRoadmaps {
		stores.Roadmaps = failingPutStore{stores.Roadmaps}
	}
	gw := persistence.NewGateway(stores, nil, log)

	ext := &fakeExtractor{text: opts.text, err: opts.extractErr, panics: opts.extractPanics}
	orc := &scriptedOracle{certificate: opts.certificate, skills: opts.skills, skillsErr: opts.skillsErr}
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	orch := NewOrchestrator(Deps{
		Acquirer:  acquire.NewAcquirer(acquire.Config{TempDir: tempDir, FetchTimeout: 200 * time.Millisecond}, nil, log),
		Extractor: ext,
		Parser:    parser.NewCertificateParser(orc, log),
		Skills:    parser.NewSkillExtractor(orc, log),
		Merger:    profile.NewMerger(gw, log),
		Roadmaps:  roadmap.NewGeneratorWithClock(func() time.Time { return at }),
		Store:     gw,
	}, log)

	return &fixture{orch: orch, tempDir: tempDir, storeDir: storeDir, extractor: ext, oracle: orc, gateway: gw, log: log}
}

func (f *fixture) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.tempDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary document left behind")
}

const securityCert = `{"name":"Jane Doe","course":"Ethical Hacking Essentials","issuer":"EC-Council","date":"2024-03-01","category":"Course"}`

func TestSubmitUploadSuccess(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		text:        "CERTIFICATE OF COMPLETION Jane Doe Ethical Hacking Essentials",
		certificate: "```json\n" + securityCert + "\n```",
		skills:      `{"skills":["Ethical Hacking","ethical hacking","Network Security"]}`,
	})

	res, err := f.orch.SubmitUpload(context.Background(), "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
	require.NoError(t, err)

	assert.Equal(t, models.ResultSuccess, res.Status)
	require.NotNil(t, res.ParsedCertificate)
	assert.Equal(t, "Course", res.ParsedCertificate.Category)
	assert.Equal(t, "s1", res.ParsedCertificate.StudentID)
	assert.Len(t, res.UpdatedDetailedData, 1)
	assert.Equal(t, []string{"Ethical Hacking", "Network Security"}, res.UpdatedSkillData)
	assert.Contains(t, res.ExtractedTextPreview, "CERTIFICATE OF COMPLETION")
	assert.Contains(t, res.Message, "s1")

	require.NotNil(t, res.Roadmap)
	titles := []string{}
	for _, tr := range res.Roadmap.PotentialRoadmaps {
		titles = append(titles, tr.CareerTitle)
	}
	assert.Equal(t, []string{"Cybersecurity Analyst", "Penetration Tester"}, titles)

	stored, err := f.gateway.GetRoadmap(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, res.Roadmap, stored)

	assert.Equal(t, 2, f.oracle.calls)
	f.assertNoTempFiles(t)
}

func TestSkillFailureIsSoft(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		text:        "some text",
		certificate: securityCert,
		skillsErr:   errors.New("oracle timeout"),
	})

	res, err := f.orch.SubmitUpload(context.Background(), "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
	require.NoError(t, err)
	assert.Equal(t, models.ResultSuccess, res.Status)
	assert.Empty(t, res.ParsedCertificate.Skills)
	assert.Len(t, res.UpdatedDetailedData, 1)

	// no security skills, so the generic track is used
	require.NotNil(t, res.Roadmap)
	assert.Equal(t, "Course Specialist", res.Roadmap.PotentialRoadmaps[0].CareerTitle)
	assert.Equal(t, "advanced ethical hacking essentials concepts", res.Roadmap.PotentialRoadmaps[0].SequencedRoadmap[0])
}

func TestHardStops(t *testing.T) {
	tests := []struct {
		name       string
		opts       fixtureOpts
		code       Code
		oracleCall int
	}{
		{"extraction failure", fixtureOpts{extractErr: errors.New("tesseract crashed")}, CodeExtractionFailed, 0},
		{"empty text", fixtureOpts{text: ""}, CodeNoTextFound, 0},
		{"whitespace text", fixtureOpts{text: " \n\t"}, CodeNoTextFound, 0},
		{"unparseable reply", fixtureOpts{text: "x", certificate: "I cannot help with that"}, CodeParseFailed, 1},
		{"unknown category", fixtureOpts{text: "x", certificate: `{"category":"Seminar"}`}, CodeParseFailed, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.opts)

			res, err := f.orch.SubmitUpload(context.Background(), "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
			require.Error(t, err)
			assert.Equal(t, tt.code, CodeOf(err))
			assert.Equal(t, models.ResultError, res.Status)
			assert.Equal(t, string(tt.code), res.ErrorCode)
			assert.NotEmpty(t, res.ErrorMessage)
			assert.Equal(t, tt.oracleCall, f.oracle.calls)

			f.assertNoTempFiles(t)
			p, err := f.gateway.GetProfile(context.Background())
			require.NoError(t, err)
			assert.Empty(t, p.DetailedData)
		})
	}
}

func TestPersistenceFailureKeepsParsedData(t *testing.T) {
	f := newFixture(t, fixtureOpts{text: "x", certificate: securityCert, skills: `{"skills":["Cyber"]}`, brokenHistory: true})

	res, err := f.orch.SubmitUpload(context.Background(), "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
	require.Error(t, err)
	assert.Equal(t, CodePersistenceFailed, CodeOf(err))
	assert.Equal(t, models.ResultError, res.Status)
	require.NotNil(t, res.ParsedCertificate)
	assert.Equal(t, "Jane Doe", res.ParsedCertificate.Name)
	assert.Nil(t, res.Roadmap)
	f.assertNoTempFiles(t)
}

func TestSubmitURLUnreachable(t *testing.T) {
	f := newFixture(t, fixtureOpts{text: "x", certificate: securityCert})

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL + "/cert.pdf"
	srv.Close()

	res, err := f.orch.SubmitURL(context.Background(), "s1", url)
	require.Error(t, err)
	assert.Equal(t, CodeAcquisitionFailed, CodeOf(err))
	assert.Equal(t, models.ResultError, res.Status)
	assert.Zero(t, f.extractor.calls)
	assert.Zero(t, f.oracle.calls)
	f.assertNoTempFiles(t)

	// nothing was written to any store
	_, statErr := os.Stat(filepath.Join(f.storeDir, persistence.NamespaceDetailedData+".json"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(f.storeDir, persistence.NamespaceSkills+".json"))
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(filepath.Join(f.storeDir, persistence.NamespaceRoadmaps+".json"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestSubmitURLSuccessRecordsURL(t *testing.T) {
	png := testutil.PNG(64, 64)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(png)
	}))
	defer srv.Close()

	f := newFixture(t, fixtureOpts{text: "x", certificate: securityCert, skills: `{"skills":["Web Development"]}`})
	url := srv.URL + "/files/cert"

	res, err := f.orch.SubmitURL(context.Background(), "s1", url)
	require.NoError(t, err)
	assert.Equal(t, url, res.DocumentURL)
	assert.Equal(t, url, res.ParsedCertificate.DocumentURL)
	assert.Equal(t, "Full Stack Developer", res.Roadmap.PotentialRoadmaps[0].CareerTitle)
	f.assertNoTempFiles(t)
}

func TestInvalidInput(t *testing.T) {
	f := newFixture(t, fixtureOpts{})
	ctx := context.Background()

	_, err := f.orch.SubmitUpload(ctx, "", bytes.NewReader([]byte("x")), "a.png")
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	_, err = f.orch.SubmitUpload(ctx, "s1", nil, "")
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	_, err = f.orch.SubmitURL(ctx, "s1", "  ")
	assert.Equal(t, CodeInvalidInput, CodeOf(err))

	// a file that is not a document is rejected and cleaned up
	_, err = f.orch.SubmitUpload(ctx, "s1", bytes.NewReader([]byte("plain text")), "notes.txt")
	assert.Equal(t, CodeInvalidInput, CodeOf(err))
	f.assertNoTempFiles(t)
	assert.Zero(t, f.extractor.calls)
}

func TestRepeatedSubmissionsAppend(t *testing.T) {
	f := newFixture(t, fixtureOpts{text: "x", certificate: securityCert, skills: `{"skills":["Ethical Hacking"]}`})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.orch.SubmitUpload(ctx, "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
		require.NoError(t, err)
	}

	p, err := f.gateway.GetProfile(ctx)
	require.NoError(t, err)
	assert.Len(t, p.DetailedData["s1"], 3)
	assert.Equal(t, []string{"Ethical Hacking"}, p.SkillData["s1"])
}

func TestPanickingStageStillReleasesDocument(t *testing.T) {
	f := newFixture(t, fixtureOpts{extractPanics: true})

	assert.Panics(t, func() {
		_, _ = f.orch.SubmitUpload(context.Background(), "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
	})
	assert.Equal(t, 1, f.extractor.calls)
	f.assertNoTempFiles(t)
}

func TestRoadmapFailureIsSoft(t *testing.T) {
	f := newFixture(t, fixtureOpts{
		text:           "x",
		certificate:    securityCert,
		skills:         `{"skills":["Ethical Hacking"]}`,
		brokenRoadmaps: true,
	})
	ctx := context.Background()

	res, err := f.orch.SubmitUpload(ctx, "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
	require.NoError(t, err)
	assert.Equal(t, models.ResultSuccess, res.Status)
	assert.Nil(t, res.Roadmap)
	assert.GreaterOrEqual(t, f.log.CountLevel("WARN"), 1)

	p, err := f.gateway.GetProfile(ctx)
	require.NoError(t, err)
	assert.Len(t, p.DetailedData["s1"], 1)
	assert.Equal(t, []string{"Ethical Hacking"}, p.SkillData["s1"])
	f.assertNoTempFiles(t)
}

func TestAbandonedRunWritesNothing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	f := newFixture(t, fixtureOpts{text: "x", certificate: securityCert, skills: `{"skills":["Ethical Hacking"]}`})
	// the caller goes away while skills are being extracted
	f.oracle.onSkills = cancel

	res, err := f.orch.SubmitUpload(ctx, "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, models.ResultError, res.Status)
	require.NotNil(t, res.ParsedCertificate)
	assert.Nil(t, res.Roadmap)
	f.assertNoTempFiles(t)

	p, err := f.gateway.GetProfile(context.Background())
	require.NoError(t, err)
	assert.Empty(t, p.DetailedData)
	assert.Empty(t, p.SkillData)
	_, err = f.gateway.GetRoadmap(context.Background(), "s1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestCancelledBeforeStartMakesNoOracleCalls(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := newFixture(t, fixtureOpts{text: "x", certificate: securityCert})
	_, err := f.orch.SubmitUpload(ctx, "s1", bytes.NewReader(testutil.PNG(64, 64)), "cert.png")
	require.Error(t, err)
	assert.Zero(t, f.oracle.calls)
	f.assertNoTempFiles(t)
}
