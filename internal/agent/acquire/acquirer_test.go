package acquire

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/testutil"
)

func newTestAcquirer(t *testing.T) *Acquirer {
	t.Helper()
	return NewAcquirer(Config{
		TempDir:      t.TempDir(),
		FetchTimeout: 200 * time.Millisecond,
		MaxFileSize:  1 << 20,
	}, nil, nil)
}

func TestFromUploadCreatesUniqueHandles(t *testing.T) {
	a := newTestAcquirer(t)
	data := testutil.PNG(64, 64)

	h1, err := a.FromUpload(context.Background(), bytes.NewReader(data), "cert.png")
	require.NoError(t, err)
	h2, err := a.FromUpload(context.Background(), bytes.NewReader(data), "cert.png")
	require.NoError(t, err)

	assert.NotEqual(t, h1.Path, h2.Path)
	assert.Equal(t, "cert.png", h1.OriginalFilename)
	assert.Equal(t, models.KindImage, h1.Kind)
	assert.Equal(t, int64(len(data)), h1.Size)
	assert.FileExists(t, h1.Path)

	require.NoError(t, a.Release(h1))
	require.NoError(t, a.Release(h1))
	assert.NoFileExists(t, h1.Path)
	require.NoError(t, a.Release(h2))
}

func TestFromUploadRejectsInvalidAndCleansUp(t *testing.T) {
	a := newTestAcquirer(t)

	_, err := a.FromUpload(context.Background(), bytes.NewReader([]byte("hello")), "notes.txt")
	require.ErrorIs(t, err, ErrInvalidDocument)

	entries, err := os.ReadDir(a.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFromUploadEnforcesSizeCap(t *testing.T) {
	a := NewAcquirer(Config{TempDir: t.TempDir(), MaxFileSize: 10}, nil, nil)

	_, err := a.FromUpload(context.Background(), bytes.NewReader(testutil.PNG(64, 64)), "big.png")
	require.ErrorIs(t, err, ErrTooLarge)
}

func TestFromURLInfersPDFFromContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write(testutil.PDF(1))
	}))
	defer srv.Close()

	a := newTestAcquirer(t)
	h, err := a.FromURL(context.Background(), srv.URL+"/certificates/abc123")
	require.NoError(t, err)
	defer a.Release(h)

	assert.Equal(t, "abc123.pdf", h.OriginalFilename)
	assert.Equal(t, models.KindPaginatedDocument, h.Kind)
	assert.Equal(t, srv.URL+"/certificates/abc123", h.SourceURL)
}

func TestFromURLFailures(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer slow.Close()

	missing := httptest.NewServer(http.NotFoundHandler())
	defer missing.Close()

	a := newTestAcquirer(t)

	tests := []struct {
		name string
		url  string
	}{
		{"timeout", slow.URL + "/cert.png"},
		{"not found", missing.URL + "/cert.png"},
		{"unreachable", "http://127.0.0.1:1/cert.png"},
		{"bad scheme", "ftp://example.com/cert.png"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, err := a.FromURL(context.Background(), tt.url)
			assert.Error(t, err)
			assert.Nil(t, h)
		})
	}

	entries, err := os.ReadDir(a.cfg.TempDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestFilenameFromURL(t *testing.T) {
	tests := []struct {
		raw, contentType, want string
	}{
		{"https://cdn.example.com/a/cert.png", "application/octet-stream", "cert.png"},
		{"https://cdn.example.com/a/cert", "application/pdf", "cert.pdf"},
		{"https://cdn.example.com/a/cert", "image/jpeg", "cert.jpg"},
		{"https://cdn.example.com/a/cert", "image/png", "cert.png"},
		{"https://cdn.example.com/a/cert", "text/html", "cert.jpg"},
		{"https://cdn.example.com/", "image/png", "document.png"},
	}
	for _, tt := range tests {
		u, err := url.Parse(tt.raw)
		require.NoError(t, err)
		assert.Equal(t, tt.want, FilenameFromURL(u, tt.contentType), tt.raw)
	}
}
