package acquire

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/internal/utils/validator"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

var (
	// ErrInvalidDocument is returned when the acquired bytes fail validation.
	ErrInvalidDocument = errors.New("invalid document")
	// ErrTooLarge is returned when the body exceeds the configured size cap.
	ErrTooLarge = errors.New("document exceeds size limit")
)

// Config controls where documents land and how remote fetches are bounded.
type Config struct {
	TempDir      string
	FetchTimeout time.Duration
	MaxFileSize  int64
	MaxPages     int
}

// Acquirer turns uploads and URLs into DocumentHandles on local disk.
type Acquirer struct {
	cfg       Config
	client    *http.Client
	validator *validator.DocumentValidator
	logger    logger.Logger
}

func NewAcquirer(cfg Config, client *http.Client, log logger.Logger) *Acquirer {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 30 * time.Second
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 20 * 1024 * 1024
	}
	if client == nil {
		client = &http.Client{}
	}
	if log == nil {
		log = logger.NewNop()
	}

	return &Acquirer{
		cfg:    cfg,
		client: client,
		validator: validator.NewDocumentValidator(log, &validator.ValidatorConfig{
			MaxFileSize:  cfg.MaxFileSize,
			MaxPageCount: cfg.MaxPages,
		}),
		logger: log.Named("acquirer"),
	}
}

// FromUpload writes an uploaded stream to a unique temp file.
func (a *Acquirer) FromUpload(ctx context.Context, r io.Reader, filename string) (*models.DocumentHandle, error) {
	if r == nil {
		return nil, fmt.Errorf("%w: missing upload body", ErrInvalidDocument)
	}
	filename = sanitizeFilename(filename)
	if filename == "" {
		filename = "document"
	}
	return a.persist(ctx, r, filename, "")
}

// FromURL fetches rawURL within the configured timeout and writes the body to
// a unique temp file.
func (a *Acquirer) FromURL(ctx context.Context, rawURL string) (*models.DocumentHandle, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: unsupported document url %q", ErrInvalidDocument, rawURL)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch document: unexpected status code %d", resp.StatusCode)
	}

	filename := FilenameFromURL(u, resp.Header.Get("Content-Type"))

	h, err := a.persist(ctx, resp.Body, filename, u.String())
	if err != nil {
		return nil, err
	}

	a.logger.Info("Document downloaded",
		logger.String("url", u.String()),
		logger.String("filename", filename),
		logger.Int64("size", h.Size),
		logger.Duration("elapsed", time.Since(start)),
	)
	return h, nil
}

// Release removes the handle's temp file. Safe to call on nil and more than once.
func (a *Acquirer) Release(h *models.DocumentHandle) error {
	if h == nil || h.Path == "" {
		return nil
	}
	if err := os.Remove(h.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove temp document: %w", err)
	}
	return nil
}

func (a *Acquirer) persist(ctx context.Context, r io.Reader, filename, sourceURL string) (*models.DocumentHandle, error) {
	if err := os.MkdirAll(a.cfg.TempDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to prepare temp dir: %w", err)
	}

	// uuid prefix keeps concurrent runs for the same filename apart
	tmpPath := filepath.Join(a.cfg.TempDir, uuid.New().String()+"_"+filename)
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}

	n, err := io.Copy(f, io.LimitReader(&ctxReader{ctx: ctx, r: r}, a.cfg.MaxFileSize+1))
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err == nil && n > a.cfg.MaxFileSize {
		err = fmt.Errorf("%w: more than %d bytes", ErrTooLarge, a.cfg.MaxFileSize)
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write document: %w", err)
	}

	result, err := a.validator.ValidateFile(tmpPath, filename)
	if err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to validate document: %w", err)
	}
	if !result.IsValid {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("%w: %s", ErrInvalidDocument, result.Error())
	}

	return &models.DocumentHandle{
		Path:             tmpPath,
		OriginalFilename: filename,
		Kind:             result.FileInfo.Kind,
		MimeType:         result.FileInfo.MimeType,
		Size:             n,
		SourceURL:        sourceURL,
	}, nil
}

// FilenameFromURL takes the last path segment of u and, when it carries no
// extension, derives one from the response content type.
func FilenameFromURL(u *url.URL, contentType string) string {
	name := sanitizeFilename(path.Base(u.Path))
	if name == "" {
		name = "document"
	}
	if !strings.Contains(name, ".") {
		ct := strings.ToLower(contentType)
		switch {
		case strings.Contains(ct, "pdf"):
			name += ".pdf"
		case strings.Contains(ct, "jpeg"), strings.Contains(ct, "jpg"):
			name += ".jpg"
		case strings.Contains(ct, "png"):
			name += ".png"
		default:
			name += ".jpg"
		}
	}
	return name
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	switch name {
	case ".", "/", "..":
		return ""
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == 0 {
			return '_'
		}
		return r
	}, name)
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
