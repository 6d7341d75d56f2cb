package pdf

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// Config controls the ocrmypdf invocation.
type Config struct {
	Binary   string
	Language string
	WorkDir  string
}

// Processor re-OCRs a whole PDF with ocrmypdf and reads the sidecar text.
// Embedded text layers are ignored so scanned and born-digital certificates
// go through the same engine.
type Processor struct {
	runner Runner
	logger logger.Logger
	config Config
}

func NewProcessor(cfg Config, runner Runner, log logger.Logger) *Processor {
	if cfg.Binary == "" {
		cfg.Binary = "ocrmypdf"
	}
	if cfg.Language == "" {
		cfg.Language = "eng"
	}
	if cfg.WorkDir == "" {
		cfg.WorkDir = os.TempDir()
	}
	if runner == nil {
		runner = ExecRunner{Logger: log}
	}
	return &Processor{
		runner: runner,
		logger: log.Named("ocrmypdf"),
		config: cfg,
	}
}

func (p *Processor) CanProcess(kind models.DocumentKind) bool {
	return kind == models.KindPaginatedDocument
}

func (p *Processor) Process(ctx context.Context, h *models.DocumentHandle) ([]models.DocumentChunk, error) {
	base := filepath.Join(p.config.WorkDir, "ocr_"+uuid.NewString())
	outPDF := base + ".pdf"
	sidecar := base + ".txt"
	defer p.remove(outPDF)
	defer p.remove(sidecar)

	args := []string{
		"--deskew",
		"--force-ocr",
		"--sidecar", sidecar,
		"--quiet",
		"-l", p.config.Language,
		h.Path, outPDF,
	}
	_, stderr, err := p.runner.Run(ctx, p.config.Binary, args...)
	if err != nil {
		if msg := strings.TrimSpace(string(stderr)); msg != "" {
			return nil, fmt.Errorf("ocrmypdf failed: %s: %w", truncate(msg, 512), err)
		}
		return nil, fmt.Errorf("ocrmypdf failed: %w", err)
	}

	data, err := os.ReadFile(sidecar)
	if err != nil {
		return nil, fmt.Errorf("failed to read sidecar: %w", err)
	}

	// ocrmypdf separates pages in the sidecar with form feeds
	pages := strings.Split(string(data), "\f")
	chunks := make([]models.DocumentChunk, 0, len(pages))
	for i, page := range pages {
		if i == len(pages)-1 && strings.TrimSpace(page) == "" {
			break
		}
		chunks = append(chunks, models.DocumentChunk{
			Content: page,
			Metadata: map[string]interface{}{
				"source":     "ocrmypdf",
				"pageNumber": i + 1,
			},
		})
	}

	p.logger.Debug("PDF OCR finished",
		logger.String("file", h.OriginalFilename),
		logger.Int("pages", len(chunks)),
	)
	return chunks, nil
}

func (p *Processor) remove(path string) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("Failed to remove OCR artifact",
			logger.String("path", path),
			logger.Error(err),
		)
	}
}

func (p *Processor) Close() error {
	return nil
}
