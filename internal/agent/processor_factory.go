package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/feichai0017/certificate-processor/config"
	"github.com/feichai0017/certificate-processor/internal/agent/document"
	"github.com/feichai0017/certificate-processor/internal/agent/document/image"
	"github.com/feichai0017/certificate-processor/internal/agent/document/pdf"
	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/converters"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// ProcessorFactory dispatches documents to the OCR engine for their kind.
type ProcessorFactory struct {
	processors map[models.DocumentKind]document.Processor
	converter  *converters.TextConverter
	timeout    time.Duration
	logger     logger.Logger
}

// NewProcessorFactory wires ocrmypdf for paginated documents and the
// configured image engine for images.
func NewProcessorFactory(ctx context.Context, cfg *config.Config, log logger.Logger) (*ProcessorFactory, error) {
	pdfProcessor := pdf.NewProcessor(pdf.Config{
		Binary:   cfg.OCR.OCRmyPDF,
		Language: cfg.OCR.Language,
		WorkDir:  cfg.Acquire.TempDir,
	}, nil, log)

	var imageProcessor document.Processor
	switch cfg.OCR.ImageEngine {
	case config.ImageEngineTextract:
		p, err := image.NewTextractProcessor(ctx, &image.TextractConfig{
			Region:        cfg.Textract.Region,
			AccessKey:     cfg.Textract.AccessKey,
			SecretKey:     cfg.Textract.SecretKey,
			MinConfidence: 50,
		}, log)
		if err != nil {
			return nil, fmt.Errorf("failed to create textract processor: %w", err)
		}
		imageProcessor = p
	default:
		opts := image.DefaultProcessOptions()
		opts.Language = []string{cfg.OCR.Language}
		p, err := image.NewProcessor(log, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create image processor: %w", err)
		}
		imageProcessor = p
	}

	return NewProcessorFactoryWith(log, cfg.OCR.Timeout, pdfProcessor, imageProcessor), nil
}

// NewProcessorFactoryWith registers each processor for every kind it accepts.
func NewProcessorFactoryWith(log logger.Logger, timeout time.Duration, processors ...document.Processor) *ProcessorFactory {
	f := &ProcessorFactory{
		processors: make(map[models.DocumentKind]document.Processor),
		converter:  converters.NewTextConverter(),
		timeout:    timeout,
		logger:     log.Named("extractor"),
	}
	for _, kind := range []models.DocumentKind{models.KindImage, models.KindPaginatedDocument} {
		for _, p := range processors {
			if p.CanProcess(kind) {
				f.processors[kind] = p
				break
			}
		}
	}
	return f
}

func (f *ProcessorFactory) GetProcessor(kind models.DocumentKind) (document.Processor, error) {
	processor, ok := f.processors[kind]
	if !ok {
		return nil, fmt.Errorf("no processor found for document kind: %s", kind)
	}
	return processor, nil
}

// Extract runs OCR for the handle's kind under the OCR timeout. An empty
// result is not an error here.
func (f *ProcessorFactory) Extract(ctx context.Context, h *models.DocumentHandle) (*converters.ExtractedText, error) {
	processor, err := f.GetProcessor(h.Kind)
	if err != nil {
		return nil, err
	}

	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	start := time.Now()
	chunks, err := processor.Process(ctx, h)
	if err != nil {
		return nil, err
	}

	text := f.converter.Convert(chunks)
	f.logger.Info("Text extracted",
		logger.String("kind", string(h.Kind)),
		logger.Int("pages", text.Pages),
		logger.Int("chars", len(text.Text)),
		logger.Duration("duration", time.Since(start)),
	)
	return text, nil
}

func (f *ProcessorFactory) Close() error {
	seen := make(map[document.Processor]bool)
	for _, p := range f.processors {
		if seen[p] {
			continue
		}
		seen[p] = true
		if err := p.Close(); err != nil {
			return err
		}
	}
	return nil
}
