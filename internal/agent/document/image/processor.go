// internal/agent/document/image/processor.go
package image

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	"image/png"
	"os"
	"strings"

	"github.com/otiai10/gosseract/v2"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// Processor runs tesseract on a preprocessed image.
type Processor struct {
	logger        logger.Logger
	preprocessors []ImagePreprocessor
	config        *ProcessOptions
}

type ProcessOptions struct {
	Language      []string
	PageSegMode   gosseract.PageSegMode
	MinConfidence float64
	Preprocess    *PreprocessConfig
}

type PreprocessConfig struct {
	MinWidth         int
	DeskewAngleLimit float64
	Contrast         float64
	SharpenSigma     float64
}

func DefaultProcessOptions() *ProcessOptions {
	return &ProcessOptions{
		Language:      []string{"eng"},
		PageSegMode:   gosseract.PSM_AUTO,
		MinConfidence: 60.0,
		Preprocess: &PreprocessConfig{
			MinWidth:         1600,
			DeskewAngleLimit: 5,
			Contrast:         20,
			SharpenSigma:     0.5,
		},
	}
}

func NewProcessor(log logger.Logger, opts *ProcessOptions) (*Processor, error) {
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if opts == nil {
		opts = DefaultProcessOptions()
	}
	if opts.Preprocess == nil {
		opts.Preprocess = DefaultProcessOptions().Preprocess
	}

	preprocessors := []ImagePreprocessor{
		NewGrayscaleProcessor(),
		NewUpscaleProcessor(opts.Preprocess.MinWidth),
		NewContrastNormalizationProcessor(opts.Preprocess.Contrast),
		NewDeskewProcessor(opts.Preprocess.DeskewAngleLimit),
		NewSharpenProcessor(opts.Preprocess.SharpenSigma),
	}

	return &Processor{
		logger:        log.Named("tesseract"),
		preprocessors: preprocessors,
		config:        opts,
	}, nil
}

func (p *Processor) CanProcess(kind models.DocumentKind) bool {
	return kind == models.KindImage
}

func (p *Processor) Process(ctx context.Context, h *models.DocumentHandle) ([]models.DocumentChunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	processed, err := p.applyPreprocessing(img)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, processed); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	// gosseract is not context aware; run it aside so cancellation still returns
	type ocrResult struct {
		text       string
		confidence float64
		err        error
	}
	done := make(chan ocrResult, 1)
	go func() {
		text, conf, err := p.performOCR(buf.Bytes())
		done <- ocrResult{text: text, confidence: conf, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		if res.err != nil {
			return nil, res.err
		}
		return []models.DocumentChunk{{
			Content: res.text,
			Metadata: map[string]interface{}{
				"source":     "tesseract",
				"confidence": res.confidence,
				"page":       1,
			},
		}}, nil
	}
}

func (p *Processor) applyPreprocessing(img image.Image) (image.Image, error) {
	if img == nil {
		return nil, fmt.Errorf("input image is nil")
	}

	var err error
	result := img
	for _, pre := range p.preprocessors {
		result, err = pre.Process(result)
		if err != nil {
			return nil, fmt.Errorf("preprocessing failed: %w", err)
		}
		if result == nil {
			return nil, fmt.Errorf("preprocessor returned nil image")
		}
	}
	return result, nil
}

func (p *Processor) performOCR(data []byte) (string, float64, error) {
	client := gosseract.NewClient()
	defer client.Close()

	if err := client.SetLanguage(strings.Join(p.config.Language, "+")); err != nil {
		return "", 0, fmt.Errorf("failed to set language: %w", err)
	}
	if err := client.SetPageSegMode(p.config.PageSegMode); err != nil {
		return "", 0, fmt.Errorf("failed to set page segmentation mode: %w", err)
	}
	if err := client.SetImageFromBytes(data); err != nil {
		return "", 0, fmt.Errorf("failed to set image: %w", err)
	}

	text, err := client.Text()
	if err != nil {
		return "", 0, fmt.Errorf("failed to get text: %w", err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		p.logger.Warn("Failed to get bounding boxes", logger.Error(err))
		return text, 0, nil
	}
	return text, p.meanConfidence(boxes), nil
}

func (p *Processor) meanConfidence(boxes []gosseract.BoundingBox) float64 {
	var total float64
	var n int
	for _, box := range boxes {
		if box.Confidence >= p.config.MinConfidence {
			total += box.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return total / float64(n)
}

func (p *Processor) Close() error {
	return nil
}
