package image

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"

	"github.com/feichai0017/certificate-processor/internal/models"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// TextractAPI is the subset of the Textract client used here.
type TextractAPI interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
}

// TextractProcessor sends images to AWS Textract instead of a local tesseract.
type TextractProcessor struct {
	client TextractAPI
	logger logger.Logger
	config *TextractConfig
}

type TextractConfig struct {
	Region        string
	AccessKey     string
	SecretKey     string
	MinConfidence float32
}

func NewTextractProcessor(ctx context.Context, cfg *TextractConfig, log logger.Logger) (*TextractProcessor, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load AWS config: %w", err)
	}

	return NewTextractProcessorWithClient(textract.NewFromConfig(awsCfg), cfg, log), nil
}

func NewTextractProcessorWithClient(client TextractAPI, cfg *TextractConfig, log logger.Logger) *TextractProcessor {
	return &TextractProcessor{
		client: client,
		logger: log.Named("textract"),
		config: cfg,
	}
}

func (p *TextractProcessor) CanProcess(kind models.DocumentKind) bool {
	return kind == models.KindImage
}

func (p *TextractProcessor) Process(ctx context.Context, h *models.DocumentHandle) ([]models.DocumentChunk, error) {
	data, err := os.ReadFile(h.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	result, err := p.client.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to detect document text: %w", err)
	}

	lines, confidence := p.processBlocks(result.Blocks)
	p.logger.Debug("Textract finished",
		logger.Int("lines", len(lines)),
		logger.Float64("confidence", confidence),
	)

	return []models.DocumentChunk{{
		Content: strings.Join(lines, "\n"),
		Metadata: map[string]interface{}{
			"source":     "textract",
			"confidence": confidence,
			"page":       1,
		},
	}}, nil
}

// processBlocks keeps LINE blocks at or above the configured confidence.
func (p *TextractProcessor) processBlocks(blocks []types.Block) ([]string, float64) {
	var lines []string
	var total float64
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		if block.Confidence != nil && *block.Confidence < p.config.MinConfidence {
			continue
		}
		lines = append(lines, *block.Text)
		if block.Confidence != nil {
			total += float64(*block.Confidence)
		}
	}
	if len(lines) == 0 {
		return nil, 0
	}
	return lines, total / float64(len(lines))
}

func (p *TextractProcessor) Close() error {
	return nil
}
