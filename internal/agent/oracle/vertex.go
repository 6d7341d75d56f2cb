package oracle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/vertexai/genai"

	"github.com/feichai0017/certificate-processor/pkg/logger"
)

type VertexConfig struct {
	Project     string
	Region      string
	Model       string
	Temperature float32
	Timeout     time.Duration
}

// VertexClient calls Gemini through Vertex AI.
type VertexClient struct {
	model      *genai.GenerativeModel
	baseClient *genai.Client
	timeout    time.Duration
	logger     logger.Logger
}

func NewVertexClient(ctx context.Context, cfg *VertexConfig, log logger.Logger) (*VertexClient, error) {
	if cfg.Project == "" || cfg.Region == "" {
		return nil, fmt.Errorf("vertex project and region cannot be empty")
	}

	baseClient, err := genai.NewClient(ctx, cfg.Project, cfg.Region)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	model := baseClient.GenerativeModel(cfg.Model)
	model.GenerationConfig = genai.GenerationConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](cfg.Temperature),
	}

	return &VertexClient{
		model:      model,
		baseClient: baseClient,
		timeout:    cfg.Timeout,
		logger:     log.Named("vertex"),
	}, nil
}

func (c *VertexClient) Complete(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("model returned no text")
	}

	c.logger.Debug("Oracle call finished",
		logger.Int("chars", len(text)),
		logger.Duration("duration", time.Since(start)),
	)
	return text, nil
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			b.WriteString(string(txt))
		}
	}
	return b.String()
}

func (c *VertexClient) Close() error {
	return c.baseClient.Close()
}
