// Package oracle talks to the language model that reads certificate text.
package oracle

import (
	"context"
	"fmt"

	"github.com/feichai0017/certificate-processor/config"
	"github.com/feichai0017/certificate-processor/pkg/logger"
)

// Oracle completes a single text prompt.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Close() error
}

// New builds the oracle selected by cfg.Provider.
func New(ctx context.Context, cfg config.OracleConfig, log logger.Logger) (Oracle, error) {
	switch cfg.Provider {
	case config.OracleProviderOllama:
		return NewOllamaClient(&OllamaConfig{
			Endpoint:    cfg.Endpoint,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, nil, log), nil
	case config.OracleProviderVertex:
		return NewVertexClient(ctx, &VertexConfig{
			Project:     cfg.Project,
			Region:      cfg.Region,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported oracle provider: %s", cfg.Provider)
	}
}
