package oracle

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ashureev/trainingdesk/internal/config"
)

// New builds the oracle named by cfg.Provider. The returned function
// releases its resources.
func New(ctx context.Context, cfg config.OracleConfig, logger *slog.Logger) (Oracle, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Provider {
	case config.ProviderGRPC:
		gc := DefaultGRPCConfig()
		gc.Address = cfg.Addr
		c, err := NewGRPCClient(gc, logger)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	case config.ProviderOpenAI:
		c := NewOpenAI(OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
		logger.Info("Using OpenAI oracle", "model", c.cfg.Model, "base_url", c.cfg.BaseURL)
		return c, func() {}, nil
	case config.ProviderGemini:
		model := cfg.Model
		// The ORACLE_MODEL default names an OpenAI model.
		if model == "gpt-4o" {
			model = ""
		}
		c, err := NewGemini(ctx, cfg.GoogleAPIKey, model)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using Gemini oracle", "model", c.Name())
		return c, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown oracle provider %q", cfg.Provider)
	}
}
