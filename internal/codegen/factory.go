package codegen

import (
	"fmt"

	"github.com/tabletalk/tabletalk/internal/config"
)

// New builds the generator selected by cfg.Provider.
func New(cfg config.AIConfig) (Generator, error) {
	clientCfg := ClientConfig{
		BaseURL: cfg.BaseURL,
		APIKey:  cfg.APIKey,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
	}
	switch cfg.Provider {
	case config.AIProviderOpenAI:
		gen, err := NewOpenAIGenerator(clientCfg)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.AIProviderGemini:
		gen, err := NewGeminiGenerator(clientCfg)
		if err != nil {
			return nil, err
		}
		return gen, nil
	default:
		return nil, fmt.Errorf("unsupported AI provider %q", cfg.Provider)
	}
}
