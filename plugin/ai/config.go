package ai

import (
	"errors"

	"github.com/infoagent/infoagent/internal/profile"
)

// Config represents AI configuration.
type Config struct {
	Enabled bool

	Embedding EmbeddingConfig
	LLM       LLMConfig
}

// EmbeddingConfig represents vector embedding configuration.
type EmbeddingConfig struct {
	Provider   string // openai, or any OpenAI-compatible endpoint
	Model      string // text-embedding-3-small
	Dimensions int    // 1536
	APIKey     string
	BaseURL    string
}

// LLMConfig represents LLM configuration.
type LLMConfig struct {
	Provider    string  // openai, or any OpenAI-compatible endpoint
	Model       string  // gpt-4o-mini
	APIKey      string
	BaseURL     string
	MaxTokens   int     // default: 2048
	Temperature float32 // default: 0.2

	// RequestsPerMinute bounds extraction-call throughput. 0 disables
	// rate limiting.
	RequestsPerMinute int
}

// NewConfigFromProfile creates AI config from profile.
func NewConfigFromProfile(p *profile.Profile) *Config {
	cfg := &Config{
		Enabled: p.IsAIEnabled(),
	}
	if !cfg.Enabled {
		return cfg
	}

	cfg.Embedding = EmbeddingConfig{
		Provider:   p.AIProvider,
		Model:      p.AIEmbeddingModel,
		Dimensions: p.AIDimensions,
		APIKey:     p.AIAPIKey,
		BaseURL:    p.AIBaseURL,
	}
	cfg.LLM = LLMConfig{
		Provider:          p.AIProvider,
		Model:             p.AILLMModel,
		APIKey:            p.AIAPIKey,
		BaseURL:           p.AIBaseURL,
		MaxTokens:         2048,
		Temperature:       0.2,
		RequestsPerMinute: 60,
	}
	return cfg
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}

	if c.Embedding.Model == "" {
		return errors.New("embedding model is required")
	}
	if c.Embedding.APIKey == "" {
		return errors.New("embedding API key is required")
	}
	if c.LLM.Model == "" {
		return errors.New("LLM model is required")
	}
	if c.LLM.APIKey == "" {
		return errors.New("LLM API key is required")
	}
	return nil
}
