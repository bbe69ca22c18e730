package assistant

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/deepseek"
	"github.com/cloudwego/eino-ext/components/model/ollama"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

// Config selects and tunes the chat model behind the assistant.
type Config struct {
	Provider    string  `yaml:"provider" envconfig:"ASSISTANT_PROVIDER"`
	Model       string  `yaml:"model" envconfig:"ASSISTANT_MODEL"`
	APIKey      string  `yaml:"-" envconfig:"ASSISTANT_API_KEY"`
	BaseURL     string  `yaml:"base_url" envconfig:"ASSISTANT_BASE_URL"`
	MaxTokens   int     `yaml:"max_tokens" envconfig:"ASSISTANT_MAX_TOKENS"`
	Temperature float32 `yaml:"temperature" envconfig:"ASSISTANT_TEMPERATURE"`

	// ThreadLimit is the number of messages a service thread may hold before
	// the client rolls over to a fresh thread.
	ThreadLimit int `yaml:"thread_limit" envconfig:"ASSISTANT_THREAD_LIMIT"`
	// ThreadTTLSeconds bounds how long idle thread history stays cached.
	ThreadTTLSeconds int `yaml:"thread_ttl_seconds" envconfig:"ASSISTANT_THREAD_TTL"`
}

// NewChatModel builds the configured provider's chat model.
func NewChatModel(ctx context.Context, cfg Config) (model.BaseChatModel, error) {
	switch cfg.Provider {
	case "openai", "":
		maxTokens := cfg.MaxTokens
		temperature := cfg.Temperature
		cm, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   &maxTokens,
			Temperature: &temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating openai chat model: %w", err)
		}
		return cm, nil
	case "ark":
		cm, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ark chat model: %w", err)
		}
		return cm, nil
	case "deepseek":
		cm, err := deepseek.NewChatModel(ctx, &deepseek.ChatModelConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating deepseek chat model: %w", err)
		}
		return cm, nil
	case "ollama":
		cm, err := ollama.NewChatModel(ctx, &ollama.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		})
		if err != nil {
			return nil, fmt.Errorf("error creating ollama chat model: %w", err)
		}
		return cm, nil
	default:
		return nil, fmt.Errorf("unknown assistant provider: %s", cfg.Provider)
	}
}
