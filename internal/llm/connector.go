package llm

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider represents an AI provider type
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderGemini    Provider = "gemini"
	ProviderOllama    Provider = "ollama"
)

// ConnectorOptions contains options for creating a connector
type ConnectorOptions struct {
	Provider    Provider
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	JSONMode    bool
}

// Connector wraps a langchaingo model with the call options used for classification
type Connector struct {
	provider Provider
	llm      llms.Model
	options  ConnectorOptions
}

// NewConnector creates a new connector for the specified provider
func NewConnector(ctx context.Context, options ConnectorOptions) (*Connector, error) {
	var model llms.Model
	var err error

	log.Debug().
		Str("provider", string(options.Provider)).
		Str("model", options.Model).
		Float64("temperature", options.Temperature).
		Msg("Creating model connector")

	switch options.Provider {
	case ProviderOpenAI:
		opts := []openai.Option{
			openai.WithModel(options.Model),
			openai.WithToken(options.APIKey),
		}
		if options.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(options.BaseURL))
		}
		model, err = openai.New(opts...)
	case ProviderAnthropic:
		model, err = anthropic.New(
			anthropic.WithToken(options.APIKey),
			anthropic.WithModel(options.Model),
		)
	case ProviderGemini:
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(options.APIKey),
			googleai.WithDefaultModel(options.Model),
		)
	case ProviderOllama:
		baseURL := options.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, err = ollama.New(
			ollama.WithServerURL(baseURL),
			ollama.WithModel(options.Model),
		)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", options.Provider)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create model for provider %s: %w", options.Provider, err)
	}

	return NewConnectorWithModel(options, model), nil
}

// NewConnectorWithModel wraps an already constructed model
func NewConnectorWithModel(options ConnectorOptions, model llms.Model) *Connector {
	return &Connector{provider: options.Provider, llm: model, options: options}
}

// Call sends a single prompt and returns the raw completion text
func (c *Connector) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	callOptions := []llms.CallOption{
		llms.WithTemperature(c.options.Temperature),
	}
	if c.options.JSONMode {
		callOptions = append(callOptions, llms.WithJSONMode())
	}
	callOptions = append(callOptions, options...)

	return llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, callOptions...)
}

// Provider returns the provider of this connector
func (c *Connector) Provider() Provider {
	return c.provider
}

// Model returns the configured model name
func (c *Connector) Model() string {
	return c.options.Model
}
