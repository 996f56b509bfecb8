package openrouter

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/BaSui01/llmcouncil/llm"
	"github.com/BaSui01/llmcouncil/llm/providers"
	"github.com/BaSui01/llmcouncil/llm/providers/openaicompat"
	"go.uber.org/zap"
)

const (
	// DefaultBaseURL is the OpenRouter API root.
	DefaultBaseURL = "https://openrouter.ai/api/v1"
	// DefaultTimeout bounds a single model query.
	DefaultTimeout = 120 * time.Second

	providerName = "openrouter"
)

// Config configures the OpenRouter provider.
type Config struct {
	APIKey     string        `json:"api_key" yaml:"api_key"`
	BaseURL    string        `json:"base_url" yaml:"base_url"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	MaxRetries int           `json:"max_retries" yaml:"max_retries"`
	// Referer and AppTitle populate OpenRouter's app attribution headers.
	Referer  string `json:"referer,omitempty" yaml:"referer,omitempty"`
	AppTitle string `json:"app_title,omitempty" yaml:"app_title,omitempty"`
	// MaxIdleConnsPerHost should be at least the council size.
	MaxIdleConnsPerHost int `json:"max_idle_conns_per_host,omitempty" yaml:"max_idle_conns_per_host,omitempty"`
}

// Provider talks to OpenRouter's OpenAI-compatible chat completions API.
type Provider struct {
	*openaicompat.Provider
}

// New creates an OpenRouter provider. observer may be nil.
func New(cfg Config, observer llm.CallObserver, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}

	p := &Provider{
		Provider: openaicompat.New(openaicompat.Config{
			ProviderName:        providerName,
			APIKey:              cfg.APIKey,
			BaseURL:             cfg.BaseURL,
			DefaultModel:        DefaultTitleModel,
			Timeout:             cfg.Timeout,
			MaxRetries:          cfg.MaxRetries,
			MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
			Observer:            observer,
		}, logger),
	}
	p.SetBuildHeaders(func(req *http.Request, apiKey string) {
		providers.BearerTokenHeaders(req, apiKey)
		if cfg.Referer != "" {
			req.Header.Set("HTTP-Referer", cfg.Referer)
		}
		if cfg.AppTitle != "" {
			req.Header.Set("X-Title", cfg.AppTitle)
		}
	})
	return p
}

// Reply is the assistant message of a single model query.
type Reply struct {
	Content          string          `json:"content"`
	ReasoningDetails json.RawMessage `json:"reasoning_details,omitempty"`
}

// QueryModel sends messages to one model and returns its first choice.
// A zero timeout uses the provider default. The error is non-nil on any
// transport, HTTP or decoding failure, and when the response has no choices.
func QueryModel(ctx context.Context, c llm.Completer, model string, messages []llm.Message, timeout time.Duration) (*Reply, error) {
	resp, err := c.Completion(ctx, &llm.ChatRequest{
		Model:    model,
		Messages: messages,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}
	choice, err := llm.FirstChoice(resp)
	if err != nil {
		return nil, &llm.Error{
			Code:       llm.ErrEmptyResponse,
			Message:    err.Error(),
			HTTPStatus: http.StatusBadGateway,
			Provider:   resp.Provider,
		}
	}
	return &Reply{
		Content:          choice.Message.Content,
		ReasoningDetails: choice.Message.ReasoningDetails,
	}, nil
}

// QueryModel is the method form of the package-level QueryModel.
func (p *Provider) QueryModel(ctx context.Context, model string, messages []llm.Message, timeout time.Duration) (*Reply, error) {
	return QueryModel(ctx, p, model, messages, timeout)
}

var _ llm.Provider = (*Provider)(nil)
