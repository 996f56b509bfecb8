// =============================================================================
// OpenAI-Compatible Chat Completions Client
// =============================================================================
// Shared HTTP implementation for routers speaking the OpenAI chat format.
// The OpenRouter provider embeds this and only overrides what differs
// (Name, BaseURL, attribution headers).
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/llmcouncil/internal/tlsutil"
	"github.com/BaSui01/llmcouncil/llm"
	"github.com/BaSui01/llmcouncil/llm/providers"
	"github.com/BaSui01/llmcouncil/llm/retry"
	"go.uber.org/zap"
)

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider (e.g., "openrouter").
	ProviderName string

	// APIKey is the bearer token sent on every request.
	APIKey string

	// BaseURL is the API root, e.g. "https://openrouter.ai/api/v1".
	BaseURL string

	// DefaultModel is the model to use when none is specified in the request.
	DefaultModel string

	// Timeout bounds a single upstream attempt when the request carries none.
	// Defaults to 120s if zero.
	Timeout time.Duration

	// EndpointPath is the chat completions endpoint path. Defaults to "/chat/completions".
	EndpointPath string

	// ModelsEndpoint is the models list endpoint path. Defaults to "/models".
	ModelsEndpoint string

	// BuildHeaders is an optional function to set custom headers on each request.
	// If nil, the default "Authorization: Bearer <apiKey>" header is used.
	BuildHeaders func(req *http.Request, apiKey string)

	// MaxRetries is the number of extra attempts for retryable upstream errors.
	MaxRetries int

	// MaxIdleConnsPerHost sizes the connection pool for parallel fan-out.
	MaxIdleConnsPerHost int

	// Observer is called once per Completion with the final outcome.
	Observer llm.CallObserver
}

// Provider is the base implementation for OpenAI-compatible routers.
type Provider struct {
	Cfg     Config
	Client  *http.Client
	Logger  *zap.Logger
	retryer *retry.Retryer
}

// New creates a new OpenAI-compatible provider with the given config.
func New(cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if cfg.ModelsEndpoint == "" {
		cfg.ModelsEndpoint = "/models"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "provider"), zap.String("provider", cfg.ProviderName))

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.MaxRetries
	policy.ShouldRetry = llm.IsRetryable

	return &Provider{
		Cfg: cfg,
		// 每次请求的超时由 context 控制
		Client:  tlsutil.NewHTTPClient(tlsutil.ClientOptions{MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost}),
		Logger:  logger,
		retryer: retry.New(policy, logger),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// SetBuildHeaders sets custom header builder for the provider.
func (p *Provider) SetBuildHeaders(fn func(req *http.Request, apiKey string)) {
	p.Cfg.BuildHeaders = fn
}

// buildHeaders applies headers to the HTTP request.
func (p *Provider) buildHeaders(req *http.Request, apiKey string) {
	if p.Cfg.BuildHeaders != nil {
		p.Cfg.BuildHeaders(req, apiKey)
		return
	}
	providers.BearerTokenHeaders(req, apiKey)
}

// endpoint builds the full URL for a given path.
func (p *Provider) endpoint(path string) string {
	return fmt.Sprintf("%s%s", strings.TrimRight(p.Cfg.BaseURL, "/"), path)
}

// HealthCheck verifies the provider is reachable.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	latency := time.Since(start)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, Latency: latency}, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg := providers.ReadErrorMessage(resp.Body)
		return &llm.HealthStatus{Healthy: false, Latency: latency},
			fmt.Errorf("%s health check failed: status=%d msg=%s", p.Cfg.ProviderName, resp.StatusCode, msg)
	}

	return &llm.HealthStatus{Healthy: true, Latency: latency}, nil
}

// ListModels returns the list of available models.
func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.endpoint(p.Cfg.ModelsEndpoint), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var modelsResp struct {
		Data []llm.Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&modelsResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Provider: p.Name(),
		}
	}
	return modelsResp.Data, nil
}

// Completion performs a non-streaming chat completion.
// Retryable upstream errors are retried up to Cfg.MaxRetries times; each
// attempt is bounded by the request timeout.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	if strings.TrimSpace(p.Cfg.APIKey) == "" {
		return nil, &llm.Error{
			Code:       llm.ErrNotConfigured,
			Message:    fmt.Sprintf("%s API key is not configured", p.Name()),
			HTTPStatus: http.StatusUnauthorized,
			Provider:   p.Name(),
		}
	}

	model := providers.ChooseModel(req, p.Cfg.DefaultModel)
	payload, err := json.Marshal(providers.OpenAICompatRequest{
		Model:       model,
		Messages:    providers.ConvertMessagesToOpenAI(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = p.Cfg.Timeout
	}

	start := time.Now()
	resp, err := retry.Do(ctx, p.retryer, func(ctx context.Context) (*llm.ChatResponse, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return p.once(attemptCtx, payload)
	})
	duration := time.Since(start)

	if p.Cfg.Observer != nil {
		var usage llm.ChatUsage
		if resp != nil {
			usage = resp.Usage
		}
		p.Cfg.Observer(model, duration, usage, err)
	}
	if err != nil {
		p.Logger.Debug("completion failed",
			zap.String("model", model),
			zap.Duration("duration", duration),
			zap.Error(err),
		)
		return nil, err
	}
	return resp, nil
}

func (p *Provider) once(ctx context.Context, payload []byte) (*llm.ChatResponse, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint(p.Cfg.EndpointPath), bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	p.buildHeaders(httpReq, p.Cfg.APIKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.MapTransportError(err, p.Name())
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg := providers.ReadErrorMessage(resp.Body)
		return nil, providers.MapHTTPError(resp.StatusCode, msg, p.Name())
	}

	var oaResp providers.OpenAICompatResponse
	if err := json.NewDecoder(resp.Body).Decode(&oaResp); err != nil {
		return nil, &llm.Error{
			Code: llm.ErrUpstreamError, Message: err.Error(),
			HTTPStatus: http.StatusBadGateway, Retryable: true, Provider: p.Name(),
		}
	}

	result := providers.ToLLMChatResponse(oaResp, p.Name())
	if oaResp.Created != 0 {
		result.CreatedAt = time.Unix(oaResp.Created, 0)
	}
	return result, nil
}
