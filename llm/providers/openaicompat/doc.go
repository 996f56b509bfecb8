// Package openaicompat provides the shared client for OpenAI-compatible
// chat completion APIs.
//
// It owns the HTTP request lifecycle: header building, per-attempt timeouts,
// retry of retryable upstream errors, error mapping and response conversion.
// Router-specific providers embed openaicompat.Provider and only override
// what differs:
//
//   - Provider name and default model
//   - Base URL
//   - Custom headers (attribution, auth)
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "openrouter",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://openrouter.ai/api/v1",
//	    Timeout:      120 * time.Second,
//	}, logger)
package openaicompat
