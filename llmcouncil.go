// Package llmcouncil exposes the deployable LLM Council application object.
//
// Usage:
//
//	import "github.com/BaSui01/llmcouncil"
//
//	a, err := llmcouncil.New(ctx, llmcouncil.WithConfig(cfg))
//	if err != nil { ... }
//	defer a.Close()
//	http.ListenAndServe(":8001", a)
//
// This is a thin re-export of [app.New]; both produce identical results.
// Embedding programs use this package because internal/ cannot be imported
// from outside the module.
package llmcouncil

import (
	"context"

	"github.com/BaSui01/llmcouncil/internal/app"
)

// App is the composed HTTP application. It implements http.Handler.
type App = app.App

// Option configures the App created by [New].
type Option = app.Option

// New creates the application from configuration.
func New(ctx context.Context, opts ...Option) (*App, error) {
	return app.New(ctx, opts...)
}

// Re-export option constructors so callers never need internal/app.

// WithConfig sets the configuration. Defaults to config.DefaultConfig().
var WithConfig = app.WithConfig

// WithLogger sets a custom zap logger.
var WithLogger = app.WithLogger

// WithCompleter replaces the OpenRouter provider.
var WithCompleter = app.WithCompleter

// WithVersion sets the build info reported by /version.
var WithVersion = app.WithVersion
