// =============================================================================
// LLM Council 应用对象
// =============================================================================
// 把配置、OpenRouter Provider、议会、会话存储、指标与 HTTP handler 组装成
// 一个 http.Handler。cmd/llmcouncil 与根包 llmcouncil 都从这里取应用对象。
//
// 使用方法:
//
//	a, err := app.New(ctx, app.WithConfig(cfg), app.WithLogger(logger))
//	defer a.Close()
//	http.ListenAndServe(":8001", a.Handler())
//
// =============================================================================
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/BaSui01/llmcouncil/api/handlers"
	"github.com/BaSui01/llmcouncil/api/middleware"
	"github.com/BaSui01/llmcouncil/config"
	"github.com/BaSui01/llmcouncil/internal/council"
	"github.com/BaSui01/llmcouncil/internal/metrics"
	"github.com/BaSui01/llmcouncil/internal/store"
	"github.com/BaSui01/llmcouncil/internal/webhook"
	"github.com/BaSui01/llmcouncil/llm"
	"github.com/BaSui01/llmcouncil/llm/providers/openrouter"
	"go.uber.org/zap"
)

// MetricsNamespace Prometheus 指标前缀
const MetricsNamespace = "llmcouncil"

// Option 配置 New 创建的 App
type Option func(*options)

type options struct {
	cfg       *config.Config
	logger    *zap.Logger
	completer llm.Completer
	store     *store.Store
	metrics   *metrics.Collector

	version   string
	buildTime string
	gitCommit string
}

// WithConfig 使用给定配置，缺省为 config.DefaultConfig()
func WithConfig(cfg *config.Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithLogger 设置 zap logger，缺省为 zap.NewNop()
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCompleter 替换 OpenRouter Provider。实现了 llm.Provider 时同时注册就绪检查。
func WithCompleter(c llm.Completer) Option {
	return func(o *options) { o.completer = c }
}

// WithStore 使用已打开的会话存储，App.Close 仍会关闭它
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithMetrics 使用外部的指标收集器
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithVersion 设置 /version 返回的构建信息
func WithVersion(version, buildTime, gitCommit string) Option {
	return func(o *options) {
		o.version = version
		o.buildTime = buildTime
		o.gitCommit = gitCommit
	}
}

// App 是可部署的应用对象
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Collector
	provider llm.Completer
	council  *council.Council
	store    *store.Store
	webhook  *webhook.Forwarder
	health   *handlers.HealthHandler
	handler  http.Handler

	cancel    context.CancelFunc
	closeOnce sync.Once
	closeErr  error
}

// New 组装应用。返回错误时已打开的资源均已释放。
func New(ctx context.Context, opts ...Option) (*App, error) {
	o := &options{version: "dev", buildTime: "unknown", gitCommit: "unknown"}
	for _, opt := range opts {
		opt(o)
	}
	if o.cfg == nil {
		o.cfg = config.DefaultConfig()
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	if err := o.cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{
		cfg:     o.cfg,
		logger:  o.logger,
		metrics: o.metrics,
	}
	if a.metrics == nil {
		a.metrics = metrics.NewCollector(MetricsNamespace, o.logger)
	}

	a.provider = o.completer
	if a.provider == nil {
		a.provider = newProvider(o.cfg.OpenRouter, a.metrics, o.logger)
	}

	c, err := council.New(council.Config{
		Models:        o.cfg.Council.Models,
		ChairmanModel: o.cfg.Council.ChairmanModel,
		TitleModel:    o.cfg.Council.TitleModel,
		TitleTimeout:  o.cfg.Council.TitleTimeout,
		MaxParallel:   o.cfg.Council.MaxParallel,
	}, a.provider, a.metrics, o.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create council: %w", err)
	}
	a.council = c

	a.store = o.store
	if a.store == nil {
		a.store, err = store.Open(ctx, o.cfg, o.logger, store.Observers{
			Store: a.metrics,
			Cache: a.metrics,
			DB:    a.metrics,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open conversation store: %w", err)
		}
	}

	a.webhook = webhook.New(o.cfg.Webhook, a.metrics, o.logger)

	a.health = handlers.NewHealthHandler(o.logger)
	a.health.RegisterCheck(handlers.NewStoreHealthCheck(a.store))
	if p, ok := a.provider.(llm.Provider); ok {
		a.health.RegisterOptionalCheck(handlers.NewProviderHealthCheck(p))
	}

	// 限流清理 goroutine 跟随 App 生命周期
	runCtx, cancel := context.WithCancel(context.Background())
	a.cancel = cancel
	a.handler = a.routes(runCtx, o)

	o.logger.Info("LLM Council ready",
		zap.Strings("council", o.cfg.Council.Models),
		zap.String("chairman", o.cfg.Council.ChairmanModel),
		zap.String("storage", a.store.BackendName()),
		zap.Bool("webhook", a.webhook.Enabled()),
	)
	return a, nil
}

func newProvider(cfg config.OpenRouterConfig, m *metrics.Collector, logger *zap.Logger) *openrouter.Provider {
	return openrouter.New(openrouter.Config{
		APIKey:              cfg.APIKey,
		BaseURL:             cfg.BaseURL,
		Timeout:             cfg.Timeout,
		MaxRetries:          cfg.MaxRetries,
		Referer:             cfg.Referer,
		AppTitle:            cfg.AppTitle,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
	}, m.LLMObserver("openrouter"), logger)
}

// =============================================================================
// 🌐 路由
// =============================================================================

func (a *App) routes(ctx context.Context, o *options) http.Handler {
	conv := handlers.NewConversationHandler(a.store, a.logger)
	msg := handlers.NewMessageHandler(a.store, a.council, a.logger,
		handlers.WithRunRecorder(a.metrics),
		handlers.WithOriginPatterns(a.cfg.Server.CORSAllowedOrigins),
	)
	profile := handlers.NewProfileHandler(a.webhook, a.logger)

	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", handlers.HandleRoot)
	mux.HandleFunc("GET /health", a.health.HandleHealth)
	mux.HandleFunc("GET /healthz", a.health.HandleHealthz)
	mux.HandleFunc("GET /ready", a.health.HandleReady)
	mux.HandleFunc("GET /readyz", a.health.HandleReady)
	mux.HandleFunc("GET /version", a.health.HandleVersion(o.version, o.buildTime, o.gitCommit))
	if a.cfg.Server.MetricsPort == 0 {
		mux.Handle("GET /metrics", a.metrics.Handler())
	}

	mux.HandleFunc("GET /api/conversations", conv.HandleList)
	mux.HandleFunc("POST /api/conversations", conv.HandleCreate)
	mux.HandleFunc("DELETE /api/conversations", conv.HandleClear)
	mux.HandleFunc("GET /api/conversations/{id}", conv.HandleGet)
	mux.HandleFunc("POST /api/conversations/{id}/message", msg.HandleSend)
	mux.HandleFunc("POST /api/conversations/{id}/message/stream", msg.HandleStream)
	mux.HandleFunc("GET /api/conversations/{id}/message/ws", msg.HandleWebSocket)
	mux.HandleFunc("POST /api/users", profile.HandleSubmit)

	sc := a.cfg.Server
	chain := []middleware.Middleware{
		middleware.Recovery(a.logger),
		middleware.RequestID(),
		middleware.SecurityHeaders(),
		middleware.RequestLogger(a.logger),
		middleware.Metrics(a.metrics),
		middleware.Tracing(),
		middleware.CORS(sc.CORSAllowedOrigins),
	}
	if sc.RateLimitRPS > 0 {
		chain = append(chain, middleware.RateLimiter(ctx, sc.RateLimitRPS, sc.RateLimitBurst, a.logger))
	}
	if len(sc.APIKeys) > 0 {
		chain = append(chain, middleware.APIKeyAuth(sc.APIKeys, middleware.HealthPaths, sc.AllowQueryAPIKey, a.logger))
	}
	if sc.JWT.Secret != "" {
		chain = append(chain, middleware.JWTAuth(sc.JWT, middleware.HealthPaths, a.logger))
	}
	chain = append(chain, middleware.MaxBody(sc.MaxBodyBytes))

	return middleware.Chain(mux, chain...)
}

// =============================================================================
// 🔍 访问器
// =============================================================================

// Handler 返回带完整中间件链的 API handler
func (a *App) Handler() http.Handler { return a.handler }

// ServeHTTP 使 App 本身可以直接交给 http.Server
func (a *App) ServeHTTP(w http.ResponseWriter, r *http.Request) { a.handler.ServeHTTP(w, r) }

// MetricsHandler 返回 Prometheus 抓取端点
func (a *App) MetricsHandler() http.Handler { return a.metrics.Handler() }

// Config 返回生效的配置
func (a *App) Config() *config.Config { return a.cfg }

// Council 返回议会
func (a *App) Council() *council.Council { return a.council }

// Store 返回会话存储
func (a *App) Store() *store.Store { return a.store }

// Metrics 返回指标收集器
func (a *App) Metrics() *metrics.Collector { return a.metrics }

// Close 停止后台 goroutine 并关闭存储，可重复调用
func (a *App) Close() error {
	a.closeOnce.Do(func() {
		if a.cancel != nil {
			a.cancel()
		}
		var errs []error
		if a.store != nil {
			if err := a.store.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close store: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
		a.logger.Info("LLM Council closed")
	})
	return a.closeErr
}
