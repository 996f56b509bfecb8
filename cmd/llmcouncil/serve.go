package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmcouncil/config"
	"github.com/BaSui01/llmcouncil/internal/app"
	"github.com/BaSui01/llmcouncil/internal/server"
	"github.com/BaSui01/llmcouncil/internal/telemetry"
)

// =============================================================================
// 🚀 serve 命令
// =============================================================================

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting LLM Council",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("Server stopped with error", zap.Error(err))
		return 1
	}
	logger.Info("Server stopped")
	return 0
}

// serve 启动 HTTP 与 metrics 服务，直到 ctx 取消或服务出错
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	tp, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		// 追踪不可用不阻止启动
		logger.Warn("Telemetry init failed", zap.Error(err))
	}

	a, err := app.New(ctx,
		app.WithConfig(cfg),
		app.WithLogger(logger),
		app.WithVersion(Version, BuildTime, GitCommit),
	)
	if err != nil {
		return err
	}

	managers := []*server.Manager{
		server.NewManager(a, server.ConfigFrom("api", cfg.Server, cfg.Server.HTTPPort), logger),
	}
	if cfg.Server.MetricsPort > 0 {
		managers = append(managers, server.NewManager(
			a.MetricsHandler(),
			server.ConfigFrom("metrics", cfg.Server, cfg.Server.MetricsPort),
			logger,
		))
	}

	var waitErr error
	started := make([]*server.Manager, 0, len(managers))
	for _, m := range managers {
		if err := m.Start(); err != nil {
			waitErr = fmt.Errorf("failed to start %s server: %w", m.Name(), err)
			break
		}
		logger.Info("Server listening", zap.String("server", m.Name()), zap.String("addr", m.Addr()))
		started = append(started, m)
	}
	if waitErr == nil {
		waitErr = server.Wait(ctx, logger, started...)
	}

	// 关闭顺序：HTTP 服务 → 应用资源 → 遥测
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout+5*time.Second)
	defer cancel()

	for _, m := range started {
		if err := m.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.String("server", m.Name()), zap.Error(err))
		}
	}
	if err := a.Close(); err != nil {
		logger.Error("App close error", zap.Error(err))
	}
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}
	return waitErr
}
