package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/llmcouncil/config"
	"github.com/BaSui01/llmcouncil/internal/connectivity"
	"github.com/BaSui01/llmcouncil/llm"
	"github.com/BaSui01/llmcouncil/llm/providers/openrouter"
)

// =============================================================================
// 🔌 test-connection 命令
// =============================================================================

// runTestConnection 探测标题模型和议会模型。默认总是返回 0，-strict 时失败返回 1。
func runTestConnection(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("test-connection", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	all := fs.Bool("all", false, "Probe every council model")
	strict := fs.Bool("strict", false, "Exit 1 when any probe fails")
	timeout := fs.Duration("timeout", connectivity.DefaultTimeout, "Per-probe timeout")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	logger := zap.NewNop()
	if cfg.Log.Level == "debug" {
		logger = initLogger(cfg.Log)
	}

	client := openrouter.New(openrouter.Config{
		APIKey:     cfg.OpenRouter.APIKey,
		BaseURL:    cfg.OpenRouter.BaseURL,
		Timeout:    cfg.OpenRouter.Timeout,
		MaxRetries: 0,
		Referer:    cfg.OpenRouter.Referer,
		AppTitle:   cfg.OpenRouter.AppTitle,
	}, nil, logger)

	return testConnection(context.Background(), client, cfg, connectivity.Options{All: *all, Timeout: *timeout}, *strict, out, logger)
}

func testConnection(
	ctx context.Context,
	client llm.Completer,
	cfg *config.Config,
	opts connectivity.Options,
	strict bool,
	out io.Writer,
	logger *zap.Logger,
) int {
	opts.TitleModel = cfg.Council.TitleModel
	opts.CouncilModels = cfg.Council.Models

	start := time.Now()
	report := connectivity.NewChecker(client, opts, out, logger).Run(ctx, cfg.OpenRouter.APIKey)
	logger.Debug("connectivity check finished",
		zap.Int("failures", report.Failures()),
		zap.Duration("elapsed", time.Since(start)),
	)

	if strict && !report.OK() {
		return 1
	}
	return 0
}
