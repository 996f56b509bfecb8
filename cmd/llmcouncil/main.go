// =============================================================================
// LLM Council 主入口
// =============================================================================
// 完整服务入口点，包含 HTTP 服务、连通性测试、健康检查、数据库迁移
//
// 使用方法:
//
//	llmcouncil serve                        # 启动服务
//	llmcouncil serve --config config.yaml   # 指定配置文件
//	llmcouncil test-connection              # 测试 OpenRouter 连通性
//	llmcouncil test-connection -all         # 测试全部议会模型
//	llmcouncil migrate up                   # 运行数据库迁移
//	llmcouncil migrate status               # 查看迁移状态
//	llmcouncil health                       # 健康检查
//	llmcouncil version                      # 显示版本信息
// =============================================================================

// @title LLM Council API
// @version 1.0.0
// @description Ask a council of LLMs, let them rank each other, and get a chairman's synthesis.

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8001
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key

package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/llmcouncil/config"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	// .env 不存在时忽略
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	var code int
	switch os.Args[1] {
	case "serve":
		code = runServe(os.Args[2:])
	case "test-connection":
		code = runTestConnection(os.Args[2:], os.Stdout)
	case "migrate":
		code = runMigrate(os.Args[2:], os.Stdout)
	case "version":
		printVersion(os.Stdout)
	case "health":
		code = runHealthCheck(os.Args[2:], os.Stdout)
	case "help", "-h", "--help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage(os.Stderr)
		code = 1
	}
	os.Exit(code)
}

// loadConfig 加载配置：默认值 → YAML → 环境变量
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, out io.Writer) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8001", "Server address")
	path := fs.String("path", "/health", "Health endpoint path")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + *path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		return 1
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		return 1
	}

	fmt.Fprintln(out, "OK")
	return 0
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(out io.Writer) {
	fmt.Fprintf(out, "LLM Council %s\n", Version)
	fmt.Fprintf(out, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "  Git Commit: %s\n", GitCommit)
}

func printUsage(out io.Writer) {
	fmt.Fprintln(out, `LLM Council - ask several LLMs, let them rank each other, synthesize

Usage:
  llmcouncil <command> [options]

Commands:
  serve            Start the API server
  test-connection  Probe OpenRouter with the title model and the first council model
  migrate          Database migration commands
  version          Show version information
  health           Check server health
  help             Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'test-connection':
  --config <path>   Path to configuration file (YAML)
  -all              Probe every council model
  -strict           Exit 1 when any probe fails
  -timeout <d>      Per-probe timeout (default 10s)

Migration subcommands:
  migrate up            Apply all pending migrations
  migrate down          Rollback the last migration
  migrate down-all      Rollback all migrations
  migrate steps <n>     Apply (or rollback, if negative) n migrations
  migrate goto <v>      Migrate to a specific version
  migrate force <v>     Force set migration version
  migrate version       Show current migration version
  migrate status        Show migration status

Examples:
  llmcouncil serve
  llmcouncil test-connection -all -strict
  llmcouncil migrate up --config /etc/llmcouncil/config.yaml
  llmcouncil health --addr http://localhost:8001`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       encoding == "console",
		Encoding:          encoding,
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputs,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}

	logger, err := zapConfig.Build()
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}
	return logger
}
