package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/llmcouncil/internal/migration"
)

// =============================================================================
// 🗄️ 数据库迁移命令
// =============================================================================

// runMigrate 处理 migrate 子命令。动作参数与选项可以混排：
//
//	llmcouncil migrate steps -1 --config config.yaml
func runMigrate(args []string, out io.Writer) int {
	if len(args) < 1 || args[0] == "help" || args[0] == "-h" || args[0] == "--help" {
		printMigrateUsage(out)
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	action := args[0]
	flags := newMigrateFlags()
	positional, err := parseInterleaved(flags.set, args[1:])
	if err != nil {
		return 2
	}

	migrator, err := createMigrator(*flags.config, *flags.dbType, *flags.dbURL)
	if err != nil {
		if errors.Is(err, migration.ErrSQLiteAutoMigrate) {
			fmt.Fprintln(out, "sqlite schema is created automatically on startup; nothing to migrate")
			return 0
		}
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		return 1
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(out)
	if err := cli.Run(context.Background(), action, positional); err != nil {
		fmt.Fprintf(os.Stderr, "Migration %s failed: %v\n", action, err)
		return 1
	}
	return 0
}

type migrateFlags struct {
	set    *flag.FlagSet
	config *string
	dbType *string
	dbURL  *string
}

func newMigrateFlags() *migrateFlags {
	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	return &migrateFlags{
		set:    fs,
		config: fs.String("config", "", "Path to config file"),
		dbType: fs.String("db-type", "", "Database type (postgres, mysql)"),
		dbURL:  fs.String("db-url", "", "Database connection URL"),
	}
}

// parseInterleaved 允许位置参数与选项混排。负数（steps -1）按位置参数处理。
// migrate 的选项都带值，没有 "=" 时取下一个参数作为值。
func parseInterleaved(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional, flagArgs []string
	for i := 0; i < len(args); i++ {
		a := args[i]
		if _, err := strconv.Atoi(a); err == nil || !strings.HasPrefix(a, "-") {
			positional = append(positional, a)
			continue
		}
		flagArgs = append(flagArgs, a)
		if !strings.Contains(a, "=") && i+1 < len(args) {
			i++
			flagArgs = append(flagArgs, args[i])
		}
	}
	if err := fs.Parse(flagArgs); err != nil {
		return nil, err
	}
	return append(positional, fs.Args()...), nil
}

// createMigrator 优先使用 --db-type + --db-url，否则从配置文件读取
func createMigrator(configPath, dbType, dbURL string) (*migration.DefaultMigrator, error) {
	logger := zap.NewNop()
	if dbType != "" && dbURL != "" {
		return migration.NewMigratorFromURL(dbType, dbURL, logger)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if dbType != "" {
		cfg.Database.Driver = dbType
	}
	return migration.NewMigratorFromDatabaseConfig(cfg.Database, logger)
}

func printMigrateUsage(out io.Writer) {
	fmt.Fprintln(out, `Database Migration Commands

Usage:
  llmcouncil migrate <action> [args] [options]

Actions:
  up            Apply all pending migrations
  down          Rollback the last migration
  down-all      Rollback all migrations
  steps <n>     Apply n migrations (negative rolls back)
  goto <v>      Migrate to a specific version
  force <v>     Force set migration version (use with caution)
  version       Show current migration version
  status        Show migration status
  info          Show migration summary

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql (default: from config)
  --db-url <url>      Database connection URL (default: from config)`)
}
