package store

import (
	"context"
	"fmt"

	"github.com/BaSui01/llmcouncil/config"
	"github.com/BaSui01/llmcouncil/internal/cache"
	"github.com/BaSui01/llmcouncil/internal/database"
	"github.com/BaSui01/llmcouncil/internal/migration"
	"go.uber.org/zap"
)

// Observers 收集各层的指标观察者，metrics.Collector 全部实现。字段可为空。
type Observers struct {
	Store OperationObserver
	Cache cache.Observer
	DB    database.StatsObserver
}

// Open 按 storage.driver 打开驱动并返回 Store
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger, obs Observers) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	backend, err := openBackend(ctx, cfg, logger, obs)
	if err != nil {
		return nil, err
	}

	var opts []Option
	if obs.Store != nil {
		opts = append(opts, WithObserver(obs.Store))
	}
	logger.Info("conversation store ready", zap.String("driver", backend.Name()))
	return New(backend, logger, opts...), nil
}

func openBackend(ctx context.Context, cfg *config.Config, logger *zap.Logger, obs Observers) (Backend, error) {
	switch cfg.Storage.Driver {
	case config.StorageDriverFile, "":
		return NewFileBackend(cfg.Storage.DataDir, logger)

	case config.StorageDriverDatabase:
		return openDatabase(ctx, cfg.Database, logger, obs)

	case config.StorageDriverRedis:
		rc := cache.DefaultConfig()
		rc.Addr = cfg.Redis.Addr
		rc.Password = cfg.Redis.Password
		rc.DB = cfg.Redis.DB
		if cfg.Redis.PoolSize > 0 {
			rc.PoolSize = cfg.Redis.PoolSize
		}
		if cfg.Redis.MinIdleConns > 0 {
			rc.MinIdleConns = cfg.Redis.MinIdleConns
		}
		rc.HealthCheckInterval = cfg.Redis.HealthCheckInterval

		m, err := cache.NewManager(rc, logger)
		if err != nil {
			return nil, err
		}
		if obs.Cache != nil {
			m.SetObserver(obs.Cache)
		}
		b, err := NewRedisBackend(m, cfg.Storage.KeyPrefix, logger)
		if err != nil {
			_ = m.Close()
			return nil, err
		}
		return b, nil

	default:
		return nil, fmt.Errorf("unsupported storage driver %q", cfg.Storage.Driver)
	}
}

// openDatabase 打开连接池。postgres/mysql 先跑版本化迁移，sqlite 用 AutoMigrate。
func openDatabase(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger, obs Observers) (Backend, error) {
	autoMigrate := false
	if dbCfg.AutoMigrate {
		if dbCfg.Driver == "sqlite" {
			autoMigrate = true
		} else if err := migrateUp(ctx, dbCfg, logger); err != nil {
			return nil, err
		}
	}

	pm, err := database.Open(dbCfg, logger)
	if err != nil {
		return nil, err
	}
	if obs.DB != nil {
		pm.SetObserver(obs.DB)
	}

	b, err := NewDatabaseBackend(ctx, pm, autoMigrate, logger)
	if err != nil {
		_ = pm.Close()
		return nil, err
	}
	return b, nil
}

func migrateUp(ctx context.Context, dbCfg config.DatabaseConfig, logger *zap.Logger) error {
	m, err := migration.NewMigratorFromDatabaseConfig(dbCfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(ctx); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	version, dirty, err := m.Version(ctx)
	if err == nil {
		logger.Info("database migrated", zap.Uint("version", version), zap.Bool("dirty", dirty))
	}
	return nil
}
