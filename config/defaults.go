// =============================================================================
// 📦 LLM Council 默认配置
// =============================================================================
// 默认值与原始部署一致：OpenRouter + 四个议会成员 + 本地 JSON 文件存储
// =============================================================================
package config

import "time"

// 默认模型，与 llm/providers/openrouter 的常量保持一致
var (
	defaultCouncilModels = []string{
		"openai/gpt-5.1",
		"google/gemini-3-pro-preview",
		"anthropic/claude-sonnet-4.5",
		"x-ai/grok-4",
	}
	defaultChairmanModel = "google/gemini-3-pro-preview"
	defaultTitleModel    = "google/gemini-2.5-flash"
)

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		OpenRouter: DefaultOpenRouterConfig(),
		Council:    DefaultCouncilConfig(),
		Storage:    DefaultStorageConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
		Webhook:    DefaultWebhookConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8001,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    10 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		MaxBodyBytes:    1 << 20,
		CORSAllowedOrigins: []string{
			"http://localhost:5173",
			"http://localhost:3000",
		},
		RateLimitRPS:   20,
		RateLimitBurst: 40,
	}
}

// DefaultOpenRouterConfig 返回默认 OpenRouter 配置
func DefaultOpenRouterConfig() OpenRouterConfig {
	return OpenRouterConfig{
		BaseURL:             "https://openrouter.ai/api/v1",
		Timeout:             120 * time.Second,
		MaxRetries:          0,
		AppTitle:            "LLM Council",
		MaxIdleConnsPerHost: 16,
	}
}

// DefaultCouncilConfig 返回默认议会配置
func DefaultCouncilConfig() CouncilConfig {
	models := make([]string, len(defaultCouncilModels))
	copy(models, defaultCouncilModels)
	return CouncilConfig{
		Models:        models,
		ChairmanModel: defaultChairmanModel,
		TitleModel:    defaultTitleModel,
		TitleTimeout:  30 * time.Second,
	}
}

// DefaultStorageConfig 返回默认存储配置
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Driver:    StorageDriverFile,
		DataDir:   "data/conversations",
		KeyPrefix: "llmcouncil:",
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:                "localhost:6379",
		DB:                  0,
		PoolSize:            10,
		MinIdleConns:        2,
		HealthCheckInterval: 30 * time.Second,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "llmcouncil",
		Name:            "data/llmcouncil.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		AutoMigrate:     true,
	}
}

// DefaultWebhookConfig 返回默认 webhook 配置
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:    10 * time.Second,
		MaxRetries: 2,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		Insecure:     true,
		ServiceName:  "llmcouncil",
		Environment:  "development",
		SampleRate:   0.1,
	}
}
