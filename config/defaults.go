// =============================================================================
// 📦 RenderFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:    DefaultServerConfig(),
		Provider:  DefaultProviderConfig(),
		Chat:      DefaultChatConfig(),
		Output:    DefaultOutputConfig(),
		Workspace: DefaultWorkspaceConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    6 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    10,
		RateLimitBurst:  20,
	}
}

// DefaultProviderConfig 返回默认 fal.ai 配置
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		BaseURL: "https://fal.run",
		Timeout: 5 * time.Minute,
	}
}

// DefaultChatConfig 返回默认 Chat Completions 配置
func DefaultChatConfig() ChatConfig {
	return ChatConfig{
		BaseURL:                    "https://api.openai.com/v1",
		DefaultModel:               "gpt-5-mini",
		DefaultMaxCompletionTokens: 200,
		Timeout:                    2 * time.Minute,
	}
}

// DefaultOutputConfig 返回默认输出配置
func DefaultOutputConfig() OutputConfig {
	return OutputConfig{
		Dir: "generated",
	}
}

// DefaultWorkspaceConfig 返回默认工作区存储配置
func DefaultWorkspaceConfig() WorkspaceConfig {
	return WorkspaceConfig{
		Driver:   "file",
		Path:     "data/workspace.json",
		Key:      "default",
		Redis:    DefaultRedisConfig(),
		Database: DefaultDatabaseConfig(),
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "renderflow",
		Password:        "",
		Name:            "data/renderflow.db",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 5 * time.Minute,
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
		Enabled:        false,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "renderflow",
		SampleRate:     0.1,
		MetricInterval: 30 * time.Second,
	}
}
