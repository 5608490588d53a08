package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfig_ContainsAllSubConfigs(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, DefaultServerConfig(), cfg.Server)
	assert.Equal(t, DefaultProviderConfig(), cfg.Provider)
	assert.Equal(t, DefaultChatConfig(), cfg.Chat)
	assert.Equal(t, DefaultOutputConfig(), cfg.Output)
	assert.Equal(t, DefaultWorkspaceConfig(), cfg.Workspace)
	assert.Equal(t, DefaultLogConfig(), cfg.Log)
	assert.Equal(t, DefaultTelemetryConfig(), cfg.Telemetry)
	assert.NoError(t, cfg.Validate())
}

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	// 写超时必须覆盖一次完整的 provider 调用
	assert.Greater(t, cfg.WriteTimeout, DefaultProviderConfig().Timeout)
	assert.Empty(t, cfg.APIKeys)
}

func TestDefaultWorkspaceConfig(t *testing.T) {
	cfg := DefaultWorkspaceConfig()
	assert.Equal(t, "file", cfg.Driver)
	assert.Equal(t, "default", cfg.Key)
	assert.Equal(t, DefaultRedisConfig(), cfg.Redis)
	assert.Equal(t, DefaultDatabaseConfig(), cfg.Database)
}

func TestDefaultOutputConfig(t *testing.T) {
	cfg := DefaultOutputConfig()
	assert.Equal(t, "generated", cfg.Dir)
	assert.Empty(t, cfg.S3.Bucket)
}

func TestDefaultLogConfig(t *testing.T) {
	cfg := DefaultLogConfig()
	assert.Equal(t, "info", cfg.Level)
	assert.Equal(t, []string{"stdout"}, cfg.OutputPaths)
	assert.True(t, cfg.EnableCaller)
}

func TestDefaultTelemetryConfig(t *testing.T) {
	cfg := DefaultTelemetryConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, "renderflow", cfg.ServiceName)
	assert.Equal(t, 0.1, cfg.SampleRate)
	assert.Equal(t, 30*time.Second, cfg.MetricInterval)
}
