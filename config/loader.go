// =============================================================================
// 📦 RenderFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("RENDERFLOW").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 兼容环境变量 → 前缀环境变量
// YAML 中可以用 ${VAR} 引用环境变量（例如 api_key: ${FAL_KEY}）
// =============================================================================
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 RenderFlow 的完整配置结构
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Provider 图像服务（fal.ai）配置
	Provider ProviderConfig `yaml:"provider" env:"PROVIDER"`

	// Chat 提示词优化使用的 Chat Completions 配置
	Chat ChatConfig `yaml:"chat" env:"CHAT"`

	// Output 结果图片输出配置
	Output OutputConfig `yaml:"output" env:"OUTPUT"`

	// Workspace 工作区设置存储配置
	Workspace WorkspaceConfig `yaml:"workspace" env:"WORKSPACE"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口，0 表示不启动
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时（需覆盖一次完整的生成耗时）
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个 IP 的限流速率
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 限流突发容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
	// 可选 API Key，为空时不鉴权
	APIKeys []string `yaml:"api_keys" env:"API_KEYS"`
	// CORS 允许的来源
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins" env:"CORS_ALLOWED_ORIGINS"`
}

// ProviderConfig fal.ai 配置
type ProviderConfig struct {
	// API Key（兼容 FAL_KEY）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// ChatConfig Chat Completions 配置
type ChatConfig struct {
	// API Key（兼容 OPENAI_API_KEY）
	APIKey string `yaml:"api_key" env:"API_KEY"`
	// 基础 URL（兼容 OPENAI_BASE_URL）
	BaseURL string `yaml:"base_url" env:"BASE_URL"`
	// 默认模型
	DefaultModel string `yaml:"default_model" env:"DEFAULT_MODEL"`
	// 默认 max_completion_tokens
	DefaultMaxCompletionTokens int `yaml:"default_max_completion_tokens" env:"DEFAULT_MAX_COMPLETION_TOKENS"`
	// 请求超时
	Timeout time.Duration `yaml:"timeout" env:"TIMEOUT"`
}

// OutputConfig 结果图片输出配置
type OutputConfig struct {
	// 输出目录（兼容 IMAGES_SAVE_PATH）
	Dir string `yaml:"dir" env:"DIR"`
	// S3 镜像，Bucket 为空时关闭
	S3 S3Config `yaml:"s3" env:"S3"`
}

// S3Config S3 镜像配置
type S3Config struct {
	Bucket       string `yaml:"bucket" env:"BUCKET"`
	Prefix       string `yaml:"prefix" env:"PREFIX"`
	Region       string `yaml:"region" env:"REGION"`
	Endpoint     string `yaml:"endpoint" env:"ENDPOINT"`
	UsePathStyle bool   `yaml:"use_path_style" env:"USE_PATH_STYLE"`
}

// WorkspaceConfig 工作区存储配置
type WorkspaceConfig struct {
	// 驱动类型: file, memory, redis, sql
	Driver string `yaml:"driver" env:"DRIVER"`
	// file 驱动的快照文件路径
	Path string `yaml:"path" env:"PATH"`
	// 快照键（redis key 前缀 / sql 行主键）
	Key string `yaml:"key" env:"KEY"`
	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`
	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名（sqlite 时为文件路径）
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率（无上游 trace 时的根采样比例）
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
	// 指标导出间隔，0 使用 SDK 默认值
	MetricInterval time.Duration `yaml:"metric_interval" env:"METRIC_INTERVAL"`
}

// legacyEnv 兼容旧部署使用的无前缀环境变量，优先级低于前缀变量
var legacyEnv = []struct {
	name string
	set  func(*Config, string)
}{
	{"FAL_KEY", func(c *Config, v string) { c.Provider.APIKey = v }},
	{"OPENAI_API_KEY", func(c *Config, v string) { c.Chat.APIKey = v }},
	{"OPENAI_BASE_URL", func(c *Config, v string) { c.Chat.BaseURL = v }},
	{"IMAGES_SAVE_PATH", func(c *Config, v string) { c.Output.Dir = v }},
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// LookupFunc 查询环境变量，签名与 os.LookupEnv 相同
type LookupFunc func(key string) (string, bool)

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookup     LookupFunc
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix: "RENDERFLOW",
		lookup:    os.LookupEnv,
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithLookup 替换环境变量来源
func (l *Loader) WithLookup(fn LookupFunc) *Loader {
	if fn != nil {
		l.lookup = fn
	}
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 兼容环境变量 → 前缀环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		if err := l.loadFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	for _, e := range legacyEnv {
		if v := l.env(e.name); v != "" {
			e.set(cfg, v)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}
	return cfg, nil
}

// env 返回去除首尾空白的变量值，未设置时为空串
func (l *Loader) env(key string) string {
	v, _ := l.lookup(key)
	return strings.TrimSpace(v)
}

// placeholder 匹配 YAML 中的 ${VAR} 引用
var placeholder = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// loadFile 读取 YAML 文件。文件不存在时保留默认值；
// ${VAR} 引用在解析前展开，未知字段视为错误。
func (l *Loader) loadFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	data = placeholder.ReplaceAllFunc(data, func(m []byte) []byte {
		name := placeholder.FindSubmatch(m)[1]
		v, _ := l.lookup(string(name))
		return []byte(v)
	})

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// envBinding 是一个叶子字段与其环境变量名
type envBinding struct {
	key   string
	field reflect.Value
}

// collectEnvBindings 按 env tag 递归展开结构体字段
func collectEnvBindings(v reflect.Value, prefix string, out []envBinding) []envBinding {
	t := v.Type()
	for i := range v.NumField() {
		tag := t.Field(i).Tag.Get("env")
		if tag == "" || tag == "-" {
			continue
		}
		key := prefix + "_" + tag
		field := v.Field(i)
		if field.Kind() == reflect.Struct {
			out = collectEnvBindings(field, key, out)
			continue
		}
		if field.CanSet() {
			out = append(out, envBinding{key: key, field: field})
		}
	}
	return out
}

// applyEnv 用前缀环境变量覆盖配置，所有无法解析的变量一并报告
func (l *Loader) applyEnv(cfg *Config) error {
	var errs []error
	for _, b := range collectEnvBindings(reflect.ValueOf(cfg).Elem(), l.envPrefix, nil) {
		raw := l.env(b.key)
		if raw == "" {
			continue
		}
		if err := decodeEnvValue(b.field, raw); err != nil {
			errs = append(errs, fmt.Errorf("%s=%q: %w", b.key, raw, err))
		}
	}
	return errors.Join(errs...)
}

var durationType = reflect.TypeFor[time.Duration]()

// decodeEnvValue 把字符串写入字段，切片按逗号分隔
func decodeEnvValue(field reflect.Value, raw string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(raw)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(raw, 10, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, field.Type().Bits())
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := lo.FilterMap(strings.Split(raw, ","), func(p string, _ int) (string, bool) {
			p = strings.TrimSpace(p)
			return p, p != ""
		})
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported field type %s", field.Type())
	}
	return nil
}

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	// 验证服务器配置
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "invalid HTTP port")
	}
	if c.Server.MetricsPort < 0 || c.Server.MetricsPort > 65535 {
		errs = append(errs, "invalid metrics port")
	}

	// 验证输出目录
	if strings.TrimSpace(c.Output.Dir) == "" {
		errs = append(errs, "output.dir is required")
	}

	// 验证工作区存储
	switch c.Workspace.Driver {
	case "file":
		if c.Workspace.Path == "" {
			errs = append(errs, "workspace.path is required for the file driver")
		}
	case "memory", "redis":
	case "sql":
		switch c.Workspace.Database.Driver {
		case "postgres", "mysql", "sqlite":
		default:
			errs = append(errs, fmt.Sprintf("unsupported database driver %q", c.Workspace.Database.Driver))
		}
	default:
		errs = append(errs, fmt.Sprintf("unsupported workspace driver %q", c.Workspace.Driver))
	}

	// 验证 Chat 配置
	if c.Chat.DefaultMaxCompletionTokens <= 0 {
		errs = append(errs, "chat.default_max_completion_tokens must be positive")
	}

	// 验证遥测配置
	if c.Telemetry.SampleRate < 0 || c.Telemetry.SampleRate > 1 {
		errs = append(errs, "telemetry.sample_rate must be between 0 and 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
