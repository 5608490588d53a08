// =============================================================================
// RenderFlow 主入口
// =============================================================================
// 完整服务入口点，包含 HTTP 服务、健康检查、Prometheus 指标，以及驱动
// 生成/优化控制器的命令行
//
// 使用方法:
//
//	renderflow serve                                # 启动服务
//	renderflow serve --config config.yaml           # 指定配置文件
//	renderflow generate --image room.png            # 本地管线生成
//	renderflow generate --image room.png --addr URL # 远程服务生成
//	renderflow refine --prompt "..."                # 优化提示词
//	renderflow version                              # 显示版本信息
//	renderflow health                               # 健康检查
// =============================================================================

// @title RenderFlow API
// @version 1.0.0
// @description RenderFlow turns a source photo and a prompt into a rendered variant through fal.ai image models.
// @description
// @description ## Features
// @description - Four image-edit models (Qwen, FLUX Kontext, Nano-Banana, Seedream) behind one request shape
// @description - Prompt refinement through any OpenAI-compatible chat endpoint
// @description - Persisted workspace settings with seed locking
// @description - Health monitoring and metrics

// @contact.name RenderFlow Team
// @contact.url https://github.com/BaSui01/renderflow

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/renderflow/api/handlers"
	"github.com/BaSui01/renderflow/config"
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
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}

	var err error
	switch args[0] {
	case "serve":
		err = runServe(args[1:])
	case "generate":
		err = runGenerate(args[1:], stdout, stderr)
	case "refine":
		err = runRefine(args[1:], stdout, stderr)
	case "version":
		printVersion(stdout)
	case "health":
		err = runHealthCheck(args[1:], stdout)
	case "help", "-h", "--help":
		printUsage(stdout)
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}

	if err != nil {
		if !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(stderr, "Error: %v\n", err)
		}
		return 1
	}
	return 0
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", "", "Path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting RenderFlow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signalContext()
	defer stop()

	server, err := NewServer(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to init server: %w", err)
	}
	if err := server.Run(ctx); err != nil {
		return err
	}

	logger.Info("RenderFlow stopped")
	return nil
}

// loadConfig 加载并验证配置
func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Run the readiness checks instead of liveness")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := "/health"
	if *ready {
		path = "/ready"
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + path)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body handlers.HealthStatus
		_ = json.NewDecoder(resp.Body).Decode(&body)
		for name, check := range body.Checks {
			if check.Status != "pass" {
				fmt.Fprintf(stdout, "  %s: %s\n", name, check.Message)
			}
		}
		return fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	fmt.Fprintln(stdout, "OK")
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion(w io.Writer) {
	fmt.Fprintf(w, "RenderFlow %s\n", Version)
	fmt.Fprintf(w, "  Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "  Git Commit: %s\n", GitCommit)
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `RenderFlow - image-edit rendering service

Usage:
  renderflow <command> [options]

Commands:
  serve     Start the RenderFlow server
  generate  Run one generation with the workspace settings
  refine    Refine a rough prompt with the chat model
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve':
  --config <path>   Path to configuration file (YAML)

Options for 'generate':
  --image <path>    Source image (PNG, JPEG or WEBP), required
  --prompt <text>   Replace the workspace prompt before generating
  --model <id>      Select qwen, flux, gemini or seedream
  --seed <n>        Lock the seed of the selected model
  --addr <url>      Run against a remote server instead of in-process
  --api-key <key>   API key for the remote server
  --config <path>   Path to configuration file (YAML)

Options for 'refine':
  --prompt <text>   Rough instruction, required
  --image <path>    Attach the image when the workspace enables it
  --addr, --api-key, --config as above

Examples:
  renderflow serve
  renderflow serve --config /etc/renderflow/config.yaml
  renderflow generate --image room.png --prompt "scandinavian living room" --model flux
  renderflow refine --prompt "make it cozy" --addr http://localhost:8080
  renderflow health --addr http://localhost:8080 --ready
  renderflow version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputPaths := cfg.OutputPaths
	if len(outputPaths) == 0 {
		outputPaths = []string{"stdout"}
	}

	// 构建配置
	zapConfig := zap.Config{
		Level:             zap.NewAtomicLevelAt(level),
		Development:       cfg.Format == "console",
		Encoding:          "json",
		EncoderConfig:     encoderConfig,
		OutputPaths:       outputPaths,
		ErrorOutputPaths:  []string{"stderr"},
		DisableCaller:     !cfg.EnableCaller,
		DisableStacktrace: !cfg.EnableStacktrace,
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	// 构建 logger
	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}

// signalContext 在 SIGINT / SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
