package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/renderflow/api/handlers"
	"github.com/BaSui01/renderflow/config"
	"github.com/BaSui01/renderflow/internal/metrics"
	"github.com/BaSui01/renderflow/internal/server"
	"github.com/BaSui01/renderflow/internal/telemetry"
)

// skipAuthPaths 不需要 API Key 的路径
var skipAuthPaths = []string{"/health", "/healthz", "/ready", "/version", "/metrics"}

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 RenderFlow 的主服务器
type Server struct {
	cfg    *config.Config
	logger *zap.Logger

	// 完整中间件链包装后的 API handler
	handler http.Handler

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	// 运行时组件
	components *components
	telemetry  *telemetry.Providers

	// 指标收集器
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 装配组件与路由，不监听端口
func NewServer(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger}

	// 1. 初始化 OpenTelemetry，失败不阻塞启动
	providers, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}
	s.telemetry = providers

	// 2. 初始化指标收集器
	s.metricsCollector = metrics.NewCollector("renderflow", logger)

	// 3. 初始化运行时组件
	s.components, err = newComponents(ctx, cfg, logger, s.metricsCollector)
	if err != nil {
		return nil, err
	}

	// 4. 构建服务器
	s.handler = s.buildHandler()
	s.httpManager = server.NewManager(s.handler, server.Config{
		Name:            "api",
		Addr:            fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     2 * cfg.Server.ReadTimeout,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, logger)

	if cfg.Server.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		s.metricsManager = server.NewManager(mux, server.Config{
			Name:            "metrics",
			Addr:            fmt.Sprintf(":%d", cfg.Server.MetricsPort),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.ReadTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		}, logger)
	}

	return s, nil
}

// =============================================================================
// 🌐 路由与中间件
// =============================================================================

// buildHandler 注册路由并包装中间件链
func (s *Server) buildHandler() http.Handler {
	c := s.components

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewOutputDirCheck(c.artifacts))
	health.RegisterCheck(handlers.NewWorkspaceCheck(c.workspace))
	health.RegisterCheck(handlers.NewCredentialCheck("provider_credentials", c.provider.Configured))
	health.RegisterCheck(handlers.NewCredentialCheck("chat_credentials", c.chat.Configured))

	generateHandler := handlers.NewGenerateHandler(c.pipeline, s.logger)
	refineHandler := handlers.NewRefineHandler(c.refiner, s.logger)
	workspaceHandler := handlers.NewWorkspaceHandler(c.workspace, nil, s.logger)

	mux := http.NewServeMux()

	// 健康检查端点
	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	// API 路由
	mux.HandleFunc("POST /api/generate", generateHandler.HandleGenerate)
	mux.HandleFunc("POST /api/refine", refineHandler.HandleRefine)
	mux.HandleFunc("GET /api/workspace", workspaceHandler.HandleGet)
	mux.HandleFunc("PUT /api/workspace", workspaceHandler.HandlePut)
	mux.HandleFunc("POST /api/workspace/seed", workspaceHandler.HandleRandomizeSeed)
	mux.HandleFunc("POST /api/workspace/clear", workspaceHandler.HandleClear)

	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(),
		RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
	}
	if len(s.cfg.Server.APIKeys) > 0 {
		middlewares = append(middlewares, APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🚀 运行与关闭
// =============================================================================

// Run 启动 API 与 Metrics 服务器，阻塞到 ctx 结束或任一服务器出错，然后优雅关闭
func (s *Server) Run(ctx context.Context) error {
	defer s.shutdown()

	if err := s.components.artifacts.CheckWritable(ctx); err != nil {
		s.logger.Warn("output directory is not writable", zap.String("dir", s.cfg.Output.Dir), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, m := range []*server.Manager{s.httpManager, s.metricsManager} {
		if m == nil {
			continue
		}
		g.Go(func() error { return m.Run(gctx) })
	}

	s.logger.Info("Servers starting",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("workspace_driver", s.cfg.Workspace.Driver),
		zap.String("output_dir", s.cfg.Output.Dir),
	)

	return g.Wait()
}

// shutdown 释放服务器之外的资源
func (s *Server) shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.telemetry != nil {
		if err := s.telemetry.Shutdown(ctx); err != nil {
			s.logger.Error("Telemetry shutdown error", zap.Error(err))
		}
	}
	if err := s.components.Close(); err != nil {
		s.logger.Error("Workspace store close error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
