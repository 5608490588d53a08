package handlers

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🏥 健康检查 Handler
// =============================================================================

// HealthHandler 健康检查处理器
type HealthHandler struct {
	logger *zap.Logger
	checks []HealthCheck
	mu     sync.RWMutex
}

// HealthCheck 健康检查接口
type HealthCheck interface {
	Name() string
	Check(ctx context.Context) error
}

// 健康状态取值
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

const readyTimeout = 5 * time.Second

// criticality 由可以降级运行的检查实现；未实现的检查视为关键检查
type criticality interface {
	Critical() bool
}

func isCritical(check HealthCheck) bool {
	if c, ok := check.(criticality); ok {
		return c.Critical()
	}
	return true
}

// HealthStatus 健康状态响应
type HealthStatus struct {
	Status    string                 `json:"status"` // StatusHealthy / StatusDegraded / StatusUnhealthy
	Timestamp time.Time              `json:"timestamp"`
	Version   string                 `json:"version,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult 单个检查结果
type CheckResult struct {
	Status  string `json:"status"` // "pass", "fail"
	Message string `json:"message,omitempty"`
	Latency string `json:"latency,omitempty"`
}

// NewHealthHandler 创建健康检查处理器
func NewHealthHandler(logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{
		logger: logger,
		checks: make([]HealthCheck, 0),
	}
}

// RegisterCheck 注册健康检查
func (h *HealthHandler) RegisterCheck(check HealthCheck) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, check)
}

// =============================================================================
// 🎯 HTTP 处理程序
// =============================================================================

// HandleHealth 处理 /health 请求（存活检查，不运行已注册的检查）
// @Summary 健康检查
// @Description 简单的健康检查端点
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务正常"
// @Router /health [get]
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeAlive(w)
}

// HandleHealthz 处理 /healthz 请求（Kubernetes 风格）
// @Summary Kubernetes 活跃度探针
// @Description Kubernetes 的活跃度探针
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务处于活动状态"
// @Router /healthz [get]
func (h *HealthHandler) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeAlive(w)
}

func writeAlive(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, HealthStatus{Status: StatusHealthy, Timestamp: time.Now()})
}

// HandleReady 处理 /ready 请求（就绪检查）
// 所有检查并发执行；关键检查失败返回 503，仅非关键检查失败时为 degraded（200）
// @Summary 准备情况检查
// @Description 检查产物目录、工作区存储与上游凭据
// @Tags 健康
// @Produce json
// @Success 200 {object} HealthStatus "服务已准备就绪或降级运行"
// @Failure 503 {object} HealthStatus "服务尚未准备好"
// @Router /ready [get]
func (h *HealthHandler) HandleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
	defer cancel()

	h.mu.RLock()
	checks := slices.Clone(h.checks)
	h.mu.RUnlock()

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]CheckResult, len(checks)),
	}

	var (
		mu       sync.Mutex
		wg       sync.WaitGroup
		critical bool
		degraded bool
	)
	for _, check := range checks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := runCheck(ctx, check)

			mu.Lock()
			defer mu.Unlock()
			status.Checks[check.Name()] = result
			if err == nil {
				return
			}
			if isCritical(check) {
				critical = true
			} else {
				degraded = true
			}
			h.logger.Warn("health check failed",
				zap.String("check", check.Name()),
				zap.Bool("critical", isCritical(check)),
				zap.Error(err),
			)
		}()
	}
	wg.Wait()

	switch {
	case critical:
		status.Status = StatusUnhealthy
		WriteJSON(w, http.StatusServiceUnavailable, status)
	case degraded:
		status.Status = StatusDegraded
		WriteJSON(w, http.StatusOK, status)
	default:
		WriteJSON(w, http.StatusOK, status)
	}
}

func runCheck(ctx context.Context, check HealthCheck) (CheckResult, error) {
	start := time.Now()
	err := check.Check(ctx)
	result := CheckResult{Status: "pass", Latency: time.Since(start).String()}
	if err != nil {
		result.Status = "fail"
		result.Message = err.Error()
	}
	return result, err
}

// HandleVersion 处理 /version 请求
// @Summary 版本信息
// @Description 返回版本信息
// @Tags 健康
// @Produce json
// @Success 200 {object} map[string]string "版本信息"
// @Router /version [get]
func (h *HealthHandler) HandleVersion(version, buildTime, gitCommit string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{
			"version":    version,
			"build_time": buildTime,
			"git_commit": gitCommit,
		})
	}
}

// =============================================================================
// 🔧 内置健康检查实现
// =============================================================================

// FuncCheck adapts a ping function to HealthCheck.
type FuncCheck struct {
	name     string
	ping     func(ctx context.Context) error
	optional bool
}

// NewFuncCheck 创建基于函数的关键健康检查
func NewFuncCheck(name string, ping func(ctx context.Context) error) *FuncCheck {
	return &FuncCheck{name: name, ping: ping}
}

func (c *FuncCheck) Name() string { return c.name }

func (c *FuncCheck) Check(ctx context.Context) error { return c.ping(ctx) }

// Critical 报告失败时是否使服务不可用
func (c *FuncCheck) Critical() bool { return !c.optional }

// ErrNotConfigured 表示上游凭据缺失
var ErrNotConfigured = errors.New("credentials not configured")

// NewCredentialCheck 检查上游凭据是否已配置。缺失时服务降级而非不可用：
// 工作区与产物接口仍可用，生成或优化请求会返回 CONFIG_MISSING。
func NewCredentialCheck(name string, configured func() bool) *FuncCheck {
	return &FuncCheck{
		name: name,
		ping: func(context.Context) error {
			if !configured() {
				return ErrNotConfigured
			}
			return nil
		},
		optional: true,
	}
}

// Writable is satisfied by *artifact.Store.
type Writable interface {
	CheckWritable(ctx context.Context) error
}

// Pinger is satisfied by every workspace.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// NewOutputDirCheck 检查产物目录可写
func NewOutputDirCheck(store Writable) *FuncCheck {
	return NewFuncCheck("output_dir", store.CheckWritable)
}

// NewWorkspaceCheck 检查工作区存储可达
func NewWorkspaceCheck(store Pinger) *FuncCheck {
	return NewFuncCheck("workspace_store", store.Ping)
}
