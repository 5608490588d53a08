// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpRequestSize     *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	// 生成指标
	generationAttempts *prometheus.CounterVec
	providerDuration   *prometheus.HistogramVec
	artifactBytes      *prometheus.CounterVec

	// 提示词优化指标
	refineRequests *prometheus.CounterVec
	refineTokens   *prometheus.CounterVec

	// 工作区存储指标
	workspaceOps *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	c.httpRequestSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_size_bytes",
			Help:      "HTTP request size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	c.httpResponseSize = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_response_size_bytes",
			Help:      "HTTP response size in bytes",
			Buckets:   prometheus.ExponentialBuckets(100, 10, 8),
		},
		[]string{"method", "path"},
	)

	// 生成指标
	c.generationAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_attempts_total",
			Help:      "Total number of generation attempts by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	c.providerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Image provider request duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 60, 120, 300},
		},
		[]string{"model"},
	)

	c.artifactBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_bytes_total",
			Help:      "Total bytes of persisted artifacts",
		},
		[]string{"label"},
	)

	// 提示词优化指标
	c.refineRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refine_requests_total",
			Help:      "Total number of prompt refinement requests",
		},
		[]string{"model", "outcome"},
	)

	c.refineTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refine_tokens_used_total",
			Help:      "Total number of tokens used by prompt refinement",
		},
		[]string{"model", "type"}, // type: prompt, completion
	)

	// 工作区存储指标
	c.workspaceOps = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workspace_store_duration_seconds",
			Help:      "Workspace store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"driver", "operation"},
	)

	logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, requestSize, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpRequestSize.WithLabelValues(method, path).Observe(float64(requestSize))
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🖼️ 生成指标记录
// =============================================================================

// RecordGeneration 记录一次生成尝试的结果（done / failed / cancelled）
func (c *Collector) RecordGeneration(model, outcome string) {
	c.generationAttempts.WithLabelValues(model, outcome).Inc()
}

// RecordProviderRequest 记录图像服务调用耗时
func (c *Collector) RecordProviderRequest(model string, duration time.Duration) {
	c.providerDuration.WithLabelValues(model).Observe(duration.Seconds())
}

// RecordArtifact 记录落盘字节数
func (c *Collector) RecordArtifact(label string, bytes int) {
	c.artifactBytes.WithLabelValues(label).Add(float64(bytes))
}

// =============================================================================
// ✍️ 提示词优化指标记录
// =============================================================================

// RecordRefine 记录提示词优化请求
func (c *Collector) RecordRefine(model, outcome string, promptTokens, completionTokens int) {
	c.refineRequests.WithLabelValues(model, outcome).Inc()
	c.refineTokens.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	c.refineTokens.WithLabelValues(model, "completion").Add(float64(completionTokens))
}

// =============================================================================
// 🗄️ 工作区存储指标记录
// =============================================================================

// RecordWorkspaceOp 记录工作区存储操作
func (c *Collector) RecordWorkspaceOp(driver, operation string, duration time.Duration) {
	c.workspaceOps.WithLabelValues(driver, operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
