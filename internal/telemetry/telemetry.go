// =============================================================================
// renderflow OpenTelemetry SDK 初始化
// =============================================================================
// generate.Pipeline 的 span 与 inflight 计数、OTelTracing 中间件的 span
// 都通过全局 provider 导出。关闭时不创建 exporter，全局 provider 保持 noop。
// =============================================================================

package telemetry

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/renderflow/config"
	"github.com/samber/lo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
)

// DefaultServiceName 配置未指定服务名时使用
const DefaultServiceName = "renderflow"

// Providers 持有已注册为全局的 SDK provider。
// 遥测关闭时不持有任何 provider，Shutdown 为空操作。
type Providers struct {
	shutdowns []func(context.Context) error
}

// Enabled 报告是否注册了 SDK provider
func (p *Providers) Enabled() bool {
	return p != nil && len(p.shutdowns) > 0
}

// Init 按配置初始化 OTel SDK 并注册全局 TracerProvider、MeterProvider 与传播器。
// version 写入 service.version 资源属性；采样率被钳制到 [0, 1]，
// 携带上游 trace 上下文的请求沿用上游的采样决定。
func Init(ctx context.Context, cfg config.TelemetryConfig, version string, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !cfg.Enabled {
		logger.Info("telemetry disabled, using noop providers")
		return &Providers{}, nil
	}
	cfg.ServiceName = lo.Ternary(cfg.ServiceName == "", DefaultServiceName, cfg.ServiceName)
	cfg.SampleRate = lo.Clamp(cfg.SampleRate, 0, 1)
	version = lo.Ternary(version == "", "dev", version)

	res, err := newResource(ctx, cfg.ServiceName, version)
	if err != nil {
		return nil, err
	}

	traceExporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("create trace exporter: %w", err)
	}
	metricExporter, err := otlpmetricgrpc.New(ctx,
		otlpmetricgrpc.WithEndpoint(cfg.OTLPEndpoint),
		otlpmetricgrpc.WithInsecure(),
	)
	if err != nil {
		_ = traceExporter.Shutdown(ctx)
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(cfg.SampleRate))),
	)

	var readerOpts []sdkmetric.PeriodicReaderOption
	if cfg.MetricInterval > 0 {
		readerOpts = append(readerOpts, sdkmetric.WithInterval(cfg.MetricInterval))
	}
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, readerOpts...)),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("service_name", cfg.ServiceName),
		zap.String("service_version", version),
		zap.Float64("sample_rate", cfg.SampleRate),
		zap.Duration("metric_interval", cfg.MetricInterval),
	)

	// 依次关闭 tracer 与 meter
	return &Providers{shutdowns: []func(context.Context) error{
		wrapShutdown("tracer provider", tp.Shutdown),
		wrapShutdown("meter provider", mp.Shutdown),
	}}, nil
}

// newResource 组合服务元数据与主机、进程信息。
// 探测器部分失败时保留已取得的属性。
func newResource(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
			semconv.ServiceVersionKey.String(version),
		),
		resource.WithHost(),
		resource.WithProcessPID(),
		resource.WithProcessRuntimeName(),
	)
	if err != nil && !errors.Is(err, resource.ErrPartialResource) {
		return nil, fmt.Errorf("create otel resource: %w", err)
	}
	return res, nil
}

func wrapShutdown(name string, fn func(context.Context) error) func(context.Context) error {
	return func(ctx context.Context) error {
		if err := fn(ctx); err != nil {
			return fmt.Errorf("shutdown %s: %w", name, err)
		}
		return nil
	}
}

// Shutdown 刷新未导出的 span 与指标并关闭 exporter，nil 接收者安全
func (p *Providers) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	var errs []error
	for _, fn := range p.shutdowns {
		errs = append(errs, fn(ctx))
	}
	return errors.Join(errs...)
}
