package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/renderflow/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap/zaptest"
)

// keepGlobals 还原测试前的全局 provider
func keepGlobals(t *testing.T) {
	t.Helper()
	tp, mp, prop := otel.GetTracerProvider(), otel.GetMeterProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetMeterProvider(mp)
		otel.SetTextMapPropagator(prop)
	})
}

func enabledConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		Enabled:        true,
		OTLPEndpoint:   "localhost:4317",
		ServiceName:    "renderflow-test",
		SampleRate:     1,
		MetricInterval: time.Hour,
	}
}

func shutdownQuietly(t *testing.T, p *Providers) {
	t.Cleanup(func() {
		// 没有 collector，导出可能失败，只要求按时返回
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
}

func TestInit_Disabled(t *testing.T) {
	keepGlobals(t)
	before := otel.GetTracerProvider()

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "1.0.0", zaptest.NewLogger(t))
	require.NoError(t, err)

	assert.False(t, p.Enabled())
	assert.Equal(t, before, otel.GetTracerProvider())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_RegistersSDKProviders(t *testing.T) {
	keepGlobals(t)

	p, err := Init(context.Background(), enabledConfig(), "1.2.3", zaptest.NewLogger(t))
	require.NoError(t, err)
	shutdownQuietly(t, p)

	assert.True(t, p.Enabled())
	assert.IsType(t, &sdktrace.TracerProvider{}, otel.GetTracerProvider())
	assert.IsType(t, &sdkmetric.MeterProvider{}, otel.GetMeterProvider())
	assert.Contains(t, otel.GetTextMapPropagator().Fields(), "traceparent")
}

func TestInit_ClampsSampleRate(t *testing.T) {
	keepGlobals(t)

	cfg := enabledConfig()
	cfg.ServiceName = ""
	cfg.SampleRate = 7

	p, err := Init(context.Background(), cfg, "", nil)
	require.NoError(t, err)
	shutdownQuietly(t, p)

	_, span := otel.Tracer("test").Start(context.Background(), "probe")
	defer span.End()
	assert.True(t, span.SpanContext().IsSampled())
}

func TestInit_FollowsParentSamplingDecision(t *testing.T) {
	keepGlobals(t)

	cfg := enabledConfig()
	cfg.SampleRate = 0

	p, err := Init(context.Background(), cfg, "1.0.0", nil)
	require.NoError(t, err)
	shutdownQuietly(t, p)

	// 根 span 按 0 采样率丢弃
	_, root := otel.Tracer("test").Start(context.Background(), "root")
	assert.False(t, root.SpanContext().IsSampled())
	root.End()

	// 上游已采样时沿用上游决定
	parent := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{1},
		SpanID:     trace.SpanID{2},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), parent)
	_, child := otel.Tracer("test").Start(ctx, "child")
	defer child.End()
	assert.True(t, child.SpanContext().IsSampled())
}

func TestNewResource(t *testing.T) {
	res, err := newResource(context.Background(), "renderflow", "2.0.0")
	require.NoError(t, err)

	attrs := map[attribute.Key]string{}
	for _, kv := range res.Attributes() {
		attrs[kv.Key] = kv.Value.Emit()
	}
	assert.Equal(t, "renderflow", attrs[semconv.ServiceNameKey])
	assert.Equal(t, "2.0.0", attrs[semconv.ServiceVersionKey])
	assert.NotEmpty(t, attrs[semconv.ProcessPIDKey])
}

func TestProviders_Shutdown(t *testing.T) {
	t.Run("nil receiver", func(t *testing.T) {
		var p *Providers
		assert.NoError(t, p.Shutdown(context.Background()))
		assert.False(t, p.Enabled())
	})

	t.Run("joins errors and runs every step", func(t *testing.T) {
		var calls []string
		p := &Providers{shutdowns: []func(context.Context) error{
			wrapShutdown("tracer provider", func(context.Context) error {
				calls = append(calls, "tracer")
				return errors.New("flush failed")
			}),
			wrapShutdown("meter provider", func(context.Context) error {
				calls = append(calls, "meter")
				return nil
			}),
		}}

		err := p.Shutdown(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "shutdown tracer provider: flush failed")
		assert.Equal(t, []string{"tracer", "meter"}, calls)
	})
}
