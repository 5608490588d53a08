package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	attemptIDKey contextKey = "attempt_id"
)

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return lookup(ctx, requestIDKey)
}

// WithAttemptID 设置生成/优化尝试 ID
func WithAttemptID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, attemptIDKey, id)
}

// AttemptID 获取尝试 ID
func AttemptID(ctx context.Context) (string, bool) {
	return lookup(ctx, attemptIDKey)
}

// Fields returns the IDs present in ctx as log fields.
func Fields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if id, ok := RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", id))
	}
	if id, ok := AttemptID(ctx); ok {
		fields = append(fields, zap.String("attempt_id", id))
	}
	return fields
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
