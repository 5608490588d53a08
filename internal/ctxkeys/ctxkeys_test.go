package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestAndAttemptIDs(t *testing.T) {
	ctx := context.Background()

	_, ok := RequestID(ctx)
	assert.False(t, ok)
	assert.Empty(t, Fields(ctx))

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithAttemptID(ctx, "att-1")

	id, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", id)
	id, ok = AttemptID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "att-1", id)

	fields := Fields(ctx)
	if assert.Len(t, fields, 2) {
		assert.Equal(t, "request_id", fields[0].Key)
		assert.Equal(t, "att-1", fields[1].String)
	}
}

func TestEmptyIDIsAbsent(t *testing.T) {
	_, ok := RequestID(WithRequestID(context.Background(), ""))
	assert.False(t, ok)
}
