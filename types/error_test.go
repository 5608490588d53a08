package types

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_ChainingAndHelpers(t *testing.T) {
	t.Parallel()

	root := errors.New("root")
	err := NewError(ErrUpstreamError, "upstream failed").
		WithCause(root).
		WithHTTPStatus(502).
		WithRetryable(true).
		WithProvider("fal").
		WithUpstream(500, "quota exceeded")

	if GetErrorCode(err) != ErrUpstreamError {
		t.Fatalf("expected code %s, got %s", ErrUpstreamError, GetErrorCode(err))
	}
	if !IsRetryable(err) {
		t.Fatalf("expected retryable")
	}
	if !errors.Is(err, root) {
		t.Fatalf("expected errors.Is unwrap to root")
	}
	if got := err.Error(); got == "" {
		t.Fatalf("expected non-empty error string")
	}
	assert.Equal(t, 500, err.UpstreamStatus)
	assert.Equal(t, "quota exceeded", err.UpstreamBody)
}

func TestAsError_ThroughWrapping(t *testing.T) {
	t.Parallel()

	inner := NewError(ErrNoImageReturned, "no image").WithRaw([]byte(`{"foo":1}`))
	wrapped := fmt.Errorf("generate: %w", inner)

	e, ok := AsError(wrapped)
	assert.True(t, ok)
	assert.Equal(t, ErrNoImageReturned, e.Code)
	assert.JSONEq(t, `{"foo":1}`, string(e.Raw))
	assert.True(t, IsErrorCode(wrapped, ErrNoImageReturned))
}

func TestKindOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code ErrorCode
		kind Kind
	}{
		{ErrInvalidRequest, KindValidation},
		{ErrUnsupportedModel, KindValidation},
		{ErrUnauthorized, KindValidation},
		{ErrRateLimited, KindValidation},
		{ErrUpstreamError, KindUpstream},
		{ErrDownloadError, KindUpstream},
		{ErrNoImageReturned, KindNormalization},
		{ErrEmptyCompletion, KindNormalization},
		{ErrPersistenceError, KindPersistence},
		{ErrCancelled, KindCancelled},
		{ErrConfigMissing, KindInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.kind, KindOf(NewError(tt.code, "x")), string(tt.code))
	}
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
}

func TestStatusFor(t *testing.T) {
	t.Parallel()

	assert.Equal(t, http.StatusBadRequest, StatusFor(NewError(ErrUnsupportedModel, "x")))
	assert.Equal(t, http.StatusUnauthorized, StatusFor(NewError(ErrUnauthorized, "x")))
	assert.Equal(t, http.StatusTooManyRequests, StatusFor(NewError(ErrRateLimited, "x")))
	assert.Equal(t, http.StatusBadGateway, StatusFor(NewError(ErrDownloadError, "x")))
	assert.Equal(t, http.StatusBadGateway, StatusFor(NewError(ErrEmptyCompletion, "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(NewError(ErrConfigMissing, "x")))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(NewError(ErrPersistenceError, "x")))
	assert.Equal(t, http.StatusTeapot, StatusFor(NewError(ErrUpstreamError, "x").WithHTTPStatus(http.StatusTeapot)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("plain")))
}
