package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/renderflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestChatClient(t *testing.T, handler http.HandlerFunc) *ChatClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewChatClient(ChatConfig{APIKey: "sk-test", BaseURL: srv.URL + "/v1"}, srv.Client(), zap.NewNop())
}

func intPtr(v int) *int { return &v }

func TestChatClient_Complete(t *testing.T) {
	var gotBody map[string]any
	client := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id":"chatcmpl-1","model":"gpt-5-mini","created":1,
			"choices":[{"index":0,"message":{"role":"assistant","content":"Refined."},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":12,"completion_tokens":3,"total_tokens":15}
		}`))
	})

	resp, err := client.Complete(context.Background(), &ChatRequest{
		Model: "gpt-5-mini",
		Messages: []Message{
			SystemMessage("be brief"),
			UserMessage(TextPart("rough"), ImagePart("data:image/png;base64,AA==")),
		},
		MaxCompletionTokens: intPtr(200),
	})
	require.NoError(t, err)

	assert.Equal(t, "Refined.", resp.FirstChoice().Message.Content)
	assert.Equal(t, "stop", resp.FirstChoice().FinishReason)
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.NotEmpty(t, resp.Raw)

	assert.Equal(t, "gpt-5-mini", gotBody["model"])
	assert.EqualValues(t, 200, gotBody["max_completion_tokens"])
	assert.NotContains(t, gotBody, "temperature")
	assert.NotContains(t, gotBody, "top_p")

	messages := gotBody["messages"].([]any)
	require.Len(t, messages, 2)
	user := messages[1].(map[string]any)
	parts := user["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "text", parts[0].(map[string]any)["type"])
	assert.Equal(t, "image_url", parts[1].(map[string]any)["type"])
}

func TestChatClient_Complete_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		code      types.ErrorCode
		message   string
		retryable bool
	}{
		{
			name:    "structured error",
			status:  http.StatusBadRequest,
			body:    `{"error":{"message":"Unsupported parameter: 'temperature'","type":"invalid_request_error"}}`,
			code:    types.ErrUpstreamError,
			message: "Unsupported parameter: 'temperature' (type: invalid_request_error)",
		},
		{
			name:      "rate limited",
			status:    http.StatusTooManyRequests,
			body:      `slow down`,
			code:      types.ErrUpstreamError,
			message:   "slow down",
			retryable: true,
		},
		{
			name:    "undecodable success",
			status:  http.StatusOK,
			body:    `not json`,
			code:    types.ErrUpstreamError,
			message: "failed to decode chat response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.Complete(context.Background(), &ChatRequest{Model: "m"})
			e, ok := types.AsError(err)
			require.True(t, ok)
			assert.Equal(t, tt.code, e.Code)
			assert.Contains(t, e.Message, tt.message)
			assert.Equal(t, tt.retryable, e.Retryable)
			assert.Equal(t, "openai", e.Provider)
			assert.Equal(t, http.StatusBadGateway, types.StatusFor(err))
		})
	}
}

func TestChatClient_NotConfigured(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))
	defer srv.Close()

	client := NewChatClient(ChatConfig{BaseURL: srv.URL}, srv.Client(), nil)
	assert.False(t, client.Configured())

	_, err := client.Complete(context.Background(), &ChatRequest{Model: "m"})
	assert.True(t, types.IsErrorCode(err, types.ErrConfigMissing))
	assert.Equal(t, http.StatusInternalServerError, types.StatusFor(err))
	assert.False(t, called)
}

func TestChatClient_Cancelled(t *testing.T) {
	client := newTestChatClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Complete(ctx, &ChatRequest{Model: "m"})
	assert.True(t, types.IsErrorCode(err, types.ErrCancelled))
}
