package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/renderflow/llm"
	"github.com/BaSui01/renderflow/refine"
	"github.com/BaSui01/renderflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPromptRefiner struct {
	got *refine.Request
	res *refine.Result
	err error
}

func (s *stubPromptRefiner) Refine(ctx context.Context, req *refine.Request) (*refine.Result, error) {
	s.got = req
	return s.res, s.err
}

func postRefine(t *testing.T, h *RefineHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/refine", bytes.NewBufferString(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.HandleRefine(w, r)
	return w
}

func TestRefineHandler_Success(t *testing.T) {
	stub := &stubPromptRefiner{res: &refine.Result{
		RefinedPrompt: "A cozy living room with a blue sofa",
		FinishReason:  "stop",
		Usage:         &llm.Usage{PromptTokens: 12, CompletionTokens: 9, TotalTokens: 21},
	}}
	w := postRefine(t, NewRefineHandler(stub, zap.NewNop()),
		`{"prompt":"blue sofa","temperature":"0.7","top_p":"abc","max_completion_tokens":300,"image":"data:image/png;base64,AA=="}`)

	require.Equal(t, http.StatusOK, w.Code)

	require.NotNil(t, stub.got)
	assert.Equal(t, "blue sofa", stub.got.Prompt)
	temp, ok := stub.got.Temperature.Float()
	assert.True(t, ok)
	assert.Equal(t, 0.7, temp)
	assert.True(t, stub.got.TopP.IsZero())
	assert.Equal(t, "data:image/png;base64,AA==", stub.got.Image)

	var resp map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "A cozy living room with a blue sofa", resp["refinedPrompt"])
	assert.Equal(t, "stop", resp["finish_reason"])
	usage, ok := resp["usage"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 21, usage["total_tokens"])
}

func TestRefineHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		wantStatus int
		wantCode   types.ErrorCode
	}{
		{
			name:       "malformed JSON",
			body:       `{"prompt":`,
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "blank prompt",
			body:       `{"prompt":"  "}`,
			err:        types.NewInvalidRequestError("prompt is required"),
			wantStatus: http.StatusBadRequest,
			wantCode:   types.ErrInvalidRequest,
		},
		{
			name:       "key missing",
			body:       `{"prompt":"x"}`,
			err:        types.NewError(types.ErrConfigMissing, "chat API key is not configured"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   types.ErrConfigMissing,
		},
		{
			name:       "empty completion",
			body:       `{"prompt":"x"}`,
			err:        types.NewError(types.ErrEmptyCompletion, "chat service returned no text (finish_reason 'length')"),
			wantStatus: http.StatusBadGateway,
			wantCode:   types.ErrEmptyCompletion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postRefine(t, NewRefineHandler(&stubPromptRefiner{err: tt.err}, nil), tt.body)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, string(tt.wantCode), decodeError(t, w).Code)
		})
	}
}
