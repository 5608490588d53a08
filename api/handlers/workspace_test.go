package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BaSui01/renderflow/imaging"
	"github.com/BaSui01/renderflow/types"
	"github.com/BaSui01/renderflow/workspace"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type failingStore struct {
	*workspace.MemoryStore
}

func (failingStore) Save(ctx context.Context, s *workspace.Settings) error {
	return types.NewError(types.ErrPersistenceError, "workspace save failed").WithCause(errors.New("disk full"))
}

func decodeSnapshot(t *testing.T, w *httptest.ResponseRecorder) *workspace.Settings {
	t.Helper()
	var s workspace.Settings
	require.NoError(t, json.NewDecoder(w.Body).Decode(&s))
	return &s
}

func TestWorkspaceHandler_GetDefaults(t *testing.T) {
	h := NewWorkspaceHandler(workspace.NewMemoryStore(), nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleGet(w, httptest.NewRequest(http.MethodGet, "/api/workspace", nil))

	require.Equal(t, http.StatusOK, w.Code)
	s := decodeSnapshot(t, w)
	assert.Equal(t, imaging.ModelFlux, s.SelectedModel)
	assert.Equal(t, workspace.DefaultNegativePrompt, s.NegativePrompt)
	assert.Equal(t, float64(workspace.DefaultComparePos), s.ComparePos)
}

func TestWorkspaceHandler_PutBackfillsAndPersists(t *testing.T) {
	store := workspace.NewMemoryStore()
	h := NewWorkspaceHandler(store, nil, zap.NewNop())

	r := httptest.NewRequest(http.MethodPut, "/api/workspace",
		bytes.NewBufferString(`{"prompt":"paint the wall","selectedModel":"seedream","comparePos":180}`))
	w := httptest.NewRecorder()
	h.HandlePut(w, r)

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s := decodeSnapshot(t, w)
	assert.Equal(t, "paint the wall", s.Prompt)
	assert.Equal(t, imaging.ModelSeedream, s.SelectedModel)
	assert.Equal(t, float64(100), s.ComparePos)
	assert.Equal(t, 1024, *s.Seedream.Width)

	stored, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "paint the wall", stored.Prompt)
}

func TestWorkspaceHandler_PutMalformed(t *testing.T) {
	store := workspace.NewMemoryStore()
	h := NewWorkspaceHandler(store, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandlePut(w, httptest.NewRequest(http.MethodPut, "/api/workspace", bytes.NewBufferString(`{"prompt":`)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.ErrInvalidRequest), decodeError(t, w).Code)
}

func TestWorkspaceHandler_RandomizeSeed(t *testing.T) {
	store := workspace.NewMemoryStore()
	initial := workspace.Defaults()
	initial.SelectedModel = imaging.ModelQwen
	require.NoError(t, store.Save(t.Context(), initial))

	h := NewWorkspaceHandler(store, func() int64 { return 4242 }, zap.NewNop())
	w := httptest.NewRecorder()
	h.HandleRandomizeSeed(w, httptest.NewRequest(http.MethodPost, "/api/workspace/seed", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var resp SeedResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, int64(4242), resp.Seed)
	assert.Equal(t, int64(4242), *resp.Snapshot.Qwen.Seed)

	stored, err := store.Load(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(4242), *stored.Qwen.Seed)
	assert.Equal(t, int64(0), *stored.Flux.Seed, "other models keep their seed")
}

func TestWorkspaceHandler_Clear(t *testing.T) {
	store := workspace.NewMemoryStore()
	initial := workspace.Defaults()
	initial.Prompt = "old"
	initial.SeedLock = true
	initial.Tab = workspace.TabCompare
	require.NoError(t, store.Save(t.Context(), initial))

	w := httptest.NewRecorder()
	NewWorkspaceHandler(store, nil, nil).HandleClear(w, httptest.NewRequest(http.MethodPost, "/api/workspace/clear", nil))

	require.Equal(t, http.StatusOK, w.Code)
	s := decodeSnapshot(t, w)
	assert.Empty(t, s.Prompt)
	assert.False(t, s.SeedLock)
	assert.Equal(t, workspace.TabSource, s.Tab)
}

func TestWorkspaceHandler_SaveFailure(t *testing.T) {
	h := NewWorkspaceHandler(failingStore{workspace.NewMemoryStore()}, nil, zap.NewNop())

	w := httptest.NewRecorder()
	h.HandleRandomizeSeed(w, httptest.NewRequest(http.MethodPost, "/api/workspace/seed", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	body := decodeError(t, w)
	assert.Equal(t, string(types.ErrPersistenceError), body.Code)
	assert.Equal(t, string(types.KindPersistence), body.Kind)
}
