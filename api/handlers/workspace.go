package handlers

import (
	"io"
	"net/http"
	"sync"

	"github.com/BaSui01/renderflow/types"
	"github.com/BaSui01/renderflow/workspace"
	"go.uber.org/zap"
)

// SeedResponse is returned by the randomise endpoint.
type SeedResponse struct {
	Seed     int64               `json:"seed"`
	Snapshot *workspace.Settings `json:"snapshot"`
}

// =============================================================================
// 🗂️ Workspace Handler
// =============================================================================

// WorkspaceHandler 工作区快照处理器
type WorkspaceHandler struct {
	store  workspace.Store
	seeds  workspace.SeedSource
	logger *zap.Logger

	// 读-改-写操作串行执行
	mu sync.Mutex
}

// NewWorkspaceHandler 创建工作区处理器. seeds 为 nil 时使用 workspace.RandomSeed.
func NewWorkspaceHandler(store workspace.Store, seeds workspace.SeedSource, logger *zap.Logger) *WorkspaceHandler {
	if seeds == nil {
		seeds = workspace.RandomSeed
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkspaceHandler{
		store:  store,
		seeds:  seeds,
		logger: logger.With(zap.String("handler", "workspace")),
	}
}

// HandleGet 处理 GET /api/workspace
// @Summary 读取工作区
// @Tags 工作区
// @Produce json
// @Success 200 {object} workspace.Settings "当前快照"
// @Failure 500 {object} ErrorBody "存储错误"
// @Router /api/workspace [get]
func (h *WorkspaceHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.store.Load(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

// HandlePut 处理 PUT /api/workspace. 整体替换快照，缺失字段取默认值.
// @Summary 替换工作区
// @Tags 工作区
// @Accept json
// @Produce json
// @Success 200 {object} workspace.Settings "保存后的快照"
// @Failure 400 {object} ErrorBody "JSON 无效"
// @Failure 500 {object} ErrorBody "存储错误"
// @Router /api/workspace [put]
func (h *WorkspaceHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		WriteError(w, types.NewInvalidRequestError("failed to read request body").WithCause(err), h.logger)
		return
	}
	snapshot, err := workspace.Decode(raw)
	if err != nil {
		WriteError(w, types.NewInvalidRequestError("workspace snapshot is not valid JSON").WithCause(err), h.logger)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.store.Save(r.Context(), snapshot); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, snapshot)
}

// HandleRandomizeSeed 处理 POST /api/workspace/seed
// @Summary 随机化当前模型的种子
// @Tags 工作区
// @Produce json
// @Success 200 {object} SeedResponse "新种子与快照"
// @Failure 500 {object} ErrorBody "存储错误"
// @Router /api/workspace/seed [post]
func (h *WorkspaceHandler) HandleRandomizeSeed(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *workspace.Settings) any {
		seed := s.RandomizeSeed(h.seeds)
		return SeedResponse{Seed: seed, Snapshot: s}
	})
}

// HandleClear 处理 POST /api/workspace/clear
// @Summary 重置工作区的临时状态
// @Tags 工作区
// @Produce json
// @Success 200 {object} workspace.Settings "重置后的快照"
// @Failure 500 {object} ErrorBody "存储错误"
// @Router /api/workspace/clear [post]
func (h *WorkspaceHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	h.update(w, r, func(s *workspace.Settings) any {
		s.Clear()
		return s
	})
}

func (h *WorkspaceHandler) update(w http.ResponseWriter, r *http.Request, mutate func(*workspace.Settings) any) {
	h.mu.Lock()
	defer h.mu.Unlock()

	snapshot, err := h.store.Load(r.Context())
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}
	resp := mutate(snapshot)
	if err := h.store.Save(r.Context(), snapshot); err != nil {
		WriteError(w, err, h.logger)
		return
	}
	WriteJSON(w, http.StatusOK, resp)
}
