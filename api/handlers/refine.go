package handlers

import (
	"context"
	"net/http"

	"github.com/BaSui01/renderflow/internal/ctxkeys"
	"github.com/BaSui01/renderflow/refine"
	"go.uber.org/zap"
)

// PromptRefiner rewrites prompts. *refine.Service implements it.
type PromptRefiner interface {
	Refine(ctx context.Context, req *refine.Request) (*refine.Result, error)
}

// =============================================================================
// ✏️ Refine Handler
// =============================================================================

// RefineHandler 提示词优化处理器
type RefineHandler struct {
	refiner PromptRefiner
	logger  *zap.Logger
}

// NewRefineHandler 创建提示词优化处理器
func NewRefineHandler(refiner PromptRefiner, logger *zap.Logger) *RefineHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RefineHandler{
		refiner: refiner,
		logger:  logger.With(zap.String("handler", "refine")),
	}
}

// HandleRefine 处理 POST /api/refine
// @Summary 优化提示词
// @Description 通过聊天补全把粗略指令改写为模型友好的提示词
// @Tags 优化
// @Accept json
// @Produce json
// @Param request body refine.Request true "优化请求"
// @Success 200 {object} refine.Result "优化结果"
// @Failure 400 {object} ErrorBody "请求无效"
// @Failure 500 {object} ErrorBody "配置错误"
// @Failure 502 {object} ErrorBody "上游错误或空补全"
// @Router /api/refine [post]
func (h *RefineHandler) HandleRefine(w http.ResponseWriter, r *http.Request) {
	var req refine.Request
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	res, err := h.refiner.Refine(r.Context(), &req)
	if err != nil {
		WriteError(w, err, h.logger.With(ctxkeys.Fields(r.Context())...))
		return
	}

	WriteJSON(w, http.StatusOK, res)
}
