package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/renderflow/generate"
	"github.com/BaSui01/renderflow/imaging"
	"github.com/BaSui01/renderflow/internal/ctxkeys"
	"github.com/BaSui01/renderflow/types"
	"go.uber.org/zap"
)

// Multipart fields of the generate endpoint.
const (
	FieldImage          = "image"
	FieldPrompt         = "prompt"
	FieldNegativePrompt = "negative_prompt"
	FieldModel          = "model"
	FieldSettings       = "settings"
)

// formOverhead 为表单文本字段与 multipart 边界预留的空间
const formOverhead = 1 << 20

// Runner executes one generation attempt. *generate.Pipeline implements it.
type Runner interface {
	Run(ctx context.Context, req *generate.Request, progress generate.ProgressFunc) (*generate.Result, error)
}

// configurable 由能在解析请求前报告凭据缺失的 Runner 实现
type configurable interface {
	Configured() bool
}

// =============================================================================
// 🖼️ Generate Handler
// =============================================================================

// GenerateHandler 图像生成处理器
type GenerateHandler struct {
	runner Runner
	logger *zap.Logger
}

// NewGenerateHandler 创建图像生成处理器
func NewGenerateHandler(runner Runner, logger *zap.Logger) *GenerateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerateHandler{
		runner: runner,
		logger: logger.With(zap.String("handler", "generate")),
	}
}

// HandleGenerate 处理 POST /api/generate
// @Summary 生成图像
// @Description 上传源图与指令，调用所选模型编辑图像并保存到输出目录
// @Tags 生成
// @Accept multipart/form-data
// @Produce json
// @Param image formData file true "源图 (PNG/JPEG/WEBP, ≤10MB)"
// @Param prompt formData string true "编辑指令"
// @Param negative_prompt formData string false "反向提示词"
// @Param model formData string true "模型 (qwen|flux|gemini|seedream)"
// @Param settings formData string false "模型参数 JSON"
// @Success 200 {object} generate.Result "生成结果"
// @Failure 400 {object} ErrorBody "请求无效"
// @Failure 500 {object} ErrorBody "配置或持久化错误"
// @Failure 502 {object} ErrorBody "上游错误"
// @Router /api/generate [post]
func (h *GenerateHandler) HandleGenerate(w http.ResponseWriter, r *http.Request) {
	// 凭据缺失优先于表单校验
	if c, ok := h.runner.(configurable); ok && !c.Configured() {
		WriteError(w, types.NewError(types.ErrConfigMissing, "fal.ai API key is not configured"), h.logger)
		return
	}

	req, err := ParseGenerateForm(w, r)
	if err != nil {
		WriteError(w, err, h.logger)
		return
	}

	logger := h.logger.With(ctxkeys.Fields(r.Context())...)
	res, err := h.runner.Run(r.Context(), req, func(stage generate.Stage) {
		logger.Debug("generation stage", zap.String("stage", string(stage)), zap.String("model", string(req.Model)))
	})
	if err != nil {
		WriteError(w, err, logger)
		return
	}

	WriteJSON(w, http.StatusOK, res)
}

// ParseGenerateForm reads the multipart form into a generation request. Only
// shape errors are reported here; the pipeline validates the rest.
func ParseGenerateForm(w http.ResponseWriter, r *http.Request) (*generate.Request, error) {
	r.Body = http.MaxBytesReader(w, r.Body, imaging.MaxSourceBytes+formOverhead)
	if err := r.ParseMultipartForm(imaging.MaxSourceBytes + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, types.NewInvalidRequestError("source image exceeds 10 MB").WithCause(err)
		}
		return nil, types.NewInvalidRequestError("request must be multipart/form-data").WithCause(err)
	}

	var missing []string
	prompt := r.FormValue(FieldPrompt)
	if strings.TrimSpace(prompt) == "" {
		missing = append(missing, FieldPrompt)
	}
	rawModel := strings.TrimSpace(r.FormValue(FieldModel))
	if rawModel == "" {
		missing = append(missing, FieldModel)
	}
	image, err := readImage(r)
	if err != nil {
		return nil, err
	}
	if image == nil {
		missing = append(missing, FieldImage)
	}
	if len(missing) > 0 {
		return nil, types.NewInvalidRequestError("missing required fields: " + strings.Join(missing, ", "))
	}

	model, ok := imaging.ParseModelID(rawModel)
	if !ok {
		return nil, types.NewError(types.ErrUnsupportedModel, "model '"+rawModel+"' is not supported")
	}
	settings, err := imaging.DecodeSettings(model, []byte(r.FormValue(FieldSettings)))
	if err != nil {
		return nil, err
	}

	return &generate.Request{
		Model:          model,
		Prompt:         prompt,
		NegativePrompt: r.FormValue(FieldNegativePrompt),
		Image:          image,
		Settings:       settings,
	}, nil
}

func readImage(r *http.Request) (*imaging.SourceImage, error) {
	file, header, err := r.FormFile(FieldImage)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewInvalidRequestError("failed to read uploaded image").WithCause(err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, types.NewInvalidRequestError("failed to read uploaded image").WithCause(err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return &imaging.SourceImage{
		Data:        data,
		ContentType: header.Header.Get("Content-Type"),
		FileName:    header.Filename,
	}, nil
}
