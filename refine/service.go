// Package refine rewrites a rough editing instruction into a provider-tuned
// prompt through a chat completion.
package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/BaSui01/renderflow/llm"
	"github.com/BaSui01/renderflow/types"
	"go.uber.org/zap"
)

// Defaults applied when the request leaves a field unset.
const (
	DefaultModel               = "gpt-5-mini"
	DefaultMaxCompletionTokens = 200
)

// Request is the refine call. Numeric fields are lenient.
type Request struct {
	Prompt              string `json:"prompt"`
	System              string `json:"system,omitempty"`
	Model               string `json:"model,omitempty"`
	Temperature         Number `json:"temperature,omitzero"`
	TopP                Number `json:"top_p,omitzero"`
	MaxCompletionTokens Number `json:"max_completion_tokens,omitzero"`
	// Image is a data URI or https URL attached after the text.
	Image string `json:"image,omitempty"`
}

// Result is the refined prompt.
type Result struct {
	RefinedPrompt string     `json:"refinedPrompt"`
	FinishReason  string     `json:"finish_reason"`
	Usage         *llm.Usage `json:"usage"`
}

// Completer performs a chat completion. *llm.ChatClient implements it.
type Completer interface {
	Complete(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
}

// Recorder receives refine metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordRefine(model, outcome string, promptTokens, completionTokens int)
}

// Config holds service defaults.
type Config struct {
	DefaultModel               string
	DefaultMaxCompletionTokens int
}

// Service refines prompts.
type Service struct {
	chat     Completer
	cfg      Config
	recorder Recorder
	logger   *zap.Logger
}

// NewService creates a refine service. recorder may be nil.
func NewService(chat Completer, cfg Config, recorder Recorder, logger *zap.Logger) *Service {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = DefaultModel
	}
	if cfg.DefaultMaxCompletionTokens <= 0 {
		cfg.DefaultMaxCompletionTokens = DefaultMaxCompletionTokens
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		chat:     chat,
		cfg:      cfg,
		recorder: recorder,
		logger:   logger.With(zap.String("component", "refine_service")),
	}
}

// BuildChatRequest validates req and maps it to a chat request. The system
// message is sent only when non-blank; the image part follows the text part.
func (s *Service) BuildChatRequest(req *Request) (*llm.ChatRequest, error) {
	if req == nil {
		return nil, types.NewInvalidRequestError("prompt is required")
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, types.NewInvalidRequestError("prompt is required")
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = s.cfg.DefaultModel
	}
	maxTokens := s.cfg.DefaultMaxCompletionTokens
	if v, ok := req.MaxCompletionTokens.Float(); ok && v >= 1 {
		maxTokens = int(v)
	}

	parts := []llm.ContentPart{llm.TextPart(prompt)}
	if image := strings.TrimSpace(req.Image); image != "" {
		parts = append(parts, llm.ImagePart(image))
	}

	var messages []llm.Message
	if system := strings.TrimSpace(req.System); system != "" {
		messages = append(messages, llm.SystemMessage(system))
	}
	messages = append(messages, llm.UserMessage(parts...))

	return &llm.ChatRequest{
		Model:               model,
		Messages:            messages,
		MaxCompletionTokens: &maxTokens,
		Temperature:         req.Temperature.Ptr(),
		TopP:                req.TopP.Ptr(),
	}, nil
}

// Refine performs one refinement. A blank prompt fails before any outbound
// call; a successful response without text fails with EMPTY_COMPLETION.
func (s *Service) Refine(ctx context.Context, req *Request) (*Result, error) {
	chatReq, err := s.BuildChatRequest(req)
	if err != nil {
		return nil, err
	}

	resp, err := s.chat.Complete(ctx, chatReq)
	if err != nil {
		s.record(chatReq.Model, err, nil)
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		s.record(chatReq.Model, types.NewCancelledError(err), resp.Usage)
		return nil, types.NewCancelledError(err)
	}

	finishReason := "unknown"
	text := ""
	if choice := resp.FirstChoice(); choice != nil {
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		text = strings.TrimSpace(choice.Message.Content)
	}

	if text == "" {
		s.logger.Error("chat completion returned no text",
			zap.String("model", chatReq.Model),
			zap.String("finish_reason", finishReason),
			zap.ByteString("raw", resp.Raw),
		)
		err := types.NewError(types.ErrEmptyCompletion,
			fmt.Sprintf("chat service returned no text (finish_reason '%s')", finishReason)).
			WithRaw(resp.Raw)
		s.record(chatReq.Model, err, resp.Usage)
		return nil, err
	}

	s.record(chatReq.Model, nil, resp.Usage)
	return &Result{
		RefinedPrompt: text,
		FinishReason:  finishReason,
		Usage:         resp.Usage,
	}, nil
}

func (s *Service) record(model string, err error, usage *llm.Usage) {
	if s.recorder == nil {
		return
	}
	outcome := "done"
	switch {
	case err == nil:
	case types.IsErrorCode(err, types.ErrCancelled):
		outcome = "cancelled"
	default:
		outcome = "failed"
	}
	var prompt, completion int
	if usage != nil {
		prompt, completion = usage.PromptTokens, usage.CompletionTokens
	}
	s.recorder.RecordRefine(model, outcome, prompt, completion)
}
