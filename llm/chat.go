package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/renderflow/internal/tlsutil"
	"github.com/BaSui01/renderflow/types"
	"go.uber.org/zap"
)

const providerName = "openai"

// =============================================================================
// 📨 请求 / 响应结构（OpenAI Chat Completions 兼容）
// =============================================================================

// ContentPart is one element of a multimodal user message.
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL references an image by https URL or data URI.
type ImageURL struct {
	URL string `json:"url"`
}

// TextPart builds a text content part.
func TextPart(text string) ContentPart {
	return ContentPart{Type: "text", Text: text}
}

// ImagePart builds an image content part.
func ImagePart(url string) ContentPart {
	return ContentPart{Type: "image_url", ImageURL: &ImageURL{URL: url}}
}

// Message is a chat message. Content is a string for system messages and a
// list of parts for user messages.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// SystemMessage builds a system message.
func SystemMessage(text string) Message {
	return Message{Role: "system", Content: text}
}

// UserMessage builds a multimodal user message.
func UserMessage(parts ...ContentPart) Message {
	return Message{Role: "user", Content: parts}
}

// ChatRequest is the outbound completion request. Nil sampling fields are omitted.
type ChatRequest struct {
	Model               string    `json:"model"`
	Messages            []Message `json:"messages"`
	MaxCompletionTokens *int      `json:"max_completion_tokens,omitempty"`
	Temperature         *float64  `json:"temperature,omitempty"`
	TopP                *float64  `json:"top_p,omitempty"`
}

// Usage is the token accounting returned by the service.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Choice is one completion alternative.
type Choice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// ChatResponse is the decoded completion.
type ChatResponse struct {
	ID      string   `json:"id"`
	Model   string   `json:"model"`
	Created int64    `json:"created"`
	Choices []Choice `json:"choices"`
	Usage   *Usage   `json:"usage,omitempty"`

	// Raw keeps the undecoded body for diagnostics.
	Raw json.RawMessage `json:"-"`
}

// FirstChoice returns the first choice, nil when the list is empty.
func (r *ChatResponse) FirstChoice() *Choice {
	if r == nil || len(r.Choices) == 0 {
		return nil
	}
	return &r.Choices[0]
}

// =============================================================================
// 🔌 客户端
// =============================================================================

// ChatConfig holds the configuration for an OpenAI-compatible endpoint.
type ChatConfig struct {
	// APIKey is sent as a Bearer token.
	APIKey string
	// BaseURL includes the version segment, e.g. "https://api.openai.com/v1".
	BaseURL string
	// EndpointPath defaults to "/chat/completions".
	EndpointPath string
	// Timeout is the HTTP client timeout. Defaults to 2m if zero.
	Timeout time.Duration
}

// ChatClient calls a chat completions endpoint.
type ChatClient struct {
	cfg    ChatConfig
	client *http.Client
	logger *zap.Logger
}

// NewChatClient creates a chat client. A nil httpClient selects the hardened
// default transport.
func NewChatClient(cfg ChatConfig, httpClient *http.Client, logger *zap.Logger) *ChatClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 2 * time.Minute
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = "/chat/completions"
	}
	if httpClient == nil {
		httpClient = tlsutil.NewHTTPClient(cfg.Timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatClient{
		cfg:    cfg,
		client: httpClient,
		logger: logger.With(zap.String("component", "chat_client")),
	}
}

// Configured reports whether an API key is present.
func (c *ChatClient) Configured() bool { return c.cfg.APIKey != "" }

func (c *ChatClient) endpoint() string {
	return strings.TrimRight(c.cfg.BaseURL, "/") + c.cfg.EndpointPath
}

// Complete performs one non-streaming completion.
func (c *ChatClient) Complete(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if !c.Configured() {
		return nil, types.NewError(types.ErrConfigMissing, "chat API key is not configured")
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to marshal request").WithCause(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewCancelledError(ctx.Err())
		}
		return nil, types.NewError(types.ErrUpstreamError, err.Error()).
			WithCause(err).
			WithRetryable(true).
			WithProvider(providerName)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewCancelledError(ctx.Err())
		}
		return nil, types.NewError(types.ErrUpstreamError, "failed to read response").
			WithCause(err).
			WithProvider(providerName)
	}

	if resp.StatusCode >= 400 {
		msg := readErrorMessage(body)
		c.logger.Error("chat completion failed",
			zap.Int("status", resp.StatusCode),
			zap.String("model", req.Model),
			zap.String("message", msg),
		)
		return nil, types.NewError(types.ErrUpstreamError, fmt.Sprintf("chat API error: status=%d msg=%s", resp.StatusCode, msg)).
			WithUpstream(resp.StatusCode, string(body)).
			WithRetryable(resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500).
			WithProvider(providerName)
	}

	var out ChatResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "failed to decode chat response").
			WithCause(err).
			WithRaw(body).
			WithProvider(providerName)
	}
	out.Raw = body
	return &out, nil
}

// readErrorMessage extracts {"error":{"message"}} and falls back to the raw text.
func readErrorMessage(data []byte) string {
	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}
	return string(data)
}
