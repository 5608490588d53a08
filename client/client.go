// Package client drives a remote renderflow server. Client satisfies the
// job controllers' Generator and Refiner ports, so the CLI runs the same
// state machines against a server as against the in-process pipeline.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/BaSui01/renderflow/api/handlers"
	"github.com/BaSui01/renderflow/generate"
	"github.com/BaSui01/renderflow/internal/tlsutil"
	"github.com/BaSui01/renderflow/refine"
	"github.com/BaSui01/renderflow/types"
	"github.com/BaSui01/renderflow/workspace"
	"go.uber.org/zap"
)

// APIKeyHeader carries the server API key.
const APIKeyHeader = "X-API-Key"

// Config configures a remote client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

// Client talks to the renderflow HTTP API.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *zap.Logger
}

// New creates a client. A nil httpClient selects the hardened default transport.
func New(cfg Config, httpClient *http.Client, logger *zap.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Minute
	}
	if httpClient == nil {
		httpClient = tlsutil.NewHTTPClient(cfg.Timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    httpClient,
		logger:  logger.With(zap.String("component", "renderflow_client")),
	}
}

// Generate uploads the request to /api/generate. Progress stops at
// AwaitingProvider; the remaining stages run on the server.
func (c *Client) Generate(ctx context.Context, req *generate.Request, progress generate.ProgressFunc) (*generate.Result, error) {
	if progress == nil {
		progress = func(generate.Stage) {}
	}
	progress(generate.StageValidating)
	if err := generate.Validate(req); err != nil {
		return nil, err
	}

	progress(generate.StageDispatching)
	body, contentType, err := encodeGenerateForm(req)
	if err != nil {
		return nil, err
	}

	progress(generate.StageAwaitingProvider)
	var res generate.Result
	if err := c.do(ctx, http.MethodPost, "/api/generate", contentType, body, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Refine posts the request to /api/refine.
func (c *Client) Refine(ctx context.Context, req *refine.Request) (*refine.Result, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to encode refine request").WithCause(err)
	}
	var res refine.Result
	if err := c.do(ctx, http.MethodPost, "/api/refine", "application/json", bytes.NewReader(payload), &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Ready queries /ready and fails unless every server check passes.
func (c *Client) Ready(ctx context.Context) (*handlers.HealthStatus, error) {
	var status handlers.HealthStatus
	err := c.do(ctx, http.MethodGet, "/ready", "", nil, &status)
	if err != nil && status.Status == "" {
		return nil, err
	}
	return &status, err
}

// RandomizeSeed asks the server to draw a seed for the active model.
func (c *Client) RandomizeSeed(ctx context.Context) (*handlers.SeedResponse, error) {
	var res handlers.SeedResponse
	if err := c.do(ctx, http.MethodPost, "/api/workspace/seed", "", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Workspace returns a workspace.Store backed by the server's snapshot.
func (c *Client) Workspace() workspace.Store {
	return &remoteStore{c: c}
}

type remoteStore struct {
	c *Client
}

func (s *remoteStore) Load(ctx context.Context) (*workspace.Settings, error) {
	var raw json.RawMessage
	if err := s.c.do(ctx, http.MethodGet, "/api/workspace", "", nil, &raw); err != nil {
		return nil, err
	}
	snapshot, err := workspace.Decode(raw)
	if err != nil {
		return nil, types.NewError(types.ErrPersistenceError, "server returned a malformed workspace").WithCause(err)
	}
	return snapshot, nil
}

func (s *remoteStore) Save(ctx context.Context, settings *workspace.Settings) error {
	if settings == nil {
		return types.NewInvalidRequestError("workspace settings are required")
	}
	payload, err := settings.Encode()
	if err != nil {
		return types.NewError(types.ErrPersistenceError, "failed to encode workspace").WithCause(err)
	}
	return s.c.do(ctx, http.MethodPut, "/api/workspace", "application/json", bytes.NewReader(payload), nil)
}

func (s *remoteStore) Ping(ctx context.Context) error {
	return s.c.do(ctx, http.MethodGet, "/healthz", "", nil, nil)
}

func (s *remoteStore) Close() error { return nil }

// do sends one request and decodes a 2xx body into out. Failures come back
// as typed errors rebuilt from the server's error body.
func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return types.NewError(types.ErrInternalError, "failed to create request").WithCause(err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set(APIKeyHeader, c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return types.NewCancelledError(ctx.Err())
		}
		return types.NewError(types.ErrUpstreamError, "renderflow server unreachable").
			WithCause(err).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return types.NewCancelledError(ctx.Err())
		}
		return types.NewError(types.ErrUpstreamError, "failed to read server response").WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := errorFromResponse(resp.StatusCode, raw)
		c.logger.Debug("server returned error",
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
			zap.String("code", string(apiErr.Code)),
		)
		// /ready 的 503 响应体仍是健康状态
		if out != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(raw, out)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return types.NewError(types.ErrUpstreamError, "failed to decode server response").WithCause(err)
	}
	return nil
}

// errorFromResponse restores the typed error. Bodies without a code are
// classified by status alone.
func errorFromResponse(status int, raw []byte) *types.Error {
	var body handlers.ErrorBody
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body = handlers.ErrorBody{Error: fmt.Sprintf("server returned status %d: %s", status, strings.TrimSpace(string(raw)))}
	}

	code := types.ErrorCode(body.Code)
	if code == "" {
		code = codeForStatus(status)
	}
	apiErr := types.NewError(code, body.Error).
		WithHTTPStatus(status).
		WithRetryable(status == http.StatusTooManyRequests || status >= 500)
	if body.UpstreamStatus != 0 || body.UpstreamBody != "" {
		apiErr = apiErr.WithUpstream(body.UpstreamStatus, body.UpstreamBody)
	}
	return apiErr
}

func codeForStatus(status int) types.ErrorCode {
	switch {
	case status == 499:
		return types.ErrCancelled
	case status == http.StatusBadGateway:
		return types.ErrUpstreamError
	case status == http.StatusUnauthorized:
		return types.ErrUnauthorized
	case status == http.StatusTooManyRequests:
		return types.ErrRateLimited
	case status >= 400 && status < 500:
		return types.ErrInvalidRequest
	default:
		return types.ErrInternalError
	}
}

func encodeGenerateForm(req *generate.Request) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fields := [][2]string{
		{handlers.FieldPrompt, req.Prompt},
		{handlers.FieldModel, string(req.Model)},
	}
	if req.NegativePrompt != "" {
		fields = append(fields, [2]string{handlers.FieldNegativePrompt, req.NegativePrompt})
	}
	if req.Settings != nil {
		settings, err := json.Marshal(req.Settings)
		if err != nil {
			return nil, "", types.NewError(types.ErrInternalError, "failed to encode settings").WithCause(err)
		}
		fields = append(fields, [2]string{handlers.FieldSettings, string(settings)})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", types.NewError(types.ErrInternalError, "failed to encode form").WithCause(err)
		}
	}

	name := req.Image.FileName
	if name == "" {
		name = "source"
	}
	h := textproto.MIMEHeader{}
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, handlers.FieldImage, name))
	h.Set("Content-Type", req.Image.ContentType)
	part, err := mw.CreatePart(h)
	if err == nil {
		_, err = part.Write(req.Image.Data)
	}
	if err == nil {
		err = mw.Close()
	}
	if err != nil {
		return nil, "", types.NewError(types.ErrInternalError, "failed to encode image").WithCause(err)
	}
	return &buf, mw.FormDataContentType(), nil
}
