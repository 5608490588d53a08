package imaging

import (
	"bytes"
	"context"
	"encoding/base64"
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

const providerName = "fal"

// FalConfig configures the fal.ai provider client.
type FalConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxDownloadBytes 限制单张结果图的大小, 0 表示使用默认值.
	MaxDownloadBytes int64 `json:"max_download_bytes,omitempty" yaml:"max_download_bytes,omitempty"`
}

// DefaultMaxDownloadBytes caps a single downloaded artifact.
const DefaultMaxDownloadBytes int64 = 64 << 20

// DefaultFalConfig returns the default fal.ai configuration.
func DefaultFalConfig() FalConfig {
	return FalConfig{
		BaseURL:          DefaultBaseURL,
		Timeout:          5 * time.Minute,
		MaxDownloadBytes: DefaultMaxDownloadBytes,
	}
}

// FalClient dispatches adapter requests to fal.ai and fetches result images.
type FalClient struct {
	cfg     FalConfig
	adapter *Adapter
	client  *http.Client
	logger  *zap.Logger
}

// NewFalClient creates a new provider client. A nil httpClient selects the
// hardened default transport.
func NewFalClient(cfg FalConfig, httpClient *http.Client, logger *zap.Logger) *FalClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultFalConfig().Timeout
	}
	if cfg.MaxDownloadBytes <= 0 {
		cfg.MaxDownloadBytes = DefaultMaxDownloadBytes
	}
	if httpClient == nil {
		httpClient = tlsutil.NewHTTPClient(cfg.Timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FalClient{
		cfg:     cfg,
		adapter: NewAdapter(cfg.BaseURL),
		client:  httpClient,
		logger:  logger.With(zap.String("component", "fal_client")),
	}
}

// Name returns the provider name.
func (c *FalClient) Name() string { return providerName }

// Adapter returns the request adapter bound to the configured base URL.
func (c *FalClient) Adapter() *Adapter { return c.adapter }

// Configured reports whether an API key is present.
func (c *FalClient) Configured() bool { return c.cfg.APIKey != "" }

// Dispatch sends exactly one request and returns the raw success payload.
// A non-2xx answer becomes UPSTREAM_ERROR carrying the status and body text.
func (c *FalClient) Dispatch(ctx context.Context, req *ProviderRequest) ([]byte, error) {
	if !c.Configured() {
		return nil, types.NewError(types.ErrConfigMissing, "fal.ai API key is not configured")
	}

	payload, err := json.Marshal(req.Body)
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to encode provider request").WithCause(err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "failed to create provider request").WithCause(err)
	}
	httpReq.Header.Set("Authorization", "Key "+c.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewCancelledError(ctx.Err())
		}
		return nil, types.NewError(types.ErrUpstreamError, "provider request failed").
			WithCause(err).
			WithProvider(providerName).
			WithRetryable(true)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewCancelledError(ctx.Err())
		}
		return nil, types.NewError(types.ErrUpstreamError, "failed to read provider response").
			WithCause(err).
			WithProvider(providerName)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("provider returned error",
			zap.String("model", string(req.Model)),
			zap.Int("status", resp.StatusCode),
			zap.String("body", string(body)),
		)
		return nil, types.NewError(types.ErrUpstreamError,
			fmt.Sprintf("provider error: status=%d body=%s", resp.StatusCode, string(body))).
			WithProvider(providerName).
			WithUpstream(resp.StatusCode, string(body)).
			WithRetryable(resp.StatusCode >= 500)
	}

	return body, nil
}

// Download is a fetched result artifact.
type Download struct {
	Data        []byte
	ContentType string
}

// Download fetches the image behind a normalised reference. Data URIs are
// decoded in place. A non-2xx answer or a body larger than MaxDownloadBytes
// becomes DOWNLOAD_ERROR.
func (c *FalClient) Download(ctx context.Context, url string) (*Download, error) {
	if strings.HasPrefix(url, "data:") {
		return decodeDataURI(url)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, types.NewError(types.ErrDownloadError, "invalid image URL").WithCause(err)
	}
	resp, err := c.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewCancelledError(ctx.Err())
		}
		return nil, types.NewError(types.ErrDownloadError, "failed to download image").WithCause(err)
	}
	defer resp.Body.Close()

	limit := c.cfg.MaxDownloadBytes
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		if ctx.Err() != nil {
			return nil, types.NewCancelledError(ctx.Err())
		}
		return nil, types.NewError(types.ErrDownloadError, "failed to read image body").WithCause(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, types.NewError(types.ErrDownloadError,
			fmt.Sprintf("failed to download image: %d %s", resp.StatusCode, string(data))).
			WithUpstream(resp.StatusCode, string(data))
	}
	if int64(len(data)) > limit {
		c.logger.Warn("download exceeds size limit",
			zap.String("url", url), zap.Int64("limit", limit))
		return nil, types.NewError(types.ErrDownloadError,
			fmt.Sprintf("image exceeds %d bytes", limit))
	}

	return &Download{Data: data, ContentType: resp.Header.Get("Content-Type")}, nil
}

func decodeDataURI(uri string) (*Download, error) {
	header, payload, ok := strings.Cut(strings.TrimPrefix(uri, "data:"), ",")
	if !ok {
		return nil, types.NewError(types.ErrDownloadError, "malformed data URI")
	}
	contentType, isBase64 := strings.CutSuffix(header, ";base64")
	if !isBase64 {
		return &Download{Data: []byte(payload), ContentType: contentType}, nil
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, types.NewError(types.ErrDownloadError, "malformed base64 data URI").WithCause(err)
	}
	return &Download{Data: data, ContentType: contentType}, nil
}
