package imaging

import (
	"encoding/base64"
	"strings"

	"github.com/BaSui01/renderflow/types"
)

// DefaultBaseURL is the synchronous fal.ai run endpoint.
const DefaultBaseURL = "https://fal.run"

// ImageSize is the explicit output size object some models accept.
type ImageSize struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// RequestBody is the outbound JSON. Every optional field is a pointer or
// omitempty so that absent settings are absent on the wire.
type RequestBody struct {
	Prompt            string     `json:"prompt"`
	ImageURL          string     `json:"image_url,omitempty"`
	ImageURLs         []string   `json:"image_urls,omitempty"`
	NegativePrompt    string     `json:"negative_prompt,omitempty"`
	Seed              *int64     `json:"seed,omitempty"`
	NumInferenceSteps *int       `json:"num_inference_steps,omitempty"`
	GuidanceScale     *float64   `json:"guidance_scale,omitempty"`
	SafetyTolerance   *float64   `json:"safety_tolerance,omitempty"`
	ImageSize         *ImageSize `json:"image_size,omitempty"`
}

// ProviderRequest is the result of the adapter: where to send what.
type ProviderRequest struct {
	Model    ModelID
	Endpoint string
	Body     RequestBody
}

// Adapter maps a model selection onto provider requests.
type Adapter struct {
	BaseURL string
}

// NewAdapter creates an adapter for the given base URL.
func NewAdapter(baseURL string) *Adapter {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Adapter{BaseURL: strings.TrimRight(baseURL, "/")}
}

// BuildRequest builds the request against DefaultBaseURL.
func BuildRequest(id ModelID, prompt, negativePrompt, imageDataURI string, settings ModelSettings) (*ProviderRequest, error) {
	return NewAdapter(DefaultBaseURL).BuildRequest(id, prompt, negativePrompt, imageDataURI, settings)
}

// BuildRequest maps (model, prompt, negative prompt, image, settings) to an
// endpoint and body. It performs no I/O.
func (a *Adapter) BuildRequest(id ModelID, prompt, negativePrompt, imageDataURI string, settings ModelSettings) (*ProviderRequest, error) {
	spec, ok := catalogue[id]
	if !ok {
		return nil, unsupportedModel(id)
	}
	if strings.TrimSpace(prompt) == "" {
		return nil, types.NewInvalidRequestError("prompt is required")
	}
	if imageDataURI == "" {
		return nil, types.NewInvalidRequestError("source image is required")
	}
	if settings == nil {
		settings, _ = EmptySettings(id)
	}
	if settings.Model() != id {
		return nil, types.NewInvalidRequestError("settings belong to model " + string(settings.Model()) + ", not " + string(id))
	}

	body := RequestBody{
		Prompt:         prompt,
		NegativePrompt: negativePrompt,
	}
	if spec.MultiImage {
		body.ImageURLs = []string{imageDataURI}
	} else {
		body.ImageURL = imageDataURI
	}
	settings.apply(&body)

	return &ProviderRequest{
		Model:    id,
		Endpoint: a.BaseURL + spec.Path,
		Body:     body,
	}, nil
}

// DataURI embeds bytes as a base64 data URI.
func DataURI(contentType string, data []byte) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
