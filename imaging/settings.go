package imaging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"

	"github.com/BaSui01/renderflow/types"
)

// MaxSeed is the largest seed any provider accepts.
const MaxSeed int64 = math.MaxInt32

// ModelSettings is the closed set of per-model tunables. Exactly one
// implementation exists per ModelID; unset fields are nil and never sent.
type ModelSettings interface {
	Model() ModelID
	// SeedValue returns the configured seed, nil when unset.
	SeedValue() *int64
	// WithSeed returns a copy with the seed replaced.
	WithSeed(seed int64) ModelSettings

	apply(body *RequestBody)
}

// QwenSettings 对应 qwen-image-edit 的可调参数.
type QwenSettings struct {
	GuidanceScale     *float64 `json:"guidance_scale" yaml:"guidance_scale,omitempty"`
	NumInferenceSteps *int     `json:"num_inference_steps" yaml:"num_inference_steps,omitempty"`
	Seed              *int64   `json:"seed" yaml:"seed,omitempty"`
}

func (QwenSettings) Model() ModelID      { return ModelQwen }
func (s QwenSettings) SeedValue() *int64 { return s.Seed }
func (s QwenSettings) WithSeed(seed int64) ModelSettings {
	s.Seed = &seed
	return s
}

func (s QwenSettings) apply(body *RequestBody) {
	body.GuidanceScale = s.GuidanceScale
	body.NumInferenceSteps = s.NumInferenceSteps
	body.Seed = s.Seed
}

// FluxSettings 对应 flux-pro/kontext 的可调参数.
type FluxSettings struct {
	GuidanceScale   *float64 `json:"guidance_scale" yaml:"guidance_scale,omitempty"`
	SafetyTolerance *float64 `json:"safety_tolerance" yaml:"safety_tolerance,omitempty"`
	Seed            *int64   `json:"seed" yaml:"seed,omitempty"`
}

func (FluxSettings) Model() ModelID      { return ModelFlux }
func (s FluxSettings) SeedValue() *int64 { return s.Seed }
func (s FluxSettings) WithSeed(seed int64) ModelSettings {
	s.Seed = &seed
	return s
}

func (s FluxSettings) apply(body *RequestBody) {
	body.GuidanceScale = s.GuidanceScale
	body.SafetyTolerance = s.SafetyTolerance
	body.Seed = s.Seed
}

// GeminiSettings 对应 nano-banana/edit，只有种子.
type GeminiSettings struct {
	Seed *int64 `json:"seed" yaml:"seed,omitempty"`
}

func (GeminiSettings) Model() ModelID      { return ModelGemini }
func (s GeminiSettings) SeedValue() *int64 { return s.Seed }
func (s GeminiSettings) WithSeed(seed int64) ModelSettings {
	s.Seed = &seed
	return s
}

func (s GeminiSettings) apply(body *RequestBody) {
	body.Seed = s.Seed
}

// SeedreamSettings 对应 seedream/v4/edit，输出尺寸以 image_size 对象发送.
type SeedreamSettings struct {
	Seed   *int64 `json:"seed" yaml:"seed,omitempty"`
	Width  *int   `json:"width" yaml:"width,omitempty"`
	Height *int   `json:"height" yaml:"height,omitempty"`
}

func (SeedreamSettings) Model() ModelID      { return ModelSeedream }
func (s SeedreamSettings) SeedValue() *int64 { return s.Seed }
func (s SeedreamSettings) WithSeed(seed int64) ModelSettings {
	s.Seed = &seed
	return s
}

func (s SeedreamSettings) apply(body *RequestBody) {
	body.Seed = s.Seed
	// image_size needs both edges; a half-specified size falls back to the provider default.
	if s.Width != nil && s.Height != nil {
		body.ImageSize = &ImageSize{Width: *s.Width, Height: *s.Height}
	}
}

// EmptySettings returns the zero variant for a model.
func EmptySettings(id ModelID) (ModelSettings, error) {
	switch id {
	case ModelQwen:
		return QwenSettings{}, nil
	case ModelFlux:
		return FluxSettings{}, nil
	case ModelGemini:
		return GeminiSettings{}, nil
	case ModelSeedream:
		return SeedreamSettings{}, nil
	default:
		return nil, unsupportedModel(id)
	}
}

// DecodeSettings decodes the JSON settings object of the given model. Fields
// belonging to other models are ignored; an empty payload yields the empty variant.
func DecodeSettings(id ModelID, raw []byte) (ModelSettings, error) {
	settings, err := EmptySettings(id)
	if err != nil {
		return nil, err
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return settings, nil
	}

	var decodeErr error
	switch id {
	case ModelQwen:
		var s QwenSettings
		decodeErr = json.Unmarshal(raw, &s)
		settings = s
	case ModelFlux:
		var s FluxSettings
		decodeErr = json.Unmarshal(raw, &s)
		settings = s
	case ModelGemini:
		var s GeminiSettings
		decodeErr = json.Unmarshal(raw, &s)
		settings = s
	case ModelSeedream:
		var s SeedreamSettings
		decodeErr = json.Unmarshal(raw, &s)
		settings = s
	}
	if decodeErr != nil {
		return nil, types.NewInvalidRequestError("settings is not a valid JSON object for model " + string(id)).
			WithCause(decodeErr)
	}
	if err := ValidateSettings(settings); err != nil {
		return nil, err
	}
	return settings, nil
}

// ValidateSettings checks value ranges shared by all variants.
func ValidateSettings(s ModelSettings) error {
	if seed := s.SeedValue(); seed != nil && (*seed < 0 || *seed > MaxSeed) {
		return types.NewInvalidRequestError(fmt.Sprintf("seed must be within [0, %d]", MaxSeed))
	}
	if ss, ok := s.(SeedreamSettings); ok {
		if (ss.Width != nil && *ss.Width <= 0) || (ss.Height != nil && *ss.Height <= 0) {
			return types.NewInvalidRequestError("width and height must be positive")
		}
	}
	if qs, ok := s.(QwenSettings); ok && qs.NumInferenceSteps != nil && *qs.NumInferenceSteps <= 0 {
		return types.NewInvalidRequestError("num_inference_steps must be positive")
	}
	return nil
}

func unsupportedModel(id ModelID) *types.Error {
	return types.NewError(types.ErrUnsupportedModel, fmt.Sprintf("model '%s' is not supported", id))
}
