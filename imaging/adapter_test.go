package imaging

import (
	"encoding/json"
	"testing"

	"github.com/BaSui01/renderflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testImage = "data:image/png;base64,iVBORw0KGgo="

func TestBuildRequest_Endpoints(t *testing.T) {
	a := NewAdapter("https://fal.test/")

	tests := []struct {
		model        ModelID
		wantEndpoint string
		wantList     bool
	}{
		{ModelQwen, "https://fal.test/fal-ai/qwen-image-edit", false},
		{ModelFlux, "https://fal.test/fal-ai/flux-pro/kontext", false},
		{ModelGemini, "https://fal.test/fal-ai/nano-banana/edit", true},
		{ModelSeedream, "https://fal.test/fal-ai/bytedance/seedream/v4/edit", true},
	}

	for _, tt := range tests {
		t.Run(string(tt.model), func(t *testing.T) {
			req, err := a.BuildRequest(tt.model, "make walls cedar", "blurry", testImage, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantEndpoint, req.Endpoint)
			assert.Equal(t, "blurry", req.Body.NegativePrompt)
			if tt.wantList {
				assert.Empty(t, req.Body.ImageURL)
				assert.Equal(t, []string{testImage}, req.Body.ImageURLs)
			} else {
				assert.Equal(t, testImage, req.Body.ImageURL)
				assert.Nil(t, req.Body.ImageURLs)
			}
		})
	}
}

func TestBuildRequest_QwenBody(t *testing.T) {
	settings := QwenSettings{GuidanceScale: ptr(4.0), NumInferenceSteps: ptr(30), Seed: ptr(int64(0))}
	req, err := BuildRequest(ModelQwen, "make walls cedar", "", testImage, settings)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(mustJSON(t, req.Body), &body))
	assert.Equal(t, map[string]any{
		"prompt":              "make walls cedar",
		"image_url":           testImage,
		"guidance_scale":      4.0,
		"num_inference_steps": 30.0,
		"seed":                0.0,
	}, body)
}

func TestBuildRequest_SeedreamImageSize(t *testing.T) {
	req, err := BuildRequest(ModelSeedream, "p", "", testImage, SeedreamSettings{Width: ptr(1024), Height: ptr(768)})
	require.NoError(t, err)
	require.NotNil(t, req.Body.ImageSize)
	assert.Equal(t, ImageSize{Width: 1024, Height: 768}, *req.Body.ImageSize)

	req, err = BuildRequest(ModelSeedream, "p", "", testImage, SeedreamSettings{Width: ptr(1024)})
	require.NoError(t, err)
	assert.Nil(t, req.Body.ImageSize)
}

func TestBuildRequest_Errors(t *testing.T) {
	tests := []struct {
		name     string
		model    ModelID
		prompt   string
		image    string
		settings ModelSettings
		wantCode types.ErrorCode
	}{
		{"unknown model", ModelID("dalle"), "p", testImage, nil, types.ErrUnsupportedModel},
		{"blank prompt", ModelFlux, "   ", testImage, nil, types.ErrInvalidRequest},
		{"missing image", ModelFlux, "p", "", nil, types.ErrInvalidRequest},
		{"settings of other model", ModelFlux, "p", testImage, QwenSettings{}, types.ErrInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := BuildRequest(tt.model, tt.prompt, "", tt.image, tt.settings)
			assert.Nil(t, req)
			assert.Equal(t, tt.wantCode, types.GetErrorCode(err))
		})
	}
}

func TestDecodeSettings(t *testing.T) {
	s, err := DecodeSettings(ModelFlux, []byte(`{"guidance_scale":3.5,"num_inference_steps":9,"seed":42}`))
	require.NoError(t, err)
	flux, ok := s.(FluxSettings)
	require.True(t, ok)
	assert.Equal(t, 3.5, *flux.GuidanceScale)
	assert.Nil(t, flux.SafetyTolerance)
	assert.Equal(t, int64(42), *flux.Seed)

	s, err = DecodeSettings(ModelGemini, nil)
	require.NoError(t, err)
	assert.Equal(t, GeminiSettings{}, s)

	_, err = DecodeSettings(ModelQwen, []byte(`{"seed":-1}`))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = DecodeSettings(ModelQwen, []byte(`{"seed":2147483648}`))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = DecodeSettings(ModelQwen, []byte(`[1,2]`))
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRequest))

	_, err = DecodeSettings(ModelID("nope"), []byte(`{}`))
	assert.True(t, types.IsErrorCode(err, types.ErrUnsupportedModel))
}

func TestWithSeed(t *testing.T) {
	orig := FluxSettings{GuidanceScale: ptr(3.5)}
	next := orig.WithSeed(7)
	assert.Nil(t, orig.Seed)
	assert.Equal(t, int64(7), *next.SeedValue())
	assert.Equal(t, 3.5, *next.(FluxSettings).GuidanceScale)
}

func TestParseModelID(t *testing.T) {
	id, ok := ParseModelID("  FLUX ")
	assert.True(t, ok)
	assert.Equal(t, ModelFlux, id)
	assert.Equal(t, "Nano-Banana", ModelGemini.Label())

	_, ok = ParseModelID("dalle")
	assert.False(t, ok)
}
