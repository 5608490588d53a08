package imaging

import (
	"strings"

	"github.com/samber/lo"
)

// ModelID names one of the supported image-editing models.
type ModelID string

const (
	ModelQwen     ModelID = "qwen"
	ModelFlux     ModelID = "flux"
	ModelGemini   ModelID = "gemini"
	ModelSeedream ModelID = "seedream"
)

// Models lists every supported model in display order.
var Models = []ModelID{ModelFlux, ModelQwen, ModelGemini, ModelSeedream}

// modelSpec describes how one model is addressed on the provider.
type modelSpec struct {
	// Label prefixes artifact file names.
	Label string
	// Path is appended to the provider base URL.
	Path string
	// MultiImage selects the image_urls list encoding.
	MultiImage bool
}

var catalogue = map[ModelID]modelSpec{
	ModelQwen:     {Label: "qwen", Path: "/fal-ai/qwen-image-edit"},
	ModelFlux:     {Label: "flux", Path: "/fal-ai/flux-pro/kontext"},
	ModelGemini:   {Label: "Nano-Banana", Path: "/fal-ai/nano-banana/edit", MultiImage: true},
	ModelSeedream: {Label: "seedream", Path: "/fal-ai/bytedance/seedream/v4/edit", MultiImage: true},
}

// ParseModelID normalises a user supplied model id. Matching is case-insensitive.
func ParseModelID(s string) (ModelID, bool) {
	id := ModelID(strings.ToLower(strings.TrimSpace(s)))
	_, ok := catalogue[id]
	return id, ok
}

// Valid reports whether the id is a known model.
func (m ModelID) Valid() bool {
	return lo.Contains(Models, m)
}

// Label returns the artifact label for the model, or the id itself when unknown.
func (m ModelID) Label() string {
	if spec, ok := catalogue[m]; ok {
		return spec.Label
	}
	return string(m)
}
