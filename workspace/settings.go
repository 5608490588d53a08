// Package workspace holds the durable operator workspace snapshot and the
// stores that persist it.
package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"math/rand/v2"

	"github.com/BaSui01/renderflow/imaging"
	"github.com/samber/lo"
)

// Tab is the active view of the canvas.
type Tab string

const (
	TabSource  Tab = "source"
	TabResult  Tab = "result"
	TabCompare Tab = "compare"
)

// Defaults shared by a fresh snapshot and by backfilling.
const (
	DefaultNegativePrompt         = "blurry, ugly, deformed, text, watermark"
	DefaultSelectedModel          = imaging.ModelFlux
	DefaultComparePos             = 50.0
	DefaultLLMModel               = "gpt-5-mini"
	DefaultLLMMaxCompletionTokens = 2000
	DefaultSystemPrompt           = "Rewrite the operator's notes into a short image-editing prompt. " +
		"Keep the exact scene geometry, proportions and camera angle. " +
		"Describe the visible materials and the lighting in five to seven sentences."
)

// LLMSettings configures the refinement call.
type LLMSettings struct {
	Model               string  `json:"model"`
	SystemPrompt        string  `json:"systemPrompt"`
	Temperature         float64 `json:"temperature"`
	TopP                float64 `json:"topP"`
	MaxCompletionTokens int     `json:"maxCompletionTokens"`
}

// LLMOverrides is a partial LLMSettings stored per image model.
type LLMOverrides struct {
	Model               *string  `json:"model,omitempty"`
	SystemPrompt        *string  `json:"systemPrompt,omitempty"`
	Temperature         *float64 `json:"temperature,omitempty"`
	TopP                *float64 `json:"topP,omitempty"`
	MaxCompletionTokens *int     `json:"maxCompletionTokens,omitempty"`
}

// Settings is the whole persisted workspace. It is always saved in full.
type Settings struct {
	Prompt         string          `json:"prompt"`
	NegativePrompt string          `json:"negativePrompt"`
	SelectedModel  imaging.ModelID `json:"selectedModel"`

	Qwen     imaging.QwenSettings     `json:"qwenSettings"`
	Flux     imaging.FluxSettings     `json:"fluxSettings"`
	Gemini   imaging.GeminiSettings   `json:"geminiSettings"`
	Seedream imaging.SeedreamSettings `json:"seedreamSettings"`

	LLM        LLMSettings                      `json:"llmSettings"`
	LLMByModel map[imaging.ModelID]LLMOverrides `json:"llmSettingsByModel,omitempty"`

	SendImageToLLM bool    `json:"sendImageToLlm"`
	ShowRefiner    bool    `json:"showRefiner"`
	ShowNeg        bool    `json:"showNeg"`
	SeedLock       bool    `json:"seedLock"`
	Tab            Tab     `json:"tab"`
	ComparePos     float64 `json:"comparePos"`
}

// DefaultLLMSettings returns the refinement defaults.
func DefaultLLMSettings() LLMSettings {
	return LLMSettings{
		Model:               DefaultLLMModel,
		SystemPrompt:        DefaultSystemPrompt,
		Temperature:         1,
		TopP:                1,
		MaxCompletionTokens: DefaultLLMMaxCompletionTokens,
	}
}

// Defaults returns a fresh snapshot. Every call allocates new pointers.
func Defaults() *Settings {
	return &Settings{
		NegativePrompt: DefaultNegativePrompt,
		SelectedModel:  DefaultSelectedModel,
		Qwen: imaging.QwenSettings{
			GuidanceScale:     lo.ToPtr(4.0),
			NumInferenceSteps: lo.ToPtr(30),
			Seed:              lo.ToPtr[int64](0),
		},
		Flux: imaging.FluxSettings{
			GuidanceScale:   lo.ToPtr(3.5),
			SafetyTolerance: lo.ToPtr(2.0),
			Seed:            lo.ToPtr[int64](0),
		},
		Gemini: imaging.GeminiSettings{Seed: lo.ToPtr[int64](0)},
		Seedream: imaging.SeedreamSettings{
			Seed:   lo.ToPtr[int64](0),
			Width:  lo.ToPtr(1024),
			Height: lo.ToPtr(1024),
		},
		LLM:            DefaultLLMSettings(),
		SendImageToLLM: true,
		Tab:            TabSource,
		ComparePos:     DefaultComparePos,
	}
}

// Decode reads a stored snapshot over the defaults, so fields missing from an
// older snapshot keep their default. Values of the wrong JSON type are skipped
// field by field; only malformed JSON fails.
func Decode(raw []byte) (*Settings, error) {
	s := Defaults()
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(raw, s); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			return Defaults(), err
		}
	}
	s.normalize()
	return s, nil
}

// Encode serialises the snapshot.
func (s *Settings) Encode() ([]byte, error) {
	return json.Marshal(s)
}

// Clone returns a deep copy.
func (s *Settings) Clone() *Settings {
	raw, err := s.Encode()
	if err != nil {
		return Defaults()
	}
	c, _ := Decode(raw)
	return c
}

// normalize replaces out-of-range values with defaults.
func (s *Settings) normalize() {
	d := Defaults()

	if id, ok := imaging.ParseModelID(string(s.SelectedModel)); ok {
		s.SelectedModel = id
	} else {
		s.SelectedModel = d.SelectedModel
	}
	if !lo.Contains([]Tab{TabSource, TabResult, TabCompare}, s.Tab) {
		s.Tab = d.Tab
	}
	s.ComparePos = lo.Clamp(s.ComparePos, 0, 100)

	for _, id := range imaging.Models {
		if imaging.ValidateSettings(s.ModelSettings(id)) != nil {
			s.SetModelSettings(d.ModelSettings(id))
		}
	}

	if s.LLM.Model == "" {
		s.LLM.Model = d.LLM.Model
	}
	if s.LLM.MaxCompletionTokens < 1 {
		s.LLM.MaxCompletionTokens = d.LLM.MaxCompletionTokens
	}
	for id := range s.LLMByModel {
		if !id.Valid() {
			delete(s.LLMByModel, id)
		}
	}
}

// ModelSettings returns the stored settings variant of a model.
func (s *Settings) ModelSettings(id imaging.ModelID) imaging.ModelSettings {
	switch id {
	case imaging.ModelQwen:
		return s.Qwen
	case imaging.ModelFlux:
		return s.Flux
	case imaging.ModelGemini:
		return s.Gemini
	case imaging.ModelSeedream:
		return s.Seedream
	default:
		return nil
	}
}

// SetModelSettings stores a settings variant under its own model.
func (s *Settings) SetModelSettings(ms imaging.ModelSettings) {
	switch v := ms.(type) {
	case imaging.QwenSettings:
		s.Qwen = v
	case imaging.FluxSettings:
		s.Flux = v
	case imaging.GeminiSettings:
		s.Gemini = v
	case imaging.SeedreamSettings:
		s.Seedream = v
	}
}

// Active returns the settings of the selected model.
func (s *Settings) Active() imaging.ModelSettings {
	return s.ModelSettings(s.SelectedModel)
}

// LLMFor merges the per-model overrides over the base LLM settings.
func (s *Settings) LLMFor(id imaging.ModelID) LLMSettings {
	out := s.LLM
	o, ok := s.LLMByModel[id]
	if !ok {
		return out
	}
	out.Model = lo.FromPtrOr(o.Model, out.Model)
	out.SystemPrompt = lo.FromPtrOr(o.SystemPrompt, out.SystemPrompt)
	out.Temperature = lo.FromPtrOr(o.Temperature, out.Temperature)
	out.TopP = lo.FromPtrOr(o.TopP, out.TopP)
	out.MaxCompletionTokens = lo.FromPtrOr(o.MaxCompletionTokens, out.MaxCompletionTokens)
	return out
}

// Clear resets the transient fields the way a fresh session starts. Model
// settings, the negative prompt and LLM settings are kept.
func (s *Settings) Clear() {
	s.Prompt = ""
	s.Tab = TabSource
	s.ShowRefiner = false
	s.ShowNeg = false
	s.SendImageToLLM = true
	s.SeedLock = false
	s.ComparePos = DefaultComparePos
}

// SeedSource draws a seed in [0, imaging.MaxSeed).
type SeedSource func() int64

// RandomSeed is the default SeedSource.
func RandomSeed() int64 {
	return rand.Int64N(imaging.MaxSeed)
}

// RandomizeSeed draws a seed into the active model settings and returns it.
func (s *Settings) RandomizeSeed(draw SeedSource) int64 {
	if draw == nil {
		draw = RandomSeed
	}
	seed := draw()
	if active := s.Active(); active != nil {
		s.SetModelSettings(active.WithSeed(seed))
	}
	return seed
}
