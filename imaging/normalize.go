package imaging

import (
	"encoding/json"

	"github.com/BaSui01/renderflow/types"
)

// ProbeRule names one documented location of the result image.
type ProbeRule string

const (
	ProbeImagesList  ProbeRule = "images[0].url"
	ProbeImageObject ProbeRule = "image.url"
	ProbeOutputList  ProbeRule = "output[0].url"
)

// ProbeOrder is the order in which response shapes are tried.
var ProbeOrder = []ProbeRule{ProbeImagesList, ProbeImageObject, ProbeOutputList}

// ImageReference is the canonical result of normalisation.
type ImageReference struct {
	URL  string
	Rule ProbeRule
}

type urlObject struct {
	URL string `json:"url"`
}

// envelope keeps each candidate field raw so that a malformed field only
// disqualifies its own probe.
type envelope struct {
	Images json.RawMessage `json:"images"`
	Image  json.RawMessage `json:"image"`
	Output json.RawMessage `json:"output"`
}

// ExtractImageReference returns the first image URL found in ProbeOrder. A
// response matching none of the shapes fails with NO_IMAGE_RETURNED and keeps
// the raw payload on the error.
func ExtractImageReference(raw []byte) (*ImageReference, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err == nil {
		for _, rule := range ProbeOrder {
			if url := env.probe(rule); url != "" {
				return &ImageReference{URL: url, Rule: rule}, nil
			}
		}
	}
	return nil, types.NewError(types.ErrNoImageReturned, "provider did not return an image").
		WithRaw(raw)
}

func (e *envelope) probe(rule ProbeRule) string {
	switch rule {
	case ProbeImagesList:
		return firstURL(e.Images)
	case ProbeImageObject:
		return objectURL(e.Image)
	case ProbeOutputList:
		return firstURL(e.Output)
	default:
		return ""
	}
}

func firstURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) == 0 {
		return ""
	}
	return objectURL(list[0])
}

func objectURL(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var obj urlObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return ""
	}
	return obj.URL
}
