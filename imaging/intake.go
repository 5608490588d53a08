package imaging

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"net/http"
	"strings"

	"github.com/BaSui01/renderflow/types"
	"github.com/samber/lo"
)

// MaxSourceBytes is the largest accepted source image.
const MaxSourceBytes = 10 << 20

// AcceptedContentTypes lists the source image formats the providers take.
var AcceptedContentTypes = []string{"image/png", "image/jpeg", "image/webp"}

// SourceImage is an uploaded source image.
type SourceImage struct {
	Data        []byte
	ContentType string
	FileName    string
}

// Dimensions of a decoded image. Zero means unknown.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Known reports whether both edges were read.
func (d Dimensions) Known() bool { return d.Width > 0 && d.Height > 0 }

func (d Dimensions) String() string {
	if !d.Known() {
		return "unknown"
	}
	return fmt.Sprintf("%dx%d", d.Width, d.Height)
}

// ValidateSourceImage checks presence, size and content type. A missing
// content type is sniffed from the bytes.
func ValidateSourceImage(img *SourceImage) error {
	if img == nil || len(img.Data) == 0 {
		return types.NewInvalidRequestError("source image is required")
	}
	if len(img.Data) > MaxSourceBytes {
		return types.NewInvalidRequestError(fmt.Sprintf("source image exceeds %d MB", MaxSourceBytes>>20))
	}
	ct := normalizeContentType(img.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		ct = normalizeContentType(http.DetectContentType(img.Data))
	}
	if !lo.Contains(AcceptedContentTypes, ct) {
		return types.NewInvalidRequestError(fmt.Sprintf("unsupported image type %q, use PNG, JPEG or WEBP", img.ContentType))
	}
	img.ContentType = ct
	return nil
}

// DataURI returns the image embedded as a data URI.
func (img *SourceImage) DataURI() string {
	return DataURI(img.ContentType, img.Data)
}

// ReadDimensions decodes only the image header. Formats without a registered
// decoder report unknown dimensions instead of failing.
func ReadDimensions(data []byte) Dimensions {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Dimensions{}
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}
}

func normalizeContentType(ct string) string {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	if ct == "image/jpg" {
		return "image/jpeg"
	}
	return ct
}
