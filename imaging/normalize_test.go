package imaging

import (
	"testing"

	"github.com/BaSui01/renderflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestExtractImageReference(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		wantURL  string
		wantRule ProbeRule
	}{
		{"images list", `{"images":[{"url":"https://cdn/a.png"}]}`, "https://cdn/a.png", ProbeImagesList},
		{"image object", `{"image":{"url":"https://cdn/b.jpg"}}`, "https://cdn/b.jpg", ProbeImageObject},
		{"output list", `{"output":[{"url":"https://cdn/c.webp"}]}`, "https://cdn/c.webp", ProbeOutputList},
		{"images wins over image", `{"image":{"url":"second"},"images":[{"url":"first"}]}`, "first", ProbeImagesList},
		{"empty images falls through", `{"images":[],"output":[{"url":"out"}]}`, "out", ProbeOutputList},
		{"malformed images falls through", `{"images":"nope","image":{"url":"obj"}}`, "obj", ProbeImageObject},
		{"blank url falls through", `{"images":[{"url":""}],"image":{"url":"obj"}}`, "obj", ProbeImageObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref, err := ExtractImageReference([]byte(tt.raw))
			require.NoError(t, err)
			assert.Equal(t, tt.wantURL, ref.URL)
			assert.Equal(t, tt.wantRule, ref.Rule)
		})
	}
}

func TestExtractImageReference_NoImage(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"data":{"url":"https://cdn/x.png"}}`,
		`{"images":[{"href":"https://cdn/x.png"}]}`,
		`[{"url":"https://cdn/x.png"}]`,
		`not json`,
		``,
	} {
		ref, err := ExtractImageReference([]byte(raw))
		assert.Nil(t, ref, raw)
		require.Error(t, err, raw)
		e, ok := types.AsError(err)
		require.True(t, ok)
		assert.Equal(t, types.ErrNoImageReturned, e.Code)
		assert.Equal(t, types.KindNormalization, types.KindOf(err))
		assert.Equal(t, raw, string(e.Raw))
	}
}

func TestProperty_ExtractImageReference_FirstMatchingShape(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		url := rapid.StringMatching(`https://cdn\.example/[a-z]{1,8}\.png`)
		present := map[ProbeRule]string{}
		body := map[string]any{}
		if rapid.Bool().Draw(rt, "images") {
			present[ProbeImagesList] = url.Draw(rt, "images_url")
			body["images"] = []map[string]string{{"url": present[ProbeImagesList]}}
		}
		if rapid.Bool().Draw(rt, "image") {
			present[ProbeImageObject] = url.Draw(rt, "image_url")
			body["image"] = map[string]string{"url": present[ProbeImageObject]}
		}
		if rapid.Bool().Draw(rt, "output") {
			present[ProbeOutputList] = url.Draw(rt, "output_url")
			body["output"] = []map[string]string{{"url": present[ProbeOutputList]}}
		}
		raw := mustJSON(rt, body)

		ref, err := ExtractImageReference(raw)
		for _, rule := range ProbeOrder {
			if want, ok := present[rule]; ok {
				require.NoError(rt, err)
				require.Equal(rt, rule, ref.Rule)
				require.Equal(rt, want, ref.URL)
				return
			}
		}
		require.True(rt, types.IsErrorCode(err, types.ErrNoImageReturned))
	})
}
