package artifact

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
}

func TestNextIndex(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, 1, NextIndex(dir, "qwen"))

	touch(t, dir, "qwen1__2025-01-01__10-00-00__qwen__seed-1.png")
	touch(t, dir, "QWEN12__2025-01-01__10-00-01__qwen__seed-auto.jpeg")
	touch(t, dir, "qwen3.png")
	touch(t, dir, "flux99__2025-01-01__10-00-00__flux__seed-1.png")
	touch(t, dir, "qwenx100.png")
	touch(t, dir, "notes.txt")

	assert.Equal(t, 13, NextIndex(dir, "qwen"))
	assert.Equal(t, 100, NextIndex(dir, "flux"))
	assert.Equal(t, 1, NextIndex(dir, "Nano-Banana"))

	touch(t, dir, "nano-banana7__2025-01-01__10-00-00__gemini__seed-2.webp")
	assert.Equal(t, 8, NextIndex(dir, "Nano-Banana"))
}

func TestNextIndex_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	assert.Equal(t, 1, NextIndex(dir, "flux"))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestNextIndex_Unreadable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "plain")
	touch(t, filepath.Dir(file), "plain")
	assert.Equal(t, 1, NextIndex(file, "flux"))
}

func TestNextIndex_LabelIsLiteral(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "aXb5.png")
	assert.Equal(t, 1, NextIndex(dir, "a.b"))
}

func TestNextIndex_DigitRunMustEndAtBoundary(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "flux2__2024-01-01__00-00-00__flux__seed-1.png")
	touch(t, dir, "flux900abc.png")
	touch(t, dir, "fluxfoo7.png")
	touch(t, dir, "flux40_final")

	assert.Equal(t, 41, NextIndex(dir, "flux"))

	require.NoError(t, os.Remove(filepath.Join(dir, "flux40_final")))
	assert.Equal(t, 3, NextIndex(dir, "flux"))
}

func TestFileName(t *testing.T) {
	ts := time.Date(2025, 3, 9, 7, 5, 2, 0, time.Local)
	seed := int64(42)

	assert.Equal(t, "flux3__2025-03-09__07-05-02__flux__seed-42.png",
		FileName("flux", 3, ts, "flux", &seed, "png"))
	assert.Equal(t, "Nano-Banana1__2025-03-09__07-05-02__gemini__seed-auto.webp",
		FileName("Nano-Banana", 1, ts, "gemini", nil, "webp"))
}

func TestInferExt(t *testing.T) {
	tests := []struct {
		contentType string
		url         string
		want        string
	}{
		{"image/png", "https://cdn/x.jpg", "png"},
		{"image/jpeg", "", "jpeg"},
		{"image/jpg", "", "jpg"},
		{"image/webp; charset=binary", "", "webp"},
		{"application/octet-stream", "https://cdn/x.JPG?sig=1", "jpg"},
		{"", "https://cdn/x.jpeg#frag", "jpeg"},
		{"", "https://cdn/x.webp", "webp"},
		{"", "https://cdn/x.gif", "png"},
		{"", "https://cdn/x.png.bak", "png"},
		{"", "", "png"},
	}

	for _, tt := range tests {
		t.Run(tt.contentType+"|"+tt.url, func(t *testing.T) {
			assert.Equal(t, tt.want, InferExt(tt.contentType, tt.url))
		})
	}
}

// 任意已有文件集合下，NextIndex 严格大于同标签的最大数字后缀.
func TestProperty_NextIndexExceedsExisting(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50

	properties := gopter.NewProperties(parameters)

	properties.Property("next index is max suffix plus one", prop.ForAll(
		func(own []int, other []int) bool {
			dir := t.TempDir()
			maxOwn := 0
			for i, n := range own {
				name := "qwen" + strconv.Itoa(n) + "__" + strconv.Itoa(i) + ".png"
				if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
					return false
				}
				if n > maxOwn {
					maxOwn = n
				}
			}
			for i, n := range other {
				name := "flux" + strconv.Itoa(n) + "__" + strconv.Itoa(i) + ".png"
				if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
					return false
				}
			}
			return NextIndex(dir, "qwen") == maxOwn+1
		},
		gen.SliceOf(gen.IntRange(1, 100000)),
		gen.SliceOf(gen.IntRange(1, 100000)),
	))

	properties.Property("sequential saves produce consecutive indices", prop.ForAll(
		func(count int) bool {
			dir := t.TempDir()
			for want := 1; want <= count; want++ {
				got := NextIndex(dir, "flux")
				if got != want {
					return false
				}
				name := FileName("flux", got, time.Now(), "flux", nil, "png")
				if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 15),
	))

	properties.TestingRun(t)
}
