package artifact

import (
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/samber/lo"
)

// TimestampLayout formats local time as YYYY-MM-DD__HH-MM-SS.
const TimestampLayout = "2006-01-02__15-04-05"

// DefaultExt is used when neither content type nor URL names a format.
const DefaultExt = "png"

var urlExtPattern = regexp.MustCompile(`(?i)\.(png|jpe?g|webp)(\?|#|$)`)

// contentTypeExts is checked in order; "jpeg" precedes "jpg" so image/jpeg keeps its name.
var contentTypeExts = []string{"png", "jpeg", "jpg", "webp"}

// NextIndex scans dir for names starting with label followed by a digit run
// and returns the largest run plus one. The directory is created when absent;
// an unreadable directory yields 1.
func NextIndex(dir, label string) int {
	_ = os.MkdirAll(dir, 0o755)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 1
	}

	re := labelPattern(label)
	indices := lo.FilterMap(entries, func(e os.DirEntry, _ int) (int, bool) {
		m := re.FindStringSubmatch(e.Name())
		if m == nil {
			return 0, false
		}
		n, err := strconv.Atoi(m[1])
		return n, err == nil
	})
	return lo.Max(indices) + 1
}

// labelPattern matches the label case-insensitively at the start of a name,
// capturing the complete digit run that follows it. The run must end at a
// non-alphanumeric character or the end of the name.
func labelPattern(label string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(label) + `(\d+)(?:[^0-9A-Za-z]|$)`)
}

// SeedPart renders the seed segment of a file name.
func SeedPart(seed *int64) string {
	if seed == nil {
		return "seed-auto"
	}
	return "seed-" + strconv.FormatInt(*seed, 10)
}

// FileName builds <label><index>__<timestamp>__<model>__seed-<value|auto>.<ext>.
func FileName(label string, index int, ts time.Time, model string, seed *int64, ext string) string {
	var b strings.Builder
	b.WriteString(label)
	b.WriteString(strconv.Itoa(index))
	b.WriteString("__")
	b.WriteString(ts.Format(TimestampLayout))
	b.WriteString("__")
	b.WriteString(model)
	b.WriteString("__")
	b.WriteString(SeedPart(seed))
	b.WriteString(".")
	b.WriteString(ext)
	return b.String()
}

// InferExt picks the extension from the content type, then from the URL
// suffix, and falls back to DefaultExt.
func InferExt(contentType, url string) string {
	if ct := strings.ToLower(contentType); ct != "" {
		if ext, ok := lo.Find(contentTypeExts, func(ext string) bool {
			return strings.Contains(ct, ext)
		}); ok {
			return ext
		}
	}
	if m := urlExtPattern.FindStringSubmatch(url); m != nil {
		return strings.ToLower(m[1])
	}
	return DefaultExt
}
