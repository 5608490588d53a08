package refine

import (
	"bytes"
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	intPattern   = regexp.MustCompile(`^[+-]?\d+$`)
	floatPattern = regexp.MustCompile(`^[+-]?\d+(\.\d+)?$`)
)

// Number is a lenient numeric field. It accepts JSON numbers and numeric
// strings; any other value, including null, decodes as unset.
type Number struct {
	value float64
	set   bool
}

// NumberOf returns a set Number.
func NumberOf(v float64) Number { return Number{value: v, set: true} }

// IsZero reports whether the number is unset.
func (n Number) IsZero() bool { return !n.set }

// Float returns the value and whether it was set.
func (n Number) Float() (float64, bool) { return n.value, n.set }

// Ptr returns the value as a pointer, nil when unset.
func (n Number) Ptr() *float64 {
	if !n.set {
		return nil
	}
	v := n.value
	return &v
}

// UnmarshalJSON never fails; unusable input leaves the number unset.
func (n *Number) UnmarshalJSON(data []byte) error {
	*n = Number{}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil
	}

	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return nil
		}
		*n = parseNumeric(strings.TrimSpace(s))
	case '-', '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		var f float64
		if err := json.Unmarshal(data, &f); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
			*n = NumberOf(f)
		}
	}
	return nil
}

// MarshalJSON writes null for an unset number.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.set {
		return []byte("null"), nil
	}
	return json.Marshal(n.value)
}

func parseNumeric(s string) Number {
	switch {
	case intPattern.MatchString(s):
		i, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return Number{}
		}
		return NumberOf(float64(i))
	case floatPattern.MatchString(s):
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Number{}
		}
		return NumberOf(f)
	default:
		return Number{}
	}
}
