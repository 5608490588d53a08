package refine

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		raw    string
		want   float64
		wantOK bool
	}{
		{`0.7`, 0.7, true},
		{`200`, 200, true},
		{`-1`, -1, true},
		{`"300"`, 300, true},
		{`" +12 "`, 12, true},
		{`"0.25"`, 0.25, true},
		{`"-3.5"`, -3.5, true},
		{`"1e3"`, 0, false},
		{`"abc"`, 0, false},
		{`""`, 0, false},
		{`null`, 0, false},
		{`true`, 0, false},
		{`[1]`, 0, false},
		{`{"v":1}`, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			var n Number
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &n))
			got, ok := n.Float()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRequest_DecodeIsLenient(t *testing.T) {
	var req Request
	err := json.Unmarshal([]byte(`{"prompt":"p","temperature":"0.9","top_p":"high","max_completion_tokens":"400"}`), &req)
	require.NoError(t, err)

	v, ok := req.Temperature.Float()
	assert.True(t, ok)
	assert.Equal(t, 0.9, v)
	assert.Nil(t, req.TopP.Ptr())
	assert.Equal(t, 400.0, *req.MaxCompletionTokens.Ptr())
}

func TestRequest_EncodeOmitsUnset(t *testing.T) {
	raw, err := json.Marshal(Request{Prompt: "p", Temperature: NumberOf(1)})
	require.NoError(t, err)
	assert.JSONEq(t, `{"prompt":"p","temperature":1}`, string(raw))
}
