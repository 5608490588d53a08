package imaging

import (
	"encoding/json"

	"github.com/stretchr/testify/require"
)

func mustJSON(t require.TestingT, v any) []byte {
	raw, err := json.Marshal(v)
	require.NoError(t, err)
	return raw
}

func ptr[T any](v T) *T { return &v }
