package json

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUnmarshalKeepsNumbers(t *testing.T) {
	var v map[string]any
	require.NoError(t, Unmarshal([]byte(`{"handle":1700000000123,"ratio":1.5}`), &v))

	n, ok := v["handle"].(Number)
	require.True(t, ok)
	i, err := n.Int64()
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000123), i)

	_, ok = v["ratio"].(Number)
	assert.True(t, ok)
}

func TestMarshalSortedAndUnescaped(t *testing.T) {
	out, err := MarshalToString(map[string]any{"b": 1, "a": "<x>&%27"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"<x>&%27","b":1}`, out)
}

func TestValidAndFromString(t *testing.T) {
	assert.True(t, Valid([]byte(`{"jsonrpc":"2.0"}`)))
	assert.False(t, Valid([]byte(`{"jsonrpc":`)))

	var v struct {
		Method string `json:"method"`
	}
	require.NoError(t, UnmarshalFromString(`{"method":"openclient"}`, &v))
	assert.Equal(t, "openclient", v.Method)

	raw := RawMessage(`{"x":1}`)
	out, err := Marshal(map[string]any{"r": raw})
	require.NoError(t, err)
	assert.Equal(t, `{"r":{"x":1}}`, string(out))
}
