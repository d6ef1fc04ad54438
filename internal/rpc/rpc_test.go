package rpc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

func TestParse(t *testing.T) {
	m, ok := Parse(`{"jsonrpc":"2.0","id":12,"method":"opendevice","params":{"handle":99,"guid":"G-1"}}`)
	require.True(t, ok)
	assert.Equal(t, "2.0", m.JSONRPC)
	assert.Equal(t, json.Number("12"), m.ID)
	assert.True(t, m.HasID())
	assert.Equal(t, MethodOpenDevice, m.Method)

	h, ok := m.IntParam(KeyHandle)
	assert.True(t, ok)
	assert.Equal(t, int64(99), h)
	guid, ok := m.StringParam(KeyGUID)
	assert.True(t, ok)
	assert.Equal(t, "G-1", guid)

	_, ok = m.IntParam(KeyGUID)
	assert.False(t, ok)
	_, ok = m.StringParam("missing")
	assert.False(t, ok)
}

func TestParseStringID(t *testing.T) {
	m, ok := Parse(`{"id":"abc","method":"close"}`)
	require.True(t, ok)
	assert.Equal(t, "abc", m.ID)
	_, ok = m.Param(KeyHandle)
	assert.False(t, ok)
}

func TestParseIgnoresForeignTraffic(t *testing.T) {
	for _, text := range []string{"", "not json", "[1,2]", `"text"`, "42", "null"} {
		_, ok := Parse(text)
		assert.False(t, ok, text)
	}
	m, ok := Parse(`{"id":[1]}`)
	require.True(t, ok)
	assert.False(t, m.HasID())
}

func TestVersionTracker(t *testing.T) {
	v := NewVersionTracker()
	assert.Equal(t, "2.0", v.Current())
	v.Observe("")
	assert.Equal(t, "2.0", v.Current())
	v.Observe("1.0")
	assert.Equal(t, "1.0", v.Current())
}

func TestNewErrorDefaults(t *testing.T) {
	resp := NewError("2.0", merr.WrapErrInvalidHandle(nil), "", NoHandle, nil)
	data, err := json.MarshalToString(resp)
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":6,"error":{"code":1001,"message":"A handle was not specified","data":{"handle":-1}}}`, data)

	resp = NewError("2.0", merr.WrapErrInvalidHandle(5), "", 5, json.Number("3"))
	assert.Equal(t, json.Number("3"), resp.ID)
	assert.Equal(t, int64(5), resp.Error.Data.Handle)
	assert.Contains(t, resp.Error.Message, "There is no client or device with the specified handle")
}

func TestNewErrorMessages(t *testing.T) {
	assert.Equal(t, "There is a missing or invalid property in the JSON-RPC that is required",
		NewError("2.0", merr.WrapErrParameterMissing("guid"), "", 1, 1).Error.Message)
	assert.Equal(t, "The AppInfo parameters are invalid",
		NewError("2.0", merr.WrapErrInvalidAppInfo("app"), "", NoHandle, 1).Error.Message)
	assert.Equal(t, "custom",
		NewError("2.0", merr.WrapErrDeviceNotOpen("G"), "custom", 1, 1).Error.Message)
	assert.Equal(t, merr.Code(merr.ErrDeviceNotOpen),
		NewError("2.0", merr.WrapErrDeviceNotOpen("G"), "custom", 1, 1).Error.Code)
}

func TestResultShapes(t *testing.T) {
	data, err := json.MarshalToString(NewResult("2.0", json.Number("7"), 0))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":7,"result":0}`, data)

	data, err = json.MarshalToString(NewNotification("2.0", 42, Event{ID: 10, Type: 4, Value: "tok"}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","result":{"handle":42,"event":{"id":10,"type":4,"value":"tok"}}}`, data)

	data, err = json.MarshalToString(NewResult("2.0", OpenClientID, HandleResult{Handle: 9}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","id":"transport-openclient","result":{"handle":9}}`, data)
}
