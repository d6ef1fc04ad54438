// Package rpc 定义页面与桥接核心之间的 JSON-RPC 消息。
package rpc

import (
	"math"

	"go.uber.org/atomic"

	"github.com/lk2023060901/capture-bridge-go/internal/json"
)

const (
	MethodOpenClient  = "openclient"
	MethodOpenDevice  = "opendevice"
	MethodClose       = "close"
	MethodGetProperty = "getproperty"
	MethodSetProperty = "setproperty"
)

// params 中的字段名。
const (
	KeyAppID       = "appId"
	KeyAppKey      = "appKey"
	KeyDeveloperID = "developerId"
	KeyHandle      = "handle"
	KeyGUID        = "guid"
	KeyProperty    = "property"
)

const (
	// DefaultVersion 是尚未收到任何消息时回复使用的 jsonrpc 版本。
	DefaultVersion = "2.0"
	// OpenClientID 是 openclient 请求未携带 id 时回复使用的 id。
	OpenClientID = "transport-openclient"
)

// Message 是解析后的入站消息。
//
// ID 保持解码后的原始类型（json.Number 或 string），回复时原样带回。
type Message struct {
	JSONRPC string
	ID      any
	Method  string
	Params  map[string]any
	Result  map[string]any
}

// Parse 解析一条入站文本。非 JSON 或不是对象时返回 false，调用方应静默忽略，
// 因为同一通道上可能有其它无关流量。
func Parse(text string) (*Message, bool) {
	var raw map[string]any
	if err := json.UnmarshalFromString(text, &raw); err != nil || raw == nil {
		return nil, false
	}

	m := &Message{}
	m.JSONRPC, _ = raw["jsonrpc"].(string)
	m.Method, _ = raw["method"].(string)
	m.Params, _ = raw["params"].(map[string]any)
	m.Result, _ = raw["result"].(map[string]any)
	switch id := raw["id"].(type) {
	case json.Number, string:
		m.ID = id
	}
	return m, true
}

func (m *Message) HasID() bool {
	return m.ID != nil
}

// Param 返回 params 中 key 对应的原始值。
func (m *Message) Param(key string) (any, bool) {
	if m.Params == nil {
		return nil, false
	}
	v, ok := m.Params[key]
	return v, ok
}

// IntParam 返回整数参数，值缺失或不是整数时返回 false。
func (m *Message) IntParam(key string) (int64, bool) {
	v, ok := m.Param(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	}
	return 0, false
}

func (m *Message) StringParam(key string) (string, bool) {
	v, ok := m.Param(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// VersionTracker 记录最近一次入站消息携带的 jsonrpc 版本。
type VersionTracker struct {
	v atomic.String
}

func NewVersionTracker() *VersionTracker {
	t := &VersionTracker{}
	t.v.Store(DefaultVersion)
	return t
}

// Observe 记录版本，空字符串被忽略。
func (t *VersionTracker) Observe(version string) {
	if version != "" {
		t.v.Store(version)
	}
}

func (t *VersionTracker) Current() string {
	return t.v.Load()
}
