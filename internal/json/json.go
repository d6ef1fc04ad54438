// Package json 是项目内统一的 JSON 编解码入口。
//
// 默认基于 bytedance/sonic；使用 -tags jsoniter 构建时切换为 json-iterator，
// 用于 sonic 不支持的平台。两种实现的行为保持一致：
//   - 解码到 any 时数字保留为 Number，避免大整数精度丢失；
//   - 编码 map 时按 key 排序，保证输出稳定；
//   - 不转义 HTML 字符。
package json

import (
	stdjson "encoding/json"
)

type (
	RawMessage = stdjson.RawMessage
	Number     = stdjson.Number
)

// Marshal 将 v 编码为 JSON。
func Marshal(v any) ([]byte, error) {
	return api.Marshal(v)
}

// MarshalToString 将 v 编码为 JSON 字符串。
func MarshalToString(v any) (string, error) {
	return api.MarshalToString(v)
}

// Unmarshal 将 data 解码到 v。
func Unmarshal(data []byte, v any) error {
	return api.Unmarshal(data, v)
}

// UnmarshalFromString 将字符串 data 解码到 v。
func UnmarshalFromString(data string, v any) error {
	return api.UnmarshalFromString(data, v)
}

// Valid 判断 data 是否为合法 JSON。
func Valid(data []byte) bool {
	return api.Valid(data)
}
