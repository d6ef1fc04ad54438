//go:build jsoniter

package json

import (
	jsoniter "github.com/json-iterator/go"
)

var api = jsoniter.Config{
	UseNumber:   true,
	SortMapKeys: true,
	EscapeHTML:  false,
}.Froze()
