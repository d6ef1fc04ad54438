//go:build !jsoniter

package json

import (
	"github.com/bytedance/sonic"
)

var api = sonic.Config{
	UseNumber:   true,
	SortMapKeys: true,
	EscapeHTML:  false,
}.Froze()
