package rpc

import (
	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

const (
	// NoHandle 表示错误回复不关联任何句柄。
	NoHandle int64 = -1
	// DefaultErrorID 是请求 id 未知时错误回复使用的 id。
	DefaultErrorID = 6
)

// Response 是出站的回复或通知。通知不带 id。
type Response struct {
	JSONRPC string       `json:"jsonrpc"`
	ID      any          `json:"id,omitempty"`
	Result  any          `json:"result,omitempty"`
	Error   *ErrorObject `json:"error,omitempty"`
}

type ErrorObject struct {
	Code    int32     `json:"code"`
	Message string    `json:"message"`
	Data    ErrorData `json:"data"`
}

type ErrorData struct {
	Handle int64 `json:"handle"`
}

// Event 是通知中的 event 字段。
type Event struct {
	ID    int `json:"id"`
	Type  int `json:"type"`
	Value any `json:"value"`
}

type Notification struct {
	Handle int64 `json:"handle"`
	Event  Event `json:"event"`
}

type HandleResult struct {
	Handle int64 `json:"handle"`
}

type PropertyResult struct {
	Property map[string]any `json:"property"`
}

// NewResult 构造成功回复。
func NewResult(version string, id any, result any) *Response {
	return &Response{JSONRPC: version, ID: id, Result: result}
}

// NewNotification 构造一条发往 handle 的事件通知。
func NewNotification(version string, handle int64, event Event) *Response {
	return &Response{
		JSONRPC: version,
		Result:  Notification{Handle: handle, Event: event},
	}
}

// NewError 构造错误回复，message 为空时按错误类型选用默认文案。
// handle 传 NoHandle 表示无句柄，id 为 nil 时使用 DefaultErrorID。该函数不会失败。
func NewError(version string, err error, message string, handle int64, id any) *Response {
	if message == "" {
		message = DefaultMessage(err, handle)
	}
	if id == nil {
		id = DefaultErrorID
	}
	return &Response{
		JSONRPC: version,
		ID:      id,
		Error: &ErrorObject{
			Code:    merr.Code(err),
			Message: message,
			Data:    ErrorData{Handle: handle},
		},
	}
}

// DefaultMessage 返回错误类型对应的页面文案。
func DefaultMessage(err error, handle int64) string {
	switch {
	case errors.Is(err, merr.ErrInvalidHandle):
		if handle == NoHandle {
			return "A handle was not specified"
		}
		return "There is no client or device with the specified handle. The desired client or device may have been recently closed"
	case errors.Is(err, merr.ErrInvalidParameter):
		return "There is a missing or invalid property in the JSON-RPC that is required"
	case errors.Is(err, merr.ErrInvalidAppInfo):
		return "The AppInfo parameters are invalid"
	case err == nil:
		return ""
	default:
		return err.Error()
	}
}
