package log

import (
	"go.uber.org/zap"
)

const (
	FieldNameComponent = "component"
	FieldNameHandle    = "handle"
	FieldNameDevice    = "deviceGUID"
	FieldNameMethod    = "method"
	FieldNameAddress   = "address"
)

// FieldComponent 返回一个包含组件名的 zap 字段。
func FieldComponent(component string) zap.Field {
	return zap.String(FieldNameComponent, component)
}

// FieldHandle 返回客户端或设备句柄字段。
func FieldHandle(handle int64) zap.Field {
	return zap.Int64(FieldNameHandle, handle)
}

// FieldDevice 返回设备 GUID 字段。
func FieldDevice(guid string) zap.Field {
	return zap.String(FieldNameDevice, guid)
}

// FieldMethod 返回 JSON-RPC 方法名字段。
func FieldMethod(method string) zap.Field {
	return zap.String(FieldNameMethod, method)
}

// FieldAddress 返回页面地址字段。
func FieldAddress(address string) zap.Field {
	return zap.String(FieldNameAddress, address)
}
