// Package capture 定义桥接核心与外部设备层之间的契约。
//
// 设备层负责设备枚举、属性读写以及事件推送；核心只通过 Layer 接口与其交互，
// 不持有设备对象的所有权。
package capture

import (
	"context"
)

// AppInfo 是打开设备层时需要校验的应用凭据。
type AppInfo struct {
	AppID       string `mapstructure:"app_id" json:"appId"`
	AppKey      string `mapstructure:"app_key" json:"appKey"`
	DeveloperID string `mapstructure:"developer_id" json:"developerId"`
}

// Complete 判断三个字段是否都已填写。
func (a AppInfo) Complete() bool {
	return a.AppID != "" && a.AppKey != "" && a.DeveloperID != ""
}

// PropertyCallback 是异步属性读写的完成回调，property 仅在成功时有效。
type PropertyCallback func(result Result, property *Property)

// Device 是设备层中的一台设备或设备管理器。
type Device interface {
	Info() DeviceInfo
	GetProperty(property Property, done PropertyCallback)
	SetProperty(property Property, done PropertyCallback)
}

// Layer 是外部设备层。
//
// GetProperty / SetProperty 作用于设备层全局（例如读取设备层版本）。
// 所有回调可能在任意协程上触发，调用方负责切回自己的执行上下文。
type Layer interface {
	// Open 以应用凭据打开设备层，失败时可重试。
	Open(ctx context.Context, appInfo AppInfo) error
	Close() error
	// VerifyAppInfo 校验页面提交的应用凭据。
	VerifyAppInfo(appInfo AppInfo) bool
	Devices() []Device
	DeviceManagers() []Device
	GetProperty(property Property, done PropertyCallback)
	SetProperty(property Property, done PropertyCallback)
	// PushSubscriber 替换当前唯一的事件订阅者，而不是追加。
	PushSubscriber(subscriber Subscriber)
}

// AllDevices 返回设备管理器与设备的合集，设备管理器在前。
func AllDevices(layer Layer) []Device {
	managers := layer.DeviceManagers()
	devices := layer.Devices()
	all := make([]Device, 0, len(managers)+len(devices))
	all = append(all, managers...)
	return append(all, devices...)
}

// FindDevice 按 GUID 查找设备或设备管理器。
func FindDevice(layer Layer, guid string) (Device, bool) {
	for _, d := range AllDevices(layer) {
		if d.Info().GUID == guid {
			return d, true
		}
	}
	return nil, false
}
