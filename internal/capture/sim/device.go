package sim

import (
	"sync"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
)

var _ capture.Device = (*Device)(nil)

// Device 是内存设备，属性按 ID 存储。
type Device struct {
	layer *Layer
	info  capture.DeviceInfo

	mu       sync.Mutex
	props    map[capture.PropertyID]capture.Property
	failNext capture.Result
}

func (d *Device) Info() capture.DeviceInfo {
	return d.info
}

// FailNext 让下一次属性读写以 result 失败。
func (d *Device) FailNext(result capture.Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failNext = result
}

// Put 直接写入一个属性，不经过回调。
func (d *Device) Put(property capture.Property) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.props[property.ID] = property
}

func (d *Device) takeFailure() capture.Result {
	d.mu.Lock()
	defer d.mu.Unlock()
	r := d.failNext
	d.failNext = capture.ResultNoError
	return r
}

func (d *Device) GetProperty(property capture.Property, done capture.PropertyCallback) {
	if r := d.takeFailure(); !r.Ok() {
		d.layer.complete(done, r, nil)
		return
	}
	d.mu.Lock()
	p, ok := d.props[property.ID]
	d.mu.Unlock()
	if !ok {
		d.layer.complete(done, capture.ResultNotSupported, nil)
		return
	}
	d.layer.complete(done, capture.ResultNoError, &p)
}

func (d *Device) SetProperty(property capture.Property, done capture.PropertyCallback) {
	if r := d.takeFailure(); !r.Ok() {
		d.layer.complete(done, r, nil)
		return
	}
	d.Put(property)
	d.layer.complete(done, capture.ResultNoError, &property)
}

// AddDevice 接入一台设备并推送到达事件。
func (l *Layer) AddDevice(info capture.DeviceInfo) *Device {
	return l.add(info, false)
}

// AddDeviceManager 接入一个设备管理器并推送到达事件。
func (l *Layer) AddDeviceManager(info capture.DeviceInfo) *Device {
	return l.add(info, true)
}

func (l *Layer) add(info capture.DeviceInfo, manager bool) *Device {
	d := &Device{
		layer: l,
		info:  info,
		props: make(map[capture.PropertyID]capture.Property),
	}
	kind := capture.EventDeviceArrival
	l.mu.Lock()
	if manager {
		l.managers = append(l.managers, d)
		kind = capture.EventDeviceManagerArrival
	} else {
		l.devices = append(l.devices, d)
	}
	l.mu.Unlock()

	l.emit(capture.Event{Kind: kind, Device: info})
	return d
}

// RemoveDevice 移除设备或设备管理器并推送移除事件，GUID 不存在时返回 false。
func (l *Layer) RemoveDevice(guid string) bool {
	l.mu.Lock()
	var (
		removed *Device
		kind    capture.EventID
	)
	if idx := indexOf(l.devices, guid); idx >= 0 {
		removed = l.devices[idx]
		l.devices = append(l.devices[:idx], l.devices[idx+1:]...)
		kind = capture.EventDeviceRemoval
	} else if idx := indexOf(l.managers, guid); idx >= 0 {
		removed = l.managers[idx]
		l.managers = append(l.managers[:idx], l.managers[idx+1:]...)
		kind = capture.EventDeviceManagerRemoval
	}
	l.mu.Unlock()

	if removed == nil {
		return false
	}
	l.emit(capture.Event{Kind: kind, Device: removed.info})
	return true
}

// DetachSilently 移除设备但不推送事件，模拟会话挂起期间错过的移除。
func (l *Layer) DetachSilently(guid string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if idx := indexOf(l.devices, guid); idx >= 0 {
		l.devices = append(l.devices[:idx], l.devices[idx+1:]...)
		return true
	}
	return false
}

// AttachSilently 接入设备但不推送事件。
func (l *Layer) AttachSilently(info capture.DeviceInfo) *Device {
	d := &Device{
		layer: l,
		info:  info,
		props: make(map[capture.PropertyID]capture.Property),
	}
	l.mu.Lock()
	l.devices = append(l.devices, d)
	l.mu.Unlock()
	return d
}

func indexOf(list []*Device, guid string) int {
	for i, d := range list {
		if d.info.GUID == guid {
			return i
		}
	}
	return -1
}

func (l *Layer) find(guid string) (capture.DeviceInfo, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, list := range [][]*Device{l.devices, l.managers} {
		if idx := indexOf(list, guid); idx >= 0 {
			return list[idx].info, true
		}
	}
	return capture.DeviceInfo{GUID: guid}, false
}

// Scan 推送一次成功的扫码数据。
func (l *Layer) Scan(guid string, data []byte, source capture.DataSourceID, sourceName string) {
	info, _ := l.find(guid)
	l.emit(capture.Event{
		Kind:   capture.EventDecodedData,
		Device: info,
		Data: &capture.DecodedData{
			Data:           data,
			DataSourceID:   source,
			DataSourceName: sourceName,
		},
	})
}

// ScanResult 推送一次携带失败结果的扫码事件。
func (l *Layer) ScanResult(guid string, result capture.Result) {
	info, _ := l.find(guid)
	l.emit(capture.Event{Kind: capture.EventDecodedData, Device: info, Result: result})
}

// PresenceFailure 推送一次携带失败结果的到达/移除事件。
func (l *Layer) PresenceFailure(kind capture.EventID, info capture.DeviceInfo, result capture.Result) {
	l.emit(capture.Event{Kind: kind, Device: info, Result: result})
}

func (l *Layer) SetBattery(guid string, level int) {
	info, _ := l.find(guid)
	l.emit(capture.Event{Kind: capture.EventBatteryLevel, Device: info, Value: level})
}

func (l *Layer) SetPower(guid string, state int) {
	info, _ := l.find(guid)
	l.emit(capture.Event{Kind: capture.EventPower, Device: info, Value: state})
}

func (l *Layer) SetButtons(guid string, state int) {
	info, _ := l.find(guid)
	l.emit(capture.Event{Kind: capture.EventButtons, Device: info, Value: state})
}

// Error 推送一次设备层错误事件。
func (l *Layer) Error(result capture.Result) {
	l.emit(capture.Event{Kind: capture.EventError, Result: result})
}
