package session

import (
	"fmt"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/property"
	"github.com/lk2023060901/capture-bridge-go/internal/rpc"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// DeviceSession 是客户端打开的一个设备句柄。
// 设备对象归设备层所有，这里只持有使用关系。
type DeviceSession struct {
	handle   int64
	device   capture.Device
	info     capture.DeviceInfo
	versions *rpc.VersionTracker
}

func newDeviceSession(device capture.Device, versions *rpc.VersionTracker) *DeviceSession {
	return &DeviceSession{
		handle:   NextHandle(),
		device:   device,
		info:     device.Info(),
		versions: versions,
	}
}

func (d *DeviceSession) Handle() int64 {
	return d.handle
}

func (d *DeviceSession) GUID() string {
	return d.info.GUID
}

func (d *DeviceSession) Info() capture.DeviceInfo {
	return d.info
}

// GetProperty 读取设备属性，done 在设备层回调的协程上被调用。
func (d *DeviceSession) GetProperty(p capture.Property, id any, done func(*rpc.Response)) {
	d.device.GetProperty(p, func(result capture.Result, got *capture.Property) {
		done(getPropertyReply(d.versions.Current(), id, d.handle, d.info.GUID, "the device", result, got))
	})
}

// SetProperty 写入设备属性，成功时回复 {handle}。
func (d *DeviceSession) SetProperty(p capture.Property, id any, done func(*rpc.Response)) {
	d.device.SetProperty(p, func(result capture.Result, _ *capture.Property) {
		done(setPropertyReply(d.versions.Current(), id, d.handle, d.info.GUID, "the device", result))
	})
}

func getPropertyReply(version string, id any, handle int64, guid, source string, result capture.Result, got *capture.Property) *rpc.Response {
	if !result.Ok() {
		metrics.DeviceLayerRequests.WithLabelValues(metrics.OutcomeFailed).Inc()
		return rpc.NewError(version, merr.WrapErrDeviceError(guid, result),
			fmt.Sprintf("There was an error with getting property from %s. Error: %s", source, result), handle, id)
	}
	metrics.DeviceLayerRequests.WithLabelValues(metrics.OutcomeDelivered).Inc()
	if got == nil {
		return rpc.NewError(version, merr.WrapErrMalformedProperty("property"), "", handle, id)
	}
	wire, err := property.ToWire(*got)
	if err != nil {
		return rpc.NewError(version, err, "", handle, id)
	}
	return rpc.NewResult(version, id, rpc.PropertyResult{Property: wire})
}

func setPropertyReply(version string, id any, handle int64, guid, source string, result capture.Result) *rpc.Response {
	if !result.Ok() {
		metrics.DeviceLayerRequests.WithLabelValues(metrics.OutcomeFailed).Inc()
		return rpc.NewError(version, merr.WrapErrDeviceError(guid, result),
			fmt.Sprintf("There was an error with setting property of %s. Error: %s", source, result), handle, id)
	}
	metrics.DeviceLayerRequests.WithLabelValues(metrics.OutcomeDelivered).Inc()
	return rpc.NewResult(version, id, rpc.HandleResult{Handle: handle})
}
