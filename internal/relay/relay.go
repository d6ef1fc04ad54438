// Package relay 把设备层事件翻译为发往活跃客户端的通知。
package relay

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/session"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

const (
	reasonNoActive    = "no_active_session"
	reasonStale       = "stale_subscriber"
	reasonNotOpened   = "device_not_opened"
	reasonCanceled    = "canceled"
	reasonUnsupported = "unsupported_event"
)

// Host 接收与页面无关的设备层通知，没有活跃会话时同样会被调用。
type Host interface {
	DeviceArrived(info capture.DeviceInfo)
	DeviceRemoved(info capture.DeviceInfo)
	BatteryLevelChanged(info capture.DeviceInfo, level int)
}

// Relay 是设备层唯一订阅者的来源。
//
// 订阅者只携带会话句柄，事件到达后切回执行上下文，再到注册表中查找活跃会话；
// 句柄与当前活跃会话不一致时说明订阅者已被替换，事件丢弃。
type Relay struct {
	registry *session.Registry
	post     session.Executor
	host     Host
	log      *log.MLogger
}

func New(registry *session.Registry, post session.Executor, host Host) *Relay {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Relay{
		registry: registry,
		post:     post,
		host:     host,
		log:      log.With(log.FieldComponent("relay")).WithRateGroup("relay.drop", 1, 60),
	}
}

// Attach 把 Relay 注册为注册表的订阅者工厂。
func (r *Relay) Attach() {
	r.registry.UseSubscribers(r.For, r.Neutral())
}

// For 返回面向 handle 对应会话的订阅者。
func (r *Relay) For(handle int64) capture.Subscriber {
	return capture.SubscriberFunc(func(e capture.Event) {
		r.post(func() { r.dispatch(handle, e) })
	})
}

// Neutral 返回没有活跃会话时使用的订阅者，只通知宿主。
func (r *Relay) Neutral() capture.Subscriber {
	return r.For(0)
}

func (r *Relay) dispatch(handle int64, e capture.Event) {
	r.notifyHost(e)

	active := r.registry.Active()
	if active == nil {
		r.drop(e, reasonNoActive)
		return
	}
	if active.Handle() != handle {
		r.drop(e, reasonStale)
		return
	}

	switch {
	case e.Kind == capture.EventError:
		active.NotifyError(merr.WrapErrDeviceError("", e.Result),
			fmt.Sprintf("The device layer reported an error: %s", e.Result))
	case e.Kind.IsPresence():
		r.presence(active, e)
	case e.Kind == capture.EventDecodedData:
		if !r.decoded(active, e) {
			return
		}
	case e.Kind == capture.EventPower, e.Kind == capture.EventBatteryLevel, e.Kind == capture.EventButtons:
		active.NotifyEvent(session.ByteEvent(e.Kind, e.Value))
	default:
		r.drop(e, reasonUnsupported)
		return
	}
	metrics.RelayedEvents.WithLabelValues(e.Kind.String()).Inc()
}

func (r *Relay) presence(active *session.ClientSession, e capture.Event) {
	if !e.Result.Ok() {
		active.NotifyError(merr.WrapErrDeviceError(e.Device.GUID, e.Result),
			fmt.Sprintf("There was an error with arrival or removal of the device: %s. Error: %s", e.Device.Name, e.Result))
		return
	}
	active.NotifyPresence(e.Kind, e.Device)
}

func (r *Relay) decoded(active *session.ClientSession, e capture.Event) bool {
	if e.Result.IsCancellation() {
		r.drop(e, reasonCanceled)
		return false
	}
	if !e.Result.Ok() {
		active.NotifyError(merr.WrapErrDeviceError(e.Device.GUID, e.Result),
			fmt.Sprintf("There was an error receiving decoded data from the device: %s. Error: %s", e.Device.Name, e.Result))
		return true
	}
	if e.Data == nil || !active.HasOpened(e.Device.GUID) {
		r.drop(e, reasonNotOpened)
		return false
	}
	active.NotifyEvent(session.DecodedDataEvent(e.Data))
	return true
}

func (r *Relay) notifyHost(e capture.Event) {
	if r.host == nil || !e.Result.Ok() {
		return
	}
	switch e.Kind {
	case capture.EventDeviceArrival:
		r.host.DeviceArrived(e.Device)
	case capture.EventDeviceRemoval:
		r.host.DeviceRemoved(e.Device)
	case capture.EventBatteryLevel:
		r.host.BatteryLevelChanged(e.Device, e.Value)
	}
}

func (r *Relay) drop(e capture.Event, reason string) {
	metrics.DroppedEvents.WithLabelValues(e.Kind.String(), reason).Inc()
	r.log.RatedDebug(1, "device event dropped", zap.Stringer("event", e.Kind),
		log.FieldDevice(e.Device.GUID), zap.String("reason", reason))
}
