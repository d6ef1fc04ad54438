package bridge

import (
	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/relay"
)

// ClientEvent 描述一次客户端会话的打开或关闭。
type ClientEvent struct {
	Handle  int64
	Address string
	Group   string
}

// BatteryEvent 描述一次电量变化。
type BatteryEvent struct {
	Device capture.DeviceInfo
	Level  int
}

// UnhandledMessage 是桥接核心不处理的入站消息：通道名不是桥接通道，或 method 未知。
type UnhandledMessage struct {
	Group   string
	Address string
	Channel string
	Body    string
}

// Observers 是宿主可订阅的通知集合。
type Observers struct {
	ClientOpened     Topic[ClientEvent]
	ClientClosed     Topic[ClientEvent]
	DeviceArrival    Topic[capture.DeviceInfo]
	DeviceRemoval    Topic[capture.DeviceInfo]
	BatteryLevel     Topic[BatteryEvent]
	UnhandledMessage Topic[UnhandledMessage]
	JSONRPCVersion   Topic[string]
}

var _ relay.Host = (*hostAdapter)(nil)

type hostAdapter struct {
	o *Observers
}

func (h hostAdapter) DeviceArrived(info capture.DeviceInfo) {
	h.o.DeviceArrival.Publish(info)
}

func (h hostAdapter) DeviceRemoved(info capture.DeviceInfo) {
	h.o.DeviceRemoval.Publish(info)
}

func (h hostAdapter) BatteryLevelChanged(info capture.DeviceInfo, level int) {
	h.o.BatteryLevel.Publish(BatteryEvent{Device: info, Level: level})
}
