package session

import (
	"github.com/samber/lo"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/property"
	"github.com/lk2023060901/capture-bridge-go/internal/rpc"
)

// UnownedToken 是设备所有权被收回时下发的占位令牌。
const UnownedToken = "00000000-0000-0000-0000-000000000000"

// PresenceEvent 构造设备或设备管理器到达/移除的事件体，设备名会被转义。
func PresenceEvent(kind capture.EventID, info capture.DeviceInfo) rpc.Event {
	return rpc.Event{
		ID:   int(kind),
		Type: int(capture.EventDataDeviceInfo),
		Value: map[string]any{
			"guid": info.GUID,
			"name": property.Escape(info.Name),
			"type": int(info.Type),
		},
	}
}

// DecodedDataEvent 构造扫码数据事件体。
func DecodedDataEvent(data *capture.DecodedData) rpc.Event {
	return rpc.Event{
		ID:   int(capture.EventDecodedData),
		Type: int(capture.EventDataDecodedData),
		Value: map[string]any{
			"data": lo.Map(data.Data, func(b byte, _ int) int { return int(b) }),
			"id":   int(data.DataSourceID),
			"name": data.DataSourceName,
		},
	}
}

// ByteEvent 构造 power / battery / buttons 这类单字节状态事件体。
func ByteEvent(kind capture.EventID, value int) rpc.Event {
	return rpc.Event{
		ID:    int(kind),
		Type:  int(capture.EventDataByte),
		Value: value,
	}
}

// OwnershipEvent 构造所有权变更事件体。
func OwnershipEvent(token string) rpc.Event {
	return rpc.Event{
		ID:    int(capture.EventDeviceOwnership),
		Type:  int(capture.EventDataString),
		Value: token,
	}
}
