package mqttlayer

import (
	"github.com/lk2023060901/capture-bridge-go/internal/capture"
)

// 请求操作。
const (
	opGet = "get"
	opSet = "set"
)

// presence 事件取值。
const (
	presenceArrival = "arrival"
	presenceRemoval = "removal"
)

// status 事件取值。
const (
	statusPower   = "power"
	statusBattery = "battery"
	statusButtons = "buttons"
)

// wireProperty 与页面侧属性格式一致，value 不做转义。
type wireProperty struct {
	ID    int `json:"id"`
	Type  int `json:"type"`
	Value any `json:"value,omitempty"`
}

type wireRequest struct {
	CorrelationID string       `json:"correlationId"`
	ReplyTo       string       `json:"replyTo"`
	Op            string       `json:"op"`
	Property      wireProperty `json:"property"`
}

type wireReply struct {
	CorrelationID string        `json:"correlationId"`
	Result        int32         `json:"result"`
	Property      *wireProperty `json:"property,omitempty"`
}

type wirePresence struct {
	Event   string `json:"event"`
	Manager bool   `json:"manager"`
	Name    string `json:"name"`
	Type    int    `json:"type"`
	Result  int32  `json:"result"`
}

// kind 返回 presence 消息对应的事件类型。
func (p wirePresence) kind() (capture.EventID, bool) {
	switch {
	case p.Event == presenceArrival && p.Manager:
		return capture.EventDeviceManagerArrival, true
	case p.Event == presenceArrival:
		return capture.EventDeviceArrival, true
	case p.Event == presenceRemoval && p.Manager:
		return capture.EventDeviceManagerRemoval, true
	case p.Event == presenceRemoval:
		return capture.EventDeviceRemoval, true
	}
	return capture.EventNotInitialized, false
}

// wireDecoded 的 data 为 base64 编码的原始字节。
type wireDecoded struct {
	Data       []byte `json:"data"`
	SourceID   int    `json:"sourceId"`
	SourceName string `json:"sourceName"`
	Result     int32  `json:"result"`
}

type wireStatus struct {
	Kind  string `json:"kind"`
	Value int    `json:"value"`
}

func (s wireStatus) event() (capture.EventID, bool) {
	switch s.Kind {
	case statusPower:
		return capture.EventPower, true
	case statusBattery:
		return capture.EventBatteryLevel, true
	case statusButtons:
		return capture.EventButtons, true
	}
	return capture.EventNotInitialized, false
}

type wireLayerError struct {
	Result int32 `json:"result"`
}
