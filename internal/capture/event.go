package capture

// EventID 是事件通知中 event.id 的取值。
type EventID int

const (
	EventNotInitialized       EventID = 0
	EventDeviceArrival        EventID = 1
	EventDeviceRemoval        EventID = 2
	EventTerminate            EventID = 3
	EventError                EventID = 4
	EventDecodedData          EventID = 5
	EventPower                EventID = 6
	EventButtons              EventID = 7
	EventBatteryLevel         EventID = 8
	EventListenerStarted      EventID = 9
	EventDeviceOwnership      EventID = 10
	EventDeviceManagerArrival EventID = 11
	EventDeviceManagerRemoval EventID = 12
)

var eventNames = map[EventID]string{
	EventNotInitialized:       "not_initialized",
	EventDeviceArrival:        "device_arrival",
	EventDeviceRemoval:        "device_removal",
	EventTerminate:            "terminate",
	EventError:                "error",
	EventDecodedData:          "decoded_data",
	EventPower:                "power",
	EventButtons:              "buttons",
	EventBatteryLevel:         "battery_level",
	EventListenerStarted:      "listener_started",
	EventDeviceOwnership:      "device_ownership",
	EventDeviceManagerArrival: "device_manager_arrival",
	EventDeviceManagerRemoval: "device_manager_removal",
}

func (id EventID) String() string {
	if name, ok := eventNames[id]; ok {
		return name
	}
	return "unknown"
}

// IsPresence 判断事件是否为设备或设备管理器的到达/移除。
func (id EventID) IsPresence() bool {
	switch id {
	case EventDeviceArrival, EventDeviceRemoval, EventDeviceManagerArrival, EventDeviceManagerRemoval:
		return true
	}
	return false
}

// IsArrival 判断事件是否为到达类事件。
func (id EventID) IsArrival() bool {
	return id == EventDeviceArrival || id == EventDeviceManagerArrival
}

// EventDataType 是事件通知中 event.type 的取值。
type EventDataType int

const (
	EventDataNone        EventDataType = 0
	EventDataByte        EventDataType = 1
	EventDataULong       EventDataType = 2
	EventDataArray       EventDataType = 3
	EventDataString      EventDataType = 4
	EventDataDecodedData EventDataType = 5
	EventDataDeviceInfo  EventDataType = 6
)

// DeviceType 是设备类型编码，原样透传给页面。
type DeviceType int

// DeviceInfo 描述一台设备或设备管理器。
type DeviceInfo struct {
	GUID string
	Name string
	Type DeviceType
}

// DecodedData 是一次扫码得到的数据。
type DecodedData struct {
	Data           []byte
	DataSourceID   DataSourceID
	DataSourceName string
}

// Event 是设备层推送给订阅者的事件。
//
// Value 承载 power / battery / buttons 的原始数值；Data 仅对 decoded data 有效。
type Event struct {
	Kind   EventID
	Device DeviceInfo
	Result Result
	Value  int
	Data   *DecodedData
}

// Subscriber 接收设备层事件。
type Subscriber interface {
	OnEvent(Event)
}

// SubscriberFunc 将普通函数适配为 Subscriber。
type SubscriberFunc func(Event)

func (f SubscriberFunc) OnEvent(e Event) {
	f(e)
}
