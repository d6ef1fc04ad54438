package mqttlayer

import (
	"strings"
)

// 设备相关主题的最后一级。
const (
	suffixPresence = "presence"
	suffixDecoded  = "decoded"
	suffixStatus   = "status"

	// layerTarget 是设备层全局属性请求使用的目标名。
	layerTarget = "layer"
)

// Topics 按前缀生成设备层使用的主题。
//
//	{prefix}/devices/{guid}/presence   设备到达/移除（入）
//	{prefix}/devices/{guid}/decoded    扫码数据（入）
//	{prefix}/devices/{guid}/status     电量/电源/按键（入）
//	{prefix}/errors                    设备层错误（入）
//	{prefix}/requests/{guid|layer}     属性读写请求（出）
//	{prefix}/replies/{clientID}        属性读写应答（入）
type Topics struct {
	Prefix string
}

func (t Topics) DevicePresence(guid string) string {
	return t.Prefix + "/devices/" + guid + "/" + suffixPresence
}

func (t Topics) DeviceDecoded(guid string) string {
	return t.Prefix + "/devices/" + guid + "/" + suffixDecoded
}

func (t Topics) DeviceStatus(guid string) string {
	return t.Prefix + "/devices/" + guid + "/" + suffixStatus
}

// AllDevices 匹配任意设备的任意事件。
func (t Topics) AllDevices() string {
	return t.Prefix + "/devices/+/+"
}

func (t Topics) Errors() string {
	return t.Prefix + "/errors"
}

// Request 返回发往 target 的请求主题，target 为空时发往设备层本身。
func (t Topics) Request(target string) string {
	if target == "" {
		target = layerTarget
	}
	return t.Prefix + "/requests/" + target
}

func (t Topics) Replies(clientID string) string {
	return t.Prefix + "/replies/" + clientID
}

// parseDeviceTopic 从设备主题中取出 guid 与最后一级。
func (t Topics) parseDeviceTopic(topic string) (guid, suffix string, ok bool) {
	rest, found := strings.CutPrefix(topic, t.Prefix+"/devices/")
	if !found {
		return "", "", false
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" {
		return "", "", false
	}
	return parts[0], parts[1], true
}
