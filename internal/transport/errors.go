package transport

import (
	"github.com/lk2023060901/capture-bridge-go/pkg/util/funcutil"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// Stage 表示页面收发链路中的处理阶段。
//
// 主要用于在回调中标记错误发生的位置，便于监控与排查。
type Stage string

const (
	StageHandshake Stage = "handshake"
	StageRecv      Stage = "recv"   // 读取 WebSocket 帧
	StageDecode    Stage = "decode" // 帧 -> channel + message
	StageEncode    Stage = "encode" // 回复 -> 帧
	StageSend      Stage = "send"   // 写出 WebSocket 帧
)

func errTransportClosed(address string) error {
	return merr.WrapErrTransportClosed(funcutil.TrimScheme(address))
}

func errQueueFull(address string, capacity int) error {
	return merr.WrapErrTransportQueueFull(funcutil.TrimScheme(address), capacity)
}
