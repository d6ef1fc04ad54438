package bridge

import (
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
)

var _ transport.Handler = (*pageHandler)(nil)

// pageHandler 把 WebSocket 连接的生命周期映射为宿主页面事件：
// 一条连接是一个页面表面，地址变化是页面跳转，断开是页面表面销毁。
type pageHandler struct {
	b *Bridge
}

// PageHandler 返回供 transport.Acceptor 使用的连接处理器。
func (b *Bridge) PageHandler() transport.Handler {
	return pageHandler{b: b}
}

func (h pageHandler) OnConnected(conn *transport.Conn) {
	h.b.log.Info("page connected", zap.String("conn", conn.ID()), log.FieldAddress(conn.Address()))
}

func (h pageHandler) OnMessage(conn *transport.Conn, channel string, message string) {
	h.b.HandleScriptMessage(conn, channel, message)
}

func (h pageHandler) OnNavigated(conn *transport.Conn, previous string) {
	h.b.log.Info("page navigated", zap.String("conn", conn.ID()),
		zap.String("from", previous), zap.String("to", conn.Address()))
	h.b.closePage(conn.Group(), previous)
}

func (h pageHandler) OnClosed(conn *transport.Conn, err error) {
	h.b.log.Info("page disconnected", zap.String("conn", conn.ID()), zap.Error(err))
	h.b.CloseClientsForGroup(conn.Group())
}

// OnError 只记录日志，计数由 transport 完成。握手失败时 conn 为 nil。
func (h pageHandler) OnError(conn *transport.Conn, stage transport.Stage, err error) {
	id := ""
	if conn != nil {
		id = conn.ID()
	}
	h.b.log.RatedWarn(1, "page connection error", zap.String("conn", id),
		zap.String("stage", string(stage)), zap.Error(err))
}
