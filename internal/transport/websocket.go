package transport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/typeutil"
)

// Config 描述 WebSocket 接入层的配置。
//
// 说明：
//   - SendQueueSize 控制每个连接的发送缓冲队列大小；
//   - ReadTimeout/WriteTimeout 控制单次读写的超时时间（为 0 表示不设置 deadline）；
//   - PingInterval 大于 0 时定期发送 ping，ReadTimeout 随 pong 顺延；
//   - AllowedOrigins 为空时不校验 Origin。
type Config struct {
	Path           string        `mapstructure:"path"`
	SendQueueSize  int           `mapstructure:"send_queue_size"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	PingInterval   time.Duration `mapstructure:"ping_interval"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

func DefaultConfig() Config {
	return Config{
		Path:          "/ws",
		SendQueueSize: 256,
		WriteTimeout:  10 * time.Second,
	}
}

// Frame 是 WebSocket 上的一帧。
//
// 入站帧：Channel 为页面的消息通道名，Message 为 JSON-RPC 文本；
// 仅携带 Address 的帧表示页面跳转。
// 出站帧：Channel 为 reply 或 notify。
type Frame struct {
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
	Address string `json:"address,omitempty"`
}

// Handler 由使用者实现，在连接的各个阶段插入业务逻辑。
//
// 同一连接上的 OnMessage / OnNavigated 串行调用。
type Handler interface {
	OnConnected(conn *Conn)
	OnMessage(conn *Conn, channel string, message string)
	// OnNavigated 在页面报告新地址后调用，previous 为跳转前的地址。
	OnNavigated(conn *Conn, previous string)
	OnClosed(conn *Conn, err error)
	OnError(conn *Conn, stage Stage, err error)
}

const defaultInboundQueueSize = 64

// Acceptor 把 HTTP 请求升级为 WebSocket，每条连接对应一个页面表面。
type Acceptor struct {
	cfg      Config
	handler  Handler
	upgrader websocket.Upgrader
	conns    *typeutil.ConcurrentSet[*Conn]

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ http.Handler = (*Acceptor)(nil)

func NewAcceptor(cfg Config, h Handler) *Acceptor {
	if cfg.SendQueueSize <= 0 {
		cfg.SendQueueSize = DefaultConfig().SendQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	a := &Acceptor{
		cfg:     cfg,
		handler: h,
		conns:   typeutil.NewConcurrentSet[*Conn](),
		ctx:     ctx,
		cancel:  cancel,
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     a.checkOrigin,
	}
	return a
}

func (a *Acceptor) checkOrigin(r *http.Request) bool {
	if len(a.cfg.AllowedOrigins) == 0 {
		return true
	}
	return lo.Contains(a.cfg.AllowedOrigins, r.Header.Get("Origin"))
}

// Conns 返回当前活跃连接的快照。
func (a *Acceptor) Conns() []*Conn {
	return a.conns.Collect()
}

// Close 关闭所有连接并等待连接协程退出。
func (a *Acceptor) Close() error {
	a.cancel()
	for _, c := range a.conns.Collect() {
		c.Close()
	}
	a.wg.Wait()
	return nil
}

// ServeHTTP 处理升级请求。页面地址取自 address 查询参数，缺省时使用 Referer。
func (a *Acceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if a.ctx.Err() != nil {
		http.Error(w, "acceptor closed", http.StatusServiceUnavailable)
		return
	}
	ws, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade 已经写回了错误响应。
		metrics.TransportErrors.WithLabelValues(string(StageHandshake)).Inc()
		a.handler.OnError(nil, StageHandshake, err)
		return
	}

	address := r.URL.Query().Get("address")
	if address == "" {
		address = r.Referer()
	}
	conn := newConn(a.ctx, uuid.NewString(), ws, address, a.cfg)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.handleConnection(conn)
	}()
}

// handleConnection 处理单个连接的生命周期。
//
// 流程：
//  1. 注册连接并回调 OnConnected；
//  2. 读协程读取并解码帧，投递到连接级队列；
//  3. 当前协程按顺序消费队列，回调 OnMessage / OnNavigated；
//  4. 读失败或连接关闭后回调 OnClosed。
func (a *Acceptor) handleConnection(conn *Conn) {
	a.conns.Insert(conn)
	metrics.TransportConnections.Inc()
	defer func() {
		a.conns.TryRemove(conn)
		metrics.TransportConnections.Dec()
	}()

	go conn.writePump(a.handler)
	a.handler.OnConnected(conn)

	frames := make(chan Frame, defaultInboundQueueSize)
	var cause error
	done := make(chan struct{})
	go func() {
		defer close(done)
		cause = conn.readLoop(a.handler, frames)
		close(frames)
	}()

	for frame := range frames {
		if frame.Channel == "" && frame.Address != "" {
			if previous := conn.navigate(frame.Address); previous != frame.Address {
				a.handler.OnNavigated(conn, previous)
			}
			continue
		}
		a.handler.OnMessage(conn, frame.Channel, frame.Message)
	}
	<-done

	conn.Close()
	a.handler.OnClosed(conn, cause)
}

// Conn 是一条页面 WebSocket 连接，实现 Target。
type Conn struct {
	id      string
	ws      *websocket.Conn
	cfg     Config
	log     *log.MLogger
	address struct {
		sync.RWMutex
		v string
	}

	send   chan []byte
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

var _ Target = (*Conn)(nil)

func newConn(parent context.Context, id string, ws *websocket.Conn, address string, cfg Config) *Conn {
	ctx, cancel := context.WithCancel(parent)
	c := &Conn{
		id:     id,
		ws:     ws,
		cfg:    cfg,
		send:   make(chan []byte, cfg.SendQueueSize),
		ctx:    ctx,
		cancel: cancel,
		log:    log.With(log.FieldComponent("websocket"), zap.String("conn", id)),
	}
	c.address.v = address
	return c
}

func (c *Conn) ID() string {
	return c.id
}

func (c *Conn) Group() string {
	return c.id
}

func (c *Conn) Address() string {
	c.address.RLock()
	defer c.address.RUnlock()
	return c.address.v
}

func (c *Conn) navigate(address string) string {
	c.address.Lock()
	defer c.address.Unlock()
	previous := c.address.v
	c.address.v = address
	return previous
}

// Deliver 把消息投递到发送队列，队列已满或连接已关闭时返回错误，不阻塞调用方。
func (c *Conn) Deliver(ch Channel, payload string) error {
	data, err := json.Marshal(Frame{Channel: ch.String(), Message: payload})
	if err != nil {
		metrics.TransportErrors.WithLabelValues(string(StageEncode)).Inc()
		return errors.Wrap(err, "encode frame")
	}
	if c.ctx.Err() != nil {
		metrics.TransportDroppedFrames.Inc()
		return errTransportClosed(c.Address())
	}
	select {
	case c.send <- data:
		metrics.TransportPendingFrames.Inc()
		return nil
	default:
		metrics.TransportDroppedFrames.Inc()
		return errQueueFull(c.Address(), cap(c.send))
	}
}

// Close 关闭连接，可重复调用。
func (c *Conn) Close() {
	c.once.Do(func() {
		c.cancel()
		_ = c.ws.Close()
	})
}

func (c *Conn) readLoop(h Handler, frames chan<- Frame) error {
	if c.cfg.ReadTimeout > 0 {
		_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		c.ws.SetPongHandler(func(string) error {
			return c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		})
	}
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				c.ctx.Err() != nil {
				return nil
			}
			metrics.TransportErrors.WithLabelValues(string(StageRecv)).Inc()
			h.OnError(c, StageRecv, err)
			return err
		}
		if c.cfg.ReadTimeout > 0 {
			_ = c.ws.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		}

		var frame Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			// 与脚本通道一致，无法解析的流量直接忽略。
			metrics.TransportErrors.WithLabelValues(string(StageDecode)).Inc()
			c.log.Debug("drop undecodable frame", zap.Error(err))
			continue
		}
		select {
		case frames <- frame:
		case <-c.ctx.Done():
			return nil
		}
	}
}

// writePump 是连接上唯一的写协程，避免并发写 conn 导致帧交叉。
func (c *Conn) writePump(h Handler) {
	var ping <-chan time.Time
	if c.cfg.PingInterval > 0 {
		ticker := time.NewTicker(c.cfg.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.ctx.Done():
			pending := len(c.send)
			metrics.TransportPendingFrames.Sub(float64(pending))
			return
		case data := <-c.send:
			metrics.TransportPendingFrames.Dec()
			if err := c.write(websocket.TextMessage, data); err != nil {
				metrics.TransportErrors.WithLabelValues(string(StageSend)).Inc()
				h.OnError(c, StageSend, err)
				c.Close()
				return
			}
		case <-ping:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

func (c *Conn) write(messageType int, data []byte) error {
	if c.cfg.WriteTimeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return c.ws.WriteMessage(messageType, data)
}
