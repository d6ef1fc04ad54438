package session

import (
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/internal/rpc"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// State 是客户端会话的生命周期状态。
type State int

const (
	StateCreated State = iota
	StateOpened
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateOpened:
		return "opened"
	default:
		return "closed"
	}
}

// ClientSession 是一个页面与桥接核心之间的逻辑连接。
//
// 会话绑定创建时的页面地址，之后不再改变；向已跳转到其它地址的页面投递消息
// 属于会话生命周期管理的缺陷，按内部不变量被破坏处理。
type ClientSession struct {
	registry *Registry
	target   transport.Target
	log      *log.MLogger

	mu      sync.RWMutex
	state   State
	handle  int64
	token   string
	address string
	appInfo capture.AppInfo
	devices map[int64]*DeviceSession
	// known 记录已经向页面宣告过的设备，resynchronize 以此计算差集。
	known map[string]presence
}

// presence 是一条已宣告的设备记录。
type presence struct {
	info    capture.DeviceInfo
	manager bool
}

func newClientSession(r *Registry, target transport.Target) *ClientSession {
	return &ClientSession{
		registry: r,
		target:   target,
		devices:  make(map[int64]*DeviceSession),
		known:    make(map[string]presence),
		log:      log.With(log.FieldComponent("client-session")),
	}
}

// open 校验应用凭据并分配句柄与所有权令牌。
func (s *ClientSession) open(appInfo capture.AppInfo) (int64, error) {
	if !s.registry.layer.VerifyAppInfo(appInfo) {
		return 0, merr.WrapErrInvalidAppInfo(appInfo.AppID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.appInfo = appInfo
	s.handle = NextHandle()
	s.token = uuid.NewString()
	s.address = s.target.Address()
	s.state = StateOpened
	s.log = s.log.With(log.FieldHandle(s.handle), log.FieldAddress(s.address))
	return s.handle, nil
}

func (s *ClientSession) Handle() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handle
}

func (s *ClientSession) Token() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.token
}

func (s *ClientSession) Target() transport.Target {
	return s.target
}

// OpenedBy 判断 target 是否就是打开本会话的页面：同一表面且地址与绑定地址一致。
func (s *ClientSession) OpenedBy(target transport.Target) bool {
	return target.Group() == s.target.Group() && target.Address() == s.Address()
}

// Address 返回会话创建时绑定的页面地址。
func (s *ClientSession) Address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.address
}

func (s *ClientSession) AppInfo() capture.AppInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.appInfo
}

func (s *ClientSession) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *ClientSession) IsOpen() bool {
	return s.State() == StateOpened
}

// OpenDevice 在当前会话下打开设备：登记、回复设备句柄，然后宣告所有权。
func (s *ClientSession) OpenDevice(device capture.Device, id any) *DeviceSession {
	ds := newDeviceSession(device, s.registry.versions)

	s.mu.Lock()
	s.devices[ds.handle] = ds
	s.mu.Unlock()
	metrics.OpenDevices.Inc()

	s.log.Info("device opened", log.FieldDevice(ds.GUID()), zap.Int64("deviceHandle", ds.handle))
	s.Reply(rpc.NewResult(s.registry.versions.Current(), id, rpc.HandleResult{Handle: ds.handle}))
	s.ChangeOwnership(ds.handle, true)
	return ds
}

// CloseDevice 移除一个设备会话，句柄未知时返回 false，由调用方回复 InvalidHandle。
func (s *ClientSession) CloseDevice(handle int64) bool {
	s.mu.Lock()
	_, ok := s.devices[handle]
	delete(s.devices, handle)
	s.mu.Unlock()
	if ok {
		metrics.OpenDevices.Dec()
	}
	return ok
}

// CloseAll 无条件清空所有设备会话，返回被关闭的数量。
func (s *ClientSession) CloseAll() int {
	s.mu.Lock()
	n := len(s.devices)
	s.devices = make(map[int64]*DeviceSession)
	s.mu.Unlock()
	metrics.OpenDevices.Sub(float64(n))
	return n
}

// Close 处理作用于本会话的 close 请求：自身句柄关闭全部设备，设备句柄只关闭该设备。
// 成功时回复固定的 {"result":0}。设备句柄未知时只回复 InvalidHandle，
// 不再追加成功回复，每个 close 请求恰好得到一条回复。
func (s *ClientSession) Close(handle int64, id any) bool {
	if handle == s.Handle() {
		n := s.CloseAll()
		s.log.Info("all devices closed", zap.Int("count", n))
	} else if !s.CloseDevice(handle) {
		s.ReplyError(merr.WrapErrInvalidHandle(handle), "", handle, id)
		return false
	}
	s.Reply(rpc.NewResult(s.registry.versions.Current(), id, 0))
	return true
}

func (s *ClientSession) Device(handle int64) (*DeviceSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.devices[handle]
	return ds, ok
}

// DeviceByGUID 返回该会话为某个 GUID 打开的设备会话。
func (s *ClientSession) DeviceByGUID(guid string) (*DeviceSession, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Find(lo.Values(s.devices), func(ds *DeviceSession) bool {
		return ds.GUID() == guid
	})
}

// HasOpened 判断会话是否打开过该 GUID 的设备。
func (s *ClientSession) HasOpened(guid string) bool {
	_, ok := s.DeviceByGUID(guid)
	return ok
}

// Devices 返回按句柄排序的设备会话快照。
func (s *ClientSession) Devices() []*DeviceSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	handles := lo.Keys(s.devices)
	slices.Sort(handles)
	return lo.Map(handles, func(h int64, _ int) *DeviceSession { return s.devices[h] })
}

// GetProperty 按句柄路由属性读取：会话自身句柄作用于设备层全局，设备句柄作用于对应设备。
func (s *ClientSession) GetProperty(handle int64, id any, p capture.Property) {
	if handle == s.Handle() {
		s.registry.layer.GetProperty(p, func(result capture.Result, got *capture.Property) {
			resp := getPropertyReply(s.registry.versions.Current(), id, handle, "", "the device layer", result, got)
			s.replyLater(handle, resp)
		})
		return
	}
	if ds, ok := s.Device(handle); ok {
		ds.GetProperty(p, id, func(resp *rpc.Response) {
			s.replyLater(handle, resp)
		})
		return
	}
	s.ReplyError(merr.WrapErrInvalidHandle(handle), "", handle, id)
}

// SetProperty 按句柄路由属性写入，规则同 GetProperty。
func (s *ClientSession) SetProperty(handle int64, id any, p capture.Property) {
	if handle == s.Handle() {
		s.registry.layer.SetProperty(p, func(result capture.Result, _ *capture.Property) {
			resp := setPropertyReply(s.registry.versions.Current(), id, handle, "", "the device layer", result)
			s.replyLater(handle, resp)
		})
		return
	}
	if ds, ok := s.Device(handle); ok {
		ds.SetProperty(p, id, func(resp *rpc.Response) {
			s.replyLater(handle, resp)
		})
		return
	}
	s.ReplyError(merr.WrapErrInvalidHandle(handle), "", handle, id)
}

// replyLater 把设备层回调切回执行上下文；会话或设备在此期间已关闭时丢弃回复。
func (s *ClientSession) replyLater(handle int64, resp *rpc.Response) {
	s.registry.post(func() {
		if !s.registry.isLive(s, handle) {
			s.log.Debug("drop late property reply", zap.Int64("target", handle))
			metrics.OutboundMessages.WithLabelValues(transport.ChannelReply.String(), metrics.OutcomeNoTarget).Inc()
			return
		}
		s.Reply(resp)
	})
}

// ChangeOwnership 通知页面某个设备句柄的所有权变化。
func (s *ClientSession) ChangeOwnership(deviceHandle int64, owned bool) {
	token := UnownedToken
	if owned {
		token = s.Token()
	}
	s.Notify(rpc.NewNotification(s.registry.versions.Current(), deviceHandle, OwnershipEvent(token)))
}

// NotifyPresence 向页面宣告设备到达或移除，并更新已宣告设备集合。
func (s *ClientSession) NotifyPresence(kind capture.EventID, info capture.DeviceInfo) {
	s.mu.Lock()
	if kind.IsArrival() {
		s.known[info.GUID] = presence{info: info, manager: kind == capture.EventDeviceManagerArrival}
	} else {
		delete(s.known, info.GUID)
	}
	s.mu.Unlock()
	s.NotifyEvent(PresenceEvent(kind, info))
}

func (s *ClientSession) knownDevices() map[string]presence {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return lo.Assign(s.known)
}

// Resume 在会话成为活跃会话时调用，补发挂起期间错过的设备到达/移除。
func (s *ClientSession) Resume() error {
	if err := s.checkOpened("resume"); err != nil {
		return err
	}
	s.log.Debug("client session resumed")
	s.registry.Resynchronize(s)
	return nil
}

// Suspend 在会话失去活跃状态时调用。
func (s *ClientSession) Suspend() error {
	if err := s.checkOpened("suspend"); err != nil {
		return err
	}
	s.log.Debug("client session suspended")
	return nil
}

func (s *ClientSession) checkOpened(op string) error {
	if s.IsOpen() {
		return nil
	}
	metrics.InvariantViolations.WithLabelValues("not_opened").Inc()
	s.log.DPanic("client session used before open", zap.String("op", op), zap.Stringer("state", s.State()))
	return merr.WrapErrInvariantViolate("session opened", fmt.Sprintf("%s called in state %s", op, s.State()))
}

// Reply 通过 reply 通道回复页面请求。
func (s *ClientSession) Reply(resp *rpc.Response) {
	_ = s.deliver(transport.ChannelReply, resp)
}

// Notify 通过 receive 通道向页面推送事件。
func (s *ClientSession) Notify(resp *rpc.Response) {
	_ = s.deliver(transport.ChannelNotify, resp)
}

// ReplyError 构造错误回复并通过 reply 通道发送。
func (s *ClientSession) ReplyError(err error, message string, handle int64, id any) {
	s.Reply(rpc.NewError(s.registry.versions.Current(), err, message, handle, id))
}

// NotifyEvent 推送一条以会话自身句柄为目标的事件通知。
func (s *ClientSession) NotifyEvent(event rpc.Event) {
	s.Notify(rpc.NewNotification(s.registry.versions.Current(), s.Handle(), event))
}

// NotifyError 通过 receive 通道推送一条不对应任何请求的错误，id 使用默认值。
func (s *ClientSession) NotifyError(err error, message string) {
	s.Notify(rpc.NewError(s.registry.versions.Current(), err, message, s.Handle(), nil))
}

func (s *ClientSession) deliver(ch transport.Channel, resp *rpc.Response) error {
	if current := s.target.Address(); current != s.Address() {
		metrics.InvariantViolations.WithLabelValues("stale_target").Inc()
		s.log.DPanic("client session delivering to a page it was not opened for",
			zap.String("current", current), zap.Stringer("channel", ch))
		return merr.WrapErrInvariantViolate("session target", "page navigated to "+current)
	}

	payload, err := json.MarshalToString(resp)
	if err != nil {
		metrics.OutboundMessages.WithLabelValues(ch.String(), metrics.OutcomeFailed).Inc()
		s.log.Warn("failed to encode outbound message", zap.Error(err))
		return err
	}
	if resp.Error != nil {
		metrics.ErrorReplies.WithLabelValues(fmt.Sprint(resp.Error.Code)).Inc()
	}
	if err := s.target.Deliver(ch, payload); err != nil {
		metrics.OutboundMessages.WithLabelValues(ch.String(), metrics.OutcomeFailed).Inc()
		s.log.Warn("failed to deliver outbound message", zap.Stringer("channel", ch), zap.Error(err))
		return err
	}
	metrics.OutboundMessages.WithLabelValues(ch.String(), metrics.OutcomeDelivered).Inc()
	return nil
}

func (s *ClientSession) markClosed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateClosed
}
