package session

import (
	"cmp"
	"slices"
	"sync"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/rpc"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/typeutil"
)

// SubscriberFactory 为活跃会话构造设备层事件订阅者，订阅者只持有会话句柄。
type SubscriberFactory func(handle int64) capture.Subscriber

// Executor 把一个函数投递到单一执行上下文中运行。
type Executor func(fn func())

// Registry 持有所有客户端会话，并维护唯一的活跃会话。
//
// 特性：
//   - 所有变更都应在单一执行上下文中发生；读写锁只用于让监控等旁路读取得到一致快照；
//   - 活跃会话切换时重新指向设备层唯一的事件订阅者，这是一次交接而不是追加订阅；
//   - Range 在遍历前复制一份会话切片，避免在持锁情况下执行用户回调。
type Registry struct {
	layer    capture.Layer
	versions *rpc.VersionTracker
	post     Executor

	subscriberFor SubscriberFactory
	neutral       capture.Subscriber

	mu       sync.RWMutex
	sessions map[int64]*ClientSession
	active   *ClientSession
	previous *ClientSession
}

func NewRegistry(layer capture.Layer, versions *rpc.VersionTracker, post Executor) *Registry {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Registry{
		layer:    layer,
		versions: versions,
		post:     post,
		sessions: make(map[int64]*ClientSession),
	}
}

// UseSubscribers 设置活跃会话的订阅者工厂，以及没有活跃会话时使用的中立订阅者。
func (r *Registry) UseSubscribers(factory SubscriberFactory, neutral capture.Subscriber) {
	r.subscriberFor = factory
	r.neutral = neutral
}

func (r *Registry) Layer() capture.Layer {
	return r.layer
}

func (r *Registry) Versions() *rpc.VersionTracker {
	return r.versions
}

// OpenClient 创建并打开一个客户端会话，凭据校验失败时返回 InvalidAppInfo。
func (r *Registry) OpenClient(appInfo capture.AppInfo, target transport.Target) (*ClientSession, error) {
	s := newClientSession(r, target)
	handle, err := s.open(appInfo)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.sessions[handle] = s
	r.mu.Unlock()
	metrics.ClientSessions.Inc()

	log.Info("client session opened", log.FieldHandle(handle), log.FieldAddress(target.Address()))
	return s, nil
}

// Activate 把 s 设为活跃会话：保存前一个活跃会话、恢复 s，并把设备层订阅者交接给 s。
func (r *Registry) Activate(s *ClientSession) {
	r.mu.Lock()
	if r.active == s {
		r.mu.Unlock()
		return
	}
	r.previous = r.active
	r.active = s
	r.mu.Unlock()

	if err := s.Resume(); err != nil {
		log.Warn("failed to resume client session", log.FieldHandle(s.Handle()), zap.Error(err))
	}
	r.pushSubscriber(s)
	log.Info("client session activated", log.FieldHandle(s.Handle()), log.FieldAddress(s.Address()))
}

// Deactivate 挂起当前活跃会话并清空活跃会话，设备层订阅者切回中立订阅者。
func (r *Registry) Deactivate() {
	r.mu.Lock()
	s := r.active
	r.active = nil
	r.mu.Unlock()
	if s == nil {
		return
	}

	if err := s.Suspend(); err != nil {
		log.Warn("failed to suspend client session", log.FieldHandle(s.Handle()), zap.Error(err))
	}
	r.pushSubscriber(nil)
	log.Info("client session deactivated", log.FieldHandle(s.Handle()))
}

// RefreshSubscriber 让设备层订阅者重新指向当前活跃会话，没有活跃会话时指向中立订阅者。
func (r *Registry) RefreshSubscriber() {
	r.pushSubscriber(r.Active())
}

func (r *Registry) pushSubscriber(s *ClientSession) {
	if s != nil && r.subscriberFor != nil {
		r.layer.PushSubscriber(r.subscriberFor(s.Handle()))
		return
	}
	if r.neutral != nil {
		r.layer.PushSubscriber(r.neutral)
	}
}

// CloseSession 关闭句柄对应的会话：关闭其全部设备，若为活跃会话先取消活跃，再从注册表移除。
func (r *Registry) CloseSession(handle int64) (*ClientSession, bool) {
	s, ok := r.Get(handle)
	if !ok {
		return nil, false
	}

	s.CloseAll()
	if r.Active() == s {
		r.Deactivate()
	}

	r.mu.Lock()
	delete(r.sessions, handle)
	if r.previous == s {
		r.previous = nil
	}
	r.mu.Unlock()

	s.markClosed()
	metrics.ClientSessions.Dec()
	log.Info("client session closed", log.FieldHandle(handle))
	return s, true
}

func (r *Registry) Get(handle int64) (*ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[handle]
	return s, ok
}

func (r *Registry) Active() *ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active
}

func (r *Registry) Previous() *ClientSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.previous
}

// Lookup 返回为该页面地址打开的会话。多个会话匹配时取句柄最小的一个。
func (r *Registry) Lookup(address string) (*ClientSession, bool) {
	matches := r.filter(func(s *ClientSession) bool { return s.Address() == address })
	if len(matches) == 0 {
		return nil, false
	}
	return matches[0], true
}

// LookupAll 返回某个页面表面上打开的全部会话。
func (r *Registry) LookupAll(group string) []*ClientSession {
	return r.filter(func(s *ClientSession) bool { return s.Target().Group() == group })
}

// Sessions 返回按句柄排序的会话快照。
func (r *Registry) Sessions() []*ClientSession {
	return r.filter(func(*ClientSession) bool { return true })
}

func (r *Registry) filter(pred func(*ClientSession) bool) []*ClientSession {
	r.mu.RLock()
	snapshot := lo.Values(r.sessions)
	r.mu.RUnlock()

	out := lo.Filter(snapshot, func(s *ClientSession, _ int) bool { return pred(s) })
	slices.SortFunc(out, func(a, b *ClientSession) int {
		return cmp.Compare(a.Handle(), b.Handle())
	})
	return out
}

// Range 依次对每个会话调用 fn，fn 返回 false 时停止。
func (r *Registry) Range(fn func(s *ClientSession) bool) {
	for _, s := range r.Sessions() {
		if !fn(s) {
			return
		}
	}
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// OwnerOfDevice 返回持有该设备句柄的会话。
func (r *Registry) OwnerOfDevice(deviceHandle int64) (*ClientSession, bool) {
	return lo.Find(r.Sessions(), func(s *ClientSession) bool {
		_, ok := s.Device(deviceHandle)
		return ok
	})
}

// HandOff 在 owner 打开 guid 之后调用：若前一个活跃会话也打开过该设备，通知其失去所有权。
// 前一个会话的设备句柄仍然保留，所有权变化只以通知的形式体现。
func (r *Registry) HandOff(owner *ClientSession, guid string) {
	prev := r.Previous()
	if prev == nil || prev == owner {
		return
	}
	if ds, ok := prev.DeviceByGUID(guid); ok {
		prev.ChangeOwnership(ds.Handle(), false)
	}
}

// FindDevice 在设备层当前报告的设备与设备管理器中按 GUID 查找。
func (r *Registry) FindDevice(guid string) (capture.Device, bool) {
	return capture.FindDevice(r.layer, guid)
}

// Resynchronize 对比会话已宣告的设备与设备层当前设备，补发到达与移除通知。
// 两次调用之间设备层没有变化时，第二次不会产生任何通知。
func (r *Registry) Resynchronize(s *ClientSession) {
	current := make(map[string]capture.DeviceInfo)
	kinds := make(map[string]capture.EventID)
	for _, d := range r.layer.DeviceManagers() {
		current[d.Info().GUID] = d.Info()
		kinds[d.Info().GUID] = capture.EventDeviceManagerArrival
	}
	for _, d := range r.layer.Devices() {
		current[d.Info().GUID] = d.Info()
		kinds[d.Info().GUID] = capture.EventDeviceArrival
	}
	known := s.knownDevices()

	currentSet := typeutil.NewSet(lo.Keys(current)...)
	knownSet := typeutil.NewSet(lo.Keys(known)...)

	removed := typeutil.Sorted(knownSet.Complement(currentSet))
	arrived := typeutil.Sorted(currentSet.Complement(knownSet))

	for _, guid := range removed {
		kind := capture.EventDeviceRemoval
		if known[guid].manager {
			kind = capture.EventDeviceManagerRemoval
		}
		s.NotifyPresence(kind, known[guid].info)
	}
	for _, guid := range arrived {
		s.NotifyPresence(kinds[guid], current[guid])
	}
	if len(removed)+len(arrived) > 0 {
		log.Info("client session resynchronized", log.FieldHandle(s.Handle()),
			zap.Strings("arrived", arrived), zap.Strings("removed", removed))
	}
}

// isLive 判断会话仍在注册表中，且 handle 仍指向该会话自身或它打开的设备。
func (r *Registry) isLive(s *ClientSession, handle int64) bool {
	current, ok := r.Get(s.Handle())
	if !ok || current != s {
		return false
	}
	if handle == s.Handle() {
		return true
	}
	_, ok = s.Device(handle)
	return ok
}
