// Package bridge 把页面消息、会话注册表与设备层事件组装成一个桥接核心。
//
// 所有状态变更都在 Bridge 内部唯一的事件循环上执行；宿主从任意协程调用的方法
// 只负责把工作投递到事件循环。
package bridge

import (
	"context"

	"github.com/blang/semver/v4"
	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/relay"
	"github.com/lk2023060901/capture-bridge-go/internal/router"
	"github.com/lk2023060901/capture-bridge-go/internal/rpc"
	"github.com/lk2023060901/capture-bridge-go/internal/session"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/metrics"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/retry"
)

// SessionInfo 是会话的只读快照，用于调试接口。
type SessionInfo struct {
	Handle  int64    `json:"handle"`
	Address string   `json:"address"`
	Group   string   `json:"group"`
	Active  bool     `json:"active"`
	Devices []string `json:"devices"`
}

type Bridge struct {
	cfg      Config
	layer    capture.Layer
	versions *rpc.VersionTracker
	loop     *eventLoop
	registry *session.Registry
	relay    *relay.Relay
	router   router.Router
	accepts  semver.Range

	observers Observers
	started   atomic.Bool
	cancel    context.CancelFunc
	log       *log.MLogger
}

func New(cfg Config, layer capture.Layer) (*Bridge, error) {
	def := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.OpenAttempts == 0 {
		cfg.OpenAttempts = def.OpenAttempts
	}
	if cfg.OpenRetrySleep <= 0 {
		cfg.OpenRetrySleep = def.OpenRetrySleep
	}

	b := &Bridge{
		cfg:      cfg,
		layer:    layer,
		versions: rpc.NewVersionTracker(),
		loop:     newEventLoop(),
		router:   router.New(),
		log:      log.With(log.FieldComponent("bridge")),
	}
	if cfg.SupportedVersions != "" {
		accepts, err := semver.ParseRange(cfg.SupportedVersions)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid supported_versions %q", cfg.SupportedVersions)
		}
		b.accepts = accepts
	}

	b.registry = session.NewRegistry(layer, b.versions, b.post)
	b.relay = relay.New(b.registry, b.post, hostAdapter{o: &b.observers})
	b.relay.Attach()
	if err := b.registerHandlers(); err != nil {
		return nil, err
	}
	return b, nil
}

// Observers 返回宿主可订阅的通知集合。
func (b *Bridge) Observers() *Observers {
	return &b.observers
}

func (b *Bridge) Registry() *session.Registry {
	return b.registry
}

func (b *Bridge) post(fn func()) {
	if !b.loop.Post(fn) {
		b.log.Debug("event loop stopped, task dropped")
	}
}

// Start 启动事件循环并打开设备层。
// 设备层打开失败且可重试时按配置重试，最终失败时事件循环一并停止。
func (b *Bridge) Start(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return merr.WrapErrServiceInternal("bridge already started")
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	go b.loop.Run(loopCtx)

	err := retry.Do(ctx, func() error {
		return b.layer.Open(ctx, b.cfg.AppInfo)
	},
		retry.Attempts(b.cfg.OpenAttempts),
		retry.Sleep(b.cfg.OpenRetrySleep),
		retry.RetryErr(merr.IsRetryableErr),
		retry.OnFailure(func(attempt uint, err error) {
			b.log.Warn("failed to open device layer", zap.Uint("attempt", attempt), zap.Error(err))
		}),
	)
	if err != nil {
		cancel()
		<-b.loop.Done()
		return errors.Wrap(err, "open device layer")
	}

	// 重试期间页面可能已经激活了客户端。
	if err := b.loop.Do(ctx, b.registry.RefreshSubscriber); err != nil {
		return err
	}
	b.checkVersion()
	b.log.Info("bridge started", zap.String("channel", b.cfg.Channel))
	return nil
}

// checkVersion 读取设备层版本，超出支持范围时只告警。
func (b *Bridge) checkVersion() {
	b.layer.GetProperty(capture.Property{ID: capture.PropertyIDVersion, Type: capture.PropertyTypeNone},
		func(result capture.Result, got *capture.Property) {
			b.post(func() {
				if !result.Ok() || got == nil || got.Version == nil {
					b.log.Warn("failed to read device layer version", zap.Stringer("result", result))
					return
				}
				v := got.Version.Semver()
				if b.accepts != nil && !b.accepts(v) {
					b.log.Warn("device layer version outside supported range",
						zap.String("version", v.String()), zap.String("supported", b.cfg.SupportedVersions))
					return
				}
				b.log.Info("device layer ready", zap.String("version", v.String()))
			})
		})
}

// Stop 关闭所有会话、停止事件循环并关闭设备层。
func (b *Bridge) Stop() error {
	if !b.started.CompareAndSwap(true, false) {
		return nil
	}
	_ = b.loop.Do(context.Background(), func() {
		for _, s := range b.registry.Sessions() {
			b.closeSession(s)
		}
	})
	b.loop.Stop()
	b.cancel()
	<-b.loop.Done()

	err := b.layer.Close()
	b.log.Info("bridge stopped", zap.Error(err))
	return err
}

// Do 在事件循环上执行 fn 并等待其完成。
func (b *Bridge) Do(ctx context.Context, fn func()) error {
	return b.loop.Do(ctx, fn)
}

// Flush 等待事件循环上所有已投递的任务执行完毕。
func (b *Bridge) Flush(ctx context.Context) error {
	return b.loop.Flush(ctx)
}

// HandleScriptMessage 是页面消息的入口：name 为页面使用的消息通道名，body 为消息文本。
func (b *Bridge) HandleScriptMessage(target transport.Target, name string, body string) {
	if name != b.cfg.Channel {
		b.observers.UnhandledMessage.Publish(UnhandledMessage{
			Group: target.Group(), Address: target.Address(), Channel: name, Body: body,
		})
		return
	}
	b.post(func() { b.dispatch(target, body) })
}

func (b *Bridge) dispatch(target transport.Target, body string) {
	msg, ok := rpc.Parse(body)
	if !ok {
		b.log.RatedDebug(1, "drop unparsable page message", log.FieldAddress(target.Address()))
		return
	}
	if msg.JSONRPC != "" {
		b.versions.Observe(msg.JSONRPC)
		b.observers.JSONRPCVersion.Publish(msg.JSONRPC)
	}
	if msg.Method == "" {
		b.log.RatedDebug(1, "drop page message without method", log.FieldAddress(target.Address()))
		return
	}

	ctx, span := log.NewIntentContext("bridge", msg.Method)
	defer span.End()
	ctx = log.WithFields(ctx, log.FieldMethod(msg.Method), log.FieldAddress(target.Address()))

	err := b.router.Handle(ctx, &router.Request{Target: target, Message: msg})
	switch {
	case errors.Is(err, router.ErrNoRoute):
		metrics.InboundMessages.WithLabelValues("unknown").Inc()
		b.observers.UnhandledMessage.Publish(UnhandledMessage{
			Group: target.Group(), Address: target.Address(), Channel: b.cfg.Channel, Body: body,
		})
	case err != nil:
		metrics.InboundMessages.WithLabelValues(msg.Method).Inc()
		log.Ctx(ctx).Info("request rejected", zap.Error(err))
	default:
		metrics.InboundMessages.WithLabelValues(msg.Method).Inc()
	}
}

// ActivateForAddress 在页面变为可见时调用，激活为该地址打开的会话。
func (b *Bridge) ActivateForAddress(address string) {
	b.post(func() {
		if s, ok := b.registry.Lookup(address); ok {
			b.registry.Activate(s)
		}
	})
}

// ResignActive 在宿主进入后台时调用，取消当前活跃会话。
func (b *Bridge) ResignActive() {
	b.post(b.registry.Deactivate)
}

// CloseClientsForGroup 在页面表面销毁时调用，关闭其上的全部会话。
func (b *Bridge) CloseClientsForGroup(group string) {
	b.post(func() {
		for _, s := range b.registry.LookupAll(group) {
			b.closeSession(s)
		}
	})
}

// CloseClientForAddress 在页面跳转离开 address 时调用。
func (b *Bridge) CloseClientForAddress(address string) {
	b.post(func() {
		if s, ok := b.registry.Lookup(address); ok {
			b.closeSession(s)
		}
	})
}

// closePage 关闭某个页面表面上为 address 打开的会话。
func (b *Bridge) closePage(group, address string) {
	b.post(func() {
		for _, s := range b.registry.LookupAll(group) {
			if s.Address() == address {
				b.closeSession(s)
			}
		}
	})
}

func (b *Bridge) closeSession(s *session.ClientSession) {
	if _, ok := b.registry.CloseSession(s.Handle()); !ok {
		return
	}
	b.observers.ClientClosed.Publish(ClientEvent{Handle: s.Handle(), Address: s.Address(), Group: s.Target().Group()})
}

// Sessions 返回所有会话的快照。
func (b *Bridge) Sessions(ctx context.Context) ([]SessionInfo, error) {
	var out []SessionInfo
	err := b.loop.Do(ctx, func() {
		active := b.registry.Active()
		for _, s := range b.registry.Sessions() {
			info := SessionInfo{
				Handle:  s.Handle(),
				Address: s.Address(),
				Group:   s.Target().Group(),
				Active:  s == active,
				Devices: []string{},
			}
			for _, ds := range s.Devices() {
				info.Devices = append(info.Devices, ds.GUID())
			}
			out = append(out, info)
		}
	})
	return out, err
}
