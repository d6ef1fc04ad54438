// Package sim 提供一个内存实现的设备层，用于示例程序与测试。
//
// 事件由调用方（测试或示例中的驱动代码）在自身协程上同步推送；
// 属性读写的完成回调默认通过 conc 协程池异步触发，模拟真实设备层的回调线程。
package sim

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/conc"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

var _ capture.Layer = (*Layer)(nil)

// DefaultVersion 是模拟设备层默认上报的版本。
var DefaultVersion = capture.Version{Major: 1, Middle: 5, Minor: 3, Build: 100, Year: 2024, Month: 3, Day: 1}

type Option func(*Layer)

// WithSynchronous 使属性回调在调用方协程上直接触发。
func WithSynchronous() Option {
	return func(l *Layer) {
		l.synchronous = true
	}
}

// WithOpenFailures 让前 n 次 Open 返回可重试错误。
func WithOpenFailures(n int) Option {
	return func(l *Layer) {
		l.openFailures = n
	}
}

// WithCredentials 限定可通过校验的凭据；未设置时任何字段齐全的凭据都通过。
func WithCredentials(infos ...capture.AppInfo) Option {
	return func(l *Layer) {
		l.allowed = append(l.allowed, infos...)
	}
}

// WithVersion 设置设备层版本属性。
func WithVersion(v capture.Version) Option {
	return func(l *Layer) {
		l.global[capture.PropertyIDVersion] = capture.VersionProperty(capture.PropertyIDVersion, v)
	}
}

// WithPoolSize 设置异步回调协程池大小。
func WithPoolSize(size int) Option {
	return func(l *Layer) {
		l.poolSize = size
	}
}

// Layer 是内存设备层。
type Layer struct {
	mu           sync.Mutex
	opened       bool
	openCalls    int
	openFailures int
	allowed      []capture.AppInfo
	managers     []*Device
	devices      []*Device
	global       map[capture.PropertyID]capture.Property
	subscriber   capture.Subscriber

	synchronous bool
	poolSize    int
	pool        *conc.Pool[struct{}]
	pending     sync.WaitGroup
}

func New(opts ...Option) *Layer {
	l := &Layer{
		global:   make(map[capture.PropertyID]capture.Property),
		poolSize: 4,
	}
	l.global[capture.PropertyIDVersion] = capture.VersionProperty(capture.PropertyIDVersion, DefaultVersion)
	for _, opt := range opts {
		opt(l)
	}
	if !l.synchronous {
		l.pool = conc.NewPool[struct{}](l.poolSize, conc.WithName("sim-layer"))
	}
	return l
}

func (l *Layer) Open(ctx context.Context, appInfo capture.AppInfo) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.openCalls++
	if err := ctx.Err(); err != nil {
		return err
	}
	if l.openFailures > 0 {
		l.openFailures--
		return merr.WrapErrDeviceLayerUnavailable("simulated open failure")
	}
	if !l.verifyLocked(appInfo) {
		return merr.WrapErrInvalidAppInfo(appInfo.AppID)
	}
	l.opened = true
	return nil
}

func (l *Layer) Close() error {
	l.mu.Lock()
	l.opened = false
	l.subscriber = nil
	l.mu.Unlock()

	l.pending.Wait()
	if l.pool != nil {
		l.pool.Release()
	}
	return nil
}

// OpenCalls 返回 Open 被调用的次数。
func (l *Layer) OpenCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.openCalls
}

func (l *Layer) VerifyAppInfo(appInfo capture.AppInfo) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verifyLocked(appInfo)
}

func (l *Layer) verifyLocked(appInfo capture.AppInfo) bool {
	if !appInfo.Complete() {
		return false
	}
	if len(l.allowed) == 0 {
		return true
	}
	for _, a := range l.allowed {
		if a == appInfo {
			return true
		}
	}
	return false
}

func (l *Layer) Devices() []capture.Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	return toDevices(l.devices)
}

func (l *Layer) DeviceManagers() []capture.Device {
	l.mu.Lock()
	defer l.mu.Unlock()
	return toDevices(l.managers)
}

func toDevices(in []*Device) []capture.Device {
	out := make([]capture.Device, 0, len(in))
	for _, d := range in {
		out = append(out, d)
	}
	return out
}

func (l *Layer) GetProperty(property capture.Property, done capture.PropertyCallback) {
	l.mu.Lock()
	p, ok := l.global[property.ID]
	l.mu.Unlock()
	if !ok {
		l.complete(done, capture.ResultNotSupported, nil)
		return
	}
	l.complete(done, capture.ResultNoError, &p)
}

func (l *Layer) SetProperty(property capture.Property, done capture.PropertyCallback) {
	l.mu.Lock()
	l.global[property.ID] = property
	l.mu.Unlock()
	l.complete(done, capture.ResultNoError, &property)
}

func (l *Layer) PushSubscriber(subscriber capture.Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscriber = subscriber
}

// Wait 等待所有已发起的异步回调执行完毕。
func (l *Layer) Wait() {
	l.pending.Wait()
}

func (l *Layer) complete(done capture.PropertyCallback, result capture.Result, property *capture.Property) {
	if done == nil {
		return
	}
	if l.synchronous {
		done(result, property)
		return
	}
	l.pending.Add(1)
	f := l.pool.Submit(func() (struct{}, error) {
		defer l.pending.Done()
		done(result, property)
		return struct{}{}, nil
	})
	select {
	case <-f.Done():
		if err := f.Err(); err != nil {
			// 协程池已释放，任务未执行。
			l.pending.Done()
			log.Warn("sim layer dropped property callback", zap.Error(err))
		}
	default:
	}
}

func (l *Layer) emit(e capture.Event) {
	l.mu.Lock()
	sub := l.subscriber
	l.mu.Unlock()
	if sub == nil {
		log.Debug("sim layer has no subscriber, event dropped", zap.Stringer("event", e.Kind))
		return
	}
	sub.OnEvent(e)
}
