// Package mqttlayer 实现一个经由 MQTT 与硬件守护进程通信的设备层。
//
// 守护进程把设备到达/移除、扫码数据和状态变化发布到设备主题；
// 属性读写以带 correlationId 的请求发出，应答回到本客户端专属的 replies 主题。
// 所有完成回调通过 conc 协程池触发，不会在 paho 的接收协程上执行。
package mqttlayer

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/internal/property"
	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/conc"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

var (
	_ capture.Layer  = (*Layer)(nil)
	_ capture.Device = (*Device)(nil)
)

type Option func(*Layer)

// withDialer 替换建立连接的方式，仅用于测试。
func withDialer(d dialer) Option {
	return func(l *Layer) {
		l.dial = d
	}
}

// call 是一个等待应答的属性请求。
type call struct {
	done  capture.PropertyCallback
	timer *time.Timer
}

// Layer 是 MQTT 设备层。Close 之后不可再次 Open。
type Layer struct {
	cfg    Config
	topics Topics
	dial   dialer
	log    *log.MLogger

	mu         sync.Mutex
	conn       broker
	managers   []*Device
	devices    []*Device
	subscriber capture.Subscriber
	calls      map[string]*call

	pool      *conc.Pool[struct{}]
	callbacks sync.WaitGroup
}

func New(cfg Config, opts ...Option) (*Layer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()
	l := &Layer{
		cfg:    cfg,
		topics: Topics{Prefix: cfg.TopicPrefix},
		dial:   dialPaho,
		log:    log.With(log.FieldComponent("mqtt-layer")),
		calls:  make(map[string]*call),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.pool = conc.NewPool[struct{}](cfg.CallbackPoolSize, conc.WithName("mqtt-layer"))
	return l, nil
}

// Open 校验凭据后连接 broker 并订阅设备层主题。已连接时直接返回。
func (l *Layer) Open(ctx context.Context, appInfo capture.AppInfo) error {
	if !l.VerifyAppInfo(appInfo) {
		return merr.WrapErrInvalidAppInfo(appInfo.AppID)
	}

	l.mu.Lock()
	connected := l.conn != nil
	l.mu.Unlock()
	if connected {
		return nil
	}

	conn, err := l.dial(ctx, l.cfg)
	if err != nil {
		if errors.Is(err, merr.ErrDeviceLayerUnavailable) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return merr.WrapErrDeviceLayerUnavailable(err.Error())
	}

	subscriptions := map[string]MessageHandler{
		l.topics.AllDevices():            l.handleDevice,
		l.topics.Errors():                l.handleLayerError,
		l.topics.Replies(l.cfg.ClientID): l.handleReply,
	}
	for topic, handler := range subscriptions {
		if err := conn.Subscribe(topic, handler); err != nil {
			conn.Close()
			return merr.WrapErrDeviceLayerUnavailable(err.Error(), "subscribe "+topic)
		}
	}

	l.mu.Lock()
	l.conn = conn
	l.mu.Unlock()
	l.log.Info("mqtt device layer opened", zap.String("prefix", l.cfg.TopicPrefix))
	return nil
}

// Close 断开连接，所有未完成的请求以 ResultAborted 结束。
func (l *Layer) Close() error {
	l.mu.Lock()
	conn := l.conn
	l.conn = nil
	l.subscriber = nil
	calls := l.calls
	l.calls = make(map[string]*call)
	l.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	for _, c := range calls {
		c.timer.Stop()
		l.complete(c.done, capture.ResultAborted, nil)
	}
	l.callbacks.Wait()
	l.pool.Release()
	return nil
}

func (l *Layer) VerifyAppInfo(appInfo capture.AppInfo) bool {
	if !appInfo.Complete() {
		return false
	}
	return len(l.cfg.Credentials) == 0 || lo.Contains(l.cfg.Credentials, appInfo)
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
	return lo.Map(in, func(d *Device, _ int) capture.Device { return d })
}

func (l *Layer) GetProperty(p capture.Property, done capture.PropertyCallback) {
	l.request("", opGet, p, done)
}

func (l *Layer) SetProperty(p capture.Property, done capture.PropertyCallback) {
	l.request("", opSet, p, done)
}

func (l *Layer) PushSubscriber(subscriber capture.Subscriber) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscriber = subscriber
}

// request 发布一次属性请求，target 为空表示设备层本身。
func (l *Layer) request(target, op string, p capture.Property, done capture.PropertyCallback) {
	wp := wireProperty{ID: int(p.ID), Type: int(p.Type)}
	if op == opSet {
		value, err := property.EncodeRaw(p)
		if err != nil {
			l.log.Warn("failed to encode property for device layer", zap.Error(err))
			l.complete(done, capture.ResultInvalidParameter, nil)
			return
		}
		wp.Value = value
	}

	id := uuid.NewString()
	req := wireRequest{
		CorrelationID: id,
		ReplyTo:       l.topics.Replies(l.cfg.ClientID),
		Op:            op,
		Property:      wp,
	}
	payload, err := json.Marshal(req)
	if err != nil {
		l.complete(done, capture.ResultInvalidParameter, nil)
		return
	}

	l.mu.Lock()
	conn := l.conn
	if conn == nil {
		l.mu.Unlock()
		l.complete(done, capture.ResultFailed, nil)
		return
	}
	l.calls[id] = &call{
		done:  done,
		timer: time.AfterFunc(l.cfg.RequestTimeout, func() { l.resolve(id, capture.ResultTimeout, nil) }),
	}
	l.mu.Unlock()

	if err := conn.Publish(l.topics.Request(target), payload); err != nil {
		l.log.Warn("failed to publish device layer request",
			log.FieldDevice(target), zap.String("correlationID", id), zap.Error(err))
		l.resolve(id, capture.ResultFailed, nil)
	}
}

// resolve 结束一个请求；重复或迟到的应答被忽略。
func (l *Layer) resolve(id string, result capture.Result, p *capture.Property) {
	l.mu.Lock()
	c, ok := l.calls[id]
	delete(l.calls, id)
	l.mu.Unlock()
	if !ok {
		return
	}
	c.timer.Stop()
	l.complete(c.done, result, p)
}

func (l *Layer) complete(done capture.PropertyCallback, result capture.Result, p *capture.Property) {
	if done == nil {
		return
	}
	l.callbacks.Add(1)
	f := l.pool.Submit(func() (struct{}, error) {
		defer l.callbacks.Done()
		done(result, p)
		return struct{}{}, nil
	})
	select {
	case <-f.Done():
		if err := f.Err(); err != nil {
			l.callbacks.Done()
			l.log.Warn("mqtt layer dropped property callback", zap.Error(err))
		}
	default:
	}
}

func (l *Layer) handleReply(_ string, payload []byte) {
	var reply wireReply
	if err := json.Unmarshal(payload, &reply); err != nil {
		l.log.Warn("malformed device layer reply", zap.Error(err))
		return
	}
	result := capture.Result(reply.Result)
	if !result.Ok() || reply.Property == nil {
		l.resolve(reply.CorrelationID, result, nil)
		return
	}
	p, err := property.Decode(capture.PropertyID(reply.Property.ID), capture.PropertyType(reply.Property.Type), reply.Property.Value)
	if err != nil {
		l.log.Warn("malformed property in device layer reply",
			zap.String("correlationID", reply.CorrelationID), zap.Error(err))
		l.resolve(reply.CorrelationID, capture.ResultFailed, nil)
		return
	}
	l.resolve(reply.CorrelationID, result, &p)
}

func (l *Layer) handleLayerError(_ string, payload []byte) {
	var msg wireLayerError
	if err := json.Unmarshal(payload, &msg); err != nil {
		l.log.Warn("malformed device layer error", zap.Error(err))
		return
	}
	l.emit(capture.Event{Kind: capture.EventError, Result: capture.Result(msg.Result)})
}

func (l *Layer) handleDevice(topic string, payload []byte) {
	guid, suffix, ok := l.topics.parseDeviceTopic(topic)
	if !ok {
		l.log.RatedWarn(10, "unexpected device topic", zap.String("topic", topic))
		return
	}

	var err error
	switch suffix {
	case suffixPresence:
		var msg wirePresence
		if err = json.Unmarshal(payload, &msg); err == nil {
			l.onPresence(guid, msg)
		}
	case suffixDecoded:
		var msg wireDecoded
		if err = json.Unmarshal(payload, &msg); err == nil {
			l.emit(capture.Event{
				Kind:   capture.EventDecodedData,
				Device: l.info(guid),
				Result: capture.Result(msg.Result),
				Data: &capture.DecodedData{
					Data:           msg.Data,
					DataSourceID:   capture.DataSourceID(msg.SourceID),
					DataSourceName: msg.SourceName,
				},
			})
		}
	case suffixStatus:
		var msg wireStatus
		if err = json.Unmarshal(payload, &msg); err == nil {
			kind, known := msg.event()
			if !known {
				l.log.RatedWarn(10, "unknown device status kind", log.FieldDevice(guid), zap.String("kind", msg.Kind))
				return
			}
			l.emit(capture.Event{Kind: kind, Device: l.info(guid), Value: msg.Value})
		}
	default:
		l.log.RatedWarn(10, "unexpected device topic", zap.String("topic", topic))
		return
	}
	if err != nil {
		l.log.Warn("malformed device message", zap.String("topic", topic), zap.Error(err))
	}
}

func (l *Layer) onPresence(guid string, msg wirePresence) {
	kind, ok := msg.kind()
	if !ok {
		l.log.Warn("unknown presence event", log.FieldDevice(guid), zap.String("event", msg.Event))
		return
	}
	info := capture.DeviceInfo{GUID: guid, Name: msg.Name, Type: capture.DeviceType(msg.Type)}
	result := capture.Result(msg.Result)

	if result.Ok() {
		l.mu.Lock()
		list := &l.devices
		if msg.Manager {
			list = &l.managers
		}
		idx := slices.IndexFunc(*list, func(d *Device) bool { return d.info.GUID == guid })
		switch {
		case kind.IsArrival() && idx >= 0:
			(*list)[idx].info = info
		case kind.IsArrival():
			*list = append(*list, &Device{layer: l, info: info})
		case idx >= 0:
			// 移除消息可能不带名称，以登记时的信息为准。
			info = (*list)[idx].info
			*list = slices.Delete(*list, idx, idx+1)
		}
		l.mu.Unlock()
	}
	l.emit(capture.Event{Kind: kind, Device: info, Result: result})
}

// info 返回已登记设备的信息；未登记时只带 guid。
func (l *Layer) info(guid string) capture.DeviceInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, list := range [][]*Device{l.devices, l.managers} {
		if idx := slices.IndexFunc(list, func(d *Device) bool { return d.info.GUID == guid }); idx >= 0 {
			return list[idx].info
		}
	}
	return capture.DeviceInfo{GUID: guid}
}

func (l *Layer) emit(e capture.Event) {
	l.mu.Lock()
	sub := l.subscriber
	l.mu.Unlock()
	if sub == nil {
		l.log.RatedDebug(10, "mqtt layer has no subscriber, event dropped", zap.Stringer("event", e.Kind))
		return
	}
	sub.OnEvent(e)
}

// Device 是守护进程上报的一台设备或设备管理器。
type Device struct {
	layer *Layer
	info  capture.DeviceInfo
}

func (d *Device) Info() capture.DeviceInfo {
	d.layer.mu.Lock()
	defer d.layer.mu.Unlock()
	return d.info
}

func (d *Device) GetProperty(p capture.Property, done capture.PropertyCallback) {
	d.layer.request(d.Info().GUID, opGet, p, done)
}

func (d *Device) SetProperty(p capture.Property, done capture.PropertyCallback) {
	d.layer.request(d.Info().GUID, opSet, p, done)
}
