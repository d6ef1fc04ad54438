package mqttlayer

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/json"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

// fakeBroker 在内存中记录订阅与发布，onPublish 可用于模拟守护进程应答。
type fakeBroker struct {
	mu        sync.Mutex
	handlers  map[string]MessageHandler
	published []string
	closed    bool
	onPublish func(topic string, payload []byte)
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{handlers: make(map[string]MessageHandler)}
}

func (b *fakeBroker) Publish(topic string, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, topic)
	hook := b.onPublish
	b.mu.Unlock()
	if hook != nil {
		hook(topic, payload)
	}
	return nil
}

func (b *fakeBroker) Subscribe(topic string, handler MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *fakeBroker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

func (b *fakeBroker) deliver(topic, payload string) {
	b.mu.Lock()
	var matched []MessageHandler
	for pattern, h := range b.handlers {
		if topicMatches(pattern, topic) {
			matched = append(matched, h)
		}
	}
	b.mu.Unlock()
	for _, h := range matched {
		h(topic, []byte(payload))
	}
}

func topicMatches(pattern, topic string) bool {
	ps, ts := strings.Split(pattern, "/"), strings.Split(topic, "/")
	if len(ps) != len(ts) {
		return false
	}
	for i := range ps {
		if ps[i] != "+" && ps[i] != ts[i] {
			return false
		}
	}
	return true
}

type eventRecorder struct {
	mu     sync.Mutex
	events []capture.Event
}

func (r *eventRecorder) OnEvent(e capture.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) all() []capture.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]capture.Event(nil), r.events...)
}

type completion struct {
	result   capture.Result
	property *capture.Property
}

func collect(ch chan completion) capture.PropertyCallback {
	return func(result capture.Result, p *capture.Property) {
		ch <- completion{result: result, property: p}
	}
}

var testAppInfo = capture.AppInfo{AppID: "app", AppKey: "key", DeveloperID: "dev"}

type LayerSuite struct {
	suite.Suite
	broker   *fakeBroker
	layer    *Layer
	recorder *eventRecorder
	topics   Topics
}

func (s *LayerSuite) SetupTest() {
	s.broker = newFakeBroker()
	cfg := DefaultConfig()
	cfg.RequestTimeout = time.Second
	layer, err := New(cfg, withDialer(func(context.Context, Config) (broker, error) {
		return s.broker, nil
	}))
	s.Require().NoError(err)
	s.layer = layer
	s.topics = Topics{Prefix: cfg.TopicPrefix}
	s.recorder = &eventRecorder{}
	s.Require().NoError(s.layer.Open(context.Background(), testAppInfo))
	s.layer.PushSubscriber(s.recorder)
}

func (s *LayerSuite) TearDownTest() {
	s.NoError(s.layer.Close())
}

func (s *LayerSuite) await(ch chan completion) completion {
	select {
	case c := <-ch:
		return c
	case <-time.After(3 * time.Second):
		s.FailNow("property callback not invoked")
		return completion{}
	}
}

func (s *LayerSuite) TestOpenSubscribes() {
	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.Contains(s.broker.handlers, "capture/devices/+/+")
	s.Contains(s.broker.handlers, "capture/errors")
	s.Contains(s.broker.handlers, "capture/replies/capture-bridge")
}

func (s *LayerSuite) TestPresence() {
	s.broker.deliver(s.topics.DevicePresence("dev-1"), `{"event":"arrival","name":"Scanner","type":3}`)
	s.broker.deliver(s.topics.DevicePresence("mgr-1"), `{"event":"arrival","manager":true,"name":"Hub"}`)

	s.Require().Len(s.layer.Devices(), 1)
	s.Equal(capture.DeviceInfo{GUID: "dev-1", Name: "Scanner", Type: 3}, s.layer.Devices()[0].Info())
	s.Require().Len(s.layer.DeviceManagers(), 1)
	dev, ok := capture.FindDevice(s.layer, "mgr-1")
	s.True(ok)
	s.Equal("Hub", dev.Info().Name)

	s.broker.deliver(s.topics.DevicePresence("dev-1"), `{"event":"removal"}`)
	s.Empty(s.layer.Devices())

	events := s.recorder.all()
	s.Require().Len(events, 3)
	s.Equal(capture.EventDeviceArrival, events[0].Kind)
	s.Equal(capture.EventDeviceManagerArrival, events[1].Kind)
	s.Equal(capture.EventDeviceRemoval, events[2].Kind)
	s.Equal("Scanner", events[2].Device.Name)
}

func (s *LayerSuite) TestPresenceFailureIsNotRegistered() {
	s.broker.deliver(s.topics.DevicePresence("dev-1"), `{"event":"arrival","name":"Scanner","result":-9}`)
	s.Empty(s.layer.Devices())
	events := s.recorder.all()
	s.Require().Len(events, 1)
	s.Equal(capture.ResultFailed, events[0].Result)
}

func (s *LayerSuite) TestMalformedMessagesAreDropped() {
	s.broker.deliver(s.topics.DevicePresence("dev-1"), `{"event":"sideways"}`)
	s.broker.deliver(s.topics.DevicePresence("dev-1"), `not json`)
	s.broker.deliver(s.topics.DeviceStatus("dev-1"), `{"kind":"temperature","value":3}`)
	s.broker.deliver("capture/devices/dev-1/unknown", `{}`)
	s.Empty(s.recorder.all())
}

func (s *LayerSuite) TestDecodedAndStatus() {
	s.broker.deliver(s.topics.DevicePresence("dev-1"), `{"event":"arrival","name":"Scanner"}`)
	s.broker.deliver(s.topics.DeviceDecoded("dev-1"), `{"data":"YWJj","sourceId":11,"sourceName":"Code 39"}`)
	s.broker.deliver(s.topics.DeviceStatus("dev-1"), `{"kind":"battery","value":80}`)
	s.broker.deliver(s.topics.Errors(), `{"result":-3}`)

	events := s.recorder.all()
	s.Require().Len(events, 4)

	decoded := events[1]
	s.Equal(capture.EventDecodedData, decoded.Kind)
	s.Equal("Scanner", decoded.Device.Name)
	s.Require().NotNil(decoded.Data)
	s.Equal([]byte("abc"), decoded.Data.Data)
	s.Equal(capture.DataSourceIDCode39, decoded.Data.DataSourceID)
	s.Equal("Code 39", decoded.Data.DataSourceName)

	s.Equal(capture.EventBatteryLevel, events[2].Kind)
	s.Equal(80, events[2].Value)

	s.Equal(capture.EventError, events[3].Kind)
	s.Equal(capture.ResultTimeout, events[3].Result)
}

func (s *LayerSuite) TestGetPropertyRoundTrip() {
	s.broker.deliver(s.topics.DevicePresence("dev-1"), `{"event":"arrival","name":"Scanner"}`)
	s.broker.onPublish = func(topic string, payload []byte) {
		var req wireRequest
		s.Require().NoError(json.Unmarshal(payload, &req))
		s.Equal(s.topics.Request("dev-1"), topic)
		s.Equal(opGet, req.Op)
		s.Nil(req.Property.Value)
		reply := `{"correlationId":"` + req.CorrelationID + `","result":0,"property":{"id":7,"type":3,"value":42}}`
		s.broker.deliver(req.ReplyTo, reply)
	}

	dev, ok := capture.FindDevice(s.layer, "dev-1")
	s.Require().True(ok)
	ch := make(chan completion, 1)
	dev.GetProperty(capture.Property{ID: 7, Type: capture.PropertyTypeNone}, collect(ch))

	c := s.await(ch)
	s.Equal(capture.ResultNoError, c.result)
	s.Require().NotNil(c.property)
	s.Equal(capture.PropertyTypeULong, c.property.Type)
	s.Equal(uint32(42), c.property.ULong)
}

func (s *LayerSuite) TestSetPropertyPublishesRawValue() {
	s.broker.onPublish = func(topic string, payload []byte) {
		var req wireRequest
		s.Require().NoError(json.Unmarshal(payload, &req))
		s.Equal(s.topics.Request(""), topic)
		s.Equal(opSet, req.Op)
		s.Equal("line1\nline2", req.Property.Value)
		s.broker.deliver(req.ReplyTo, `{"correlationId":"`+req.CorrelationID+`","result":-4}`)
	}

	ch := make(chan completion, 1)
	s.layer.SetProperty(capture.StringProperty(9, "line1\nline2"), collect(ch))
	c := s.await(ch)
	s.Equal(capture.ResultNotSupported, c.result)
	s.Nil(c.property)
}

func (s *LayerSuite) TestUnencodablePropertyFailsFast() {
	ch := make(chan completion, 1)
	s.layer.SetProperty(capture.Property{ID: 1, Type: capture.PropertyTypeString}, collect(ch))
	s.Equal(capture.ResultInvalidParameter, s.await(ch).result)

	s.broker.mu.Lock()
	defer s.broker.mu.Unlock()
	s.Empty(s.broker.published)
}

func (s *LayerSuite) TestMalformedReplyProperty() {
	s.broker.onPublish = func(_ string, payload []byte) {
		var req wireRequest
		s.Require().NoError(json.Unmarshal(payload, &req))
		s.broker.deliver(req.ReplyTo, `{"correlationId":"`+req.CorrelationID+`","result":0,"property":{"id":1,"type":2,"value":"x"}}`)
	}
	ch := make(chan completion, 1)
	s.layer.GetProperty(capture.Property{ID: 1}, collect(ch))
	s.Equal(capture.ResultFailed, s.await(ch).result)
}

func TestLayer(t *testing.T) {
	suite.Run(t, new(LayerSuite))
}

func newTestLayer(t *testing.T, cfg Config, b *fakeBroker) *Layer {
	layer, err := New(cfg, withDialer(func(context.Context, Config) (broker, error) {
		if b == nil {
			return nil, errors.New("connection refused")
		}
		return b, nil
	}))
	require.NoError(t, err)
	return layer
}

func awaitResult(t *testing.T, ch chan completion) capture.Result {
	select {
	case c := <-ch:
		return c.result
	case <-time.After(3 * time.Second):
		require.FailNow(t, "property callback not invoked")
		return capture.ResultNoError
	}
}

func TestCloseAbortsPendingRequests(t *testing.T) {
	b := newFakeBroker()
	layer := newTestLayer(t, DefaultConfig(), b)
	require.NoError(t, layer.Open(context.Background(), testAppInfo))

	ch := make(chan completion, 1)
	layer.GetProperty(capture.Property{ID: 1}, collect(ch))
	require.NoError(t, layer.Close())
	assert.Equal(t, capture.ResultAborted, awaitResult(t, ch))
	assert.True(t, b.closed)
}

func TestRequestTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RequestTimeout = 20 * time.Millisecond
	layer := newTestLayer(t, cfg, newFakeBroker())
	defer layer.Close()
	require.NoError(t, layer.Open(context.Background(), testAppInfo))

	ch := make(chan completion, 1)
	layer.GetProperty(capture.Property{ID: 1}, collect(ch))
	assert.Equal(t, capture.ResultTimeout, awaitResult(t, ch))
}

func TestRequestWithoutConnection(t *testing.T) {
	layer := newTestLayer(t, DefaultConfig(), newFakeBroker())
	defer layer.Close()

	ch := make(chan completion, 1)
	layer.GetProperty(capture.Property{ID: 1}, collect(ch))
	assert.Equal(t, capture.ResultFailed, awaitResult(t, ch))
}

func TestOpenRejectsCredentials(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Credentials = []capture.AppInfo{testAppInfo}
	b := newFakeBroker()
	layer := newTestLayer(t, cfg, b)
	defer layer.Close()

	other := capture.AppInfo{AppID: "other", AppKey: "key", DeveloperID: "dev"}
	assert.ErrorIs(t, layer.Open(context.Background(), other), merr.ErrInvalidAppInfo)
	assert.Empty(t, b.handlers)
	assert.True(t, layer.VerifyAppInfo(testAppInfo))
	assert.False(t, layer.VerifyAppInfo(capture.AppInfo{AppID: "app"}))
}

func TestOpenWrapsDialFailure(t *testing.T) {
	layer := newTestLayer(t, DefaultConfig(), nil)
	defer layer.Close()

	err := layer.Open(context.Background(), testAppInfo)
	assert.ErrorIs(t, err, merr.ErrDeviceLayerUnavailable)
	assert.True(t, merr.IsRetryableErr(err))
}

func TestConfigValidation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TopicPrefix = ""
	_, err := New(cfg)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.QoS = 3
	_, err = New(cfg)
	assert.Error(t, err)
}

func TestParseDeviceTopic(t *testing.T) {
	topics := Topics{Prefix: "capture"}
	guid, suffix, ok := topics.parseDeviceTopic(topics.DeviceDecoded("abc"))
	assert.True(t, ok)
	assert.Equal(t, "abc", guid)
	assert.Equal(t, suffixDecoded, suffix)
	assert.Equal(t, "capture/requests/layer", topics.Request(""))

	for _, topic := range []string{"capture/errors", "other/devices/abc/decoded", "capture/devices//decoded", "capture/devices/abc"} {
		_, _, ok := topics.parseDeviceTopic(topic)
		assert.False(t, ok, topic)
	}
}
