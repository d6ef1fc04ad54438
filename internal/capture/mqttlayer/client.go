package mqttlayer

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cockroachdb/errors"
	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/lk2023060901/capture-bridge-go/pkg/log"
	"github.com/lk2023060901/capture-bridge-go/pkg/util/merr"
)

const (
	maxQoS = 2

	defaultPublishTimeout = 5 * time.Second
	// 断开连接时等待在途操作的毫秒数。
	defaultDisconnectQuiesce = 250
	defaultKeepAlive         = 30 * time.Second
)

var (
	ErrNotConnected    = errors.New("mqtt: client not connected")
	ErrPublishFailed   = errors.New("mqtt: publish failed")
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")
)

// MessageHandler 处理一条入站消息。
type MessageHandler func(topic string, payload []byte)

// broker 是设备层对 MQTT 连接的最小依赖，测试中以内存实现替换。
type broker interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler MessageHandler) error
	Close()
}

// dialer 建立一个已连接的 broker。
type dialer func(ctx context.Context, cfg Config) (broker, error)

type subscription struct {
	topic   string
	handler MessageHandler
}

// pahoBroker 基于 paho 客户端实现 broker，断线重连后自动恢复订阅。
type pahoBroker struct {
	client pahomqtt.Client
	qos    byte

	mu            sync.RWMutex
	subscriptions map[string]subscription
}

func buildClientOptions(cfg Config) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)
	// 同一设备的事件必须按到达顺序交付。
	opts.SetOrderMatters(true)
	return opts
}

// dialPaho 以指数退避重试首次连接，直到成功、ctx 结束或超过 MaxConnectElapsed。
func dialPaho(ctx context.Context, cfg Config) (broker, error) {
	b := &pahoBroker{
		qos:           cfg.QoS,
		subscriptions: make(map[string]subscription),
	}
	opts := buildClientOptions(cfg)
	opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
		b.restoreSubscriptions()
	})
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
		log.Warn("mqtt connection lost", zap.String("broker", cfg.Broker), zap.Error(err))
	})
	b.client = pahomqtt.NewClient(opts)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = cfg.MaxConnectElapsed
	bo.Reset()

	var lastErr error
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if lastErr != nil {
			next := bo.NextBackOff()
			if next == backoff.Stop {
				return nil, merr.WrapErrDeviceLayerUnavailable(lastErr.Error(), "mqtt broker unreachable")
			}
			log.Warn("failed to connect mqtt broker, wait for retry...",
				zap.String("broker", cfg.Broker), zap.Error(lastErr), zap.Duration("nextBackoffInterval", next))
			select {
			case <-time.After(next):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		token := b.client.Connect()
		if !token.WaitTimeout(cfg.ConnectTimeout) {
			lastErr = errors.Newf("connect timeout after %v", cfg.ConnectTimeout)
			continue
		}
		if err := token.Error(); err != nil {
			lastErr = err
			continue
		}
		log.Info("mqtt broker connected", zap.String("broker", cfg.Broker), zap.String("clientID", cfg.ClientID))
		return b, nil
	}
}

func (b *pahoBroker) Publish(topic string, payload []byte) error {
	if !b.client.IsConnected() {
		return ErrNotConnected
	}
	token := b.client.Publish(topic, b.qos, false, payload)
	if !token.WaitTimeout(defaultPublishTimeout) {
		return errors.Wrapf(ErrPublishFailed, "timeout after %v", defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		return errors.Mark(errors.Wrap(err, topic), ErrPublishFailed)
	}
	return nil
}

func (b *pahoBroker) Subscribe(topic string, handler MessageHandler) error {
	b.mu.Lock()
	b.subscriptions[topic] = subscription{topic: topic, handler: handler}
	b.mu.Unlock()

	token := b.client.Subscribe(topic, b.qos, b.wrapHandler(handler))
	if !token.WaitTimeout(defaultPublishTimeout) {
		b.forget(topic)
		return errors.Wrapf(ErrSubscribeFailed, "timeout after %v", defaultPublishTimeout)
	}
	if err := token.Error(); err != nil {
		b.forget(topic)
		return errors.Mark(errors.Wrap(err, topic), ErrSubscribeFailed)
	}
	return nil
}

func (b *pahoBroker) forget(topic string) {
	b.mu.Lock()
	delete(b.subscriptions, topic)
	b.mu.Unlock()
}

func (b *pahoBroker) restoreSubscriptions() {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subscriptions {
		b.client.Subscribe(sub.topic, b.qos, b.wrapHandler(sub.handler))
	}
}

func (b *pahoBroker) Close() {
	b.client.Disconnect(defaultDisconnectQuiesce)
}

// wrapHandler 隔离处理函数中的 panic，避免拖垮 paho 的接收协程。
func (b *pahoBroker) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("mqtt handler panic recovered", zap.String("topic", msg.Topic()), zap.Any("panic", r))
			}
		}()
		handler(msg.Topic(), msg.Payload())
	}
}
