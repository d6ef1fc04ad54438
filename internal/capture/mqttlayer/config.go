package mqttlayer

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
)

// Config 是 MQTT 设备层的配置，对应配置文件中的 mqtt 段。
type Config struct {
	// Broker 形如 tcp://127.0.0.1:1883 或 ssl://host:8883。
	Broker   string `mapstructure:"broker"`
	ClientID string `mapstructure:"client_id"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	TopicPrefix string `mapstructure:"topic_prefix"`
	QoS         byte   `mapstructure:"qos"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	// MaxConnectElapsed 限制首次连接的总等待时间，0 表示只受 ctx 约束。
	MaxConnectElapsed time.Duration `mapstructure:"max_connect_elapsed"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`

	// Credentials 为空时任何字段齐全的凭据都能通过校验。
	Credentials []capture.AppInfo `mapstructure:"credentials"`

	CallbackPoolSize int `mapstructure:"callback_pool_size"`
}

func DefaultConfig() Config {
	return Config{
		Broker:            "tcp://127.0.0.1:1883",
		ClientID:          "capture-bridge",
		TopicPrefix:       "capture",
		QoS:               1,
		ConnectTimeout:    10 * time.Second,
		MaxConnectElapsed: 30 * time.Second,
		RequestTimeout:    5 * time.Second,
		CallbackPoolSize:  8,
	}
}

func (c Config) validate() error {
	if c.Broker == "" {
		return errors.New("mqtt: broker cannot be empty")
	}
	if c.ClientID == "" {
		return errors.New("mqtt: client id cannot be empty")
	}
	if c.TopicPrefix == "" {
		return errors.New("mqtt: topic prefix cannot be empty")
	}
	if c.QoS > maxQoS {
		return errors.Newf("mqtt: invalid qos %d", c.QoS)
	}
	return nil
}

// withDefaults 用默认值补齐未设置的字段。
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = def.ConnectTimeout
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = def.RequestTimeout
	}
	if c.CallbackPoolSize <= 0 {
		c.CallbackPoolSize = def.CallbackPoolSize
	}
	return c
}
