package application

import (
	"time"

	"github.com/lk2023060901/capture-bridge-go/internal/bridge"
	"github.com/lk2023060901/capture-bridge-go/internal/capture/mqttlayer"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
	zlog "github.com/lk2023060901/capture-bridge-go/pkg/log"
	zviper "github.com/lk2023060901/capture-bridge-go/pkg/util/viper"
)

// 设备层实现。
const (
	LayerSim  = "sim"
	LayerMQTT = "mqtt"
)

// EnvPrefix 是所有环境变量覆盖项的前缀。
const EnvPrefix = "BRIDGE"

// Config 是进程级配置，对应配置文件的顶层结构。
//
// 示例：
//
//	layer: mqtt
//	bridge:
//	  channel: maracaSendJsonRpc
//	  app_info: {app_id: ..., app_key: ..., developer_id: ...}
//	http:
//	  listen: ":8080"
//	transport:
//	  path: /ws
//	mqtt:
//	  broker: tcp://127.0.0.1:1883
//	metrics:
//	  enabled: true
//	log:
//	  level: info
//	  stdout: true
type Config struct {
	Layer     string           `mapstructure:"layer"`
	Bridge    bridge.Config    `mapstructure:"bridge"`
	HTTP      HTTPConfig       `mapstructure:"http"`
	Transport transport.Config `mapstructure:"transport"`
	MQTT      mqttlayer.Config `mapstructure:"mqtt"`
	Metrics   MetricsConfig    `mapstructure:"metrics"`
	Log       zlog.Config      `mapstructure:"log"`
}

type HTTPConfig struct {
	Listen          string        `mapstructure:"listen"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// setDefaults 为所有可被环境变量覆盖的 key 设置默认值。
func setDefaults(c *zviper.Config) {
	b := bridge.DefaultConfig()
	t := transport.DefaultConfig()
	m := mqttlayer.DefaultConfig()

	c.SetDefault("layer", LayerSim)

	c.SetDefault("bridge.channel", b.Channel)
	c.SetDefault("bridge.app_info.app_id", "")
	c.SetDefault("bridge.app_info.app_key", "")
	c.SetDefault("bridge.app_info.developer_id", "")
	c.SetDefault("bridge.open_attempts", b.OpenAttempts)
	c.SetDefault("bridge.open_retry_sleep", b.OpenRetrySleep)
	c.SetDefault("bridge.supported_versions", b.SupportedVersions)

	c.SetDefault("http.listen", ":8080")
	c.SetDefault("http.shutdown_timeout", 5*time.Second)

	c.SetDefault("transport.path", t.Path)
	c.SetDefault("transport.send_queue_size", t.SendQueueSize)
	c.SetDefault("transport.write_timeout", t.WriteTimeout)

	c.SetDefault("mqtt.broker", m.Broker)
	c.SetDefault("mqtt.client_id", m.ClientID)
	c.SetDefault("mqtt.username", "")
	c.SetDefault("mqtt.password", "")
	c.SetDefault("mqtt.topic_prefix", m.TopicPrefix)
	c.SetDefault("mqtt.qos", m.QoS)
	c.SetDefault("mqtt.connect_timeout", m.ConnectTimeout)
	c.SetDefault("mqtt.max_connect_elapsed", m.MaxConnectElapsed)
	c.SetDefault("mqtt.request_timeout", m.RequestTimeout)
	c.SetDefault("mqtt.callback_pool_size", m.CallbackPoolSize)

	c.SetDefault("metrics.enabled", true)
	c.SetDefault("metrics.path", "/metrics")

	c.SetDefault("log.level", "info")
	c.SetDefault("log.format", "text")
	c.SetDefault("log.stdout", true)
	c.SetDefault("log.file.root_path", "")
	c.SetDefault("log.file.filename", "")
}
