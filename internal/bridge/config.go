package bridge

import (
	"time"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
	"github.com/lk2023060901/capture-bridge-go/internal/transport"
)

// Config 是桥接核心的配置，对应配置文件中的 bridge 段。
type Config struct {
	// Channel 是页面发送 JSON-RPC 时使用的消息通道名。
	Channel string `mapstructure:"channel"`
	// AppInfo 是打开设备层时使用的宿主应用凭据。
	AppInfo capture.AppInfo `mapstructure:"app_info"`
	// OpenAttempts 是打开设备层的最大尝试次数，包含第一次。
	OpenAttempts   uint          `mapstructure:"open_attempts"`
	OpenRetrySleep time.Duration `mapstructure:"open_retry_sleep"`
	// SupportedVersions 是设备层版本的 semver 范围，例如 ">=1.0.0 <2.0.0"，为空时不检查。
	SupportedVersions string `mapstructure:"supported_versions"`
}

func DefaultConfig() Config {
	return Config{
		Channel:           transport.InboundChannel,
		OpenAttempts:      3,
		OpenRetrySleep:    500 * time.Millisecond,
		SupportedVersions: ">=1.0.0",
	}
}
