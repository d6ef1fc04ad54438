package application

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/capture-bridge-go/internal/capture"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestInitDefaultsWithoutFile(t *testing.T) {
	chdir(t, t.TempDir())

	app := New()
	require.NoError(t, app.Init(nil))

	cfg := app.Config()
	assert.Equal(t, LayerSim, cfg.Layer)
	assert.Equal(t, "maracaSendJsonRpc", cfg.Bridge.Channel)
	assert.Equal(t, "/ws", cfg.Transport.Path)
	assert.Equal(t, ":8080", cfg.HTTP.Listen)
	assert.True(t, cfg.Bridge.AppInfo.Complete())
}

func TestInitFileAndEnvOverride(t *testing.T) {
	path := writeConfig(t, `
layer: mqtt
bridge:
  app_info:
    app_id: app
    app_key: key
    developer_id: dev
  open_retry_sleep: 250ms
mqtt:
  broker: tcp://broker:1883
  topic_prefix: scanners
  credentials:
    - app_id: app
      app_key: key
      developer_id: dev
http:
  listen: ":9000"
`)
	t.Setenv("BRIDGE_HTTP_LISTEN", ":9100")
	t.Setenv("BRIDGE_LOG_STDOUT", "false")

	app := New()
	require.NoError(t, app.Init([]string{"--config", path}))

	cfg := app.Config()
	assert.Equal(t, LayerMQTT, cfg.Layer)
	assert.Equal(t, ":9100", cfg.HTTP.Listen)
	assert.Equal(t, 250*time.Millisecond, cfg.Bridge.OpenRetrySleep)
	assert.Equal(t, "tcp://broker:1883", cfg.MQTT.Broker)
	assert.Equal(t, "scanners", cfg.MQTT.TopicPrefix)
	assert.Equal(t, []capture.AppInfo{{AppID: "app", AppKey: "key", DeveloperID: "dev"}}, cfg.MQTT.Credentials)
	assert.False(t, cfg.Log.Stdout)
}

func TestInitExplicitFileMissing(t *testing.T) {
	app := New()
	err := app.Init([]string{"--config=" + filepath.Join(t.TempDir(), "absent.yaml")})
	assert.Error(t, err)

	err = New().Init([]string{"--config"})
	assert.Error(t, err)
}

func TestInitUnknownLayer(t *testing.T) {
	path := writeConfig(t, "layer: bluetooth\n")
	t.Setenv("BRIDGE_CONFIG_FILE_PATH", path)
	assert.Error(t, New().Init(nil))
}

func TestHTTPRoutes(t *testing.T) {
	chdir(t, t.TempDir())
	app := New()
	require.NoError(t, app.Init(nil))
	h := app.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	// 没有模拟设备时扫码请求返回 404。
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sim/scan", bytes.NewBufferString(`{"data":"123"}`)))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/sim/scan", bytes.NewBufferString(`{}`)))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// chdir mirrors testing.T.Chdir (Go 1.24+) for older toolchains.
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
