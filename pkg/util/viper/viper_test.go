package viper

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type transportSection struct {
	Listen    string `mapstructure:"listen"`
	QueueSize int    `mapstructure:"queue_size"`
}

type rootConfig struct {
	Transport transportSection `mapstructure:"transport"`
}

func TestLoadFileAndEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("transport:\n  listen: \":8080\"\n  queue_size: 16\n"), 0o600))

	t.Setenv("BRIDGETEST_TRANSPORT_QUEUE_SIZE", "64")

	c := New()
	c.BindEnv("BRIDGETEST")
	c.SetDefault("transport.queue_size", 8)
	require.NoError(t, c.LoadFile(path))

	var cfg rootConfig
	require.NoError(t, c.Unmarshal(&cfg))
	assert.Equal(t, ":8080", cfg.Transport.Listen)
	assert.Equal(t, 64, cfg.Transport.QueueSize)

	var section transportSection
	require.NoError(t, c.UnmarshalKey("transport", &section))
	assert.Equal(t, ":8080", section.Listen)
	assert.True(t, c.IsSet("transport.listen"))
	assert.Equal(t, ":8080", c.GetString("transport.listen"))
}

func TestDefaultsWithoutFile(t *testing.T) {
	c := New()
	c.SetDefault("transport.listen", ":9000")

	var cfg rootConfig
	require.NoError(t, c.Unmarshal(&cfg))
	assert.Equal(t, ":9000", cfg.Transport.Listen)
}

func TestLoadFileMissing(t *testing.T) {
	c := New()
	assert.Error(t, c.LoadFile(filepath.Join(t.TempDir(), "absent.yaml")))
}
