package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "gpiod.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Run("empty path yields defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, 5000, cfg.Server.Port)
		assert.Equal(t, 1024, cfg.Server.ReadBufferSize)
		assert.Equal(t, 10, cfg.Server.MaxBroadcastClients)
		assert.Equal(t, 9, cfg.Sequence.CountdownStart)
		assert.Equal(t, 18, cfg.Button.Pin)
		assert.Equal(t, 200*time.Millisecond, cfg.DebounceWindow())
		assert.Equal(t, time.Second, cfg.SequenceInterval())
		assert.Equal(t, DriverSim, cfg.Device.Driver)
		assert.Equal(t, [4]int{5, 6, 12, 13}, cfg.Device.Pins.Display)
		assert.Equal(t, "0.0.0.0:5000", cfg.ListenAddr())
	})

	t.Run("file values override defaults", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 6000
  max_broadcast_clients: 0
sequence:
  interval_ms: 50
logging:
  level: debug
  format: console
notify:
  redis:
    enabled: true
    channel: events
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 6000, cfg.Server.Port)
		assert.Equal(t, 0, cfg.Server.MaxBroadcastClients)
		assert.Equal(t, 50*time.Millisecond, cfg.SequenceInterval())
		assert.Equal(t, "console", cfg.Logging.Format)
		assert.True(t, cfg.Notify.Redis.Enabled)
		assert.Equal(t, "events", cfg.Notify.Redis.Channel)
		assert.Equal(t, 1024, cfg.Server.ReadBufferSize)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		path := writeConfig(t, "server:\n  port: 6000\n")
		t.Setenv("GPIOD_SERVER_PORT", "7000")
		t.Setenv("GPIOD_DEVICE_DRIVER", "gpio")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, 7000, cfg.Server.Port)
		assert.Equal(t, DriverGPIO, cfg.Device.Driver)
	})

	t.Run("missing file is an error", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("malformed yaml is an error", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [unclosed"))
		assert.Error(t, err)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"tiny read buffer", func(c *Config) { c.Server.ReadBufferSize = 4 }},
		{"negative roster", func(c *Config) { c.Server.MaxBroadcastClients = -1 }},
		{"two digit countdown", func(c *Config) { c.Sequence.CountdownStart = 10 }},
		{"zero interval", func(c *Config) { c.Sequence.IntervalMS = 0 }},
		{"empty button queue", func(c *Config) { c.Button.QueueSize = 0 }},
		{"unknown driver", func(c *Config) { c.Device.Driver = "spi" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
		{"redis without channel", func(c *Config) {
			c.Notify.Redis.Enabled = true
			c.Notify.Redis.Channel = ""
		}},
		{"mqtt qos out of range", func(c *Config) {
			c.Notify.MQTT.Enabled = true
			c.Notify.MQTT.QoS = 3
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
		})
	}

	t.Run("defaults are valid", func(t *testing.T) {
		assert.NoError(t, Default().Validate())
	})
}
