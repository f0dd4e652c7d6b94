// Package config loads gpiod configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is wrapped by every validation failure.
var ErrInvalidConfig = errors.New("invalid configuration")

// Device driver names.
const (
	DriverSim  = "sim"
	DriverGPIO = "gpio"
)

// Config is the root configuration for gpiod.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Sequence SequenceConfig `yaml:"sequence"`
	Button   ButtonConfig   `yaml:"button"`
	Device   DeviceConfig   `yaml:"device"`
	Logging  LoggingConfig  `yaml:"logging"`
	Notify   NotifyConfig   `yaml:"notify"`
}

// ServerConfig contains the TCP listener and session settings.
type ServerConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	ReadBufferSize int    `yaml:"read_buffer_size"`
	// WriteTimeoutMS bounds a single write to a client, broadcasts included.
	WriteTimeoutMS int `yaml:"write_timeout_ms"`
	// MaxBroadcastClients caps the broadcast roster; 0 means unbounded.
	MaxBroadcastClients int `yaml:"max_broadcast_clients"`
	ShutdownTimeoutMS   int `yaml:"shutdown_timeout_ms"`
}

// SequenceConfig controls the extra sequence countdown.
type SequenceConfig struct {
	CountdownStart int `yaml:"countdown_start"`
	IntervalMS     int `yaml:"interval_ms"`
	Melody         int `yaml:"melody"`
}

// ButtonConfig controls the interrupt bridge.
type ButtonConfig struct {
	Pin        int `yaml:"pin"`
	DebounceMS int `yaml:"debounce_ms"`
	QueueSize  int `yaml:"queue_size"`
}

// DeviceConfig selects and configures the device driver.
type DeviceConfig struct {
	Driver         string     `yaml:"driver"`
	Pins           PinsConfig `yaml:"pins"`
	PWMFrequencyHz int        `yaml:"pwm_frequency_hz"`
}

// PinsConfig holds BCM GPIO numbers.
type PinsConfig struct {
	LED     int    `yaml:"led"`
	Buzzer  int    `yaml:"buzzer"`
	Sensor  int    `yaml:"sensor"`
	Button  int    `yaml:"button"`
	Display [4]int `yaml:"display"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Dir    string `yaml:"dir"`
}

// NotifyConfig contains the optional event mirrors.
type NotifyConfig struct {
	Redis RedisConfig `yaml:"redis"`
	MQTT  MQTTConfig  `yaml:"mqtt"`
}

// RedisConfig configures the Redis pub/sub event mirror.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

// MQTTConfig configures the MQTT event mirror.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Topic    string `yaml:"topic"`
	QoS      int    `yaml:"qos"`
}

// Load reads configuration from path, applies GPIOD_* environment overrides
// and validates the result. An empty path yields the defaults.
//
// Parameters:
//   - path: YAML file path, or "" for defaults only
//
// Returns:
//   - The validated configuration, or an error
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration matching the reference hardware build.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                "0.0.0.0",
			Port:                5000,
			ReadBufferSize:      1024,
			WriteTimeoutMS:      2000,
			MaxBroadcastClients: 10,
			ShutdownTimeoutMS:   10000,
		},
		Sequence: SequenceConfig{
			CountdownStart: 9,
			IntervalMS:     1000,
			Melody:         1,
		},
		Button: ButtonConfig{
			Pin:        18,
			DebounceMS: 200,
			QueueSize:  16,
		},
		Device: DeviceConfig{
			Driver: DriverSim,
			Pins: PinsConfig{
				LED:     17,
				Buzzer:  27,
				Sensor:  19,
				Button:  18,
				Display: [4]int{5, 6, 12, 13},
			},
			PWMFrequencyHz: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Notify: NotifyConfig{
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "gpiod:events",
			},
			MQTT: MQTTConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "gpiod",
				Topic:    "gpiod/events",
				QoS:      1,
			},
		},
	}
}

// applyEnvOverrides applies GPIOD_SECTION_KEY environment variables.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GPIOD_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v, ok := envInt("GPIOD_SERVER_PORT"); ok {
		cfg.Server.Port = v
	}
	if v := os.Getenv("GPIOD_DEVICE_DRIVER"); v != "" {
		cfg.Device.Driver = v
	}
	if v := os.Getenv("GPIOD_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("GPIOD_LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv("GPIOD_REDIS_ADDR"); v != "" {
		cfg.Notify.Redis.Addr = v
	}
	if v := os.Getenv("GPIOD_REDIS_PASSWORD"); v != "" {
		cfg.Notify.Redis.Password = v
	}
	if v := os.Getenv("GPIOD_MQTT_HOST"); v != "" {
		cfg.Notify.MQTT.Host = v
	}
	if v := os.Getenv("GPIOD_MQTT_PASSWORD"); v != "" {
		cfg.Notify.MQTT.Password = v
	}
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}

	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}

	return n, true
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.ReadBufferSize < 16 {
		problems = append(problems, "server.read_buffer_size must be at least 16")
	}
	if c.Server.MaxBroadcastClients < 0 {
		problems = append(problems, "server.max_broadcast_clients cannot be negative")
	}
	if c.Sequence.CountdownStart < 0 || c.Sequence.CountdownStart > 9 {
		problems = append(problems, "sequence.countdown_start must be a single digit")
	}
	if c.Sequence.IntervalMS <= 0 {
		problems = append(problems, "sequence.interval_ms must be positive")
	}
	if c.Button.DebounceMS < 0 {
		problems = append(problems, "button.debounce_ms cannot be negative")
	}
	if c.Button.QueueSize < 1 {
		problems = append(problems, "button.queue_size must be at least 1")
	}
	switch c.Device.Driver {
	case DriverSim, DriverGPIO:
	default:
		problems = append(problems, fmt.Sprintf("device.driver %q is not one of sim, gpio", c.Device.Driver))
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not one of json, console", c.Logging.Format))
	}
	if c.Notify.Redis.Enabled && c.Notify.Redis.Channel == "" {
		problems = append(problems, "notify.redis.channel is required when redis is enabled")
	}
	if c.Notify.MQTT.Enabled {
		if c.Notify.MQTT.Topic == "" {
			problems = append(problems, "notify.mqtt.topic is required when mqtt is enabled")
		}
		if c.Notify.MQTT.QoS < 0 || c.Notify.MQTT.QoS > 2 {
			problems = append(problems, "notify.mqtt.qos must be 0, 1 or 2")
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}

	return nil
}

// ListenAddr returns the host:port the listener binds.
func (c *Config) ListenAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// WriteTimeout returns the per-write deadline; zero disables it.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.WriteTimeoutMS) * time.Millisecond
}

// ShutdownTimeout returns how long shutdown waits for background tasks.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.Server.ShutdownTimeoutMS) * time.Millisecond
}

// SequenceInterval returns the countdown step duration.
func (c *Config) SequenceInterval() time.Duration {
	return time.Duration(c.Sequence.IntervalMS) * time.Millisecond
}

// DebounceWindow returns the interrupt debounce window.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.Button.DebounceMS) * time.Millisecond
}
