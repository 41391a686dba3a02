// Package config loads the bot host configuration from YAML with defaults
// and fail-fast validation.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/BaSui01/skillflow/auth"
)

// State backend names.
const (
	StateBackendMemory = "memory"
	StateBackendRedis  = "redis"
)

// Config is the full host configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Transport TransportConfig `yaml:"transport"`
	Auth      AuthConfig      `yaml:"auth"`
	State     StateConfig     `yaml:"state"`
	Router    RouterConfig    `yaml:"router"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP/WebSocket listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// TransportConfig configures outbound skill channels.
type TransportConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout"`
}

// AuthConfig configures the token hand-off and inbound caller validation.
type AuthConfig struct {
	// Remote delegates token acquisition to the calling bot.
	Remote bool `yaml:"remote"`
	// RemoteTimeout bounds the wait for a tokens/response event.
	RemoteTimeout time.Duration     `yaml:"remoteTimeout"`
	Connections   []auth.Connection `yaml:"connections"`
	// JWT validates inbound bot-to-bot callers; empty signing key disables
	// validation.
	JWT auth.JWTValidatorConfig `yaml:"jwt"`
}

// StateConfig selects and configures the conversation state backend.
type StateConfig struct {
	Backend string           `yaml:"backend"`
	Redis   RedisStateConfig `yaml:"redis"`
	// SQLitePath stores durable conversation references; empty disables the
	// reference store.
	SQLitePath string `yaml:"sqlitePath"`
}

// RedisStateConfig mirrors state.RedisConfig in YAML form.
type RedisStateConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

// RouterConfig configures routing behavior.
type RouterConfig struct {
	SkillMode bool `yaml:"skillMode"`
	// ManifestPaths are skill manifest files loaded at startup.
	ManifestPaths []string `yaml:"manifestPaths"`
	// ActionDialogs maps manifest action ids to local dialog ids.
	ActionDialogs map[string]string `yaml:"actionDialogs"`
	IntroMessage  string            `yaml:"introMessage"`
}

// TelemetryConfig configures the OTLP exporters.
type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"serviceName"`
	SampleRatio float64 `yaml:"sampleRatio"`
}

// DefaultConfig returns a runnable local setup.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":3978",
			ShutdownTimeout: 10 * time.Second,
		},
		Transport: TransportConfig{
			RequestTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			RemoteTimeout: auth.DefaultRemoteTimeout,
		},
		State: StateConfig{
			Backend: StateBackendMemory,
			Redis: RedisStateConfig{
				Addr: "localhost:6379",
				TTL:  24 * time.Hour,
			},
		},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4317",
			ServiceName: "skillflow",
			SampleRatio: 1.0,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate fails fast on configurations the host cannot run with.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config: server.addr is required")
	}
	if c.Transport.RequestTimeout <= 0 {
		return fmt.Errorf("config: transport.requestTimeout must be positive")
	}
	switch c.State.Backend {
	case StateBackendMemory:
	case StateBackendRedis:
		if c.State.Redis.Addr == "" {
			return fmt.Errorf("config: state.redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("config: unknown state backend %q", c.State.Backend)
	}
	for _, conn := range c.Auth.Connections {
		if _, err := conn.Provider(); err != nil {
			return err
		}
	}
	if c.Telemetry.Enabled && c.Telemetry.Endpoint == "" {
		return fmt.Errorf("config: telemetry.endpoint is required when telemetry is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("config: telemetry.sampleRatio must be within [0, 1]")
	}
	return nil
}
