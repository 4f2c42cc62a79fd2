// Package config provides Viper-based configuration loading for the impostor server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds process-wide network settings.
type ServerConfig struct {
	// Host is the bind address shared by the HTTP and WebSocket listeners.
	Host string `mapstructure:"host"`
	// PublicHost overrides the discovered LAN address in the operator banner
	// and in the endpoint advertised to browser clients. Empty means discover.
	PublicHost string `mapstructure:"public_host"`
}

// HTTPConfig holds static asset server settings.
type HTTPConfig struct {
	// Port is the first port tried for the static asset listener.
	Port int `mapstructure:"port"`
	// PortAttempts bounds free-port probing starting at Port.
	PortAttempts int `mapstructure:"port_attempts"`
	// StaticDir serves the UI from disk instead of the embedded copy when set.
	StaticDir string `mapstructure:"static_dir"`
}

// WebSocketConfig holds WebSocket acceptor settings.
type WebSocketConfig struct {
	// Port is the first port tried for the WebSocket listener.
	Port int `mapstructure:"port"`
	// PortAttempts bounds free-port probing starting at Port.
	PortAttempts int `mapstructure:"port_attempts"`
	// Path is the HTTP path upgraded to WebSocket.
	Path string `mapstructure:"path"`
	// WriteTimeout is the per-frame write deadline used by the write pump.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// PongWait is how long a connection may stay silent before it is dropped.
	PongWait time.Duration `mapstructure:"pong_wait"`
	// SendTimeout bounds how long one broadcast delivery may wait on a full queue.
	SendTimeout time.Duration `mapstructure:"send_timeout"`
	// SendBuffer is the outbound queue depth per connection.
	SendBuffer int `mapstructure:"send_buffer"`
	// MaxMessageBytes is the inbound frame size limit.
	MaxMessageBytes int64 `mapstructure:"max_message_bytes"`
}

// PingPeriod returns the keepalive ping interval derived from PongWait.
//
// Postcondition: Returns a duration strictly less than PongWait when PongWait > 0.
func (w WebSocketConfig) PingPeriod() time.Duration {
	return (w.PongWait * 9) / 10
}

// SessionConfig holds participant and room lifetime settings.
type SessionConfig struct {
	// GracePeriod is how long a disconnected participant keeps its identity
	// and membership before being purged.
	GracePeriod time.Duration `mapstructure:"grace_period"`
	// RoomIdleTimeout is how long a room with no members and no connected
	// host survives before the reaper removes it. Zero disables reaping.
	RoomIdleTimeout time.Duration `mapstructure:"room_idle_timeout"`
	// ReapInterval is the reaper tick interval.
	ReapInterval time.Duration `mapstructure:"reap_interval"`
}

// ContentConfig holds game content settings.
type ContentConfig struct {
	// TopicsFile replaces the embedded topic corpus when set.
	TopicsFile string `mapstructure:"topics_file"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Session   SessionConfig   `mapstructure:"session"`
	Content   ContentConfig   `mapstructure:"content"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateHTTP(c.HTTP); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateSession(c.Session); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	if s.Host == "" {
		return errors.New("server.host must not be empty")
	}
	return nil
}

func validatePortRange(prefix string, port, attempts int) []string {
	var errs []string
	if port < 1 || port > 65535 {
		errs = append(errs, fmt.Sprintf("%s.port must be 1-65535, got %d", prefix, port))
	}
	if attempts < 1 {
		errs = append(errs, fmt.Sprintf("%s.port_attempts must be >= 1, got %d", prefix, attempts))
	}
	if port+attempts-1 > 65535 {
		errs = append(errs, fmt.Sprintf("%s.port + port_attempts exceeds 65535", prefix))
	}
	return errs
}

func validateHTTP(h HTTPConfig) error {
	errs := validatePortRange("http", h.Port, h.PortAttempts)
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	errs := validatePortRange("websocket", w.Port, w.PortAttempts)
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.PongWait <= 0 {
		errs = append(errs, "websocket.pong_wait must be positive")
	}
	if w.SendTimeout <= 0 {
		errs = append(errs, "websocket.send_timeout must be positive")
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if w.MaxMessageBytes < 64 {
		errs = append(errs, fmt.Sprintf("websocket.max_message_bytes must be >= 64, got %d", w.MaxMessageBytes))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.GracePeriod <= 0 {
		errs = append(errs, "session.grace_period must be positive")
	}
	if s.RoomIdleTimeout < 0 {
		errs = append(errs, "session.room_idle_timeout must not be negative")
	}
	if s.RoomIdleTimeout > 0 && s.ReapInterval <= 0 {
		errs = append(errs, "session.reap_interval must be positive when room_idle_timeout is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. An empty path skips the file and uses
// defaults plus environment overrides only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with IMPOSTOR_ prefix
	v.SetEnvPrefix("IMPOSTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns a Viper instance populated only with default values.
func Defaults() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.public_host", "")

	v.SetDefault("http.port", 8080)
	v.SetDefault("http.port_attempts", 10)
	v.SetDefault("http.static_dir", "")

	v.SetDefault("websocket.port", 8765)
	v.SetDefault("websocket.port_attempts", 10)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.send_timeout", "2s")
	v.SetDefault("websocket.send_buffer", 32)
	v.SetDefault("websocket.max_message_bytes", 4096)

	v.SetDefault("session.grace_period", "30s")
	v.SetDefault("session.room_idle_timeout", "10m")
	v.SetDefault("session.reap_interval", "1m")

	v.SetDefault("content.topics_file", "")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}
