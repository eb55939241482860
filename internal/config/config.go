package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "ROOMWIRE_"

// Config holds all application configuration
type Config struct {
	Database   *DatabaseConfig   `json:"database" envPrefix:"DATABASE_"`
	HTTP       *HTTPConfig       `json:"http" envPrefix:"HTTP_"`
	WebSocket  *WebSocketConfig  `json:"websocket" envPrefix:"WEBSOCKET_"`
	Moderation *ModerationConfig `json:"moderation" envPrefix:"MODERATION_"`
	Auth       *AuthConfig       `json:"auth" envPrefix:"AUTH_"`
}

// DatabaseConfig holds database-specific configuration
type DatabaseConfig struct {
	Path           string        `json:"path" env:"PATH"`
	Timeout        time.Duration `json:"timeout" env:"TIMEOUT"`
	MaxConnections int           `json:"max_connections" env:"MAX_CONNECTIONS"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port            int           `json:"port" env:"PORT"`
	ReadTimeout     time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	Host            string        `json:"host" env:"HOST"`
}

// WebSocketConfig holds WebSocket-specific configuration
type WebSocketConfig struct {
	PingInterval  time.Duration `json:"ping_interval" env:"PING_INTERVAL"`
	ReadTimeout   time.Duration `json:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout  time.Duration `json:"write_timeout" env:"WRITE_TIMEOUT"`
	AuthTimeout   time.Duration `json:"auth_timeout" env:"AUTH_TIMEOUT"`
	BufferSize    int           `json:"buffer_size" env:"BUFFER_SIZE"`
	MaxFrameBytes int64         `json:"max_frame_bytes" env:"MAX_FRAME_BYTES"`
}

// ModerationConfig holds rate limit, content policy and presence settings
type ModerationConfig struct {
	RateLimitPerMinute int           `json:"rate_limit_per_minute" env:"RATE_LIMIT_PER_MINUTE"`
	MaxMessageLength   int           `json:"max_message_length" env:"MAX_MESSAGE_LENGTH"`
	BannedWords        []string      `json:"banned_words" env:"BANNED_WORDS" envSeparator:","`
	TypingTTL          time.Duration `json:"typing_ttl" env:"TYPING_TTL"`
	JanitorInterval    time.Duration `json:"janitor_interval" env:"JANITOR_INTERVAL"`
}

// AuthConfig holds bearer token verification settings
type AuthConfig struct {
	SecretKey string        `json:"-" env:"SECRET_KEY"`
	Issuer    string        `json:"issuer" env:"ISSUER"`
	TokenTTL  time.Duration `json:"token_ttl" env:"TOKEN_TTL"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Database: &DatabaseConfig{
			Path:           "./roomwire.db",
			Timeout:        30 * time.Second,
			MaxConnections: 10,
		},
		HTTP: &HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			Host:            "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval:  30 * time.Second,
			ReadTimeout:   60 * time.Second,
			WriteTimeout:  10 * time.Second,
			AuthTimeout:   10 * time.Second,
			BufferSize:    100,
			MaxFrameBytes: 64 * 1024,
		},
		Moderation: &ModerationConfig{
			RateLimitPerMinute: 60,
			MaxMessageLength:   2000,
			BannedWords:        []string{"badword1", "badword2", "badword3"},
			TypingTTL:          10 * time.Second,
			JanitorInterval:    30 * time.Second,
		},
		Auth: &AuthConfig{
			SecretKey: "change-me-in-production",
			Issuer:    "roomwire",
			TokenTTL:  24 * time.Hour,
		},
	}
}

// Validate checks that the configuration values are valid
func (c *Config) Validate() error {
	if c.Database == nil {
		return fmt.Errorf("database configuration is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.Database.MaxConnections <= 0 {
		return fmt.Errorf("database max connections must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 1 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		return fmt.Errorf("HTTP shutdown timeout must be positive")
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("HTTP host cannot be empty")
	}

	if c.WebSocket == nil {
		return fmt.Errorf("WebSocket configuration is required")
	}
	if c.WebSocket.PingInterval <= 0 {
		return fmt.Errorf("WebSocket ping interval must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("WebSocket read timeout must exceed the ping interval")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("WebSocket write timeout must be positive")
	}
	if c.WebSocket.AuthTimeout <= 0 {
		return fmt.Errorf("WebSocket auth timeout must be positive")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}
	if c.WebSocket.MaxFrameBytes <= 0 {
		return fmt.Errorf("WebSocket max frame bytes must be positive")
	}

	if c.Moderation == nil {
		return fmt.Errorf("moderation configuration is required")
	}
	if c.Moderation.RateLimitPerMinute <= 0 {
		return fmt.Errorf("rate limit per minute must be positive")
	}
	if c.Moderation.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.Moderation.TypingTTL <= 0 {
		return fmt.Errorf("typing TTL must be positive")
	}
	if c.Moderation.JanitorInterval <= 0 {
		return fmt.Errorf("janitor interval must be positive")
	}

	if c.Auth == nil {
		return fmt.Errorf("auth configuration is required")
	}
	if c.Auth.SecretKey == "" {
		return fmt.Errorf("auth secret key cannot be empty")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth token TTL must be positive")
	}

	return nil
}

// LoadFromEnv returns the defaults overlaid with ROOMWIRE_* environment
// variables, e.g. ROOMWIRE_HTTP_PORT or ROOMWIRE_MODERATION_BANNED_WORDS.
func LoadFromEnv() (*Config, error) {
	return applyEnv(DefaultConfig())
}

func applyEnv(config *Config) (*Config, error) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return config, nil
}

// ConfigFile is the on-disk JSON shape. Durations are Go duration strings
// ("30s", "5m"); omitted fields keep their previous value.
type ConfigFile struct {
	Database   *DatabaseConfigFile   `json:"database"`
	HTTP       *HTTPConfigFile       `json:"http"`
	WebSocket  *WebSocketConfigFile  `json:"websocket"`
	Moderation *ModerationConfigFile `json:"moderation"`
	Auth       *AuthConfigFile       `json:"auth"`
}

type DatabaseConfigFile struct {
	Path           string `json:"path"`
	Timeout        string `json:"timeout"`
	MaxConnections int    `json:"max_connections"`
}

type HTTPConfigFile struct {
	Port            int    `json:"port"`
	ReadTimeout     string `json:"read_timeout"`
	WriteTimeout    string `json:"write_timeout"`
	ShutdownTimeout string `json:"shutdown_timeout"`
	Host            string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval  string `json:"ping_interval"`
	ReadTimeout   string `json:"read_timeout"`
	WriteTimeout  string `json:"write_timeout"`
	AuthTimeout   string `json:"auth_timeout"`
	BufferSize    int    `json:"buffer_size"`
	MaxFrameBytes int64  `json:"max_frame_bytes"`
}

type ModerationConfigFile struct {
	RateLimitPerMinute int      `json:"rate_limit_per_minute"`
	MaxMessageLength   int      `json:"max_message_length"`
	BannedWords        []string `json:"banned_words"`
	TypingTTL          string   `json:"typing_ttl"`
	JanitorInterval    string   `json:"janitor_interval"`
}

type AuthConfigFile struct {
	SecretKey string `json:"secret_key"`
	Issuer    string `json:"issuer"`
	TokenTTL  string `json:"token_ttl"`
}

// LoadFromFile loads configuration from a JSON file on top of the defaults.
func LoadFromFile(filepath string) (*Config, error) {
	return applyFile(DefaultConfig(), filepath)
}

func applyFile(config *Config, filepath string) (*Config, error) {
	data, err := os.ReadFile(filepath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filepath, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filepath, err)
	}

	d := durationSetter{}

	if f := file.Database; f != nil {
		setString(&config.Database.Path, f.Path)
		d.set(&config.Database.Timeout, "database.timeout", f.Timeout)
		setInt(&config.Database.MaxConnections, f.MaxConnections)
	}
	if f := file.HTTP; f != nil {
		setInt(&config.HTTP.Port, f.Port)
		setString(&config.HTTP.Host, f.Host)
		d.set(&config.HTTP.ReadTimeout, "http.read_timeout", f.ReadTimeout)
		d.set(&config.HTTP.WriteTimeout, "http.write_timeout", f.WriteTimeout)
		d.set(&config.HTTP.ShutdownTimeout, "http.shutdown_timeout", f.ShutdownTimeout)
	}
	if f := file.WebSocket; f != nil {
		d.set(&config.WebSocket.PingInterval, "websocket.ping_interval", f.PingInterval)
		d.set(&config.WebSocket.ReadTimeout, "websocket.read_timeout", f.ReadTimeout)
		d.set(&config.WebSocket.WriteTimeout, "websocket.write_timeout", f.WriteTimeout)
		d.set(&config.WebSocket.AuthTimeout, "websocket.auth_timeout", f.AuthTimeout)
		setInt(&config.WebSocket.BufferSize, f.BufferSize)
		if f.MaxFrameBytes > 0 {
			config.WebSocket.MaxFrameBytes = f.MaxFrameBytes
		}
	}
	if f := file.Moderation; f != nil {
		setInt(&config.Moderation.RateLimitPerMinute, f.RateLimitPerMinute)
		setInt(&config.Moderation.MaxMessageLength, f.MaxMessageLength)
		if f.BannedWords != nil {
			config.Moderation.BannedWords = f.BannedWords
		}
		d.set(&config.Moderation.TypingTTL, "moderation.typing_ttl", f.TypingTTL)
		d.set(&config.Moderation.JanitorInterval, "moderation.janitor_interval", f.JanitorInterval)
	}
	if f := file.Auth; f != nil {
		setString(&config.Auth.SecretKey, f.SecretKey)
		setString(&config.Auth.Issuer, f.Issuer)
		d.set(&config.Auth.TokenTTL, "auth.token_ttl", f.TokenTTL)
	}

	if d.err != nil {
		return nil, fmt.Errorf("invalid duration in %s: %w", filepath, d.err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", filepath, err)
	}

	return config, nil
}

// LoadConfigWithPrecedence loads configuration with precedence:
// file > environment > defaults. A missing or invalid file is reported.
func LoadConfigWithPrecedence(filepath string) (*Config, error) {
	config, err := LoadFromEnv()
	if err != nil {
		return nil, err
	}

	if filepath != "" {
		config, err = applyFile(config, filepath)
		if err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

type durationSetter struct {
	err error
}

func (d *durationSetter) set(dst *time.Duration, key, value string) {
	if value == "" || d.err != nil {
		return
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		d.err = fmt.Errorf("%s: %w", key, err)
		return
	}
	*dst = parsed
}

func setString(dst *string, value string) {
	if value != "" {
		*dst = value
	}
}

func setInt(dst *int, value int) {
	if value > 0 {
		*dst = value
	}
}
