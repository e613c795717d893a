package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"

	dbconfig "courier/pkg/database"
)

// ARCHITECTURAL DISCOVERY: Configuration layer serves as system-wide settings coordinator
// Clean separation between configuration management and business logic
type Config struct {
	Store     *StoreConfig     `json:"store"`
	HTTP      *HTTPConfig      `json:"http"`
	WebSocket *WebSocketConfig `json:"websocket"`
	Retention *RetentionConfig `json:"retention"`
	Log       *LogConfig       `json:"log"`
}

// StoreConfig selects the persistence backend by connection string
// (sqlite://path or badger://dir)
type StoreConfig struct {
	DSN          string        `json:"dsn"`
	Timeout      time.Duration `json:"timeout"`
	HistoryLimit int           `json:"history_limit"`
}

// FUNCTIONAL DISCOVERY: HTTP configuration balances performance and reliability
type HTTPConfig struct {
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	Host         string        `json:"host"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `json:"ping_interval"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	BufferSize   int           `json:"buffer_size"`
}

// RetentionConfig bounds how long undelivered or unacknowledged messages live
type RetentionConfig struct {
	MaxAge        time.Duration `json:"max_age"`
	SweepInterval time.Duration `json:"sweep_interval"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// DefaultConfig listens on 5000 with a local SQLite store and a 24h retention window
func DefaultConfig() *Config {
	return &Config{
		Store: &StoreConfig{
			DSN:          "sqlite://./courier.db",
			Timeout:      30 * time.Second,
			HistoryLimit: 50,
		},
		HTTP: &HTTPConfig{
			Port:         5000,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
			Host:         "0.0.0.0",
		},
		WebSocket: &WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Retention: &RetentionConfig{
			MaxAge:        24 * time.Hour,
			SweepInterval: time.Hour,
		},
		Log: &LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// FUNCTIONAL DISCOVERY: Comprehensive validation prevents invalid system configurations
// Critical for preventing runtime failures in production deployment
func (c *Config) Validate() error {
	if c.Store == nil {
		return fmt.Errorf("store configuration is required")
	}
	if _, _, err := dbconfig.ParseDSN(c.Store.DSN); err != nil {
		return fmt.Errorf("invalid store DSN: %w", err)
	}
	if c.Store.Timeout <= 0 {
		return fmt.Errorf("store timeout must be positive")
	}
	if c.Store.HistoryLimit <= 0 {
		return fmt.Errorf("history limit must be positive")
	}

	if c.HTTP == nil {
		return fmt.Errorf("HTTP configuration is required")
	}
	// Port 0 binds an ephemeral port
	if c.HTTP.Port < 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("HTTP port must be between 0 and 65535")
	}
	if c.HTTP.ReadTimeout <= 0 {
		return fmt.Errorf("HTTP read timeout must be positive")
	}
	if c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("HTTP write timeout must be positive")
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
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("WebSocket buffer size must be positive")
	}

	if c.Retention == nil {
		return fmt.Errorf("retention configuration is required")
	}
	if c.Retention.MaxAge <= 0 {
		return fmt.Errorf("retention max age must be positive")
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("retention sweep interval must be positive")
	}

	if c.Log == nil {
		return fmt.Errorf("log configuration is required")
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("log format must be text or json")
	}

	return nil
}

// Environment mirrors every overridable setting; unset variables stay nil
type Environment struct {
	Port                   *int           `env:"PORT"`
	Host                   *string        `env:"HOST"`
	StoreDSN               *string        `env:"STORE_DSN"`
	StoreTimeout           *time.Duration `env:"STORE_TIMEOUT"`
	HTTPReadTimeout        *time.Duration `env:"HTTP_READ_TIMEOUT"`
	HTTPWriteTimeout       *time.Duration `env:"HTTP_WRITE_TIMEOUT"`
	WSPingInterval         *time.Duration `env:"WS_PING_INTERVAL"`
	WSReadTimeout          *time.Duration `env:"WS_READ_TIMEOUT"`
	WSWriteTimeout         *time.Duration `env:"WS_WRITE_TIMEOUT"`
	WSBufferSize           *int           `env:"WS_BUFFER_SIZE"`
	RetentionMaxAge        *time.Duration `env:"RETENTION_MAX_AGE"`
	RetentionSweepInterval *time.Duration `env:"RETENTION_SWEEP_INTERVAL"`
	HistoryLimit           *int           `env:"HISTORY_LIMIT"`
	LogLevel               *string        `env:"LOG_LEVEL"`
	LogFormat              *string        `env:"LOG_FORMAT"`
}

// ApplyEnvironment overrides config with every variable present in the process environment
func ApplyEnvironment(config *Config) error {
	var e Environment
	if _, err := env.UnmarshalFromEnviron(&e); err != nil {
		return fmt.Errorf("failed to read environment: %w", err)
	}

	setIf(&config.HTTP.Port, e.Port)
	setIf(&config.HTTP.Host, e.Host)
	setIf(&config.HTTP.ReadTimeout, e.HTTPReadTimeout)
	setIf(&config.HTTP.WriteTimeout, e.HTTPWriteTimeout)
	setIf(&config.Store.DSN, e.StoreDSN)
	setIf(&config.Store.Timeout, e.StoreTimeout)
	setIf(&config.Store.HistoryLimit, e.HistoryLimit)
	setIf(&config.WebSocket.PingInterval, e.WSPingInterval)
	setIf(&config.WebSocket.ReadTimeout, e.WSReadTimeout)
	setIf(&config.WebSocket.WriteTimeout, e.WSWriteTimeout)
	setIf(&config.WebSocket.BufferSize, e.WSBufferSize)
	setIf(&config.Retention.MaxAge, e.RetentionMaxAge)
	setIf(&config.Retention.SweepInterval, e.RetentionSweepInterval)
	setIf(&config.Log.Level, e.LogLevel)
	setIf(&config.Log.Format, e.LogFormat)
	return nil
}

func setIf[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}

// ConfigFile represents the JSON structure for file-based configuration
// FUNCTIONAL DISCOVERY: Separate struct for JSON parsing to handle duration strings
type ConfigFile struct {
	Store     *StoreConfigFile     `json:"store"`
	HTTP      *HTTPConfigFile      `json:"http"`
	WebSocket *WebSocketConfigFile `json:"websocket"`
	Retention *RetentionConfigFile `json:"retention"`
	Log       *LogConfig           `json:"log"`
}

type StoreConfigFile struct {
	DSN          string `json:"dsn"`
	Timeout      string `json:"timeout"`
	HistoryLimit int    `json:"history_limit"`
}

type HTTPConfigFile struct {
	Port         int    `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	Host         string `json:"host"`
}

type WebSocketConfigFile struct {
	PingInterval string `json:"ping_interval"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
	BufferSize   int    `json:"buffer_size"`
}

type RetentionConfigFile struct {
	MaxAge        string `json:"max_age"`
	SweepInterval string `json:"sweep_interval"`
}

// ApplyFile overrides config with every field present in the JSON file at path
// FUNCTIONAL DISCOVERY: A malformed duration is an error rather than silently
// ignored, so a typo never leaves a production default in place unnoticed
func ApplyFile(config *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var file ConfigFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	var errs []error
	duration := func(dst *time.Duration, value, name string) {
		if value == "" {
			return
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
			return
		}
		*dst = d
	}

	if s := file.Store; s != nil {
		if s.DSN != "" {
			config.Store.DSN = s.DSN
		}
		if s.HistoryLimit > 0 {
			config.Store.HistoryLimit = s.HistoryLimit
		}
		duration(&config.Store.Timeout, s.Timeout, "store.timeout")
	}
	if h := file.HTTP; h != nil {
		if h.Port > 0 {
			config.HTTP.Port = h.Port
		}
		if h.Host != "" {
			config.HTTP.Host = h.Host
		}
		duration(&config.HTTP.ReadTimeout, h.ReadTimeout, "http.read_timeout")
		duration(&config.HTTP.WriteTimeout, h.WriteTimeout, "http.write_timeout")
	}
	if w := file.WebSocket; w != nil {
		if w.BufferSize > 0 {
			config.WebSocket.BufferSize = w.BufferSize
		}
		duration(&config.WebSocket.PingInterval, w.PingInterval, "websocket.ping_interval")
		duration(&config.WebSocket.ReadTimeout, w.ReadTimeout, "websocket.read_timeout")
		duration(&config.WebSocket.WriteTimeout, w.WriteTimeout, "websocket.write_timeout")
	}
	if r := file.Retention; r != nil {
		duration(&config.Retention.MaxAge, r.MaxAge, "retention.max_age")
		duration(&config.Retention.SweepInterval, r.SweepInterval, "retention.sweep_interval")
	}
	if l := file.Log; l != nil {
		if l.Level != "" {
			config.Log.Level = l.Level
		}
		if l.Format != "" {
			config.Log.Format = l.Format
		}
	}

	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return nil
}

// LoadOptions names the optional sources consulted by Load
type LoadOptions struct {
	ConfigFile string
	EnvFile    string
}

// Load builds the configuration: defaults, then environment (after loading the
// dotenv file), then the JSON file. The result is validated.
// FUNCTIONAL DISCOVERY: An explicitly named env or config file must exist; the
// implicit ./.env is optional
func Load(opts LoadOptions) (*Config, error) {
	if opts.EnvFile != "" {
		if err := godotenv.Load(opts.EnvFile); err != nil {
			return nil, fmt.Errorf("failed to load env file %s: %w", opts.EnvFile, err)
		}
	} else if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := DefaultConfig()
	if err := ApplyEnvironment(config); err != nil {
		return nil, err
	}
	if opts.ConfigFile != "" {
		if err := ApplyFile(config, opts.ConfigFile); err != nil {
			return nil, err
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// Address returns host:port for the HTTP listener
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
