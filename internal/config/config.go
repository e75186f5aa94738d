package config

import (
	"fmt"
	"time"
)

// Store backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// Config holds server configuration values.
type Config struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	HTTPAddr   string `mapstructure:"http_addr" yaml:"http_addr"`
	ServerName string `mapstructure:"server_name" yaml:"server_name"`

	MaxCapacity   int `mapstructure:"max_capacity" yaml:"max_capacity"`
	MaxFrameSize  int `mapstructure:"max_frame_size" yaml:"max_frame_size"`
	MaxNameLength int `mapstructure:"max_name_length" yaml:"max_name_length"`

	DataDir      string `mapstructure:"data_dir" yaml:"data_dir"`
	StoreBackend string `mapstructure:"store_backend" yaml:"store_backend"`
	SQLitePath   string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	StringsPath  string `mapstructure:"strings_path" yaml:"strings_path"`
	LogLevel     string `mapstructure:"log_level" yaml:"log_level"`

	MuteTick             time.Duration `mapstructure:"mute_tick" yaml:"mute_tick"`
	HandshakeTimeout     time.Duration `mapstructure:"handshake_timeout" yaml:"handshake_timeout"`
	WriteTimeout         time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	StatusInterval       time.Duration `mapstructure:"status_interval" yaml:"status_interval"`
	PausedNoticeInterval time.Duration `mapstructure:"paused_notice_interval" yaml:"paused_notice_interval"`
	ReadHeaderTimeout    time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout      time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	ChatRate  float64 `mapstructure:"chat_rate" yaml:"chat_rate"`
	ChatBurst int     `mapstructure:"chat_burst" yaml:"chat_burst"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	Owner string `mapstructure:"owner" yaml:"owner"`
	Email string `mapstructure:"email" yaml:"email"`
	MOTD  string `mapstructure:"motd" yaml:"motd"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":27550",
		HTTPAddr:             ":8080",
		ServerName:           "server",
		MaxCapacity:          300,
		MaxFrameSize:         4096,
		MaxNameLength:        15,
		DataDir:              "data",
		StoreBackend:         BackendFile,
		LogLevel:             "info",
		MuteTick:             2 * time.Second,
		HandshakeTimeout:     5 * time.Second,
		WriteTimeout:         5 * time.Second,
		StatusInterval:       10 * time.Second,
		PausedNoticeInterval: 30 * time.Second,
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		ChatRate:             5,
		ChatBurst:            10,
		JWTIssuer:            "linechat",
		JWTAudience:          "linechat-operators",
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	setString(&c.Addr, other.Addr)
	setString(&c.HTTPAddr, other.HTTPAddr)
	setString(&c.ServerName, other.ServerName)
	setString(&c.DataDir, other.DataDir)
	setString(&c.StoreBackend, other.StoreBackend)
	setString(&c.SQLitePath, other.SQLitePath)
	setString(&c.StringsPath, other.StringsPath)
	setString(&c.LogLevel, other.LogLevel)
	setString(&c.JWTSecret, other.JWTSecret)
	setString(&c.JWTIssuer, other.JWTIssuer)
	setString(&c.JWTAudience, other.JWTAudience)
	setString(&c.Owner, other.Owner)
	setString(&c.Email, other.Email)
	setString(&c.MOTD, other.MOTD)

	if other.MaxCapacity != 0 {
		c.MaxCapacity = other.MaxCapacity
	}
	if other.MaxFrameSize != 0 {
		c.MaxFrameSize = other.MaxFrameSize
	}
	if other.MaxNameLength != 0 {
		c.MaxNameLength = other.MaxNameLength
	}
	if other.ChatRate != 0 {
		c.ChatRate = other.ChatRate
	}
	if other.ChatBurst != 0 {
		c.ChatBurst = other.ChatBurst
	}

	setDuration(&c.MuteTick, other.MuteTick)
	setDuration(&c.HandshakeTimeout, other.HandshakeTimeout)
	setDuration(&c.WriteTimeout, other.WriteTimeout)
	setDuration(&c.StatusInterval, other.StatusInterval)
	setDuration(&c.PausedNoticeInterval, other.PausedNoticeInterval)
	setDuration(&c.ReadHeaderTimeout, other.ReadHeaderTimeout)
	setDuration(&c.ShutdownTimeout, other.ShutdownTimeout)
}

// Validate rejects values the server cannot start with.
func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.MaxCapacity < 0 {
		return fmt.Errorf("max_capacity must not be negative")
	}
	if c.MaxFrameSize < 64 {
		return fmt.Errorf("max_frame_size must be at least 64 bytes")
	}
	if c.MaxNameLength <= 0 {
		return fmt.Errorf("max_name_length must be positive")
	}
	switch c.StoreBackend {
	case BackendFile:
	case BackendSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store_backend %q", c.StoreBackend)
	}
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}
	if c.MuteTick <= 0 {
		return fmt.Errorf("mute_tick must be positive")
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("handshake_timeout must be positive")
	}
	if c.ChatRate < 0 || c.ChatBurst < 0 {
		return fmt.Errorf("chat_rate and chat_burst must not be negative")
	}
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v time.Duration) {
	if v != 0 {
		*dst = v
	}
}
