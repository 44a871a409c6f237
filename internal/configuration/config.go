package configuration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

// ConfigPathEnv names the environment variable holding the config file path.
const ConfigPathEnv = "NIRALA_CHAT_CONFIG"

const defaultConfigPath = "config.json"

type ServerConfig struct {
	AppPort        int      `json:"app_port"`
	AllowedOrigins []string `json:"allowed_origins"`
}

// RemoteConfig points at the remote message store and its realtime socket.
type RemoteConfig struct {
	BaseURL   string `json:"base_url"`
	SocketURL string `json:"socket_url"`
	TimeoutMs int    `json:"timeout_ms"`
}

type IdentityConfig struct {
	TokenFile string `json:"token_file"`
}

type ChatConfig struct {
	DesktopMaxSessions    int `json:"desktop_max_sessions"`
	MobileBreakpointPx    int `json:"mobile_breakpoint_px"`
	TypingQuietPeriodMs   int `json:"typing_quiet_period_ms"`
	SwipeCloseThresholdPx int `json:"swipe_close_threshold_px"`
	InitialViewportWidth  int `json:"initial_viewport_width"`
	// DesktopNotifications is what the user answers to the permission
	// prompt on this host.
	DesktopNotifications bool `json:"desktop_notifications"`
}

// ReconnectConfig bounds how a dropped conversation socket is re-dialed.
// MaxRetries of zero disables reconnecting; a negative value picks the
// default.
type ReconnectConfig struct {
	MaxRetries        *int `json:"max_retries"`
	InitialIntervalMs int  `json:"initial_interval_ms"`
	MaxIntervalMs     int  `json:"max_interval_ms"`
}

// MongoConfig configures the layout snapshot store. Layouts are not
// persisted when Uri is empty.
type MongoConfig struct {
	Uri              string `json:"uri"`
	Database         string `json:"database"`
	LayoutCollection string `json:"layout_collection"`
	LayoutRetention  int    `json:"layout_retention_days"`
}

type LogConfig struct {
	Development bool `json:"development"`
}

type Config struct {
	Server    ServerConfig    `json:"server"`
	Remote    RemoteConfig    `json:"remote"`
	Identity  IdentityConfig  `json:"identity"`
	Chat      ChatConfig      `json:"chat"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Mongo     MongoConfig     `json:"mongo"`
	Log       LogConfig       `json:"log"`
}

// ConfigPath resolves the config file from NIRALA_CHAT_CONFIG.
func ConfigPath() string {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p
	}
	return defaultConfigPath
}

func LoadConfig(configPath string) (*Config, error) {
	file, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	var config Config
	err = json.Unmarshal(file, &config)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", configPath, err)
	}

	config.applyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.AppPort == 0 {
		c.Server.AppPort = 8085
	}
	if len(c.Server.AllowedOrigins) == 0 {
		c.Server.AllowedOrigins = []string{"http://localhost:4200"}
	}
	if c.Remote.TimeoutMs <= 0 {
		c.Remote.TimeoutMs = 15000
	}
	if c.Chat.DesktopMaxSessions <= 0 {
		c.Chat.DesktopMaxSessions = 3
	}
	if c.Chat.MobileBreakpointPx <= 0 {
		c.Chat.MobileBreakpointPx = 768
	}
	if c.Chat.TypingQuietPeriodMs <= 0 {
		c.Chat.TypingQuietPeriodMs = 3000
	}
	if c.Chat.SwipeCloseThresholdPx <= 0 {
		c.Chat.SwipeCloseThresholdPx = 100
	}
	if c.Chat.InitialViewportWidth <= 0 {
		c.Chat.InitialViewportWidth = 1280
	}
	if c.Reconnect.MaxRetries == nil || *c.Reconnect.MaxRetries < 0 {
		retries := 5
		c.Reconnect.MaxRetries = &retries
	}
	if c.Reconnect.InitialIntervalMs <= 0 {
		c.Reconnect.InitialIntervalMs = 500
	}
	if c.Reconnect.MaxIntervalMs <= 0 {
		c.Reconnect.MaxIntervalMs = 10000
	}
	if c.Mongo.Database == "" {
		c.Mongo.Database = "nirala_chat"
	}
	if c.Mongo.LayoutCollection == "" {
		c.Mongo.LayoutCollection = "chat_layouts"
	}
	if c.Mongo.LayoutRetention <= 0 {
		c.Mongo.LayoutRetention = 30
	}
}

// Validate rejects configurations the agent cannot start with.
func (c *Config) Validate() error {
	var errs []error
	if c.Remote.BaseURL == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	}
	if c.Remote.SocketURL == "" {
		errs = append(errs, errors.New("remote.socket_url is required"))
	}
	if c.Identity.TokenFile == "" {
		errs = append(errs, errors.New("identity.token_file is required"))
	}
	if c.Reconnect.InitialIntervalMs > c.Reconnect.MaxIntervalMs {
		errs = append(errs, errors.New("reconnect.initial_interval_ms exceeds reconnect.max_interval_ms"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) RemoteTimeout() time.Duration {
	return time.Duration(c.Remote.TimeoutMs) * time.Millisecond
}

func (c *Config) TypingQuietPeriod() time.Duration {
	return time.Duration(c.Chat.TypingQuietPeriodMs) * time.Millisecond
}

func (c *Config) ReconnectIntervals() (initial, maxInterval time.Duration) {
	return time.Duration(c.Reconnect.InitialIntervalMs) * time.Millisecond,
		time.Duration(c.Reconnect.MaxIntervalMs) * time.Millisecond
}

// LayoutCutoff is the age beyond which saved layouts are pruned.
func (c *Config) LayoutCutoff(now time.Time) time.Time {
	return now.AddDate(0, 0, -c.Mongo.LayoutRetention)
}
