package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	General       GeneralConfig       `yaml:"general"`
	Silence       SilenceConfig       `yaml:"silence"`
	Dispatch      DispatchConfig      `yaml:"dispatch"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Logging       LoggingConfig       `yaml:"logging"`
	OTel          OTelConfig          `yaml:"otel"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	XSOverlay     XSOverlayConfig     `yaml:"xsoverlay"`
	Discord       DiscordConfig       `yaml:"discord"`
	Telegram      TelegramConfig      `yaml:"telegram"`
	Console       ConsoleConfig       `yaml:"console"`
}

type GeneralConfig struct {
	LogDir                string        `yaml:"log_dir"` // environment variables are expanded
	LogFilePattern        string        `yaml:"log_file_pattern"`
	DirectoryPollInterval time.Duration `yaml:"directory_poll_interval"`
	TailPollInterval      time.Duration `yaml:"tail_poll_interval"`
	ColdStart             bool          `yaml:"cold_start"`
	ColdScanMaxBytes      int64         `yaml:"cold_scan_max_bytes"`
	ResourceDir           string        `yaml:"resource_dir"`
	Opacity               float64       `yaml:"opacity"`
	NotifyOnStart         bool          `yaml:"notify_on_start"`
	LogNotificationEvents bool          `yaml:"log_notification_events"`
}

type SilenceConfig struct {
	WorldJoinSilence     time.Duration `yaml:"world_join_silence"`
	DisplayWhileSilenced bool          `yaml:"display_while_silenced"`
}

type DispatchConfig struct {
	Tick time.Duration `yaml:"tick"`
}

// CategoryConfig holds the per-category display settings.
type CategoryConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Timeout  time.Duration `yaml:"timeout"`
	Volume   float64       `yaml:"volume"`
	Icon     string        `yaml:"icon"`
	Audio    string        `yaml:"audio"`
	Height   float64       `yaml:"height"`
	Cooldown time.Duration `yaml:"cooldown,omitempty"`
}

type NotificationsConfig struct {
	PlayerJoined     CategoryConfig `yaml:"player_joined"`
	PlayerLeft       CategoryConfig `yaml:"player_left"`
	WorldChanged     CategoryConfig `yaml:"world_changed"`
	KeywordsExceeded CategoryConfig `yaml:"keywords_exceeded"`
	PortalDropped    CategoryConfig `yaml:"portal_dropped"`
	AppStarted       CategoryConfig `yaml:"app_started"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty disables the session log file
}

type OTelConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	ServiceName string `yaml:"service_name"`
}

type MetricsConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
}

type XSOverlayConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type DiscordConfig struct {
	Enabled   bool     `yaml:"enabled"`
	BotToken  string   `yaml:"-"` // from env only
	ChannelID string   `yaml:"-"` // from env only
	Events    []string `yaml:"events"`
}

type TelegramConfig struct {
	Enabled  bool     `yaml:"enabled"`
	BotToken string   `yaml:"-"` // from env only
	ChatID   int64    `yaml:"-"` // from env only
	Events   []string `yaml:"events"`
}

type ConsoleConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Built-in icon/audio references understood by XSOverlay.
var builtinResources = map[string]bool{
	"":        true,
	"default": true,
	"warning": true,
	"error":   true,
}

const defaultColdScanMaxBytes = 32 << 20

func defaultConfig() Config {
	return Config{
		General: GeneralConfig{
			LogDir:                defaultLogDir(),
			LogFilePattern:        "output_log",
			DirectoryPollInterval: 5 * time.Second,
			TailPollInterval:      300 * time.Millisecond,
			ColdStart:             true,
			ColdScanMaxBytes:      defaultColdScanMaxBytes,
			ResourceDir:           "resources",
			Opacity:               0.75,
			NotifyOnStart:         true,
			LogNotificationEvents: true,
		},
		Silence: SilenceConfig{
			WorldJoinSilence: 20 * time.Second,
		},
		Dispatch: DispatchConfig{
			Tick: 50 * time.Millisecond,
		},
		Notifications: NotificationsConfig{
			PlayerJoined: CategoryConfig{
				Enabled: true,
				Timeout: 2500 * time.Millisecond,
				Volume:  0.2,
				Icon:    "icons/player_joined.png",
				Audio:   "audio/player_joined.ogg",
				Height:  175,
			},
			PlayerLeft: CategoryConfig{
				Enabled: true,
				Timeout: 2500 * time.Millisecond,
				Volume:  0.2,
				Icon:    "icons/player_left.png",
				Audio:   "audio/player_left.ogg",
				Height:  175,
			},
			WorldChanged: CategoryConfig{
				Enabled: true,
				Timeout: 3 * time.Second,
				Volume:  0.2,
				Icon:    "icons/world_changed.png",
				Audio:   "default",
				Height:  175,
			},
			KeywordsExceeded: CategoryConfig{
				Enabled:  false,
				Timeout:  3 * time.Second,
				Volume:   0.2,
				Icon:     "icons/keywords_exceeded.png",
				Audio:    "warning",
				Height:   175,
				Cooldown: 10 * time.Minute,
			},
			PortalDropped: CategoryConfig{
				Enabled: true,
				Timeout: 3 * time.Second,
				Volume:  0.2,
				Icon:    "icons/portal_dropped.png",
				Audio:   "default",
				Height:  175,
			},
			AppStarted: CategoryConfig{
				Enabled: true,
				Timeout: 3 * time.Second,
				Volume:  0.2,
				Icon:    "default",
				Audio:   "default",
				Height:  110,
			},
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		OTel: OTelConfig{
			ServiceName: "vrc-log-notifier",
		},
		Metrics: MetricsConfig{
			Interval: 15 * time.Second,
		},
		XSOverlay: XSOverlayConfig{
			Enabled: true,
			URL:     "ws://localhost:42070/?client=vrc-log-notifier",
		},
		Discord: DiscordConfig{
			Enabled: true,
			Events:  []string{"all"},
		},
		Telegram: TelegramConfig{
			Enabled: true,
			Events:  []string{string(KindWorldChanged), string(KindAppStarted)},
		},
	}
}

func defaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, "AppData", "LocalLow", "VRChat", "VRChat")
}

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "config.yaml"
	}
	return filepath.Join(dir, "vrc-log-notifier", "config.yaml")
}

// loadConfig reads the YAML file at path over the defaults and applies env
// overrides. A missing file is not an error.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}

	if v := os.Getenv("VRC_LOG_DIR"); v != "" {
		cfg.General.LogDir = v
	}
	if v := os.Getenv("XSOVERLAY_URL"); v != "" {
		cfg.XSOverlay.URL = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	cfg.Discord.BotToken = os.Getenv("DISCORD_BOT_TOKEN")
	cfg.Discord.ChannelID = os.Getenv("DISCORD_CHANNEL_ID")

	if cfg.Discord.BotToken != "" && cfg.Discord.ChannelID == "" {
		return cfg, fmt.Errorf("DISCORD_CHANNEL_ID is required when DISCORD_BOT_TOKEN is set")
	}
	if cfg.Discord.BotToken == "" {
		cfg.Discord.Enabled = false
	}

	cfg.Telegram.BotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return cfg, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err)
		}
		cfg.Telegram.ChatID = id
	}
	if cfg.Telegram.BotToken != "" && cfg.Telegram.ChatID == 0 {
		return cfg, fmt.Errorf("TELEGRAM_CHAT_ID is required when TELEGRAM_BOT_TOKEN is set")
	}
	if cfg.Telegram.BotToken == "" {
		cfg.Telegram.Enabled = false
	}

	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	c.General.LogDir = os.ExpandEnv(c.General.LogDir)
	if c.General.LogFilePattern == "" {
		return fmt.Errorf("general.log_file_pattern must not be empty")
	}
	if c.General.DirectoryPollInterval <= 0 {
		return fmt.Errorf("general.directory_poll_interval must be positive")
	}
	if c.General.TailPollInterval <= 0 {
		return fmt.Errorf("general.tail_poll_interval must be positive")
	}
	if c.General.ColdScanMaxBytes <= 0 {
		return fmt.Errorf("general.cold_scan_max_bytes must be positive")
	}
	if c.Dispatch.Tick <= 0 {
		return fmt.Errorf("dispatch.tick must be positive")
	}
	if c.Silence.WorldJoinSilence < 0 {
		c.Silence.WorldJoinSilence = 0
	}
	c.General.Opacity = clamp01(c.General.Opacity)
	for _, cat := range c.Notifications.all() {
		cat.Volume = clamp01(cat.Volume)
		if cat.Timeout < 0 {
			cat.Timeout = 0
		}
		if cat.Cooldown < 0 {
			cat.Cooldown = 0
		}
	}
	return nil
}

func (n *NotificationsConfig) all() []*CategoryConfig {
	return []*CategoryConfig{&n.PlayerJoined, &n.PlayerLeft, &n.WorldChanged, &n.KeywordsExceeded, &n.PortalDropped, &n.AppStarted}
}

// Category returns the settings for kind, or false for kinds that never
// become notifications.
func (n NotificationsConfig) Category(kind EventKind) (CategoryConfig, bool) {
	switch kind {
	case KindPlayerJoined:
		return n.PlayerJoined, true
	case KindPlayerLeft:
		return n.PlayerLeft, true
	case KindWorldChanged:
		return n.WorldChanged, true
	case KindKeywordsExceeded:
		return n.KeywordsExceeded, true
	case KindPortalDropped:
		return n.PortalDropped, true
	case KindAppStarted:
		return n.AppStarted, true
	}
	return CategoryConfig{}, false
}

// resolveResource passes built-in references through and resolves anything
// else against the resource directory.
func (g GeneralConfig) resolveResource(ref string) string {
	if builtinResources[ref] || filepath.IsAbs(ref) {
		return ref
	}
	return filepath.Join(g.ResourceDir, ref)
}

// discordEventAllowed returns whether a given notification kind should be sent to Discord.
func (c *Config) discordEventAllowed(kind EventKind) bool {
	return c.Discord.Enabled && eventListed(c.Discord.Events, kind)
}

func (c *Config) telegramEventAllowed(kind EventKind) bool {
	return c.Telegram.Enabled && eventListed(c.Telegram.Events, kind)
}

func eventListed(events []string, kind EventKind) bool {
	for _, e := range events {
		if e == "all" || e == string(kind) {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
