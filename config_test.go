package main

import (
	"context"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"VRC_LOG_DIR", "XSOVERLAY_URL", "LOG_LEVEL", "DISCORD_BOT_TOKEN", "DISCORD_CHANNEL_ID", "TELEGRAM_BOT_TOKEN", "TELEGRAM_CHAT_ID"} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	clearConfigEnv(t)
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	want := defaultConfig()
	want.Discord.Enabled = false
	want.Telegram.Enabled = false
	if !reflect.DeepEqual(cfg, want) {
		t.Errorf("defaults differ:\n got %+v\nwant %+v", cfg, want)
	}
	if cfg.Notifications.KeywordsExceeded.Enabled {
		t.Error("keyword warnings must be disabled by default")
	}
	if cfg.Silence.WorldJoinSilence != 20*time.Second || cfg.Dispatch.Tick != 50*time.Millisecond {
		t.Errorf("unexpected timing defaults: %+v %+v", cfg.Silence, cfg.Dispatch)
	}
}

func TestLoadConfigFile(t *testing.T) {
	clearConfigEnv(t)
	dir := t.TempDir()
	t.Setenv("VRC_TEST_HOME", dir)
	path := filepath.Join(dir, "config.yaml")
	writeConfig(t, path, `
general:
  log_dir: ${VRC_TEST_HOME}/logs
  tail_poll_interval: 1s
  opacity: 3
silence:
  world_join_silence: 30s
  display_while_silenced: true
notifications:
  player_joined:
    volume: -2
    timeout: 4s
  keywords_exceeded:
    enabled: true
    cooldown: 2m
discord:
  events: [player_joined, world_changed]
`)

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.LogDir != filepath.Join(dir, "logs") {
		t.Errorf("log dir = %q", cfg.General.LogDir)
	}
	if cfg.General.TailPollInterval != time.Second {
		t.Errorf("tail poll interval = %v", cfg.General.TailPollInterval)
	}
	if cfg.General.Opacity != 1 {
		t.Errorf("opacity not clamped: %v", cfg.General.Opacity)
	}
	if cfg.Silence.WorldJoinSilence != 30*time.Second || !cfg.Silence.DisplayWhileSilenced {
		t.Errorf("silence = %+v", cfg.Silence)
	}
	pj := cfg.Notifications.PlayerJoined
	if pj.Volume != 0 || pj.Timeout != 4*time.Second || !pj.Enabled {
		t.Errorf("player_joined = %+v", pj)
	}
	if kw := cfg.Notifications.KeywordsExceeded; !kw.Enabled || kw.Cooldown != 2*time.Minute {
		t.Errorf("keywords_exceeded = %+v", kw)
	}
	if cfg.General.DirectoryPollInterval != 5*time.Second {
		t.Errorf("unset field lost its default: %v", cfg.General.DirectoryPollInterval)
	}
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("VRC_LOG_DIR", "/var/vrchat")
	t.Setenv("XSOVERLAY_URL", "ws://127.0.0.1:9999/")
	t.Setenv("DISCORD_BOT_TOKEN", "token")
	t.Setenv("DISCORD_CHANNEL_ID", "12345")

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "config.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.General.LogDir != "/var/vrchat" || cfg.XSOverlay.URL != "ws://127.0.0.1:9999/" {
		t.Errorf("env not applied: %+v %+v", cfg.General, cfg.XSOverlay)
	}
	if !cfg.Discord.Enabled || cfg.Discord.BotToken != "token" || cfg.Discord.ChannelID != "12345" {
		t.Errorf("discord = %+v", cfg.Discord)
	}
	if cfg.Telegram.Enabled {
		t.Error("telegram enabled without a token")
	}
}

func TestLoadConfigErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		env     map[string]string
		wantErr string
	}{
		{"discord token without channel", "", map[string]string{"DISCORD_BOT_TOKEN": "t"}, "DISCORD_CHANNEL_ID"},
		{"telegram token without chat", "", map[string]string{"TELEGRAM_BOT_TOKEN": "t"}, "TELEGRAM_CHAT_ID"},
		{"telegram chat not numeric", "", map[string]string{"TELEGRAM_CHAT_ID": "@me"}, "TELEGRAM_CHAT_ID"},
		{"bad yaml", "general: [", nil, "parse config"},
		{"zero tick", "dispatch:\n  tick: 0s\n", nil, "dispatch.tick"},
		{"zero cold scan window", "general:\n  cold_scan_max_bytes: 0\n", nil, "cold_scan_max_bytes"},
		{"negative cold scan window", "general:\n  cold_scan_max_bytes: -1\n", nil, "cold_scan_max_bytes"},
		{"empty pattern", "general:\n  log_file_pattern: \"\"\n", nil, "log_file_pattern"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearConfigEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			path := filepath.Join(t.TempDir(), "config.yaml")
			writeConfig(t, path, tt.content)
			_, err := loadConfig(path)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestResolveResource(t *testing.T) {
	g := GeneralConfig{ResourceDir: "resources"}
	abs := filepath.Join(t.TempDir(), "ping.ogg")
	tests := []struct{ in, want string }{
		{"", ""},
		{"default", "default"},
		{"warning", "warning"},
		{abs, abs},
		{"icons/a.png", filepath.Join("resources", "icons", "a.png")},
	}
	for _, tt := range tests {
		if got := g.resolveResource(tt.in); got != tt.want {
			t.Errorf("resolveResource(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDiscordEventAllowed(t *testing.T) {
	cfg := testConfig()
	cfg.Discord.Enabled = true
	cfg.Discord.Events = []string{"world_changed"}
	if !cfg.discordEventAllowed(KindWorldChanged) || cfg.discordEventAllowed(KindPlayerJoined) {
		t.Error("event filter not applied")
	}
	cfg.Discord.Events = []string{"all"}
	if !cfg.discordEventAllowed(KindPortalDropped) {
		t.Error("all should allow every kind")
	}
	cfg.Discord.Enabled = false
	if cfg.discordEventAllowed(KindPortalDropped) {
		t.Error("disabled discord allowed an event")
	}

	cfg.Telegram.Enabled = true
	if !cfg.telegramEventAllowed(KindWorldChanged) || cfg.telegramEventAllowed(KindPlayerJoined) {
		t.Error("telegram defaults should only carry world changes and startup")
	}
}

func TestConfigStoreReloadKeepsPreviousOnError(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "silence:\n  world_join_silence: 5s\n")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewConfigStore(path, cfg, zerolog.Nop())

	writeConfig(t, path, "silence:\n  world_join_silence: 7s\n")
	if err := store.Reload(); err != nil {
		t.Fatal(err)
	}
	if got := store.Get().Silence.WorldJoinSilence; got != 7*time.Second {
		t.Fatalf("after reload silence = %v", got)
	}

	writeConfig(t, path, "silence: [")
	if err := store.Reload(); err == nil {
		t.Fatal("expected reload error")
	}
	if got := store.Get().Silence.WorldJoinSilence; got != 7*time.Second {
		t.Errorf("bad reload replaced config, silence = %v", got)
	}
}

func TestConfigStoreWatch(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "dispatch:\n  tick: 50ms\n")
	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatal(err)
	}
	store := NewConfigStore(path, cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- store.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		writeConfig(t, path, "dispatch:\n  tick: 80ms\n")
		time.Sleep(100 * time.Millisecond)
		if store.Get().Dispatch.Tick == 80*time.Millisecond {
			return
		}
	}
	t.Fatalf("config not reloaded, tick = %v", store.Get().Dispatch.Tick)
}
