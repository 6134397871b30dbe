package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const configReloadDebounce = 250 * time.Millisecond

// ConfigStore holds the active configuration. Readers call Get at every
// decision point so edits take effect on the next tick.
type ConfigStore struct {
	path string
	cur  atomic.Pointer[Config]
	log  zerolog.Logger
}

func NewConfigStore(path string, cfg Config, log zerolog.Logger) *ConfigStore {
	s := &ConfigStore{
		path: path,
		log:  log.With().Str("component", "config").Logger(),
	}
	s.cur.Store(&cfg)
	return s
}

// Get returns the current configuration. The result must not be mutated.
func (s *ConfigStore) Get() *Config {
	return s.cur.Load()
}

// Set replaces the current configuration.
func (s *ConfigStore) Set(cfg Config) {
	s.cur.Store(&cfg)
}

// Reload re-reads the file. On error the previous configuration stays active.
func (s *ConfigStore) Reload() error {
	cfg, err := loadConfig(s.path)
	if err != nil {
		return err
	}
	s.Set(cfg)
	return nil
}

// Watch reloads the configuration whenever its file changes, until ctx is
// cancelled. The parent directory is watched so editors that replace the
// file on save are handled.
func (s *ConfigStore) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	name := filepath.Clean(s.path)

	var reload <-chan time.Time
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != name || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(configReloadDebounce)
			reload = timer.C
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Warn().Err(err).Msg("config watcher error")
		case <-reload:
			reload = nil
			if err := s.Reload(); err != nil {
				s.log.Warn().Err(err).Msg("config reload failed, keeping previous config")
				continue
			}
			s.log.Info().Str("path", s.path).Msg("config reloaded")
		}
	}
}
