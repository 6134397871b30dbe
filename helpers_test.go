package main

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func testConfig() Config {
	cfg := defaultConfig()
	cfg.General.LogDir = ""
	cfg.Notifications.KeywordsExceeded.Enabled = true
	return cfg
}

func newTestStore(cfg Config) *ConfigStore {
	return NewConfigStore("", cfg, zerolog.Nop())
}

// fixedClock is a settable clock for components that take a now func.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2024, 3, 1, 20, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// recordingChannel captures delivered notifications.
type recordingChannel struct {
	mu   sync.Mutex
	got  []Notification
	fail error
}

func (r *recordingChannel) Name() string { return "Recorder" }

func (r *recordingChannel) Deliver(_ context.Context, n Notification) error {
	if r.fail != nil {
		return r.fail
	}
	r.mu.Lock()
	r.got = append(r.got, n)
	r.mu.Unlock()
	return nil
}

func (r *recordingChannel) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (r *recordingChannel) Close() error { return nil }

func (r *recordingChannel) delivered() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.got...)
}

var errChannelDown = errors.New("channel down")

// eventRecorder is a LogSubscriber that keeps every event.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) OnLogEvent(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *eventRecorder) all() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func newTestExtractor(cfg Config, clock *fixedClock) (*Extractor, *Session) {
	session := NewSession()
	x := NewExtractor(session, newTestStore(cfg), nil, zerolog.Nop())
	x.now = clock.Now
	return x, session
}
