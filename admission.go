package main

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	keywordsExceededTitle = "Maximum shader keywords exceeded!"
	portalDroppedTitle    = "A portal has been spawned."
	appStartedTitle       = "Application Started"
	appStartedBody        = "VRChat log notifier has initialized."
)

// Admitter decides which events become queued notifications. It subscribes to
// the extractor and pushes into the dispatch queue.
type Admitter struct {
	config  *ConfigStore
	queue   *notificationQueue
	now     func() time.Time
	log     zerolog.Logger
	metrics *pipelineMetrics

	mu              sync.Mutex
	keywordLimiter  *rate.Limiter
	keywordCooldown time.Duration
	lastKeywordAt   time.Time
}

func NewAdmitter(config *ConfigStore, queue *notificationQueue, metrics *pipelineMetrics, log zerolog.Logger) *Admitter {
	return &Admitter{
		config:  config,
		queue:   queue,
		now:     time.Now,
		log:     log.With().Str("component", "admission").Logger(),
		metrics: metrics,
	}
}

func (a *Admitter) OnLogEvent(ev Event) {
	n, reason := a.admit(ev)
	if reason != "" {
		a.metrics.notificationRejected(ev.Kind, reason)
		a.log.Debug().Str("kind", string(ev.Kind)).Str("reason", reason).Msg("notification not admitted")
		return
	}
	a.queue.Push(&pendingNotification{kind: ev.Kind, payload: n})
	a.metrics.notificationAdmitted(ev.Kind)
}

// AdmitStartup enqueues the startup notification when enabled.
func (a *Admitter) AdmitStartup() bool {
	cfg := a.config.Get()
	cat := cfg.Notifications.AppStarted
	if !cfg.General.NotifyOnStart || !cat.Enabled {
		return false
	}
	n := newNotification(cfg, KindAppStarted, cat, appStartedTitle)
	n.Body = appStartedBody
	a.queue.Push(&pendingNotification{kind: KindAppStarted, payload: n})
	a.metrics.notificationAdmitted(KindAppStarted)
	return true
}

// admit returns the notification for ev, or a non-empty rejection reason.
func (a *Admitter) admit(ev Event) (Notification, string) {
	cfg := a.config.Get()
	cat, ok := cfg.Notifications.Category(ev.Kind)
	if !ok || ev.Kind == KindAppStarted {
		return Notification{}, "not_notifiable"
	}
	if !cat.Enabled {
		return Notification{}, "disabled"
	}

	var title string
	switch ev.Kind {
	case KindPlayerJoined, KindPlayerLeft:
		if ev.Session.Silenced(ev.Time) && !cfg.Silence.DisplayWhileSilenced {
			return Notification{}, "silenced"
		}
		title = ev.Player
	case KindWorldChanged:
		title = ev.WorldName
	case KindPortalDropped:
		title = portalDroppedTitle
	case KindKeywordsExceeded:
		if !a.allowKeyword(ev.Time, cat.Cooldown) {
			return Notification{}, "cooldown"
		}
		title = keywordsExceededTitle
	}
	return newNotification(cfg, ev.Kind, cat, title), ""
}

// allowKeyword consumes the keyword-exceeded token at admission time so a
// burst cannot slip in while the first notification is still queued.
func (a *Admitter) allowKeyword(at time.Time, cooldown time.Duration) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	limit := rate.Inf
	if cooldown > 0 {
		limit = rate.Every(cooldown)
	}
	switch {
	case a.keywordLimiter == nil:
		a.keywordLimiter = rate.NewLimiter(limit, 1)
	case cooldown != a.keywordCooldown:
		a.keywordLimiter.SetLimitAt(at, limit)
	}
	a.keywordCooldown = cooldown

	if !a.keywordLimiter.AllowN(at, 1) {
		a.log.Debug().Dur("since_last", at.Sub(a.lastKeywordAt)).Dur("cooldown", cooldown).Msg("keyword warning suppressed")
		return false
	}
	a.lastKeywordAt = at
	return true
}

func newNotification(cfg *Config, kind EventKind, cat CategoryConfig, title string) Notification {
	return Notification{
		Kind:    kind,
		Title:   title,
		Icon:    cfg.General.resolveResource(cat.Icon),
		Audio:   cfg.General.resolveResource(cat.Audio),
		Volume:  cat.Volume,
		Timeout: cat.Timeout,
		Height:  cat.Height,
		Opacity: cfg.General.Opacity,
	}
}
