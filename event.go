package main

import "time"

// EventKind identifies a domain event and the notification category it maps to.
type EventKind string

const (
	KindPlayerJoined        EventKind = "player_joined"
	KindPlayerLeft          EventKind = "player_left"
	KindWorldChanged        EventKind = "world_changed"
	KindPortalDropped       EventKind = "portal_dropped"
	KindKeywordsExceeded    EventKind = "keywords_exceeded"
	KindPlayerCapDiscovered EventKind = "player_cap_discovered"

	// KindAppStarted is never extracted from a log; it tags the startup notification.
	KindAppStarted EventKind = "app_started"
)

// Event is a single domain event extracted from exactly one log line.
type Event struct {
	Kind      EventKind
	Player    string // display name for join/leave
	PlayerID  string // usr_ id when the line carries one
	WorldName string
	WorldID   string
	Cap       int
	Time      time.Time

	// Session is the session state right after this event was applied.
	Session SessionSnapshot
}

// LogSubscriber receives events produced by the extractor.
type LogSubscriber interface {
	OnLogEvent(event Event)
}

// Notification is the payload handed to a delivery channel.
type Notification struct {
	Kind      EventKind
	Title     string
	Body      string
	Occupancy string // "3/16 users", join/leave only
	Icon      string
	Audio     string
	Volume    float64
	Timeout   time.Duration
	Height    float64
	Opacity   float64
}

// pendingNotification is a queue element. It is consumed exactly once by the
// dispatch loop; merged entries are skipped when they reach the head.
type pendingNotification struct {
	kind     EventKind
	payload  Notification
	merged   bool
	children []Notification
}

func (p *pendingNotification) duration() time.Duration {
	return p.payload.Timeout
}

func isJoinLeave(kind EventKind) bool {
	return kind == KindPlayerJoined || kind == KindPlayerLeft
}
