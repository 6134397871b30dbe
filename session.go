package main

import (
	"strconv"
	"sync"
	"time"
)

// Session is the running state reconstructed from the log. All mutation goes
// through the extractor while holding mu.
type Session struct {
	mu sync.Mutex

	worldID   string
	worldName string

	playerCount      int
	playerCountKnown bool
	playerCap        int
	playerCapKnown   bool

	nextJoinIsLocalUser bool
	silencedUntil       time.Time
}

// SessionSnapshot is an immutable copy of Session.
type SessionSnapshot struct {
	WorldID          string
	WorldName        string
	PlayerCount      int
	PlayerCountKnown bool
	PlayerCap        int
	PlayerCapKnown   bool
	SilencedUntil    time.Time
}

func NewSession() *Session {
	return &Session{}
}

// Snapshot returns a consistent copy of the current state.
func (s *Session) Snapshot() SessionSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() SessionSnapshot {
	return SessionSnapshot{
		WorldID:          s.worldID,
		WorldName:        s.worldName,
		PlayerCount:      s.playerCount,
		PlayerCountKnown: s.playerCountKnown,
		PlayerCap:        s.playerCap,
		PlayerCapKnown:   s.playerCapKnown,
		SilencedUntil:    s.silencedUntil,
	}
}

// Silenced reports whether join/leave notifications are inside the
// post-world-change silence window at t.
func (ss SessionSnapshot) Silenced(t time.Time) bool {
	return t.Before(ss.SilencedUntil)
}

// Players renders "count/cap" with "??" for unknown values.
func (ss SessionSnapshot) Players() string {
	count, limit := "??", "??"
	if ss.PlayerCountKnown {
		count = strconv.Itoa(ss.PlayerCount)
	}
	if ss.PlayerCapKnown {
		limit = strconv.Itoa(ss.PlayerCap)
	}
	return count + "/" + limit
}

// Occupancy is the text shown next to join/leave notifications.
func (ss SessionSnapshot) Occupancy() string {
	return ss.Players() + " users"
}
