package main

import (
	"strings"

	"github.com/rs/zerolog"
)

// EventLogSubscriber writes every domain event to the operational log.
type EventLogSubscriber struct {
	config *ConfigStore
	log    zerolog.Logger
}

func NewEventLogSubscriber(config *ConfigStore, log zerolog.Logger) *EventLogSubscriber {
	return &EventLogSubscriber{config: config, log: log.With().Str("component", "events").Logger()}
}

func (s *EventLogSubscriber) OnLogEvent(ev Event) {
	if !s.config.Get().General.LogNotificationEvents {
		return
	}
	e := s.log.Info().Str("kind", string(ev.Kind)).Str("players", ev.Session.Players())
	switch ev.Kind {
	case KindPlayerJoined, KindPlayerLeft:
		e = e.Str("player", ev.Player)
		if ev.PlayerID != "" {
			e = e.Str("player_id", ev.PlayerID)
		}
	case KindWorldChanged:
		e = e.Str("world", ev.WorldName).Str("world_id", ev.WorldID).Str("launch_url", launchURL(ev.WorldID))
	case KindPlayerCapDiscovered:
		e = e.Int("cap", ev.Cap)
	}
	e.Msg("event")
}

// launchURL turns "wrld_x:12345~region(us)" into the vrchat.com launch link.
func launchURL(worldID string) string {
	return "https://vrchat.com/home/launch?worldId=" + strings.Replace(worldID, ":", "&instanceId=", 1)
}
