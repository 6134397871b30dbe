package main

import "context"

// Channel abstracts a notification display (XSOverlay, Discord, console, ...).
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
	Start(ctx context.Context) error
	Close() error
}

// kindEmoji prefixes chat messages. Kinds missing here are never posted to
// chat channels.
var kindEmoji = map[EventKind]string{
	KindPlayerJoined:     "➡️",
	KindPlayerLeft:       "⬅️",
	KindWorldChanged:     "🌍",
	KindPortalDropped:    "🌀",
	KindKeywordsExceeded: "⚠️",
	KindAppStarted:       "✅",
}
