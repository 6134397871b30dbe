package main

import (
	"context"

	"github.com/rs/zerolog"
)

// ConsoleChannel writes delivered notifications to the log. Useful when no
// overlay is running.
type ConsoleChannel struct {
	log zerolog.Logger
}

func NewConsoleChannel(log zerolog.Logger) *ConsoleChannel {
	return &ConsoleChannel{log: log.With().Str("channel", "console").Logger()}
}

func (c *ConsoleChannel) Name() string { return "Console" }

func (c *ConsoleChannel) Deliver(_ context.Context, n Notification) error {
	e := c.log.Info().Str("kind", string(n.Kind)).Str("title", n.Title)
	if n.Body != "" {
		e = e.Str("body", n.Body)
	}
	if n.Occupancy != "" {
		e = e.Str("occupancy", n.Occupancy)
	}
	e.Dur("timeout", n.Timeout).Msg("notification")
	return nil
}

func (c *ConsoleChannel) Start(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (c *ConsoleChannel) Close() error { return nil }
