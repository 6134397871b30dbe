package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
)

// DiscordChannel mirrors notifications into a Discord text channel.
type DiscordChannel struct {
	session   *discordgo.Session
	channelID string
	config    *ConfigStore
	log       zerolog.Logger
}

func NewDiscordChannel(token, channelID string, config *ConfigStore, log zerolog.Logger) (*DiscordChannel, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discordgo session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds

	return &DiscordChannel{
		session:   session,
		channelID: channelID,
		config:    config,
		log:       log.With().Str("channel", "discord").Logger(),
	}, nil
}

func (dc *DiscordChannel) Name() string { return "Discord" }

func (dc *DiscordChannel) Start(ctx context.Context) error {
	if err := dc.session.Open(); err != nil {
		return fmt.Errorf("discord open: %w", err)
	}
	dc.log.Info().Str("user", dc.session.State.User.Username).Msg("discord bot connected")

	<-ctx.Done()
	return dc.session.Close()
}

func (dc *DiscordChannel) Deliver(ctx context.Context, n Notification) error {
	if !dc.config.Get().discordEventAllowed(n.Kind) {
		return nil
	}

	msg := formatDiscordMessage(n)
	if msg == "" {
		return nil
	}

	_, err := dc.session.ChannelMessageSend(dc.channelID, msg, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("send to Discord: %w", err)
	}
	return nil
}

func (dc *DiscordChannel) Close() error {
	return dc.session.Close()
}

func formatDiscordMessage(n Notification) string {
	emoji, ok := kindEmoji[n.Kind]
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s **%s**", emoji, n.Title)
	if n.Occupancy != "" {
		fmt.Fprintf(&b, " (%s)", n.Occupancy)
	}
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(n.Body)
	}
	return b.String()
}
