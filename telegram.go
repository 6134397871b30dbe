package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	tele "gopkg.in/telebot.v4"
)

// TelegramChannel mirrors notifications into a Telegram chat. It only sends;
// no updates are polled.
type TelegramChannel struct {
	bot    *tele.Bot
	chat   *tele.Chat
	config *ConfigStore
	log    zerolog.Logger
}

func NewTelegramChannel(token string, chatID int64, config *ConfigStore, log zerolog.Logger) (*TelegramChannel, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   token,
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telebot: %w", err)
	}
	return &TelegramChannel{
		bot:    bot,
		chat:   &tele.Chat{ID: chatID},
		config: config,
		log:    log.With().Str("channel", "telegram").Logger(),
	}, nil
}

func (tc *TelegramChannel) Name() string { return "Telegram" }

func (tc *TelegramChannel) Start(ctx context.Context) error {
	tc.log.Info().Int64("chat_id", tc.chat.ID).Msg("telegram channel ready")
	<-ctx.Done()
	return nil
}

func (tc *TelegramChannel) Deliver(_ context.Context, n Notification) error {
	if !tc.config.Get().telegramEventAllowed(n.Kind) {
		return nil
	}
	msg := formatTelegramMessage(n)
	if msg == "" {
		return nil
	}
	if _, err := tc.bot.Send(tc.chat, msg, &tele.SendOptions{DisableNotification: true}); err != nil {
		return fmt.Errorf("send to Telegram: %w", err)
	}
	return nil
}

func (tc *TelegramChannel) Close() error { return nil }

// formatTelegramMessage renders plain text; messages are sent without a
// parse mode so player names never need escaping.
func formatTelegramMessage(n Notification) string {
	emoji, ok := kindEmoji[n.Kind]
	if !ok {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", emoji, n.Title)
	if n.Occupancy != "" {
		fmt.Fprintf(&b, " (%s)", n.Occupancy)
	}
	if n.Body != "" {
		b.WriteString("\n")
		b.WriteString(n.Body)
	}
	return b.String()
}
