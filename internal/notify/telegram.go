// Package notify pushes operator alerts for events that need a human:
// guardian trips, terminal outages, resume confirmations.
package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Telegram sends alerts to a single operator chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger zerolog.Logger
}

// NewTelegram authenticates the bot and binds it to the operator chat.
func NewTelegram(token string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connecting telegram bot: %w", err)
	}

	logger := log.With().Str("component", "notify").Logger()
	logger.Info().Str("bot", bot.Self.UserName).Msg("Telegram notifier connected")

	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

// Notify sends one message. Errors are returned for the caller to log; an
// alert that cannot be delivered must never stall the engine.
func (t *Telegram) Notify(_ context.Context, message string) error {
	msg := tgbotapi.NewMessage(t.chatID, message)
	if _, err := t.bot.Send(msg); err != nil {
		return fmt.Errorf("sending telegram alert: %w", err)
	}
	return nil
}
