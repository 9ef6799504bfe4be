package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
)

// TelegramChannel delivers messages over the Telegram Bot API. Recipients are
// addressed by their chat id, which for direct chats equals the user id the
// identity collaborator hands us.
type TelegramChannel struct {
	api *tgbotapi.BotAPI
}

// NewTelegramChannel authenticates the bot.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	return &TelegramChannel{api: api}, nil
}

// Send implements Channel.
func (t *TelegramChannel) Send(_ context.Context, userID int64, text string) error {
	msg := tgbotapi.NewMessage(userID, text)
	if _, err := t.api.Send(msg); err != nil {
		return fmt.Errorf("telegram send to %d: %w", userID, err)
	}
	return nil
}

// LogChannel writes messages to the log instead of a real channel. Used when
// no delivery credentials are configured, and in tests.
type LogChannel struct {
	Logger zerolog.Logger
}

// Send implements Channel.
func (l *LogChannel) Send(_ context.Context, userID int64, text string) error {
	l.Logger.Info().Int64("user_id", userID).Str("text", text).Msg("notification (log only)")
	return nil
}
