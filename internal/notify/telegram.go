package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"
)

type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	return newTelegram(token, tgbotapi.APIEndpoint, chatID)
}

func newTelegram(token, endpoint string, chatID int64) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

func (t *Telegram) Name() string {
	return "telegram"
}

// Notify checks ctx only before sending, the bot api has no cancellation.
func (t *Telegram) Notify(ctx context.Context, msg *Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m := tgbotapi.NewMessage(t.chatID, msg.String())
	m.DisableWebPagePreview = true
	if _, err := t.bot.Send(m); err != nil {
		return errors.Wrap(err, "Failed to send telegram message")
	}
	return nil
}
