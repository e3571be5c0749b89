package notify

import (
	"context"
	"fmt"
	"net/http"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/gorewood/briefship/internal/output"
)

// TelegramOptions configures NewTelegram. Endpoint and HTTPClient default to
// the public Bot API and http.DefaultClient.
type TelegramOptions struct {
	Token      string
	ChatID     int64
	Endpoint   string
	HTTPClient *http.Client
}

// Telegram sends messages through a bot to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// NewTelegram authenticates the bot (one getMe call) and returns a Notifier
// bound to opts.ChatID.
func NewTelegram(opts TelegramOptions) (*Telegram, error) {
	if opts.Token == "" || opts.ChatID == 0 {
		return nil, output.NewUserError("telegram notifications need a bot token and a chat_id")
	}
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = tgbotapi.APIEndpoint
	}
	client := opts.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	bot, err := tgbotapi.NewBotAPIWithClient(opts.Token, endpoint, client)
	if err != nil {
		return nil, output.NewSystemErrorWithCause("telegram login: "+err.Error(), err)
	}
	return &Telegram{bot: bot, chatID: opts.ChatID}, nil
}

// BotName returns the bot's username.
func (t *Telegram) BotName() string {
	return t.bot.Self.UserName
}

// Notify implements Notifier.
func (t *Telegram) Notify(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out := tgbotapi.NewMessage(t.chatID, msg.Text)
	out.DisableWebPagePreview = true
	out.DisableNotification = msg.Success
	if _, err := t.bot.Send(out); err != nil {
		return fmt.Errorf("telegram sendMessage to %d: %w", t.chatID, err)
	}
	return nil
}
