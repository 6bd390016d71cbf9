// Package bot implements the Telegram transport adapter. It translates
// bot-native updates into relay events and implements the relay's outbound
// port for operator replies.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const defaultGreeting = "Привет! Я бот. Напиши мне что-нибудь, и оператор ответит тебе."

// Sink is the relay-side contract the adapter drives with parsed bot events.
type Sink interface {
	OnStart(chatID, username, firstName, lastName string)
	OnTextMessage(chatID, text, username, firstName string)
}

// api is the slice of the Telegram client the adapter actually uses.
// Narrowed to an interface so tests can drive handleUpdate without a token.
type api interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetUpdatesChan(cfg tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Adapter owns the Telegram long-polling loop.
type Adapter struct {
	log      *slog.Logger
	api      api
	sink     Sink
	greeting string

	pollTimeout time.Duration
}

// New constructs an Adapter and authenticates against the Telegram API.
// An empty or rejected token is a fatal configuration error: the process
// must not proceed to accept traffic without a working bot transport.
func New(log *slog.Logger, token string, sink Sink, pollTimeout time.Duration) (*Adapter, error) {
	if token == "" {
		return nil, fmt.Errorf("bot token is required")
	}

	client, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}

	log.Info("bot.authenticated", "username", client.Self.UserName)

	if pollTimeout <= 0 {
		pollTimeout = 30 * time.Second
	}

	return &Adapter{
		log:         log,
		api:         client,
		sink:        sink,
		greeting:    defaultGreeting,
		pollTimeout: pollTimeout,
	}, nil
}

// Run consumes Telegram updates until ctx is cancelled.
func (a *Adapter) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = int(a.pollTimeout.Seconds())

	updates := a.api.GetUpdatesChan(cfg)
	a.log.Info("bot.polling.start", "timeout_s", cfg.Timeout)

	for {
		select {
		case <-ctx.Done():
			a.api.StopReceivingUpdates()
			a.log.Info("bot.polling.stop")
			return nil
		case upd, ok := <-updates:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				// A dead update stream means users can no longer reach the
				// relay. Fail loudly so the process restarts.
				return errors.New("telegram update stream closed unexpectedly")
			}
			a.handleUpdate(upd)
		}
	}
}

// Send delivers operator text to a Telegram chat. It implements the relay's
// outbound port.
func (a *Adapter) Send(ctx context.Context, chatID, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid chat id %q: %w", chatID, err)
	}

	if _, err := a.api.Send(tgbotapi.NewMessage(id, text)); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}

	a.log.Debug("bot.send", "chat_id", chatID, "text_len", len(text))
	return nil
}

func (a *Adapter) handleUpdate(upd tgbotapi.Update) {
	m := upd.Message
	if m == nil || m.Chat == nil {
		return
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)

	var username, firstName, lastName string
	if m.From != nil {
		username = m.From.UserName
		firstName = m.From.FirstName
		lastName = m.From.LastName
	}

	if m.IsCommand() {
		if m.Command() == "start" {
			a.log.Debug("bot.start", "chat_id", chatID)
			a.sink.OnStart(chatID, username, firstName, lastName)
			a.reply(m.Chat.ID, a.greeting)
		}
		return
	}

	if m.Text == "" {
		return
	}

	a.log.Debug("bot.message", "chat_id", chatID, "text_len", len(m.Text))
	a.sink.OnTextMessage(chatID, m.Text, username, firstName)
}

func (a *Adapter) reply(chatID int64, text string) {
	if _, err := a.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		a.log.Error("bot.reply.fail", "chat_id", chatID, "err", err)
	}
}
