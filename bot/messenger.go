package bot

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"

	"gatebot/core/logger"
	"gatebot/core/telegram/keyboard"
	"gatebot/core/telegram/sender"
	"gatebot/gate"
)

// ErrNotStarted is returned when an outbound send happens before the
// transport is bound at startup.
var ErrNotStarted = errors.New("bot: transport not started")

// Messenger adapts the Telegram transport to the gate.Messenger seam. The bot
// instance is bound once the runtime is up; sends go through the asynchronous
// dispatcher with a synchronous fallback when its queue is saturated.
type Messenger struct {
	bot  atomic.Pointer[tele.Bot]
	disp atomic.Pointer[sender.Dispatcher]
}

// NewMessenger returns an unbound Messenger.
func NewMessenger() *Messenger {
	return &Messenger{}
}

// Bind attaches the live bot and dispatcher. Called from the runtime's
// OnStart hook.
func (m *Messenger) Bind(bot *tele.Bot, disp *sender.Dispatcher) {
	m.bot.Store(bot)
	m.disp.Store(disp)
}

func (m *Messenger) send(ctx context.Context, action string, run func(b *tele.Bot) error) error {
	b := m.bot.Load()
	if b == nil {
		return ErrNotStarted
	}
	job := func() error { return run(b) }

	disp := m.disp.Load()
	if disp == nil {
		return job()
	}
	if err := disp.Enqueue(ctx, action, "sendMessage", job); err != nil {
		if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
			logger.Warn(ctx, "tg.sender", "queue.fallback",
				slog.String("action", action),
				slog.String("err", err.Error()),
			)
			return job()
		}
		return err
	}
	return nil
}

// SendText delivers plain text to the recipient.
func (m *Messenger) SendText(ctx context.Context, recipient int64, text string) error {
	return m.send(ctx, "send.text", func(b *tele.Bot) error {
		_, err := b.Send(tele.ChatID(recipient), text)
		return err
	})
}

// SendMarkdown delivers Markdown-formatted text to the recipient.
func (m *Messenger) SendMarkdown(ctx context.Context, recipient int64, text string) error {
	return m.send(ctx, "send.markdown", func(b *tele.Bot) error {
		_, err := b.Send(tele.ChatID(recipient), text, &tele.SendOptions{ParseMode: tele.ModeMarkdown})
		return err
	})
}

// SendChoice delivers text with a single row of inline action buttons. Button
// callbacks carry the action key as the unique and the target identity as the
// payload.
func (m *Messenger) SendChoice(ctx context.Context, recipient int64, text string, buttons []gate.Button) error {
	row := make([]keyboard.InlineBtn, 0, len(buttons))
	for _, btn := range buttons {
		row = append(row, keyboard.InlineBtn{
			Text:   btn.Label,
			Unique: btn.Action.Key(),
			Data:   strconv.FormatInt(btn.Action.UserID, 10),
		})
	}
	markup := keyboard.SingleRow(row...)
	return m.send(ctx, "send.choice", func(b *tele.Bot) error {
		_, err := b.Send(tele.ChatID(recipient), text, markup)
		return err
	})
}
