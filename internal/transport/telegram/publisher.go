package telegram

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"revertbot/internal/transport"
	logx "revertbot/pkg/logx"
)

// Config configures the Telegram publisher.
type Config struct {
	Token string
	// ChatID is a numeric chat id or a public "@channel" name.
	ChatID string
	// ThreadID targets a forum topic; zero posts to the main thread.
	ThreadID       int
	DisablePreview bool
	// APIURL overrides the Bot API endpoint (local bot-api servers, tests).
	APIURL  string
	Timeout time.Duration
}

// Publisher posts notifications to one Telegram chat or channel. It only
// sends; no updates are polled.
type Publisher struct {
	bot  *tele.Bot
	to   recipient
	opts *tele.SendOptions
	log  logx.Logger
}

type recipient string

func (r recipient) Recipient() string { return string(r) }

func New(cfg Config, log logx.Logger) (*Publisher, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram: token is empty")
	}
	chat := strings.TrimSpace(cfg.ChatID)
	if chat == "" {
		return nil, errors.New("telegram: chat_id is empty")
	}
	if !strings.HasPrefix(chat, "@") {
		if _, err := strconv.ParseInt(chat, 10, 64); err != nil {
			return nil, fmt.Errorf("telegram: chat_id %q is neither numeric nor @name", chat)
		}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		URL:     strings.TrimRight(cfg.APIURL, "/"),
		Client:  &http.Client{Timeout: timeout},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: %w", err)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Publisher{
		bot: b,
		to:  recipient(chat),
		opts: &tele.SendOptions{
			DisableWebPagePreview: cfg.DisablePreview,
			ThreadID:              cfg.ThreadID,
		},
		log: log.With(logx.String("comp", "publisher.telegram")),
	}, nil
}

func (p *Publisher) Name() string { return "telegram" }

// Publish sends text as a plain message. Notification text is always under
// Telegram's message limit, so no splitting is done.
func (p *Publisher) Publish(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return transport.ErrEmptyText
	}

	type result struct {
		msg *tele.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := p.bot.Send(p.to, text, p.opts)
		done <- result{m, err}
	}()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case r := <-done:
		if r.err != nil {
			return fmt.Errorf("telegram: send: %w", r.err)
		}
		if r.msg != nil {
			p.log.Debug("message sent", logx.Int("message_id", r.msg.ID))
		}
		return nil
	}
}
