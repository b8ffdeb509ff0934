package transport

import (
	"context"
	"errors"
	"strings"

	logx "revertbot/pkg/logx"
)

// Publisher delivers one rendered notification to the feed.
//
// Publish is called from the notifier worker, one message at a time. Errors
// are reported back but never retried.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, text string) error
}

var ErrEmptyText = errors.New("transport: empty text")

// LogPublisher writes notifications to the log instead of a feed. It is the
// "log" driver and the default for dry runs.
type LogPublisher struct {
	log logx.Logger
}

func NewLogPublisher(log logx.Logger) *LogPublisher {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &LogPublisher{log: log.With(logx.String("comp", "publisher.log"))}
}

func (p *LogPublisher) Name() string { return "log" }

func (p *LogPublisher) Publish(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	p.log.Info("notification", logx.String("text", text))
	return nil
}
