package stream

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/r3labs/sse/v2"
	"gopkg.in/cenkalti/backoff.v1"

	"revertbot/internal/eventbus"
	"revertbot/internal/revert"
	logx "revertbot/pkg/logx"
)

const (
	DefaultURL = "https://stream.wikimedia.org/v2/stream/recentchange"

	// Recent-change payloads with long summaries exceed the sse default.
	maxEventSize = 1 << 20
)

type Options struct {
	URL       string
	UserAgent string
	// Wiki, when set, drops other wikis before decoding the rest of the payload.
	Wiki string
	// MaxReconnectWait caps the reconnect backoff.
	MaxReconnectWait time.Duration

	Log logx.Logger
	Bus eventbus.Bus

	OnOpened  func()
	OnErrored func(error)
}

// Stats counts what the source has seen since construction.
type Stats struct {
	Received  uint64 `json:"received"`
	Delivered uint64 `json:"delivered"`
	Malformed uint64 `json:"malformed"`
	Filtered  uint64 `json:"filtered"`
	Opened    uint64 `json:"opened"`
	Errors    uint64 `json:"errors"`
}

// Source consumes the recent-changes SSE feed. Reconnects, including
// Last-Event-ID resume, are handled inside Start.
type Source struct {
	opts Options
	log  logx.Logger

	received, delivered, malformed, filtered, opened, errs atomic.Uint64
}

func New(opts Options) *Source {
	if strings.TrimSpace(opts.URL) == "" {
		opts.URL = DefaultURL
	}
	if opts.MaxReconnectWait <= 0 {
		opts.MaxReconnectWait = time.Minute
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Source{opts: opts, log: log.With(logx.String("comp", "stream"))}
}

func (s *Source) Stats() Stats {
	return Stats{
		Received:  s.received.Load(),
		Delivered: s.delivered.Load(),
		Malformed: s.malformed.Load(),
		Filtered:  s.filtered.Load(),
		Opened:    s.opened.Load(),
		Errors:    s.errs.Load(),
	}
}

// Start connects and pushes decoded events into out until ctx is done.
// It returns ctx.Err() on cancellation, or the connection error once the
// reconnect policy gives up.
func (s *Source) Start(ctx context.Context, out chan<- revert.ChangeEvent) error {
	client := sse.NewClient(s.opts.URL, sse.ClientMaxBufferSize(maxEventSize))
	if s.opts.UserAgent != "" {
		client.Headers["User-Agent"] = s.opts.UserAgent
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxInterval = s.opts.MaxReconnectWait
	bo.MaxElapsedTime = 0
	client.ReconnectStrategy = backoff.WithContext(bo, ctx)
	client.ReconnectNotify = func(err error, next time.Duration) {
		s.errored(err, next)
	}
	client.OnConnect(func(*sse.Client) {
		s.opened.Add(1)
		s.log.Info("stream opened", logx.String("url", s.opts.URL))
		eventbus.Emit(s.opts.Bus, eventbus.StreamOpened, s.opts.URL)
		if s.opts.OnOpened != nil {
			s.opts.OnOpened()
		}
	})
	client.OnDisconnect(func(*sse.Client) {
		s.log.Debug("stream disconnected")
	})

	err := client.SubscribeRawWithContext(ctx, func(msg *sse.Event) {
		s.handle(ctx, msg, out)
	})
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = errors.New("stream closed")
	}
	s.errored(err, 0)
	return err
}

func (s *Source) handle(ctx context.Context, msg *sse.Event, out chan<- revert.ChangeEvent) {
	if msg == nil || len(msg.Data) == 0 {
		return
	}
	if ev := string(msg.Event); ev != "" && ev != "message" {
		return
	}
	s.received.Add(1)

	if s.opts.Wiki != "" && !mentionsWiki(msg.Data, s.opts.Wiki) {
		s.filtered.Add(1)
		return
	}
	ev, err := Decode(msg.Data)
	if err != nil {
		s.malformed.Add(1)
		s.log.Debug("skipping malformed event", logx.Err(err), logx.String("id", string(msg.ID)))
		return
	}
	if s.opts.Wiki != "" && ev.Wiki != s.opts.Wiki {
		s.filtered.Add(1)
		return
	}
	select {
	case out <- ev:
		s.delivered.Add(1)
	case <-ctx.Done():
	}
}

func (s *Source) errored(err error, next time.Duration) {
	s.errs.Add(1)
	s.log.Warn("stream error", logx.Err(err), logx.Duration("retry_in", next))
	eventbus.Emit(s.opts.Bus, eventbus.StreamErrored, err.Error())
	if s.opts.OnErrored != nil {
		s.opts.OnErrored(err)
	}
}

// mentionsWiki is a cheap byte scan before the full decode.
func mentionsWiki(data []byte, wiki string) bool {
	return strings.Contains(string(data), `"`+wiki+`"`)
}
