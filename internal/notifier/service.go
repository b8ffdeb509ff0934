package notifier

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"revertbot/internal/eventbus"
	"revertbot/internal/revert"
	rtsup "revertbot/internal/runtime/supervisor"
	"revertbot/internal/transport"
	logx "revertbot/pkg/logx"
)

var (
	ErrDisabled  = errors.New("notifier disabled")
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

// Service is the async publish queue. It is safe for concurrent use.
type Service struct {
	mu sync.Mutex

	log logx.Logger
	pub transport.Publisher
	bus eventbus.Bus

	cfg     Config
	limiter *rate.Limiter

	accepting bool
	sendWG    sync.WaitGroup
	queue     chan revert.Message
	sup       *rtsup.Supervisor
	stopDone  chan struct{}

	dmu   sync.Mutex
	dedup map[int64]time.Time

	hmu     sync.Mutex
	history []HistoryItem

	queued, sent, failed, deduped, dropped atomic.Uint64
}

func New(cfg Config, pub transport.Publisher, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		pub:   pub,
		log:   log.With(logx.String("comp", "notifier")),
		bus:   bus,
		dedup: map[int64]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

// Apply swaps the rate, dedup and history settings. QueueSize takes effect
// on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 4096
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 100
	}
	s.cfg = cfg
	if s.limiter == nil {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst)
		return
	}
	s.limiter.SetLimit(rate.Limit(cfg.RatePerSec))
	s.limiter.SetBurst(cfg.Burst)
}

// SetPublisher swaps the publisher used for subsequent sends.
func (s *Service) SetPublisher(pub transport.Publisher) {
	s.mu.Lock()
	s.pub = pub
	s.mu.Unlock()
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return
		}
		s.mu.Lock()
	}
	if s.queue != nil {
		s.mu.Unlock()
		return
	}
	s.queue = make(chan revert.Message, s.cfg.QueueSize)
	s.accepting = true
	s.sup = rtsup.New(ctx, rtsup.WithLogger(s.log), rtsup.WithCancelOnError(false))
	sup, q := s.sup, s.queue
	s.mu.Unlock()

	sup.GoRestart("worker", func(c context.Context) error {
		s.workerLoop(c, q)
		s.mu.Lock()
		stopping := s.stopDone != nil
		s.mu.Unlock()
		if stopping || c.Err() != nil {
			return context.Canceled
		}
		return errors.New("notifier worker exited unexpectedly")
	}, rtsup.WithPublishFirstError(true))
}

// Stop refuses new messages and drains the queue until ctx is done.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, sup := s.queue, s.sup
	if q == nil {
		s.mu.Unlock()
		return
	}
	if s.stopDone != nil {
		done := s.stopDone
		s.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return
	}
	done := make(chan struct{})
	s.stopDone = done
	s.accepting = false
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.sendWG.Wait()
		close(q)
		_ = sup.Wait(context.Background())

		s.mu.Lock()
		s.queue = nil
		s.sup = nil
		s.stopDone = nil
		s.mu.Unlock()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		sup.Cancel()
		if n := len(q); n > 0 {
			s.log.Warn("notifications abandoned on shutdown", logx.Int("pending", n))
		}
	}
}

// Notify enqueues msg without blocking. A revision already published
// within DedupWindow is silently dropped.
func (s *Service) Notify(ctx context.Context, msg revert.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if s.pub == nil {
		s.mu.Unlock()
		return ErrDisabled
	}
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q := s.queue
	window, maxEntries := s.cfg.DedupWindow, s.cfg.DedupMaxEntries
	name := s.pub.Name()
	s.sendWG.Add(1)
	s.mu.Unlock()
	defer s.sendWG.Done()

	if window > 0 && msg.RevisionID > 0 && !s.dedupAllow(msg.RevisionID, window, maxEntries) {
		s.deduped.Add(1)
		s.emit(eventbus.NotifierDeduped, name, msg.RevisionID, nil)
		return nil
	}

	select {
	case q <- msg:
		s.queued.Add(1)
		s.emit(eventbus.NotifierQueued, name, msg.RevisionID, nil)
		return nil
	default:
		s.dropped.Add(1)
		s.emit(eventbus.NotifierDropped, name, msg.RevisionID, ErrQueueFull)
		return ErrQueueFull
	}
}

func (s *Service) Stats() Stats {
	st := Stats{
		Queued:  s.queued.Load(),
		Sent:    s.sent.Load(),
		Failed:  s.failed.Load(),
		Deduped: s.deduped.Load(),
		Dropped: s.dropped.Load(),
	}
	s.mu.Lock()
	if s.queue != nil {
		st.Pending = len(s.queue)
	}
	s.mu.Unlock()
	return st
}

// History returns the most recent publish attempts, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) workerLoop(ctx context.Context, q <-chan revert.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-q:
			if !ok {
				return
			}
			s.send(ctx, msg)
		}
	}
}

func (s *Service) send(ctx context.Context, msg revert.Message) {
	s.mu.Lock()
	pub, lim, cfg := s.pub, s.limiter, s.cfg
	s.mu.Unlock()
	if pub == nil {
		return
	}
	if err := lim.Wait(ctx); err != nil {
		return
	}

	cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	err := pub.Publish(cctx, msg.Text)
	cancel()

	item := HistoryItem{At: time.Now(), RevisionID: msg.RevisionID, Text: msg.Text}
	if err != nil {
		item.Error = err.Error()
		s.failed.Add(1)
		s.log.Warn("publish failed", logx.Err(err), logx.Int64("revision", msg.RevisionID), logx.String("publisher", pub.Name()))
		s.emit(eventbus.NotifierFailed, pub.Name(), msg.RevisionID, err)
	} else {
		s.sent.Add(1)
		s.log.Info("notification published", logx.Int64("revision", msg.RevisionID), logx.String("publisher", pub.Name()))
		s.emit(eventbus.NotifierSent, pub.Name(), msg.RevisionID, nil)
	}
	s.appendHistory(item, cfg.HistorySize)
}

func (s *Service) appendHistory(item HistoryItem, max int) {
	s.hmu.Lock()
	s.history = append(s.history, item)
	if len(s.history) > max {
		s.history = s.history[len(s.history)-max:]
	}
	s.hmu.Unlock()
}

func (s *Service) emit(typ, publisher string, rev int64, err error) {
	if s.bus == nil {
		return
	}
	ev := Event{Publisher: publisher, RevisionID: rev, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func (s *Service) dedupAllow(rev int64, window time.Duration, maxEntries int) bool {
	now := time.Now()
	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[rev]; ok && now.Before(until) {
		return false
	}
	s.dedup[rev] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > maxEntries {
		var (
			oldest  int64
			oldestT time.Time
			found   bool
		)
		for k, t := range s.dedup {
			if !found || t.Before(oldestT) {
				oldest, oldestT, found = k, t, true
			}
		}
		delete(s.dedup, oldest)
	}
	return true
}
