package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"revertbot/internal/eventbus"
	"revertbot/internal/revert"
	logx "revertbot/pkg/logx"
)

type fakePublisher struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]error
	sent  chan string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{fail: map[string]error{}, sent: make(chan string, 16)}
}

func (f *fakePublisher) Name() string { return "fake" }

func (f *fakePublisher) Publish(ctx context.Context, text string) error {
	f.mu.Lock()
	f.texts = append(f.texts, text)
	err := f.fail[text]
	f.mu.Unlock()
	f.sent <- text
	return err
}

func waitSent(t *testing.T, f *fakePublisher) string {
	t.Helper()
	select {
	case s := <-f.sent:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish")
		return ""
	}
}

func fastConfig() Config {
	return Config{RatePerSec: 1000, Burst: 100, DedupWindow: time.Minute}
}

func TestNotifyPublishesInOrder(t *testing.T) {
	t.Parallel()
	pub := newFakePublisher()
	s := New(fastConfig(), pub, logx.Nop(), nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	for i, text := range []string{"one", "two", "three"} {
		if err := s.Notify(context.Background(), revert.Message{Text: text, RevisionID: int64(i + 1)}); err != nil {
			t.Fatalf("Notify: %v", err)
		}
	}
	for _, want := range []string{"one", "two", "three"} {
		if got := waitSent(t, pub); got != want {
			t.Fatalf("published %q, want %q", got, want)
		}
	}
}

func TestNotifyDedupsByRevision(t *testing.T) {
	t.Parallel()
	pub := newFakePublisher()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(16)
	defer unsub()

	s := New(fastConfig(), pub, logx.Nop(), bus)
	s.Start(context.Background())

	ctx := context.Background()
	_ = s.Notify(ctx, revert.Message{Text: "first", RevisionID: 42})
	_ = s.Notify(ctx, revert.Message{Text: "again", RevisionID: 42})
	waitSent(t, pub)

	stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.Stop(stopCtx)

	st := s.Stats()
	if st.Sent != 1 || st.Deduped != 1 {
		t.Fatalf("stats = %+v", st)
	}
	var sawDeduped bool
	for len(events) > 0 {
		if e := <-events; e.Type == eventbus.NotifierDeduped {
			sawDeduped = true
		}
	}
	if !sawDeduped {
		t.Fatal("expected notifier.deduped event")
	}
}

func TestPublishFailureIsNotRetried(t *testing.T) {
	t.Parallel()
	pub := newFakePublisher()
	pub.fail["bad"] = errors.New("rate limited")
	s := New(fastConfig(), pub, logx.Nop(), nil)
	s.Start(context.Background())

	ctx := context.Background()
	_ = s.Notify(ctx, revert.Message{Text: "bad", RevisionID: 1})
	_ = s.Notify(ctx, revert.Message{Text: "good", RevisionID: 2})
	if got := waitSent(t, pub); got != "bad" {
		t.Fatalf("first publish %q", got)
	}
	if got := waitSent(t, pub); got != "good" {
		t.Fatalf("second publish %q, failed message must not be retried", got)
	}
	s.Stop(context.Background())

	st := s.Stats()
	if st.Failed != 1 || st.Sent != 1 {
		t.Fatalf("stats = %+v", st)
	}
	h := s.History()
	if len(h) != 2 || h[0].Error == "" || h[1].Error != "" {
		t.Fatalf("history = %+v", h)
	}
}

type blockingPublisher struct{ release chan struct{} }

func (b *blockingPublisher) Name() string { return "blocking" }

func (b *blockingPublisher) Publish(ctx context.Context, text string) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestNotifyQueueFull(t *testing.T) {
	t.Parallel()
	pub := &blockingPublisher{release: make(chan struct{})}
	cfg := fastConfig()
	cfg.QueueSize = 1
	s := New(cfg, pub, logx.Nop(), nil)
	s.Start(context.Background())

	ctx := context.Background()
	var full bool
	for i := 1; i <= 5; i++ {
		if err := s.Notify(ctx, revert.Message{Text: "x", RevisionID: int64(i)}); errors.Is(err, ErrQueueFull) {
			full = true
		}
	}
	if !full {
		t.Fatal("expected ErrQueueFull")
	}
	close(pub.release)
	s.Stop(context.Background())

	if err := s.Notify(ctx, revert.Message{Text: "late", RevisionID: 99}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify after Stop = %v, want ErrStopped", err)
	}
}

func TestNotifyWithoutPublisher(t *testing.T) {
	t.Parallel()
	s := New(Config{}, nil, logx.Nop(), nil)
	if err := s.Notify(context.Background(), revert.Message{Text: "x"}); !errors.Is(err, ErrDisabled) {
		t.Fatalf("err = %v, want ErrDisabled", err)
	}
}
