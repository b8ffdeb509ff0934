package pages

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"revertbot/internal/eventbus"
)

func TestSetReplaceIsWholesale(t *testing.T) {
	t.Parallel()
	s := NewSet()
	if s.Contains("Foo") || s.Len() != 0 || !s.LoadedAt().IsZero() {
		t.Fatal("new set should be empty")
	}
	now := time.Now()
	if n := s.Replace([]string{"Foo", "Bar_baz", " ", "Foo"}, now); n != 2 {
		t.Fatalf("Replace = %d, want 2", n)
	}
	if !s.Contains("Foo") || !s.Contains("Bar baz") || !s.Contains("Bar_baz") {
		t.Fatal("expected titles to be present")
	}
	if s.Contains("foo") {
		t.Fatal("lookups are case sensitive")
	}
	s.Replace([]string{"Qux"}, now.Add(time.Minute))
	if s.Contains("Foo") || !s.Contains("Qux") || s.Len() != 1 {
		t.Fatalf("old snapshot leaked: %v", s.Titles())
	}
	if !s.LoadedAt().Equal(now.Add(time.Minute)) {
		t.Fatal("LoadedAt not updated")
	}
	var nilSet *Set
	if nilSet.Contains("Foo") {
		t.Fatal("nil set contains nothing")
	}
}

func TestSetConcurrentReaders(t *testing.T) {
	t.Parallel()
	s := NewSet()
	a := []string{"A1", "A2"}
	b := []string{"B1", "B2"}
	s.Replace(a, time.Now())

	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			if i%2 == 0 {
				s.Replace(b, time.Now())
			} else {
				s.Replace(a, time.Now())
			}
		}
		close(stop)
	}()
	for {
		select {
		case <-stop:
			wg.Wait()
			return
		default:
		}
		got := s.Titles()
		if len(got) != 2 || got[0][0] != got[1][0] {
			t.Fatalf("mixed snapshot observed: %v", got)
		}
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		in   string
		next time.Time
	}{
		{in: "", next: base.Add(10 * time.Minute)},
		{in: "10m", next: base.Add(10 * time.Minute)},
		{in: "00:15", next: base.Add(15 * time.Minute)},
		{in: "every:1h", next: base.Add(time.Hour)},
		{in: "*/5 * * * *", next: base.Add(5 * time.Minute)},
		{in: "cron:@hourly", next: base.Add(time.Hour)},
	}
	for _, tt := range tests {
		sched, err := ParseSchedule(tt.in)
		if err != nil {
			t.Fatalf("ParseSchedule(%q): %v", tt.in, err)
		}
		if got := sched.Next(base); !got.Equal(tt.next) {
			t.Fatalf("ParseSchedule(%q).Next = %v, want %v", tt.in, got, tt.next)
		}
	}
	for _, bad := range []string{"soon", "-5m", "00:99", "cron:", "every:0s"} {
		if _, err := ParseSchedule(bad); err == nil {
			t.Fatalf("ParseSchedule(%q) should fail", bad)
		}
	}
}

type fakeLister struct {
	members  []string
	embedded []string
	err      error
}

func (f *fakeLister) CategoryMembers(context.Context, string, []int) ([]string, error) {
	return f.members, f.err
}

func (f *fakeLister) EmbeddedIn(context.Context, string, []int) ([]string, error) {
	return f.embedded, f.err
}

func TestNewSource(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	api := &fakeLister{members: []string{"A"}, embedded: []string{"B", "C"}}

	src, err := NewSource(SourceConfig{Kind: "category", Category: "Category:X"}, api)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if got, _ := src.Titles(ctx); len(got) != 1 || got[0] != "A" {
		t.Fatalf("category titles = %v", got)
	}

	src, err = NewSource(SourceConfig{Kind: "embeddedin", Template: "Template:Y"}, api)
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if got, _ := src.Titles(ctx); len(got) != 2 {
		t.Fatalf("embeddedin titles = %v", got)
	}

	src, err = NewSource(SourceConfig{Titles: []string{"Z"}}, nil)
	if err != nil {
		t.Fatalf("NewSource static: %v", err)
	}
	if got, _ := src.Titles(ctx); len(got) != 1 || got[0] != "Z" {
		t.Fatalf("static titles = %v", got)
	}

	if _, err := NewSource(SourceConfig{Kind: "category"}, api); err == nil {
		t.Fatal("category without name should fail")
	}
	if _, err := NewSource(SourceConfig{Kind: "embeddedin", Template: "T"}, nil); err == nil {
		t.Fatal("embeddedin without api should fail")
	}
	if _, err := NewSource(SourceConfig{Kind: "watchlist"}, api); err == nil {
		t.Fatal("unknown kind should fail")
	}

	empty, _ := NewSource(SourceConfig{Kind: "category", Category: "Category:Empty"}, &fakeLister{})
	if _, err := empty.Titles(ctx); !errors.Is(err, ErrEmptySource) {
		t.Fatalf("err = %v, want ErrEmptySource", err)
	}
}

type flakySource struct {
	mu    sync.Mutex
	calls int
	lists [][]string
	errs  []error
}

func (f *flakySource) Titles(context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	return f.lists[i], f.errs[i]
}

func TestRefresherKeepsSnapshotOnFailure(t *testing.T) {
	t.Parallel()
	set := NewSet()
	bus := eventbus.New()
	events, unsub := bus.Subscribe(8)
	defer unsub()

	src := &flakySource{
		lists: [][]string{{"A", "B"}, nil},
		errs:  []error{nil, errors.New("api down")},
	}
	r, err := NewRefresher(src, set, RefresherOptions{Schedule: "10m", Bus: bus})
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	ctx := context.Background()
	if n, err := r.Load(ctx); err != nil || n != 2 {
		t.Fatalf("Load = %d, %v", n, err)
	}
	if e := <-events; e.Type != eventbus.PagesRefreshed {
		t.Fatalf("event = %s", e.Type)
	}
	if _, err := r.Load(ctx); err == nil {
		t.Fatal("expected failure on second load")
	}
	if e := <-events; e.Type != eventbus.PagesRefreshError {
		t.Fatalf("event = %s", e.Type)
	}
	if !set.Contains("A") || set.Len() != 2 {
		t.Fatal("failed refresh must keep the previous snapshot")
	}
}

func TestRefresherStartStop(t *testing.T) {
	t.Parallel()
	r, err := NewRefresher(Static{"A"}, NewSet(), RefresherOptions{Schedule: "1h"})
	if err != nil {
		t.Fatalf("NewRefresher: %v", err)
	}
	if !r.Next().IsZero() {
		t.Fatal("Next before Start should be zero")
	}
	r.Start(context.Background())
	if r.Next().IsZero() {
		t.Fatal("Next after Start should be set")
	}
	if err := r.Apply(nil, "bogus"); err == nil {
		t.Fatal("Apply with bad schedule should fail")
	}
	if err := r.Apply(Static{"B"}, "30m"); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
	r.Stop(ctx)
}
