package pages

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"revertbot/internal/eventbus"
	logx "revertbot/pkg/logx"
)

// RefreshInfo is the payload of pages.refreshed / pages.refresh_failed events.
type RefreshInfo struct {
	Count int           `json:"count"`
	Took  time.Duration `json:"took"`
	Err   string        `json:"error,omitempty"`
}

// Refresher keeps a Set in sync with a Source.
//
// Load must succeed once before the pipeline starts; after Start the set is
// replaced on every schedule tick. A failed tick keeps the previous snapshot.
type Refresher struct {
	set     *Set
	log     logx.Logger
	bus     eventbus.Bus
	timeout time.Duration

	mu     sync.Mutex
	src    Source
	sched  cron.Schedule
	c      *cron.Cron
	entry  cron.EntryID
	ctx    context.Context
	cancel context.CancelFunc
}

type RefresherOptions struct {
	Schedule string
	// Timeout bounds a single Titles call. Zero means one minute.
	Timeout time.Duration
	Log     logx.Logger
	Bus     eventbus.Bus
}

func NewRefresher(src Source, set *Set, opts RefresherOptions) (*Refresher, error) {
	if src == nil || set == nil {
		return nil, fmt.Errorf("pages: refresher needs a source and a set")
	}
	sched, err := ParseSchedule(opts.Schedule)
	if err != nil {
		return nil, err
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &Refresher{
		set:     set,
		src:     src,
		sched:   sched,
		log:     log.With(logx.String("comp", "pages")),
		bus:     opts.Bus,
		timeout: timeout,
	}, nil
}

// Load fetches the title list once and swaps it into the set.
func (r *Refresher) Load(ctx context.Context) (int, error) {
	r.mu.Lock()
	src := r.src
	r.mu.Unlock()

	start := time.Now()
	cctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	titles, err := src.Titles(cctx)
	took := time.Since(start)
	if err != nil {
		r.log.Warn("page refresh failed", logx.Err(err), logx.Duration("took", took))
		eventbus.Emit(r.bus, eventbus.PagesRefreshError, RefreshInfo{Took: took, Err: err.Error()})
		return 0, err
	}
	if len(titles) == 0 {
		eventbus.Emit(r.bus, eventbus.PagesRefreshError, RefreshInfo{Took: took, Err: ErrEmptySource.Error()})
		return 0, ErrEmptySource
	}
	n := r.set.Replace(titles, time.Now())
	r.log.Info("monitored pages loaded", logx.Int("count", n), logx.Duration("took", took))
	eventbus.Emit(r.bus, eventbus.PagesRefreshed, RefreshInfo{Count: n, Took: took})
	return n, nil
}

// Start schedules periodic refreshes. It does not perform an initial load.
func (r *Refresher) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c != nil {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.c = cron.New(cron.WithParser(cronParser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	r.entry = r.c.Schedule(r.sched, cron.FuncJob(r.tick))
	r.c.Start()
	r.log.Debug("refresher started")
}

// Apply swaps the source and schedule; the next tick uses them.
func (r *Refresher) Apply(src Source, schedule string) error {
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if src != nil {
		r.src = src
	}
	r.sched = sched
	if r.c != nil {
		r.c.Remove(r.entry)
		r.entry = r.c.Schedule(sched, cron.FuncJob(r.tick))
	}
	return nil
}

// Next returns the next scheduled refresh, zero when not started.
func (r *Refresher) Next() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.c == nil {
		return time.Time{}
	}
	return r.c.Entry(r.entry).Next
}

// Stop halts the schedule and waits for a running refresh, bounded by ctx.
func (r *Refresher) Stop(ctx context.Context) {
	r.mu.Lock()
	c := r.c
	cancel := r.cancel
	r.c = nil
	r.mu.Unlock()
	if c == nil {
		return
	}
	cancel()
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	r.log.Debug("refresher stopped")
}

func (r *Refresher) tick() {
	r.mu.Lock()
	ctx := r.ctx
	r.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	_, _ = r.Load(ctx)
}
