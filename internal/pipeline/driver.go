package pipeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"revertbot/internal/eventbus"
	"revertbot/internal/revert"
	logx "revertbot/pkg/logx"
)

// Publisher accepts a rendered message. It must not block for long; the
// notifier queue satisfies it.
type Publisher interface {
	Notify(ctx context.Context, msg revert.Message) error
}

// Outcome is what happened to one event.
type Outcome string

const (
	OutcomeMalformed    Outcome = "malformed"
	OutcomeIneligible   Outcome = "ineligible"
	OutcomeUnmonitored  Outcome = "unmonitored"
	OutcomeRejected     Outcome = "rejected"
	OutcomePublished    Outcome = "published"
	OutcomePublishError Outcome = "publish_error"
	OutcomeFormatError  Outcome = "format_error"
	OutcomePanic        Outcome = "panic"
)

type Options struct {
	Classifier *revert.Classifier
	Formatter  *revert.Formatter
	Pages      revert.Membership
	Publisher  Publisher
	Log        logx.Logger
	Bus        eventbus.Bus
	Clock      func() time.Time
}

// Qualified is the bus payload of pipeline.qualified.
type Qualified struct {
	Title      string `json:"title"`
	Editor     string `json:"editor"`
	RevisionID int64  `json:"revision_id"`
	Reason     string `json:"reason"`
	Length     int    `json:"length"`
}

// Driver runs events through filter, classify, format and publish, one at
// a time. Classifier and formatter can be swapped while it runs.
type Driver struct {
	classifier atomic.Pointer[revert.Classifier]
	formatter  atomic.Pointer[revert.Formatter]
	pages      revert.Membership
	pub        Publisher
	log        logx.Logger
	bus        eventbus.Bus
	now        func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}

	seen, malformed, ineligible, unmonitored, rejected   atomic.Uint64
	qualified, published, publishErrs, formatErrs, panics atomic.Uint64
	lastEvent, lastQualified                              atomic.Int64

	vmu      sync.Mutex
	verdicts map[revert.Verdict]uint64
}

// New checks that every collaborator is present and returns an idle Driver.
func New(opts Options) (*Driver, error) {
	if opts.Classifier == nil || opts.Formatter == nil {
		return nil, errors.New("pipeline: classifier and formatter are required")
	}
	if opts.Pages == nil {
		return nil, errors.New("pipeline: page set is required")
	}
	if opts.Publisher == nil {
		return nil, errors.New("pipeline: publisher is required")
	}
	log := opts.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	d := &Driver{
		pages:    opts.Pages,
		pub:      opts.Publisher,
		log:      log.With(logx.String("comp", "pipeline")),
		bus:      opts.Bus,
		now:      clock,
		stopCh:   make(chan struct{}),
		verdicts: map[revert.Verdict]uint64{},
	}
	d.classifier.Store(opts.Classifier)
	d.formatter.Store(opts.Formatter)
	return d, nil
}

// SetClassifier swaps the classifier; the next event uses it.
func (d *Driver) SetClassifier(c *revert.Classifier) {
	if c != nil {
		d.classifier.Store(c)
	}
}

// SetFormatter swaps the formatter; the next event uses it.
func (d *Driver) SetFormatter(f *revert.Formatter) {
	if f != nil {
		d.formatter.Store(f)
	}
}

// Run consumes events until ctx is cancelled, Stop is called or events is
// closed. Per-event failures never end the loop.
func (d *Driver) Run(ctx context.Context, events <-chan revert.ChangeEvent) error {
	d.log.Info("pipeline running", logx.String("wiki", d.classifier.Load().Wiki()))
	for {
		// Stop wins over a ready event.
		select {
		case <-d.stopCh:
			return nil
		default:
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-d.stopCh:
			return nil
		case ev, ok := <-events:
			if !ok {
				d.log.Info("event channel closed")
				return nil
			}
			d.Handle(ctx, ev)
		}
	}
}

// Stop halts event consumption. The source and the page refresher are not
// touched.
func (d *Driver) Stop() {
	d.stopOnce.Do(func() { close(d.stopCh) })
}

// Handle processes a single event and reports the outcome.
func (d *Driver) Handle(ctx context.Context, ev revert.ChangeEvent) (out Outcome) {
	d.seen.Add(1)
	d.lastEvent.Store(d.now().UnixNano())
	defer func() {
		if r := recover(); r != nil {
			d.panics.Add(1)
			d.log.Error("event handling panicked",
				logx.Any("panic", r),
				logx.String("title", ev.Title),
				logx.Int64("revision", ev.RevisionID),
				logx.String("stack", string(debug.Stack())))
			out = OutcomePanic
		}
	}()

	if err := ev.Validate(); err != nil {
		d.malformed.Add(1)
		d.log.Debug("skipping malformed event", logx.Err(err))
		eventbus.Emit(d.bus, eventbus.PipelineSkipped, err.Error())
		return OutcomeMalformed
	}

	c := d.classifier.Load()
	if !c.Eligible(ev) {
		d.ineligible.Add(1)
		return OutcomeIneligible
	}
	if !d.pages.Contains(ev.Title) {
		d.unmonitored.Add(1)
		return OutcomeUnmonitored
	}

	res, verdict := c.Decide(ev, d.pages)
	d.noteVerdict(verdict)
	if !res.Qualifying {
		d.rejected.Add(1)
		d.log.Debug("revert candidate rejected",
			logx.String("title", ev.Title),
			logx.String("editor", ev.Editor),
			logx.String("verdict", string(verdict)))
		return OutcomeRejected
	}
	d.qualified.Add(1)
	d.lastQualified.Store(d.now().UnixNano())

	msg, err := d.formatter.Load().Format(res)
	if err != nil {
		d.formatErrs.Add(1)
		d.log.Warn("format failed", logx.Err(err), logx.Int64("revision", res.RevisionID))
		return OutcomeFormatError
	}
	eventbus.Emit(d.bus, eventbus.PipelineQualified, Qualified{
		Title:      res.Title,
		Editor:     res.Editor,
		RevisionID: res.RevisionID,
		Reason:     res.Reason,
		Length:     msg.Length,
	})

	if err := d.pub.Notify(ctx, msg); err != nil {
		d.publishErrs.Add(1)
		d.log.Warn("publish handoff failed", logx.Err(err), logx.Int64("revision", res.RevisionID))
		return OutcomePublishError
	}
	d.published.Add(1)
	d.log.Info("revert reported",
		logx.String("title", res.Title),
		logx.String("editor", res.Editor),
		logx.Int64("revision", res.RevisionID),
		logx.Int("length", msg.Length))
	return OutcomePublished
}

func (d *Driver) noteVerdict(v revert.Verdict) {
	d.vmu.Lock()
	d.verdicts[v]++
	d.vmu.Unlock()
}

// Stats is a point-in-time view of the driver counters.
type Stats struct {
	Seen            uint64            `json:"seen"`
	Malformed       uint64            `json:"malformed"`
	Ineligible      uint64            `json:"ineligible"`
	Unmonitored     uint64            `json:"unmonitored"`
	Rejected        uint64            `json:"rejected"`
	Qualified       uint64            `json:"qualified"`
	Published       uint64            `json:"published"`
	PublishErrors   uint64            `json:"publish_errors"`
	FormatErrors    uint64            `json:"format_errors"`
	Panics          uint64            `json:"panics"`
	Verdicts        map[string]uint64 `json:"verdicts"`
	LastEventAt     time.Time         `json:"last_event_at,omitempty"`
	LastQualifiedAt time.Time         `json:"last_qualified_at,omitempty"`
}

func (d *Driver) Stats() Stats {
	st := Stats{
		Seen:          d.seen.Load(),
		Malformed:     d.malformed.Load(),
		Ineligible:    d.ineligible.Load(),
		Unmonitored:   d.unmonitored.Load(),
		Rejected:      d.rejected.Load(),
		Qualified:     d.qualified.Load(),
		Published:     d.published.Load(),
		PublishErrors: d.publishErrs.Load(),
		FormatErrors:  d.formatErrs.Load(),
		Panics:        d.panics.Load(),
		Verdicts:      map[string]uint64{},
	}
	if ns := d.lastEvent.Load(); ns > 0 {
		st.LastEventAt = time.Unix(0, ns)
	}
	if ns := d.lastQualified.Load(); ns > 0 {
		st.LastQualifiedAt = time.Unix(0, ns)
	}
	d.vmu.Lock()
	for v, n := range d.verdicts {
		st.Verdicts[string(v)] = n
	}
	d.vmu.Unlock()
	return st
}

func (s Stats) String() string {
	return fmt.Sprintf("seen=%d qualified=%d published=%d rejected=%d malformed=%d", s.Seen, s.Qualified, s.Published, s.Rejected, s.Malformed)
}
