package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"revertbot/internal/config"
	"revertbot/internal/eventbus"
	"revertbot/internal/mediawiki"
	"revertbot/internal/notifier"
	"revertbot/internal/pages"
	"revertbot/internal/pipeline"
	"revertbot/internal/revert"
	rtsup "revertbot/internal/runtime/supervisor"
	"revertbot/internal/status"
	"revertbot/internal/stream"
	logx "revertbot/pkg/logx"
	"revertbot/pkg/sdnotify"
)

// eventBuffer decouples the SSE reader from the pipeline driver.
const eventBuffer = 256

type App struct {
	runID     string
	startedAt time.Time
	wiki      string

	cfgm *config.ConfigManager
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	api       *mediawiki.Client
	set       *pages.Set
	refresher *pages.Refresher
	source    *stream.Source
	driver    *pipeline.Driver
	notif     *notifier.Service
	status    *status.Server

	events   chan revert.ChangeEvent
	streamUp atomic.Bool
	stopped  atomic.Bool
}

// New loads the config and builds every component. Nothing runs until Start.
func New(cfgPath, runID string) (*App, error) {
	cfgm := config.NewConfigManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	logSvc, root := logx.New(mapLoggingConfig(cfg))
	if runID != "" {
		root = root.With(logx.String("run_id", runID))
	}
	log := root.With(logx.String("comp", "app"))

	a := &App{
		runID:     runID,
		startedAt: time.Now(),
		wiki:      wikiID(cfg),
		cfgm:      cfgm,
		log:       log,
		logs:      logSvc,
		bus:       eventbus.New(),
		set:       pages.NewSet(),
		events:    make(chan revert.ChangeEvent, eventBuffer),
	}
	if err := a.build(cfg, root); err != nil {
		logSvc.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(cfg *config.Config, root logx.Logger) error {
	classifier, err := buildClassifier(cfg)
	if err != nil {
		return err
	}
	formatter, err := buildFormatter(cfg)
	if err != nil {
		return err
	}

	a.api = newWikiClient(cfg)
	src, err := pages.NewSource(mapSourceConfig(cfg), a.api)
	if err != nil {
		return err
	}
	ropts, err := mapRefresherOptions(cfg)
	if err != nil {
		return err
	}
	ropts.Log, ropts.Bus = root, a.bus
	if a.refresher, err = pages.NewRefresher(src, a.set, ropts); err != nil {
		return err
	}

	pub, err := newPublisher(cfg, root)
	if err != nil {
		return err
	}
	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return err
	}
	a.notif = notifier.New(ncfg, pub, root, a.bus)

	a.driver, err = pipeline.New(pipeline.Options{
		Classifier: classifier,
		Formatter:  formatter,
		Pages:      a.set,
		Publisher:  a.notif,
		Log:        root,
		Bus:        a.bus,
	})
	if err != nil {
		return err
	}

	sopts, err := mapStreamOptions(cfg)
	if err != nil {
		return err
	}
	sopts.Log, sopts.Bus = root, a.bus
	sopts.OnOpened = func() { a.streamUp.Store(true) }
	sopts.OnErrored = func(error) { a.streamUp.Store(false) }
	a.source = stream.New(sopts)

	if cfg.Status.Enabled {
		a.status = status.New(status.Options{
			Addr:     cfg.Status.Addr,
			Pprof:    cfg.Status.Pprof,
			Snapshot: a.Snapshot,
			Health:   a.health,
			Log:      root,
		})
	}
	return nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

// Start loads the monitored pages (fatal on failure) and then runs the
// stream, pipeline, notifier and background loops.
func (a *App) Start(ctx context.Context) error {
	a.sup = rtsup.New(ctx, rtsup.WithLogger(a.log), rtsup.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		return validateRuntime(cfg)
	})

	if _, err := a.refresher.Load(ctx); err != nil {
		a.sup.Cancel()
		return fmt.Errorf("initial page load: %w", err)
	}

	run := a.sup.Context()
	a.refresher.Start(run)
	a.notif.Start(run)

	a.sup.GoRestart("stream", func(c context.Context) error {
		a.streamUp.Store(false)
		return a.source.Start(c, a.events)
	},
		rtsup.WithStopOnCleanExit(false),
		rtsup.WithRestartBackoff(time.Second, time.Minute),
	)

	a.sup.Go("pipeline", func(c context.Context) error {
		err := a.driver.Run(c, a.events)
		if err == nil && !a.stopped.Load() {
			return errors.New("pipeline exited")
		}
		return err
	})

	if a.bus != nil {
		events, unsub := a.bus.Subscribe(128)
		a.sup.Go0("eventbus.log", func(c context.Context) {
			defer unsub()
			for {
				select {
				case <-c.Done():
					return
				case e, ok := <-events:
					if !ok {
						return
					}
					a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
				}
			}
		})
	}

	a.startReloader()
	a.sup.Go("config.watch", func(c context.Context) error {
		return a.cfgm.Watch(c)
	})

	if a.status != nil {
		a.status.Start(run)
	}
	a.sup.Go0("systemd.watchdog", func(c context.Context) {
		sdnotify.Watchdog(c, a.log, func() error { return a.sup.Err() })
	})

	sdnotify.Ready(a.log, "watching "+a.wiki)
	a.log.Info("app started", logx.String("wiki", a.wiki), logx.Int("pages", a.set.Len()))
	return nil
}

// Stop halts consumption first, drains the notifier, then tears down the
// rest. Every step is bounded so one component cannot stall shutdown.
func (a *App) Stop(ctx context.Context, reason StopReason) error {
	if a.sup == nil {
		return nil
	}
	if !a.stopped.CompareAndSwap(false, true) {
		return nil
	}
	a.log.Info("stopping", logx.String("reason", string(reason)))
	sdnotify.Stopping(a.log)

	a.driver.Stop()
	a.step(ctx, "notifier", 5*time.Second, func(c context.Context) error { a.notif.Stop(c); return nil })

	a.sup.Cancel()
	a.step(ctx, "pages", 2*time.Second, func(c context.Context) error { a.refresher.Stop(c); return nil })
	a.step(ctx, "status", 2*time.Second, func(c context.Context) error {
		if a.status != nil {
			a.status.Stop(c)
		}
		return nil
	})
	a.step(ctx, "supervisor", 3*time.Second, func(c context.Context) error { return a.sup.Wait(c) })

	st := a.driver.Stats()
	a.log.Info("stopped", logx.String("pipeline", st.String()))
	if a.logs != nil {
		a.logs.Close()
	}
	return nil
}

// step runs one shutdown step with an upper bound. fn must honor its ctx.
func (a *App) step(ctx context.Context, name string, max time.Duration, fn func(context.Context) error) {
	start := time.Now()
	if dl, ok := ctx.Deadline(); ok {
		// respect the caller's deadline; never extend it
		if rem := time.Until(dl); rem < max {
			max = rem
		}
	}
	if max <= 0 {
		a.log.Warn("stop step skipped (deadline reached)", logx.String("name", name))
		return
	}
	stepCtx, cancel := context.WithTimeout(ctx, max)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("panic in stop step %s: %v", name, r)
			}
		}()
		done <- fn(stepCtx)
	}()

	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("stop step error", logx.String("name", name), logx.Err(err))
		}
		a.log.Debug("stop step end", logx.String("name", name), logx.Duration("took", time.Since(start)))
	case <-stepCtx.Done():
		a.log.Warn("stop step deadline reached (continuing)",
			logx.String("name", name),
			logx.Duration("elapsed", time.Since(start)),
		)
	}
}

// Snapshot is the /stats view.
func (a *App) Snapshot() status.Snapshot {
	snap := status.Snapshot{
		RunID:     a.runID,
		Wiki:      a.wiki,
		StartedAt: a.startedAt,
		Uptime:    time.Since(a.startedAt).Truncate(time.Second).String(),
		Pipeline:  a.driver.Stats(),
		Stream:    a.source.Stats(),
		Pages: status.PagesInfo{
			Count:    a.set.Len(),
			LoadedAt: a.set.LoadedAt(),
		},
		Notifier: a.notif.Stats(),
		History:  a.notif.History(),
	}
	if a.refresher != nil {
		snap.Pages.NextRefresh = a.refresher.Next()
	}
	if a.sup != nil {
		snap.Tasks = a.sup.Snapshot().Tasks
	}
	return snap
}

func (a *App) health() error {
	if a.sup != nil {
		if err := a.sup.Err(); err != nil {
			return err
		}
	}
	if !a.streamUp.Load() {
		return errors.New("event stream not connected")
	}
	if a.set.Len() == 0 {
		return errors.New("no monitored pages")
	}
	return nil
}

// validateRuntime builds every hot-reloadable component from cfg without
// installing it, so a bad reload is rejected before commit.
func validateRuntime(cfg *config.Config) error {
	var errs []error
	if _, err := buildClassifier(cfg); err != nil {
		errs = append(errs, fmt.Errorf("classifier: %w", err))
	}
	if _, err := buildFormatter(cfg); err != nil {
		errs = append(errs, fmt.Errorf("format: %w", err))
	}
	if _, err := pages.NewSource(mapSourceConfig(cfg), newWikiClient(cfg)); err != nil {
		errs = append(errs, fmt.Errorf("pages: %w", err))
	}
	if _, err := mapRefresherOptions(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		errs = append(errs, err)
	}
	if _, err := newPublisher(cfg, logx.Nop()); err != nil {
		errs = append(errs, fmt.Errorf("publisher: %w", err))
	}
	return errors.Join(errs...)
}
