package app

import (
	"context"
	"slices"
	"strings"

	"revertbot/internal/config"
	"revertbot/internal/eventbus"
	"revertbot/internal/pages"
	logx "revertbot/pkg/logx"
	"revertbot/pkg/sdnotify"
)

// restartOnly are sections read once at startup.
var restartOnly = []string{"wiki", "status"}

// startReloader fans committed config changes out to the running components.
func (a *App) startReloader() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		lastApplied := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				// Coalesce bursts: keep only the latest config in the channel.
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							newCfg = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(c, lastApplied, newCfg)
				lastApplied = newCfg
			}
		}
	})
}

func (a *App) applyConfig(ctx context.Context, oldCfg, newCfg *config.Config) {
	sections, attrs := config.SummarizeConfigChange(oldCfg, newCfg)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}
	sdnotify.Reloading(a.log)
	changed := func(name string) bool { return slices.Contains(sections, name) }

	if changed("logging") {
		if err := a.logs.Apply(mapLoggingConfig(newCfg)); err != nil {
			a.log.Warn("log file sink unavailable", logx.Err(err))
		}
	}

	if changed("classifier") {
		if c, err := buildClassifier(newCfg); err != nil {
			a.log.Warn("invalid classifier config; keeping previous", logx.Err(err))
		} else {
			a.driver.SetClassifier(c)
		}
	}

	if changed("format") {
		if f, err := buildFormatter(newCfg); err != nil {
			a.log.Warn("invalid format config; keeping previous", logx.Err(err))
		} else {
			a.driver.SetFormatter(f)
		}
	}

	if changed("publisher") {
		if ncfg, err := mapNotifierConfig(newCfg); err != nil {
			a.log.Warn("invalid publisher config; keeping previous", logx.Err(err))
		} else {
			a.notif.Apply(ncfg)
		}
	}
	if changed("telegram") || (changed("publisher") && oldCfg.Publisher.Driver != newCfg.Publisher.Driver) {
		if pub, err := newPublisher(newCfg, a.log); err != nil {
			a.log.Warn("invalid publisher; keeping previous", logx.Err(err))
		} else {
			a.notif.SetPublisher(pub)
			a.log.Info("publisher replaced", logx.String("driver", pub.Name()))
		}
	}

	if changed("pages") {
		a.applyPages(ctx, newCfg)
	}

	for _, s := range restartOnly {
		if changed(s) {
			a.log.Warn("config section changed; restart required for it to take effect", logx.String("section", s))
		}
	}

	eventbus.Emit(a.bus, eventbus.ConfigReloaded, sections)
	fields := append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, attrs...)
	a.log.Info("config reloaded", fields...)
	sdnotify.Ready(a.log, "watching "+a.wiki)
}

// applyPages swaps the page source and schedule, then refreshes once so a
// new list takes effect without waiting for the next tick.
func (a *App) applyPages(ctx context.Context, cfg *config.Config) {
	src, err := pages.NewSource(mapSourceConfig(cfg), a.api)
	if err != nil {
		a.log.Warn("invalid pages config; keeping previous", logx.Err(err))
		return
	}
	ropts, err := mapRefresherOptions(cfg)
	if err != nil {
		a.log.Warn("invalid pages config; keeping previous", logx.Err(err))
		return
	}
	if err := a.refresher.Apply(src, ropts.Schedule); err != nil {
		a.log.Warn("invalid pages schedule; keeping previous", logx.Err(err))
		return
	}
	if _, err := a.refresher.Load(ctx); err != nil {
		a.log.Warn("page list reload failed; keeping previous list", logx.Err(err))
	}
}
