// Package sdnotify reports service state to systemd (Type=notify units).
// Outside systemd every call is a no-op.
package sdnotify

import (
	"context"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	logx "revertbot/pkg/logx"
)

// Ready tells systemd startup is complete. status, when set, is shown by
// systemctl status.
func Ready(log logx.Logger, status string) bool {
	state := daemon.SdNotifyReady
	if status != "" {
		state += "\nSTATUS=" + status
	}
	return notify(log, state)
}

func Reloading(log logx.Logger) bool { return notify(log, daemon.SdNotifyReloading) }

func Stopping(log logx.Logger) bool { return notify(log, daemon.SdNotifyStopping) }

func Status(log logx.Logger, status string) bool { return notify(log, "STATUS="+status) }

func notify(log logx.Logger, state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
	}
	return sent
}

// Watchdog pings the systemd watchdog at half its interval until ctx is done.
// healthy, when non-nil, is consulted before every ping; a failing check
// skips the ping so systemd restarts a wedged process. It returns
// immediately when no watchdog is configured.
func Watchdog(ctx context.Context, log logx.Logger, healthy func() error) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		log.Warn("watchdog config invalid", logx.Err(err))
		return
	}
	if interval <= 0 {
		return
	}
	every := interval / 2
	log.Info("watchdog enabled", logx.Duration("interval", interval))

	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if healthy != nil {
				if err := healthy(); err != nil {
					log.Warn("watchdog ping skipped", logx.Err(err))
					continue
				}
			}
			notify(log, daemon.SdNotifyWatchdog)
		}
	}
}
