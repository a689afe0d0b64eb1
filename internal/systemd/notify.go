// Package systemd reports service readiness and liveness to the service
// manager. Every call is a no-op when not started by systemd.
package systemd

import (
	"context"
	"log/slog"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
)

// Ready tells systemd that startup finished. It reports whether the
// notification was delivered.
func Ready(logger *slog.Logger) bool {
	return notify(logger, daemon.SdNotifyReady)
}

// Stopping tells systemd that shutdown began.
func Stopping(logger *slog.Logger) bool {
	return notify(logger, daemon.SdNotifyStopping)
}

// Status publishes a free-form status line shown by systemctl status.
func Status(logger *slog.Logger, text string) bool {
	return notify(logger, "STATUS="+text)
}

// Watchdog pings the systemd watchdog at half the configured interval
// until ctx is done. It returns immediately when the watchdog is off.
func Watchdog(ctx context.Context, logger *slog.Logger) {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		logger.Warn("Failed to read watchdog settings", "error", err)
		return
	}
	if interval == 0 {
		return
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()
	logger.Debug("Systemd watchdog enabled", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			notify(logger, daemon.SdNotifyWatchdog)
		}
	}
}

func notify(logger *slog.Logger, state string) bool {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		logger.Warn("Failed to notify systemd", "state", state, "error", err)
		return false
	}
	return sent
}
