package led

import (
	"context"
	"log/slog"
)

// Dispatcher is the one place a Request becomes a wire value. It owns the
// lock check so no caller can skip it.
type Dispatcher struct {
	controller Controller
	lock       *Lock
	logger     *slog.Logger
}

// NewDispatcher creates a Dispatcher sending through controller and
// honoring lock.
func NewDispatcher(controller Controller, lock *Lock, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{controller: controller, lock: lock, logger: logger}
}

// Dispatch sends req. It reports false when the request was dropped
// because the lock is engaged. Backend failures are logged and counted
// but never returned: indicator traffic is best effort. Bypass requests
// go through the backend's Forcer when it has one.
func (d *Dispatcher) Dispatch(req Request) bool {
	if d.lock.Engaged() && !req.BypassLock {
		ledRequests.WithLabelValues("dropped").Inc()
		return false
	}

	wire := WireState(req.On)
	set := d.controller.Set
	if f, ok := d.controller.(Forcer); ok && req.BypassLock {
		set = f.SetForced
	}
	if err := set(req.Pin, wire); err != nil {
		ledRequests.WithLabelValues("rejected").Inc()
		d.logger.Warn("Indicator request failed",
			"backend", d.controller.Name(),
			"pin", req.Pin,
			"wire", wire,
			"error", err)
		return true
	}
	ledRequests.WithLabelValues("queued").Inc()
	return true
}

// Lock returns the lock this dispatcher honors.
func (d *Dispatcher) Lock() *Lock {
	return d.lock
}

// Flush waits for requests an asynchronous backend has not finished yet.
func (d *Dispatcher) Flush(ctx context.Context) error {
	if f, ok := d.controller.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}
