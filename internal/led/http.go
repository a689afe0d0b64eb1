package led

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultRequestTimeout = 10 * time.Second
	defaultMaxInFlight    = 32
)

// ErrBackpressure is returned when too many indicator requests are in flight.
var ErrBackpressure = errors.New("too many indicator requests in flight")

// Setter is the device call the HTTP backend needs.
type Setter interface {
	SetLED(ctx context.Context, pin, state int) error
}

// httpController posts /setled without waiting for the answer. Results
// only feed the log and the failed counter.
type httpController struct {
	device   Setter
	timeout  time.Duration
	inFlight chan struct{}
	pending  sync.WaitGroup
	logger   *slog.Logger
}

func newHTTP(device Setter, logger *slog.Logger) *httpController {
	return &httpController{
		device:   device,
		timeout:  defaultRequestTimeout,
		inFlight: make(chan struct{}, defaultMaxInFlight),
		logger:   logger,
	}
}

// Set queues the request and returns immediately. It only fails when the
// in-flight window is full, so a hung device cannot pile up goroutines.
func (h *httpController) Set(pin, wire int) error {
	select {
	case h.inFlight <- struct{}{}:
	default:
		return ErrBackpressure
	}
	h.send(pin, wire, func() { <-h.inFlight })
	return nil
}

// SetForced queues the request outside the in-flight window. Only the
// flash override uses it, once per pin, so it stays bounded.
func (h *httpController) SetForced(pin, wire int) error {
	h.send(pin, wire, func() {})
	return nil
}

// Flush waits for every queued request.
func (h *httpController) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.pending.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *httpController) send(pin, wire int, release func()) {
	h.pending.Add(1)
	go func() {
		defer h.pending.Done()
		defer release()

		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.device.SetLED(ctx, pin, wire); err != nil {
			ledRequests.WithLabelValues("failed").Inc()
			h.logger.Debug("setled failed", "pin", pin, "wire", wire, "error", err)
		}
	}()
}

func (h *httpController) Name() string { return "http" }
