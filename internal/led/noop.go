package led

import "log/slog"

// noop implements Controller for hosts without indicator access.
type noop struct {
	logger *slog.Logger
}

func newNoop(logger *slog.Logger) *noop {
	return &noop{logger: logger}
}

// Set logs the request and does nothing else.
func (n *noop) Set(pin, wire int) error {
	n.logger.Debug("Indicator control not available (no-op)", "pin", pin, "wire", wire)
	return nil
}

func (n *noop) Name() string { return "noop" }
