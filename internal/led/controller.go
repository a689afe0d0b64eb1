package led

import "context"

// Controller pushes electrical levels to indicator GPIOs. Implementations
// receive wire values with the board's polarity already applied and never
// invert them again.
type Controller interface {
	// Set drives pin to wire (WireLow or WireHigh).
	Set(pin, wire int) error

	// Name identifies the backend in logs.
	Name() string
}

// Forcer is implemented by backends that may shed requests under load.
// SetForced is used for lock-bypassing requests and is never shed.
type Forcer interface {
	SetForced(pin, wire int) error
}

// Flusher is implemented by backends that send asynchronously. Flush
// returns once every accepted request has finished or ctx is done.
type Flusher interface {
	Flush(ctx context.Context) error
}
