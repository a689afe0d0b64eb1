package led

import "time"

// Electrical levels on the indicator GPIOs.
const (
	WireLow  = 0
	WireHigh = 1
)

// DefaultSpeed is the marquee period when none, or a non-positive one, is given.
const DefaultSpeed = 600 * time.Millisecond

var (
	// DefaultSequence is the board order PWR, NET, WIFI, SIGNAL2, SIGNAL1, 5G.
	DefaultSequence = []int{25, 24, 23, 12, 13, 10}

	// DefaultSuppressed lists pins forced off at startup and never animated
	// (the 4G indicator).
	DefaultSuppressed = []int{11}
)

// Request asks for one indicator to be lit or dark. BypassLock lets the
// flash guard light the board while the lock is engaged.
type Request struct {
	Pin        int
	On         bool
	BypassLock bool
}

// WireState maps a logical state to the active-low wire level: lit is
// driven low, dark is driven high.
func WireState(on bool) int {
	if on {
		return WireLow
	}
	return WireHigh
}
