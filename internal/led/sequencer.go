package led

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Mode selects the marquee pattern.
type Mode string

// Marquee modes.
const (
	ModeStop  Mode = "stop"
	ModeAllOn Mode = "allon"
	ModeLoop  Mode = "loop"
	ModeDown  Mode = "down"
	ModeUp    Mode = "up"
	ModeBlink Mode = "blink"
)

// Modes lists every accepted mode.
var Modes = []Mode{ModeStop, ModeAllOn, ModeLoop, ModeDown, ModeUp, ModeBlink}

var (
	ErrUnknownMode = errors.New("unknown marquee mode")
	ErrLocked      = errors.New("indicators locked for flash write")
	ErrClosed      = errors.New("sequencer closed")
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	m := Mode(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Modes, m) {
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
	return m, nil
}

// Animated reports whether the mode needs a timer.
func (m Mode) Animated() bool {
	return m == ModeLoop || m == ModeDown || m == ModeUp || m == ModeBlink
}

// ParseSpeed reads a period in milliseconds the way a form field would be
// read: leading integer digits count, anything else or a non-positive
// value yields DefaultSpeed.
func ParseSpeed(s string) time.Duration {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	ms, err := strconv.Atoi(s[:end])
	if err != nil || ms <= 0 {
		return DefaultSpeed
	}
	return time.Duration(ms) * time.Millisecond
}

// ActivePins returns the pins lit at the given step. loop and down chase
// forward, up chases backward, blink alternates all and none.
func ActivePins(mode Mode, step int, pins []int) []int {
	n := len(pins)
	if n == 0 || step < 0 {
		return nil
	}
	switch mode {
	case ModeLoop, ModeDown:
		return []int{pins[step%n]}
	case ModeUp:
		return []int{pins[n-1-step%n]}
	case ModeBlink:
		if step%2 == 0 {
			return slices.Clone(pins)
		}
		return nil
	case ModeAllOn:
		return slices.Clone(pins)
	default:
		return nil
	}
}

// Frame is the visual state after one update: which pins are lit.
type Frame struct {
	Mode   Mode  `json:"mode"`
	Step   int   `json:"step"`
	Active []int `json:"active"`
}

// Status is a snapshot of the sequencer.
type Status struct {
	Mode     Mode          `json:"mode"`
	Speed    time.Duration `json:"speed"`
	Running  bool          `json:"running"`
	Sequence []int         `json:"sequence"`
}

// run is one active marquee timer.
type run struct {
	stop chan struct{}
	done chan struct{}
}

// Sequencer drives the marquee. At most one timer is alive at a time:
// SetMode and Stop wait for the previous timer goroutine to exit before
// returning, so no request from an old mode is issued afterwards.
type Sequencer struct {
	mu         sync.Mutex
	dispatcher *Dispatcher
	pins       []int
	mode       Mode
	speed      time.Duration
	current    *run
	closed     bool
	logger     *slog.Logger

	obsMu     sync.RWMutex
	observers []func(Frame)
}

// SequencerOption configures a Sequencer.
type SequencerOption func(*Sequencer)

// WithLogger sets the sequencer's logger.
func WithLogger(logger *slog.Logger) SequencerOption {
	return func(s *Sequencer) {
		s.logger = logger
	}
}

// WithFrameObserver registers fn to receive every frame. Observers run on
// the timer goroutine and must not call back into the Sequencer.
func WithFrameObserver(fn func(Frame)) SequencerOption {
	return func(s *Sequencer) {
		s.observers = append(s.observers, fn)
	}
}

// NewSequencer creates a stopped sequencer over pins (DefaultSequence if empty).
func NewSequencer(dispatcher *Dispatcher, pins []int, opts ...SequencerOption) *Sequencer {
	if len(pins) == 0 {
		pins = DefaultSequence
	}
	s := &Sequencer{
		dispatcher: dispatcher,
		pins:       slices.Clone(pins),
		mode:       ModeStop,
		speed:      DefaultSpeed,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnFrame registers an observer after construction. It returns a function
// removing it.
func (s *Sequencer) OnFrame(fn func(Frame)) func() {
	s.obsMu.Lock()
	s.observers = append(s.observers, fn)
	idx := len(s.observers) - 1
	s.obsMu.Unlock()

	return func() {
		s.obsMu.Lock()
		defer s.obsMu.Unlock()
		if idx < len(s.observers) {
			s.observers[idx] = nil
		}
	}
}

// SetMode switches the marquee. The running timer is cancelled, the step
// counter resets, every pin is driven dark, then stop leaves it dark,
// allon lights everything, and animated modes start a timer at speed
// (DefaultSpeed when speed <= 0).
func (s *Sequencer) SetMode(mode Mode, speed time.Duration) error {
	if !slices.Contains(Modes, mode) {
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}
	if speed <= 0 {
		speed = DefaultSpeed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if s.dispatcher.Lock().Engaged() {
		return ErrLocked
	}

	s.cancelLocked()
	s.mode = mode
	s.speed = speed
	pins := slices.Clone(s.pins)

	for _, p := range pins {
		s.dispatcher.Dispatch(Request{Pin: p, On: false})
	}

	switch mode {
	case ModeStop:
		s.publish(Frame{Mode: mode})
		s.logger.Debug("Marquee stopped")
		return nil
	case ModeAllOn:
		for _, p := range pins {
			s.dispatcher.Dispatch(Request{Pin: p, On: true})
		}
		s.publish(Frame{Mode: mode, Active: pins})
		s.logger.Debug("All indicators on")
		return nil
	}

	r := &run{stop: make(chan struct{}), done: make(chan struct{})}
	s.current = r
	go s.loop(r, mode, pins, speed)

	s.logger.Debug("Marquee started", "mode", mode, "speed", speed)
	return nil
}

// Stop cancels the running timer without sending any request.
func (s *Sequencer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.mode = ModeStop
}

// Close stops the timer and rejects further mode changes.
func (s *Sequencer) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelLocked()
	s.closed = true
}

// Suppress drives pins dark. Used at startup for indicators that are
// never animated.
func (s *Sequencer) Suppress(pins []int) {
	for _, p := range pins {
		s.dispatcher.Dispatch(Request{Pin: p, On: false})
	}
}

// Drive sends one request per sequence pin with the given state. The flash
// guard calls it with bypassLock to light the board while locked.
func (s *Sequencer) Drive(on, bypassLock bool) {
	s.mu.Lock()
	pins := slices.Clone(s.pins)
	s.mu.Unlock()

	for _, p := range pins {
		s.dispatcher.Dispatch(Request{Pin: p, On: on, BypassLock: bypassLock})
	}
	frame := Frame{Mode: ModeStop}
	if on {
		frame = Frame{Mode: ModeAllOn, Active: pins}
	}
	s.publish(frame)
}

// Flush waits until the backend has finished every request sent so far.
func (s *Sequencer) Flush(ctx context.Context) error {
	return s.dispatcher.Flush(ctx)
}

// SetSequence replaces the pin order. It takes effect on the next SetMode.
func (s *Sequencer) SetSequence(pins []int) error {
	if err := ValidateSequence(pins); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pins = slices.Clone(pins)
	return nil
}

// ValidateSequence rejects empty, negative or repeated pin lists.
func ValidateSequence(pins []int) error {
	if len(pins) == 0 {
		return errors.New("sequence must name at least one pin")
	}
	seen := make(map[int]bool, len(pins))
	for _, p := range pins {
		if p < 0 {
			return fmt.Errorf("invalid pin %d", p)
		}
		if seen[p] {
			return fmt.Errorf("pin %d listed twice", p)
		}
		seen[p] = true
	}
	return nil
}

// ParseSequence reads a comma separated pin list such as "25,24,23".
func ParseSequence(s string) ([]int, error) {
	var pins []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pin, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid pin %q", part)
		}
		pins = append(pins, pin)
	}
	if err := ValidateSequence(pins); err != nil {
		return nil, err
	}
	return pins, nil
}

// Status returns the current mode, speed and sequence.
func (s *Sequencer) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Mode:     s.mode,
		Speed:    s.speed,
		Running:  s.current != nil,
		Sequence: slices.Clone(s.pins),
	}
}

// cancelLocked stops the active timer and waits for its goroutine.
// Caller holds s.mu; the timer goroutine never takes it.
func (s *Sequencer) cancelLocked() {
	if s.current == nil {
		return
	}
	close(s.current.stop)
	<-s.current.done
	s.current = nil
}

func (s *Sequencer) loop(r *run, mode Mode, pins []int, speed time.Duration) {
	defer close(r.done)

	ticker := time.NewTicker(speed)
	defer ticker.Stop()

	for step := 0; ; step++ {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
		}
		// A tick and a cancel can be ready together; cancel wins.
		select {
		case <-r.stop:
			return
		default:
		}

		active := ActivePins(mode, step, pins)
		for _, p := range pins {
			s.dispatcher.Dispatch(Request{Pin: p, On: slices.Contains(active, p)})
		}
		s.publish(Frame{Mode: mode, Step: step, Active: active})
		ledTicks.Inc()
	}
}

func (s *Sequencer) publish(f Frame) {
	s.obsMu.RLock()
	observers := slices.Clone(s.observers)
	s.obsMu.RUnlock()

	for _, fn := range observers {
		if fn != nil {
			fn(f)
		}
	}
}
