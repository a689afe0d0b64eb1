// Package flash guards the flash commit: once authorized, indicator
// traffic and user inputs are frozen so nothing competes with the write.
package flash

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/led"
)

// State is the guard's position in UNLOCKED → LOCKED_PENDING →
// {LOCKED_COMMITTED | LOCKED_DISCONNECTED | UNLOCKED}.
type State string

const (
	StateUnlocked           State = "unlocked"
	StateLockedPending      State = "locked_pending"
	StateLockedCommitted    State = "locked_committed"
	StateLockedDisconnected State = "locked_disconnected"
)

// Locked reports whether the lock is held in this state.
func (s State) Locked() bool {
	return s != StateUnlocked
}

// User-facing messages.
const (
	MsgAuthorizing  = "AUTHORIZING NAND WRITE... DO NOT POWER OFF."
	MsgCommitted    = "OK. NAND WRITE STARTED. AUTO-REBOOT IN ~90 SECONDS."
	MsgRejected     = "NAND WRITE REJECTED: HW LOCK"
	MsgDisconnected = "WAIT FOR REBOOT: SYSTEM DISCONNECTED (OVERWRITING...)."
)

// ErrAlreadyLocked is returned by Authorize while a previous authorization
// holds the lock.
var ErrAlreadyLocked = errors.New("flash already authorized")

var flashAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "failsafe",
	Subsystem: "flash",
	Name:      "attempts_total",
	Help:      "Flash authorizations by outcome",
}, []string{"outcome"})

// Committer asks the device to start writing the uploaded image.
type Committer interface {
	DoFlash(ctx context.Context) error
}

// Indicators is the part of the sequencer the guard drives.
type Indicators interface {
	Stop()
	Drive(on, bypassLock bool)
}

// Inputs toggles the user's ability to change anything.
type Inputs interface {
	SetInputsEnabled(enabled bool)
}

// Message is a status line for the user.
type Message struct {
	Text       string
	Error      bool
	Persistent bool
}

// Notifier surfaces messages.
type Notifier interface {
	Notify(Message)
}

// Transition describes one state change, for observers.
type Transition struct {
	AttemptID string
	State     State
	Token     string
}

// Guard owns the flash authorization sequence.
type Guard struct {
	mu         sync.Mutex
	lock       *led.Lock
	indicators Indicators
	committer  Committer
	inputs     Inputs
	notifier   Notifier
	observers  []func(Transition)
	state      State
	attemptID  string
	logger     *slog.Logger
}

// Option configures a Guard.
type Option func(*Guard)

// WithInputs sets the inputs the guard disables while locked.
func WithInputs(inputs Inputs) Option {
	return func(g *Guard) { g.inputs = inputs }
}

// WithNotifier sets where user messages go.
func WithNotifier(n Notifier) Option {
	return func(g *Guard) { g.notifier = n }
}

// WithLogger sets the guard's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Guard) { g.logger = logger }
}

// WithObserver registers fn for state transitions.
func WithObserver(fn func(Transition)) Option {
	return func(g *Guard) { g.observers = append(g.observers, fn) }
}

// NewGuard creates an unlocked guard.
func NewGuard(lock *led.Lock, indicators Indicators, committer Committer, opts ...Option) *Guard {
	g := &Guard{
		lock:       lock,
		indicators: indicators,
		committer:  committer,
		state:      StateUnlocked,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// State returns the current guard state.
func (g *Guard) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// AttemptID returns the id of the latest authorization, empty before any.
func (g *Guard) AttemptID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attemptID
}

// Authorize engages the lock, stops the marquee, lights every indicator
// through the bypass path, disables inputs and asks the device to commit.
//
// commit_accepted keeps the lock for good. Any other answer releases it,
// re-enables inputs and returns the *device.RejectedError. A transport
// failure keeps the lock and returns StateLockedDisconnected with a nil
// error: the device is assumed to be rebooting mid-write.
//
// The device call ignores cancellation of ctx; it is bounded by the
// committer's own timeout. Calling Authorize while the lock is held is a
// no-op returning ErrAlreadyLocked.
func (g *Guard) Authorize(ctx context.Context) (State, error) {
	g.mu.Lock()
	if !g.lock.Engage() {
		state := g.state
		g.mu.Unlock()
		return state, ErrAlreadyLocked
	}
	id := uuid.NewString()
	g.attemptID = id
	g.setStateLocked(StateLockedPending, "")
	g.mu.Unlock()

	logger := g.logger.With("attempt_id", id)

	// The lock is already engaged, so any tick still in flight is dropped
	// and only the bypass override reaches the board.
	g.indicators.Stop()
	g.indicators.Drive(true, true)
	g.setInputs(false)
	g.notify(Message{Text: MsgAuthorizing})
	logger.Info("Authorizing flash write")

	// The commit outlives the caller: a client hanging up must not turn
	// into a request that was never sent but still holds the lock.
	err := g.committer.DoFlash(context.WithoutCancel(ctx))

	g.mu.Lock()
	defer g.mu.Unlock()

	var rejected *device.RejectedError
	switch {
	case err == nil:
		g.setStateLocked(StateLockedCommitted, device.TokenCommitAccepted)
		flashAttempts.WithLabelValues("committed").Inc()
		g.notify(Message{Text: MsgCommitted, Persistent: true})
		logger.Info("Flash write accepted, device will reboot")
		return StateLockedCommitted, nil

	case errors.As(err, &rejected):
		g.lock.Release()
		g.setStateLocked(StateUnlocked, rejected.Token)
		flashAttempts.WithLabelValues("rejected").Inc()
		g.setInputs(true)
		g.notify(Message{Text: MsgRejected, Error: true})
		logger.Warn("Flash write rejected", "token", rejected.Token)
		return StateUnlocked, err

	default:
		g.setStateLocked(StateLockedDisconnected, "")
		flashAttempts.WithLabelValues("disconnected").Inc()
		g.notify(Message{Text: MsgDisconnected, Persistent: true})
		logger.Info("Device dropped off during flash commit, assuming write in progress", "error", err)
		return StateLockedDisconnected, nil
	}
}

// setStateLocked records a transition. Caller holds g.mu.
func (g *Guard) setStateLocked(state State, token string) {
	g.state = state
	t := Transition{AttemptID: g.attemptID, State: state, Token: token}
	for _, fn := range g.observers {
		fn(t)
	}
}

func (g *Guard) setInputs(enabled bool) {
	if g.inputs != nil {
		g.inputs.SetInputsEnabled(enabled)
	}
}

func (g *Guard) notify(m Message) {
	if g.notifier != nil {
		g.notifier.Notify(m)
	}
}
