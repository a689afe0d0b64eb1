package flash

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/led"
)

type mockController struct {
	mu    sync.Mutex
	calls [][2]int
}

func (m *mockController) Set(pin, wire int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, [2]int{pin, wire})
	return nil
}

func (m *mockController) Name() string { return "mock" }

func (m *mockController) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

func (m *mockController) last(n int) [][2]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if n > len(m.calls) {
		n = len(m.calls)
	}
	return append([][2]int(nil), m.calls[len(m.calls)-n:]...)
}

type fakeCommitter struct {
	err   error
	calls int
	// seen captures the lock as the device saw it during the call.
	lock       *led.Lock
	lockedSeen bool
}

func (f *fakeCommitter) DoFlash(ctx context.Context) error {
	f.calls++
	if err := ctx.Err(); err != nil {
		return &device.TransportError{Endpoint: "/doflash", Cause: err}
	}
	if f.lock != nil {
		f.lockedSeen = f.lock.Engaged()
	}
	return f.err
}

type recordingInputs struct {
	mu      sync.Mutex
	history []bool
}

func (r *recordingInputs) SetInputsEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, enabled)
}

type recordingNotifier struct {
	messages []Message
}

func (r *recordingNotifier) Notify(m Message) {
	r.messages = append(r.messages, m)
}

type fixture struct {
	guard     *Guard
	seq       *led.Sequencer
	ctrl      *mockController
	lock      *led.Lock
	committer *fakeCommitter
	inputs    *recordingInputs
	notifier  *recordingNotifier
	states    []State
}

func newFixture(t *testing.T, doflashErr error) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	f := &fixture{
		ctrl:     &mockController{},
		lock:     &led.Lock{},
		inputs:   &recordingInputs{},
		notifier: &recordingNotifier{},
	}
	f.committer = &fakeCommitter{err: doflashErr, lock: f.lock}
	f.seq = led.NewSequencer(led.NewDispatcher(f.ctrl, f.lock, logger), led.DefaultSequence, led.WithLogger(logger))
	t.Cleanup(f.seq.Close)

	f.guard = NewGuard(f.lock, f.seq, f.committer,
		WithInputs(f.inputs),
		WithNotifier(f.notifier),
		WithLogger(logger),
		WithObserver(func(tr Transition) { f.states = append(f.states, tr.State) }),
	)
	return f
}

func TestAuthorize_Committed(t *testing.T) {
	f := newFixture(t, nil)
	if err := f.seq.SetMode(led.ModeLoop, 2*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	time.Sleep(10 * time.Millisecond)

	state, err := f.guard.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() error: %v", err)
	}
	if state != StateLockedCommitted || f.guard.State() != StateLockedCommitted {
		t.Errorf("state = %s, want %s", state, StateLockedCommitted)
	}
	if !f.lock.Engaged() {
		t.Error("lock should stay engaged after commit")
	}
	if !f.committer.lockedSeen {
		t.Error("lock should be engaged while /doflash is in flight")
	}
	if f.seq.Status().Running {
		t.Error("marquee timer should be stopped")
	}

	// Once the lock is engaged only the override reaches the board, so it
	// is the tail of the request log.
	override := f.ctrl.last(len(led.DefaultSequence))
	if len(override) != len(led.DefaultSequence) {
		t.Fatalf("override requests = %v", override)
	}
	for i, c := range override {
		if c[0] != led.DefaultSequence[i] || c[1] != led.WireLow {
			t.Errorf("override %d = %v, want pin %d on", i, c, led.DefaultSequence[i])
		}
	}

	if len(f.inputs.history) != 1 || f.inputs.history[0] {
		t.Errorf("inputs history = %v, want [false]", f.inputs.history)
	}
	last := f.notifier.messages[len(f.notifier.messages)-1]
	if last.Text != MsgCommitted || !last.Persistent || last.Error {
		t.Errorf("last message = %+v", last)
	}
	wantStates := []State{StateLockedPending, StateLockedCommitted}
	if len(f.states) != 2 || f.states[0] != wantStates[0] || f.states[1] != wantStates[1] {
		t.Errorf("transitions = %v, want %v", f.states, wantStates)
	}
}

func TestAuthorize_CommittedSilencesIndicators(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.guard.Authorize(context.Background()); err != nil {
		t.Fatal(err)
	}
	after := f.ctrl.count()

	if err := f.seq.SetMode(led.ModeLoop, 2*time.Millisecond); !errors.Is(err, led.ErrLocked) {
		t.Errorf("SetMode() after commit = %v, want ErrLocked", err)
	}
	if _, err := f.guard.Authorize(context.Background()); !errors.Is(err, ErrAlreadyLocked) {
		t.Errorf("second Authorize() = %v, want ErrAlreadyLocked", err)
	}
	f.seq.Suppress([]int{11})
	f.seq.Drive(false, false)

	time.Sleep(20 * time.Millisecond)
	if got := f.ctrl.count(); got != after {
		t.Errorf("indicator requests after commit: %d -> %d", after, got)
	}
	if f.committer.calls != 1 {
		t.Errorf("/doflash called %d times, want 1", f.committer.calls)
	}
}

func TestAuthorize_Rejected(t *testing.T) {
	f := newFixture(t, &device.RejectedError{Endpoint: "/doflash", Token: "locked"})

	state, err := f.guard.Authorize(context.Background())
	if !device.IsRejected(err) {
		t.Fatalf("Authorize() error = %v, want rejected", err)
	}
	if state != StateUnlocked {
		t.Errorf("state = %s, want unlocked", state)
	}
	if f.lock.Engaged() {
		t.Error("lock should be released after rejection")
	}
	if len(f.inputs.history) != 2 || f.inputs.history[0] || !f.inputs.history[1] {
		t.Errorf("inputs history = %v, want [false true]", f.inputs.history)
	}
	last := f.notifier.messages[len(f.notifier.messages)-1]
	if last.Text != MsgRejected || !last.Error {
		t.Errorf("last message = %+v", last)
	}

	// The marquee resumes after a rejection.
	before := f.ctrl.count()
	if err := f.seq.SetMode(led.ModeLoop, 2*time.Millisecond); err != nil {
		t.Fatalf("SetMode() after rejection: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for f.ctrl.count() < before+2*len(led.DefaultSequence) {
		if time.Now().After(deadline) {
			t.Fatal("marquee did not resume sending requests")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestAuthorize_Disconnected(t *testing.T) {
	f := newFixture(t, &device.TransportError{Endpoint: "/doflash", Cause: errors.New("connection reset")})

	state, err := f.guard.Authorize(context.Background())
	if err != nil {
		t.Fatalf("Authorize() error = %v, want nil for a dropped connection", err)
	}
	if state != StateLockedDisconnected {
		t.Errorf("state = %s, want %s", state, StateLockedDisconnected)
	}
	if !f.lock.Engaged() {
		t.Error("lock should stay engaged after a disconnect")
	}
	if len(f.inputs.history) != 1 {
		t.Errorf("inputs should stay disabled, history = %v", f.inputs.history)
	}
	last := f.notifier.messages[len(f.notifier.messages)-1]
	if last.Text != MsgDisconnected || last.Error {
		t.Errorf("last message = %+v", last)
	}
}

func TestAuthorize_AttemptIDs(t *testing.T) {
	f := newFixture(t, &device.RejectedError{Endpoint: "/doflash", Token: "busy"})

	_, _ = f.guard.Authorize(context.Background())
	first := f.guard.AttemptID()
	_, _ = f.guard.Authorize(context.Background())
	second := f.guard.AttemptID()

	if first == "" || second == "" || first == second {
		t.Errorf("attempt ids = %q, %q; want two distinct ids", first, second)
	}
}

func TestState_Locked(t *testing.T) {
	if StateUnlocked.Locked() {
		t.Error("unlocked should not report locked")
	}
	for _, s := range []State{StateLockedPending, StateLockedCommitted, StateLockedDisconnected} {
		if !s.Locked() {
			t.Errorf("%s should report locked", s)
		}
	}
}

func TestAuthorize_CancelledCallerStillCommits(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	state, err := f.guard.Authorize(ctx)
	if err != nil || state != StateLockedCommitted {
		t.Fatalf("Authorize() = %v, %v; want committed", state, err)
	}
	if f.committer.calls != 1 {
		t.Errorf("DoFlash calls = %d, want 1", f.committer.calls)
	}
}

func TestAuthorize_CancelledCallerRejectedByDevice(t *testing.T) {
	var hits int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/doflash" {
			http.NotFound(w, r)
			return
		}
		mu.Lock()
		hits++
		mu.Unlock()
		_, _ = io.WriteString(w, "locked")
	}))
	defer srv.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	client, err := device.New(device.Config{BaseURL: srv.URL, Timeout: time.Second}, logger)
	if err != nil {
		t.Fatal(err)
	}
	lock := &led.Lock{}
	seq := led.NewSequencer(led.NewDispatcher(&mockController{}, lock, logger), led.DefaultSequence, led.WithLogger(logger))
	defer seq.Close()
	guard := NewGuard(lock, seq, client, WithLogger(logger))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	state, err := guard.Authorize(ctx)
	if !device.IsRejected(err) || state != StateUnlocked {
		t.Fatalf("Authorize() = %v, %v; want unlocked with rejection", state, err)
	}
	mu.Lock()
	got := hits
	mu.Unlock()
	if got != 1 {
		t.Errorf("/doflash hits = %d, want 1", got)
	}
	if lock.Engaged() {
		t.Error("lock still engaged after rejection")
	}

	// A retry is a fresh attempt, not ErrAlreadyLocked.
	if _, err := guard.Authorize(context.Background()); errors.Is(err, ErrAlreadyLocked) {
		t.Error("retry after rejection hit ErrAlreadyLocked")
	}
}
