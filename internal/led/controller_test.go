package led

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

// mockController records every Set call.
type mockController struct {
	mu       sync.Mutex
	setCalls []setCall
	err      error
}

type setCall struct {
	pin  int
	wire int
}

func (m *mockController) Set(pin, wire int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls = append(m.setCalls, setCall{pin, wire})
	return m.err
}

func (m *mockController) Name() string { return "mock" }

func (m *mockController) calls() []setCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]setCall, len(m.setCalls))
	copy(out, m.setCalls)
	return out
}

func (m *mockController) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setCalls = nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestWireState(t *testing.T) {
	if got := WireState(true); got != WireLow {
		t.Errorf("WireState(true) = %d, want %d", got, WireLow)
	}
	if got := WireState(false); got != WireHigh {
		t.Errorf("WireState(false) = %d, want %d", got, WireHigh)
	}
}

func TestDispatcher_InvertsOnce(t *testing.T) {
	ctrl := &mockController{}
	d := NewDispatcher(ctrl, &Lock{}, testLogger())

	d.Dispatch(Request{Pin: 25, On: true})
	d.Dispatch(Request{Pin: 24, On: false})

	want := []setCall{{25, 0}, {24, 1}}
	got := ctrl.calls()
	if len(got) != len(want) {
		t.Fatalf("calls = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("call %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDispatcher_DropsWhileLocked(t *testing.T) {
	ctrl := &mockController{}
	lock := &Lock{}
	d := NewDispatcher(ctrl, lock, testLogger())

	lock.Engage()
	if d.Dispatch(Request{Pin: 25, On: true}) {
		t.Error("Dispatch() should report a drop while locked")
	}
	if !d.Dispatch(Request{Pin: 25, On: true, BypassLock: true}) {
		t.Error("Dispatch() with BypassLock should be sent while locked")
	}

	got := ctrl.calls()
	if len(got) != 1 || got[0] != (setCall{25, 0}) {
		t.Errorf("calls = %v, want only the bypass request", got)
	}
}

func TestDispatcher_BackendErrorIsNotFatal(t *testing.T) {
	ctrl := &mockController{err: errors.New("bus error")}
	d := NewDispatcher(ctrl, &Lock{}, testLogger())

	if !d.Dispatch(Request{Pin: 10}) {
		t.Error("Dispatch() should report the request as sent even when the backend fails")
	}
}

func TestLock_EngageOnce(t *testing.T) {
	var l Lock
	if !l.Engage() {
		t.Fatal("first Engage() should succeed")
	}
	if l.Engage() {
		t.Error("second Engage() should report already engaged")
	}
	l.Release()
	if l.Engaged() {
		t.Error("Release() should clear the lock")
	}
}

func TestNoopController(t *testing.T) {
	ctrl := newNoop(testLogger())
	if err := ctrl.Set(25, WireLow); err != nil {
		t.Errorf("Set() returned error: %v", err)
	}
	if ctrl.Name() != BackendNoop {
		t.Errorf("Name() = %q", ctrl.Name())
	}
}

func TestSysfsController_WritesValue(t *testing.T) {
	root := t.TempDir()
	pinDir := filepath.Join(root, "gpio25")
	if err := os.MkdirAll(pinDir, 0o755); err != nil {
		t.Fatal(err)
	}

	ctrl := newSysfs(root)
	if err := ctrl.Set(25, WireLow); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	value, err := os.ReadFile(filepath.Join(pinDir, "value"))
	if err != nil {
		t.Fatalf("read value: %v", err)
	}
	if string(value) != "0" {
		t.Errorf("value = %q, want 0", value)
	}
	direction, err := os.ReadFile(filepath.Join(pinDir, "direction"))
	if err != nil {
		t.Fatalf("read direction: %v", err)
	}
	if string(direction) != "high" {
		t.Errorf("direction = %q, want high", direction)
	}
}

func TestSysfsController_MissingPin(t *testing.T) {
	ctrl := newSysfs(t.TempDir())
	if err := ctrl.Set(99, WireHigh); err == nil {
		t.Error("Set() on a pin that cannot be exported should fail")
	}
}

type recordingSetter struct {
	mu    sync.Mutex
	calls []setCall
	done  chan struct{}
}

func (r *recordingSetter) SetLED(_ context.Context, pin, state int) error {
	r.mu.Lock()
	r.calls = append(r.calls, setCall{pin, state})
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func TestHTTPController_FireAndForget(t *testing.T) {
	setter := &recordingSetter{done: make(chan struct{}, 1)}
	ctrl := newHTTP(setter, testLogger())

	if err := ctrl.Set(13, WireHigh); err != nil {
		t.Fatalf("Set() error: %v", err)
	}

	select {
	case <-setter.done:
	case <-time.After(time.Second):
		t.Fatal("SetLED was not called")
	}

	setter.mu.Lock()
	defer setter.mu.Unlock()
	if len(setter.calls) != 1 || setter.calls[0] != (setCall{13, 1}) {
		t.Errorf("calls = %v", setter.calls)
	}
}

type blockingSetter struct {
	release chan struct{}
}

func (b *blockingSetter) SetLED(ctx context.Context, _, _ int) error {
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestHTTPController_Backpressure(t *testing.T) {
	setter := &blockingSetter{release: make(chan struct{})}
	defer close(setter.release)

	ctrl := newHTTP(setter, testLogger())
	for i := 0; i < defaultMaxInFlight; i++ {
		if err := ctrl.Set(i, WireHigh); err != nil {
			t.Fatalf("Set() %d error: %v", i, err)
		}
	}
	if err := ctrl.Set(0, WireHigh); !errors.Is(err, ErrBackpressure) {
		t.Errorf("Set() beyond window = %v, want ErrBackpressure", err)
	}
}

// stallingSetter records each call on entry, then blocks until released.
type stallingSetter struct {
	mu      sync.Mutex
	calls   []setCall
	release chan struct{}
}

func (s *stallingSetter) SetLED(ctx context.Context, pin, state int) error {
	s.mu.Lock()
	s.calls = append(s.calls, setCall{pin, state})
	s.mu.Unlock()
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func (s *stallingSetter) len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// countSince counts calls matching pin and state from index from on.
func (s *stallingSetter) countSince(from, pin, state int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls[from:] {
		if c == (setCall{pin, state}) {
			n++
		}
	}
	return n
}

func TestHTTPController_OverrideSurvivesSaturation(t *testing.T) {
	setter := &stallingSetter{release: make(chan struct{})}
	defer close(setter.release)

	ctrl := newHTTP(setter, testLogger())
	lock := &Lock{}
	seq := NewSequencer(NewDispatcher(ctrl, lock, testLogger()), DefaultSequence, WithLogger(testLogger()))
	defer seq.Close()

	if err := seq.SetMode(ModeLoop, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(ctrl.inFlight) < defaultMaxInFlight {
		if time.Now().After(deadline) {
			t.Fatal("marquee never filled the in-flight window")
		}
		time.Sleep(5 * time.Millisecond)
	}

	lock.Engage()
	seq.Stop()
	before := setter.len()
	seq.Drive(true, true)

	for _, pin := range DefaultSequence {
		deadline := time.Now().Add(time.Second)
		for setter.countSince(before, pin, WireLow) == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("override for pin %d never reached the device", pin)
			}
			time.Sleep(time.Millisecond)
		}
	}
}

func TestHTTPController_Flush(t *testing.T) {
	setter := &stallingSetter{release: make(chan struct{})}
	ctrl := newHTTP(setter, testLogger())

	if err := ctrl.Set(12, WireLow); err != nil {
		t.Fatal(err)
	}
	if err := ctrl.SetForced(13, WireLow); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := ctrl.Flush(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Flush() with stalled requests = %v, want deadline exceeded", err)
	}

	close(setter.release)
	if err := ctrl.Flush(context.Background()); err != nil {
		t.Errorf("Flush() = %v", err)
	}
	if len(ctrl.inFlight) != 0 {
		t.Errorf("in-flight slots held after flush: %d", len(ctrl.inFlight))
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		backend string
		device  Setter
		want    string
		wantErr bool
	}{
		{backend: "", device: &recordingSetter{}, want: BackendHTTP},
		{backend: "http", wantErr: true},
		{backend: "sysfs", want: BackendSysfs},
		{backend: "NOOP", want: BackendNoop},
		{backend: "serial", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.backend, func(t *testing.T) {
			ctrl, err := New(tt.backend, tt.device, t.TempDir(), testLogger())
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if ctrl.Name() != tt.want {
				t.Errorf("Name() = %q, want %q", ctrl.Name(), tt.want)
			}
		})
	}
}

func TestDetectBoard(t *testing.T) {
	if model := detectBoard(); model == "" {
		t.Error("detectBoard() returned empty string")
	}
}

func TestDispatcher_RequestResults(t *testing.T) {
	count := func(result string) float64 {
		return testutil.ToFloat64(ledRequests.WithLabelValues(result))
	}
	queued, rejected, dropped := count("queued"), count("rejected"), count("dropped")

	ctrl := &mockController{}
	lock := &Lock{}
	d := NewDispatcher(ctrl, lock, testLogger())
	d.Dispatch(Request{Pin: 10, On: true})

	ctrl.err = ErrBackpressure
	d.Dispatch(Request{Pin: 10, On: true})

	lock.Engage()
	d.Dispatch(Request{Pin: 10, On: true})

	if got := count("queued") - queued; got != 1 {
		t.Errorf("queued delta = %v, want 1", got)
	}
	if got := count("rejected") - rejected; got != 1 {
		t.Errorf("rejected delta = %v, want 1", got)
	}
	if got := count("dropped") - dropped; got != 1 {
		t.Errorf("dropped delta = %v, want 1", got)
	}
}
