package led

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

func newTestSequencer(t *testing.T, opts ...SequencerOption) (*Sequencer, *mockController, *Lock) {
	t.Helper()
	ctrl := &mockController{}
	lock := &Lock{}
	opts = append([]SequencerOption{WithLogger(testLogger())}, opts...)
	seq := NewSequencer(NewDispatcher(ctrl, lock, testLogger()), DefaultSequence, opts...)
	t.Cleanup(seq.Close)
	return seq, ctrl, lock
}

func waitForCalls(t *testing.T, ctrl *mockController, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for len(ctrl.calls()) < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d calls, have %d", n, len(ctrl.calls()))
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestActivePins(t *testing.T) {
	pins := []int{25, 24, 23, 12, 13, 10}

	tests := []struct {
		name string
		mode Mode
		step int
		want []int
	}{
		{"loop tick 0", ModeLoop, 0, []int{25}},
		{"loop tick 7 wraps", ModeLoop, 7, []int{24}},
		{"down matches loop", ModeDown, 3, []int{12}},
		{"up tick 0", ModeUp, 0, []int{10}},
		{"up tick 1", ModeUp, 1, []int{13}},
		{"up tick 5", ModeUp, 5, []int{25}},
		{"up tick 6 wraps", ModeUp, 6, []int{10}},
		{"blink even", ModeBlink, 4, pins},
		{"blink odd", ModeBlink, 3, nil},
		{"stop", ModeStop, 2, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ActivePins(tt.mode, tt.step, pins)
			if !slices.Equal(got, tt.want) {
				t.Errorf("ActivePins(%s, %d) = %v, want %v", tt.mode, tt.step, got, tt.want)
			}
		})
	}
}

func TestActivePins_AtMostOneForChase(t *testing.T) {
	for _, mode := range []Mode{ModeLoop, ModeDown, ModeUp} {
		for step := 0; step < 50; step++ {
			if got := ActivePins(mode, step, DefaultSequence); len(got) != 1 {
				t.Fatalf("%s step %d: %d active pins, want 1", mode, step, len(got))
			}
		}
	}
}

func TestParseSpeed(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"600", 600 * time.Millisecond},
		{"250", 250 * time.Millisecond},
		{" 120ms", 120 * time.Millisecond},
		{"", DefaultSpeed},
		{"fast", DefaultSpeed},
		{"0", DefaultSpeed},
		{"-50", DefaultSpeed},
	}
	for _, tt := range tests {
		if got := ParseSpeed(tt.in); got != tt.want {
			t.Errorf("ParseSpeed(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestParseMode(t *testing.T) {
	if m, err := ParseMode(" Loop "); err != nil || m != ModeLoop {
		t.Errorf("ParseMode(Loop) = %q, %v", m, err)
	}
	if _, err := ParseMode("rainbow"); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("ParseMode(rainbow) error = %v, want ErrUnknownMode", err)
	}
}

func TestSetMode_StopSendsOffOnce(t *testing.T) {
	seq, ctrl, _ := newTestSequencer(t)

	if err := seq.SetMode(ModeStop, 0); err != nil {
		t.Fatalf("SetMode(stop) error: %v", err)
	}

	calls := ctrl.calls()
	if len(calls) != len(DefaultSequence) {
		t.Fatalf("calls = %d, want %d", len(calls), len(DefaultSequence))
	}
	for i, c := range calls {
		if c.pin != DefaultSequence[i] || c.wire != WireHigh {
			t.Errorf("call %d = %v, want pin %d wire high", i, c, DefaultSequence[i])
		}
	}
	if seq.Status().Running {
		t.Error("stop should not start a timer")
	}
}

func TestSetMode_AllOnSendsOnOnce(t *testing.T) {
	seq, ctrl, _ := newTestSequencer(t)

	if err := seq.SetMode(ModeAllOn, 0); err != nil {
		t.Fatalf("SetMode(allon) error: %v", err)
	}

	calls := ctrl.calls()
	n := len(DefaultSequence)
	if len(calls) != 2*n {
		t.Fatalf("calls = %d, want %d (reset then on)", len(calls), 2*n)
	}
	for i, c := range calls[n:] {
		if c.pin != DefaultSequence[i] || c.wire != WireLow {
			t.Errorf("on call %d = %v, want pin %d wire low", i, c, DefaultSequence[i])
		}
	}

	time.Sleep(20 * time.Millisecond)
	if got := len(ctrl.calls()); got != 2*n {
		t.Errorf("allon kept sending requests: %d calls", got)
	}
	if seq.Status().Running {
		t.Error("allon should not start a timer")
	}
}

func TestSetMode_TicksSendOneRequestPerPin(t *testing.T) {
	seq, ctrl, _ := newTestSequencer(t)
	n := len(DefaultSequence)

	if err := seq.SetMode(ModeUp, 2*time.Millisecond); err != nil {
		t.Fatalf("SetMode(up) error: %v", err)
	}
	waitForCalls(t, ctrl, n+4*n)
	seq.Stop()

	calls := ctrl.calls()[n:]
	if len(calls)%n != 0 {
		t.Fatalf("tick requests = %d, not a multiple of %d", len(calls), n)
	}

	for step := 0; step*n < len(calls); step++ {
		block := calls[step*n : (step+1)*n]
		active := ActivePins(ModeUp, step, DefaultSequence)
		for i, c := range block {
			wantPin := DefaultSequence[i]
			wantWire := WireState(slices.Contains(active, wantPin))
			if c.pin != wantPin || c.wire != wantWire {
				t.Errorf("step %d call %d = %v, want pin %d wire %d", step, i, c, wantPin, wantWire)
			}
		}
	}
}

func TestSetMode_BlinkAlternates(t *testing.T) {
	var mu sync.Mutex
	var frames []Frame
	seq, ctrl, _ := newTestSequencer(t, WithFrameObserver(func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}))
	n := len(DefaultSequence)

	if err := seq.SetMode(ModeBlink, 2*time.Millisecond); err != nil {
		t.Fatalf("SetMode(blink) error: %v", err)
	}
	waitForCalls(t, ctrl, n+2*n)
	seq.Stop()

	calls := ctrl.calls()
	for i, c := range calls[n : 2*n] {
		if c.wire != WireLow {
			t.Errorf("tick 0 call %d wire = %d, want on", i, c.wire)
		}
	}
	for i, c := range calls[2*n : 3*n] {
		if c.wire != WireHigh {
			t.Errorf("tick 1 call %d wire = %d, want off", i, c.wire)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(frames) < 2 || len(frames[0].Active) != n || len(frames[1].Active) != 0 {
		t.Errorf("frames = %+v", frames)
	}
}

func TestSetMode_ReplacesTimer(t *testing.T) {
	seq, ctrl, _ := newTestSequencer(t)
	n := len(DefaultSequence)

	if err := seq.SetMode(ModeLoop, 2*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, ctrl, 3*n)

	if err := seq.SetMode(ModeStop, 0); err != nil {
		t.Fatal(err)
	}
	after := len(ctrl.calls())

	time.Sleep(30 * time.Millisecond)
	if got := len(ctrl.calls()); got != after {
		t.Errorf("requests continued after mode change: %d -> %d", after, got)
	}
}

func TestSetMode_TwiceLeavesOneTimer(t *testing.T) {
	var mu sync.Mutex
	modes := map[Mode]int{}
	seq, _, _ := newTestSequencer(t, WithFrameObserver(func(f Frame) {
		mu.Lock()
		modes[f.Mode]++
		mu.Unlock()
	}))

	if err := seq.SetMode(ModeLoop, 2*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if err := seq.SetMode(ModeBlink, 2*time.Millisecond); err != nil {
		t.Fatal(err)
	}

	mu.Lock()
	loopFrames := modes[ModeLoop]
	mu.Unlock()

	time.Sleep(30 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if modes[ModeLoop] != loopFrames {
		t.Errorf("loop frames kept arriving after switching to blink: %d -> %d", loopFrames, modes[ModeLoop])
	}
	if modes[ModeBlink] == 0 {
		t.Error("blink timer never fired")
	}
}

func TestSetMode_LockedDoesNothing(t *testing.T) {
	seq, ctrl, lock := newTestSequencer(t)
	lock.Engage()

	if err := seq.SetMode(ModeLoop, 2*time.Millisecond); !errors.Is(err, ErrLocked) {
		t.Fatalf("SetMode() while locked = %v, want ErrLocked", err)
	}
	time.Sleep(20 * time.Millisecond)
	if got := len(ctrl.calls()); got != 0 {
		t.Errorf("locked sequencer sent %d requests", got)
	}
}

func TestSetMode_LockEngagedMidRunDropsTicks(t *testing.T) {
	seq, ctrl, lock := newTestSequencer(t)
	n := len(DefaultSequence)

	if err := seq.SetMode(ModeLoop, 2*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	waitForCalls(t, ctrl, 2*n)

	lock.Engage()
	// A tick may be mid-flight when the lock lands; let it finish.
	time.Sleep(5 * time.Millisecond)
	before := len(ctrl.calls())
	time.Sleep(20 * time.Millisecond)
	if got := len(ctrl.calls()); got != before {
		t.Errorf("ticks kept reaching the backend while locked: %d -> %d", before, got)
	}
}

func TestSetMode_UnknownMode(t *testing.T) {
	seq, ctrl, _ := newTestSequencer(t)
	if err := seq.SetMode(Mode("rainbow"), 0); !errors.Is(err, ErrUnknownMode) {
		t.Errorf("SetMode(rainbow) = %v, want ErrUnknownMode", err)
	}
	if len(ctrl.calls()) != 0 {
		t.Error("rejected mode should not send requests")
	}
}

func TestSetMode_DefaultSpeed(t *testing.T) {
	seq, _, _ := newTestSequencer(t)
	if err := seq.SetMode(ModeLoop, -1); err != nil {
		t.Fatal(err)
	}
	if got := seq.Status().Speed; got != DefaultSpeed {
		t.Errorf("Speed = %v, want %v", got, DefaultSpeed)
	}
}

func TestClose_RejectsSetMode(t *testing.T) {
	seq, _, _ := newTestSequencer(t)
	seq.Close()
	if err := seq.SetMode(ModeStop, 0); !errors.Is(err, ErrClosed) {
		t.Errorf("SetMode() after Close = %v, want ErrClosed", err)
	}
}

func TestSetSequence(t *testing.T) {
	seq, ctrl, _ := newTestSequencer(t)

	if err := seq.SetSequence([]int{1, 1}); err == nil {
		t.Error("duplicate pins should be rejected")
	}
	if err := seq.SetSequence([]int{5, 6}); err != nil {
		t.Fatalf("SetSequence() error: %v", err)
	}
	if err := seq.SetMode(ModeStop, 0); err != nil {
		t.Fatal(err)
	}

	calls := ctrl.calls()
	if len(calls) != 2 || calls[0].pin != 5 || calls[1].pin != 6 {
		t.Errorf("calls = %v, want pins 5 and 6", calls)
	}
}

func TestDrive_BypassWhileLocked(t *testing.T) {
	seq, ctrl, lock := newTestSequencer(t)
	lock.Engage()

	seq.Drive(true, false)
	if len(ctrl.calls()) != 0 {
		t.Fatal("Drive without bypass should be dropped while locked")
	}

	seq.Drive(true, true)
	calls := ctrl.calls()
	if len(calls) != len(DefaultSequence) {
		t.Fatalf("calls = %d, want %d", len(calls), len(DefaultSequence))
	}
	for _, c := range calls {
		if c.wire != WireLow {
			t.Errorf("override call %v should be on", c)
		}
	}
}

func TestSuppress(t *testing.T) {
	seq, ctrl, _ := newTestSequencer(t)
	seq.Suppress(DefaultSuppressed)

	calls := ctrl.calls()
	if len(calls) != 1 || calls[0] != (setCall{11, WireHigh}) {
		t.Errorf("calls = %v, want gpio11 driven high", calls)
	}
	ctrl.reset()
}

func TestParseSequence(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"25,24,23,12,13,10", []int{25, 24, 23, 12, 13, 10}, false},
		{" 1, 2 ,3,", []int{1, 2, 3}, false},
		{"", nil, true},
		{"1,x", nil, true},
		{"1,1", nil, true},
		{"-1", nil, true},
	}
	for _, tt := range tests {
		got, err := ParseSequence(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSequence(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !slices.Equal(got, tt.want) {
			t.Errorf("ParseSequence(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestDrive_FrameMode(t *testing.T) {
	var mu sync.Mutex
	var frames []Frame
	seq, _, _ := newTestSequencer(t, WithFrameObserver(func(f Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	}))

	seq.Drive(false, false)
	seq.Drive(true, true)

	mu.Lock()
	defer mu.Unlock()
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if frames[0].Mode != ModeStop || len(frames[0].Active) != 0 {
		t.Errorf("dark frame = %+v, want stop with nothing lit", frames[0])
	}
	if frames[1].Mode != ModeAllOn || len(frames[1].Active) != len(DefaultSequence) {
		t.Errorf("lit frame = %+v, want allon with every pin", frames[1])
	}
}

func TestFlush_SyncBackend(t *testing.T) {
	seq, _, _ := newTestSequencer(t)
	if err := seq.Flush(context.Background()); err != nil {
		t.Errorf("Flush() = %v", err)
	}
}
