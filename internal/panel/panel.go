// Package panel assembles the recovery controls: one marquee, one flash
// guard and the device operations they gate.
package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/events"
	"github.com/smazurov/failsafe/internal/flash"
	"github.com/smazurov/failsafe/internal/led"
	"github.com/smazurov/failsafe/internal/mac"
)

// DefaultBootDelay is how long Start waits before the boot marquee.
const DefaultBootDelay = time.Second

// closeFlushTimeout bounds how long Close waits for queued indicator requests.
const closeFlushTimeout = 2 * time.Second

// ErrInputsDisabled is returned by mutating operations while the flash
// lock is held.
var ErrInputsDisabled = errors.New("inputs disabled while flash is locked")

// Device is everything the panel asks of the recovery server.
type Device interface {
	flash.Committer
	mac.Store
	Upload(ctx context.Context, req device.UploadRequest) (*device.UploadResult, error)
	MTDLayouts(ctx context.Context) ([]device.Layout, error)
	Version(ctx context.Context) (string, error)
}

// Config wires a Panel.
type Config struct {
	Controller led.Controller
	Device     Device
	Bus        *events.Bus
	Logger     *slog.Logger
	// LEDLogger receives marquee and indicator logs; Logger when nil.
	LEDLogger *slog.Logger

	Sequence   []int
	Suppressed []int
	BootMode   led.Mode
	Speed      time.Duration
	BootDelay  time.Duration
	// SkipBootDelay starts the boot marquee immediately.
	SkipBootDelay bool
}

// Status is the indicator and lock state shown to clients.
type Status struct {
	led.Status
	Locked        bool        `json:"locked"`
	InputsEnabled bool        `json:"inputs_enabled"`
	FlashState    flash.State `json:"flash_state"`
}

// Panel owns the sequencer, the lock and the guard for one device.
type Panel struct {
	dev    Device
	bus    *events.Bus
	logger *slog.Logger

	dispatcher *led.Dispatcher
	sequencer  *led.Sequencer
	guard      *flash.Guard
	macs       *mac.Manager

	suppressed []int
	bootMode   led.Mode
	bootDelay  time.Duration
	speed      atomic.Int64

	inputsDisabled atomic.Bool

	mu        sync.Mutex
	bootTimer *time.Timer
	closed    bool
}

// New builds a panel. Nothing is sent to the board until Start.
func New(cfg Config) (*Panel, error) {
	if cfg.Controller == nil {
		return nil, errors.New("panel: controller is required")
	}
	if cfg.Device == nil {
		return nil, errors.New("panel: device is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.LEDLogger == nil {
		cfg.LEDLogger = cfg.Logger
	}
	if cfg.Bus == nil {
		cfg.Bus = events.New()
	}
	if len(cfg.Sequence) == 0 {
		cfg.Sequence = led.DefaultSequence
	}
	if err := led.ValidateSequence(cfg.Sequence); err != nil {
		return nil, fmt.Errorf("panel: %w", err)
	}
	if cfg.Suppressed == nil {
		cfg.Suppressed = led.DefaultSuppressed
	}
	if cfg.BootMode == "" {
		cfg.BootMode = led.ModeLoop
	}
	if _, err := led.ParseMode(string(cfg.BootMode)); err != nil {
		return nil, fmt.Errorf("panel: boot mode: %w", err)
	}
	if cfg.BootDelay <= 0 && !cfg.SkipBootDelay {
		cfg.BootDelay = DefaultBootDelay
	}
	if cfg.SkipBootDelay {
		cfg.BootDelay = 0
	}

	p := &Panel{
		dev:        cfg.Device,
		bus:        cfg.Bus,
		logger:     cfg.Logger,
		suppressed: cfg.Suppressed,
		bootMode:   cfg.BootMode,
		bootDelay:  cfg.BootDelay,
		macs:       mac.NewManager(cfg.Device, cfg.Logger),
	}
	p.speed.Store(int64(cfg.Speed))

	p.dispatcher = led.NewDispatcher(cfg.Controller, &led.Lock{}, cfg.LEDLogger)
	p.sequencer = led.NewSequencer(p.dispatcher, cfg.Sequence,
		led.WithLogger(cfg.LEDLogger),
		led.WithFrameObserver(p.publishFrame),
	)
	p.guard = flash.NewGuard(p.dispatcher.Lock(), p.sequencer, cfg.Device,
		flash.WithInputs(p),
		flash.WithNotifier(p),
		flash.WithLogger(cfg.Logger),
		flash.WithObserver(p.publishTransition),
	)
	return p, nil
}

// Start forces the suppressed pins and the sequence dark, then starts the
// boot marquee after the boot delay.
func (p *Panel) Start() {
	p.sequencer.Suppress(p.suppressed)
	p.sequencer.Drive(false, false)

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.bootTimer = time.AfterFunc(p.bootDelay, func() {
		err := p.sequencer.SetMode(p.bootMode, p.Speed())
		switch {
		case err == nil:
			p.logger.Info("Boot marquee started", "mode", p.bootMode)
		case errors.Is(err, led.ErrLocked), errors.Is(err, led.ErrClosed):
			p.logger.Debug("Boot marquee skipped", "reason", err)
		default:
			p.logger.Warn("Boot marquee failed", "error", err)
		}
	})
}

// Speed returns the configured tick interval.
func (p *Panel) Speed() time.Duration {
	return time.Duration(p.speed.Load())
}

// SetMode changes the marquee. A zero speed keeps the configured one.
func (p *Panel) SetMode(mode led.Mode, speed time.Duration) error {
	if !p.InputsEnabled() {
		return ErrInputsDisabled
	}
	if speed <= 0 {
		speed = p.Speed()
	}
	return p.sequencer.SetMode(mode, speed)
}

// Reload applies a new sequence and speed. A running animation restarts
// with them.
func (p *Panel) Reload(sequence []int, speed time.Duration) error {
	if len(sequence) > 0 {
		if err := p.sequencer.SetSequence(sequence); err != nil {
			return err
		}
	}
	p.speed.Store(int64(speed))

	st := p.sequencer.Status()
	if !st.Mode.Animated() || !p.InputsEnabled() {
		return nil
	}
	err := p.sequencer.SetMode(st.Mode, speed)
	if errors.Is(err, led.ErrLocked) {
		return nil
	}
	return err
}

// Authorize runs the flash guard.
func (p *Panel) Authorize(ctx context.Context) (flash.State, error) {
	return p.guard.Authorize(ctx)
}

// FlashState returns the guard state and the latest attempt id.
func (p *Panel) FlashState() (flash.State, string) {
	return p.guard.State(), p.guard.AttemptID()
}

// Upload sends an image to the device.
func (p *Panel) Upload(ctx context.Context, req device.UploadRequest) (*device.UploadResult, error) {
	if !p.InputsEnabled() {
		return nil, ErrInputsDisabled
	}
	res, err := p.dev.Upload(ctx, req)
	if err != nil {
		p.message("upload", fmt.Sprintf("UPLOAD FAILED: %v", err), true, false)
		return nil, err
	}
	p.message("upload", fmt.Sprintf("UPLOAD OK: %s (MD5 %s)", req.FileName, res.MD5), false, false)
	return res, nil
}

// MACs reads the stored addresses.
func (p *Panel) MACs(ctx context.Context) (device.MACs, error) {
	return p.macs.Get(ctx)
}

// SaveMACs persists the addresses, rebooting afterwards when reboot is set.
func (p *Panel) SaveMACs(ctx context.Context, macs device.MACs, reboot bool) error {
	if !p.InputsEnabled() {
		return ErrInputsDisabled
	}
	var err error
	if reboot {
		err = p.macs.SaveAndReboot(ctx, macs)
	} else {
		err = p.macs.Save(ctx, macs)
	}
	if err != nil {
		p.message("mac", fmt.Sprintf("MAC SAVE FAILED: %v", err), true, false)
		return err
	}
	text := "MAC ADDRESSES SAVED."
	if reboot {
		text = "MAC ADDRESSES SAVED. REBOOTING..."
	}
	p.message("mac", text, false, reboot)
	return nil
}

// MTDLayouts lists the device's partition layouts.
func (p *Panel) MTDLayouts(ctx context.Context) ([]device.Layout, error) {
	return p.dev.MTDLayouts(ctx)
}

// DeviceVersion returns the recovery server's version string.
func (p *Panel) DeviceVersion(ctx context.Context) (string, error) {
	return p.dev.Version(ctx)
}

// Status reports marquee, lock and input state.
func (p *Panel) Status() Status {
	return Status{
		Status:        p.sequencer.Status(),
		Locked:        p.dispatcher.Lock().Engaged(),
		InputsEnabled: p.InputsEnabled(),
		FlashState:    p.guard.State(),
	}
}

// InputsEnabled reports whether mutating operations are accepted.
func (p *Panel) InputsEnabled() bool {
	return !p.inputsDisabled.Load()
}

// SetInputsEnabled is called by the guard.
func (p *Panel) SetInputsEnabled(enabled bool) {
	p.inputsDisabled.Store(!enabled)
	p.bus.Publish(events.InputsStateEvent{Enabled: enabled, Timestamp: now()})
}

// Notify is called by the guard.
func (p *Panel) Notify(m flash.Message) {
	p.message("flash", m.Text, m.Error, m.Persistent)
}

// Close cancels the boot marquee and stops the sequencer.
func (p *Panel) Close() {
	p.mu.Lock()
	p.closed = true
	if p.bootTimer != nil {
		p.bootTimer.Stop()
	}
	p.mu.Unlock()
	p.sequencer.Close()

	ctx, cancel := context.WithTimeout(context.Background(), closeFlushTimeout)
	defer cancel()
	if err := p.sequencer.Flush(ctx); err != nil {
		p.logger.Warn("Indicator requests still pending at close", "error", err)
	}
}

func (p *Panel) message(target, text string, isErr, persistent bool) {
	p.bus.Publish(events.StatusMessageEvent{
		Target:     target,
		Text:       text,
		Error:      isErr,
		Persistent: persistent,
		Timestamp:  now(),
	})
}

func (p *Panel) publishFrame(f led.Frame) {
	p.bus.Publish(events.LEDFrameEvent{
		Mode:      string(f.Mode),
		Step:      f.Step,
		Active:    f.Active,
		Timestamp: now(),
	})
}

func (p *Panel) publishTransition(t flash.Transition) {
	p.bus.Publish(events.FlashStateEvent{
		AttemptID: t.AttemptID,
		State:     string(t.State),
		Token:     t.Token,
		Timestamp: now(),
	})
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
