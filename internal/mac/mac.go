// Package mac validates, generates and persists the device's interface
// MAC addresses.
package mac

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/smazurov/failsafe/internal/device"
)

// RebootDelay is the pause between a successful save and the reboot
// request, giving the device time to flush NVRAM.
const RebootDelay = 1500 * time.Millisecond

var pattern = regexp.MustCompile(`^([0-9A-Fa-f]{2}[:-]){5}([0-9A-Fa-f]{2})$`)

// Validate reports whether s is six hex octets separated by ':' or '-'.
func Validate(s string) bool {
	return pattern.MatchString(s)
}

// ValidateAll checks all three addresses and names the first bad one.
func ValidateAll(m device.MACs) error {
	for _, f := range []struct {
		name, value string
	}{
		{"wan", m.WAN},
		{"lan1", m.LAN1},
		{"lan2", m.LAN2},
	} {
		if !Validate(f.value) {
			return fmt.Errorf("invalid %s mac %q", f.name, f.value)
		}
	}
	return nil
}

// Normalize uppercases s and uses ':' separators.
func Normalize(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "-", ":"))
}

// Generate returns a random locally administered unicast address read from
// r, or crypto/rand when r is nil.
func Generate(r io.Reader) (string, error) {
	if r == nil {
		r = rand.Reader
	}
	var b [6]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	b[0] = b[0]&0xFE | 0x02
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[0], b[1], b[2], b[3], b[4], b[5]), nil
}

// GenerateSet fills all three addresses with fresh random ones.
func GenerateSet(r io.Reader) (device.MACs, error) {
	var m device.MACs
	for _, dst := range []*string{&m.WAN, &m.LAN1, &m.LAN2} {
		addr, err := Generate(r)
		if err != nil {
			return device.MACs{}, err
		}
		*dst = addr
	}
	return m, nil
}

// Defaults returns the factory addresses.
func Defaults() device.MACs {
	return device.MACs{
		WAN:  "62:88:9F:78:7D:A4",
		LAN1: "62:88:9F:78:7D:A5",
		LAN2: "62:88:9F:78:7D:A6",
	}
}

// Store is the device side of MAC persistence.
type Store interface {
	GetMACs(ctx context.Context) (device.MACs, error)
	SetMACs(ctx context.Context, m device.MACs) error
	Reboot(ctx context.Context) error
}

// Manager saves addresses and optionally reboots afterwards.
type Manager struct {
	store  Store
	delay  time.Duration
	logger *slog.Logger
}

// NewManager creates a manager rebooting RebootDelay after a save.
func NewManager(store Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{store: store, delay: RebootDelay, logger: logger}
}

// Get reads the stored addresses.
func (m *Manager) Get(ctx context.Context) (device.MACs, error) {
	return m.store.GetMACs(ctx)
}

// Save validates and persists the addresses.
func (m *Manager) Save(ctx context.Context, macs device.MACs) error {
	if err := ValidateAll(macs); err != nil {
		return err
	}
	macs = device.MACs{WAN: Normalize(macs.WAN), LAN1: Normalize(macs.LAN1), LAN2: Normalize(macs.LAN2)}
	if err := m.store.SetMACs(ctx, macs); err != nil {
		return fmt.Errorf("save macs: %w", err)
	}
	m.logger.Info("MAC addresses saved", "wan", macs.WAN, "lan1", macs.LAN1, "lan2", macs.LAN2)
	return nil
}

// SaveAndReboot saves the addresses, waits for the reboot delay and asks the
// device to restart. A dropped connection on reboot is expected and not
// reported as an error.
func (m *Manager) SaveAndReboot(ctx context.Context, macs device.MACs) error {
	if err := m.Save(ctx, macs); err != nil {
		return err
	}

	t := time.NewTimer(m.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
	}

	if err := m.store.Reboot(ctx); err != nil {
		if device.IsTransport(err) {
			m.logger.Info("Device dropped connection on reboot", "error", err)
			return nil
		}
		return fmt.Errorf("reboot: %w", err)
	}
	m.logger.Info("Reboot requested")
	return nil
}
