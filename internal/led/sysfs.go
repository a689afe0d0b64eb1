package led

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

const sysfsGPIOPath = "/sys/class/gpio"

// sysfs implements Controller with the Linux GPIO sysfs interface, for
// running directly on the board.
type sysfs struct {
	root     string
	mu       sync.Mutex
	prepared map[int]bool
}

func newSysfs(root string) *sysfs {
	if root == "" {
		root = sysfsGPIOPath
	}
	return &sysfs{root: root, prepared: make(map[int]bool)}
}

// Set writes wire to gpio<pin>/value, exporting the pin and making it an
// output on first use.
func (s *sysfs) Set(pin, wire int) error {
	if err := s.prepare(pin); err != nil {
		return err
	}

	valuePath := filepath.Join(s.pinPath(pin), "value")
	if err := os.WriteFile(valuePath, []byte(strconv.Itoa(wire)), 0o644); err != nil {
		return fmt.Errorf("failed to set gpio%d value: %w", pin, err)
	}
	return nil
}

func (s *sysfs) Name() string { return "sysfs" }

func (s *sysfs) pinPath(pin int) string {
	return filepath.Join(s.root, "gpio"+strconv.Itoa(pin))
}

func (s *sysfs) prepare(pin int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.prepared[pin] {
		return nil
	}

	pinPath := s.pinPath(pin)
	if _, err := os.Stat(pinPath); errors.Is(err, os.ErrNotExist) {
		exportPath := filepath.Join(s.root, "export")
		if writeErr := os.WriteFile(exportPath, []byte(strconv.Itoa(pin)), 0o200); writeErr != nil {
			return fmt.Errorf("failed to export gpio%d: %w", pin, writeErr)
		}
		if _, statErr := os.Stat(pinPath); statErr != nil {
			return fmt.Errorf("gpio%d not available after export: %w", pin, statErr)
		}
	}

	// Start dark: active-low, so high.
	directionPath := filepath.Join(pinPath, "direction")
	if err := os.WriteFile(directionPath, []byte("high"), 0o644); err != nil {
		return fmt.Errorf("failed to set gpio%d direction: %w", pin, err)
	}

	s.prepared[pin] = true
	return nil
}
