package led

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
)

const deviceTreeModelPath = "/proc/device-tree/model"

// Backend names accepted by New.
const (
	BackendHTTP  = "http"
	BackendSysfs = "sysfs"
	BackendNoop  = "noop"
)

// New creates the indicator backend named by backend. device is required
// for the http backend; gpioRoot overrides the sysfs tree (empty for the
// real one).
func New(backend string, device Setter, gpioRoot string, logger *slog.Logger) (Controller, error) {
	if logger == nil {
		logger = slog.Default()
	}

	switch strings.ToLower(backend) {
	case "", BackendHTTP:
		if device == nil {
			return nil, fmt.Errorf("led backend %q needs a device client", BackendHTTP)
		}
		return newHTTP(device, logger), nil

	case BackendSysfs:
		logger.Info("Using sysfs GPIO indicator control", "board_model", detectBoard(), "root", gpioRoot)
		return newSysfs(gpioRoot), nil

	case BackendNoop:
		logger.Info("Indicator control disabled, using no-op backend")
		return newNoop(logger), nil

	default:
		return nil, fmt.Errorf("unknown led backend %q", backend)
	}
}

// detectBoard reads the device tree model, for logs.
func detectBoard() string {
	data, err := os.ReadFile(deviceTreeModelPath)
	if err != nil {
		return "unknown"
	}
	return strings.TrimRight(string(data), "\x00")
}
