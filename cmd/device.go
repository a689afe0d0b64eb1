package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/failsafe/internal/config"
	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/logging"
)

// deviceFlags are shared by every command that talks to the device.
type deviceFlags struct {
	url      string
	timeout  time.Duration
	retries  int
	jsonOut  bool
	logLevel string
}

func (f *deviceFlags) bind(cmd *cobra.Command) {
	url := os.Getenv(config.EnvPrefix + "DEVICE_URL")
	if url == "" {
		url = device.DefaultURL
	}
	cmd.Flags().StringVarP(&f.url, "device-url", "d", url, "Recovery server base URL")
	cmd.Flags().DurationVar(&f.timeout, "timeout", device.DefaultTimeout, "Per-request timeout")
	cmd.Flags().IntVar(&f.retries, "retries", 2, "Retries for read-only requests")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print JSON instead of text")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "warn", "Logging level (debug, info, warn, error)")
}

// logger initializes logging for a one-shot command.
func (f *deviceFlags) logger(module string) *slog.Logger {
	logging.Initialize(logging.Config{Level: f.logLevel, Format: "text"})
	return logging.GetLogger(module)
}

func (f *deviceFlags) client(logger *slog.Logger) (*device.Client, error) {
	return device.New(device.Config{
		BaseURL: f.url,
		Timeout: f.timeout,
		Retries: f.retries,
	}, logger)
}

// print writes v as JSON when --json is set, otherwise the text form.
func (f *deviceFlags) print(w io.Writer, v any, text string) error {
	if f.jsonOut {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(w, text)
	return err
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
