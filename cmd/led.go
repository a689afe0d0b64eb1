package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/smazurov/failsafe/internal/led"
)

// drainTimeout bounds how long a command waits for queued /setled requests.
const drainTimeout = 5 * time.Second

// drain stops seq and waits for the requests it already queued, so the
// process does not exit with indicator updates still in flight.
func drain(seq *led.Sequencer, logger *slog.Logger) {
	seq.Close()
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	if err := seq.Flush(ctx); err != nil {
		logger.Warn("Indicator requests still pending", "error", err)
	}
}

// CreateLEDCmd creates the led command.
func CreateLEDCmd() *cobra.Command {
	var flags deviceFlags

	cmd := &cobra.Command{
		Use:   "led",
		Short: "Drive the device indicators",
	}

	var speed time.Duration
	var duration time.Duration
	var sequence []int
	modeCmd := &cobra.Command{
		Use:       "mode <stop|allon|loop|down|up|blink>",
		Short:     "Run a marquee mode against the device",
		Long:      `Runs the marquee locally and pushes each tick to /setled until interrupted or --for elapses.`,
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"stop", "allon", "loop", "down", "up", "blink"},
		RunE: func(c *cobra.Command, args []string) error {
			mode, err := led.ParseMode(args[0])
			if err != nil {
				return err
			}
			logger := flags.logger("led")
			client, err := flags.client(logger)
			if err != nil {
				return err
			}
			controller, err := led.New(led.BackendHTTP, client, "", logger)
			if err != nil {
				return err
			}
			seq := led.NewSequencer(led.NewDispatcher(controller, &led.Lock{}, logger), sequence, led.WithLogger(logger))
			defer drain(seq, logger)

			if err := seq.SetMode(mode, speed); err != nil {
				return err
			}
			if !mode.Animated() {
				return nil
			}

			ctx, cancel := signalContext(c.Context())
			defer cancel()
			if duration > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(duration):
				}
			} else {
				<-ctx.Done()
			}
			return nil
		},
	}
	modeCmd.Flags().DurationVar(&speed, "speed", led.DefaultSpeed, "Tick interval")
	modeCmd.Flags().DurationVar(&duration, "for", 0, "Stop after this long (0 runs until interrupted)")
	modeCmd.Flags().IntSliceVar(&sequence, "sequence", led.DefaultSequence, "Indicator pins in marquee order")
	flags.bind(modeCmd)

	var setFlags deviceFlags
	setCmd := &cobra.Command{
		Use:   "set <pin> <on|off>",
		Short: "Switch a single indicator",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			pin, err := strconv.Atoi(args[0])
			if err != nil || pin < 0 {
				return fmt.Errorf("invalid pin %q", args[0])
			}
			var on bool
			switch args[1] {
			case "on", "1", "true":
				on = true
			case "off", "0", "false":
			default:
				return errors.New("state must be on or off")
			}
			logger := setFlags.logger("led")
			client, err := setFlags.client(logger)
			if err != nil {
				return err
			}
			if err := client.SetLED(c.Context(), pin, led.WireState(on)); err != nil {
				return err
			}
			return setFlags.print(c.OutOrStdout(), map[string]any{"pin": pin, "on": on}, fmt.Sprintf("pin %d %s", pin, args[1]))
		},
	}
	setFlags.bind(setCmd)

	cmd.AddCommand(modeCmd, setCmd)
	return cmd
}
