package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/flash"
	"github.com/smazurov/failsafe/internal/led"
)

type stdoutNotifier struct {
	print func(string)
}

func (n stdoutNotifier) Notify(m flash.Message) {
	n.print(m.Text)
}

// CreateFlashCmd creates the flash command.
func CreateFlashCmd() *cobra.Command {
	var flags deviceFlags

	cmd := &cobra.Command{
		Use:   "flash",
		Short: "Commit the uploaded image to NAND",
		Long: `Lights every indicator, then asks the device to start writing the previously uploaded image. ` +
			`Do not power off the device after the write is accepted.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			logger := flags.logger("flash")
			client, err := flags.client(logger)
			if err != nil {
				return err
			}
			controller, err := led.New(led.BackendHTTP, client, "", logger)
			if err != nil {
				return err
			}
			lock := &led.Lock{}
			seq := led.NewSequencer(led.NewDispatcher(controller, lock, logger), nil, led.WithLogger(logger))
			defer drain(seq, logger)

			out := c.OutOrStdout()
			var notifier flash.Notifier
			if !flags.jsonOut {
				notifier = stdoutNotifier{print: func(s string) { fmt.Fprintln(out, s) }}
			}
			opts := []flash.Option{flash.WithLogger(logger)}
			if notifier != nil {
				opts = append(opts, flash.WithNotifier(notifier))
			}
			guard := flash.NewGuard(lock, seq, client, opts...)

			state, err := guard.Authorize(c.Context())
			if flags.jsonOut {
				res := map[string]any{"state": state, "attempt_id": guard.AttemptID()}
				if err != nil {
					res["error"] = err.Error()
				}
				if printErr := flags.print(out, res, ""); printErr != nil {
					return printErr
				}
			}
			if device.IsRejected(err) {
				c.SilenceUsage = true
			}
			return err
		},
	}
	flags.bind(cmd)
	return cmd
}
