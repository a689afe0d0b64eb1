package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/mac"
)

func formatMACs(m device.MACs) string {
	return fmt.Sprintf("wan:  %s\nlan1: %s\nlan2: %s", m.WAN, m.LAN1, m.LAN2)
}

// CreateMACCmd creates the mac command.
func CreateMACCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mac",
		Short: "Read, set or generate interface MAC addresses",
	}

	var getFlags deviceFlags
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print the addresses stored on the device",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			client, err := getFlags.client(getFlags.logger("mac"))
			if err != nil {
				return err
			}
			m, err := client.GetMACs(c.Context())
			if err != nil {
				return err
			}
			return getFlags.print(c.OutOrStdout(), m, formatMACs(m))
		},
	}
	getFlags.bind(getCmd)

	var setFlags deviceFlags
	var reboot bool
	setCmd := &cobra.Command{
		Use:   "set <wan> <lan1> <lan2>",
		Short: "Store new addresses",
		Args:  cobra.ExactArgs(3),
		RunE: func(c *cobra.Command, args []string) error {
			macs := device.MACs{WAN: args[0], LAN1: args[1], LAN2: args[2]}
			if err := mac.ValidateAll(macs); err != nil {
				return err
			}
			logger := setFlags.logger("mac")
			client, err := setFlags.client(logger)
			if err != nil {
				return err
			}
			manager := mac.NewManager(client, logger)
			if reboot {
				err = manager.SaveAndReboot(c.Context(), macs)
			} else {
				err = manager.Save(c.Context(), macs)
			}
			if err != nil {
				return err
			}
			text := "saved"
			if reboot {
				text = "saved, rebooting"
			}
			return setFlags.print(c.OutOrStdout(), map[string]any{"saved": true, "rebooting": reboot}, text)
		},
	}
	setCmd.Flags().BoolVar(&reboot, "reboot", false, "Reboot the device after saving")
	setFlags.bind(setCmd)

	var genJSON bool
	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Print three random locally administered addresses",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			m, err := mac.GenerateSet(nil)
			if err != nil {
				return err
			}
			f := deviceFlags{jsonOut: genJSON}
			return f.print(c.OutOrStdout(), m, formatMACs(m))
		},
	}
	generateCmd.Flags().BoolVar(&genJSON, "json", false, "Print JSON instead of text")

	var defJSON bool
	defaultsCmd := &cobra.Command{
		Use:   "defaults",
		Short: "Print the factory addresses",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			m := mac.Defaults()
			f := deviceFlags{jsonOut: defJSON}
			return f.print(c.OutOrStdout(), m, formatMACs(m))
		},
	}
	defaultsCmd.Flags().BoolVar(&defJSON, "json", false, "Print JSON instead of text")

	cmd.AddCommand(getCmd, setCmd, generateCmd, defaultsCmd)
	return cmd
}
