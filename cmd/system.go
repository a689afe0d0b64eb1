package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/smazurov/failsafe/internal/device"
	"github.com/smazurov/failsafe/internal/version"
)

// CreateMTDCmd creates the mtd command.
func CreateMTDCmd() *cobra.Command {
	var flags deviceFlags
	cmd := &cobra.Command{
		Use:   "mtd",
		Short: "List the partition layouts the device offers",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			client, err := flags.client(flags.logger("mtd"))
			if err != nil {
				return err
			}
			layouts, err := client.MTDLayouts(c.Context())
			if err != nil {
				return err
			}
			if layouts == nil {
				layouts = []device.Layout{}
			}
			var sb strings.Builder
			for i, l := range layouts {
				if i > 0 {
					sb.WriteByte('\n')
				}
				marker := " "
				if l.Current {
					marker = "*"
				}
				fmt.Fprintf(&sb, "%s %s", marker, l.Label)
			}
			if len(layouts) == 0 {
				sb.WriteString("no selectable layouts")
			}
			return flags.print(c.OutOrStdout(), layouts, sb.String())
		},
	}
	flags.bind(cmd)
	return cmd
}

// CreateRebootCmd creates the reboot command.
func CreateRebootCmd() *cobra.Command {
	var flags deviceFlags
	cmd := &cobra.Command{
		Use:   "reboot",
		Short: "Restart the device",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			client, err := flags.client(flags.logger("reboot"))
			if err != nil {
				return err
			}
			// The device tends to drop the connection while restarting.
			if err := client.Reboot(c.Context()); err != nil && !device.IsTransport(err) {
				return err
			}
			return flags.print(c.OutOrStdout(), map[string]bool{"rebooting": true}, "rebooting")
		},
	}
	flags.bind(cmd)
	return cmd
}

// CreateVersionCmd creates the version command.
func CreateVersionCmd() *cobra.Command {
	var flags deviceFlags
	var local bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build and device firmware versions",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			info := version.Get()
			res := map[string]any{"build": info}
			text := version.String()
			if !local {
				client, err := flags.client(flags.logger("version"))
				if err != nil {
					return err
				}
				v, err := client.Version(c.Context())
				if err != nil {
					return err
				}
				res["device"] = v
				text += "\ndevice: " + v
			}
			return flags.print(c.OutOrStdout(), res, text)
		},
	}
	cmd.Flags().BoolVar(&local, "local", false, "Only print the build version")
	flags.bind(cmd)
	return cmd
}
