package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// resetCmd represents the reset command
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Force a re-enumeration under the current identity",
	Long: `Unbind and immediately re-bind the gadget without changing mode.

This is the recovery path for a host that has stopped talking to the
device: the host sees an unplug followed by a plug of the same
identity. A reset while the gadget is unbound does nothing.

Example:
  aoactl reset --session 1`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")

		c := newClient()
		mode, err := c.Reset(context.Background(), session)
		if err != nil {
			exitErr(err)
		}
		fmt.Printf("Gadget reset, mode: %s\n", mode)
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)

	resetCmd.Flags().StringP("session", "s", "", "Session id from 'aoactl open'")
	_ = resetCmd.MarkFlagRequired("session")
}
