package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// modeCmd represents the mode command
var modeCmd = &cobra.Command{
	Use:   "mode <acm|aoa>",
	Short: "Switch the gadget identity",
	Long: `Switch the gadget between its two identities.

  acm   CDC ACM serial modem (0525:a4a7)
  aoa   Android Open Accessory (18d1:2d00)

The switch re-enumerates the device on the host side. Switching to the
mode the gadget is already in is a no-op. A switch already in flight
makes the request fail; retry once it settles.

Example:
  aoactl mode aoa --session 1`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")
		mode := args[0]

		c := newClient()
		got, err := c.SwitchMode(context.Background(), session, mode)
		if err != nil {
			exitErr(err)
		}
		fmt.Printf("Gadget mode: %s\n", got)
	},
}

func init() {
	rootCmd.AddCommand(modeCmd)

	modeCmd.Flags().StringP("session", "s", "", "Session id from 'aoactl open'")
	_ = modeCmd.MarkFlagRequired("session")
}
