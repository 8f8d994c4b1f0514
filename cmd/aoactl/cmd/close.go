package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// closeCmd represents the close command
var closeCmd = &cobra.Command{
	Use:   "close",
	Short: "Release the control session and unbind the gadget",
	Long: `Release a session previously claimed with 'aoactl open'.

Closing drops the gadget back to the unbound state and frees the
session slot for the next consumer.

Example:
  aoactl close --session 1`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")

		c := newClient()
		if err := c.Close(context.Background(), session); err != nil {
			exitErr(err)
		}
		fmt.Println("Session closed")
	},
}

func init() {
	rootCmd.AddCommand(closeCmd)

	closeCmd.Flags().StringP("session", "s", "", "Session id from 'aoactl open'")
	_ = closeCmd.MarkFlagRequired("session")
}
