package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the daemon version, gadget mode and cable state",
	Long: `Query the daemon for its current state.

Examples:
  aoactl status
  aoactl --url http://127.0.0.1:21327 status`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()

		info, err := c.Info(context.Background())
		if err != nil {
			exitErr(err)
		}

		fmt.Printf("Daemon version: %s\n", info.Version)
		fmt.Printf("Gadget mode:    %s\n", info.Mode)
		connected := "no"
		if info.Connected {
			connected = "yes"
		}
		fmt.Printf("Host connected: %s\n", connected)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
