package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// pollCmd represents the poll command
var pollCmd = &cobra.Command{
	Use:   "poll",
	Short: "Check whether an event record is waiting",
	Long: `Check the session's queue without consuming anything.

Exits 0 when a record is readable and 1 when the queue is empty, so it
composes in shell loops:

  while ! aoactl poll --session 1; do sleep 1; done
  aoactl read --session 1 --nowait`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")

		c := newClient()
		readable, err := c.Poll(context.Background(), session)
		if err != nil {
			exitErr(err)
		}
		if !readable {
			fmt.Println("No events pending")
			os.Exit(1)
		}
		fmt.Println("Event pending")
	},
}

func init() {
	rootCmd.AddCommand(pollCmd)

	pollCmd.Flags().StringP("session", "s", "", "Session id from 'aoactl open'")
	_ = pollCmd.MarkFlagRequired("session")
}
