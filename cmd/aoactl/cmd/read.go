package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/aoactl/aoactld-go/core"
	"github.com/aoactl/aoactld-go/wire"
	"github.com/spf13/cobra"
)

// readCmd represents the read command
var readCmd = &cobra.Command{
	Use:   "read",
	Short: "Consume one event record from the session queue",
	Long: `Read the oldest unread event and print it.

By default the command blocks until an event arrives; interrupt it with
Ctrl-C. With --nowait it exits 1 immediately when the queue is empty.

Examples:
  aoactl read --session 1
  aoactl read --session 1 --nowait`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		session, _ := cmd.Flags().GetString("session")
		nowait, _ := cmd.Flags().GetBool("nowait")

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c := newClient()
		rec, err := c.Read(ctx, session, !nowait)
		if err != nil {
			if nowait {
				// empty queue is the expected outcome, keep it quiet
				fmt.Println("No events pending")
				os.Exit(1)
			}
			exitErr(err)
		}
		fmt.Println(formatRecord(rec))
	},
}

// formatRecord renders one wire record the way a human wants to see it.
func formatRecord(rec wire.Record) string {
	kind := core.EventType(rec.Kind)
	if !rec.HasString {
		return kind.String()
	}
	return fmt.Sprintf("%s %s=%q", kind, core.StringCategory(rec.Str), rec.Payload)
}

func init() {
	rootCmd.AddCommand(readCmd)

	readCmd.Flags().StringP("session", "s", "", "Session id from 'aoactl open'")
	readCmd.Flags().Bool("nowait", false, "Fail instead of blocking when no event is queued")
	_ = readCmd.MarkFlagRequired("session")
}
