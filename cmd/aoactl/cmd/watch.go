package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/aoactl/aoactld-go/wire"
	"github.com/spf13/cobra"
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Open a session and stream events until interrupted",
	Long: `Open the control session, optionally switch mode, and print every
event as it arrives. Ctrl-C closes the session and unbinds the gadget.

This is the interactive counterpart of open/read/close: the session is
held for the lifetime of the command, so nothing else can claim the
gadget while watch runs.

Examples:
  aoactl watch
  aoactl watch --mode aoa
  aoactl watch --timestamps`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		mode, _ := cmd.Flags().GetString("mode")
		timestamps, _ := cmd.Flags().GetBool("timestamps")

		if mode != "" && mode != "acm" && mode != "aoa" {
			fmt.Fprintf(os.Stderr, "Error: unknown mode %q (want acm or aoa)\n", mode)
			os.Exit(1)
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		c := newClient()

		session, err := c.Open(ctx)
		if err != nil {
			exitErr(err)
		}
		defer func() {
			// the session outlives ctx; close with a fresh context
			if err := c.Close(context.Background(), session); err != nil {
				fmt.Fprintf(os.Stderr, "Error closing session: %v\n", err)
			}
		}()

		if mode != "" {
			if _, err := c.SwitchMode(ctx, session, mode); err != nil {
				fmt.Fprintf(os.Stderr, "Error switching mode: %v\n", err)
				return
			}
		}

		fmt.Printf("Session %s open, streaming events (Ctrl-C to stop)\n", session)

		err = c.Events(ctx, session, func(rec wire.Record) error {
			line := formatRecord(rec)
			if timestamps {
				line = time.Now().Format("15:04:05.000") + " " + line
			}
			fmt.Println(line)
			return nil
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("mode", "m", "", "Switch to this mode after opening (acm or aoa)")
	watchCmd.Flags().Bool("timestamps", false, "Prefix each event with the local time")
}
