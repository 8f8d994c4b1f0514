package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// openCmd represents the open command
var openCmd = &cobra.Command{
	Use:   "open",
	Short: "Claim the exclusive control session",
	Long: `Claim the daemon's single control session and print its id.

Opening the session binds the gadget in CDC ACM mode. Only one session
can exist at a time; a second open fails until the holder closes it.

The printed id is what the session-scoped commands (mode, reset, poll,
read, close) take with --session. For interactive use prefer
'aoactl watch', which opens and closes the session for you.

Example:
  session=$(aoactl open)
  aoactl mode aoa --session "$session"
  aoactl close --session "$session"`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		c := newClient()

		session, err := c.Open(context.Background())
		if err != nil {
			exitErr(err)
		}
		fmt.Println(session)
	},
}

// exitErr prints the daemon's error and exits non-zero.
func exitErr(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func init() {
	rootCmd.AddCommand(openCmd)
}
