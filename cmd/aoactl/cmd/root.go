package cmd

import (
	"fmt"
	"os"

	"github.com/aoactl/aoactld-go/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "aoactl",
	Short: "Control the accessory-serial gadget daemon",
	Long: `aoactl talks to a running aoactld over its local HTTP API.

The daemon exposes a dual-identity USB gadget: a CDC ACM serial modem
or an Android Open Accessory device. aoactl opens the exclusive control
session, switches between the two identities, and drains the ordered
notification queue (cable state, accessory strings, start requests).

The daemon address defaults to http://127.0.0.1:21327 and can be set
with --url or the AOACTL_URL environment variable.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("url", "http://127.0.0.1:21327", "Base URL of the aoactld API")
	_ = viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	viper.SetEnvPrefix("AOACTL")
	viper.AutomaticEnv()
}

// newClient dials the configured daemon, exiting with a message when it
// is unreachable or speaks an unsupported version.
func newClient() *client.Client {
	c, err := client.New(viper.GetString("url"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to aoactld at %s: %v\n", viper.GetString("url"), err)
		os.Exit(1)
	}
	return c
}
