// Package commands implements the udpstackd CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// configPath is the path to the YAML configuration file, shared by every
// subcommand that needs to load one.
var configPath string

// rootCmd is the top-level cobra command for udpstackd.
var rootCmd = &cobra.Command{
	Use:   "udpstackd",
	Short: "UDP/IPv4 demultiplexer daemon",
	Long:  "udpstackd runs the UDP/IPv4 demultiplexer and send/receive path as a standalone daemon, and exposes a send subcommand for manual interop testing.",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to configuration file (YAML)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(sendCmd())
	rootCmd.AddCommand(versionCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
