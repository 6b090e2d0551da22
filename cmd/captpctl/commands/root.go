// Package commands implements the captpctl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// client is the admin API client, initialized in PersistentPreRunE.
	client *adminClient

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's admin API base URL.
	serverAddr string
)

// rootCmd is the top-level cobra command for captpctl.
var rootCmd = &cobra.Command{
	Use:   "captpctl",
	Short: "CLI client for the gocaptp daemon",
	Long:  "captpctl communicates with the gocaptp daemon's admin HTTP API to inspect and manage CapTP sessions.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = newAdminClient(serverAddr)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "http://localhost:9924",
		"gocaptp daemon admin API base URL")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(sessionCmd())
	rootCmd.AddCommand(healthzCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
