// Command status_service records provider delivery-status callbacks and
// streams them to connected dashboards.
//
// Usage:
//
//	status_service serve     # HTTP API, realtime hub, optional NATS ingestion
//	status_service migrate   # create the PostgreSQL schema
//	status_service token     # mint an access token for local testing
//
// Configuration comes from configs/config.defaults.yaml and APP_* variables.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const serviceName = "status-service"

// Set at build time via -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

var rootCmd = &cobra.Command{
	Use:          "status_service",
	Short:        "Delivery-status ingestion and realtime notification service",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s (commit %s)\n", serviceName, version, commit)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
