// Package cli implements sandboxctl, the client CLI for the orchestrator's
// HTTP API surface (§6.1). Grounded on the teacher's internal/cli package
// (root.go/run.go/list.go), generalized from a single-purpose "run code"
// tool into commands covering every endpoint: create, list, get, exec,
// heartbeat, complete, error-report, destroy.
package cli

import (
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serverURL  string
	apiKey     string
	headerName string
	userID     string
	verbose    bool
)

// RootCmd is the base sandboxctl command.
var RootCmd = &cobra.Command{
	Use:   "sandboxctl",
	Short: "Client for the sandbox orchestrator's HTTP API",
	Long: `sandboxctl drives the Sandbox Orchestrator's HTTP API surface: create,
inspect, exec inside, and tear down ephemeral sandboxes.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		if verbose {
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		} else {
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		}
	},
}

// Execute runs the root command, exiting non-zero on error.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	RootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("SANDBOXCTL_SERVER", "http://localhost:8080"), "orchestrator base URL")
	RootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("SANDBOXCTL_API_KEY"), "shared-secret API key")
	RootCmd.PersistentFlags().StringVar(&headerName, "api-key-header", envOr("SANDBOXCTL_API_KEY_HEADER", "X-API-Key"), "API key header name")
	RootCmd.PersistentFlags().StringVar(&userID, "user", os.Getenv("SANDBOXCTL_USER_ID"), "acting user id (X-User-Id header)")
	RootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
