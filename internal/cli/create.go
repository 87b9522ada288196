package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

var (
	createTTL    int64
	createConfig []string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new sandbox",
	Args:  cobra.ExactArgs(0),
	Run: func(cmd *cobra.Command, args []string) {
		if userID == "" {
			fmt.Fprintln(os.Stderr, "error: --user is required")
			os.Exit(1)
		}

		cfg := make(map[string]string, len(createConfig))
		for _, kv := range createConfig {
			k, v, ok := splitKV(kv)
			if !ok {
				fmt.Fprintf(os.Stderr, "error: --config must be key=value, got %q\n", kv)
				os.Exit(1)
			}
			cfg[k] = v
		}

		var record sandbox.Record
		err := newClient().post("/sandboxes", map[string]any{
			"user_id":     userID,
			"ttl_seconds": createTTL,
			"config":      cfg,
		}, &record)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printJSON(record)
	},
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func splitKV(s string) (key, value string, ok bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '=' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

func init() {
	createCmd.Flags().Int64Var(&createTTL, "ttl-seconds", 0, "requested lease length (0 = server default)")
	createCmd.Flags().StringArrayVar(&createConfig, "config", nil, "key=value config entry, repeatable")
	RootCmd.AddCommand(createCmd)
}
