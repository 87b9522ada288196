package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

var destroyGraceful bool

var destroyCmd = &cobra.Command{
	Use:   "destroy [sandbox-id]",
	Short: "Tear down a sandbox",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var record sandbox.Record
		path := fmt.Sprintf("/sandboxes/%s?graceful=%t", args[0], destroyGraceful)
		if err := newClient().delete(path, &record); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printJSON(record)
	},
}

func init() {
	destroyCmd.Flags().BoolVar(&destroyGraceful, "graceful", true, "run the in-container shutdown protocol before removal")
	RootCmd.AddCommand(destroyCmd)
}
