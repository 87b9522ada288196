package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

var getCmd = &cobra.Command{
	Use:   "get [sandbox-id]",
	Short: "Fetch a single sandbox record",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var record sandbox.Record
		if err := newClient().get("/sandboxes/"+args[0], &record); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printJSON(record)
	},
}

func init() {
	RootCmd.AddCommand(getCmd)
}
