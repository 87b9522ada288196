package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/sandboxforge/orchestrator/internal/sandbox"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List sandboxes owned by the acting user",
	Run: func(cmd *cobra.Command, args []string) {
		var records []*sandbox.Record
		if err := newClient().get("/sandboxes", &records); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "SANDBOX_ID\tUSER_ID\tSTATUS\tCREATED")
		for _, r := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.SandboxID, r.UserID, r.Status, r.CreatedAt.Format(time.RFC3339))
		}
		w.Flush()
	},
}

func init() {
	RootCmd.AddCommand(listCmd)
}
