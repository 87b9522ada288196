package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var completeResult string

var completeCmd = &cobra.Command{
	Use:   "complete [sandbox-id]",
	Short: "Signal agent-driven successful completion",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var ack struct {
			OK bool `json:"ok"`
		}
		body := map[string]any{"result": completeResult}
		if err := newClient().post("/sandboxes/"+args[0]+"/complete", body, &ack); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ok")
	},
}

func init() {
	completeCmd.Flags().StringVar(&completeResult, "result", "", "free-form completion result payload")
	RootCmd.AddCommand(completeCmd)
}
