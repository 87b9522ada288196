package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var errorDetails string

var errorCmd = &cobra.Command{
	Use:   "error [sandbox-id] [message]",
	Short: "Signal an agent-driven error without tearing down the sandbox",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		var ack struct {
			OK bool `json:"ok"`
		}
		body := map[string]any{"message": args[1], "details": errorDetails}
		if err := newClient().post("/sandboxes/"+args[0]+"/error", body, &ack); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ok")
	},
}

func init() {
	errorCmd.Flags().StringVar(&errorDetails, "details", "", "additional error detail")
	RootCmd.AddCommand(errorCmd)
}
