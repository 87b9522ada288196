package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var heartbeatCmd = &cobra.Command{
	Use:   "heartbeat [sandbox-id]",
	Short: "Send a heartbeat for a sandbox",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var ack struct {
			OK bool `json:"ok"`
		}
		if err := newClient().post("/sandboxes/"+args[0]+"/heartbeat", nil, &ack); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("ok")
	},
}

func init() {
	RootCmd.AddCommand(heartbeatCmd)
}
