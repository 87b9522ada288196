package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	execCWD     string
	execTimeout int64
)

type execResponse struct {
	ExitCode int    `json:"exit_code"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	CWD      string `json:"cwd"`
}

var execCmd = &cobra.Command{
	Use:   "exec [sandbox-id] [command]",
	Short: "Run a command inside a sandbox",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		sandboxID, command := args[0], args[1]

		body := map[string]any{"command": command}
		if execCWD != "" {
			body["cwd"] = execCWD
		}
		if execTimeout > 0 {
			body["timeout_seconds"] = execTimeout
		}

		var result execResponse
		if err := newClient().post("/sandboxes/"+sandboxID+"/exec", body, &result); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		fmt.Fprint(os.Stdout, result.Stdout)
		if result.Stderr != "" {
			fmt.Fprint(os.Stderr, result.Stderr)
		}
		fmt.Fprintf(os.Stderr, "[exit %d, cwd %s]\n", result.ExitCode, result.CWD)
		os.Exit(result.ExitCode)
	},
}

func init() {
	execCmd.Flags().StringVar(&execCWD, "cwd", "", "override the sandbox's tracked working directory for this call")
	execCmd.Flags().Int64Var(&execTimeout, "timeout-seconds", 0, "exec deadline in seconds (0 = server default)")
	RootCmd.AddCommand(execCmd)
}
