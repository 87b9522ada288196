// Command sandboxctl is the client CLI for the sandbox orchestrator's HTTP
// API, grounded on the teacher's internal/cli package.
package main

import "github.com/sandboxforge/orchestrator/internal/cli"

func main() {
	cli.Execute()
}
