// Command agentctl is the SIEM agent's process entrypoint, per §4/§5: it
// loads bootstrap settings, builds the structured logger, and runs the
// agent until an interrupt signal arrives, following the teacher's
// cmd/server/main.go signal-handling shape.
package main

import (
	"fmt"
	"os"

	"github.com/siemagent/agent/cmd/agentctl/cmd"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	cmd.SetVersion(version, buildTime, gitCommit)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
