package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version   string
	buildTime string
	gitCommit string

	bootstrapPath string
)

var rootCmd = &cobra.Command{
	Use:   "agentctl",
	Short: "Run and administer the SIEM host agent",
	Long: `agentctl runs the SIEM host agent: it collects security-relevant events from
configured sources (file logs, OS event logs, syslog), normalizes and
forwards them to a remote collector, and exposes a local admin HTTP surface
for configuration and health.

Examples:
  # Run the agent in the foreground
  agentctl run

  # Run with an explicit bootstrap file
  agentctl run --bootstrap /etc/siemagent/bootstrap.yaml

  # Validate an agent configuration document without running
  agentctl validate-config agent-config.json
`,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&bootstrapPath, "bootstrap", "", "path to bootstrap config file (optional; falls back to SIEMAGENT_* env vars and defaults)")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateConfigCmd)
	rootCmd.AddCommand(versionCmd)
}

// SetVersion records build metadata for `agentctl version`.
func SetVersion(v, bt, gc string) {
	version = v
	buildTime = bt
	gitCommit = gc
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("agentctl version %s\n", version)
		fmt.Printf("build time: %s\n", buildTime)
		fmt.Printf("git commit: %s\n", gitCommit)
	},
}
