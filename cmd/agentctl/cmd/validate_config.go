package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/siemagent/agent/internal/config"
)

var validateConfigCmd = &cobra.Command{
	Use:   "validate-config <file>",
	Short: "Validate an agent configuration document without applying it",
	Long: `Reads an AgentConfig JSON document from disk and runs the same validation
the admin surface's /api/configuration/validate endpoint applies, printing
any errors and warnings. Exits non-zero when the document has validation
errors.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidateConfig,
}

func runValidateConfig(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	var candidate config.AgentConfig
	if err := json.Unmarshal(data, &candidate); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}

	result := config.Validate(candidate, nil)
	for _, e := range result.Errors {
		fmt.Printf("ERROR: %s\n", e.Error())
	}
	for _, w := range result.Warnings {
		fmt.Printf("WARNING: %s: %s\n", w.Field, w.Message)
	}

	if !result.OK() {
		return fmt.Errorf("configuration has %d validation error(s)", len(result.Errors))
	}
	fmt.Println("configuration is valid")
	if result.RestartRequired {
		fmt.Println("note: applying this document would require an agent restart")
	}
	return nil
}
