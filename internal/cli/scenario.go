package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/quietroom/warden/internal/scenario"
)

var (
	scenarioGlob     string
	scenarioConfig   string
	scenarioDenylist string
	scenarioFormat   string
)

func init() {
	rootCmd.AddCommand(scenarioCmd)
	scenarioCmd.Flags().StringVar(&scenarioGlob, "files", "", "Glob pattern for scenario YAML files (required)")
	scenarioCmd.Flags().StringVar(&scenarioConfig, "config", "", "Path to moderation config YAML")
	scenarioCmd.Flags().StringVar(&scenarioDenylist, "denylist", "", "Path to denylist YAML")
	scenarioCmd.Flags().StringVarP(&scenarioFormat, "format", "f", "text", "Output format (text|json)")
	scenarioCmd.MarkFlagRequired("files")
}

var scenarioCmd = &cobra.Command{
	Use:   "scenario",
	Short: "Run moderation assertions from scenario files",
	Long: "Loads scenario YAML files matching a glob pattern, evaluates each\n" +
		"message through the moderation pipeline, and reports pass/fail.\n\n" +
		"Exit code 0 if all cases pass, 1 if any fail.\n" +
		"Use in CI to gate rule changes on expected outcomes.",
	RunE: runScenario,
}

func runScenario(cmd *cobra.Command, args []string) error {
	matches, err := filepath.Glob(scenarioGlob)
	if err != nil {
		return fmt.Errorf("invalid glob pattern: %w", err)
	}
	if len(matches) == 0 {
		return fmt.Errorf("no scenario files match pattern: %s", scenarioGlob)
	}

	var results []*scenario.RunResult
	for _, path := range matches {
		r, err := scenario.LoadAndRun(path, scenarioConfig, scenarioDenylist)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		results = append(results, r)
	}

	switch scenarioFormat {
	case "json":
		out, err := scenario.FormatJSON(results)
		if err != nil {
			return err
		}
		fmt.Println(out)
	default:
		fmt.Print(scenario.FormatText(results))
	}

	for _, r := range results {
		if r.Failed > 0 {
			os.Exit(1)
		}
	}

	return nil
}
