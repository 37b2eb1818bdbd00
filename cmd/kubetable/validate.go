package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/kubetable/config"
)

// validateCmd validates a config file without connecting to anything.
var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a config file",
	Long: `Validate a kubetable configuration file without connecting to the server.

This command parses the YAML, expands environment variables, validates
all fields and checks that every fixture file parses. It's useful for
CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Config is valid
  1 - Config is invalid (error details printed to stderr)

Example:
  kubetable validate -c kubetable.yaml`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	_ = validateCmd.MarkFlagRequired("config")
}

func runValidate(cmd *cobra.Command, args []string) error {
	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	kinds := make([]string, 0, len(cfg.Serve.Fixtures))
	for kind := range cfg.Serve.Fixtures {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	objects := 0
	for _, kind := range kinds {
		fixtures, err := config.LoadFixtures(cfg.FixturePath(cfg.Serve.Fixtures[kind]))
		if err != nil {
			return fmt.Errorf("invalid config: fixtures[%s]: %w", kind, err)
		}
		objects += len(fixtures)
	}

	healthURL := "disabled"
	if cfg.Health.URL != "" {
		healthURL = cfg.Health.URL
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  Server:   %s\n", cfg.Server)
	fmt.Fprintf(out, "  Health:   %s\n", healthURL)
	fmt.Fprintf(out, "  Tables:   %d\n", len(cfg.Tables))
	for _, t := range cfg.Tables {
		order := "asc"
		if t.Descending {
			order = "desc"
		}
		fmt.Fprintf(out, "    - %s (%s, sort=%s %s)\n", t.Name, t.Path, t.Sort, order)
	}
	fmt.Fprintf(out, "  Fixtures: %d kinds, %d objects\n", len(kinds), objects)

	return nil
}
