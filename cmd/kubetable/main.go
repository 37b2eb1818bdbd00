// Package main is the entry point for the kubetable CLI.
//
// kubetable can be used either as a library (SDK) or as a standalone binary
// with YAML configuration. This CLI provides the standalone binary approach.
//
// Usage:
//
//	kubetable watch -c kubetable.yaml     # Watch the configured tables
//	kubetable serve -c kubetable.yaml     # Serve fixture snapshots
//	kubetable validate -c kubetable.yaml  # Validate configuration
//	kubetable version                     # Show version info
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// rootCmd is the base command when called without subcommands.
// It just displays help - actual functionality is in subcommands.
var rootCmd = &cobra.Command{
	Use:   "kubetable",
	Short: "Live, filterable tables of cluster resources",
	Long: `kubetable keeps sorted, filterable tables of cluster resources in sync
with a push channel that sends the full collection on every change.

Quick start:
  1. Create a config file (kubetable.yaml)
  2. Run: kubetable serve -c kubetable.yaml   (local fixtures)
  3. Run: kubetable watch -c kubetable.yaml

Example config:
  server: http://localhost:8080
  tables:
    - name: pods
      path: /api/v1/resources/pods
      sort: age
      descending: true
  serve:
    fixtures:
      pods: fixtures/pods.yaml`,
	SilenceUsage: true,
}

// Execute runs the root command.
// This is the main entry point called from main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		// Cobra already prints the error, just exit with code 1
		os.Exit(1)
	}
}

func main() {
	Execute()
}

// versionCmd prints version information.
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the version, commit hash, and build date of this kubetable binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "kubetable %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")
}

// newLogger creates a JSON logger on stderr for CLI use.
func newLogger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}
