package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/kubetable/config"
	"github.com/jpalmerr/kubetable/internal/feed"
	"github.com/jpalmerr/kubetable/internal/server"
)

// serveCmd starts the snapshot server.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve fixture snapshots",
	Long: `Start a snapshot server that pushes the configured fixtures.

The server will:
  - Load one fixture file per resource kind from the serve section
  - Stream each kind at /api/v1/resources/{kind} as Server-Sent Events,
    or over a WebSocket when the client upgrades
  - Push the full collection again whenever a fixture file changes
    (with --watch-fixtures)

The server runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  kubetable serve -c kubetable.yaml
  kubetable serve -c kubetable.yaml --port 9090 --watch-fixtures`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	serveCmd.Flags().IntP("port", "p", 0, "port to listen on (overrides serve.port)")
	serveCmd.Flags().Bool("watch-fixtures", false, "reload fixture files when they change")
	_ = serveCmd.MarkFlagRequired("config")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if len(cfg.Serve.Fixtures) == 0 {
		return fmt.Errorf("no fixtures configured")
	}

	port := cfg.Serve.Port
	if p, _ := cmd.Flags().GetInt("port"); p != 0 {
		port = p
	}

	f := feed.New()
	paths, err := loadFixtures(f, cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.NewServer(f, port, cfg.Serve.ResendInterval.Duration(), logger)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	if watch, _ := cmd.Flags().GetBool("watch-fixtures"); watch {
		files := make([]string, 0, len(paths))
		for path := range paths {
			files = append(files, path)
		}
		err := watchFiles(ctx, files, defaultDebounce, logger, func(path string) {
			if err := setFixture(f, paths[path], path, logger); err != nil {
				logger.Error("ignoring invalid fixture change", "path", path, "error", err)
			}
		})
		if err != nil {
			return err
		}
	}

	<-ctx.Done()
	logger.Info("shutdown complete")
	return nil
}

// loadFixtures publishes every configured fixture to f. It returns the
// resolved fixture paths mapped to their kinds.
func loadFixtures(f *feed.Feed, cfg *config.Config, logger *slog.Logger) (map[string]string, error) {
	kinds := make([]string, 0, len(cfg.Serve.Fixtures))
	for kind := range cfg.Serve.Fixtures {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	paths := make(map[string]string, len(kinds))
	for _, kind := range kinds {
		path := cfg.FixturePath(cfg.Serve.Fixtures[kind])
		if err := setFixture(f, kind, path, logger); err != nil {
			return nil, err
		}
		paths[path] = kind
	}
	return paths, nil
}

// setFixture loads one fixture file into f as kind.
func setFixture(f *feed.Feed, kind, path string, logger *slog.Logger) error {
	objects, err := config.LoadFixtures(path)
	if err != nil {
		return fmt.Errorf("fixtures[%s]: %w", kind, err)
	}
	snap, err := f.Set(kind, objects)
	if err != nil {
		return fmt.Errorf("fixtures[%s]: %w", kind, err)
	}
	logger.Info("fixture loaded", "kind", kind, "objects", len(snap.Objects), "revision", snap.Revision)
	return nil
}
