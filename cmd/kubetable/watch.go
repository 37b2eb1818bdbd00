package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/kubetable"
	"github.com/jpalmerr/kubetable/config"
	"github.com/jpalmerr/kubetable/internal/health"
)

// watchCmd keeps the configured tables in sync and prints them.
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the configured tables",
	Long: `Connect to the configured server and print each table whenever it changes.

The command will:
  - Start one store per configured table (or per --table)
  - Redraw a table at most once per --refresh when its view changed
  - Restart all stores when the health monitor sees the server recover
  - Re-apply namespace, search and sort settings when the config file
    changes (with --follow-config)

The command runs until interrupted (Ctrl+C) or receives SIGTERM.

Example:
  kubetable watch -c kubetable.yaml
  kubetable watch -c kubetable.yaml --table pods --follow-config`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().StringP("config", "c", "", "path to config file (required)")
	watchCmd.Flags().StringSliceP("table", "t", nil, "tables to watch (default: all)")
	watchCmd.Flags().Bool("follow-config", false, "re-apply table settings when the config file changes")
	watchCmd.Flags().Duration("refresh", time.Second, "minimum time between redraws")
	_ = watchCmd.MarkFlagRequired("config")
}

func runWatch(cmd *cobra.Command, args []string) error {
	logger := newLogger(cmd)

	configFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	names, _ := cmd.Flags().GetStringSlice("table")
	selected, err := selectTables(cfg, names)
	if err != nil {
		return err
	}

	refresh, _ := cmd.Flags().GetDuration("refresh")
	if refresh <= 0 {
		return fmt.Errorf("refresh must be positive, got %s", refresh)
	}

	b, err := newBoard(cfg.Server, selected, config.Deps{
		Logger:   logger,
		Reporter: mappingReporter(logger),
	}, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("watching tables", "server", cfg.Server, "tables", len(selected))
	b.start()
	defer b.stop()

	if hc, ok := config.BuildHealth(cfg.Health); ok {
		monitor, err := health.NewMonitor(hc, logger)
		if err != nil {
			return fmt.Errorf("failed to create health monitor: %w", err)
		}
		monitor.OnChange(func(c health.Change) {
			logger.Info("server health changed", "from", c.From, "to", c.To, "status_code", c.Result.StatusCode)
		})
		// the server sends a full snapshot on connect, so reconnecting is
		// all it takes to catch up after an outage
		monitor.OnRecover(b.restart)
		monitor.Start(ctx)
		defer monitor.Stop()
	}

	if follow, _ := cmd.Flags().GetBool("follow-config"); follow {
		err := watchFiles(ctx, []string{configFile}, defaultDebounce, logger, func(path string) {
			updated, err := config.Load(path)
			if err != nil {
				logger.Error("ignoring invalid config change", "path", path, "error", err)
				return
			}
			b.reload(updated)
		})
		if err != nil {
			return err
		}
	}

	ticker := time.NewTicker(refresh)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-ctx.Done():
			logger.Info("shutdown complete")
			return nil
		}
	}
}

// selectTables returns the named tables, or all tables when names is empty.
func selectTables(cfg *config.Config, names []string) ([]config.TableConfig, error) {
	if len(names) == 0 {
		if len(cfg.Tables) == 0 {
			return nil, fmt.Errorf("no tables configured")
		}
		return cfg.Tables, nil
	}

	selected := make([]config.TableConfig, 0, len(names))
	for _, name := range names {
		tc, ok := cfg.Table(name)
		if !ok {
			return nil, fmt.Errorf("unknown table %q", name)
		}
		selected = append(selected, tc)
	}
	return selected, nil
}

// mappingReporter logs resources that failed to map.
func mappingReporter(logger *slog.Logger) kubetable.ErrorReporter {
	return kubetable.ErrorReporterFunc(func(r kubetable.Resource, err error) {
		logger.Warn("failed to map resource",
			"name", r.Name(),
			"namespace", r.Namespace(),
			"error", err,
		)
	})
}

// board owns the running tables and redraws the ones whose view changed.
type board struct {
	out    io.Writer
	tables []*config.Table
	unsubs []func()

	mu    sync.Mutex
	dirty map[string]bool
	cols  map[string][]string
}

func newBoard(server string, tables []config.TableConfig, deps config.Deps, out io.Writer) (*board, error) {
	b := &board{
		out:   out,
		dirty: make(map[string]bool, len(tables)),
		cols:  make(map[string][]string, len(tables)),
	}

	for _, tc := range tables {
		t, err := config.BuildTable(server, tc, deps)
		if err != nil {
			b.stop()
			return nil, err
		}
		b.tables = append(b.tables, t)
		b.cols[tc.Name] = tc.Columns

		name := tc.Name
		b.unsubs = append(b.unsubs, t.Store.Subscribe(func(kubetable.View) {
			b.mu.Lock()
			b.dirty[name] = true
			b.mu.Unlock()
		}))
	}
	return b, nil
}

func (b *board) start() {
	for _, t := range b.tables {
		t.Start()
	}
}

func (b *board) stop() {
	for _, unsub := range b.unsubs {
		unsub()
	}
	b.unsubs = nil
	for _, t := range b.tables {
		t.Close()
	}
}

// restart reconnects every table.
func (b *board) restart() {
	for _, t := range b.tables {
		t.Stop()
		t.Start()
	}
}

// reload applies the query settings and columns of cfg to the running
// tables. Tables missing from cfg keep their settings; new tables are not
// started.
func (b *board) reload(cfg *config.Config) {
	for _, t := range b.tables {
		tc, ok := cfg.Table(t.Config.Name)
		if !ok {
			continue
		}
		config.ApplyQuery(t.Store, tc)

		b.mu.Lock()
		b.cols[tc.Name] = tc.Columns
		b.dirty[tc.Name] = true
		b.mu.Unlock()
	}
}

// flush draws every table whose view changed since the last flush.
func (b *board) flush() {
	for _, t := range b.tables {
		name := t.Config.Name

		b.mu.Lock()
		dirty := b.dirty[name]
		b.dirty[name] = false
		columns := b.cols[name]
		b.mu.Unlock()

		if !dirty {
			continue
		}
		fmt.Fprintln(b.out, renderView(name, columns, t.Store.Query(), t.Store.View()))
	}
}
