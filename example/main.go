package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/kubetable"
	"github.com/jpalmerr/kubetable/internal/server"
)

const base = "localhost:9999"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// mock cluster gateway (see mock_cluster.go)
	cluster := newMockCluster(logger)
	srv := server.NewServer(cluster.feed, 9999, 10*time.Second, logger)
	if err := srv.Start(ctx); err != nil {
		slog.Error("failed to start mock cluster", "error", err)
		os.Exit(1)
	}
	go cluster.run(ctx)

	// metrics arrive on their own stream and are joined by namespace/name
	metrics := kubetable.NewSideTable(kubetable.WithSideLogger(logger))
	metrics.Start("http://" + base + "/api/v1/resources/podmetrics")

	store, err := kubetable.NewStore("cpu",
		kubetable.WithName("pods"),
		kubetable.WithSortAscending(false),
		kubetable.WithExtraStores(metrics),
		kubetable.WithPostProcess(metrics.Merge("cpu", "memory")),
		kubetable.WithStopCallback(metrics.Stop),
		kubetable.WithLogger(logger),
	)
	if err != nil {
		slog.Error("failed to create store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	mapper := kubetable.NewMapper(func(r kubetable.Resource) (map[string]any, error) {
		status, _ := r["status"].(map[string]any)
		phase, ok := status["phase"].(string)
		if !ok {
			return nil, errors.New("pod has no phase")
		}
		return map[string]any{"phase": phase}, nil
	}, nil)

	teardown := store.Start("ws://"+base+"/api/v1/resources/pods", mapper)
	defer teardown()

	unsubscribe := store.SubscribeTotal(func(n int) {
		fmt.Printf("  %d pods visible\n", n)
	})
	defer unsubscribe()

	fmt.Println()
	fmt.Println("  kubetable demo")
	fmt.Println("  pods streamed over WebSocket, metrics over SSE, sorted by cpu")
	fmt.Println("  namespace filter switches every 10s; press Ctrl+C to stop")
	fmt.Println()

	show := time.NewTicker(3 * time.Second)
	defer show.Stop()
	switchNS := time.NewTicker(10 * time.Second)
	defer switchNS.Stop()

	filters := append([]string{""}, namespaces...)
	current := 0

	for {
		select {
		case <-show.C:
			printView(store.View())
		case <-switchNS.C:
			current = (current + 1) % len(filters)
			store.SetNamespace(filters[current])
			fmt.Printf("  namespace filter: %q\n", filters[current])
		case <-ctx.Done():
			return
		}
	}
}

func printView(v kubetable.View) {
	fmt.Printf("  %-12s %-10s %-10s %6s %6s %5s\n", "NAMESPACE", "NAME", "PHASE", "CPU", "MEM", "AGE")
	for _, e := range v.Entries {
		age := "-"
		if e.Table.Age != nil {
			age = e.Table.Age.Text
		}
		fmt.Printf("  %-12s %-10s %-10v %6v %6v %5s\n",
			e.Table.Namespace, e.Table.Name, e.Table.Value("phase"),
			e.Table.Value("cpu"), e.Table.Value("memory"), age)
	}
	fmt.Println()
}
