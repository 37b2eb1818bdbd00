package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/jpalmerr/kubetable/internal/feed"
)

var (
	namespaces = []string{"default", "kube-system", "payments"}
	phases     = []string{"Pending", "Running", "Running", "Running", "Succeeded", "Failed"}
)

// mockCluster churns pods and their metrics through a feed so the example
// has something to watch. Every 1-3 seconds a pod is created, deleted or
// moved to another phase.
type mockCluster struct {
	feed   *feed.Feed
	logger *slog.Logger

	mu   sync.Mutex
	next int
	pods map[string]feed.Object
}

func newMockCluster(logger *slog.Logger) *mockCluster {
	c := &mockCluster{
		feed:   feed.New(),
		logger: logger,
		pods:   make(map[string]feed.Object),
	}
	for i := 0; i < 6; i++ {
		c.create()
	}
	c.publish()
	return c
}

// run churns the cluster until ctx is cancelled.
func (c *mockCluster) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Duration(1000+rand.Intn(2000)) * time.Millisecond):
		}

		c.mu.Lock()
		switch n := rand.Intn(10); {
		case n < 3 || len(c.pods) < 3:
			c.create()
		case n < 5:
			c.delete()
		default:
			c.transition()
		}
		c.mu.Unlock()
		c.publish()
	}
}

// create adds a pod; callers hold mu except during construction.
func (c *mockCluster) create() {
	c.next++
	ns := namespaces[rand.Intn(len(namespaces))]
	name := fmt.Sprintf("web-%03d", c.next)
	c.pods[ns+"/"+name] = feed.Object{
		"metadata": map[string]any{
			"name":              name,
			"namespace":         ns,
			"creationTimestamp": time.Now().UTC().Format(time.RFC3339),
		},
		"status": map[string]any{"phase": "Pending"},
	}
	c.logger.Info("pod created", "namespace", ns, "name", name)
}

func (c *mockCluster) delete() {
	for key := range c.pods {
		delete(c.pods, key)
		c.logger.Info("pod deleted", "pod", key)
		return
	}
}

func (c *mockCluster) transition() {
	for key, pod := range c.pods {
		phase := phases[rand.Intn(len(phases))]
		updated := feed.Object{
			"metadata": pod["metadata"],
			"status":   map[string]any{"phase": phase},
		}
		c.pods[key] = updated
		c.logger.Info("pod phase changed", "pod", key, "to", phase)
		return
	}
}

// publish pushes the full pod and metrics collections.
func (c *mockCluster) publish() {
	c.mu.Lock()
	pods := make([]feed.Object, 0, len(c.pods))
	metrics := make([]feed.Object, 0, len(c.pods))
	for _, pod := range c.pods {
		pods = append(pods, pod)
		metrics = append(metrics, feed.Object{
			"metadata": pod["metadata"],
			"cpu":      50 + rand.Intn(950),
			"memory":   64 + rand.Intn(960),
		})
	}
	c.mu.Unlock()

	if _, err := c.feed.Set("pods", pods); err != nil {
		c.logger.Error("failed to publish pods", "error", err)
	}
	if _, err := c.feed.Set("podmetrics", metrics); err != nil {
		c.logger.Error("failed to publish metrics", "error", err)
	}
}
