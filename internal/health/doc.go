// Package health watches the connectivity of the cluster API that feeds the
// resource stores.
//
// Stores never reconnect on their own: when a push channel drops, they keep
// their last snapshot. A [Monitor] probes a health URL on a fixed interval and
// reports status transitions, so the caller can restart its stores once the
// API is reachable again and the server re-pushes full snapshots.
//
// The main components are:
//
//   - [Monitor]: periodic prober with per-probe timeouts, a 1MB body limit,
//     and change and recovery callbacks
//   - [Extractor]: maps a probe response to a [Status]
package health
