// Package feed holds the resource collections served by the snapshot server.
//
// A [Feed] keeps one [Snapshot] per resource kind and fans every change out
// to subscribers. Subscribers receive updates via buffered channels with
// non-blocking sends: a slow subscriber misses intermediate snapshots rather
// than blocking the feed. Since each snapshot is the full collection, a
// missed one is superseded by the next.
package feed
