package kubetable

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jpalmerr/kubetable/internal/signal"
)

// SideTable holds data from a secondary push channel keyed by namespace and
// name, such as live pod metrics, for merging into a store's rows.
//
// Each message on the channel is a JSON array of objects carrying metadata
// name and namespace plus arbitrary fields; it replaces the table wholesale.
// A SideTable is usually wired to a store three ways:
//
//	metrics := kubetable.NewSideTable(kubetable.WithSideTransport(t))
//	pods, err := kubetable.NewStore("name",
//	    kubetable.WithExtraStores(metrics),
//	    kubetable.WithPostProcess(metrics.Merge("cpu", "memory")),
//	    kubetable.WithStopCallback(metrics.Stop),
//	)
//
// SideTable is safe for concurrent use.
type SideTable struct {
	transport Transport
	logger    *slog.Logger

	mu      sync.Mutex
	rows    map[string]map[string]any
	stream  Stream
	cancel  context.CancelFunc
	changed *signal.Value[uint64]
	gen     uint64
}

// SideTableOption configures a [SideTable].
type SideTableOption func(*SideTable)

// WithSideTransport sets the transport used by [SideTable.Start]. Defaults to
// [DefaultTransport].
func WithSideTransport(t Transport) SideTableOption {
	return func(st *SideTable) {
		if t != nil {
			st.transport = t
		}
	}
}

// WithSideLogger sets the logger of a [SideTable].
func WithSideLogger(logger *slog.Logger) SideTableOption {
	return func(st *SideTable) {
		if logger != nil {
			st.logger = logger
		}
	}
}

// NewSideTable creates an empty [SideTable].
func NewSideTable(opts ...SideTableOption) *SideTable {
	st := &SideTable{
		logger: slog.Default(),
		rows:   map[string]map[string]any{},
	}
	for _, opt := range opts {
		opt(st)
	}
	if st.transport == nil {
		st.transport = DefaultTransport(st.logger)
	}
	st.changed = signal.New[uint64](0, st.logger)
	return st
}

// Start opens the secondary channel at address. It is a no-op while started.
// Open failures are logged and leave the table stopped.
func (st *SideTable) Start(address string) {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.stream != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := st.transport.Open(ctx, address)
	if err != nil {
		cancel()
		st.logger.Error("failed to open side stream", "address", address, "error", err)
		return
	}
	st.stream = stream
	st.cancel = cancel

	go st.consume(stream, address)
}

// Stop closes the secondary channel and clears the table. It is safe to call
// before Start and more than once.
func (st *SideTable) Stop() {
	st.mu.Lock()
	stream, cancel := st.stream, st.cancel
	st.stream, st.cancel = nil, nil
	if stream == nil {
		st.mu.Unlock()
		return
	}
	st.rows = map[string]map[string]any{}
	st.gen++
	gen := st.gen
	st.mu.Unlock()

	cancel()
	if err := stream.Close(); err != nil {
		st.logger.Warn("failed to close side stream", "error", err)
	}
	st.changed.Offer(gen, gen)
}

func (st *SideTable) consume(stream Stream, address string) {
	for payload := range stream.Messages() {
		resources, err := decodeSnapshot(payload)
		if err != nil {
			st.logger.Warn("dropping malformed side snapshot", "address", address, "error", err)
			continue
		}

		rows := make(map[string]map[string]any, len(resources))
		for _, r := range resources {
			fields := make(map[string]any, len(r))
			for k, v := range r {
				if k != "metadata" {
					fields[k] = v
				}
			}
			rows[sideKey(r.Namespace(), r.Name())] = fields
		}

		st.mu.Lock()
		if st.stream != stream {
			st.mu.Unlock()
			return
		}
		st.rows = rows
		st.gen++
		gen := st.gen
		st.mu.Unlock()

		st.changed.Offer(gen, gen)
	}
}

// Lookup returns the fields held for the named resource.
func (st *SideTable) Lookup(namespace, name string) (map[string]any, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	fields, ok := st.rows[sideKey(namespace, name)]
	return fields, ok
}

// Len returns the number of resources in the table.
func (st *SideTable) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.rows)
}

// Watch calls fn whenever the table changes, and once on registration.
func (st *SideTable) Watch(fn func()) (cancel func()) {
	return st.changed.Watch(fn)
}

// Merge returns a post-process hook that copies the named fields from the
// table into each entry's row. Entries with no table data are left as they
// are; with no fields named, every field is copied.
func (st *SideTable) Merge(fields ...string) PostProcessFunc {
	return func(entries []Entry) []Entry {
		st.mu.Lock()
		defer st.mu.Unlock()

		for i := range entries {
			data, ok := st.rows[sideKey(entries[i].Table.Namespace, entries[i].Table.Name)]
			if !ok {
				continue
			}
			if entries[i].Table.Fields == nil {
				entries[i].Table.Fields = make(map[string]any, len(data))
			}
			if len(fields) == 0 {
				for k, v := range data {
					entries[i].Table.Fields[k] = v
				}
				continue
			}
			for _, f := range fields {
				if v, ok := data[f]; ok {
					entries[i].Table.Fields[f] = v
				}
			}
		}
		return entries
	}
}

func sideKey(namespace, name string) string {
	return namespace + "/" + name
}
