package kubetable

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/kubetable/internal/signal"
	"github.com/jpalmerr/kubetable/internal/ticker"
)

// View is the derived, visible state of a store.
type View struct {
	// Entries are the filtered, age-refreshed, sorted entries.
	Entries []Entry

	// Total is the number of entries in the snapshot before filtering.
	Total int

	// Revision fingerprints the payload behind the snapshot. It is zero
	// until the first snapshot arrives.
	Revision uint64
}

// Store keeps the latest snapshot of one resource kind and publishes its
// derived [View] to subscribers.
//
// A Store is created with [NewStore], connected with [Store.Start] and
// released with [Store.Stop]. The filter and sort knobs may be changed at any
// time; every change recomputes the view before the setter returns. All
// methods are safe for concurrent use.
//
// Subscriber callbacks run one at a time. A callback may call store methods,
// including setters; the resulting view is delivered after the callback
// returns.
type Store struct {
	name         string
	transport    Transport
	postProcess  PostProcessFunc
	stopCallback func()
	tickInterval time.Duration
	clock        func() time.Time
	logger       *slog.Logger

	mu             sync.Mutex
	snapshot       []Entry
	revision       uint64
	hasSnapshot    bool
	query          Query
	gen            uint64
	publishedTotal int
	session        *session
	unwatch        []func()

	view  *signal.Value[View]
	total *signal.Value[int]
}

// session is one Start..Stop lifetime.
type session struct {
	address string
	stream  Stream
	cancel  context.CancelFunc
	ticker  *ticker.Ticker
}

// NewStore creates a [Store] sorted by sortKey.
//
// The store starts with an empty snapshot, no namespace filter, no search
// text and [ScopeAnywhere]. Construction does no I/O.
//
// Returns an error if sortKey is empty or any option is invalid.
//
// Example:
//
//	deployments, err := kubetable.NewStore("name",
//	    kubetable.WithName("deployments"),
//	    kubetable.WithLogger(logger),
//	)
func NewStore(sortKey string, opts ...Option) (*Store, error) {
	if sortKey == "" {
		return nil, errors.New("sort key is required")
	}

	cfg := defaultStoreConfig()
	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.name != "" {
		logger = logger.With("store", cfg.name)
	}

	transport := cfg.transport
	if transport == nil {
		transport = DefaultTransport(logger)
	}

	s := &Store{
		name:         cfg.name,
		transport:    transport,
		postProcess:  cfg.postProcess,
		stopCallback: cfg.stopCallback,
		tickInterval: cfg.tickInterval,
		clock:        cfg.clock,
		logger:       logger,
		query: Query{
			Scope:     ScopeAnywhere,
			SortKey:   sortKey,
			Ascending: cfg.ascending,
		},
		view:  signal.New(View{Entries: []Entry{}}, logger),
		total: signal.New(0, logger),
	}

	for _, extra := range cfg.extras {
		s.unwatch = append(s.unwatch, extra.Watch(s.recompute))
	}

	return s, nil
}

// Start opens the push channel at address and starts the age ticker.
//
// Each message is decoded as a JSON array, turned into entries by mapper
// (nil means [BaseMapper]) and replaces the snapshot. A message that fails
// to decode or map is logged and the previous snapshot is kept.
//
// Start is idempotent: while the store is started, further calls do nothing
// and return a no-op teardown. If the transport refuses the address, the
// error is logged, the store stays stopped and a no-op teardown is returned.
//
// The returned teardown stops the ticker and the store, unless the store has
// since been stopped and started again, in which case it does nothing.
func (s *Store) Start(address string, mapper Mapper) (teardown func()) {
	noop := func() {}
	if mapper == nil {
		mapper = BaseMapper
	}

	s.mu.Lock()
	if s.session != nil {
		s.mu.Unlock()
		return noop
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := s.transport.Open(ctx, address)
	if err != nil {
		s.mu.Unlock()
		cancel()
		s.logger.Error("failed to open stream", "address", address, "error", err)
		return noop
	}

	sess := &session{
		address: address,
		stream:  stream,
		cancel:  cancel,
		ticker:  ticker.New(s.tickInterval, s.recompute, s.logger),
	}
	s.session = sess
	s.mu.Unlock()

	s.logger.Info("store started", "address", address)

	go s.consume(sess, mapper)
	sess.ticker.Start()

	return func() {
		sess.ticker.Stop()
		s.stop(sess)
	}
}

// Stop closes the push channel and stops the age ticker, calling the stop
// callback first. Stop is safe to call before Start and any number of times;
// only the first call after a Start does anything.
func (s *Store) Stop() {
	s.stop(nil)
}

// Close stops the store and cancels its watches on extra stores, which
// otherwise keep a discarded store reachable for as long as they live.
// Close is idempotent. The store keeps its last view and its knobs, but
// extra stores no longer trigger recomputes; use Stop for a store that will
// be started again.
func (s *Store) Close() {
	s.stop(nil)

	s.mu.Lock()
	unwatch := s.unwatch
	s.unwatch = nil
	s.mu.Unlock()

	for _, cancel := range unwatch {
		cancel()
	}
}

// Started reports whether the store has an open session.
func (s *Store) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session != nil
}

// stop ends the current session. When only is non-nil, the session is ended
// only if it is still the current one.
func (s *Store) stop(only *session) {
	s.mu.Lock()
	sess := s.session
	if sess == nil || (only != nil && sess != only) {
		s.mu.Unlock()
		return
	}
	s.session = nil
	s.mu.Unlock()

	if s.stopCallback != nil {
		s.safeCall("stop callback", s.stopCallback)
	}
	sess.ticker.Stop()
	sess.cancel()
	if err := sess.stream.Close(); err != nil {
		s.logger.Warn("failed to close stream", "address", sess.address, "error", err)
	}

	s.logger.Info("store stopped", "address", sess.address)
}

// consume applies every message of the session's stream until it ends.
func (s *Store) consume(sess *session, mapper Mapper) {
	for payload := range sess.stream.Messages() {
		s.apply(sess, mapper, payload)
	}

	s.mu.Lock()
	current := s.session == sess
	s.mu.Unlock()

	// a stream that ends on its own leaves the store started; reconnecting
	// is up to the caller
	if current {
		s.logger.Warn("stream ended", "address", sess.address)
	}
}

// apply replaces the snapshot with the one carried by payload and
// recomputes the view.
func (s *Store) apply(sess *session, mapper Mapper, payload []byte) {
	sum := digest(payload)

	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return
	}
	unchanged := s.hasSnapshot && s.revision == sum
	s.mu.Unlock()

	if !unchanged {
		resources, err := decodeSnapshot(payload)
		if err != nil {
			s.logger.Warn("dropping malformed snapshot", "address", sess.address, "error", err)
			return
		}

		entries, err := s.safeMap(mapper, resources)
		if err != nil {
			s.logger.Error("dropping snapshot", "address", sess.address, "error", err)
			return
		}

		s.mu.Lock()
		if s.session != sess {
			s.mu.Unlock()
			return
		}
		s.snapshot = entries
		s.revision = sum
		s.hasSnapshot = true
		s.mu.Unlock()

		s.logger.Debug("snapshot applied",
			"address", sess.address,
			"resources", len(entries),
			"revision", fmt.Sprintf("%016x", sum),
		)
	}

	s.recompute()
}

// recompute derives the view from the current state and publishes it.
// Views computed concurrently are published in generation order; a view
// computed from older state never replaces a newer one.
func (s *Store) recompute() {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	snapshot := s.snapshot
	q := s.query
	revision := s.revision
	totalChanged := len(snapshot) != s.publishedTotal
	s.publishedTotal = len(snapshot)
	s.mu.Unlock()

	entries, err := Compose(snapshot, q, s.clock(), s.postProcess)
	if err != nil {
		s.logger.Error("post-process failed", "error", err)
	}

	s.view.Offer(gen, View{Entries: entries, Total: len(snapshot), Revision: revision})
	if totalChanged {
		s.total.Offer(gen, len(snapshot))
	}
}

// safeMap calls mapper with panic recovery. A mapper may leave out
// resources it cannot map; its output is used as is.
func (s *Store) safeMap(mapper Mapper, resources []Resource) (entries []Entry, err error) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()
			s.logger.Error("mapper panicked",
				"correlation_id", correlationID,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)
			entries = nil
			err = fmt.Errorf("mapper panic (correlation_id: %s)", correlationID)
		}
	}()

	entries = mapper(resources)
	if len(entries) != len(resources) {
		s.logger.Debug("mapper skipped resources", "resources", len(resources), "entries", len(entries))
	}
	if entries == nil {
		entries = []Entry{}
	}
	return entries, nil
}

// safeCall runs fn with panic recovery.
func (s *Store) safeCall(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(what+" panicked",
				"correlation_id", uuid.NewString(),
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	fn()
}

// update applies fn to the query under the lock and recomputes.
func (s *Store) update(fn func(q *Query)) {
	s.mu.Lock()
	fn(&s.query)
	s.mu.Unlock()
	s.recompute()
}

// SortByKey sorts by key. Sorting by the current key flips the direction;
// sorting by a new key selects it ascending.
func (s *Store) SortByKey(key string) {
	s.update(func(q *Query) {
		if q.SortKey == key {
			q.Ascending = !q.Ascending
			return
		}
		q.SortKey = key
		q.Ascending = true
	})
}

// SetNamespace filters the view to one namespace. Empty shows all.
func (s *Store) SetNamespace(ns string) {
	s.update(func(q *Query) { q.Namespace = ns })
}

// Namespace returns the namespace filter.
func (s *Store) Namespace() string {
	return s.Query().Namespace
}

// SetSearch filters the view to entries containing text. Empty shows all.
func (s *Store) SetSearch(text string) {
	s.update(func(q *Query) { q.Search = text })
}

// Search returns the search text.
func (s *Store) Search() string {
	return s.Query().Search
}

// SetSearchScope selects what the search text is matched against. Unknown
// scopes fall back to [ScopeAnywhere].
func (s *Store) SetSearchScope(scope SearchScope) {
	if parsed, ok := ParseSearchScope(string(scope)); ok {
		scope = parsed
	} else {
		scope = ScopeAnywhere
	}
	s.update(func(q *Query) { q.Scope = scope })
}

// SearchScope returns the search scope.
func (s *Store) SearchScope() SearchScope {
	return s.Query().Scope
}

// SetSortKey sets the sort column without touching the direction.
func (s *Store) SetSortKey(key string) {
	s.update(func(q *Query) { q.SortKey = key })
}

// SortKey returns the sort column.
func (s *Store) SortKey() string {
	return s.Query().SortKey
}

// SetSortAscending sets the sort direction.
func (s *Store) SetSortAscending(ascending bool) {
	s.update(func(q *Query) { q.Ascending = ascending })
}

// SortAscending reports whether the view is sorted ascending.
func (s *Store) SortAscending() bool {
	return s.Query().Ascending
}

// Query returns a copy of the current filter and sort state.
func (s *Store) Query() Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query
}

// Subscribe registers fn for every new view and returns a function that
// removes it. fn receives the current view immediately. Subscribers are
// independent: removing one does not affect the others.
func (s *Store) Subscribe(fn func(View)) (unsubscribe func()) {
	return s.view.Subscribe(fn)
}

// SubscribeTotal registers fn for changes of the pre-filter entry count.
// fn receives the current count immediately.
func (s *Store) SubscribeTotal(fn func(int)) (unsubscribe func()) {
	return s.total.Subscribe(fn)
}

// Watch calls fn on every new view. It makes a Store usable as an extra
// store of another Store.
func (s *Store) Watch(fn func()) (cancel func()) {
	return s.view.Watch(fn)
}

// View returns the current view.
func (s *Store) View() View {
	return s.view.Get()
}
