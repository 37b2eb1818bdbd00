package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/kubetable"
	"github.com/jpalmerr/kubetable/internal/feed"
	"github.com/jpalmerr/kubetable/internal/health"
)

// Table is a configured store together with what it needs to start.
type Table struct {
	Config TableConfig

	Store  *kubetable.Store
	Mapper kubetable.Mapper

	// Address is the stream address the store connects to.
	Address string

	// Side and SideAddress are set when the table joins a secondary stream.
	Side        *kubetable.SideTable
	SideAddress string
}

// Start connects the side table, if any, and then the store. It returns the
// store's teardown.
func (t *Table) Start() func() {
	if t.Side != nil {
		t.Side.Start(t.SideAddress)
	}
	return t.Store.Start(t.Address, t.Mapper)
}

// Stop disconnects the store. The side table is stopped by the store's stop
// callback.
func (t *Table) Stop() {
	t.Store.Stop()
}

// Close disconnects the store for good and releases its side table.
func (t *Table) Close() {
	t.Store.Close()
	if t.Side != nil {
		t.Side.Stop()
	}
}

// Deps are the collaborators shared by every built table. Zero values fall
// back to the store defaults.
type Deps struct {
	Transport kubetable.Transport
	Logger    *slog.Logger
	Reporter  kubetable.ErrorReporter

	// Options are appended to the store options of every table.
	Options []kubetable.Option
}

// BuildTable converts a table configuration into a [Table] against server.
//
// The store gets the table name, its initial sort and query knobs, and a
// mapper computing the configured fields. When the table has a side stream,
// its side table is wired in as an extra store, a post-process merge and the
// stop callback.
func BuildTable(server string, tc TableConfig, deps Deps) (*Table, error) {
	address, err := Address(server, tc.Path, tc.Transport)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tc.Name, err)
	}

	t := &Table{
		Config:  tc,
		Mapper:  FieldMapper(tc.Fields, deps.Reporter),
		Address: address,
	}

	opts := []kubetable.Option{
		kubetable.WithName(tc.Name),
		kubetable.WithSortAscending(!tc.Descending),
	}
	if deps.Transport != nil {
		opts = append(opts, kubetable.WithTransport(deps.Transport))
	}
	if deps.Logger != nil {
		opts = append(opts, kubetable.WithLogger(deps.Logger))
	}

	if tc.Side != nil {
		t.SideAddress, err = Address(server, tc.Side.Path, tc.Transport)
		if err != nil {
			return nil, fmt.Errorf("table %s: side: %w", tc.Name, err)
		}
		sideLogger := deps.Logger
		if sideLogger != nil {
			sideLogger = sideLogger.With("store", tc.Name, "side", true)
		}
		t.Side = kubetable.NewSideTable(
			kubetable.WithSideTransport(deps.Transport),
			kubetable.WithSideLogger(sideLogger),
		)
		opts = append(opts,
			kubetable.WithExtraStores(t.Side),
			kubetable.WithPostProcess(t.Side.Merge(tc.Side.Fields...)),
			kubetable.WithStopCallback(t.Side.Stop),
		)
	}

	store, err := kubetable.NewStore(tc.Sort, append(opts, deps.Options...)...)
	if err != nil {
		return nil, fmt.Errorf("table %s: %w", tc.Name, err)
	}
	t.Store = store

	ApplyQuery(store, tc)
	return t, nil
}

// ApplyQuery sets the store's knobs from tc. It is used on startup and
// whenever the config file changes.
func ApplyQuery(s *kubetable.Store, tc TableConfig) {
	scope, ok := kubetable.ParseSearchScope(tc.Scope)
	if !ok {
		scope = kubetable.ScopeAnywhere
	}
	s.SetNamespace(tc.Namespace)
	s.SetSearch(tc.Search)
	s.SetSearchScope(scope)
	s.SetSortKey(tc.Sort)
	s.SetSortAscending(!tc.Descending)
}

// Address joins server and path into a stream address. A transport of "ws"
// or "sse" rewrites the scheme to match; an empty transport keeps the
// server's scheme.
func Address(server, path, transport string) (string, error) {
	u, err := url.Parse(strings.TrimRight(server, "/") + path)
	if err != nil {
		return "", fmt.Errorf("invalid address: %w", err)
	}

	switch transport {
	case "ws":
		switch u.Scheme {
		case "http":
			u.Scheme = "ws"
		case "https":
			u.Scheme = "wss"
		}
	case "sse":
		switch u.Scheme {
		case "ws":
			u.Scheme = "http"
		case "wss":
			u.Scheme = "https"
		}
	case "":
	default:
		return "", fmt.Errorf("unknown transport %q", transport)
	}

	return u.String(), nil
}

// FieldMapper returns a mapper adding one column per entry of fields, each
// read from a dotted path into the resource. Absent paths leave the column
// out; a path running through a non-object is reported as a mapping error.
func FieldMapper(fields map[string]string, reporter kubetable.ErrorReporter) kubetable.Mapper {
	if len(fields) == 0 {
		return kubetable.BaseMapper
	}

	// sort columns for deterministic error reporting
	columns := make([]string, 0, len(fields))
	for c := range fields {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	return kubetable.NewMapper(func(r kubetable.Resource) (map[string]any, error) {
		row := make(map[string]any, len(columns))
		for _, c := range columns {
			v, err := lookupField(r, fields[c])
			if err != nil {
				return nil, fmt.Errorf("column %s: %w", c, err)
			}
			if v != nil {
				row[c] = v
			}
		}
		return row, nil
	}, reporter)
}

// lookupField resolves a dotted path such as "status.phase".
func lookupField(r kubetable.Resource, path string) (any, error) {
	var current any = map[string]any(r)
	for _, part := range strings.Split(path, ".") {
		if current == nil {
			return nil, nil
		}
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%s: %q is not an object", path, part)
		}
		current = obj[part]
	}
	return current, nil
}

// BuildHealth converts the health section into a monitor configuration.
// ok is false when monitoring is disabled.
func BuildHealth(hc HealthConfig) (cfg health.Config, ok bool) {
	if hc.URL == "" {
		return health.Config{}, false
	}

	cfg = health.Config{
		URL:      hc.URL,
		Headers:  hc.Headers,
		Interval: hc.Interval.Duration(),
		Timeout:  hc.Timeout.Duration(),
	}

	switch hc.Extractor.Type {
	case "http":
		cfg.Extractor = health.HTTPStatus
	case "json":
		cfg.Extractor = health.JSONField(hc.Extractor.Path)
	}
	// nil extractor means health.DefaultExtractor
	return cfg, true
}

// LoadFixtures reads a fixture file: a YAML or JSON list of objects, or an
// object whose "items" key holds that list.
func LoadFixtures(path string) ([]feed.Object, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture file: %w", err)
	}
	return ParseFixtures(data)
}

// ParseFixtures parses fixture data; see [LoadFixtures].
func ParseFixtures(data []byte) ([]feed.Object, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse fixtures: %w", err)
	}

	raw = keepTimestampText(raw)

	if list, ok := raw.(map[string]any); ok {
		raw = list["items"]
	}

	switch items := raw.(type) {
	case nil:
		return []feed.Object{}, nil
	case []any:
		objects := make([]feed.Object, 0, len(items))
		for i, item := range items {
			obj, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("fixtures[%d]: expected an object, got %T", i, item)
			}
			objects = append(objects, obj)
		}
		return objects, nil
	default:
		return nil, errors.New("fixtures must be a list of objects or an object with items")
	}
}

// keepTimestampText turns the time.Time values yaml.v3 decodes from
// unquoted timestamps back into RFC 3339 strings, as they appear on the
// wire.
func keepTimestampText(v any) any {
	switch x := v.(type) {
	case time.Time:
		return x.Format(time.RFC3339Nano)
	case map[string]any:
		for k, item := range x {
			x[k] = keepTimestampText(item)
		}
	case []any:
		for i, item := range x {
			x[i] = keepTimestampText(item)
		}
	}
	return v
}
