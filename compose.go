package kubetable

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// PostProcessFunc augments filtered entries before they are sorted, for
// example by merging side-channel data keyed by namespace and name. It
// receives copies and may modify rows freely.
type PostProcessFunc func([]Entry) []Entry

// Query is the filter and sort state applied by [Compose].
type Query struct {
	// Namespace keeps only entries in this namespace. Empty keeps all.
	Namespace string

	// Search keeps only entries whose haystack contains this text,
	// case-insensitively. Empty keeps all.
	Search string

	// Scope selects the haystack for Search.
	Scope SearchScope

	// SortKey is the row column to sort by.
	SortKey string

	// Ascending sorts lowest first when true.
	Ascending bool
}

// Compose derives the visible view of snapshot at time now.
//
// Compose never modifies snapshot: surviving rows are copied before their
// ages are refreshed and before post is called. The returned error is
// non-nil only when post panicked; the entries are then the filtered,
// un-post-processed ones, still sorted, so the caller can log and carry on.
func Compose(snapshot []Entry, q Query, now time.Time, post PostProcessFunc) ([]Entry, error) {
	needle := strings.ToLower(q.Search)

	out := make([]Entry, 0, len(snapshot))
	for _, e := range snapshot {
		if q.Namespace != "" && e.Resource.Namespace() != q.Namespace {
			continue
		}
		if needle != "" && !strings.Contains(strings.ToLower(haystack(e, q.Scope)), needle) {
			continue
		}

		row := e.Table.clone()
		row.Age = AgeOf(row.CreationTimestamp, now)
		out = append(out, Entry{Resource: e.Resource, Table: row})
	}

	var err error
	if post != nil {
		out, err = runPostProcess(post, out)
	}

	sortEntries(out, q.SortKey, q.Ascending)
	return out, err
}

// haystack returns the text a search is matched against.
func haystack(e Entry, scope SearchScope) string {
	switch scope {
	case ScopeName:
		return e.Resource.Name()
	case ScopeMetadata:
		return marshalString(e.Resource.Metadata())
	default:
		return marshalString(e)
	}
}

// runPostProcess calls post with panic recovery. On panic the input is
// returned unchanged along with an error describing the panic.
func runPostProcess(post PostProcessFunc, in []Entry) (out []Entry, err error) {
	// post may mutate rows in place before panicking; hand it its own copy
	backup := make([]Entry, len(in))
	for i, e := range in {
		backup[i] = Entry{Resource: e.Resource, Table: e.Table.clone()}
	}

	defer func() {
		if r := recover(); r != nil {
			out = backup
			err = fmt.Errorf("post-process panicked: %v", r)
		}
	}()
	return post(in), nil
}

// sortEntries stable-sorts entries in place by the column key.
func sortEntries(entries []Entry, key string, ascending bool) {
	if len(entries) < 2 {
		return
	}

	type keyed struct {
		entry Entry
		key   sortKey
	}
	tmp := make([]keyed, len(entries))
	for i, e := range entries {
		tmp[i] = keyed{entry: e, key: resolveSortKey(e.Table.Value(key))}
	}

	slices.SortStableFunc(tmp, func(a, b keyed) int {
		c := compareKeys(a.key, b.key)
		if !ascending {
			c = -c
		}
		return c
	})

	for i := range tmp {
		entries[i] = tmp[i].entry
	}
}
