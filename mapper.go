package kubetable

import "fmt"

// Mapper turns one decoded snapshot into entries, one per resource and in
// the same order. A mapper must not fail the whole batch because of one bad
// resource; see [NewMapper].
type Mapper func([]Resource) []Entry

// RowFunc computes the kind-specific columns for one resource. The common
// columns (name, namespace, creation timestamp) are filled by the mapper.
type RowFunc func(Resource) (map[string]any, error)

// ErrorReporter receives per-resource mapping failures, typically to show a
// transient notification. Implementations must be safe for concurrent use.
type ErrorReporter interface {
	Report(r Resource, err error)
}

// ErrorReporterFunc adapts a function to [ErrorReporter].
type ErrorReporterFunc func(r Resource, err error)

// Report calls f(r, err).
func (f ErrorReporterFunc) Report(r Resource, err error) {
	f(r, err)
}

// BaseRow returns the row holding only the common columns of r.
func BaseRow(r Resource) Row {
	return Row{
		Name:              r.Name(),
		Namespace:         r.Namespace(),
		CreationTimestamp: r.CreationTimestamp(),
	}
}

// BaseMapper maps every resource to its [BaseRow].
func BaseMapper(resources []Resource) []Entry {
	entries := make([]Entry, len(resources))
	for i, r := range resources {
		entries[i] = Entry{Resource: r, Table: BaseRow(r)}
	}
	return entries
}

// NewMapper returns a [Mapper] that adds the columns computed by fn to each
// resource's base row.
//
// When fn returns an error or panics for a resource, that resource keeps its
// base row, reporter (if non-nil) is told, and the rest of the batch is
// mapped normally. A nil fn behaves like [BaseMapper].
func NewMapper(fn RowFunc, reporter ErrorReporter) Mapper {
	if fn == nil {
		return BaseMapper
	}

	return func(resources []Resource) []Entry {
		entries := make([]Entry, len(resources))
		for i, r := range resources {
			row := BaseRow(r)

			fields, err := safeRow(fn, r)
			if err != nil {
				if reporter != nil {
					reporter.Report(r, fmt.Errorf("%s/%s: %w", row.Namespace, row.Name, err))
				}
			} else {
				row.Fields = fields
			}

			entries[i] = Entry{Resource: r, Table: row}
		}
		return entries
	}
}

// safeRow calls fn with panic recovery.
func safeRow(fn RowFunc, r Resource) (fields map[string]any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			fields = nil
			err = fmt.Errorf("row mapping panicked: %v", rec)
		}
	}()
	return fn(r)
}
