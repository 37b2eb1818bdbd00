package kubetable

import "time"

// Resource is one raw object from a snapshot, decoded from JSON.
//
// The store only reads a resource's name, namespace and creation timestamp.
// Each is looked up under "metadata" first and then at the top level.
type Resource map[string]any

// Metadata returns the resource's metadata object, or nil.
func (r Resource) Metadata() map[string]any {
	md, _ := r["metadata"].(map[string]any)
	return md
}

// Name returns the resource name, or "".
func (r Resource) Name() string {
	return r.field("name")
}

// Namespace returns the resource namespace, or "" for cluster-scoped objects.
func (r Resource) Namespace() string {
	return r.field("namespace")
}

// CreationTimestamp parses the RFC 3339 creation timestamp. It returns the
// zero time when the field is absent or unparseable.
func (r Resource) CreationTimestamp() time.Time {
	raw := r.field("creationTimestamp")
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func (r Resource) field(key string) string {
	if md := r.Metadata(); md != nil {
		if s, ok := md[key].(string); ok {
			return s
		}
	}
	s, _ := r[key].(string)
	return s
}

// Age is the relative age of a row: Sort is the creation time in Unix
// milliseconds and Text is the bucketed display form (see [FormatAge]).
type Age struct {
	Sort int64  `json:"sort"`
	Text string `json:"text"`
}

// SortValue implements the sort-object convention used by [CompareValues].
func (a Age) SortValue() float64 {
	return float64(a.Sort)
}

// Row is the flat display record for one resource.
//
// Name, Namespace and CreationTimestamp are filled for every row. Fields
// holds the kind-specific columns added by the mapper; the store never
// interprets them beyond comparing them for sorting.
type Row struct {
	Name              string
	Namespace         string
	CreationTimestamp time.Time

	// Age is recomputed on every derivation pass. It is nil for rows whose
	// creation timestamp is missing or invalid.
	Age *Age

	Fields map[string]any
}

// Value returns the column named key. The common columns are "name",
// "namespace", "creationTimestamp" and "age"; anything else is looked up in
// Fields. Missing columns return nil.
func (r Row) Value(key string) any {
	switch key {
	case "name":
		return r.Name
	case "namespace":
		return r.Namespace
	case "creationTimestamp":
		if r.CreationTimestamp.IsZero() {
			return nil
		}
		return r.CreationTimestamp
	case "age":
		if r.Age == nil {
			return nil
		}
		return *r.Age
	}
	v, ok := r.Fields[key]
	if !ok {
		return nil
	}
	return v
}

// clone returns a copy of r whose Fields map can be modified without
// touching the original.
func (r Row) clone() Row {
	cp := r
	if r.Fields != nil {
		cp.Fields = make(map[string]any, len(r.Fields))
		for k, v := range r.Fields {
			cp.Fields[k] = v
		}
	}
	if r.Age != nil {
		age := *r.Age
		cp.Age = &age
	}
	return cp
}

// MarshalJSON flattens the row into a single object. Common columns win over
// Fields with the same name.
func (r Row) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		flat[k] = v
	}
	flat["name"] = r.Name
	if r.Namespace != "" {
		flat["namespace"] = r.Namespace
	}
	if !r.CreationTimestamp.IsZero() {
		flat["creationTimestamp"] = r.CreationTimestamp.UTC().Format(time.RFC3339)
	}
	if r.Age != nil {
		flat["age"] = r.Age
	}
	return textJSON.Marshal(flat)
}

// Entry pairs a raw resource with its display row.
type Entry struct {
	Resource Resource `json:"resource"`
	Table    Row      `json:"table"`
}

// SearchScope selects the part of an entry that a text search matches.
type SearchScope string

const (
	// ScopeAnywhere matches the serialized entry: resource and row.
	ScopeAnywhere SearchScope = "anywhere"

	// ScopeMetadata matches the serialized resource metadata only.
	ScopeMetadata SearchScope = "metadata"

	// ScopeName matches the resource name only.
	ScopeName SearchScope = "name"
)

// String returns the string representation of the scope.
func (s SearchScope) String() string {
	return string(s)
}

// ParseSearchScope converts a case-sensitive scope name. The empty string
// maps to [ScopeAnywhere].
func ParseSearchScope(s string) (SearchScope, bool) {
	switch SearchScope(s) {
	case "", ScopeAnywhere:
		return ScopeAnywhere, true
	case ScopeMetadata:
		return ScopeMetadata, true
	case ScopeName:
		return ScopeName, true
	default:
		return "", false
	}
}
