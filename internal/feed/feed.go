package feed

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/zeebo/xxh3"
)

// subscriberBuffer is the channel capacity of each subscription.
const subscriberBuffer = 16

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Object is one raw resource as decoded from JSON or YAML.
type Object = map[string]any

// Snapshot is the full collection of one resource kind.
type Snapshot struct {
	// Kind is the resource kind, e.g. "pods".
	Kind string

	// Objects is the collection in serving order. Treat it as read-only.
	Objects []Object

	// Payload is Objects encoded as a JSON array.
	Payload []byte

	// Revision is the xxh3 digest of Payload.
	Revision uint64

	// UpdatedAt is when the collection last changed.
	UpdatedAt time.Time
}

// Feed is an in-memory registry of snapshots keyed by kind, with pub/sub.
// It is safe for concurrent use.
type Feed struct {
	mu        sync.RWMutex
	snapshots map[string]Snapshot

	// writeMu serializes read-modify-write updates
	writeMu sync.Mutex

	subMu       sync.RWMutex
	subscribers map[chan Snapshot]string
}

// New creates an empty [Feed].
func New() *Feed {
	return &Feed{
		snapshots:   make(map[string]Snapshot),
		subscribers: make(map[chan Snapshot]string),
	}
}

// Set replaces the collection of kind. Subscribers of kind are notified
// unless the encoded collection is identical to the current one.
func (f *Feed) Set(kind string, objects []Object) (Snapshot, error) {
	if kind == "" {
		return Snapshot{}, errors.New("kind is required")
	}
	if objects == nil {
		objects = []Object{}
	}

	payload, err := json.Marshal(objects)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to encode %s: %w", kind, err)
	}

	snap := Snapshot{
		Kind:      kind,
		Objects:   objects,
		Payload:   payload,
		Revision:  xxh3.Hash(payload),
		UpdatedAt: time.Now(),
	}

	f.mu.Lock()
	prev, ok := f.snapshots[kind]
	if ok && prev.Revision == snap.Revision {
		f.mu.Unlock()
		return prev, nil
	}
	f.snapshots[kind] = snap
	f.mu.Unlock()

	f.notify(snap)
	return snap, nil
}

// Upsert adds obj to kind, replacing an object with the same namespace and
// name.
func (f *Feed) Upsert(kind string, obj Object) (Snapshot, error) {
	ns, name := objectKey(obj)
	if name == "" {
		return Snapshot{}, errors.New("object has no metadata.name")
	}

	return f.modify(kind, func(objects []Object) []Object {
		for i, o := range objects {
			ons, oname := objectKey(o)
			if ons == ns && oname == name {
				objects[i] = obj
				return objects
			}
		}
		return append(objects, obj)
	})
}

// Remove deletes the named object from kind. Removing a missing object is
// not an error.
func (f *Feed) Remove(kind, namespace, name string) (Snapshot, error) {
	return f.modify(kind, func(objects []Object) []Object {
		out := objects[:0]
		for _, o := range objects {
			ons, oname := objectKey(o)
			if ons == namespace && oname == name {
				continue
			}
			out = append(out, o)
		}
		return out
	})
}

// modify applies fn to a copy of kind's objects and stores the result.
func (f *Feed) modify(kind string, fn func([]Object) []Object) (Snapshot, error) {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	f.mu.RLock()
	current := append([]Object(nil), f.snapshots[kind].Objects...)
	f.mu.RUnlock()

	return f.Set(kind, fn(current))
}

// Get returns the snapshot of kind.
func (f *Feed) Get(kind string) (Snapshot, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	snap, ok := f.snapshots[kind]
	return snap, ok
}

// Kinds returns the registered kinds in sorted order.
func (f *Feed) Kinds() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	kinds := make([]string, 0, len(f.snapshots))
	for k := range f.snapshots {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// Subscribe returns a channel receiving every new snapshot of kind.
//
// Caller must call [Feed.Unsubscribe] when done to prevent resource leaks.
func (f *Feed) Subscribe(kind string) <-chan Snapshot {
	ch := make(chan Snapshot, subscriberBuffer)

	f.subMu.Lock()
	f.subscribers[ch] = kind
	f.subMu.Unlock()

	return ch
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// multiple times or with an unknown channel.
func (f *Feed) Unsubscribe(ch <-chan Snapshot) {
	f.subMu.Lock()
	defer f.subMu.Unlock()

	for subCh := range f.subscribers {
		if subCh == ch {
			delete(f.subscribers, subCh)
			close(subCh)
			return
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (f *Feed) Subscribers() int {
	f.subMu.RLock()
	defer f.subMu.RUnlock()
	return len(f.subscribers)
}

// notify sends snap to the subscribers of its kind without blocking.
func (f *Feed) notify(snap Snapshot) {
	f.subMu.RLock()
	defer f.subMu.RUnlock()

	for ch, kind := range f.subscribers {
		if kind != snap.Kind {
			continue
		}
		select {
		case ch <- snap:
		default:
			// subscriber is slow, drop the snapshot
		}
	}
}

// objectKey returns the metadata namespace and name of obj.
func objectKey(obj Object) (namespace, name string) {
	md, _ := obj["metadata"].(map[string]any)
	namespace, _ = md["namespace"].(string)
	name, _ = md["name"].(string)
	return namespace, name
}
