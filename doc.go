// Package kubetable keeps live, filtered and sorted tables of Kubernetes
// resources that a server pushes as full-collection snapshots.
//
// The central type is [Store]: one per resource kind. A store consumes an
// unbounded stream of snapshots, keeps the latest one, and multicasts a
// derived view (namespace filter, text search, relative ages, sort order) to
// any number of subscribers. Each message replaces the previous snapshot
// wholesale, so a lost message is invisible: the next one is self-contained.
//
// # Quick Start
//
//	pods, _ := kubetable.NewStore("name")
//	stop := pods.Start("http://localhost:8080/api/v1/resources/pods?dense=true",
//	    kubetable.NewMapper(podFields, nil))
//	defer stop()
//
//	unsubscribe := pods.Subscribe(func(v kubetable.View) {
//	    fmt.Printf("%d of %d pods\n", len(v.Entries), v.Total)
//	})
//	defer unsubscribe()
//
//	pods.SetNamespace("default")
//	pods.SortByKey("age")
//
// # Lifecycle
//
// [NewStore] does no I/O. [Store.Start] opens the push channel and the age
// ticker and is idempotent: starting a started store is a no-op, which keeps
// a view that mounts repeatedly from opening duplicate connections.
// [Store.Stop] releases both and is safe to call any number of times. A store
// that is never started is still useful as shared filter state.
//
// # Derived View
//
// Every change to the snapshot, a knob, an extra store, or a tick of the age
// clock recomputes the view with [Compose]:
//
//  1. keep entries in the selected namespace (all when empty)
//  2. keep entries whose search haystack contains the search text
//  3. refresh each surviving row's [Age]
//  4. run the post-process hook, if any
//  5. stable-sort by the sort key using [CompareValues]
//
// # Transports
//
// The push channel is abstracted by [Transport]. The default transport picks
// Server-Sent Events for http and https addresses and WebSocket for ws and wss
// addresses. Tests and embedders can supply their own with [WithTransport].
package kubetable
