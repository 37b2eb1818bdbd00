// Package signal provides a minimal multicast value with replay-on-subscribe.
//
// This package is internal to kubetable and is the observer primitive behind
// every store: one writer publishes values, any number of subscribers receive
// them. The main component is:
//
//   - [Value]: holds the latest value and delivers it to subscribers
//
// Delivery is serialized. Only one goroutine invokes callbacks at a time, and a
// value published from inside a callback is delivered after that callback
// returns rather than recursively. When values are published faster than they
// are delivered, subscribers observe the most recent one and may skip the
// intermediate ones.
package signal
