// Package source provides the long-lived push channels that deliver resource
// snapshots to kubetable stores.
//
// This package is internal to kubetable. Every transport implements the same
// minimal contract: Open returns immediately with a [Stream] whose Messages
// channel yields raw payloads until the stream ends, and whose Close is
// idempotent. Connecting happens in the background; connection failures and
// dropped connections are logged and end the stream. No transport retries on
// its own: reconnecting is the caller's decision.
//
// The main components are:
//
//   - [SSE]: HTTP streaming with Server-Sent Events framing
//   - [WebSocket]: one text or binary frame per payload
//   - [Dialer]: picks SSE or WebSocket from the address scheme
package source
