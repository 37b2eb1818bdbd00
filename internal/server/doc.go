// Package server provides the snapshot server: an HTTP push channel that
// serves full resource collections the way the cluster API gateway does.
//
// It is used by "kubetable serve" to run against fixture data, and by tests
// as a real SSE and WebSocket endpoint for the client transports:
//
//   - Health: "/healthz" for the connectivity monitor
//   - Kinds: JSON list of served kinds at "/api/v1/resources"
//   - Streams: Server-Sent Events or WebSocket at "/api/v1/resources/{kind}"
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
