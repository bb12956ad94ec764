// Package client talks to the intake server.
//
// The Client interface is what the draft session and the CLI depend on.
// GRPCClient implements it over the JSON-coded intake service: it attaches
// the access token to every call, maps status codes back to the sentinels in
// internal/common (a conflict becomes a *common.ConflictError carrying the
// server's current version) and retries transient failures with exponential
// backoff for idempotent calls only: fetches, reads, pings and saves that
// carry a save id.
package client
