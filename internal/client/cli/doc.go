// Package cli provides the interactive intake command-line client.
//
// It wires configuration, the local cache, the gRPC client and a draft
// session, then runs a REPL over the session. A background watcher pings the
// server and flips the prompt between online and offline. Edits are saved by
// the session's autosave; the REPL only reads state and issues commands.
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
package cli
