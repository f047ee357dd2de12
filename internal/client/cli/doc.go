// Package cli provides the interactive fieldsync command-line client.
//
// It wires configuration, the local store, the sync orchestrator and the
// projection views behind a REPL. Reads always come from the local store,
// so every listing works offline; a background watcher pings the server and
// requests a resync when it comes back.
//
// Key features:
//   - Login / Logout with a session token
//   - Territory, address, house and phone listings with search and sorting
//   - Recording visits and calls, deleting rows
//   - Manual and periodic sync
//
// The REPL is started via App.Root(ctx), which blocks until the user exits.
// See App, StartOnlineStatusWatcher, and runREPL for details.
package cli
