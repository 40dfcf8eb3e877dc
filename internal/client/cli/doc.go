// Package cli provides the interactive PeerLearn command-line client.
//
// It wires configuration, the credential store, the request pipelines, the
// refresh coordinator and the session manager, then runs a REPL. Typical
// flow: restore a stored session, start a background connectivity watcher,
// and execute user commands.
//
// Key features:
//   - Register, verify email, resend code
//   - Login / Logout (local credentials always cleared on logout)
//   - View and edit the profile
//   - Raw authenticated GET and bulk download through the same pipeline
//   - gRPC health probe with the session's bearer token
//
// The REPL is started via App.Run(ctx), which blocks until the user exits.
// See NewApp, StartOnlineStatusWatcher, and runREPL for details.
package cli
