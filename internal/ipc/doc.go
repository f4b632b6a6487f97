// Package ipc exposes the daemon over JSON-RPC on a Unix socket and ships the
// matching client used by the CLI.
//
// The server wraps a *daemon.Daemon; request and response types live in
// types.go so both sides share one wire shape. Errors returned by the daemon
// cross the socket as plain strings.
package ipc
