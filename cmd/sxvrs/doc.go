// Package main hosts the sxvrs CLI entrypoint and command graph.
//
// The Cobra command tree translates terminal invocations into IPC calls
// against the recording daemon: lifecycle control, per-camera record and
// watcher toggles, storage reaps, event history, and log tailing. Commands
// that only need local state (config scaffolding, preflight checks, offline
// reaps and history) work without a running daemon.
//
// Keep this package thin. New behavior belongs in the internal packages and
// is surfaced here as a command or flag.
package main
