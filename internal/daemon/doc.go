// Package daemon coordinates the long-running sxvrs process.
//
// It wires configuration, the event journal, the scratch volume, the MQTT
// control plane, and one recorder.Supervisor per camera into a single
// lifecycle with flock-based locking to prevent multiple instances. Cameras
// whose configuration fails validation are reported and left out while the
// rest keep recording. The optional HTTP API (gin) exposes camera status,
// snapshots, the journal, and record start/stop.
//
// Keep orchestration logic here: recording behaviour lives in the recorder
// package while the daemon focuses on startup, shutdown, and wiring.
package daemon
