// Package logging builds the slog loggers used by the recorder daemon and its
// CLI.
//
// Two handlers are available: a single-line console format that lifts the
// component and camera into a readable prefix, and a JSON format for log
// shippers. WarnWithContext and ErrorWithContext enforce the event_type,
// error_hint, and impact fields on problems an operator must act on.
//
// Output of external recording commands does not go through slog. Each camera
// gets a rotating ProcessLog under log_dir/cameras so ffmpeg chatter never
// floods the daemon log.
package logging
