// Package notifications pushes camera health events to ntfy.
//
// Supervisors report start-failure backoff, recovery, and disabled cameras;
// the daemon reports restart requests. Each event kind can be toggled in the
// [notifications] config section. With no topic configured NewService
// returns a no-op implementation, so callers never need to nil-check.
package notifications
