// Package journal records camera lifecycle events in SQLite.
//
// Supervisors append an Event for each cycle boundary, eviction, start
// failure, backoff, snapshot, and restart. The CLI reads the same database to
// print `sxvrs history`. The journal is an audit trail, not recorder state:
// nothing in the daemon reads it back to make decisions, and a schema change
// bumps schemaVersion and asks the user to delete the file.
package journal
