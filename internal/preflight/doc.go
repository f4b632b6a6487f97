// Package preflight provides readiness checks for the directories, external
// programs, storage volumes, and MQTT broker that sxvrs depends on.
//
// The daemon embeds CheckSystemDeps in its status snapshot. The CLI "status"
// and "check" commands run the full RunAll set.
package preflight
