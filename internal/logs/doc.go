// Package logs tails the daemon log and the per-camera process logs.
//
// Offsets are byte positions of complete lines, so a follower never emits a
// half-written line. When a log rotates underneath a follower the next read
// starts over at the beginning of the new file.
package logs
