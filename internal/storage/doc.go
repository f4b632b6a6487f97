// Package storage keeps a camera's recording directory under its size
// ceiling.
//
// Reap scans a directory tree, orders files newest first by modification
// time, and deletes everything past the point where the running total
// exceeds the ceiling. Directories emptied by the pass are pruned deepest
// first. Eviction is by recency of write, not by access.
package storage
