// Package config loads, normalizes, and validates the recording daemon's
// configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files (or the legacy YAML layout with a "global"
// section and a "recorders" map), and resolves every camera against the
// [recorder] defaults once at load time. The resolved Camera values keep their
// path and command templates unexpanded; the recorder expands them per cycle
// through the expand package.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
