package preflight

import (
	"context"

	"sxvrs/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail"`
}

// RunAll executes every check that applies to cfg: directory access, the
// scratch volume, per-camera storage roots, and broker reachability.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("State directory", cfg.Paths.StateDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}
	// A mounted scratch volume is created at start; only check it when it
	// is expected to exist already.
	if !cfg.Scratch.Mount {
		results = append(results, CheckDirectoryAccess("Scratch directory", cfg.Scratch.Path))
	}

	if cameras, err := cfg.ResolveCameras(); err == nil {
		results = append(results, CheckStorage(cameras)...)
	}

	results = append(results, CheckBroker(ctx, cfg.MQTT.Host, cfg.MQTT.Port))
	return results
}

// Failed returns the results that did not pass.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}
