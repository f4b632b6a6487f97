package staging

import (
	"context"
	"log/slog"
	"sync"

	"sxvrs/internal/logging"
)

// UsageSource reports scratch usage; *Manager satisfies it.
type UsageSource interface {
	Usage(ctx context.Context) (Usage, error)
}

// maxSkipFactor bounds how far frame skip grows between the watermarks.
const maxSkipFactor = 4

// Throttle adapts a camera's frame skip to scratch pressure. Below the low
// watermark the configured skip is used; between the watermarks it grows
// linearly up to maxSkipFactor times the base; at or above the high
// watermark staging stops (FrameSkip returns 0).
type Throttle struct {
	source   UsageSource
	low      int64
	high     int64
	minFree  uint64
	logger   *slog.Logger
	mu       sync.Mutex
	lastSkip int
}

// NewThrottle creates a throttle with watermarks in bytes. minFree keeps
// staging off when the volume itself is nearly full, typically one frame.
func NewThrottle(source UsageSource, low, high int64, minFree uint64, logger *slog.Logger) *Throttle {
	return &Throttle{source: source, low: low, high: high, minFree: minFree, logger: logger}
}

// FrameSkip returns the skip to use for the next staged frame, or 0 when
// nothing should be staged.
func (t *Throttle) FrameSkip(base int) int {
	if base < 1 {
		base = 1
	}
	if t == nil || t.source == nil {
		return base
	}
	usage, err := t.source.Usage(context.Background())
	if err != nil {
		return base
	}
	skip := SkipFor(base, usage.FrameBytes, t.low, t.high)
	if usage.TotalBytes > 0 && usage.FreeBytes < t.minFree {
		skip = 0
	}
	t.noteChange(skip, usage.FrameBytes)
	return skip
}

// SkipFor is the pure throttling curve used by FrameSkip.
func SkipFor(base int, used, low, high int64) int {
	switch {
	case high <= 0 || used < low:
		return base
	case used >= high:
		return 0
	case high <= low:
		return base
	}
	extra := float64(used-low) / float64(high-low) * float64(maxSkipFactor-1)
	return base + int(float64(base)*extra)
}

func (t *Throttle) noteChange(skip int, used int64) {
	t.mu.Lock()
	changed := skip != t.lastSkip
	t.lastSkip = skip
	t.mu.Unlock()
	if changed && t.logger != nil {
		t.logger.Debug("frame staging throttle changed",
			logging.Int("frame_skip", skip),
			logging.Int64("frame_bytes", used),
			logging.Int64("low_watermark", t.low),
			logging.Int64("high_watermark", t.high),
		)
	}
}
