package pipeline

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"sxvrs/internal/services"
)

// probeTimeout bounds a single ffprobe call against an unresponsive camera.
const probeTimeout = 20 * time.Second

// ProbeShape asks ffprobe for the dimensions of the first video stream of
// streamURL and combines them with depth.
func ProbeShape(ctx context.Context, ffprobe, streamURL string, depth int) (FrameShape, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-of", "csv=s=x:p=0",
		streamURL,
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	output, err := cmd.Output()
	if err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			detail = "ffprobe failed"
		}
		return FrameShape{}, services.Wrap(services.ErrUnavailable, "pipeline", "probe", detail, err)
	}
	width, height, err := parseDimensions(output)
	if err != nil {
		return FrameShape{}, services.Wrap(services.ErrExternalTool, "pipeline", "probe", "Unexpected ffprobe output", err)
	}
	return FrameShape{Width: width, Height: height, Depth: depth}, nil
}

// parseDimensions reads the first "WIDTHxHEIGHT" line of ffprobe csv output.
func parseDimensions(output []byte) (int, int, error) {
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		w, h, ok := strings.Cut(strings.TrimSuffix(line, "x"), "x")
		if !ok {
			return 0, 0, fmt.Errorf("no dimensions in %q", line)
		}
		width, err := strconv.Atoi(strings.TrimSpace(w))
		if err != nil {
			return 0, 0, fmt.Errorf("parse width %q: %w", w, err)
		}
		height, err := strconv.Atoi(strings.TrimSpace(h))
		if err != nil {
			return 0, 0, fmt.Errorf("parse height %q: %w", h, err)
		}
		if width <= 0 || height <= 0 {
			return 0, 0, fmt.Errorf("non-positive dimensions %dx%d", width, height)
		}
		return width, height, nil
	}
	return 0, 0, fmt.Errorf("empty ffprobe output")
}
