package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"sxvrs/internal/logging"
	"sxvrs/internal/services"
)

// Snapshotter converts a staged raw frame into a JPEG with ffmpeg.
type Snapshotter struct {
	ffmpeg string
	logger *slog.Logger
}

// NewSnapshotter creates a snapshotter using the given ffmpeg binary.
func NewSnapshotter(ffmpegBinary string, logger *slog.Logger) *Snapshotter {
	if strings.TrimSpace(ffmpegBinary) == "" {
		ffmpegBinary = "ffmpeg"
	}
	return &Snapshotter{ffmpeg: ffmpegBinary, logger: logging.NewComponentLogger(logger, "snapshot")}
}

// PixelFormat maps a channel depth to the ffmpeg raw pixel format.
func PixelFormat(depth int) string {
	switch depth {
	case 1:
		return "gray"
	case 2:
		return "ya8"
	case 4:
		return "rgba"
	default:
		return "rgb24"
	}
}

// Args returns the ffmpeg arguments (without the binary) that encode frame
// into a single JPEG at dst.
func (s *Snapshotter) Args(frame string, shape FrameShape, dst string) []string {
	cmd := ffmpeg.Input(frame, ffmpeg.KwArgs{
		"f":       "rawvideo",
		"pix_fmt": PixelFormat(shape.Depth),
		"s":       fmt.Sprintf("%dx%d", shape.Width, shape.Height),
	}).
		Output(dst, ffmpeg.KwArgs{"frames:v": 1, "c:v": "mjpeg", "q:v": 3, "f": "image2", "update": 1}).
		GlobalArgs("-hide_banner", "-nostdin", "-loglevel", "error").
		OverWriteOutput().
		Compile()
	return cmd.Args[1:]
}

// Write encodes frame to dst. The JPEG is written next to dst and renamed
// into place so viewers never read a partial image.
func (s *Snapshotter) Write(ctx context.Context, frame string, shape FrameShape, dst string) error {
	if shape.Size() <= 0 {
		return services.Wrap(services.ErrValidation, "snapshot", "shape", "Frame shape unknown: "+shape.String(), nil)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return services.Wrap(services.ErrTransient, "snapshot", "mkdir", "Failed to create snapshot directory", err)
	}
	tmp := dst + ".part"
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpeg, s.Args(frame, shape, tmp)...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrExternalTool, "snapshot", "ffmpeg", strings.TrimSpace(stderr.String()), err)
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return services.Wrap(services.ErrTransient, "snapshot", "rename", "Failed to move snapshot into place", err)
	}
	s.logger.Debug("snapshot written", logging.String("frame", frame), logging.String("path", dst))
	return nil
}
