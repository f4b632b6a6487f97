package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"sxvrs/internal/fileutil"
	"sxvrs/internal/logging"
	"sxvrs/internal/services"
)

// Reason explains why a run ended. Every reason is a normal outcome; failures
// are reported through the returned error.
type Reason string

const (
	ReasonTimeout     Reason = "timeout"
	ReasonSourceEnded Reason = "source_ended"
	ReasonSinkClosed  Reason = "sink_closed"
	ReasonCanceled    Reason = "canceled"
	ReasonExited      Reason = "exited"
)

// DefaultKillGrace is how long a process group gets between SIGTERM and SIGKILL.
const DefaultKillGrace = 5 * time.Second

// FrameShape is the geometry of one raw frame.
type FrameShape struct {
	Width  int
	Height int
	Depth  int
}

// Size returns the byte length of one frame.
func (f FrameShape) Size() int {
	return f.Width * f.Height * f.Depth
}

func (f FrameShape) String() string {
	return fmt.Sprintf("%dx%dx%d", f.Width, f.Height, f.Depth)
}

// Throttle adjusts frame skip under scratch pressure. A return of 0 means
// no frame should be staged.
type Throttle interface {
	FrameSkip(base int) int
}

// Spec describes one decode/encode run. Commands are already expanded.
type Spec struct {
	Camera       string
	Decode       string
	Encode       string
	Frame        FrameShape
	FrameSkip    int
	BufferFrames int
	RecordTime   time.Duration
	// StageDir receives every FrameSkip-th frame; empty disables staging.
	StageDir string
	Throttle Throttle
	Log      io.Writer
	// Started, if set, is called once both processes are running.
	Started func()
}

// Outcome summarizes a finished run.
type Outcome struct {
	Reason     Reason
	Frames     int
	Staged     int
	Bytes      int64
	Duration   time.Duration
	FirstFrame bool
	LastStaged string
	DecodeExit int
	EncodeExit int
}

// Runner pipes raw frames from a decode process into an encode process.
type Runner struct {
	logger    *slog.Logger
	killGrace time.Duration
}

// NewRunner creates a runner. A non-positive grace uses DefaultKillGrace.
func NewRunner(logger *slog.Logger, killGrace time.Duration) *Runner {
	if killGrace <= 0 {
		killGrace = DefaultKillGrace
	}
	return &Runner{logger: logging.NewComponentLogger(logger, "pipeline"), killGrace: killGrace}
}

// Run starts both processes and forwards frames until RecordTime elapses,
// either process ends, or ctx is cancelled. Both process groups are gone
// when Run returns.
func (r *Runner) Run(ctx context.Context, spec Spec) (Outcome, error) {
	frameSize := spec.Frame.Size()
	if frameSize <= 0 {
		return Outcome{}, services.Wrap(services.ErrValidation, "pipeline", "frame", "Frame shape must be positive: "+spec.Frame.String(), nil)
	}
	if strings.TrimSpace(spec.Decode) == "" || strings.TrimSpace(spec.Encode) == "" {
		return Outcome{}, services.Wrap(services.ErrValidation, "pipeline", "spec", "Decode and encode commands are required", nil)
	}
	if spec.FrameSkip < 1 {
		spec.FrameSkip = 1
	}
	if spec.BufferFrames < 1 {
		spec.BufferFrames = 1
	}
	logger := r.logger.With(logging.String(logging.FieldCamera, spec.Camera))

	srcRead, srcWrite, err := os.Pipe()
	if err != nil {
		return Outcome{}, fmt.Errorf("create decode pipe: %w", err)
	}
	sinkRead, sinkWrite, err := os.Pipe()
	if err != nil {
		srcRead.Close()
		srcWrite.Close()
		return Outcome{}, fmt.Errorf("create encode pipe: %w", err)
	}
	resizePipe(sinkWrite, frameSize*spec.BufferFrames, logger)

	encoder, err := startShell(spec.Encode, processIO{Stdin: sinkRead, Output: spec.Log}, r.killGrace)
	sinkRead.Close()
	if err != nil {
		srcRead.Close()
		srcWrite.Close()
		sinkWrite.Close()
		return Outcome{}, services.Wrap(services.ErrExternalTool, "pipeline", "start encode", "Failed to start encode command", err)
	}
	decoder, err := startShell(spec.Decode, processIO{Stdout: srcWrite, Output: spec.Log}, r.killGrace)
	srcWrite.Close()
	if err != nil {
		srcRead.Close()
		sinkWrite.Close()
		encoder.Terminate(r.killGrace)
		return Outcome{}, services.Wrap(services.ErrExternalTool, "pipeline", "start decode", "Failed to start decode command", err)
	}
	logger.Debug("pipeline started",
		logging.Int("decode_pid", decoder.Pid()),
		logging.Int("encode_pid", encoder.Pid()),
		logging.String("frame", spec.Frame.String()),
	)
	if spec.Started != nil {
		spec.Started()
	}

	var (
		loopCtx context.Context
		cancel  context.CancelFunc
	)
	if spec.RecordTime > 0 {
		loopCtx, cancel = context.WithTimeout(ctx, spec.RecordTime)
	} else {
		loopCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	// Closing both pipe ends unblocks a read or write stuck in the loop.
	var closeOnce sync.Once
	closePipes := func() {
		closeOnce.Do(func() {
			srcRead.Close()
			sinkWrite.Close()
		})
	}
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		<-loopCtx.Done()
		closePipes()
	}()

	started := time.Now()
	out := r.forward(loopCtx, spec, srcRead, sinkWrite, logger)
	out.Duration = time.Since(started)
	switch {
	case ctx.Err() != nil:
		out.Reason = ReasonCanceled
	case loopCtx.Err() != nil:
		out.Reason = ReasonTimeout
	}

	cancel()
	<-watchDone
	closePipes()

	// The encoder saw EOF on stdin and is finalizing its output; give it the
	// grace period before forcing it down.
	decoder.Terminate(r.killGrace)
	if !encoder.WaitTimeout(r.killGrace) {
		logging.WarnWithContext(logger, "encoder did not exit after end of input", "pipeline_encoder_stuck",
			logging.Duration("grace", r.killGrace),
			logging.String(logging.FieldErrorHint, "check cmd_ffmpeg_write in the camera process log"),
			logging.String(logging.FieldImpact, "the last recording may be truncated"),
		)
	}
	encoder.Terminate(r.killGrace)
	out.DecodeExit = decoder.ExitCode()
	out.EncodeExit = encoder.ExitCode()

	logger.Debug("pipeline finished",
		logging.String("reason", string(out.Reason)),
		logging.Int("frames", out.Frames),
		logging.Int("staged", out.Staged),
		logging.Int64("bytes", out.Bytes),
		logging.Duration("duration", out.Duration),
	)

	if !out.FirstFrame && out.Reason == ReasonSourceEnded {
		return out, services.Wrap(services.ErrUnavailable, "pipeline", "decode",
			fmt.Sprintf("Stream produced no frames (decode exit %d)", out.DecodeExit), decoder.Err())
	}
	if !out.FirstFrame && out.Reason == ReasonSinkClosed {
		return out, services.Wrap(services.ErrExternalTool, "pipeline", "encode",
			fmt.Sprintf("Encoder closed its input before the first frame (encode exit %d)", out.EncodeExit), encoder.Err())
	}
	return out, nil
}

func (r *Runner) forward(ctx context.Context, spec Spec, src io.Reader, sink io.Writer, logger *slog.Logger) Outcome {
	frameSize := spec.Frame.Size()
	buf := make([]byte, frameSize)
	out := Outcome{}
	stageWarned := false

	for index := 0; ; index++ {
		if _, err := io.ReadFull(src, buf); err != nil {
			out.Reason = ReasonSourceEnded
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) && ctx.Err() == nil {
				logger.Debug("decode stream read failed", logging.Error(err))
			}
			return out
		}
		out.FirstFrame = true
		out.Frames++

		if spec.StageDir != "" {
			skip := spec.FrameSkip
			if spec.Throttle != nil {
				skip = spec.Throttle.FrameSkip(skip)
			}
			if skip > 0 && index%skip == 0 {
				path, err := stageFrame(spec.StageDir, spec.Camera, index, buf)
				switch {
				case err == nil:
					out.Staged++
					out.LastStaged = path
				case !stageWarned:
					stageWarned = true
					logging.WarnWithContext(logger, "frame staging failed", "frame_stage_failed",
						logging.String("dir", spec.StageDir),
						logging.Error(err),
						logging.String(logging.FieldErrorHint, "check scratch.path capacity and permissions"),
						logging.String(logging.FieldImpact, "no frames reach the detector until staging recovers"),
					)
				}
			}
		}

		if _, err := sink.Write(buf); err != nil {
			out.Reason = ReasonSinkClosed
			return out
		}
		out.Bytes += int64(frameSize)
	}
}

// FrameName builds the collision-free staged frame filename.
func FrameName(camera string, index int, at time.Time) string {
	return camera + "_" + strconv.Itoa(index) + "_" + strconv.FormatInt(at.UnixNano(), 10) + ".raw"
}

// stageFrame writes through a temporary name so readers never see a partial frame.
func stageFrame(dir, camera string, index int, frame []byte) (string, error) {
	final := filepath.Join(dir, FrameName(camera, index, time.Now()))
	if err := fileutil.WriteFileAtomic(final, frame, 0o644); err != nil {
		return "", err
	}
	return final, nil
}

// resizePipe asks the kernel to size the pipe to hold the configured number
// of frames. The request is capped by fs.pipe-max-size; failures leave the
// default size in place.
func resizePipe(f *os.File, size int, logger *slog.Logger) {
	raw, err := f.SyscallConn()
	if err != nil {
		return
	}
	var got int
	var fcntlErr error
	_ = raw.Control(func(fd uintptr) {
		got, fcntlErr = unix.FcntlInt(fd, unix.F_SETPIPE_SZ, size)
	})
	if fcntlErr != nil {
		logger.Debug("pipe resize refused", logging.Int("requested", size), logging.Error(fcntlErr))
		return
	}
	logger.Debug("pipe resized", logging.Int("requested", size), logging.Int("size", got))
}
