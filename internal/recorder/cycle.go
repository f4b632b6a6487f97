package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"sxvrs/internal/expand"
	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/pipeline"
	"sxvrs/internal/services"
	"sxvrs/internal/staging"
	"sxvrs/internal/storage"
)

// cyclePaths holds the expanded filesystem locations of one recording cycle.
type cyclePaths struct {
	storage   string
	filename  string
	snapshot  string
	recordDir string
	reapRoot  string
}

func (s *Supervisor) resolvePaths(now time.Time) (cyclePaths, error) {
	base := expand.Vars{"name": s.cam.Name, "datetime": now}
	storagePath, err := expand.Expand(s.cam.StoragePath, base)
	if err != nil {
		return cyclePaths{}, services.Wrap(services.ErrConfiguration, "recorder", "expand storage_path", s.cam.StoragePath, err)
	}
	filename, err := expand.Expand(s.cam.FilenameVideo, base.With("storage_path", storagePath))
	if err != nil {
		return cyclePaths{}, services.Wrap(services.ErrConfiguration, "recorder", "expand filename_video", s.cam.FilenameVideo, err)
	}
	snapshot, err := expand.Expand(s.cam.FilenameSnapshot, expand.Vars{"name": s.cam.Name, "storage_path": storagePath})
	if err != nil {
		return cyclePaths{}, services.Wrap(services.ErrConfiguration, "recorder", "expand filename_snapshot", s.cam.FilenameSnapshot, err)
	}

	// A dated storage_path leaf changes every day; evict across all of them.
	root := storagePath
	if strings.Contains(s.cam.StoragePath, "{datetime") {
		root = filepath.Dir(storagePath)
	}
	return cyclePaths{
		storage:   storagePath,
		filename:  filename,
		snapshot:  snapshot,
		recordDir: filepath.Dir(filename),
		reapRoot:  root,
	}, nil
}

// runCycle performs one iteration: directories, eviction, pre command, main
// command, post command.
func (s *Supervisor) runCycle(parent context.Context) (err error) {
	iteration := s.iteration.Add(1)
	parent = services.WithIteration(parent, iteration)
	ctx, cancel := context.WithCancel(parent)
	s.setCycleCancel(cancel)
	defer func() {
		s.setCycleCancel(nil)
		cancel()
	}()
	if !s.wantRecording() {
		return context.Canceled
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recording cycle panic: %v", r)
			s.logger.Error("recovered panic in recording cycle",
				logging.String("panic", fmt.Sprint(r)),
				logging.String("stack", string(debug.Stack())),
			)
		}
	}()
	logger := logging.WithContext(ctx, s.logger)

	now := s.now()
	paths, err := s.resolvePaths(now)
	if err != nil {
		return err
	}
	for _, dir := range []string{paths.storage, paths.recordDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return services.Wrap(services.ErrUnavailable, "recorder", "mkdir", "Cannot create recording directory "+dir, err)
		}
	}
	s.updateStatus(func(st *Status) {
		st.Iteration = iteration
		st.LatestFile = paths.filename
		st.CycleStarted = now
	})

	_, _ = s.reapStorage(ctx, paths.reapRoot, paths.recordDir)

	streamURL, err := expand.Expand(s.cam.StreamURL, expand.Vars{"ip": s.cam.IP, "name": s.cam.Name})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "recorder", "expand stream_url", s.cam.StreamURL, err)
	}
	vars := expand.Vars{
		"name":         s.cam.Name,
		"ip":           s.cam.IP,
		"stream_url":   streamURL,
		"filename":     paths.filename,
		"record_time":  int(s.cam.RecordTime / time.Second),
		"storage_path": paths.storage,
		"snapshot":     paths.snapshot,
		"datetime":     now,
	}

	s.record(ctx, journal.KindCycleStarted, paths.filename)
	logger.Info("recording cycle started", logging.String("file", paths.filename))

	s.runStep(ctx, logger, "cmd_before", s.cam.CmdBefore, vars)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var mainErr error
	if s.cam.UsesPipeline() {
		mainErr = s.runPipeline(ctx, logger, vars, paths)
	} else {
		mainErr = s.runMainCommand(ctx, logger, vars, paths)
	}

	// stop-recording cancels only the cycle; the post command still runs.
	if parent.Err() == nil {
		s.runStep(parent, logger, "cmd_after", s.cam.CmdAfter, vars)
	}

	detail := "ok"
	if mainErr != nil {
		detail = mainErr.Error()
	}
	s.record(ctx, journal.KindCycleFinished, detail)
	return mainErr
}

// runStep runs a pre or post command. Failures are logged, never fatal.
func (s *Supervisor) runStep(ctx context.Context, logger *slog.Logger, step, tmpl string, vars expand.Vars) {
	if strings.TrimSpace(tmpl) == "" {
		return
	}
	command, err := expand.Expand(tmpl, vars)
	if err != nil {
		logging.ErrorWithContext(logger, "command template failed to expand", "recorder_template_invalid",
			logging.String("step", step),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check "+step+" placeholders"),
		)
		return
	}
	s.plog.Section(step, command)
	res, err := pipeline.RunCommand(ctx, command, 0, s.opts.KillGrace, s.plog)
	if err != nil {
		logging.WarnWithContext(logger, "camera command failed", "recorder_step_failed",
			logging.String("step", step),
			logging.Int("exit_code", res.ExitCode),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "see "+s.plog.Path()),
		)
		return
	}
	logger.Debug("camera command finished",
		logging.String("step", step),
		logging.Duration("duration", res.Duration),
	)
}

func (s *Supervisor) runMainCommand(ctx context.Context, logger *slog.Logger, vars expand.Vars, paths cyclePaths) error {
	command, err := expand.Expand(s.cam.Cmd, vars)
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "recorder", "expand cmd", s.cam.Cmd, err)
	}
	s.plog.Section("cmd", command)
	s.publish(ctx, StatusMessage{Status: StatusStarted, LatestFile: paths.filename})

	res, runErr := pipeline.RunCommand(ctx, command, s.cam.RecordTime, s.opts.KillGrace, s.plog)
	if res.Reason != pipeline.ReasonCanceled {
		s.publish(ctx, StatusMessage{Status: StatusRestarting})
	}
	logger.Info("recording segment finished",
		logging.String("reason", string(res.Reason)),
		logging.Int("exit_code", res.ExitCode),
		logging.Duration("duration", res.Duration),
	)

	switch {
	case runErr != nil && !hasData(paths.filename):
		return services.Wrap(services.ErrUnavailable, "recorder", "start", "Main command exited without producing output", runErr)
	case runErr != nil:
		logging.WarnWithContext(logger, "main command exited early", "recorder_segment_short",
			logging.Error(runErr),
			logging.Duration("duration", res.Duration),
			logging.String(logging.FieldImpact, "segment shorter than record_time"),
		)
		return nil
	case res.Reason == pipeline.ReasonCanceled:
		return ctx.Err()
	default:
		return nil
	}
}

func (s *Supervisor) runPipeline(ctx context.Context, logger *slog.Logger, vars expand.Vars, paths cyclePaths) error {
	shape, err := s.frameShape(ctx, logger, vars["stream_url"].(string))
	if err != nil {
		return err
	}
	decode, err := expand.Expand(s.cam.CmdFFmpegRead, expand.Vars{
		"stream_url": vars["stream_url"],
		"ip":         s.cam.IP,
		"name":       s.cam.Name,
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "recorder", "expand cmd_ffmpeg_read", s.cam.CmdFFmpegRead, err)
	}
	encode, err := expand.Expand(s.cam.CmdFFmpegWrite, expand.Vars{
		"filename":    paths.filename,
		"width":       shape.Width,
		"height":      shape.Height,
		"pixbytes":    shape.Depth * 8,
		"name":        s.cam.Name,
		"record_time": vars["record_time"],
	})
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "recorder", "expand cmd_ffmpeg_write", s.cam.CmdFFmpegWrite, err)
	}
	s.plog.Section("decode", decode)
	s.plog.Section("encode", encode)

	spec := pipeline.Spec{
		Camera:       s.cam.Name,
		Decode:       decode,
		Encode:       encode,
		Frame:        shape,
		FrameSkip:    s.cam.FrameSkip,
		BufferFrames: s.cam.BufferFrames,
		RecordTime:   s.cam.RecordTime,
		Log:          s.plog,
		Started: func() {
			s.publish(ctx, StatusMessage{Status: StatusStarted, LatestFile: paths.filename})
		},
	}
	if s.opts.Scratch != nil {
		spec.StageDir = s.opts.Scratch.FrameDir()
		spec.Throttle = staging.NewThrottle(s.opts.Scratch, s.cam.ThrottleLow, s.cam.ThrottleHigh, uint64(shape.Size()), s.logger)
	}

	out, err := s.opts.Runner.Run(ctx, spec)
	if out.Reason != pipeline.ReasonCanceled {
		s.publish(ctx, StatusMessage{Status: StatusRestarting})
	}
	logger.Info("recording segment finished",
		logging.String("reason", string(out.Reason)),
		logging.Int("frames", out.Frames),
		logging.Int("staged", out.Staged),
		logging.Int64("bytes", out.Bytes),
		logging.Duration("duration", out.Duration),
	)
	if err != nil {
		return err
	}
	if out.Reason == pipeline.ReasonCanceled {
		return ctx.Err()
	}
	if s.watcher.Load() && out.LastStaged != "" {
		s.writeSnapshot(ctx, logger, out.LastStaged, shape, paths.snapshot)
	}
	return nil
}

// frameShape returns the configured shape, probing the stream once when
// width or height is unset.
func (s *Supervisor) frameShape(ctx context.Context, logger *slog.Logger, streamURL string) (pipeline.FrameShape, error) {
	if s.shape.Size() > 0 {
		return s.shape, nil
	}
	shape, err := pipeline.ProbeShape(ctx, s.opts.FFprobe, streamURL, s.cam.FrameDepth)
	if err != nil {
		return pipeline.FrameShape{}, err
	}
	s.shape = shape
	s.updateStatus(func(st *Status) { st.Frame = shape.String() })
	logger.Info("probed frame shape", logging.String("frame", shape.String()))
	return shape, nil
}

func (s *Supervisor) writeSnapshot(ctx context.Context, logger *slog.Logger, frame string, shape pipeline.FrameShape, dst string) {
	if s.opts.Snapshotter == nil {
		return
	}
	if err := s.opts.Snapshotter.Write(ctx, frame, shape, dst); err != nil {
		logging.WarnWithContext(logger, "snapshot failed", "snapshot_failed",
			logging.String("frame", frame),
			logging.Error(err),
			logging.String(logging.FieldImpact, "snapshot.jpg keeps the previous image"),
		)
		return
	}
	s.updateStatus(func(st *Status) { st.Snapshot = dst })
	s.publish(ctx, StatusMessage{Status: StatusSnapshot, Snapshot: dst})
	s.record(ctx, journal.KindSnapshot, dst)
}

// reapStorage evicts old recordings under root, never pruning keep.
func (s *Supervisor) reapStorage(ctx context.Context, root, keep string) (storage.Result, error) {
	s.reapMu.Lock()
	defer s.reapMu.Unlock()

	var keepDirs []string
	if keep != "" {
		keepDirs = []string{keep}
	}
	res, err := s.reap(ctx, root, s.cam.StorageMaxSize, storage.Options{
		Logger:   s.logger,
		Keep:     keepDirs,
		OnDelete: func(path string) { s.evicted(ctx, path) },
	})
	if err != nil {
		logging.WarnWithContext(s.logger, "storage reap failed", "storage_reap_failed",
			logging.String("root", root),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check storage_path permissions"),
			logging.String(logging.FieldImpact, "old recordings kept until the next cycle"),
		)
		return res, err
	}
	summary := ReapSummary{
		Root:           res.Root,
		At:             s.now(),
		Deleted:        len(res.Deleted),
		DeletedBytes:   res.DeletedBytes,
		RemainingBytes: res.RemainingBytes,
		RemovedDirs:    len(res.RemovedDirs),
		Errors:         len(res.Errors),
	}
	s.updateStatus(func(st *Status) { st.LastReap = &summary })
	if summary.Deleted > 0 {
		s.logger.Info("storage reaped",
			logging.Int("deleted", summary.Deleted),
			logging.Int64("deleted_bytes", summary.DeletedBytes),
			logging.Int64("remaining_bytes", summary.RemainingBytes),
		)
	}
	return res, nil
}

func (s *Supervisor) evicted(ctx context.Context, path string) {
	s.publish(ctx, StatusMessage{Status: s.Status().State, Deleted: path})
	s.record(ctx, journal.KindFileEvicted, path)
}

func hasData(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular() && info.Size() > 0
}

func dirOf(path string) string {
	return filepath.Dir(path)
}
