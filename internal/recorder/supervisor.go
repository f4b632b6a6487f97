package recorder

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"sxvrs/internal/config"
	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/pipeline"
	"sxvrs/internal/services"
	"sxvrs/internal/storage"
)

const (
	defaultPollInterval = time.Second
	modePipeline        = "pipeline"
	modeCommand         = "command"
)

type reapFunc func(ctx context.Context, root string, maxBytes int64, opts storage.Options) (storage.Result, error)

// Supervisor owns the recording loop of one camera. Control methods only
// flip signals or read snapshots; all process and filesystem work happens on
// the supervisor goroutine.
type Supervisor struct {
	cam    config.Camera
	opts   Options
	logger *slog.Logger
	plog   *logging.ProcessLog
	reap   reapFunc
	now    func() time.Time

	startReq atomic.Bool
	stopReq  atomic.Bool
	watcher  atomic.Bool
	shutdown atomic.Bool
	wake     chan struct{}

	lifeMu  sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}

	cycleMu     sync.Mutex
	cycleCancel context.CancelFunc

	reapMu sync.Mutex

	mu     sync.RWMutex
	status Status

	iteration atomic.Int64

	// Owned by the supervisor goroutine.
	failures  failureWindow
	backedOff bool
	shape     pipeline.FrameShape
}

// New builds a supervisor for cam. It does nothing until Start.
func New(cam config.Camera, opts Options) *Supervisor {
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.Publisher == nil {
		opts.Publisher = nopPublisher{}
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.KillGrace <= 0 {
		opts.KillGrace = pipeline.DefaultKillGrace
	}
	if opts.Runner == nil {
		opts.Runner = pipeline.NewRunner(opts.Logger, opts.KillGrace)
	}
	if opts.FFprobe == "" {
		opts.FFprobe = "ffprobe"
	}

	mode := modeCommand
	if cam.UsesPipeline() {
		mode = modePipeline
	}
	s := &Supervisor{
		cam:    cam,
		opts:   opts,
		logger: logging.NewCameraLogger(opts.Logger, "recorder", cam.Name),
		plog:   logging.OpenProcessLog(opts.ProcessLogs, cam.Name),
		reap:   storage.Reap,
		now:    time.Now,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
		failures: failureWindow{
			attempts:  cam.StartErrorAttempts,
			threshold: cam.StartErrorThreshold,
		},
		status: Status{
			Name:      cam.Name,
			Phase:     PhaseStopped,
			State:     StatusStopped,
			Mode:      mode,
			Recording: cam.Autostart,
			Watcher:   cam.Watcher,
		},
	}
	if cam.FrameWidth > 0 && cam.FrameHeight > 0 {
		s.shape = pipeline.FrameShape{Width: cam.FrameWidth, Height: cam.FrameHeight, Depth: cam.FrameDepth}
		s.status.Frame = s.shape.String()
	}
	s.watcher.Store(cam.Watcher)
	return s
}

// Name returns the camera name.
func (s *Supervisor) Name() string {
	return s.cam.Name
}

// Camera returns the resolved camera configuration.
func (s *Supervisor) Camera() config.Camera {
	return s.cam
}

// Start launches the supervisor goroutine. Calling Start after Stop is a no-op.
func (s *Supervisor) Start(ctx context.Context) {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.started || s.stopped {
		return
	}
	s.started = true
	runCtx, cancel := context.WithCancel(services.WithCamera(ctx, s.cam.Name))
	s.cancel = cancel
	go s.run(runCtx)
}

// Stop asks the loop to exit, lets the current command run for up to
// timeout, then cancels it (SIGTERM, then SIGKILL after the kill grace) and
// waits for the goroutine. Stop is idempotent.
func (s *Supervisor) Stop(timeout time.Duration) {
	s.lifeMu.Lock()
	if s.stopped {
		s.lifeMu.Unlock()
		<-s.done
		return
	}
	s.stopped = true
	started := s.started
	cancel := s.cancel
	s.lifeMu.Unlock()

	s.shutdown.Store(true)
	s.notify()
	if !started {
		s.setPhase(PhaseShutdown)
		_ = s.plog.Close()
		close(s.done)
		return
	}
	if timeout > 0 {
		select {
		case <-s.done:
		case <-time.After(timeout):
			s.logger.Info("stop timeout reached; terminating current command",
				logging.Duration("timeout", timeout),
			)
		}
	}
	cancel()
	<-s.done
}

// Done is closed once the supervisor goroutine has exited.
func (s *Supervisor) Done() <-chan struct{} {
	return s.done
}

// RecordStart requests recording.
func (s *Supervisor) RecordStart() {
	s.stopReq.Store(false)
	s.startReq.Store(true)
	s.setRecording(true)
	s.notify()
}

// RecordStop requests that recording stop. The running cycle is cancelled.
// Stopping an already stopped camera changes nothing.
func (s *Supervisor) RecordStop() {
	s.startReq.Store(false)
	s.stopReq.Store(true)
	s.setRecording(false)
	s.cycleMu.Lock()
	if s.cycleCancel != nil {
		s.cycleCancel()
	}
	s.cycleMu.Unlock()
	s.notify()
}

// WatcherStart enables snapshots from staged frames.
func (s *Supervisor) WatcherStart() {
	s.watcher.Store(true)
	s.updateStatus(func(st *Status) { st.Watcher = true })
}

// WatcherStop disables snapshots. Frames are still staged.
func (s *Supervisor) WatcherStop() {
	s.watcher.Store(false)
	s.updateStatus(func(st *Status) { st.Watcher = false })
}

// Status returns a snapshot of the supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := s.status
	if st.LastReap != nil {
		reap := *st.LastReap
		st.LastReap = &reap
	}
	return st
}

// PublishStatus publishes the current state, error count, latest file,
// snapshot path, and watcher flag.
func (s *Supervisor) PublishStatus(ctx context.Context) error {
	st := s.Status()
	watcher := st.Watcher
	return s.opts.Publisher.PublishStatus(ctx, s.cam.Name, StatusMessage{
		Status:     st.State,
		ErrorCount: st.ErrorCount,
		LatestFile: st.LatestFile,
		Snapshot:   st.Snapshot,
		Watcher:    &watcher,
	})
}

// Reap runs an eviction pass over the camera's storage now. The current
// recording directory, if any, is kept.
func (s *Supervisor) Reap(ctx context.Context) (storage.Result, error) {
	paths, err := s.resolvePaths(s.now())
	if err != nil {
		return storage.Result{}, err
	}
	keep := ""
	if st := s.Status(); st.LatestFile != "" && st.Phase == PhaseRecording {
		keep = dirOf(st.LatestFile)
	}
	return s.reapStorage(ctx, paths.reapRoot, keep)
}

func (s *Supervisor) wantRecording() bool {
	return (s.cam.Autostart || s.startReq.Load()) && !s.stopReq.Load()
}

func (s *Supervisor) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Supervisor) setCycleCancel(cancel context.CancelFunc) {
	s.cycleMu.Lock()
	s.cycleCancel = cancel
	s.cycleMu.Unlock()
}

func (s *Supervisor) updateStatus(fn func(*Status)) {
	s.mu.Lock()
	fn(&s.status)
	s.mu.Unlock()
}

func (s *Supervisor) setPhase(phase Phase) {
	s.updateStatus(func(st *Status) { st.Phase = phase })
}

func (s *Supervisor) phase() Phase {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status.Phase
}

func (s *Supervisor) setRecording(on bool) {
	s.updateStatus(func(st *Status) { st.Recording = on || (s.cam.Autostart && !s.stopReq.Load()) })
}

// publish sends msg and, for lifecycle statuses, remembers it as the current
// state. Failures are logged and dropped.
func (s *Supervisor) publish(ctx context.Context, msg StatusMessage) {
	switch msg.Status {
	case StatusStopped, StatusStarted, StatusRestarting, StatusError:
		if msg.Deleted == "" {
			s.updateStatus(func(st *Status) { st.State = msg.Status })
		}
	}
	if err := s.opts.Publisher.PublishStatus(context.WithoutCancel(ctx), s.cam.Name, msg); err != nil {
		logging.WarnWithContext(s.logger, "status publish failed", "status_publish_failed",
			logging.String("status", msg.Status),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the MQTT broker connection"),
		)
	}
}

func (s *Supervisor) record(ctx context.Context, kind journal.Kind, detail string) {
	if s.opts.Journal == nil {
		return
	}
	ev := journal.Event{Camera: s.cam.Name, Kind: kind, Iteration: s.iteration.Load(), Detail: detail}
	if err := s.opts.Journal.Append(context.WithoutCancel(ctx), ev); err != nil {
		s.logger.Debug("journal append failed", logging.String("kind", string(kind)), logging.Error(err))
	}
}
