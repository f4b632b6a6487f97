package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"

	"sxvrs/internal/config"
	"sxvrs/internal/control"
	"sxvrs/internal/deps"
	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/notifications"
	"sxvrs/internal/pipeline"
	"sxvrs/internal/preflight"
	"sxvrs/internal/recorder"
	"sxvrs/internal/services"
	"sxvrs/internal/staging"
	"sxvrs/internal/storage"
)

const (
	housekeepingInterval = time.Minute
	brokerQuiesce        = 250 * time.Millisecond
	releaseTimeout       = 30 * time.Second
)

// Broker is the control-plane connection shared by every camera.
type Broker interface {
	recorder.Publisher
	control.Sender
	SetHandler(h control.Handler)
	Connect(ctx context.Context) error
	Connected() bool
	Disconnect(quiesce time.Duration)
}

// Dependencies are the shared services wired into the cameras. Nil members
// disable the matching feature.
type Dependencies struct {
	Broker   Broker
	Topics   control.Topics
	Journal  *journal.Store
	Scratch  *staging.Manager
	Notifier notifications.Service
}

// Daemon coordinates the camera supervisors and enforces single-instance execution.
type Daemon struct {
	cfg        *config.Config
	logger     *slog.Logger
	deps       Dependencies
	registry   *Registry
	dispatcher *control.Dispatcher
	api        *apiServer
	logPath    string

	lockPath string
	lock     *flock.Flock

	running      atomic.Bool
	startedAt    time.Time
	cancel       context.CancelFunc
	housekeeping sync.WaitGroup
	scratchReady atomic.Bool
	restart      chan string

	mu       sync.RWMutex
	disabled []DisabledCamera
}

// DisabledCamera is a configured camera that was not started.
type DisabledCamera struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

// Status represents daemon runtime information.
type Status struct {
	Running         bool              `json:"running"`
	PID             int               `json:"pid"`
	StartedAt       time.Time         `json:"started_at,omitzero"`
	BrokerConnected bool              `json:"broker_connected"`
	LockFilePath    string            `json:"lock_file_path"`
	JournalPath     string            `json:"journal_path,omitempty"`
	LogPath         string            `json:"log_path,omitempty"`
	Scratch         *staging.Usage    `json:"scratch,omitempty"`
	Cameras         []recorder.Status `json:"cameras"`
	Disabled        []DisabledCamera  `json:"disabled,omitempty"`
	Dependencies    []deps.Status     `json:"dependencies,omitempty"`
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, logger *slog.Logger, d Dependencies, logPath string) (*Daemon, error) {
	if cfg == nil || logger == nil {
		return nil, errors.New("daemon requires config and logger")
	}
	if d.Notifier == nil {
		d.Notifier = notifications.NewService(cfg)
	}

	lockPath := cfg.LockPath()
	daemon := &Daemon{
		cfg:      cfg,
		logger:   logger,
		deps:     d,
		registry: newRegistry(),
		logPath:  logPath,
		lockPath: lockPath,
		lock:     flock.New(lockPath),
		restart:  make(chan string, 1),
	}
	daemon.dispatcher = control.NewDispatcher(daemon.registry, d.Broker, d.Topics, daemon.RequestRestart, logger)
	api, err := newAPIServer(cfg, daemon, logger)
	if err != nil {
		return nil, err
	}
	daemon.api = api
	return daemon, nil
}

// Start acquires the daemon lock, prepares the scratch volume, connects to
// the broker, and launches one supervisor per valid camera.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another sxvrs daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	d.cancel = cancel
	d.prepareScratch(runCtx)
	d.pruneJournal(runCtx)

	if d.deps.Broker != nil {
		d.deps.Broker.SetHandler(d.dispatcher.Handle)
		if err := d.deps.Broker.Connect(runCtx); err != nil {
			d.abortStart()
			return fmt.Errorf("connect broker: %w", err)
		}
	}

	if err := d.startCameras(runCtx); err != nil {
		d.abortStart()
		return err
	}
	if err := d.api.start(runCtx); err != nil {
		logging.WarnWithContext(d.logger, "api server unavailable", "api_start_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check api.bind in the config file"),
			logging.String(logging.FieldImpact, "HTTP status and snapshot endpoints are disabled"),
		)
	}

	d.housekeeping.Add(1)
	go d.runHousekeeping(runCtx)

	d.mu.Lock()
	d.startedAt = time.Now()
	d.mu.Unlock()
	d.running.Store(true)
	d.logger.Info("sxvrs daemon started",
		logging.String("lock", d.lockPath),
		logging.Int("cameras", d.registry.Len()),
		logging.Int("disabled", len(d.Disabled())),
	)
	return nil
}

func (d *Daemon) abortStart() {
	for _, sup := range d.registry.All() {
		sup.Stop(0)
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.releaseScratch()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
}

// Stop shuts every supervisor down, disconnects the broker, releases the
// scratch volume, and drops the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}

	d.api.stop()
	timeout := time.Duration(d.cfg.Daemon.StopTimeoutSeconds) * time.Second
	var wg sync.WaitGroup
	for _, sup := range d.registry.All() {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sup.Stop(timeout)
		}()
	}
	wg.Wait()

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.housekeeping.Wait()
	if d.deps.Broker != nil {
		d.deps.Broker.Disconnect(brokerQuiesce)
	}
	d.releaseScratch()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.logger.Info("sxvrs daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.deps.Journal != nil {
		return d.deps.Journal.Close()
	}
	return nil
}

// RequestRestart asks the process owner to re-execute the daemon. Duplicate
// requests while one is pending are dropped.
func (d *Daemon) RequestRestart(source string) {
	select {
	case d.restart <- source:
	default:
		return
	}
	d.logger.Info("daemon restart requested",
		logging.String("source", source),
		logging.String(logging.FieldEventType, "restart_requested"),
	)
	ctx := context.Background()
	if d.deps.Journal != nil {
		_ = d.deps.Journal.Append(ctx, journal.Event{Camera: "daemon", Kind: journal.KindRestart, Detail: source})
	}
	if err := d.deps.Notifier.Publish(ctx, notifications.EventRestartRequested, notifications.Payload{"source": source}); err != nil {
		d.logger.Debug("restart notification failed", logging.Error(err))
	}
}

// RestartRequested delivers the source of each accepted restart request.
func (d *Daemon) RestartRequested() <-chan string {
	return d.restart
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// CameraLogPath returns the process log of the named camera.
func (d *Daemon) CameraLogPath(name string) (string, error) {
	sup, err := d.supervisor(name)
	if err != nil {
		return "", err
	}
	opts := logging.ProcessLogOptionsFromConfig(d.cfg)
	return logging.ProcessLogPath(opts.Dir, sup.Status().Name), nil
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	status := Status{
		Running:      d.running.Load(),
		PID:          os.Getpid(),
		StartedAt:    d.started(),
		LockFilePath: d.lockPath,
		LogPath:      d.logPath,
		Cameras:      d.Cameras(),
		Disabled:     d.Disabled(),
		Dependencies: preflight.CheckSystemDeps(ctx, d.cfg),
	}
	if d.deps.Broker != nil {
		status.BrokerConnected = d.deps.Broker.Connected()
	}
	if d.deps.Journal != nil {
		status.JournalPath = d.deps.Journal.Path()
	}
	if d.scratchReady.Load() {
		if usage, err := d.deps.Scratch.Usage(ctx); err == nil {
			status.Scratch = &usage
		}
	}
	return status
}

func (d *Daemon) started() time.Time {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.startedAt
}

// Cameras returns the status of every running camera in configuration order.
func (d *Daemon) Cameras() []recorder.Status {
	sups := d.registry.All()
	out := make([]recorder.Status, 0, len(sups))
	for _, sup := range sups {
		out = append(out, sup.Status())
	}
	return out
}

// Camera returns the status of one camera.
func (d *Daemon) Camera(name string) (recorder.Status, error) {
	sup, err := d.supervisor(name)
	if err != nil {
		return recorder.Status{}, err
	}
	return sup.Status(), nil
}

// Disabled lists cameras that were not started because of configuration errors.
func (d *Daemon) Disabled() []DisabledCamera {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]DisabledCamera, len(d.disabled))
	copy(out, d.disabled)
	return out
}

// RecordStart asks the named camera to record.
func (d *Daemon) RecordStart(name string) (recorder.Status, error) {
	return d.apply(name, (*recorder.Supervisor).RecordStart)
}

// RecordStop asks the named camera to stop recording.
func (d *Daemon) RecordStop(name string) (recorder.Status, error) {
	return d.apply(name, (*recorder.Supervisor).RecordStop)
}

// WatcherStart enables snapshot writing for the named camera.
func (d *Daemon) WatcherStart(name string) (recorder.Status, error) {
	return d.apply(name, (*recorder.Supervisor).WatcherStart)
}

// WatcherStop disables snapshot writing for the named camera.
func (d *Daemon) WatcherStop(name string) (recorder.Status, error) {
	return d.apply(name, (*recorder.Supervisor).WatcherStop)
}

// Reap runs an eviction pass over the named camera's storage.
func (d *Daemon) Reap(ctx context.Context, name string) (storage.Result, error) {
	sup, err := d.supervisor(name)
	if err != nil {
		return storage.Result{}, err
	}
	return sup.Reap(ctx)
}

// History lists journal events.
func (d *Daemon) History(ctx context.Context, q journal.Query) ([]journal.Event, error) {
	if d.deps.Journal == nil {
		return nil, services.Wrap(services.ErrUnavailable, "daemon", "history", "Event journal is not open", nil)
	}
	return d.deps.Journal.List(ctx, q)
}

// TestNotification sends a test notification using the current configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.deps.Notifier.Publish(ctx, notifications.EventTest, nil); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

func (d *Daemon) apply(name string, fn func(*recorder.Supervisor)) (recorder.Status, error) {
	sup, err := d.supervisor(name)
	if err != nil {
		return recorder.Status{}, err
	}
	fn(sup)
	return sup.Status(), nil
}

func (d *Daemon) supervisor(name string) (*recorder.Supervisor, error) {
	sup, ok := d.registry.Supervisor(strings.TrimSpace(name))
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "daemon", "camera", fmt.Sprintf("Unknown camera %q", name), nil)
	}
	return sup, nil
}

func (d *Daemon) startCameras(ctx context.Context) error {
	cameras, err := d.cfg.ResolveCameras()
	if err != nil {
		return services.Wrap(services.ErrConfiguration, "daemon", "cameras", "Failed to resolve cameras", err)
	}
	d.registry.reset()
	d.mu.Lock()
	d.disabled = nil
	d.mu.Unlock()

	opts := d.supervisorOptions()
	for _, cam := range cameras {
		if err := cam.Validate(); err != nil {
			d.registry.addDisabled(cam.Name)
			d.disable(ctx, cam.Name, err)
			continue
		}
		d.registry.add(recorder.New(cam, opts))
	}
	for _, sup := range d.registry.All() {
		sup.Start(ctx)
	}
	return nil
}

func (d *Daemon) supervisorOptions() recorder.Options {
	killGrace := time.Duration(d.cfg.Daemon.KillGraceSeconds) * time.Second
	opts := recorder.Options{
		Notifier:     d.deps.Notifier,
		Runner:       pipeline.NewRunner(d.logger, killGrace),
		Snapshotter:  pipeline.NewSnapshotter(d.cfg.FFmpegBinary(), d.logger),
		ProcessLogs:  logging.ProcessLogOptionsFromConfig(d.cfg),
		FFprobe:      d.cfg.FFprobeBinary(),
		PollInterval: time.Duration(d.cfg.Daemon.PollIntervalSeconds) * time.Second,
		KillGrace:    killGrace,
		Logger:       d.logger,
	}
	if d.deps.Broker != nil {
		opts.Publisher = d.deps.Broker
	}
	if d.deps.Journal != nil {
		opts.Journal = d.deps.Journal
	}
	if d.scratchReady.Load() {
		opts.Scratch = d.deps.Scratch
	}
	return opts
}

func (d *Daemon) disable(ctx context.Context, name string, err error) {
	logging.ErrorWithContext(d.logger, "camera disabled", "camera_config_invalid",
		logging.String(logging.FieldCamera, name),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "fix the camera entry in the config file and restart"),
		logging.String(logging.FieldImpact, "camera is not recorded; other cameras keep running"),
	)
	d.mu.Lock()
	d.disabled = append(d.disabled, DisabledCamera{Name: name, Reason: err.Error()})
	d.mu.Unlock()
	if d.deps.Journal != nil {
		_ = d.deps.Journal.Append(ctx, journal.Event{Camera: name, Kind: journal.KindCameraDisabled, Detail: err.Error()})
	}
	_ = d.deps.Notifier.Publish(ctx, notifications.EventCameraDisabled, notifications.Payload{
		"camera": name,
		"error":  err.Error(),
	})
}

func (d *Daemon) prepareScratch(ctx context.Context) {
	if d.deps.Scratch == nil {
		return
	}
	if err := d.deps.Scratch.Prepare(ctx); err != nil {
		logging.WarnWithContext(d.logger, "scratch volume unavailable", "scratch_prepare_failed",
			logging.String("path", d.deps.Scratch.Path()),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check scratch.path and scratch.mount_cmd"),
			logging.String(logging.FieldImpact, "frame staging and snapshots are disabled"),
		)
		return
	}
	d.scratchReady.Store(true)
}

func (d *Daemon) releaseScratch() {
	if !d.scratchReady.CompareAndSwap(true, false) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := d.deps.Scratch.Release(ctx); err != nil {
		logging.WarnWithContext(d.logger, "scratch volume release failed", "scratch_release_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "the scratch volume stays mounted"),
		)
	}
}

func (d *Daemon) pruneJournal(ctx context.Context) {
	if d.deps.Journal == nil || d.cfg.Logging.RetentionDays <= 0 {
		return
	}
	cutoff := time.Now().AddDate(0, 0, -d.cfg.Logging.RetentionDays)
	removed, err := d.deps.Journal.Prune(ctx, cutoff)
	if err != nil {
		d.logger.Warn("journal prune failed", logging.Error(err))
		return
	}
	if removed > 0 {
		d.logger.Info("journal pruned", logging.Int64("removed", removed))
	}
}

func (d *Daemon) runHousekeeping(ctx context.Context) {
	defer d.housekeeping.Done()
	ticker := time.NewTicker(housekeepingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if d.scratchReady.Load() {
				d.deps.Scratch.CleanStale(ctx)
			}
		}
	}
}
