package recorder

import (
	"context"
	"log/slog"
	"time"

	"sxvrs/internal/journal"
	"sxvrs/internal/logging"
	"sxvrs/internal/notifications"
	"sxvrs/internal/pipeline"
	"sxvrs/internal/staging"
)

// Phase is the supervisor lifecycle state.
type Phase string

const (
	PhaseStopped    Phase = "stopped"
	PhaseRecording  Phase = "recording"
	PhaseRestarting Phase = "restarting"
	PhaseShutdown   Phase = "shutdown"
)

// Published status values.
const (
	StatusStopped    = "stopped"
	StatusStarted    = "started"
	StatusRestarting = "restarting"
	StatusSnapshot   = "snapshot"
	StatusError      = "error"
)

// StatusMessage is the JSON body published for a camera.
type StatusMessage struct {
	Status     string `json:"status"`
	Deleted    string `json:"deleted,omitempty"`
	ErrorCount int    `json:"error_cnt,omitempty"`
	LatestFile string `json:"latest_file,omitempty"`
	Snapshot   string `json:"snapshot,omitempty"`
	Watcher    *bool  `json:"watcher,omitempty"`
}

// Publisher sends status messages to the control plane.
type Publisher interface {
	PublishStatus(ctx context.Context, camera string, msg StatusMessage) error
}

// Journal records lifecycle events.
type Journal interface {
	Append(ctx context.Context, ev journal.Event) error
}

// Scratch is the frame staging volume shared by all cameras.
type Scratch interface {
	staging.UsageSource
	FrameDir() string
}

// ReapSummary describes the most recent eviction pass.
type ReapSummary struct {
	Root           string    `json:"root"`
	At             time.Time `json:"at"`
	Deleted        int       `json:"deleted"`
	DeletedBytes   int64     `json:"deleted_bytes"`
	RemainingBytes int64     `json:"remaining_bytes"`
	RemovedDirs    int       `json:"removed_dirs"`
	Errors         int       `json:"errors"`
}

// Status is a point-in-time copy of a supervisor's observable state.
type Status struct {
	Name         string       `json:"name"`
	Phase        Phase        `json:"phase"`
	State        string       `json:"state"`
	Mode         string       `json:"mode"`
	Recording    bool         `json:"recording"`
	Watcher      bool         `json:"watcher"`
	Iteration    int64        `json:"iteration"`
	ErrorCount   int          `json:"error_cnt"`
	LatestFile   string       `json:"latest_file,omitempty"`
	Snapshot     string       `json:"snapshot,omitempty"`
	Frame        string       `json:"frame,omitempty"`
	LastError    string       `json:"last_error,omitempty"`
	CycleStarted time.Time    `json:"cycle_started,omitzero"`
	BackoffUntil time.Time    `json:"backoff_until,omitzero"`
	LastReap     *ReapSummary `json:"last_reap,omitempty"`
}

// Options wires a supervisor to shared daemon services. Nil fields fall back
// to no-op or default implementations.
type Options struct {
	Publisher    Publisher
	Journal      Journal
	Notifier     notifications.Service
	Runner       *pipeline.Runner
	Snapshotter  *pipeline.Snapshotter
	Scratch      Scratch
	ProcessLogs  logging.ProcessLogOptions
	FFprobe      string
	PollInterval time.Duration
	KillGrace    time.Duration
	Logger       *slog.Logger
}

type nopPublisher struct{}

func (nopPublisher) PublishStatus(context.Context, string, StatusMessage) error { return nil }
