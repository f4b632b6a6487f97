package ipc

import (
	"time"

	"sxvrs/internal/daemon"
	"sxvrs/internal/journal"
	"sxvrs/internal/recorder"
	"sxvrs/internal/storage"
)

// StartRequest asks the daemon to start its cameras.
type StartRequest struct{}

// StartResponse indicates whether the cameras were started.
type StartResponse struct {
	Started bool   `json:"started"`
	Message string `json:"message"`
}

// StopRequest stops every camera.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// ShutdownRequest stops the cameras and exits the daemon process.
type ShutdownRequest struct{}

// ShutdownResponse acknowledges a shutdown request.
type ShutdownResponse struct {
	Accepted bool `json:"accepted"`
}

// RestartRequest asks the daemon process to re-execute itself.
type RestartRequest struct{}

// RestartResponse acknowledges a restart request.
type RestartResponse struct {
	Accepted bool `json:"accepted"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse wraps the daemon status snapshot.
type StatusResponse struct {
	daemon.Status
}

// ListRequest lists cameras.
type ListRequest struct{}

// ListResponse carries running and disabled cameras.
type ListResponse struct {
	Cameras  []recorder.Status       `json:"cameras"`
	Disabled []daemon.DisabledCamera `json:"disabled,omitempty"`
}

// CameraRequest addresses one camera by name.
type CameraRequest struct {
	Name string `json:"name"`
}

// CameraResponse carries one camera status after the command was applied.
type CameraResponse struct {
	Camera recorder.Status `json:"camera"`
}

// ReapResponse summarizes an eviction pass.
type ReapResponse struct {
	Root           string      `json:"root"`
	Deleted        []string    `json:"deleted"`
	DeletedBytes   int64       `json:"deleted_bytes"`
	RemovedDirs    []string    `json:"removed_dirs"`
	Kept           int         `json:"kept"`
	RemainingBytes int64       `json:"remaining_bytes"`
	Errors         []ReapError `json:"errors,omitempty"`
}

// NewReapResponse converts a reap pass result for the wire.
func NewReapResponse(result storage.Result) ReapResponse {
	resp := ReapResponse{
		Root:           result.Root,
		Deleted:        result.Deleted,
		DeletedBytes:   result.DeletedBytes,
		RemovedDirs:    result.RemovedDirs,
		Kept:           result.Kept,
		RemainingBytes: result.RemainingBytes,
	}
	for _, e := range result.Errors {
		resp.Errors = append(resp.Errors, ReapError{Path: e.Path, Message: e.Error.Error()})
	}
	return resp
}

// ReapError is a file the reaper could not remove.
type ReapError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// HistoryRequest filters journal events.
type HistoryRequest struct {
	Camera string    `json:"camera"`
	Kind   string    `json:"kind"`
	Since  time.Time `json:"since,omitzero"`
	Limit  int       `json:"limit"`
}

// HistoryResponse lists journal events, newest first.
type HistoryResponse struct {
	Events []journal.Event `json:"events"`
}

// LogTailRequest requests log lines from the daemon log or a camera process log.
type LogTailRequest struct {
	Camera     string `json:"camera"`
	Offset     int64  `json:"offset"`
	Limit      int    `json:"limit"`
	Follow     bool   `json:"follow"`
	WaitMillis int    `json:"wait_millis"`
}

// LogTailResponse returns log lines and the next offset.
type LogTailResponse struct {
	Path   string   `json:"path"`
	Lines  []string `json:"lines"`
	Offset int64    `json:"offset"`
}

// TestNotificationRequest triggers a test notification.
type TestNotificationRequest struct{}

// TestNotificationResponse reports the result.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
