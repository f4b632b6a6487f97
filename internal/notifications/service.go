package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sxvrs/internal/config"
)

const userAgent = "sxvrs/0.1.0"

// Event identifies a notification-worthy daemon occurrence.
type Event string

const (
	EventCameraBackoff    Event = "camera_backoff"
	EventCameraRecovered  Event = "camera_recovered"
	EventCameraDisabled   Event = "camera_disabled"
	EventRestartRequested Event = "restart_requested"
	EventTest             Event = "test"
)

// Payload carries event fields. Keys are event specific.
type Payload map[string]any

// Service defines the notification surface exposed to camera supervisors and the daemon.
type Service interface {
	Publish(ctx context.Context, event Event, payload Payload) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
		enabled: map[Event]bool{
			EventCameraBackoff:    cfg.Notifications.Backoff,
			EventCameraRecovered:  cfg.Notifications.Backoff,
			EventCameraDisabled:   true,
			EventRestartRequested: cfg.Notifications.Restart,
			EventTest:             true,
		},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
	enabled  map[Event]bool
}

func (n *ntfyService) Publish(ctx context.Context, event Event, data Payload) error {
	if n == nil || !n.enabled[event] {
		return nil
	}
	msg, ok := format(event, data)
	if !ok {
		return nil
	}
	return n.send(ctx, msg)
}

func format(event Event, data Payload) (payload, bool) {
	camera := data.text("camera")
	switch event {
	case EventCameraBackoff:
		message := fmt.Sprintf("Camera %s failed to start %d times; retrying in %s", camera, data.number("errors"), data.text("sleep"))
		if last := data.text("error"); last != "" {
			message += "\nLast error: " + last
		}
		return payload{
			title:    "sxvrs - Camera Offline",
			message:  message,
			tags:     []string{"sxvrs", "camera", "backoff"},
			priority: "high",
		}, true
	case EventCameraRecovered:
		return payload{
			title:   "sxvrs - Camera Recording",
			message: fmt.Sprintf("Camera %s is recording again", camera),
			tags:    []string{"sxvrs", "camera", "recovered"},
		}, true
	case EventCameraDisabled:
		return payload{
			title:    "sxvrs - Camera Disabled",
			message:  fmt.Sprintf("Camera %s was disabled: %s", camera, data.text("error")),
			tags:     []string{"sxvrs", "camera", "error"},
			priority: "high",
		}, true
	case EventRestartRequested:
		message := "Daemon restart requested"
		if source := data.text("source"); source != "" {
			message += " via " + source
		}
		return payload{
			title:   "sxvrs - Restarting",
			message: message,
			tags:    []string{"sxvrs", "daemon", "restart"},
		}, true
	case EventTest:
		return payload{
			title:    "sxvrs - Test",
			message:  "Notification system test",
			tags:     []string{"sxvrs", "test"},
			priority: "low",
		}, true
	default:
		return payload{}, false
	}
}

func (p Payload) text(key string) string {
	if p == nil {
		return ""
	}
	switch v := p[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case error:
		return strings.TrimSpace(v.Error())
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

func (p Payload) number(key string) int {
	if p == nil {
		return 0
	}
	switch v := p[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	default:
		return 0
	}
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) Publish(context.Context, Event, Payload) error { return nil }
