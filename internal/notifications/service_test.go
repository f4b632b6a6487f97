package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"sxvrs/internal/config"
	"sxvrs/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.Publish(context.Background(), notifications.EventCameraBackoff, notifications.Payload{"camera": "porch"}); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		event          notifications.Event
		payload        notifications.Payload
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name:  "camera backoff",
			event: notifications.EventCameraBackoff,
			payload: notifications.Payload{
				"camera": "porch",
				"errors": 10,
				"sleep":  "10m0s",
				"error":  errors.New("no frames from decoder"),
			},
			expectTitle:    "sxvrs - Camera Offline",
			expectMessage:  "Camera porch failed to start 10 times; retrying in 10m0s\nLast error: no frames from decoder",
			expectTags:     "sxvrs,camera,backoff",
			expectPriority: "high",
		},
		{
			name:          "camera recovered",
			event:         notifications.EventCameraRecovered,
			payload:       notifications.Payload{"camera": "garage"},
			expectTitle:   "sxvrs - Camera Recording",
			expectMessage: "Camera garage is recording again",
			expectTags:    "sxvrs,camera,recovered",
		},
		{
			name:          "restart",
			event:         notifications.EventRestartRequested,
			payload:       notifications.Payload{"source": "mqtt"},
			expectTitle:   "sxvrs - Restarting",
			expectMessage: "Daemon restart requested via mqtt",
			expectTags:    "sxvrs,daemon,restart",
		},
		{
			name:           "test",
			event:          notifications.EventTest,
			expectTitle:    "sxvrs - Test",
			expectMessage:  "Notification system test",
			expectTags:     "sxvrs,test",
			expectPriority: "low",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Errorf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := svc.Publish(context.Background(), tc.event, tc.payload); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceIgnoresSuppressedEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call for suppressed event: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Backoff = false
	cfg.Notifications.Restart = false

	svc := notifications.NewService(&cfg)
	suppressed := []notifications.Event{
		notifications.EventCameraBackoff,
		notifications.EventCameraRecovered,
		notifications.EventRestartRequested,
		notifications.Event("unknown"),
	}

	for _, event := range suppressed {
		if err := svc.Publish(context.Background(), event, notifications.Payload{"camera": "ignored"}); err != nil {
			t.Fatalf("expected no error for suppressed event %s, got %v", event, err)
		}
	}
}

func TestNtfyServiceReportsHTTPFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic locked", http.StatusForbidden)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	err := svc.Publish(context.Background(), notifications.EventTest, nil)
	if err == nil {
		t.Fatal("expected error for 403 response")
	}
}
