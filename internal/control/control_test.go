package control

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"sxvrs/internal/config"
	"sxvrs/internal/logging"
)

type fakeCamera struct {
	mu    sync.Mutex
	calls []string
	err   error
}

func (c *fakeCamera) note(call string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
}

func (c *fakeCamera) RecordStart()  { c.note(CmdRecordStart) }
func (c *fakeCamera) RecordStop()   { c.note(CmdRecordStop) }
func (c *fakeCamera) WatcherStart() { c.note(CmdWatcherStart) }
func (c *fakeCamera) WatcherStop()  { c.note(CmdWatcherStop) }

func (c *fakeCamera) PublishStatus(context.Context) error {
	c.note(CmdStatus)
	return c.err
}

type fakeRegistry map[string]*fakeCamera

func (r fakeRegistry) Names() []string {
	names := make([]string, 0, len(r))
	for name := range r {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r fakeRegistry) Lookup(name string) (Camera, bool) {
	cam, ok := r[name]
	if !ok {
		return nil, false
	}
	return cam, true
}

type sent struct {
	topic   string
	payload []byte
}

type fakeSender struct {
	msgs []sent
}

func (s *fakeSender) Send(_ context.Context, topic string, payload []byte) error {
	s.msgs = append(s.msgs, sent{topic: topic, payload: payload})
	return nil
}

func newTestDispatcher(t *testing.T, reg fakeRegistry, restart func(string)) (*Dispatcher, *fakeSender) {
	t.Helper()
	topics, err := NewTopics("sxvrs/clients/{source_name}", "sxvrs/daemon/{source_name}")
	if err != nil {
		t.Fatalf("NewTopics: %v", err)
	}
	sender := &fakeSender{}
	return NewDispatcher(reg, sender, topics, restart, logging.NewNop()), sender
}

func TestListPublishesCameraNames(t *testing.T) {
	reg := fakeRegistry{"porch": {}, "garage": {}, "yard": {}}
	d, sender := newTestDispatcher(t, reg, nil)

	d.Handle(context.Background(), "sxvrs/daemon/list", nil)

	if len(sender.msgs) != 1 {
		t.Fatalf("expected one publish, got %d", len(sender.msgs))
	}
	if sender.msgs[0].topic != "sxvrs/clients/list" {
		t.Fatalf("unexpected topic %q", sender.msgs[0].topic)
	}
	var names []string
	if err := json.Unmarshal(sender.msgs[0].payload, &names); err != nil {
		t.Fatalf("payload is not a JSON array: %v", err)
	}
	if len(names) != 3 || names[0] != "garage" || names[2] != "yard" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestListWithNoCamerasIsEmptyArray(t *testing.T) {
	d, sender := newTestDispatcher(t, fakeRegistry{}, nil)
	d.Handle(context.Background(), "sxvrs/daemon/LIST", []byte(`{}`))
	if len(sender.msgs) != 1 || string(sender.msgs[0].payload) != "[]" {
		t.Fatalf("unexpected publish %+v", sender.msgs)
	}
}

func TestCameraCommandsAreCaseInsensitive(t *testing.T) {
	porch := &fakeCamera{}
	d, sender := newTestDispatcher(t, fakeRegistry{"porch": porch}, nil)
	ctx := context.Background()

	d.Handle(ctx, "sxvrs/daemon/porch", []byte(`{"cmd":"record_start"}`))
	d.Handle(ctx, "sxvrs/daemon/Porch", []byte(`{"cmd":"RECORD_STOP"}`))
	d.Handle(ctx, "sxvrs/daemon/PORCH", []byte(`{"cmd":"Watcher_Start"}`))
	d.Handle(ctx, "sxvrs/daemon/porch", []byte(`{"cmd":"watcher_stop"}`))
	d.Handle(ctx, "sxvrs/daemon/porch", []byte(`{"cmd":"status"}`))

	want := []string{CmdRecordStart, CmdRecordStop, CmdWatcherStart, CmdWatcherStop, CmdStatus}
	if len(porch.calls) != len(want) {
		t.Fatalf("calls = %v, want %v", porch.calls, want)
	}
	for i := range want {
		if porch.calls[i] != want[i] {
			t.Fatalf("calls = %v, want %v", porch.calls, want)
		}
	}
	if len(sender.msgs) != 0 {
		t.Fatalf("dispatcher should not publish for camera commands, got %d", len(sender.msgs))
	}
}

func TestUnknownInputsAreIgnored(t *testing.T) {
	porch := &fakeCamera{err: errors.New("broker down")}
	restarts := 0
	d, sender := newTestDispatcher(t, fakeRegistry{"porch": porch}, func(string) { restarts++ })
	ctx := context.Background()

	d.Handle(ctx, "sxvrs/daemon/attic", []byte(`{"cmd":"record_start"}`))
	d.Handle(ctx, "sxvrs/daemon/porch", []byte(`{"cmd":"dance"}`))
	d.Handle(ctx, "sxvrs/daemon/porch", []byte(`not json`))
	d.Handle(ctx, "sxvrs/daemon/daemon", []byte(`{"cmd":"shutdown"}`))
	d.Handle(ctx, "sxvrs/daemon/porch", []byte(`{"cmd":"status"}`))

	if len(porch.calls) != 1 || porch.calls[0] != CmdStatus {
		t.Fatalf("unexpected calls %v", porch.calls)
	}
	if restarts != 0 || len(sender.msgs) != 0 {
		t.Fatalf("restarts=%d publishes=%d, want 0 and 0", restarts, len(sender.msgs))
	}
}

func TestDaemonRestartInvokesCallback(t *testing.T) {
	var source string
	d, _ := newTestDispatcher(t, fakeRegistry{}, func(s string) { source = s })
	d.Handle(context.Background(), "sxvrs/daemon/daemon", []byte(`{"cmd":"Restart"}`))
	if source != "mqtt" {
		t.Fatalf("restart source = %q, want mqtt", source)
	}
}

func TestTopics(t *testing.T) {
	topics, err := NewTopics("sxvrs/clients/{source_name}", "sxvrs/daemon/{source_name}")
	if err != nil {
		t.Fatalf("NewTopics: %v", err)
	}
	if got := topics.Filter(); got != "sxvrs/daemon/#" {
		t.Fatalf("Filter = %q", got)
	}
	if got := topics.Publish("porch"); got != "sxvrs/clients/porch" {
		t.Fatalf("Publish = %q", got)
	}
	if _, err := NewTopics("sxvrs/{camera}", "sxvrs/daemon/{source_name}"); err == nil {
		t.Fatal("expected unknown placeholder error")
	}

	sources := map[string]string{
		"sxvrs/daemon/porch":  "porch",
		"sxvrs/daemon/porch/": "porch",
		"list":                "list",
	}
	for topic, want := range sources {
		if got := Source(topic); got != want {
			t.Fatalf("Source(%q) = %q, want %q", topic, got, want)
		}
	}
}

// reconnectingClient models a paho client that lost its connection and is
// retrying in the background.
type reconnectingClient struct {
	mqtt.Client
	disconnects int
}

func (c *reconnectingClient) IsConnected() bool      { return false }
func (c *reconnectingClient) IsConnectionOpen() bool { return false }
func (c *reconnectingClient) Disconnect(uint)        { c.disconnects++ }

func TestDisconnectStopsReconnectingClient(t *testing.T) {
	cfg := config.Default()
	topics, err := NewTopics(cfg.MQTT.TopicPublish, cfg.MQTT.TopicSubscribe)
	if err != nil {
		t.Fatalf("NewTopics: %v", err)
	}
	c := NewClient(&cfg, topics, logging.NewNop())
	fake := &reconnectingClient{}
	c.client = fake

	c.Disconnect(10 * time.Millisecond)
	if fake.disconnects != 1 {
		t.Fatalf("expected Disconnect to reach paho while reconnecting, got %d calls", fake.disconnects)
	}
}
