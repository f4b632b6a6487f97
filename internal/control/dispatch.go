package control

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"

	"sxvrs/internal/logging"
)

// Camera commands accepted on a camera topic.
const (
	CmdRecordStart  = "record_start"
	CmdRecordStop   = "record_stop"
	CmdStatus       = "status"
	CmdWatcherStart = "watcher_start"
	CmdWatcherStop  = "watcher_stop"
	CmdRestart      = "restart"
)

// Command is the JSON payload of a control message.
type Command struct {
	Cmd string `json:"cmd"`
}

// Camera is the control surface of one camera supervisor.
type Camera interface {
	RecordStart()
	RecordStop()
	WatcherStart()
	WatcherStop()
	PublishStatus(ctx context.Context) error
}

// Registry resolves camera names.
type Registry interface {
	Names() []string
	Lookup(name string) (Camera, bool)
}

// Sender publishes a raw payload.
type Sender interface {
	Send(ctx context.Context, topic string, payload []byte) error
}

// Dispatcher routes control messages to cameras and the daemon.
type Dispatcher struct {
	registry Registry
	sender   Sender
	topics   Topics
	restart  func(source string)
	logger   *slog.Logger
}

// NewDispatcher builds a dispatcher. restart is invoked for a daemon restart
// command and may be nil.
func NewDispatcher(registry Registry, sender Sender, topics Topics, restart func(source string), logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		sender:   sender,
		topics:   topics,
		restart:  restart,
		logger:   logging.NewComponentLogger(logger, "control"),
	}
}

// Handle processes one message. Unknown topics, unknown commands, and
// malformed payloads are logged at debug and ignored.
func (d *Dispatcher) Handle(ctx context.Context, topic string, payload []byte) {
	source := Source(topic)
	switch Fold(source) {
	case ListSource:
		d.publishList(ctx)
		return
	case DaemonSource:
		cmd, ok := d.parse(topic, payload)
		if !ok {
			return
		}
		if cmd == CmdRestart {
			d.logger.Info("daemon restart requested", logging.String("topic", topic))
			if d.restart != nil {
				d.restart("mqtt")
			}
			return
		}
		d.logger.Debug("unknown daemon command", logging.String("cmd", cmd))
		return
	}

	cam, name, ok := d.lookup(source)
	if !ok {
		d.logger.Debug("message for unknown source ignored", logging.String("topic", topic))
		return
	}
	cmd, ok := d.parse(topic, payload)
	if !ok {
		return
	}
	logger := d.logger.With(logging.String(logging.FieldCamera, name))
	switch cmd {
	case CmdRecordStart:
		cam.RecordStart()
	case CmdRecordStop:
		cam.RecordStop()
	case CmdWatcherStart:
		cam.WatcherStart()
	case CmdWatcherStop:
		cam.WatcherStop()
	case CmdStatus:
		if err := cam.PublishStatus(ctx); err != nil {
			logging.WarnWithContext(logger, "status publish failed", "status_publish_failed", logging.Error(err))
		}
	default:
		logger.Debug("unknown camera command", logging.String("cmd", cmd))
		return
	}
	logger.Info("control command applied", logging.String("cmd", cmd))
}

func (d *Dispatcher) parse(topic string, payload []byte) (string, bool) {
	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		d.logger.Debug("malformed control payload ignored",
			logging.String("topic", topic),
			logging.Error(err),
		)
		return "", false
	}
	return Fold(cmd.Cmd), true
}

func (d *Dispatcher) lookup(source string) (Camera, string, bool) {
	if cam, ok := d.registry.Lookup(source); ok {
		return cam, source, true
	}
	folded := Fold(source)
	for _, name := range d.registry.Names() {
		if Fold(name) == folded {
			cam, ok := d.registry.Lookup(name)
			return cam, name, ok
		}
	}
	return nil, "", false
}

func (d *Dispatcher) publishList(ctx context.Context) {
	names := slices.Clone(d.registry.Names())
	if names == nil {
		names = []string{}
	}
	payload, err := json.Marshal(names)
	if err != nil {
		d.logger.Debug("marshal camera list failed", logging.Error(err))
		return
	}
	if err := d.sender.Send(ctx, d.topics.Publish(ListSource), payload); err != nil {
		logging.WarnWithContext(d.logger, "camera list publish failed", "status_publish_failed", logging.Error(err))
	}
}
