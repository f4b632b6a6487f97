package control

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"

	"sxvrs/internal/expand"
)

// ListSource is the topic segment that requests the camera list.
const ListSource = "list"

// DaemonSource is the topic segment addressed to the daemon itself.
const DaemonSource = "daemon"

// Topics expands the configured publish and subscribe templates.
type Topics struct {
	publish   string
	subscribe string
}

// NewTopics validates both templates against the {source_name} placeholder.
func NewTopics(publish, subscribe string) (Topics, error) {
	for name, tmpl := range map[string]string{"topic_publish": publish, "topic_subscribe": subscribe} {
		if strings.TrimSpace(tmpl) == "" {
			return Topics{}, fmt.Errorf("%s is required", name)
		}
		if err := expand.Check(tmpl, "source_name"); err != nil {
			return Topics{}, fmt.Errorf("%s: %w", name, err)
		}
	}
	return Topics{publish: publish, subscribe: subscribe}, nil
}

// Publish returns the topic status for source is published on.
func (t Topics) Publish(source string) string {
	return expand.MustExpand(t.publish, expand.Vars{"source_name": source})
}

// Filter returns the wildcard subscription covering every source.
func (t Topics) Filter() string {
	return expand.MustExpand(t.subscribe, expand.Vars{"source_name": "#"})
}

// Source extracts the addressed source from a received topic: its last segment.
func Source(topic string) string {
	topic = strings.TrimRight(topic, "/")
	if idx := strings.LastIndexByte(topic, '/'); idx >= 0 {
		return topic[idx+1:]
	}
	return topic
}

// Fold normalizes s for case-insensitive comparison.
func Fold(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}
