package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facegate/internal/constants"
	"github.com/kozaktomas/facegate/internal/door"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/recognition"
	"github.com/kozaktomas/facegate/internal/status"
)

// Topic suffixes under <prefix>/<device>/.
const (
	TopicLock   = "lock"
	TopicAccess = "access"
	TopicStatus = "status"
	TopicOnline = "online"
)

// Topic joins prefix, device id and suffix.
func Topic(prefix, deviceID, suffix string) string {
	return strings.Trim(prefix, "/") + "/" + deviceID + "/" + suffix
}

// Publisher sends a payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte, retain bool) error
}

// LockEvent is published on every command and every device report that changes the belief.
type LockEvent struct {
	EventID  string    `json:"event_id"`
	DeviceID string    `json:"device_id"`
	Source   string    `json:"source"`
	Lock     string    `json:"lock"`
	Command  string    `json:"command,omitempty"`
	Message  string    `json:"message,omitempty"`
	Reed     string    `json:"reed"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

// AccessEvent is published when OPEN is commanded for a recognised identity.
type AccessEvent struct {
	EventID  string    `json:"event_id"`
	DeviceID string    `json:"device_id"`
	Name     string    `json:"name"`
	Label    int       `json:"label"`
	Score    float64   `json:"score"`
	At       time.Time `json:"at"`
}

// StatusEvent mirrors the operator status board.
type StatusEvent struct {
	DeviceID string    `json:"device_id"`
	Status   string    `json:"status"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

type message struct {
	topic   string
	payload []byte
	retain  bool
}

// Events queues door events and publishes them off the frame loop.
type Events struct {
	pub      Publisher
	prefix   string
	deviceID string
	metrics  *metrics.Metrics
	queue    chan message
}

// NewEvents creates an event publisher. Call Run to start delivery.
func NewEvents(pub Publisher, prefix, deviceID string, m *metrics.Metrics) *Events {
	return &Events{
		pub:      pub,
		prefix:   prefix,
		deviceID: deviceID,
		metrics:  m,
		queue:    make(chan message, constants.EventChannelBuffer),
	}
}

// Run publishes queued events until ctx is done.
func (e *Events) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-e.queue:
			err := e.pub.Publish(ctx, msg.topic, msg.payload, msg.retain)
			e.metrics.ObservePublish(err)
			if err != nil {
				slog.Debug("mqtt: publish failed", "topic", msg.topic, "error", err)
			}
		}
	}
}

// Lock queues a lock event. Device lines that leave the belief unchanged are only
// published when they carry reed information.
func (e *Events) Lock(ev door.Event) {
	if ev.Source == door.SourceDevice && !ev.Changed &&
		ev.Message != door.MessageSensorClosed && ev.Message != door.MessageSensorOpened {
		return
	}
	le := LockEvent{
		EventID:  uuid.NewString(),
		DeviceID: e.deviceID,
		Source:   string(ev.Source),
		Lock:     ev.Belief.String(),
		Command:  string(ev.Command),
		Reed:     ev.Reed.String(),
		At:       ev.At,
	}
	if ev.Message != door.MessageIgnored {
		le.Message = ev.Message.String()
	}
	if ev.Err != nil {
		le.Error = ev.Err.Error()
	}
	e.enqueue(TopicLock, le, true)
}

// Access queues an access event for an accepted verdict.
func (e *Events) Access(v recognition.Verdict, at time.Time) {
	e.enqueue(TopicAccess, AccessEvent{
		EventID:  uuid.NewString(),
		DeviceID: e.deviceID,
		Name:     v.Name,
		Label:    v.Label,
		Score:    v.Score,
		At:       at,
	}, false)
}

// Status queues a status board update.
func (e *Events) Status(entry status.Entry) {
	e.enqueue(TopicStatus, StatusEvent{
		DeviceID: e.deviceID,
		Status:   entry.Status,
		Message:  entry.Message,
		At:       entry.UpdatedAt,
	}, true)
}

func (e *Events) enqueue(suffix string, v any, retain bool) {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("mqtt: encode event", "topic", suffix, "error", err)
		return
	}
	select {
	case e.queue <- message{topic: Topic(e.prefix, e.deviceID, suffix), payload: payload, retain: retain}:
	default:
		slog.Warn("mqtt: event queue full, dropping event", "topic", suffix)
	}
}
