// Package analytics provides a fire-and-forget NATS publisher for analytics events.
package analytics

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Subject constants for every analytics event type.
const (
	SubjectCourseViewed        = "analytics.catalog.course_viewed"
	SubjectWatchSessionStarted = "analytics.watch.session_started"
	SubjectWatchVideoWatched   = "analytics.watch.video_watched"
	SubjectWatchCourseComplete = "analytics.watch.course_completed"
)

// Event is the canonical envelope sent to all analytics.* subjects.
// DeviceID is the anonymous device the event originated from.
type Event struct {
	EventID    string         `json:"event_id"`
	EventName  string         `json:"event_name"`
	DeviceID   string         `json:"device_id,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
	Properties map[string]any `json:"properties,omitempty"`
}

// JetStream is the subset of nats.JetStreamContext the publisher needs.
type JetStream interface {
	PublishAsync(subj string, data []byte, opts ...nats.PubOpt) (nats.PubAckFuture, error)
}

// Publisher publishes analytics events to NATS JetStream.
// The zero value and a nil pointer are both safe no-op stubs.
type Publisher struct {
	js  JetStream
	log *zap.Logger
}

// New creates a Publisher using an existing JetStream context.
// Pass js=nil to get a no-op stub (useful in tests and when NATS is down).
func New(js JetStream, log *zap.Logger) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{js: js, log: log}
}

// Publish sends an analytics event asynchronously.
// Failures are logged as warnings and never surface to the caller.
func (p *Publisher) Publish(subject, eventName, deviceID string, props map[string]any) {
	if p == nil || p.js == nil {
		return
	}
	ev := Event{
		EventID:    uuid.NewString(),
		EventName:  eventName,
		DeviceID:   deviceID,
		OccurredAt: time.Now().UTC(),
		Properties: props,
	}
	data, err := json.Marshal(ev)
	if err != nil {
		p.log.Warn("analytics: marshal failed", zap.String("event", eventName), zap.Error(err))
		return
	}
	if _, err := p.js.PublishAsync(subject, data); err != nil {
		p.log.Warn("analytics: publish failed", zap.String("subject", subject), zap.Error(err))
	}
}
