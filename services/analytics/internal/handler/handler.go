// Package handler routes analytics.* messages to PostHog captures.
package handler

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
)

// Capturer is the analytics sink; *posthog.Client satisfies it.
type Capturer interface {
	Capture(distinctID, event string, at time.Time, props map[string]any)
}

// Dispatcher turns course events into captures. Events without a device are
// dropped; PostHog needs a distinct id.
type Dispatcher struct {
	sink Capturer
	log  *zap.Logger
}

func New(sink Capturer, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{sink: sink, log: log}
}

// captureNames maps each known subject to its PostHog event name.
var captureNames = map[string]string{
	analytics.SubjectCourseViewed:        "course_viewed",
	analytics.SubjectWatchSessionStarted: "watch_session_started",
	analytics.SubjectWatchVideoWatched:   "video_watched",
	analytics.SubjectWatchCourseComplete: "course_completed",
}

// Dispatch handles one message. It reports false when the message was
// dropped; the caller acks either way so bad payloads are not replayed.
func (d *Dispatcher) Dispatch(subject string, data []byte) bool {
	name, ok := captureNames[subject]
	if !ok {
		d.log.Debug("analytics: unhandled subject", zap.String("subject", subject))
		return false
	}

	var ev analytics.Event
	if err := json.Unmarshal(data, &ev); err != nil {
		d.log.Error("analytics: unmarshal message", zap.String("subject", subject), zap.Error(err))
		return false
	}
	if ev.DeviceID == "" {
		d.log.Debug("analytics: event without device dropped", zap.String("subject", subject))
		return false
	}

	props := make(map[string]any, len(ev.Properties)+1)
	for k, v := range ev.Properties {
		props[k] = v
	}
	props["event_id"] = ev.EventID

	at := ev.OccurredAt
	if at.IsZero() {
		at = time.Now().UTC()
	}
	d.sink.Capture(ev.DeviceID, name, at, props)
	return true
}
