package analytics

import (
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	// StreamName is the JetStream stream holding every analytics.* event.
	StreamName = "ANALYTICS"
	// SubjectAll matches every analytics subject.
	SubjectAll = "analytics.>"
)

// StreamManager is the subset of nats.JetStreamContext used to provision the stream.
type StreamManager interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	UpdateStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
}

// StreamConfig is the ANALYTICS stream definition shared by publisher and consumer.
func StreamConfig() *nats.StreamConfig {
	return &nats.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{SubjectAll},
		Storage:   nats.FileStorage,
		Retention: nats.LimitsPolicy,
		MaxAge:    30 * 24 * time.Hour,
	}
}

// EnsureStream creates the ANALYTICS stream, or updates it when it already
// exists with a different definition.
func EnsureStream(js StreamManager, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	cfg := StreamConfig()
	_, err := js.AddStream(cfg)
	if err == nil {
		log.Info("analytics: stream created", zap.String("stream", StreamName))
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		return err
	}
	if _, err := js.UpdateStream(cfg); err != nil {
		log.Warn("analytics: stream update failed (may already be up to date)", zap.Error(err))
	}
	return nil
}
