// Package posthog forwards course analytics to PostHog.
package posthog

import (
	"time"

	ph "github.com/posthog/posthog-go"
	"go.uber.org/zap"
)

// Client wraps posthog-go. Distinct ids are anonymous device ids, so person
// profiles are never created.
type Client struct {
	ph  ph.Client
	log *zap.Logger
}

func New(apiKey, host string, flushInterval time.Duration, batchSize int, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	client, err := ph.NewWithConfig(apiKey, ph.Config{
		Endpoint:  host,
		BatchSize: batchSize,
		Interval:  flushInterval,
		Logger:    &zapLogger{log: log},
	})
	if err != nil {
		return nil, err
	}
	return &Client{ph: client, log: log}, nil
}

// Capture enqueues one event; PostHog batches and flushes in the background.
func (c *Client) Capture(distinctID, event string, at time.Time, props map[string]any) {
	if c == nil || c.ph == nil {
		return
	}
	p := ph.NewProperties().Set("$process_person_profile", false)
	for k, v := range props {
		p.Set(k, v)
	}
	if err := c.ph.Enqueue(ph.Capture{
		DistinctId: distinctID,
		Event:      event,
		Timestamp:  at,
		Properties: p,
	}); err != nil {
		c.log.Warn("posthog: enqueue failed", zap.String("event", event), zap.Error(err))
	}
}

// Close flushes buffered events.
func (c *Client) Close() error {
	if c == nil || c.ph == nil {
		return nil
	}
	return c.ph.Close()
}

type zapLogger struct {
	log *zap.Logger
}

func (z *zapLogger) Debugf(format string, args ...any) { z.log.Sugar().Debugf(format, args...) }
func (z *zapLogger) Logf(format string, args ...any)   { z.log.Sugar().Infof(format, args...) }
func (z *zapLogger) Warnf(format string, args ...any)  { z.log.Sugar().Warnf(format, args...) }
func (z *zapLogger) Errorf(format string, args ...any) { z.log.Sugar().Errorf(format, args...) }
