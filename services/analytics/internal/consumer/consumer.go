// Package consumer runs the JetStream pull consumer of the analytics service.
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
)

const durableName = "analytics_posthog"

// Dispatcher handles one message; *handler.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(subject string, data []byte) bool
}

type Consumer struct {
	sub        *nats.Subscription
	dispatcher Dispatcher
	batchSize  int
	wait       time.Duration
	log        *zap.Logger
}

// New provisions the ANALYTICS stream and binds a durable pull subscription.
func New(nc *nats.Conn, d Dispatcher, batchSize int, wait time.Duration, log *zap.Logger) (*Consumer, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, err
	}
	if err := analytics.EnsureStream(js, log); err != nil {
		return nil, err
	}
	sub, err := js.PullSubscribe(analytics.SubjectAll, durableName, nats.BindStream(analytics.StreamName))
	if err != nil {
		return nil, err
	}
	return &Consumer{sub: sub, dispatcher: d, batchSize: batchSize, wait: wait, log: log}, nil
}

// Run fetches and dispatches messages until ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := c.sub.Fetch(c.batchSize, nats.MaxWait(c.wait))
		if err != nil {
			if errors.Is(err, nats.ErrTimeout) {
				continue
			}
			c.log.Error("analytics consumer: fetch", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		handled := 0
		for _, msg := range msgs {
			if c.dispatcher.Dispatch(msg.Subject, msg.Data) {
				handled++
			}
			if err := msg.Ack(); err != nil {
				c.log.Warn("analytics consumer: ack", zap.Error(err))
			}
		}
		c.log.Debug("analytics consumer: batch", zap.Int("fetched", len(msgs)), zap.Int("captured", handled))
	}
}
