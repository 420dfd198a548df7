package playback

import (
	"context"
	"errors"
	"math"
	"time"

	"go.uber.org/zap"
)

const DefaultInterval = time.Second

var ErrMounted = errors.New("playback: adapter already mounted")

// Ticker is the subset of *time.Ticker the adapter needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

// Adapter drives one mounted widget at a time. It is owned by a single
// goroutine; Mount and Close must not be called concurrently.
type Adapter struct {
	Interval  time.Duration
	NewTicker func(time.Duration) Ticker

	log    *zap.Logger
	widget Widget
	cancel context.CancelFunc
	done   chan struct{}
}

func NewAdapter(interval time.Duration, log *zap.Logger) *Adapter {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Adapter{Interval: interval, NewTicker: NewTimeTicker, log: log}
}

// Mount attaches to the widget's state stream and starts forwarding signals
// to sink until Close.
func (a *Adapter) Mount(ctx context.Context, w Widget, sink Sink) error {
	if a.widget != nil {
		return ErrMounted
	}
	ctx, cancel := context.WithCancel(ctx)
	a.widget = w
	a.cancel = cancel
	a.done = make(chan struct{})
	go a.run(ctx, w, sink, a.done)
	return nil
}

// Close stops sampling, waits for the adapter goroutine to exit and releases
// the widget. No signal from this mount is delivered after Close returns.
func (a *Adapter) Close() {
	if a.widget == nil {
		return
	}
	a.cancel()
	<-a.done
	if err := a.widget.Destroy(); err != nil {
		a.log.Warn("widget destroy failed", zap.Error(err))
	}
	a.widget = nil
	a.cancel = nil
	a.done = nil
}

func (a *Adapter) Mounted() bool { return a.widget != nil }

func (a *Adapter) run(ctx context.Context, w Widget, sink Sink, done chan struct{}) {
	defer close(done)

	var ticker Ticker
	var tick <-chan time.Time
	stop := func() {
		if ticker != nil {
			ticker.Stop()
			ticker, tick = nil, nil
		}
	}
	defer stop()

	states := w.States()
	last := StateUnstarted
	for {
		select {
		case <-ctx.Done():
			return
		case st, ok := <-states:
			if !ok {
				states = nil
				stop()
				continue
			}
			switch st {
			case StatePlaying:
				if ticker == nil {
					ticker = a.NewTicker(a.Interval)
					tick = ticker.C()
				}
			case StateEnded:
				stop()
				if last != StateEnded {
					sink.Ended(ctx)
				}
			default:
				stop()
			}
			last = st
		case <-tick:
			if frac, ok := Fraction(w.CurrentTime(), w.Duration()); ok {
				sink.Progress(ctx, frac)
			}
		}
	}
}

// Fraction converts a playback position to an integer percentage. It reports
// false while the duration is unknown.
func Fraction(current, duration float64) (int, bool) {
	if duration <= 0 || math.IsNaN(duration) || math.IsNaN(current) {
		return 0, false
	}
	return int(math.Round(100 * current / duration)), true
}
