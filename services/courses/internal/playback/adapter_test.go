package playback

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeWidget struct {
	states chan State

	mu        sync.Mutex
	current   float64
	duration  float64
	destroyed int
	err       error
}

func newFakeWidget() *fakeWidget {
	return &fakeWidget{states: make(chan State)}
}

func (w *fakeWidget) States() <-chan State { return w.states }

func (w *fakeWidget) set(current, duration float64) {
	w.mu.Lock()
	w.current, w.duration = current, duration
	w.mu.Unlock()
}

func (w *fakeWidget) CurrentTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *fakeWidget) Duration() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duration
}

func (w *fakeWidget) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.destroyed++
	return w.err
}

type manualTicker struct {
	c       chan time.Time
	stopped chan struct{}
	once    sync.Once
}

func (t *manualTicker) C() <-chan time.Time { return t.c }
func (t *manualTicker) Stop()               { t.once.Do(func() { close(t.stopped) }) }

type chanSink struct {
	progress chan int
	ended    chan struct{}
}

func newChanSink() *chanSink {
	return &chanSink{progress: make(chan int, 16), ended: make(chan struct{}, 16)}
}

func (s *chanSink) Progress(_ context.Context, f int) { s.progress <- f }
func (s *chanSink) Ended(context.Context)             { s.ended <- struct{}{} }

func newTestAdapter() (*Adapter, chan *manualTicker) {
	created := make(chan *manualTicker, 4)
	a := NewAdapter(time.Second, nil)
	a.NewTicker = func(time.Duration) Ticker {
		t := &manualTicker{c: make(chan time.Time), stopped: make(chan struct{})}
		created <- t
		return t
	}
	return a, created
}

func waitTicker(t *testing.T, created chan *manualTicker) *manualTicker {
	t.Helper()
	select {
	case tk := <-created:
		return tk
	case <-time.After(2 * time.Second):
		t.Fatal("ticker was not started")
		return nil
	}
}

func waitProgress(t *testing.T, s *chanSink) int {
	t.Helper()
	select {
	case f := <-s.progress:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("no progress sample")
		return 0
	}
}

func TestAdapter_SamplesWhilePlaying(t *testing.T) {
	a, created := newTestAdapter()
	w := newFakeWidget()
	sink := newChanSink()
	if err := a.Mount(context.Background(), w, sink); err != nil {
		t.Fatalf("mount: %v", err)
	}
	defer a.Close()

	w.set(30, 120)
	w.states <- StatePlaying
	tk := waitTicker(t, created)
	tk.c <- time.Now()
	if got := waitProgress(t, sink); got != 25 {
		t.Fatalf("expected 25, got %d", got)
	}

	w.set(61, 120)
	tk.c <- time.Now()
	if got := waitProgress(t, sink); got != 51 {
		t.Fatalf("expected 51, got %d", got)
	}

	w.states <- StatePaused
	select {
	case <-tk.stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("sampling did not stop on pause")
	}
}

func TestAdapter_SkipsUnknownDuration(t *testing.T) {
	a, created := newTestAdapter()
	w := newFakeWidget()
	sink := newChanSink()
	_ = a.Mount(context.Background(), w, sink)
	defer a.Close()

	w.states <- StatePlaying
	tk := waitTicker(t, created)
	tk.c <- time.Now()
	// Received only once the tick above has been handled.
	w.states <- StatePlaying

	w.set(50, 100)
	tk.c <- time.Now()
	if got := waitProgress(t, sink); got != 50 {
		t.Fatalf("expected the first sample to come from the known duration, got %d", got)
	}
	if n := len(sink.progress); n != 0 {
		t.Fatalf("expected no extra samples, got %d", n)
	}
}

func TestAdapter_EndedOnce(t *testing.T) {
	a, _ := newTestAdapter()
	w := newFakeWidget()
	sink := newChanSink()
	_ = a.Mount(context.Background(), w, sink)

	w.states <- StateEnded
	w.states <- StateEnded
	a.Close()

	if n := len(sink.ended); n != 1 {
		t.Fatalf("expected exactly one ended signal, got %d", n)
	}
}

func TestAdapter_CloseStopsAndDestroys(t *testing.T) {
	a, created := newTestAdapter()
	w := newFakeWidget()
	w.err = errors.New("iframe gone")
	sink := newChanSink()
	_ = a.Mount(context.Background(), w, sink)

	w.states <- StatePlaying
	tk := waitTicker(t, created)
	a.Close()

	select {
	case <-tk.stopped:
	default:
		t.Fatal("ticker still running after close")
	}
	if w.destroyed != 1 {
		t.Fatalf("expected widget destroyed once, got %d", w.destroyed)
	}
	if a.Mounted() {
		t.Fatal("adapter should be unmounted")
	}
	a.Close()
	if w.destroyed != 1 {
		t.Fatal("second close must be a no-op")
	}
}

func TestAdapter_MountTwice(t *testing.T) {
	a, _ := newTestAdapter()
	_ = a.Mount(context.Background(), newFakeWidget(), newChanSink())
	defer a.Close()
	if err := a.Mount(context.Background(), newFakeWidget(), newChanSink()); !errors.Is(err, ErrMounted) {
		t.Fatalf("expected ErrMounted, got %v", err)
	}
}

func TestFraction(t *testing.T) {
	if _, ok := Fraction(10, 0); ok {
		t.Fatal("zero duration must not produce a sample")
	}
	if f, ok := Fraction(1, 3); !ok || f != 33 {
		t.Fatalf("expected 33, got %d (%v)", f, ok)
	}
}
