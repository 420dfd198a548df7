package playback

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Report is one state-change report from the browser-hosted player.
type Report struct {
	State       State
	CurrentTime float64
	Duration    float64
}

// RemoteWidget is a Widget whose state is pushed by the browser. Repeated
// reports of the same state only update the position.
type RemoteWidget struct {
	VideoID     string
	PlaybackRef string

	mu        sync.Mutex
	current   float64
	duration  float64
	last      State
	states    chan State
	destroyed bool
}

func NewRemoteWidget(videoID, playbackRef string) *RemoteWidget {
	return &RemoteWidget{
		VideoID:     videoID,
		PlaybackRef: playbackRef,
		last:        StateUnstarted,
		states:      make(chan State, 16),
	}
}

// Report records the position and forwards a state change. It never blocks;
// it reports false when the widget is destroyed or the change was dropped.
func (w *RemoteWidget) Report(r Report) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return false
	}
	w.current = r.CurrentTime
	if r.Duration > 0 {
		w.duration = r.Duration
	}
	if r.State == w.last {
		return true
	}
	select {
	case w.states <- r.State:
		w.last = r.State
		return true
	default:
		return false
	}
}

func (w *RemoteWidget) States() <-chan State { return w.states }

func (w *RemoteWidget) CurrentTime() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

func (w *RemoteWidget) Duration() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.duration
}

func (w *RemoteWidget) Destroy() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.destroyed {
		return errors.New("widget already destroyed")
	}
	w.destroyed = true
	close(w.states)
	return nil
}

// RemoteLoader hands out RemoteWidgets. It belongs to one session and
// refuses to load after Close.
type RemoteLoader struct {
	mu     sync.Mutex
	closed bool
}

func NewRemoteLoader() *RemoteLoader { return &RemoteLoader{} }

func (l *RemoteLoader) Load(ctx context.Context, videoID, playbackRef string) (Widget, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil, errors.New("playback: loader closed")
	}
	if playbackRef == "" {
		return nil, fmt.Errorf("playback: video %s has no playback reference", videoID)
	}
	return NewRemoteWidget(videoID, playbackRef), nil
}

func (l *RemoteLoader) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
}
