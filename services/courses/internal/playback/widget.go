// Package playback adapts an external video widget to the two signals the
// watch controller consumes: progress samples and end of playback.
package playback

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// State is a widget state code. Values follow the YouTube IFrame player.
type State int

const (
	StateUnstarted State = -1
	StateEnded     State = 0
	StatePlaying   State = 1
	StatePaused    State = 2
	StateBuffering State = 3
	StateCued      State = 5
)

var stateNames = map[State]string{
	StateUnstarted: "unstarted",
	StateEnded:     "ended",
	StatePlaying:   "playing",
	StatePaused:    "paused",
	StateBuffering: "buffering",
	StateCued:      "cued",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "state(" + strconv.Itoa(int(s)) + ")"
}

// ParseState accepts a state name ("playing") or its numeric code ("1").
func ParseState(v string) (State, error) {
	v = strings.ToLower(strings.TrimSpace(v))
	for s, n := range stateNames {
		if n == v {
			return s, nil
		}
	}
	if code, err := strconv.Atoi(v); err == nil {
		if _, ok := stateNames[State(code)]; ok {
			return State(code), nil
		}
	}
	return 0, fmt.Errorf("unknown player state %q", v)
}

// Widget is the external player. States is closed when the widget is
// destroyed.
type Widget interface {
	States() <-chan State
	CurrentTime() float64
	Duration() float64
	Destroy() error
}

// Sink receives the normalized signals. Implementations must return promptly
// once ctx is done.
type Sink interface {
	Progress(ctx context.Context, fraction int)
	Ended(ctx context.Context)
}

// Loader creates the widget for one video. Each session owns its own Loader.
type Loader interface {
	Load(ctx context.Context, videoID, playbackRef string) (Widget, error)
}
