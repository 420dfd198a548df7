// Package session runs one watch session per mounted watch page. A session is
// an actor: a single goroutine owns the controller, the playback adapter and
// the widget, and every event reaches it through one channel, so events are
// handled one at a time in arrival order.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/services/courses/internal/catalog"
	"github.com/example/course-platform/services/courses/internal/playback"
	"github.com/example/course-platform/services/courses/internal/watch"
)

var ErrClosed = errors.New("session closed")

// Events is the analytics sink; *analytics.Publisher satisfies it.
type Events interface {
	Publish(subject, eventName, deviceID string, props map[string]any)
}

// Reporter is implemented by widgets that are fed from outside the process.
type Reporter interface {
	Report(playback.Report) bool
}

type Config struct {
	ID           string
	DeviceID     string
	Course       catalog.Course
	StartVideoID string
	Store        watch.ProgressStore
	Loader       playback.Loader
	Interval     time.Duration
	NewTicker    func(time.Duration) playback.Ticker
	Events       Events
	Log          *zap.Logger
}

// Snapshot is the render model of a session.
type Snapshot struct {
	SessionID        string                  `json:"session_id"`
	CourseID         string                  `json:"course_id"`
	Empty            bool                    `json:"empty"`
	Current          *catalog.Video          `json:"current"`
	Next             *catalog.Video          `json:"next"`
	ProgressFraction int                     `json:"progress_fraction"`
	CourseProgress   int                     `json:"course_progress"`
	Watched          []string                `json:"watched"`
	WatchedCount     int                     `json:"watched_count"`
	TotalVideos      int                     `json:"total_videos"`
	Sections         []watch.SectionProgress `json:"sections"`
	PlayerError      string                  `json:"player_error,omitempty"`
}

type Session struct {
	ID       string
	DeviceID string
	CourseID string

	events     chan func(*actor)
	quit       chan struct{}
	done       chan struct{}
	closeOnce  sync.Once
	lastActive atomic.Int64
}

// actor is the state owned by the session goroutine.
type actor struct {
	s       *Session
	ctx     context.Context
	cfg     Config
	log     *zap.Logger
	ctrl    *watch.Controller
	adapter *playback.Adapter
	widget  playback.Widget
	mounted string
	gen     uint64
	failure string
}

// Start mounts a session and returns once the initial state is loaded and
// the first video is mounted.
func Start(ctx context.Context, cfg Config) (*Session, Snapshot, error) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Loader == nil {
		cfg.Loader = playback.NewRemoteLoader()
	}
	s := &Session{
		ID:       cfg.ID,
		DeviceID: cfg.DeviceID,
		CourseID: cfg.Course.ID,
		events:   make(chan func(*actor)),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.touch(time.Now())

	log := cfg.Log.With(zap.String("session_id", cfg.ID), zap.String("course_id", cfg.Course.ID))
	adapter := playback.NewAdapter(cfg.Interval, log)
	if cfg.NewTicker != nil {
		adapter.NewTicker = cfg.NewTicker
	}
	actorCtx, cancel := context.WithCancel(context.Background())
	a := &actor{s: s, ctx: actorCtx, cfg: cfg, log: log, adapter: adapter}
	go s.loop(a, cancel)

	var snap Snapshot
	err := s.do(ctx, func(a *actor) {
		a.ctrl = watch.New(a.ctx, cfg.Course, cfg.StartVideoID, cfg.Store, log)
		a.publish(analytics.SubjectWatchSessionStarted, "watch_session_started", map[string]any{
			"course_id":      cfg.Course.ID,
			"start_video_id": cfg.StartVideoID,
		})
		a.mount()
		snap = a.snapshot()
	})
	if err != nil {
		s.Close()
		return nil, Snapshot{}, err
	}
	return s, snap, nil
}

func (s *Session) loop(a *actor, cancel context.CancelFunc) {
	defer close(s.done)
	defer cancel()
	defer a.teardown()
	for {
		select {
		case fn := <-s.events:
			fn(a)
		case <-s.quit:
			return
		}
	}
}

// do runs fn on the session goroutine and waits for it.
func (s *Session) do(ctx context.Context, fn func(*actor)) error {
	finished := make(chan struct{})
	select {
	case s.events <- func(a *actor) { fn(a); close(finished) }:
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// signal delivers a playback signal unless the mount it came from is gone.
func (s *Session) signal(ctx context.Context, fn func(*actor)) {
	select {
	case s.events <- fn:
	case <-ctx.Done():
	case <-s.done:
	}
}

func (s *Session) touch(now time.Time) { s.lastActive.Store(now.UnixNano()) }

// LastActive is the time of the last viewer request.
func (s *Session) LastActive() time.Time { return time.Unix(0, s.lastActive.Load()) }

func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	s.touch(time.Now())
	var snap Snapshot
	err := s.do(ctx, func(a *actor) { snap = a.snapshot() })
	return snap, err
}

// Select makes videoID current. It reports false when the video is not part
// of the course; the session state is then unchanged.
func (s *Session) Select(ctx context.Context, videoID string) (Snapshot, bool, error) {
	s.touch(time.Now())
	var (
		snap Snapshot
		ok   bool
	)
	err := s.do(ctx, func(a *actor) {
		prev := a.currentID()
		ok = a.ctrl.SelectVideo(a.ctx, videoID)
		if ok && a.currentID() != prev {
			a.remount()
		}
		snap = a.snapshot()
	})
	return snap, ok, err
}

// Report forwards a player report to the widget of videoID. It reports false
// when videoID is not the mounted video.
func (s *Session) Report(ctx context.Context, videoID string, r playback.Report) (bool, error) {
	s.touch(time.Now())
	var ok bool
	err := s.do(ctx, func(a *actor) {
		if a.widget == nil || a.mounted != videoID {
			a.log.Debug("report for unmounted video ignored", zap.String("video_id", videoID), zap.String("mounted", a.mounted))
			return
		}
		rep, isReporter := a.widget.(Reporter)
		if !isReporter {
			return
		}
		ok = rep.Report(r)
		if !ok {
			a.log.Warn("player report dropped", zap.String("video_id", videoID), zap.Stringer("state", r.State))
		}
	})
	return ok, err
}

// Close unmounts the session and waits for its goroutine to exit.
func (s *Session) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
	<-s.done
}

func (s *Session) Closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

type sink struct {
	s   *Session
	gen uint64
}

func (k sink) Progress(ctx context.Context, fraction int) {
	k.s.signal(ctx, func(a *actor) { a.onProgress(k.gen, fraction) })
}

func (k sink) Ended(ctx context.Context) {
	k.s.signal(ctx, func(a *actor) { a.onEnded(k.gen) })
}

func (a *actor) currentID() string {
	if v, ok := a.ctrl.Current(); ok {
		return v.ID
	}
	return ""
}

func (a *actor) mount() {
	v, ok := a.ctrl.Current()
	if !ok {
		return
	}
	a.gen++
	a.failure = ""
	w, err := a.cfg.Loader.Load(a.ctx, v.ID, v.YouTubeID)
	if err != nil {
		a.failure = err.Error()
		a.log.Warn("widget load failed", zap.String("video_id", v.ID), zap.Error(err))
		return
	}
	if err := a.adapter.Mount(a.ctx, w, sink{s: a.s, gen: a.gen}); err != nil {
		a.failure = err.Error()
		a.log.Error("adapter mount failed", zap.String("video_id", v.ID), zap.Error(err))
		if derr := w.Destroy(); derr != nil {
			a.log.Warn("widget destroy failed", zap.Error(derr))
		}
		return
	}
	a.widget = w
	a.mounted = v.ID
}

func (a *actor) unmount() {
	a.adapter.Close()
	a.widget = nil
	a.mounted = ""
}

func (a *actor) remount() {
	a.unmount()
	a.mount()
}

func (a *actor) onProgress(gen uint64, fraction int) {
	if gen != a.gen {
		a.log.Debug("stale progress dropped", zap.Uint64("gen", gen), zap.Uint64("current_gen", a.gen))
		return
	}
	if a.ctrl.OnPlaybackProgress(a.ctx, fraction) {
		a.watched()
	}
}

func (a *actor) onEnded(gen uint64) {
	if gen != a.gen {
		a.log.Debug("stale ended dropped", zap.Uint64("gen", gen), zap.Uint64("current_gen", a.gen))
		return
	}
	ended := a.currentID()
	marked, advanced := a.ctrl.OnPlaybackEnded(a.ctx)
	if marked {
		a.publishWatched(ended)
	}
	if advanced {
		a.remount()
	}
}

func (a *actor) watched() {
	a.publishWatched(a.currentID())
}

func (a *actor) publishWatched(videoID string) {
	progress := a.ctrl.CourseProgress()
	a.publish(analytics.SubjectWatchVideoWatched, "video_watched", map[string]any{
		"course_id":       a.s.CourseID,
		"video_id":        videoID,
		"course_progress": progress,
	})
	if a.ctrl.Complete() {
		a.publish(analytics.SubjectWatchCourseComplete, "course_completed", map[string]any{
			"course_id":    a.s.CourseID,
			"total_videos": a.ctrl.Course().TotalVideos(),
		})
	}
}

func (a *actor) publish(subject, name string, props map[string]any) {
	if a.cfg.Events == nil {
		return
	}
	a.cfg.Events.Publish(subject, name, a.s.DeviceID, props)
}

func (a *actor) snapshot() Snapshot {
	snap := Snapshot{
		SessionID:        a.s.ID,
		CourseID:         a.s.CourseID,
		Empty:            a.ctrl.Empty(),
		ProgressFraction: a.ctrl.ProgressFraction(),
		CourseProgress:   a.ctrl.CourseProgress(),
		Watched:          a.ctrl.Watched(),
		WatchedCount:     a.ctrl.WatchedCount(),
		TotalVideos:      a.ctrl.Course().TotalVideos(),
		Sections:         a.ctrl.SectionProgress(),
		PlayerError:      a.failure,
	}
	if v, ok := a.ctrl.Current(); ok {
		snap.Current = &v
	}
	if v, ok := a.ctrl.NextVideo(); ok {
		snap.Next = &v
	}
	return snap
}

func (a *actor) teardown() {
	a.unmount()
	if c, ok := a.cfg.Loader.(interface{ Close() }); ok {
		c.Close()
	}
	a.log.Debug("session unmounted")
}
