// Package watch holds the watch-session controller: the current video of a
// mounted course, its playback progress and the viewer's watched set.
//
// A Controller is not safe for concurrent use. The session actor owns it and
// feeds it events one at a time.
package watch

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/example/course-platform/services/courses/internal/catalog"
	"github.com/example/course-platform/services/courses/internal/progress"
)

// WatchedThreshold is the progress percentage at which the current video is
// marked watched.
const WatchedThreshold = 90

// ProgressStore persists watched sets per course. Implementations must not
// fail the caller; *progress.Store is the production implementation.
type ProgressStore interface {
	Load(ctx context.Context, courseID string) progress.WatchedSet
	Save(ctx context.Context, courseID string, set progress.WatchedSet)
}

// SectionProgress is the watched count of one section, as the course map
// renders it.
type SectionProgress struct {
	SectionID string `json:"section_id"`
	Name      string `json:"name"`
	Watched   int    `json:"watched"`
	Total     int    `json:"total"`
	Percent   int    `json:"percent"`
}

type Controller struct {
	course  catalog.Course
	videos  []catalog.Video
	index   map[string]int
	current int // -1 when the course has no videos
	frac    int
	watched progress.WatchedSet
	store   ProgressStore
	log     *zap.Logger
}

// New mounts a controller on course. startVideoID selects the initial video
// when it names one in the course; otherwise the first video in flattened
// order is current. A course without videos yields an empty controller.
func New(ctx context.Context, course catalog.Course, startVideoID string, store ProgressStore, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	videos := course.Videos()
	index := make(map[string]int, len(videos))
	for i, v := range videos {
		index[v.ID] = i
	}

	c := &Controller{
		course:  course,
		videos:  videos,
		index:   index,
		current: -1,
		store:   store,
		log:     log.With(zap.String("course_id", course.ID)),
	}
	if store != nil {
		c.watched = store.Load(ctx, course.ID)
	}

	if i, ok := index[startVideoID]; ok && startVideoID != "" {
		c.current = i
	} else if len(videos) > 0 {
		if startVideoID != "" {
			c.log.Debug("unknown start video, using first", zap.String("video_id", startVideoID))
		}
		c.current = 0
	}
	return c
}

func (c *Controller) Course() catalog.Course { return c.course }

// Empty reports the terminal empty-course state.
func (c *Controller) Empty() bool { return c.current < 0 }

// Current returns the current video, or false for an empty course.
func (c *Controller) Current() (catalog.Video, bool) {
	if c.current < 0 {
		return catalog.Video{}, false
	}
	return c.videos[c.current], true
}

// ProgressFraction is the playback percentage of the current video.
func (c *Controller) ProgressFraction() int { return c.frac }

// SelectVideo makes videoID current and resets progress. It reports false,
// leaving all state unchanged, when the id is not in this course.
func (c *Controller) SelectVideo(ctx context.Context, videoID string) bool {
	i, ok := c.index[videoID]
	if !ok {
		return false
	}
	c.current = i
	c.frac = 0
	return true
}

// OnPlaybackProgress records a progress sample for the current video and
// marks it watched once the sample reaches WatchedThreshold. It reports
// whether the video was newly marked.
func (c *Controller) OnPlaybackProgress(ctx context.Context, fraction int) bool {
	if c.current < 0 {
		return false
	}
	c.frac = clamp(fraction, 0, 100)
	if c.frac >= WatchedThreshold {
		return c.markWatched(ctx)
	}
	return false
}

// OnPlaybackEnded marks the current video watched regardless of progress and
// advances to the next one in flattened order. On the last video the current
// video and its progress stay as they are.
func (c *Controller) OnPlaybackEnded(ctx context.Context) (marked, advanced bool) {
	if c.current < 0 {
		return false, false
	}
	marked = c.markWatched(ctx)
	if c.current+1 < len(c.videos) {
		c.current++
		c.frac = 0
		advanced = true
	}
	return marked, advanced
}

// NextVideo returns the video after the current one in flattened order.
func (c *Controller) NextVideo() (catalog.Video, bool) {
	if c.current < 0 || c.current+1 >= len(c.videos) {
		return catalog.Video{}, false
	}
	return c.videos[c.current+1], true
}

// AggregateProgress returns round(100 * watched / total) clamped to [0,100].
// Only watched ids that belong to this course are counted.
func (c *Controller) AggregateProgress(totalVideoCount int) int {
	if totalVideoCount <= 0 {
		return 0
	}
	pct := int(math.Round(100 * float64(c.WatchedCount()) / float64(totalVideoCount)))
	return clamp(pct, 0, 100)
}

// CourseProgress is AggregateProgress over the course's own video count.
func (c *Controller) CourseProgress() int {
	return c.AggregateProgress(len(c.videos))
}

func (c *Controller) IsWatched(videoID string) bool {
	_, inCourse := c.index[videoID]
	return inCourse && c.watched.Has(videoID)
}

// Watched returns the watched ids of this course in the order they were
// marked.
func (c *Controller) Watched() []string {
	out := make([]string, 0, c.watched.Len())
	for _, id := range c.watched.IDs() {
		if _, ok := c.index[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func (c *Controller) WatchedCount() int {
	n := 0
	for _, id := range c.watched.IDs() {
		if _, ok := c.index[id]; ok {
			n++
		}
	}
	return n
}

func (c *Controller) SectionProgress() []SectionProgress {
	out := make([]SectionProgress, 0, len(c.course.Sections))
	for _, s := range c.course.Sections {
		sp := SectionProgress{SectionID: s.ID, Name: s.Name, Total: len(s.Videos)}
		for _, v := range s.Videos {
			if c.watched.Has(v.ID) {
				sp.Watched++
			}
		}
		if sp.Total > 0 {
			sp.Percent = int(math.Round(100 * float64(sp.Watched) / float64(sp.Total)))
		}
		out = append(out, sp)
	}
	return out
}

// Complete reports whether every video of a non-empty course is watched.
func (c *Controller) Complete() bool {
	return len(c.videos) > 0 && c.WatchedCount() == len(c.videos)
}

func (c *Controller) markWatched(ctx context.Context) bool {
	id := c.videos[c.current].ID
	if !c.watched.Add(id) {
		return false
	}
	if c.store != nil {
		c.store.Save(ctx, c.course.ID, c.watched)
	}
	c.log.Debug("video watched", zap.String("video_id", id), zap.Int("watched", c.watched.Len()))
	return true
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
