package watch

import (
	"context"
	"reflect"
	"testing"

	"github.com/example/course-platform/services/courses/internal/catalog"
	"github.com/example/course-platform/services/courses/internal/progress"
)

// recordingStore counts saves on top of an in-memory progress store.
type recordingStore struct {
	*progress.Store
	saves int
}

func (r *recordingStore) Save(ctx context.Context, courseID string, set progress.WatchedSet) {
	r.saves++
	r.Store.Save(ctx, courseID, set)
}

func newStore() *recordingStore {
	return &recordingStore{Store: progress.NewStore(progress.NewMemoryKV(), nil)}
}

func twoSectionCourse() catalog.Course {
	return catalog.Course{
		ID: "go-basics",
		Sections: []catalog.Section{
			{ID: "s1", Name: "Intro", Videos: []catalog.Video{{ID: "v1"}, {ID: "v2"}}},
			{ID: "s2", Name: "Next", Videos: []catalog.Video{{ID: "v3"}}},
		},
	}
}

func currentID(t *testing.T, c *Controller) string {
	t.Helper()
	v, ok := c.Current()
	if !ok {
		t.Fatal("expected a current video")
	}
	return v.ID
}

func TestNew_StartVideo(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		start string
		want  string
	}{
		{"", "v1"},
		{"v2", "v2"},
		{"v3", "v3"},
		{"nope", "v1"},
	}
	for _, tc := range cases {
		c := New(ctx, twoSectionCourse(), tc.start, newStore(), nil)
		if got := currentID(t, c); got != tc.want {
			t.Fatalf("start %q: expected %s, got %s", tc.start, tc.want, got)
		}
		if c.ProgressFraction() != 0 {
			t.Fatalf("start %q: expected progress 0", tc.start)
		}
	}
}

func TestNew_EmptyCourse(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, catalog.Course{ID: "empty", Sections: []catalog.Section{{ID: "s1"}}}, "v1", newStore(), nil)
	if !c.Empty() {
		t.Fatal("expected empty state")
	}
	if _, ok := c.Current(); ok {
		t.Fatal("expected no current video")
	}
	if c.SelectVideo(ctx, "v1") {
		t.Fatal("select should not match in an empty course")
	}
	if c.OnPlaybackProgress(ctx, 99) {
		t.Fatal("progress should not mark anything")
	}
	if marked, advanced := c.OnPlaybackEnded(ctx); marked || advanced {
		t.Fatal("ended should be a no-op")
	}
	if _, ok := c.NextVideo(); ok {
		t.Fatal("expected no next video")
	}
	if c.CourseProgress() != 0 || c.AggregateProgress(0) != 0 {
		t.Fatal("empty course progress must be 0")
	}
}

func TestAggregateProgress_Range(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	store.Store.Save(ctx, "go-basics", progress.NewWatchedSet("v1", "v2", "v3", "foreign-1", "foreign-2"))
	c := New(ctx, twoSectionCourse(), "", store, nil)

	for total := 0; total <= 10; total++ {
		got := c.AggregateProgress(total)
		if got < 0 || got > 100 {
			t.Fatalf("total %d: out of range %d", total, got)
		}
	}
	if got := c.AggregateProgress(0); got != 0 {
		t.Fatalf("expected 0 for no videos, got %d", got)
	}
	if got := c.AggregateProgress(1); got != 100 {
		t.Fatalf("expected clamp to 100, got %d", got)
	}
	if got := c.CourseProgress(); got != 100 {
		t.Fatalf("foreign ids must not count: got %d", got)
	}
	if got := c.AggregateProgress(6); got != 50 {
		t.Fatalf("expected 50, got %d", got)
	}
}

func TestOnPlaybackProgress_ThresholdIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	c := New(ctx, twoSectionCourse(), "", store, nil)

	if c.OnPlaybackProgress(ctx, 89) {
		t.Fatal("89 is below the threshold")
	}
	if !c.OnPlaybackProgress(ctx, 90) {
		t.Fatal("90 should mark watched")
	}
	for _, f := range []int{91, 95, 100} {
		if c.OnPlaybackProgress(ctx, f) {
			t.Fatalf("%d: already watched, should be a no-op", f)
		}
	}
	if c.WatchedCount() != 1 {
		t.Fatalf("expected one watched video, got %d", c.WatchedCount())
	}
	if store.saves != 1 {
		t.Fatalf("expected a single save, got %d", store.saves)
	}
}

func TestOnPlaybackProgress_Clamps(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, twoSectionCourse(), "", newStore(), nil)

	c.OnPlaybackProgress(ctx, -20)
	if c.ProgressFraction() != 0 {
		t.Fatalf("expected 0, got %d", c.ProgressFraction())
	}
	if !c.OnPlaybackProgress(ctx, 250) {
		t.Fatal("clamped 100 should mark watched")
	}
	if c.ProgressFraction() != 100 {
		t.Fatalf("expected 100, got %d", c.ProgressFraction())
	}
}

func TestOnPlaybackEnded_MarksRegardlessOfProgress(t *testing.T) {
	ctx := context.Background()
	for _, prior := range []int{0, 10, 89, 95} {
		c := New(ctx, twoSectionCourse(), "v2", newStore(), nil)
		c.OnPlaybackProgress(ctx, prior)
		c.OnPlaybackEnded(ctx)
		if !c.IsWatched("v2") {
			t.Fatalf("prior %d: expected v2 watched", prior)
		}
		if got := currentID(t, c); got != "v3" {
			t.Fatalf("prior %d: expected advance to v3, got %s", prior, got)
		}
		if c.ProgressFraction() != 0 {
			t.Fatalf("prior %d: progress should reset on advance", prior)
		}
	}
}

func TestOnPlaybackEnded_LastVideoStays(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, twoSectionCourse(), "v3", newStore(), nil)
	c.OnPlaybackProgress(ctx, 40)

	marked, advanced := c.OnPlaybackEnded(ctx)
	if !marked || advanced {
		t.Fatalf("expected marked without advance, got marked=%v advanced=%v", marked, advanced)
	}
	if got := currentID(t, c); got != "v3" {
		t.Fatalf("expected v3 to stay current, got %s", got)
	}
	if c.ProgressFraction() != 40 {
		t.Fatalf("expected progress unchanged, got %d", c.ProgressFraction())
	}
	if _, ok := c.NextVideo(); ok {
		t.Fatal("expected no next video after the last one")
	}
}

func TestSelectVideo_UnknownLeavesState(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, twoSectionCourse(), "v2", newStore(), nil)
	c.OnPlaybackProgress(ctx, 30)

	if c.SelectVideo(ctx, "v9") {
		t.Fatal("expected no match")
	}
	if got := currentID(t, c); got != "v2" {
		t.Fatalf("expected v2, got %s", got)
	}
	if c.ProgressFraction() != 30 {
		t.Fatalf("expected progress kept, got %d", c.ProgressFraction())
	}
}

func TestSelectVideo_WatchedIsAllowed(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, twoSectionCourse(), "", newStore(), nil)
	c.OnPlaybackEnded(ctx)

	if !c.SelectVideo(ctx, "v1") {
		t.Fatal("selecting a watched video should succeed")
	}
	if got := currentID(t, c); got != "v1" {
		t.Fatalf("expected v1, got %s", got)
	}
	if c.WatchedCount() != 1 {
		t.Fatalf("select must not change the watched set, got %d", c.WatchedCount())
	}
}

func TestProgressSurvivesRemount(t *testing.T) {
	ctx := context.Background()
	store := newStore()
	c := New(ctx, twoSectionCourse(), "", store, nil)
	c.OnPlaybackEnded(ctx)
	c.OnPlaybackProgress(ctx, 92)

	again := New(ctx, twoSectionCourse(), "", store, nil)
	if !reflect.DeepEqual(again.Watched(), []string{"v1", "v2"}) {
		t.Fatalf("expected [v1 v2], got %v", again.Watched())
	}
	if again.CourseProgress() != 67 {
		t.Fatalf("expected 67, got %d", again.CourseProgress())
	}
}

func TestSectionProgress(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, twoSectionCourse(), "v2", newStore(), nil)
	c.OnPlaybackEnded(ctx)

	got := c.SectionProgress()
	want := []SectionProgress{
		{SectionID: "s1", Name: "Intro", Watched: 1, Total: 2, Percent: 50},
		{SectionID: "s2", Name: "Next", Watched: 0, Total: 1, Percent: 0},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v want %+v", got, want)
	}
}

func TestScenario_TwoSections(t *testing.T) {
	ctx := context.Background()
	c := New(ctx, twoSectionCourse(), "", newStore(), nil)

	if got := currentID(t, c); got != "v1" {
		t.Fatalf("expected v1, got %s", got)
	}

	c.OnPlaybackProgress(ctx, 95)
	if !c.IsWatched("v1") {
		t.Fatal("expected v1 watched")
	}
	if got := c.AggregateProgress(3); got != 33 {
		t.Fatalf("expected 33, got %d", got)
	}

	c.OnPlaybackEnded(ctx)
	if got := currentID(t, c); got != "v2" {
		t.Fatalf("expected v2, got %s", got)
	}
	if !reflect.DeepEqual(c.Watched(), []string{"v1"}) {
		t.Fatalf("expected {v1}, got %v", c.Watched())
	}

	if !c.SelectVideo(ctx, "v3") {
		t.Fatal("expected v3 to be selectable")
	}
	if got := currentID(t, c); got != "v3" || c.ProgressFraction() != 0 {
		t.Fatalf("expected v3 at 0, got %s at %d", got, c.ProgressFraction())
	}

	c.OnPlaybackEnded(ctx)
	if !reflect.DeepEqual(c.Watched(), []string{"v1", "v3"}) {
		t.Fatalf("expected {v1,v3}, got %v", c.Watched())
	}
	if _, ok := c.NextVideo(); ok {
		t.Fatal("expected no next video")
	}
	if c.Complete() {
		t.Fatal("v2 is not watched yet")
	}
}
