package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/example/course-platform/internal/platform/device"
	"github.com/example/course-platform/services/courses/internal/catalog"
	"github.com/example/course-platform/services/courses/internal/progress"
)

type stubAccessor struct {
	courses []catalog.Course
	err     error
}

func (s *stubAccessor) ListCourses(context.Context) ([]catalog.Course, error) {
	return s.courses, s.err
}

func (s *stubAccessor) GetCourse(_ context.Context, id string) (catalog.Course, bool, error) {
	if s.err != nil {
		return catalog.Course{}, false, s.err
	}
	for _, c := range s.courses {
		if c.ID == id {
			return c, true, nil
		}
	}
	return catalog.Course{}, false, nil
}

type recordingEvents struct{ subjects []string }

func (r *recordingEvents) Publish(subject, _, _ string, _ map[string]any) {
	r.subjects = append(r.subjects, subject)
}

func testCatalog() *stubAccessor {
	return &stubAccessor{courses: []catalog.Course{
		{
			ID:    "go-basics",
			Title: "Go Basics",
			Sections: []catalog.Section{
				{ID: "s1", Name: "Intro", Videos: []catalog.Video{{ID: "v1", YouTubeID: "yt1"}, {ID: "v2", YouTubeID: "yt2"}}},
				{ID: "s2", Name: "Next", Videos: []catalog.Video{{ID: "v3", YouTubeID: "yt3"}}},
			},
		},
		{ID: "soon", Title: "Coming soon"},
	}}
}

func chiReq(method, url, body string, params map[string]string) *http.Request {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, url, nil)
	} else {
		req = httptest.NewRequest(method, url, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	return req.WithContext(device.WithID(ctx, "dev-1"))
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body.Error.Code
}

func TestListCourses_OK(t *testing.T) {
	rr := httptest.NewRecorder()
	ListCourses(testCatalog()).ServeHTTP(rr, chiReq(http.MethodGet, "/v1/courses", "", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Courses []courseSummary `json:"courses"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Courses) != 2 || resp.Courses[0].ID != "go-basics" || resp.Courses[0].TotalVideos != 3 {
		t.Fatalf("unexpected response: %+v", resp.Courses)
	}
}

func TestListCourses_SourceUnavailable(t *testing.T) {
	rr := httptest.NewRecorder()
	cat := &stubAccessor{err: status.Error(codes.Unavailable, "db down")}
	ListCourses(cat).ServeHTTP(rr, chiReq(http.MethodGet, "/v1/courses", "", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestListCourses_PlainErrorIsInternal(t *testing.T) {
	rr := httptest.NewRecorder()
	cat := &stubAccessor{err: context.DeadlineExceeded}
	ListCourses(cat).ServeHTTP(rr, chiReq(http.MethodGet, "/v1/courses", "", nil))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestGetCourse_WithProgress(t *testing.T) {
	store := progress.NewStore(progress.NewMemoryKV(), nil)
	store.ForDevice("dev-1").Save(context.Background(), "go-basics", progress.NewWatchedSet("v1"))
	events := &recordingEvents{}

	rr := httptest.NewRecorder()
	GetCourse(testCatalog(), store, events).ServeHTTP(rr,
		chiReq(http.MethodGet, "/v1/courses/go-basics", "", map[string]string{"course_id": "go-basics"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp courseDetail
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.ID != "go-basics" || resp.TotalVideos != 3 || resp.Progress.Percent != 33 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(resp.Progress.Sections) != 2 || resp.Progress.Sections[0].Watched != 1 {
		t.Fatalf("unexpected section progress: %+v", resp.Progress.Sections)
	}
	if len(events.subjects) != 1 {
		t.Fatalf("expected a course_viewed event, got %v", events.subjects)
	}
}

func TestGetCourse_NotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	GetCourse(testCatalog(), nil, nil).ServeHTTP(rr,
		chiReq(http.MethodGet, "/v1/courses/nope", "", map[string]string{"course_id": "nope"}))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "COURSE_NOT_FOUND" {
		t.Fatalf("expected COURSE_NOT_FOUND, got %s", code)
	}
}

func TestGetCourse_Empty(t *testing.T) {
	rr := httptest.NewRecorder()
	GetCourse(testCatalog(), nil, nil).ServeHTTP(rr,
		chiReq(http.MethodGet, "/v1/courses/soon", "", map[string]string{"course_id": "soon"}))

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp courseDetail
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Empty || resp.Progress.Percent != 0 {
		t.Fatalf("expected empty course, got %+v", resp)
	}
}
