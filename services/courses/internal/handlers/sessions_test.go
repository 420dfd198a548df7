package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/example/course-platform/services/courses/internal/progress"
	"github.com/example/course-platform/services/courses/internal/session"
)

func newManager(t *testing.T) *session.Manager {
	t.Helper()
	m := session.NewManager(session.ManagerConfig{
		Store: progress.NewStore(progress.NewMemoryKV(), nil),
	}, nil)
	t.Cleanup(m.CloseAll)
	return m
}

func startSession(t *testing.T, m *session.Manager, courseID, query string) session.Snapshot {
	t.Helper()
	rr := httptest.NewRecorder()
	StartSession(testCatalog(), m, nil).ServeHTTP(rr,
		chiReq(http.MethodPost, "/v1/courses/"+courseID+"/sessions"+query, "", map[string]string{"course_id": courseID}))
	if rr.Code != http.StatusCreated && rr.Code != http.StatusOK {
		t.Fatalf("start: got %d: %s", rr.Code, rr.Body.String())
	}
	var snap session.Snapshot
	if err := json.NewDecoder(rr.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	return snap
}

func TestStartSession_UnknownVideoFallsBack(t *testing.T) {
	m := newManager(t)
	snap := startSession(t, m, "go-basics", "?video=missing")
	if snap.Current == nil || snap.Current.ID != "v1" {
		t.Fatalf("expected v1, got %+v", snap.Current)
	}
	if snap.SessionID == "" {
		t.Fatal("expected a session id")
	}
}

func TestStartSession_RequestedVideo(t *testing.T) {
	m := newManager(t)
	snap := startSession(t, m, "go-basics", "?video=v3")
	if snap.Current == nil || snap.Current.ID != "v3" || snap.Next != nil {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestStartSession_EmptyCourse(t *testing.T) {
	m := newManager(t)
	rr := httptest.NewRecorder()
	StartSession(testCatalog(), m, nil).ServeHTTP(rr,
		chiReq(http.MethodPost, "/v1/courses/soon/sessions", "", map[string]string{"course_id": "soon"}))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var snap session.Snapshot
	_ = json.NewDecoder(rr.Body).Decode(&snap)
	if !snap.Empty || snap.Current != nil {
		t.Fatalf("expected empty state, got %+v", snap)
	}
}

func TestStartSession_CourseNotFound(t *testing.T) {
	m := newManager(t)
	rr := httptest.NewRecorder()
	StartSession(testCatalog(), m, nil).ServeHTTP(rr,
		chiReq(http.MethodPost, "/v1/courses/nope/sessions", "", map[string]string{"course_id": "nope"}))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "COURSE_NOT_FOUND" {
		t.Fatalf("expected COURSE_NOT_FOUND, got %s", code)
	}
}

func TestSelectVideo(t *testing.T) {
	m := newManager(t)
	snap := startSession(t, m, "go-basics", "")
	params := map[string]string{"session_id": snap.SessionID}

	rr := httptest.NewRecorder()
	SelectVideo(m, nil).ServeHTTP(rr, chiReq(http.MethodPost, "/", `{"video_id":"v2"}`, params))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var got session.Snapshot
	_ = json.NewDecoder(rr.Body).Decode(&got)
	if got.Current == nil || got.Current.ID != "v2" {
		t.Fatalf("expected v2, got %+v", got.Current)
	}

	rr = httptest.NewRecorder()
	SelectVideo(m, nil).ServeHTTP(rr, chiReq(http.MethodPost, "/", `{"video_id":"v9"}`, params))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	SelectVideo(m, nil).ServeHTTP(rr, chiReq(http.MethodPost, "/", `{}`, params))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	SelectVideo(m, nil).ServeHTTP(rr, chiReq(http.MethodPost, "/", `{"video_id":`, params))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid json, got %d", rr.Code)
	}
}

func TestReportPlayer(t *testing.T) {
	m := newManager(t)
	snap := startSession(t, m, "go-basics", "")
	params := map[string]string{"session_id": snap.SessionID}

	cases := []struct {
		body     string
		code     int
		accepted bool
	}{
		{`{"video_id":"v1","state":"playing","current_time":3,"duration":60}`, http.StatusAccepted, true},
		{`{"video_id":"v1","state":2,"current_time":4,"duration":60}`, http.StatusAccepted, true},
		{`{"video_id":"v2","state":"playing"}`, http.StatusAccepted, false},
		{`{"video_id":"v1","state":"rewinding"}`, http.StatusBadRequest, false},
		{`{"video_id":"v1"}`, http.StatusBadRequest, false},
		{`{"state":"paused"}`, http.StatusBadRequest, false},
	}
	for _, tc := range cases {
		rr := httptest.NewRecorder()
		ReportPlayer(m, nil).ServeHTTP(rr, chiReq(http.MethodPost, "/", tc.body, params))
		if rr.Code != tc.code {
			t.Fatalf("%s: expected %d, got %d: %s", tc.body, tc.code, rr.Code, rr.Body.String())
		}
		if tc.code != http.StatusAccepted {
			continue
		}
		var resp struct {
			Accepted bool `json:"accepted"`
		}
		_ = json.NewDecoder(rr.Body).Decode(&resp)
		if resp.Accepted != tc.accepted {
			t.Fatalf("%s: expected accepted=%v", tc.body, tc.accepted)
		}
	}
}

func TestSessionLifecycle(t *testing.T) {
	m := newManager(t)
	snap := startSession(t, m, "go-basics", "")
	params := map[string]string{"session_id": snap.SessionID}

	rr := httptest.NewRecorder()
	GetSession(m, nil).ServeHTTP(rr, chiReq(http.MethodGet, "/", "", params))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	EndSession(m).ServeHTTP(rr, chiReq(http.MethodDelete, "/", "", params))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	GetSession(m, nil).ServeHTTP(rr, chiReq(http.MethodGet, "/", "", params))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after end, got %d", rr.Code)
	}
	if code := errorCode(t, rr); code != "SESSION_NOT_FOUND" {
		t.Fatalf("expected SESSION_NOT_FOUND, got %s", code)
	}

	rr = httptest.NewRecorder()
	EndSession(m).ServeHTTP(rr, chiReq(http.MethodDelete, "/", "", params))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second end, got %d", rr.Code)
	}
}
