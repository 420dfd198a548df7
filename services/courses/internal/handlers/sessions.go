package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/device"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/courses/internal/catalog"
	"github.com/example/course-platform/services/courses/internal/playback"
	"github.com/example/course-platform/services/courses/internal/session"
)

type selectRequest struct {
	VideoID string `json:"video_id"`
}

// playerRequest is a state report from the browser-hosted player. State is
// a name ("playing") or a numeric player code (1).
type playerRequest struct {
	VideoID     string          `json:"video_id"`
	State       json.RawMessage `json:"state"`
	CurrentTime float64         `json:"current_time"`
	Duration    float64         `json:"duration"`
}

func (p playerRequest) parseState() (playback.State, error) {
	raw := strings.TrimSpace(string(p.State))
	if raw == "" || raw == "null" {
		return 0, errors.New("state is required")
	}
	var name string
	if err := json.Unmarshal(p.State, &name); err == nil {
		return playback.ParseState(name)
	}
	return playback.ParseState(raw)
}

func deviceFrom(r *http.Request) string {
	id, _ := device.IDFromContext(r.Context())
	return id
}

func writeSessionError(w http.ResponseWriter, rid string, log *zap.Logger, err error) {
	switch {
	case errors.Is(err, session.ErrClosed):
		api.NotFound(w, "SESSION_NOT_FOUND", "session not found", rid)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		api.Unavailable(w, "SESSION_BUSY", "session did not respond", rid)
	default:
		log.Error("session call failed", zap.Error(err))
		api.Internal(w, rid)
	}
}

// StartSession handles POST /v1/courses/{course_id}/sessions?video={video_id}
func StartSession(cat catalog.Accessor, sessions *session.Manager, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		courseID := strings.TrimSpace(chi.URLParam(r, "course_id"))
		if courseID == "" {
			api.BadRequest(w, "MISSING_ID", "course_id is required", rid, nil)
			return
		}

		course, ok, err := cat.GetCourse(r.Context(), courseID)
		if err != nil {
			writeGRPCError(w, rid, err)
			return
		}
		if !ok {
			api.NotFound(w, "COURSE_NOT_FOUND", "course not found", rid)
			return
		}

		startVideo := strings.TrimSpace(r.URL.Query().Get("video"))
		_, snap, err := sessions.Start(r.Context(), deviceFrom(r), course, startVideo)
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}

		status := http.StatusCreated
		if snap.Empty {
			status = http.StatusOK
		}
		api.WriteJSON(w, status, snap)
	}
}

// GetSession handles GET /v1/sessions/{session_id}
func GetSession(sessions *session.Manager, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		s, ok := sessions.Get(chi.URLParam(r, "session_id"), deviceFrom(r))
		if !ok {
			api.NotFound(w, "SESSION_NOT_FOUND", "session not found", rid)
			return
		}
		snap, err := s.Snapshot(r.Context())
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		api.WriteJSON(w, http.StatusOK, snap)
	}
}

// SelectVideo handles POST /v1/sessions/{session_id}/select
func SelectVideo(sessions *session.Manager, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req selectRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		req.VideoID = strings.TrimSpace(req.VideoID)
		if req.VideoID == "" {
			api.BadRequest(w, "MISSING_VIDEO_ID", "video_id is required", rid, nil)
			return
		}

		s, ok := sessions.Get(chi.URLParam(r, "session_id"), deviceFrom(r))
		if !ok {
			api.NotFound(w, "SESSION_NOT_FOUND", "session not found", rid)
			return
		}
		snap, matched, err := s.Select(r.Context(), req.VideoID)
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		if !matched {
			api.NotFound(w, "VIDEO_NOT_FOUND", "video is not part of this course", rid)
			return
		}
		api.WriteJSON(w, http.StatusOK, snap)
	}
}

// ReportPlayer handles POST /v1/sessions/{session_id}/player
func ReportPlayer(sessions *session.Manager, log *zap.Logger) http.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		var req playerRequest
		if err := api.DecodeJSON(w, r, &req); err != nil {
			api.BadRequest(w, "INVALID_JSON", "Invalid JSON", rid, nil)
			return
		}
		state, err := req.parseState()
		if err != nil {
			api.BadRequest(w, "INVALID_STATE", err.Error(), rid, nil)
			return
		}
		if strings.TrimSpace(req.VideoID) == "" {
			api.BadRequest(w, "MISSING_VIDEO_ID", "video_id is required", rid, nil)
			return
		}

		s, ok := sessions.Get(chi.URLParam(r, "session_id"), deviceFrom(r))
		if !ok {
			api.NotFound(w, "SESSION_NOT_FOUND", "session not found", rid)
			return
		}
		accepted, err := s.Report(r.Context(), req.VideoID, playback.Report{
			State:       state,
			CurrentTime: req.CurrentTime,
			Duration:    req.Duration,
		})
		if err != nil {
			writeSessionError(w, rid, log, err)
			return
		}
		api.WriteJSON(w, http.StatusAccepted, map[string]any{"accepted": accepted})
	}
}

// EndSession handles DELETE /v1/sessions/{session_id}
func EndSession(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		if !sessions.End(chi.URLParam(r, "session_id"), deviceFrom(r)) {
			api.NotFound(w, "SESSION_NOT_FOUND", "session not found", rid)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
