package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/course-platform/internal/platform/analytics"
	"github.com/example/course-platform/internal/platform/api"
	"github.com/example/course-platform/internal/platform/device"
	"github.com/example/course-platform/internal/platform/httpserver"
	"github.com/example/course-platform/services/courses/internal/catalog"
	"github.com/example/course-platform/services/courses/internal/progress"
	"github.com/example/course-platform/services/courses/internal/watch"
)

// Events publishes analytics events; *analytics.Publisher satisfies it.
type Events interface {
	Publish(subject, eventName, deviceID string, props map[string]any)
}

type courseSummary struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	ThumbnailURL string `json:"thumbnail_url"`
	SectionCount int    `json:"section_count"`
	TotalVideos  int    `json:"total_videos"`
}

type courseProgress struct {
	Percent      int                     `json:"percent"`
	WatchedCount int                     `json:"watched_count"`
	Watched      []string                `json:"watched"`
	Sections     []watch.SectionProgress `json:"sections"`
}

type courseDetail struct {
	catalog.Course
	TotalVideos int            `json:"total_videos"`
	Empty       bool           `json:"empty"`
	Progress    courseProgress `json:"progress"`
}

func toCourseSummary(c catalog.Course) courseSummary {
	return courseSummary{
		ID:           c.ID,
		Title:        c.Title,
		Description:  c.Description,
		ThumbnailURL: c.ThumbnailURL,
		SectionCount: len(c.Sections),
		TotalVideos:  c.TotalVideos(),
	}
}

// ListCourses handles GET /v1/courses
func ListCourses(cat catalog.Accessor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rid := httpserver.RequestIDFromContext(r.Context())

		courses, err := cat.ListCourses(r.Context())
		if err != nil {
			writeGRPCError(w, rid, err)
			return
		}

		out := make([]courseSummary, 0, len(courses))
		for _, c := range courses {
			out = append(out, toCourseSummary(c))
		}
		api.WriteJSON(w, http.StatusOK, map[string]any{"courses": out})
	}
}

// GetCourse handles GET /v1/courses/{course_id}
func GetCourse(cat catalog.Accessor, store *progress.Store, events Events) http.HandlerFunc {
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

		deviceID, _ := device.IDFromContext(r.Context())
		var ps watch.ProgressStore
		if store != nil && deviceID != "" {
			ps = store.ForDevice(deviceID)
		}
		ctrl := watch.New(r.Context(), course, "", ps, nil)

		if events != nil {
			events.Publish(analytics.SubjectCourseViewed, "course_viewed", deviceID, map[string]any{"course_id": course.ID})
		}

		api.WriteJSON(w, http.StatusOK, courseDetail{
			Course:      course,
			TotalVideos: course.TotalVideos(),
			Empty:       ctrl.Empty(),
			Progress: courseProgress{
				Percent:      ctrl.CourseProgress(),
				WatchedCount: ctrl.WatchedCount(),
				Watched:      ctrl.Watched(),
				Sections:     ctrl.SectionProgress(),
			},
		})
	}
}
