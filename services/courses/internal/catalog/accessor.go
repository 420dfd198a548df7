package catalog

import (
	"context"
)

// Accessor is the read-only view of the catalog. A missing course is
// reported as ok == false, never as an error; errors mean the source itself
// failed.
type Accessor interface {
	ListCourses(ctx context.Context) ([]Course, error)
	GetCourse(ctx context.Context, id string) (course Course, ok bool, err error)
}

// Static serves a fixed, already loaded course tree.
type Static struct {
	courses []Course
	byID    map[string]int
}

func NewStatic(courses []Course) *Static {
	s := &Static{courses: courses, byID: make(map[string]int, len(courses))}
	for i, c := range courses {
		if _, dup := s.byID[c.ID]; !dup {
			s.byID[c.ID] = i
		}
	}
	return s
}

func (s *Static) ListCourses(_ context.Context) ([]Course, error) {
	out := make([]Course, len(s.courses))
	copy(out, s.courses)
	return out, nil
}

func (s *Static) GetCourse(_ context.Context, id string) (Course, bool, error) {
	i, ok := s.byID[id]
	if !ok {
		return Course{}, false, nil
	}
	return s.courses[i], true, nil
}
