package catalog

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource reads the catalog from three tables:
//
//	courses(id, title, description, thumbnail_url, position)
//	course_sections(id, course_id, name, position)
//	course_videos(id, section_id, title, youtube_video_id, description, position)
//
// position columns define source order.
type PostgresSource struct {
	db *pgxpool.Pool
}

func NewPostgresSource(db *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{db: db}
}

const courseColumns = `id, title, description, thumbnail_url`

func (s *PostgresSource) ListCourses(ctx context.Context) ([]Course, error) {
	rows, err := s.db.Query(ctx, `SELECT `+courseColumns+` FROM courses ORDER BY position, id`)
	if err != nil {
		return nil, errUnavailable("db query")
	}
	courses, err := pgx.CollectRows(rows, scanCourse)
	if err != nil {
		return nil, errInternal(ReasonCorrupt, "db scan")
	}
	if len(courses) == 0 {
		return []Course{}, nil
	}

	ids := make([]string, len(courses))
	for i, c := range courses {
		ids[i] = c.ID
	}
	sections, err := s.sectionsFor(ctx, ids)
	if err != nil {
		return nil, err
	}
	for i := range courses {
		if secs, ok := sections[courses[i].ID]; ok {
			courses[i].Sections = secs
		}
	}
	return courses, nil
}

func (s *PostgresSource) GetCourse(ctx context.Context, id string) (Course, bool, error) {
	rows, err := s.db.Query(ctx, `SELECT `+courseColumns+` FROM courses WHERE id = $1`, id)
	if err != nil {
		return Course{}, false, errUnavailable("db query")
	}
	c, err := pgx.CollectExactlyOneRow(rows, scanCourse)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Course{}, false, nil
		}
		return Course{}, false, errInternal(ReasonCorrupt, "db scan")
	}
	sections, err := s.sectionsFor(ctx, []string{id})
	if err != nil {
		return Course{}, false, err
	}
	if secs, ok := sections[id]; ok {
		c.Sections = secs
	}
	return c, true, nil
}

// sectionsFor loads sections and videos for the given courses in one query,
// keyed by course id, preserving position order.
func (s *PostgresSource) sectionsFor(ctx context.Context, courseIDs []string) (map[string][]Section, error) {
	rows, err := s.db.Query(ctx, `
SELECT s.course_id, s.id, s.name, v.id, v.title, v.youtube_video_id, COALESCE(v.description, '')
FROM course_sections s
LEFT JOIN course_videos v ON v.section_id = s.id
WHERE s.course_id = ANY($1)
ORDER BY s.course_id, s.position, s.id, v.position, v.id`, courseIDs)
	if err != nil {
		return nil, errUnavailable("db query")
	}
	defer rows.Close()

	out := make(map[string][]Section, len(courseIDs))
	for rows.Next() {
		var (
			courseID, sectionID, sectionName string
			videoID, title, ytID, desc       *string
		)
		if err := rows.Scan(&courseID, &sectionID, &sectionName, &videoID, &title, &ytID, &desc); err != nil {
			return nil, errInternal(ReasonCorrupt, "db scan")
		}
		secs := out[courseID]
		if n := len(secs); n == 0 || secs[n-1].ID != sectionID {
			secs = append(secs, Section{ID: sectionID, Name: sectionName, Videos: []Video{}})
		}
		if videoID != nil {
			last := &secs[len(secs)-1]
			last.Videos = append(last.Videos, Video{ID: *videoID, Title: deref(title), YouTubeID: deref(ytID), Description: deref(desc)})
		}
		out[courseID] = secs
	}
	if err := rows.Err(); err != nil {
		return nil, errUnavailable("db rows")
	}
	return out, nil
}

func scanCourse(row pgx.CollectableRow) (Course, error) {
	var c Course
	err := row.Scan(&c.ID, &c.Title, &c.Description, &c.ThumbnailURL)
	c.Sections = []Section{}
	return c, err
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
