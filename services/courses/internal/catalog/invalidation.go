package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Publisher sends a core NATS message; *nats.Conn satisfies it.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// InvalidationRelay drains the catalog_invalidations outbox and publishes
// each changed course id on Subject, where every TTLCache listens:
//
//	catalog_invalidations(id bigserial, course_id text, created_at timestamptz,
//	                      published_at timestamptz NULL)
//
// Whoever edits the catalog tables inserts a row per changed course (or
// 'ALL') in the same transaction.
type InvalidationRelay struct {
	Log          *zap.Logger
	DB           *pgxpool.Pool
	Pub          Publisher
	Subject      string
	BatchSize    int
	PollInterval time.Duration
}

func NewInvalidationRelay(log *zap.Logger, db *pgxpool.Pool, pub Publisher, subject string) *InvalidationRelay {
	if log == nil {
		log = zap.NewNop()
	}
	return &InvalidationRelay{
		Log:          log,
		DB:           db,
		Pub:          pub,
		Subject:      subject,
		BatchSize:    100,
		PollInterval: 2 * time.Second,
	}
}

func (r *InvalidationRelay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := r.flushOnce(ctx); err != nil {
				r.Log.Warn("catalog invalidation flush failed", zap.Error(err))
			} else if n > 0 {
				r.Log.Debug("catalog invalidations published", zap.Int("count", n))
			}
		}
	}
}

func (r *InvalidationRelay) flushOnce(ctx context.Context) (int, error) {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
SELECT id, course_id
FROM catalog_invalidations
WHERE published_at IS NULL
ORDER BY id
LIMIT $1
FOR UPDATE SKIP LOCKED
`, r.BatchSize)
	if err != nil {
		return 0, err
	}

	var (
		ids     []int64
		courses []string
	)
	for rows.Next() {
		var (
			id       int64
			courseID string
		)
		if err := rows.Scan(&id, &courseID); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
		courses = append(courses, courseID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	keys := coalesceInvalidations(courses)
	for _, k := range keys {
		if err := r.Pub.Publish(r.Subject, []byte(k)); err != nil {
			return 0, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE catalog_invalidations SET published_at = now() WHERE id = ANY($1)`, ids); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return len(keys), nil
}

// coalesceInvalidations dedupes course ids in first-seen order. A blank id
// or ALL anywhere in the batch collapses it to a single ALL.
func coalesceInvalidations(courseIDs []string) []string {
	seen := make(map[string]struct{}, len(courseIDs))
	out := make([]string, 0, len(courseIDs))
	for _, id := range courseIDs {
		id = strings.TrimSpace(id)
		if id == "" || strings.EqualFold(id, invalidateAll) {
			return []string{invalidateAll}
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
