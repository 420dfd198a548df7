// Package progress persists the per-course watched sets of a device.
package progress

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
)

// KeyPrefix namespaces watched-set keys; the course id follows it.
const KeyPrefix = "video_progress_"

// Key returns the storage key for a course's watched set.
func Key(courseID string) string {
	return KeyPrefix + courseID
}

// Store loads and saves watched sets. Storage failures never reach the
// caller: a failed or corrupt load is an empty set, a failed save is logged.
type Store struct {
	kv        KV
	namespace string
	log       *zap.Logger
	timeout   time.Duration
}

func NewStore(kv KV, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{kv: kv, log: log, timeout: 2 * time.Second}
}

// ForDevice returns a Store whose keys live under the device's namespace.
func (s *Store) ForDevice(deviceID string) *Store {
	return &Store{
		kv:        s.kv,
		namespace: "device/" + deviceID + "/",
		log:       s.log.With(zap.String("device_id", deviceID)),
		timeout:   s.timeout,
	}
}

func (s *Store) key(courseID string) string {
	return s.namespace + Key(courseID)
}

// Load returns the persisted watched set for courseID, or an empty set.
func (s *Store) Load(ctx context.Context, courseID string) WatchedSet {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, ok, err := s.kv.Get(ctx, s.key(courseID))
	if err != nil {
		s.log.Warn("progress load failed", zap.String("course_id", courseID), zap.Error(err))
		return WatchedSet{}
	}
	if !ok || len(raw) == 0 {
		return WatchedSet{}
	}
	var set WatchedSet
	if err := json.Unmarshal(raw, &set); err != nil {
		s.log.Warn("progress data corrupt, starting empty", zap.String("course_id", courseID), zap.Error(err))
		return WatchedSet{}
	}
	return set
}

// Save replaces the persisted watched set for courseID.
func (s *Store) Save(ctx context.Context, courseID string, set WatchedSet) {
	raw, err := json.Marshal(set)
	if err != nil {
		s.log.Error("progress encode failed", zap.String("course_id", courseID), zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.kv.Set(ctx, s.key(courseID), raw); err != nil {
		s.log.Warn("progress save failed", zap.String("course_id", courseID), zap.Int("watched", set.Len()), zap.Error(err))
	}
}
