package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/course-platform/services/courses/internal/catalog"
	"github.com/example/course-platform/services/courses/internal/playback"
	"github.com/example/course-platform/services/courses/internal/progress"
)

const DefaultIdleTTL = 30 * time.Minute

type ManagerConfig struct {
	Store     *progress.Store
	Interval  time.Duration
	IdleTTL   time.Duration
	Events    Events
	NewLoader func() playback.Loader
	NewTicker func(time.Duration) playback.Ticker
}

// Manager tracks the live sessions of all devices.
type Manager struct {
	cfg ManagerConfig
	log *zap.Logger
	now func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

func NewManager(cfg ManagerConfig, log *zap.Logger) *Manager {
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.NewLoader == nil {
		cfg.NewLoader = func() playback.Loader { return playback.NewRemoteLoader() }
	}
	return &Manager{cfg: cfg, log: log, now: time.Now, sessions: make(map[string]*Session)}
}

// Start mounts a new session for deviceID on course.
func (m *Manager) Start(ctx context.Context, deviceID string, course catalog.Course, startVideoID string) (*Session, Snapshot, error) {
	var store *progress.Store
	if m.cfg.Store != nil {
		store = m.cfg.Store.ForDevice(deviceID)
	}
	cfg := Config{
		ID:           uuid.NewString(),
		DeviceID:     deviceID,
		Course:       course,
		StartVideoID: startVideoID,
		Loader:       m.cfg.NewLoader(),
		Interval:     m.cfg.Interval,
		NewTicker:    m.cfg.NewTicker,
		Events:       m.cfg.Events,
		Log:          m.log,
	}
	// A nil *progress.Store must not become a non-nil interface.
	if store != nil {
		cfg.Store = store
	}

	s, snap, err := Start(ctx, cfg)
	if err != nil {
		return nil, Snapshot{}, err
	}
	m.mu.Lock()
	m.sessions[s.ID] = s
	n := len(m.sessions)
	m.mu.Unlock()

	m.log.Info("watch session started",
		zap.String("session_id", s.ID),
		zap.String("course_id", course.ID),
		zap.String("device_id", deviceID),
		zap.Int("active_sessions", n),
	)
	return s, snap, nil
}

// Get returns the session only to the device that started it.
func (m *Manager) Get(id, deviceID string) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok || s.DeviceID != deviceID || s.Closed() {
		return nil, false
	}
	return s, true
}

// End unmounts a session. It reports false for an unknown session.
func (m *Manager) End(id, deviceID string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && s.DeviceID == deviceID {
		delete(m.sessions, id)
	} else {
		ok = false
	}
	m.mu.Unlock()
	if !ok {
		return false
	}
	s.Close()
	m.log.Info("watch session ended", zap.String("session_id", id))
	return true
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Run reaps idle sessions until ctx is done, then closes every session.
func (m *Manager) Run(ctx context.Context) {
	interval := m.cfg.IdleTTL / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			m.CloseAll()
			return
		case <-ticker.C:
			m.Reap()
		}
	}
}

// Reap closes sessions idle for longer than IdleTTL and returns how many.
func (m *Manager) Reap() int {
	cutoff := m.now().Add(-m.cfg.IdleTTL)
	var idle []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if s.LastActive().Before(cutoff) || s.Closed() {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.log.Info("idle sessions reaped", zap.Int("count", len(idle)))
	}
	return len(idle)
}

func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for id, s := range m.sessions {
		all = append(all, s)
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}
