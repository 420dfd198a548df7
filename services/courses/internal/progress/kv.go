package progress

import (
	"context"
	"errors"
	"strings"
)

// KV is the device-scoped key/value storage behind the Store. Get reports
// ok == false for an absent key.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Set(ctx context.Context, key string, value []byte) error
}

// Backends understood by NewKV.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendRedis  = "redis"
)

type Options struct {
	// Backend forces a backend; empty picks the best available:
	// redis (RedisURL set) > file (Dir set) > memory.
	Backend  string
	Dir      string
	RedisURL string
	// IsProd refuses the in-memory backend.
	IsProd bool
}

// NewKV creates the configured KV backend.
func NewKV(opts Options) (KV, error) {
	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if backend == "" {
		switch {
		case opts.RedisURL != "":
			backend = BackendRedis
		case opts.Dir != "":
			backend = BackendFile
		default:
			backend = BackendMemory
		}
	}

	switch backend {
	case BackendRedis:
		if opts.RedisURL == "" {
			return nil, errors.New("progress: redis backend requires REDIS_URL")
		}
		return NewRedisKV(opts.RedisURL)
	case BackendFile:
		if opts.Dir == "" {
			return nil, errors.New("progress: file backend requires PROGRESS_DIR")
		}
		return NewFileKV(opts.Dir)
	case BackendMemory:
		if opts.IsProd {
			return nil, errors.New("progress: production requires a file or redis backend; in-memory store is not allowed")
		}
		return NewMemoryKV(), nil
	default:
		return nil, errors.New("progress: unknown backend " + backend)
	}
}
