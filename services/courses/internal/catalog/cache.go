package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Cache stores course lists by key. A single course is stored as a list of
// one. Implementations must be safe for concurrent use; failures are misses.
type Cache interface {
	Get(ctx context.Context, key string) ([]Course, bool)
	Set(ctx context.Context, key string, courses []Course)
}

const (
	keyAllCourses   = "courses"
	keyCoursePrefix = "course:"
	invalidateAll   = "ALL"
)

// Cached decorates an Accessor with a Cache. Not-found answers and source
// errors are never cached.
type Cached struct {
	Source Accessor
	Cache  Cache
}

func NewCached(src Accessor, cache Cache) *Cached {
	return &Cached{Source: src, Cache: cache}
}

func (c *Cached) ListCourses(ctx context.Context) ([]Course, error) {
	if v, ok := c.Cache.Get(ctx, keyAllCourses); ok {
		return v, nil
	}
	courses, err := c.Source.ListCourses(ctx)
	if err != nil {
		return nil, err
	}
	c.Cache.Set(ctx, keyAllCourses, courses)
	return courses, nil
}

func (c *Cached) GetCourse(ctx context.Context, id string) (Course, bool, error) {
	key := keyCoursePrefix + id
	if v, ok := c.Cache.Get(ctx, key); ok && len(v) == 1 {
		return v[0], true, nil
	}
	course, ok, err := c.Source.GetCourse(ctx, id)
	if err != nil || !ok {
		return Course{}, ok, err
	}
	c.Cache.Set(ctx, key, []Course{course})
	return course, true, nil
}

type cacheItem struct {
	val       []Course
	expiresAt time.Time
}

// TTLCache is an in-memory Cache with per-entry expiry and optional NATS
// invalidation: a message on the subject drops the key in its payload, or
// everything when the payload is empty or "ALL".
type TTLCache struct {
	mu    sync.RWMutex
	items map[string]cacheItem
	ttl   time.Duration
	sub   *nats.Subscription
}

func NewTTLCache(ttl time.Duration, nc *nats.Conn, subj string, log *zap.Logger) *TTLCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	c := &TTLCache{
		items: make(map[string]cacheItem),
		ttl:   ttl,
	}
	if nc != nil && subj != "" {
		sub, err := nc.Subscribe(subj, func(m *nats.Msg) {
			c.Invalidate(string(m.Data))
		})
		if err != nil {
			log.Warn("catalog cache: invalidation subscribe failed", zap.String("subject", subj), zap.Error(err))
		} else {
			c.sub = sub
		}
	}
	return c
}

func (c *TTLCache) Get(_ context.Context, key string) ([]Course, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if time.Now().After(it.expiresAt) {
		c.mu.Lock()
		if cur, ok2 := c.items[key]; ok2 && time.Now().After(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	return it.val, true
}

func (c *TTLCache) Set(_ context.Context, key string, v []Course) {
	c.mu.Lock()
	c.items[key] = cacheItem{val: v, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Invalidate drops key, or every entry for "" / "ALL". A course id is
// accepted as well as a full cache key; the course list is dropped with it.
func (c *TTLCache) Invalidate(key string) {
	key = strings.TrimSpace(key)
	c.mu.Lock()
	defer c.mu.Unlock()
	if key == "" || strings.EqualFold(key, invalidateAll) {
		c.items = make(map[string]cacheItem)
		return
	}
	if !strings.HasPrefix(key, keyCoursePrefix) && key != keyAllCourses {
		key = keyCoursePrefix + key
	}
	delete(c.items, key)
	delete(c.items, keyAllCourses)
}

func (c *TTLCache) Close() error {
	if c.sub == nil {
		return nil
	}
	return c.sub.Unsubscribe()
}

// RedisCache stores JSON encoded course lists with a TTL.
type RedisCache struct {
	Client *redis.Client
	TTL    time.Duration
	Prefix string
	Log    *zap.Logger
}

func NewRedisCache(url string, ttl time.Duration, log *zap.Logger) (*RedisCache, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &RedisCache{Client: redis.NewClient(opt), TTL: ttl, Prefix: "catalog:", Log: log}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]Course, bool) {
	val, err := c.Client.Get(ctx, c.Prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.Log.Warn("catalog cache: redis get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	var out []Course
	if err := json.Unmarshal(val, &out); err != nil {
		c.Log.Warn("catalog cache: corrupt entry", zap.String("key", key), zap.Error(err))
		return nil, false
	}
	return out, true
}

func (c *RedisCache) Set(ctx context.Context, key string, v []Course) {
	b, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.Client.Set(ctx, c.Prefix+key, b, c.TTL).Err(); err != nil {
		c.Log.Warn("catalog cache: redis set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Close() error {
	return c.Client.Close()
}
