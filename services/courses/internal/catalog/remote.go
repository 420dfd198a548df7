package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// RemoteConfig holds the retry settings of a RemoteSource.
type RemoteConfig struct {
	MaxRetries     int
	RetryBaseDelay time.Duration
	Timeout        time.Duration
}

// RemoteSource reads the catalog from an HTTP JSON API:
//
//	GET {base}/courses       -> [Course, ...]
//	GET {base}/courses/{id}  -> Course, or 404
type RemoteSource struct {
	BaseURL    string
	HTTPClient *http.Client
	Config     RemoteConfig
	CB         *gobreaker.CircuitBreaker
	Log        *zap.Logger
}

type RemoteOption func(*RemoteSource)

func WithCircuitBreaker(cb *gobreaker.CircuitBreaker) RemoteOption {
	return func(s *RemoteSource) { s.CB = cb }
}

func WithLogger(log *zap.Logger) RemoteOption {
	return func(s *RemoteSource) { s.Log = log }
}

func WithHTTPClient(c *http.Client) RemoteOption {
	return func(s *RemoteSource) { s.HTTPClient = c }
}

func NewRemoteSource(baseURL string, cfg RemoteConfig, opts ...RemoteOption) *RemoteSource {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	s := &RemoteSource{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
		Config:     cfg,
		Log:        zap.NewNop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// errRemoteNotFound is internal; it never leaves the source.
var errRemoteNotFound = errors.New("remote catalog: not found")

func (s *RemoteSource) ListCourses(ctx context.Context) ([]Course, error) {
	courses, err := doWithBreaker[[]Course](ctx, s, s.BaseURL+"/courses")
	if err != nil {
		s.Log.Warn("remote catalog list failed", zap.Error(err))
		return nil, errUnavailable("remote catalog")
	}
	if *courses == nil {
		return []Course{}, nil
	}
	if err := ValidateAll(*courses); err != nil {
		s.Log.Warn("remote catalog rejected", zap.Error(err))
		return nil, errInternal(ReasonCorrupt, "remote catalog")
	}
	return *courses, nil
}

func (s *RemoteSource) GetCourse(ctx context.Context, id string) (Course, bool, error) {
	c, err := doWithBreaker[Course](ctx, s, s.BaseURL+"/courses/"+url.PathEscape(id))
	if err != nil {
		if errors.Is(err, errRemoteNotFound) {
			return Course{}, false, nil
		}
		s.Log.Warn("remote catalog get failed", zap.String("course_id", id), zap.Error(err))
		return Course{}, false, errUnavailable("remote catalog")
	}
	if err := c.Validate(); err != nil {
		s.Log.Warn("remote course rejected", zap.String("course_id", id), zap.Error(err))
		return Course{}, false, errInternal(ReasonCorrupt, "remote catalog")
	}
	return *c, true, nil
}

// doWithBreaker runs the retrying request through the circuit breaker. A
// not-found answer is a successful call from the breaker's point of view.
func doWithBreaker[T any](ctx context.Context, s *RemoteSource, u string) (*T, error) {
	if s.CB == nil {
		return doJSONWithRetry[T](ctx, s, u)
	}
	var notFound bool
	result, err := s.CB.Execute(func() (interface{}, error) {
		out, err := doJSONWithRetry[T](ctx, s, u)
		if errors.Is(err, errRemoteNotFound) {
			notFound = true
			return (*T)(nil), nil
		}
		return out, err
	})
	if err != nil {
		return nil, err
	}
	if notFound {
		return nil, errRemoteNotFound
	}
	return result.(*T), nil
}

func doJSONWithRetry[T any](ctx context.Context, s *RemoteSource, u string) (*T, error) {
	var lastErr error
	for attempt := 0; attempt <= s.Config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := s.Config.RetryBaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			s.Log.Debug("retrying catalog request", zap.String("url", u), zap.Int("attempt", attempt), zap.Duration("delay", delay))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}
		result, err := doJSON[T](ctx, s, u)
		if err == nil || errors.Is(err, errRemoteNotFound) {
			return result, err
		}
		lastErr = err
		s.Log.Warn("catalog request failed", zap.String("url", u), zap.Int("attempt", attempt), zap.Error(err))
	}
	return nil, lastErr
}

func doJSON[T any](ctx context.Context, s *RemoteSource, u string) (*T, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, errRemoteNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("remote catalog: status %d body=%q", resp.StatusCode, string(b[:min(len(b), 200)]))
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("remote catalog: decode error: %w", err)
	}
	return &out, nil
}
