// Package remote answers artifact queries against remote sources. Each source
// gets a lazily created index context backed by an on-disk snapshot; a source
// whose context cannot be created is marked broken for the life of the
// process and never delays queries against other sources.
package remote

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote/cache"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/resilience"
)

type Searcher struct {
	cfg     config.RemoteConfig
	metrics *metrics.Metrics
	logger  *slog.Logger

	// NewFetcher builds the fetcher of a source. It defaults to an HTTP
	// fetcher behind the query cache.
	NewFetcher func(source string) Fetcher

	mu       sync.RWMutex
	contexts map[string]*IndexContext
	breakers map[string]*resilience.CircuitBreaker
	group    singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
}

func NewSearcher(cfg config.RemoteConfig, client *http.Client, qc *cache.QueryCache, m *metrics.Metrics) *Searcher {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Searcher{
		cfg:      cfg,
		metrics:  m,
		logger:   logger.WithComponent("remote-searcher"),
		contexts: make(map[string]*IndexContext),
		breakers: make(map[string]*resilience.CircuitBreaker),
		ctx:      ctx,
		cancel:   cancel,
	}
	s.NewFetcher = func(source string) Fetcher {
		attempts := cfg.RetryAttempts + 1
		f := NewHTTPFetcher(client, source, cfg.SearchEndpoint(source), cfg.UserAgent, attempts)
		return NewCachedFetcher(f, source, qc)
	}
	return s
}

// NormalizeSource gives every spelling of a source URL one identity.
func NormalizeSource(source string) string {
	return strings.TrimSuffix(strings.TrimSpace(source), "/") + "/"
}

// IndexContext returns the context of source, creating it on first use.
// Concurrent callers share one creation; a caller whose ctx ends stops
// waiting while creation carries on in the background.
func (s *Searcher) IndexContext(ctx context.Context, source string) (*IndexContext, error) {
	key := NormalizeSource(source)
	s.mu.RLock()
	ic := s.contexts[key]
	s.mu.RUnlock()
	if ic != nil {
		return ic, nil
	}

	breaker := s.breaker(key)
	if err := breaker.Allow(); err != nil {
		return nil, apperrors.Newf(apperrors.ErrSourceUnavailable, "%v", err)
	}
	ch := s.group.DoChan(key, func() (interface{}, error) {
		s.mu.RLock()
		existing := s.contexts[key]
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}
		cctx, cancel := context.WithTimeout(s.ctx, s.contextTimeout())
		defer cancel()
		start := time.Now()
		created, err := s.create(cctx, key)
		breaker.Record(err)
		if err != nil {
			s.logger.Error("index context creation failed, source marked broken", "source", key, "error", err)
			return nil, err
		}
		s.mu.Lock()
		s.contexts[key] = created
		s.mu.Unlock()
		s.logger.Info("index context ready", "source", key, "duration_ms", time.Since(start).Milliseconds())
		return created, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, apperrors.Newf(apperrors.ErrSourceUnavailable, "%s: %v", key, res.Err)
		}
		return res.Val.(*IndexContext), nil
	case <-ctx.Done():
		return nil, fmt.Errorf("waiting for index context of %s: %w", key, ctx.Err())
	}
}

func (s *Searcher) contextTimeout() time.Duration {
	if s.cfg.ContextTimeout > 0 {
		return s.cfg.ContextTimeout
	}
	return 30 * time.Second
}

func (s *Searcher) create(ctx context.Context, source string) (*IndexContext, error) {
	u, err := url.Parse(source)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, "unsupported source URL %q", source)
	}
	fetcher := s.NewFetcher(source)
	if err := fetcher.Probe(ctx); err != nil {
		return nil, fmt.Errorf("probing %s: %w", source, err)
	}
	snapshot, err := OpenSnapshot(s.snapshotDir(source), s.cfg.MaxSegmentsBeforeMerge, s.metrics)
	if err != nil {
		return nil, err
	}
	snapshot.StartFlushLoop(s.ctx, s.cfg.FlushInterval)
	return newIndexContext(source, snapshot, fetcher, s.metrics), nil
}

func (s *Searcher) snapshotDir(source string) string {
	sum := sha1.Sum([]byte(source))
	return filepath.Join(s.cfg.IndexDir, hex.EncodeToString(sum[:]))
}

// breaker returns the latched breaker of a source: one failed creation keeps
// the source broken until the process restarts.
func (s *Searcher) breaker(key string) *resilience.CircuitBreaker {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[key]; ok {
		return b
	}
	b := resilience.NewCircuitBreaker(key, resilience.CircuitBreakerConfig{
		FailureThreshold: 1,
		ResetTimeout:     -1,
	})
	if s.metrics != nil {
		s.metrics.CircuitBreakerState.WithLabelValues(key).Set(float64(resilience.StateClosed))
		b.OnStateChange(func(name string, _, to resilience.State) {
			s.metrics.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
		})
	}
	s.breakers[key] = b
	return b
}

// Known returns the context of source if it was already created.
func (s *Searcher) Known(source string) (*IndexContext, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ic, ok := s.contexts[NormalizeSource(source)]
	return ic, ok
}

// Artifact reports what the snapshot of source knows about ga. It never
// contacts the source or creates its context.
func (s *Searcher) Artifact(source string, ga coordinate.GroupArtifact) (coordinate.ArtifactInfo, bool) {
	ic, ok := s.Known(source)
	if !ok {
		return coordinate.ArtifactInfo{}, false
	}
	return ic.Artifact(ga)
}

// KnownVersions lists the versions of ga in the snapshot of source.
func (s *Searcher) KnownVersions(source string, ga coordinate.GroupArtifact) []string {
	ic, ok := s.Known(source)
	if !ok {
		return nil
	}
	return ic.KnownVersions(ga)
}

// BrokenSources lists the sources excluded from queries.
func (s *Searcher) BrokenSources() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for key, b := range s.breakers {
		if b.GetState() == resilience.StateOpen {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func (s *Searcher) GroupIDs(ctx context.Context, source string, partial coordinate.Coordinate, pluginsOnly bool) ([]string, error) {
	ic, err := s.IndexContext(ctx, source)
	if err != nil {
		return nil, err
	}
	return ic.GroupIDs(ctx, partial, pluginsOnly)
}

func (s *Searcher) ArtifactIDs(ctx context.Context, source string, partial coordinate.Coordinate, pluginsOnly bool) ([]coordinate.ArtifactInfo, error) {
	ic, err := s.IndexContext(ctx, source)
	if err != nil {
		return nil, err
	}
	return ic.ArtifactIDs(ctx, partial, pluginsOnly)
}

func (s *Searcher) Versions(ctx context.Context, source string, partial coordinate.Coordinate, pluginsOnly bool, keep func(coordinate.Version) bool) ([]coordinate.Version, error) {
	ic, err := s.IndexContext(ctx, source)
	if err != nil {
		return nil, err
	}
	return ic.Versions(ctx, partial, pluginsOnly, keep)
}

// Close stops the flush loops and writes every snapshot to disk.
func (s *Searcher) Close() error {
	s.cancel()
	s.mu.Lock()
	contexts := s.contexts
	s.contexts = make(map[string]*IndexContext)
	s.mu.Unlock()
	for _, ic := range contexts {
		if err := ic.snapshot.Close(); err != nil {
			s.logger.Error("closing snapshot", "source", ic.Source, "error", err)
		}
	}
	return nil
}
