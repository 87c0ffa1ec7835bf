package project

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.lsp.dev/uri"

	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

type entry struct {
	mu       sync.Mutex
	seen     bool
	version  int32
	model    *Model
	problems []Problem
}

type snapshotEntry struct {
	modTime time.Time
	size    int64
	model   *Model
	err     error
}

// Cache holds, per document, the last successfully built model and the
// problems of the latest build attempt. A document is rebuilt only when it is
// queried with a version newer than any seen before.
type Cache struct {
	builder ModelBuilder
	metrics *metrics.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	entries map[uri.URI]*entry

	snapMu    sync.Mutex
	snapshots map[string]*snapshotEntry
}

// NewCache creates a cache over builder. m may be nil.
func NewCache(builder ModelBuilder, m *metrics.Metrics) *Cache {
	return &Cache{
		builder:   builder,
		metrics:   m,
		logger:    logger.WithComponent("project-cache"),
		entries:   make(map[uri.URI]*entry),
		snapshots: make(map[string]*snapshotEntry),
	}
}

func (c *Cache) entry(id uri.URI) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry{}
		c.entries[id] = e
	}
	return e
}

// Get returns the last successfully built model for the document (nil until
// a build succeeds) and the problems of the most recent build attempt. text
// is the content of the document at version.
func (c *Cache) Get(ctx context.Context, id uri.URI, version int32, text string) (*Model, []Problem) {
	e := c.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.seen && version <= e.version {
		return e.model, e.problems
	}

	start := time.Now()
	model, problems, outcome := c.rebuild(ctx, id, text)
	if outcome == "canceled" {
		// the next request for this version rebuilds
		if c.metrics != nil {
			c.metrics.ModelBuildsTotal.WithLabelValues(outcome).Inc()
		}
		c.logger.Debug("model rebuild interrupted", "document", string(id), "version", version, "error", ctx.Err())
		return e.model, e.problems
	}
	if model != nil {
		e.model = model
	}
	e.problems = problems
	e.version = version
	e.seen = true

	if c.metrics != nil {
		c.metrics.ModelBuildsTotal.WithLabelValues(outcome).Inc()
	}
	c.logger.Debug("model rebuilt",
		"document", string(id),
		"version", version,
		"outcome", outcome,
		"problems", len(problems),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return e.model, e.problems
}

// LastSeenVersion reports the newest version the cache has processed.
func (c *Cache) LastSeenVersion(id uri.URI) (int32, bool) {
	e := c.entry(id)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version, e.seen
}

func (c *Cache) rebuild(ctx context.Context, id uri.URI, text string) (*Model, []Problem, string) {
	if c.builder == nil {
		c.logger.Error("model builder unavailable", "document", string(id), "error", apperrors.ErrLookup)
		return nil, nil, "lookup"
	}
	path, err := DocumentPath(id)
	if err != nil {
		return nil, []Problem{ioProblem(err)}, "io_error"
	}
	dir := filepath.Dir(path)

	workingCopy, err := writeWorkingCopy(dir, text)
	if err != nil {
		return nil, []Problem{ioProblem(err)}, "io_error"
	}
	defer os.Remove(workingCopy)

	model, problems, err := c.builder.Build(ctx, Request{Path: workingCopy, Basedir: dir})
	switch {
	case ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		return nil, nil, "canceled"
	case err == nil:
		model.Path = path
		return model, problems, "ok"
	case errors.Is(err, apperrors.ErrDocumentBuild):
		return nil, problems, "failed"
	case errors.Is(err, apperrors.ErrLookup):
		c.logger.Error("model builder lookup failed", "document", string(id), "error", err)
		return nil, nil, "lookup"
	default:
		return nil, []Problem{ioProblem(err)}, "io_error"
	}
}

func ioProblem(err error) Problem {
	return Problem{Severity: SeverityError, Message: err.Error(), Line: 1, Column: 1}
}

// writeWorkingCopy stores text next to the document so relative parent
// paths resolve. Unsaved documents without a directory fall back to the
// temp directory.
func writeWorkingCopy(dir, text string) (string, error) {
	f, err := os.CreateTemp(dir, "workingCopy*.pom.xml")
	if err != nil {
		f, err = os.CreateTemp("", "workingCopy*.pom.xml")
		if err != nil {
			return "", fmt.Errorf("creating working copy: %w", err)
		}
	}
	if _, err := f.WriteString(text); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("writing working copy: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("closing working copy: %w", err)
	}
	return f.Name(), nil
}

// SnapshotProject builds a POM file on disk, such as the parent of an open
// document. Results are memoized until the file's modification time or size
// changes.
func (c *Cache) SnapshotProject(ctx context.Context, path string) (*Model, error) {
	if c.builder == nil {
		return nil, apperrors.New(apperrors.ErrLookup, "model builder unavailable")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	c.snapMu.Lock()
	defer c.snapMu.Unlock()
	if s, ok := c.snapshots[path]; ok && s.modTime.Equal(info.ModTime()) && s.size == info.Size() {
		return s.model, s.err
	}
	model, _, err := c.builder.Build(ctx, Request{Path: path})
	if ctx.Err() == nil {
		c.snapshots[path] = &snapshotEntry{modTime: info.ModTime(), size: info.Size(), model: model, err: err}
	}
	return model, err
}

// DocumentPath returns the filesystem path of a file URI.
func DocumentPath(id uri.URI) (string, error) {
	u, err := url.ParseRequestURI(string(id))
	if err != nil || u.Scheme != uri.FileScheme {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "not a file URI: %s", id)
	}
	return id.Filename(), nil
}
