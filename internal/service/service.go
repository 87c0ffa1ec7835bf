// Package service is the entry point of the assistant. A Service owns the
// open documents and every component answering requests on them; nothing
// is shared through package-level state.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/completion"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/diagnostics"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/hover"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/localrepo"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/project"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote/cache"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

// Options carries the optional collaborators of a Service.
type Options struct {
	Metrics    *metrics.Metrics
	HTTPClient *http.Client
	QueryCache *cache.QueryCache
}

type document struct {
	version int32
	text    string
	parsed  *dom.Document
}

type Service struct {
	cfg     *config.Config
	metrics *metrics.Metrics
	logger  *slog.Logger

	local      *localrepo.Index
	searcher   *remote.Searcher
	projects   *project.Cache
	completion *completion.Aggregator
	hover      *hover.Provider
	validator  *diagnostics.Validator

	mu        sync.Mutex
	documents map[uri.URI]*document
	checks    atomic.Int32
}

func New(cfg *config.Config, opts Options) *Service {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Remote.QueryTimeout}
	}
	local := localrepo.New(cfg.LocalRepository, opts.Metrics)
	searcher := remote.NewSearcher(cfg.Remote, client, opts.QueryCache, opts.Metrics)
	projects := project.NewCache(project.NewBuilder(local), opts.Metrics)

	return &Service{
		cfg:        cfg,
		metrics:    opts.Metrics,
		logger:     logger.WithComponent("service"),
		local:      local,
		searcher:   searcher,
		projects:   projects,
		completion: completion.New(cfg, local, searcher, projects, opts.Metrics),
		hover:      hover.NewProvider(local, searcher, projects, cfg.Remote.DefaultSource),
		validator:  diagnostics.NewValidator(local, searcher, projects, cfg.Remote.DefaultSource, opts.Metrics),
		documents:  make(map[uri.URI]*document),
	}
}

// Start watches the local repository when configured to.
func (s *Service) Start(ctx context.Context) error {
	if !s.cfg.LocalRepository.Watch {
		return nil
	}
	if _, err := os.Stat(s.local.Root()); err != nil {
		s.logger.Warn("local repository not watched", "root", s.local.Root(), "error", err)
		return nil
	}
	return s.local.Watch(ctx)
}

func (s *Service) Local() *localrepo.Index {
	return s.local
}

func (s *Service) Searcher() *remote.Searcher {
	return s.searcher
}

// Open starts tracking a document.
func (s *Service) Open(id uri.URI, version int32, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documents[id] = &document{version: version, text: text}
}

// Change replaces the text of an open document. Versions older than the
// current one are ignored.
func (s *Service) Change(id uri.URI, version int32, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return apperrors.Newf(apperrors.ErrDocumentNotOpen, "%s", id)
	}
	if version <= d.version {
		return nil
	}
	s.documents[id] = &document{version: version, text: text}
	return nil
}

func (s *Service) CloseDocument(id uri.URI) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, id)
}

// snapshot returns the parsed current state of a document.
func (s *Service) snapshot(id uri.URI) (*document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.documents[id]
	if !ok {
		return nil, apperrors.Newf(apperrors.ErrDocumentNotOpen, "%s", id)
	}
	if d.parsed == nil {
		d.parsed = dom.Parse(d.text)
	}
	return d, nil
}

// OffsetAt converts an editor position in an open document to an offset.
func (s *Service) OffsetAt(id uri.URI, pos protocol.Position) (int, error) {
	d, err := s.snapshot(id)
	if err != nil {
		return 0, err
	}
	return d.parsed.OffsetAt(pos), nil
}

// prepare builds, or reuses, the model of the document's current version.
// Requests naming another version are answered on the current text.
func (s *Service) prepare(ctx context.Context, id uri.URI, version int32) (*document, *project.Model, []project.Problem, error) {
	d, err := s.snapshot(id)
	if err != nil {
		return nil, nil, nil, err
	}
	if version != d.version {
		s.logger.Debug("request for another version", "document", string(id), "requested", version, "current", d.version)
	}
	model, problems := s.projects.Get(ctx, id, d.version, d.text)
	return d, model, problems, nil
}

func documentPath(id uri.URI) string {
	path, err := project.DocumentPath(id)
	if err != nil {
		return ""
	}
	return path
}

// Complete never fails; an unknown document has no candidates.
func (s *Service) Complete(ctx context.Context, id uri.URI, version int32, offset int) []protocol.CompletionItem {
	d, model, _, err := s.prepare(ctx, id, version)
	if err != nil {
		s.logger.Warn("completion on unknown document", "document", string(id), "error", err)
		return nil
	}
	return s.completion.Complete(ctx, completion.Request{
		Doc:    d.parsed,
		Offset: offset,
		Path:   documentPath(id),
		Model:  model,
	})
}

// Hover returns nil when there is nothing to show.
func (s *Service) Hover(ctx context.Context, id uri.URI, version int32, offset int) *protocol.Hover {
	d, model, _, err := s.prepare(ctx, id, version)
	if err != nil {
		s.logger.Warn("hover on unknown document", "document", string(id), "error", err)
		return nil
	}
	return s.hover.Hover(ctx, hover.Request{Doc: d.parsed, Offset: offset, Model: model})
}

// Diagnostics reports the problems of the latest build attempt and the
// structural checks of the document. It fails only for unknown documents.
func (s *Service) Diagnostics(ctx context.Context, id uri.URI, version int32) ([]protocol.Diagnostic, error) {
	start := time.Now()
	d, model, problems, err := s.prepare(ctx, id, version)
	if err != nil {
		return nil, err
	}
	out := s.validator.Diagnose(ctx, diagnostics.Request{
		Doc:      d.parsed,
		Path:     documentPath(id),
		Model:    model,
		Problems: problems,
	})
	if s.metrics != nil {
		s.metrics.RequestsTotal.WithLabelValues("diagnostics", "ok").Inc()
		s.metrics.RequestLatency.WithLabelValues("diagnostics").Observe(time.Since(start).Seconds())
	}
	return out, nil
}

// DiagnoseFile checks a POM on disk as if it were opened and closed again.
// Every call is a new version, so edits on disk are always rebuilt.
func (s *Service) DiagnoseFile(ctx context.Context, path string) ([]protocol.Diagnostic, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	id := uri.File(path)
	version := s.checks.Add(1)
	s.Open(id, version, string(data))
	defer s.CloseDocument(id)
	return s.Diagnostics(ctx, id, version)
}

// Close stops the watcher and writes the remote snapshots to disk.
func (s *Service) Close() error {
	if err := s.local.Close(); err != nil {
		s.logger.Warn("stopping local repository watcher", "error", err)
	}
	return s.searcher.Close()
}
