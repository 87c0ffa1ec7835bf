// Package localrepo indexes the local artifact store: every version
// directory found under the store root contributes its groupId, artifactId
// and version, and the best version per artifact is kept. The index is
// computed once and dropped as a whole when the store changes.
package localrepo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/watch"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

const maxScanDepth = 10

type snapshot struct {
	artifacts      map[coordinate.GroupArtifact]coordinate.Version
	groupIDs       []string
	plugins        map[coordinate.GroupArtifact]coordinate.Version
	pluginGroupIDs []string
}

type Index struct {
	root     string
	exclude  []string
	debounce time.Duration
	metrics  *metrics.Metrics
	logger   *slog.Logger

	scanMu     sync.Mutex
	current    atomic.Pointer[snapshot]
	generation atomic.Uint64

	watchMu sync.Mutex
	watcher *watch.Watcher
}

// New creates an index over cfg.Path. m may be nil.
func New(cfg config.LocalRepositoryConfig, m *metrics.Metrics) *Index {
	return &Index{
		root:     filepath.Clean(cfg.Path),
		exclude:  cfg.Exclude,
		debounce: cfg.WatchDebounce,
		metrics:  m,
		logger:   logger.WithComponent("local-index").With("root", cfg.Path),
	}
}

func (i *Index) Root() string {
	return i.root
}

// Artifacts returns the best known version of every local artifact. The map
// is shared and must not be modified.
func (i *Index) Artifacts(ctx context.Context) (map[coordinate.GroupArtifact]coordinate.Version, error) {
	snap, err := i.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.artifacts, nil
}

// GroupIDs returns the sorted distinct groupIds of the local artifacts.
func (i *Index) GroupIDs(ctx context.Context) ([]string, error) {
	snap, err := i.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.groupIDs, nil
}

// PluginArtifacts is Artifacts restricted to build plugins.
func (i *Index) PluginArtifacts(ctx context.Context) (map[coordinate.GroupArtifact]coordinate.Version, error) {
	snap, err := i.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.plugins, nil
}

func (i *Index) PluginGroupIDs(ctx context.Context) ([]string, error) {
	snap, err := i.load(ctx)
	if err != nil {
		return nil, err
	}
	return snap.pluginGroupIDs, nil
}

// Versions lists every locally present version of ga, newest first. It reads
// the artifact directory directly and does not use the cached scan.
func (i *Index) Versions(ga coordinate.GroupArtifact) ([]coordinate.Version, error) {
	dir := filepath.Join(i.root, filepath.FromSlash(strings.ReplaceAll(ga.GroupID, ".", "/")), ga.ArtifactID)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", dir, err)
	}
	var versions []coordinate.Version
	for _, e := range entries {
		if e.IsDir() && isVersionDir(e.Name()) {
			versions = append(versions, coordinate.ParseVersion(e.Name()))
		}
	}
	sort.Slice(versions, func(a, b int) bool { return versions[b].Less(versions[a]) })
	return versions, nil
}

// POMPath returns where the POM of c lives in the store.
func (i *Index) POMPath(c coordinate.Coordinate) string {
	return filepath.Join(i.root,
		filepath.FromSlash(strings.ReplaceAll(c.GroupID, ".", "/")),
		c.ArtifactID, c.Version, c.ArtifactID+"-"+c.Version+".pom")
}

// Invalidate drops the cached scan. The next query rescans the whole store.
func (i *Index) Invalidate() {
	i.generation.Add(1)
	if i.current.Swap(nil) != nil {
		i.logger.Debug("local index invalidated")
		if i.metrics != nil {
			i.metrics.LocalScansTotal.WithLabelValues("invalidated").Inc()
		}
	}
}

func (i *Index) load(ctx context.Context) (*snapshot, error) {
	if snap := i.current.Load(); snap != nil {
		return snap, nil
	}
	i.scanMu.Lock()
	defer i.scanMu.Unlock()
	if snap := i.current.Load(); snap != nil {
		return snap, nil
	}

	gen := i.generation.Load()
	start := time.Now()
	artifacts, err := i.scan(ctx)
	if err != nil {
		if i.metrics != nil {
			i.metrics.LocalScansTotal.WithLabelValues("error").Inc()
		}
		return nil, fmt.Errorf("scanning local repository %s: %w", i.root, err)
	}
	snap := newSnapshot(artifacts)
	// a change seen during the scan means the result may already be stale
	if i.generation.Load() == gen {
		i.current.Store(snap)
	}
	if i.metrics != nil {
		i.metrics.LocalScansTotal.WithLabelValues("ok").Inc()
		i.metrics.LocalArtifacts.Set(float64(len(artifacts)))
	}
	i.logger.Info("local repository scanned",
		"artifacts", len(artifacts),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return snap, nil
}

func newSnapshot(artifacts map[coordinate.GroupArtifact]coordinate.Version) *snapshot {
	snap := &snapshot{
		artifacts: artifacts,
		plugins:   make(map[coordinate.GroupArtifact]coordinate.Version),
	}
	groups := make(map[string]struct{})
	pluginGroups := make(map[string]struct{})
	for ga, v := range artifacts {
		groups[ga.GroupID] = struct{}{}
		if coordinate.IsPlugin(ga, "") {
			snap.plugins[ga] = v
			pluginGroups[ga.GroupID] = struct{}{}
		}
	}
	snap.groupIDs = sortedKeys(groups)
	snap.pluginGroupIDs = sortedKeys(pluginGroups)
	return snap
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func isVersionDir(name string) bool {
	return name != "" && name[0] >= '0' && name[0] <= '9'
}

func (i *Index) excluded(rel string) bool {
	for _, pattern := range i.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, rel+"/"); ok {
			return true
		}
	}
	return false
}

func (i *Index) scan(ctx context.Context) (map[coordinate.GroupArtifact]coordinate.Version, error) {
	artifacts := make(map[coordinate.GroupArtifact]coordinate.Version)
	if _, err := os.Stat(i.root); errors.Is(err, fs.ErrNotExist) {
		i.logger.Warn("local repository does not exist")
		return artifacts, nil
	}
	err := filepath.WalkDir(i.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == i.root {
				return err
			}
			i.logger.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() || path == i.root {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		name := d.Name()
		if strings.HasPrefix(name, ".") {
			return filepath.SkipDir
		}
		rel, err := filepath.Rel(i.root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if i.excluded(rel) {
			return filepath.SkipDir
		}
		if !isVersionDir(name) {
			if strings.Count(rel, "/") >= maxScanDepth {
				return filepath.SkipDir
			}
			return nil
		}

		segments := strings.Split(rel, "/")
		if len(segments) < 3 {
			return filepath.SkipDir
		}
		ga := coordinate.GroupArtifact{
			GroupID:    strings.Join(segments[:len(segments)-2], "."),
			ArtifactID: segments[len(segments)-2],
		}
		version := coordinate.ParseVersion(name)
		if existing, ok := artifacts[ga]; !ok || coordinate.Better(existing, version) {
			artifacts[ga] = version
		}
		return filepath.SkipDir
	})
	if err != nil {
		return nil, err
	}
	return artifacts, nil
}

// Watch invalidates the index whenever a directory or file is created or
// deleted anywhere under the store. One watcher goroutine runs per Index
// regardless of how many times the cache is dropped.
func (i *Index) Watch(ctx context.Context) error {
	i.watchMu.Lock()
	defer i.watchMu.Unlock()
	if i.watcher != nil {
		return nil
	}
	w, err := watch.New(watch.Config{
		Root:     i.root,
		Debounce: i.debounce,
		Ops:      []watch.Operation{watch.OpCreate, watch.OpDelete},
		Logger:   i.logger,
	})
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	if err := w.Start(ctx); err != nil {
		return fmt.Errorf("watching %s: %w", i.root, err)
	}
	i.watcher = w
	go func() {
		for batch := range w.Batches() {
			i.logger.Debug("local repository changed", "changes", len(batch))
			i.Invalidate()
		}
	}()
	return nil
}

func (i *Index) Close() error {
	i.watchMu.Lock()
	defer i.watchMu.Unlock()
	if i.watcher == nil {
		return nil
	}
	err := i.watcher.Stop()
	i.watcher = nil
	return err
}
