package remote

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote/segment"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

// Snapshot is the on-disk index of one remote source: records learned since
// the last flush are held in memory, older ones in immutable segments.
type Snapshot struct {
	dir         string
	maxSegments int
	writer      *segment.Writer
	logger      *slog.Logger
	metrics     *metrics.Metrics

	flushMu sync.Mutex
	memMu   sync.RWMutex
	memory  map[coordinate.GroupArtifact]map[string]segment.Record

	readerMu sync.RWMutex
	readers  []*segment.Reader

	stopOnce sync.Once
	stop     chan struct{}
	loopDone chan struct{}
}

// OpenSnapshot loads the segments found in dir, creating it if needed.
func OpenSnapshot(dir string, maxSegments int, m *metrics.Metrics) (*Snapshot, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating snapshot directory: %w", err)
	}
	s := &Snapshot{
		dir:         dir,
		maxSegments: maxSegments,
		writer:      segment.NewWriter(dir),
		logger:      logger.WithComponent("remote-snapshot").With("dir", dir),
		metrics:     m,
		memory:      make(map[coordinate.GroupArtifact]map[string]segment.Record),
		stop:        make(chan struct{}),
	}
	if err := s.loadExistingSegments(); err != nil {
		return nil, fmt.Errorf("loading existing segments: %w", err)
	}
	return s, nil
}

// Add records versions of ga. A later record for the same version replaces
// the earlier one.
func (s *Snapshot) Add(ga coordinate.GroupArtifact, records ...segment.Record) {
	if len(records) == 0 {
		return
	}
	s.memMu.Lock()
	defer s.memMu.Unlock()
	versions := s.memory[ga]
	if versions == nil {
		versions = make(map[string]segment.Record, len(records))
		s.memory[ga] = versions
	}
	for _, r := range records {
		if r.Version == "" {
			continue
		}
		versions[r.Version] = r
	}
}

// Records returns every known version of ga. Newer segments and memory win
// over older segments for the same version.
func (s *Snapshot) Records(ga coordinate.GroupArtifact) ([]segment.Record, error) {
	merged := make(map[string]segment.Record)
	for _, reader := range s.readerList() {
		records, err := reader.Lookup(ga)
		if err != nil {
			s.logger.Error("segment lookup failed", "segment", reader.Path(), "error", err)
			continue
		}
		for _, r := range records {
			merged[r.Version] = r
		}
	}
	s.memMu.RLock()
	for v, r := range s.memory[ga] {
		merged[v] = r
	}
	s.memMu.RUnlock()

	out := make([]segment.Record, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		return coordinate.ParseVersion(out[i].Version).Compare(coordinate.ParseVersion(out[j].Version)) > 0
	})
	return out, nil
}

// Keys lists every artifact the snapshot knows, sorted.
func (s *Snapshot) Keys() []coordinate.GroupArtifact {
	set := make(map[coordinate.GroupArtifact]struct{})
	for _, reader := range s.readerList() {
		for _, k := range reader.Keys() {
			set[k] = struct{}{}
		}
	}
	s.memMu.RLock()
	for k := range s.memory {
		set[k] = struct{}{}
	}
	s.memMu.RUnlock()

	keys := make([]coordinate.GroupArtifact, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Compare(keys[j]) < 0 })
	return keys
}

func (s *Snapshot) readerList() []*segment.Reader {
	s.readerMu.RLock()
	defer s.readerMu.RUnlock()
	readers := make([]*segment.Reader, len(s.readers))
	copy(readers, s.readers)
	return readers
}

func (s *Snapshot) SegmentCount() int {
	s.readerMu.RLock()
	defer s.readerMu.RUnlock()
	return len(s.readers)
}

// Flush writes the in-memory records to a new segment and merges segments
// once there are more than the configured maximum. Records stay in memory
// until the segment holding them is readable.
func (s *Snapshot) Flush() error {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.memMu.RLock()
	if len(s.memory) == 0 {
		s.memMu.RUnlock()
		return nil
	}
	entries := make([]segment.Entry, 0, len(s.memory))
	for ga, versions := range s.memory {
		entries = append(entries, segment.Entry{Key: ga, Records: sortedRecords(versions)})
	}
	s.memMu.RUnlock()

	segmentName, err := s.writer.Write(entries)
	if err != nil {
		s.recordFlush("error")
		return fmt.Errorf("writing segment: %w", err)
	}
	path := filepath.Join(s.dir, segmentName)
	reader, err := segment.OpenReader(path)
	if err != nil {
		os.Remove(path)
		s.recordFlush("error")
		return fmt.Errorf("opening new segment for reading: %w", err)
	}
	s.readerMu.Lock()
	s.readers = append(s.readers, reader)
	count := len(s.readers)
	s.readerMu.Unlock()
	s.release(entries)

	s.recordFlush("ok")
	s.logger.Debug("segment flushed",
		"segment", segmentName,
		"artifacts", reader.KeyCount(),
		"records", reader.RecordCount(),
		"active_segments", count,
	)
	if s.maxSegments > 0 && count > s.maxSegments {
		return s.Merge()
	}
	return nil
}

// release drops flushed records from memory. A record replaced while the
// segment was written stays.
func (s *Snapshot) release(entries []segment.Entry) {
	s.memMu.Lock()
	defer s.memMu.Unlock()
	for _, e := range entries {
		current := s.memory[e.Key]
		for _, r := range e.Records {
			if cur, ok := current[r.Version]; ok && cur == r {
				delete(current, r.Version)
			}
		}
		if len(current) == 0 {
			delete(s.memory, e.Key)
		}
	}
}

func (s *Snapshot) recordFlush(status string) {
	if s.metrics != nil {
		s.metrics.SnapshotFlushesTotal.WithLabelValues(status).Inc()
	}
}

// Merge rewrites all segments into one.
func (s *Snapshot) Merge() error {
	s.readerMu.Lock()
	defer s.readerMu.Unlock()
	if len(s.readers) < 2 {
		return nil
	}
	merged := make(map[coordinate.GroupArtifact]map[string]segment.Record)
	for _, reader := range s.readers {
		entries, err := reader.Entries()
		if err != nil {
			return fmt.Errorf("reading segment %s: %w", reader.Path(), err)
		}
		for _, e := range entries {
			versions := merged[e.Key]
			if versions == nil {
				versions = make(map[string]segment.Record, len(e.Records))
				merged[e.Key] = versions
			}
			for _, r := range e.Records {
				versions[r.Version] = r
			}
		}
	}
	entries := make([]segment.Entry, 0, len(merged))
	for ga, versions := range merged {
		entries = append(entries, segment.Entry{Key: ga, Records: sortedRecords(versions)})
	}
	name, err := s.writer.Write(entries)
	if err != nil {
		return fmt.Errorf("writing merged segment: %w", err)
	}
	reader, err := segment.OpenReader(filepath.Join(s.dir, name))
	if err != nil {
		return fmt.Errorf("opening merged segment: %w", err)
	}
	old := s.readers
	s.readers = []*segment.Reader{reader}
	for _, r := range old {
		if err := r.Close(); err != nil {
			s.logger.Error("closing segment reader", "error", err)
		}
		if err := os.Remove(r.Path()); err != nil {
			s.logger.Error("removing merged segment", "segment", r.Path(), "error", err)
		}
	}
	s.logger.Info("segments merged", "merged", len(old), "segment", name, "artifacts", reader.KeyCount())
	return nil
}

// StartFlushLoop flushes every interval until ctx ends or Close is called.
// It must be called at most once.
func (s *Snapshot) StartFlushLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	s.loopDone = make(chan struct{})
	go func() {
		defer close(s.loopDone)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ctx.Done():
				if err := s.Flush(); err != nil {
					s.logger.Error("final flush failed", "error", err)
				}
				return
			case <-ticker.C:
				if err := s.Flush(); err != nil {
					s.logger.Error("periodic flush failed", "error", err)
				}
			}
		}
	}()
}

func (s *Snapshot) Close() error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.loopDone != nil {
		<-s.loopDone
	}
	if err := s.Flush(); err != nil {
		s.logger.Error("final flush on close failed", "error", err)
	}
	s.readerMu.Lock()
	defer s.readerMu.Unlock()
	for _, reader := range s.readers {
		if err := reader.Close(); err != nil {
			s.logger.Error("closing segment reader", "error", err)
		}
	}
	s.readers = nil
	return nil
}

func (s *Snapshot) loadExistingSegments() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("reading snapshot directory: %w", err)
	}
	names := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), segment.FileSuffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	opened := make([]*segment.Reader, len(names))
	var g errgroup.Group
	g.SetLimit(4)
	for i, name := range names {
		g.Go(func() error {
			reader, err := segment.OpenReader(filepath.Join(s.dir, name))
			if err != nil {
				s.logger.Error("failed to open segment, skipping", "segment", name, "error", err)
				return nil
			}
			opened[i] = reader
			return nil
		})
	}
	g.Wait()
	for _, reader := range opened {
		if reader != nil {
			s.readers = append(s.readers, reader)
		}
	}
	s.logger.Debug("segment recovery complete", "segments_loaded", len(s.readers))
	return nil
}

func sortedRecords(versions map[string]segment.Record) []segment.Record {
	out := make([]segment.Record, 0, len(versions))
	for _, r := range versions {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}
