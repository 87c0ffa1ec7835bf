package remote

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote/segment"
	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

// IndexContext is the searchable index of one remote source. Queries answer
// from the snapshot after enriching it with whatever the fetcher returns;
// fetch failures only cost freshness.
type IndexContext struct {
	Source string

	snapshot *Snapshot
	fetcher  Fetcher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func newIndexContext(source string, snapshot *Snapshot, fetcher Fetcher, m *metrics.Metrics) *IndexContext {
	return &IndexContext{
		Source:   source,
		snapshot: snapshot,
		fetcher:  fetcher,
		logger:   logger.WithComponent("remote-index").With("source", source),
		metrics:  m,
	}
}

// GroupIDs returns the known groupIds starting with partial.GroupID.
func (ic *IndexContext) GroupIDs(ctx context.Context, partial coordinate.Coordinate, pluginsOnly bool) ([]string, error) {
	ic.search(ctx, coordinate.Coordinate{GroupArtifact: coordinate.GroupArtifact{GroupID: partial.GroupID}})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var out []string
	for _, ga := range ic.snapshot.Keys() {
		if !strings.HasPrefix(ga.GroupID, partial.GroupID) {
			continue
		}
		if _, ok := seen[ga.GroupID]; ok {
			continue
		}
		if pluginsOnly && !ic.isPlugin(ga) {
			continue
		}
		seen[ga.GroupID] = struct{}{}
		out = append(out, ga.GroupID)
	}
	return out, nil
}

// ArtifactIDs returns artifacts of partial.GroupID (any group when empty)
// whose artifactId starts with partial.ArtifactID, each with its newest
// version.
func (ic *IndexContext) ArtifactIDs(ctx context.Context, partial coordinate.Coordinate, pluginsOnly bool) ([]coordinate.ArtifactInfo, error) {
	ic.search(ctx, partial)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []coordinate.ArtifactInfo
	for _, ga := range ic.snapshot.Keys() {
		if partial.GroupID != "" && ga.GroupID != partial.GroupID {
			continue
		}
		if !strings.HasPrefix(ga.ArtifactID, partial.ArtifactID) {
			continue
		}
		info, ok := ic.Artifact(ga)
		if !ok || (pluginsOnly && !info.IsPlugin()) {
			continue
		}
		out = append(out, info)
	}
	return out, nil
}

// Versions returns every version of the partial coordinate's artifact, newest
// first. keep, when set, filters the list.
func (ic *IndexContext) Versions(ctx context.Context, partial coordinate.Coordinate, pluginsOnly bool, keep func(coordinate.Version) bool) ([]coordinate.Version, error) {
	ga := partial.GroupArtifact
	if ga.GroupID == "" || ga.ArtifactID == "" {
		return nil, nil
	}
	ic.listVersions(ctx, ga)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if pluginsOnly && !ic.isPlugin(ga) {
		return nil, nil
	}
	records, err := ic.snapshot.Records(ga)
	if err != nil {
		return nil, err
	}
	out := make([]coordinate.Version, 0, len(records))
	for _, r := range records {
		v := coordinate.ParseVersion(r.Version)
		if keep != nil && !keep(v) {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

// Artifact reports what the snapshot knows about ga without contacting the
// source.
func (ic *IndexContext) Artifact(ga coordinate.GroupArtifact) (coordinate.ArtifactInfo, bool) {
	records, err := ic.snapshot.Records(ga)
	if err != nil || len(records) == 0 {
		return coordinate.ArtifactInfo{}, false
	}
	var best segment.Record
	var bestVersion coordinate.Version
	info := coordinate.ArtifactInfo{GroupArtifact: ga}
	for _, r := range records {
		v := coordinate.ParseVersion(r.Version)
		if coordinate.Better(bestVersion, v) {
			best, bestVersion = r, v
		}
		if info.Packaging == "" {
			info.Packaging = r.Packaging
		}
		if info.Description == "" {
			info.Description = r.Description
		}
	}
	info.Version = best.Version
	if best.Packaging != "" {
		info.Packaging = best.Packaging
	}
	if best.Description != "" {
		info.Description = best.Description
	}
	return info, true
}

// KnownVersions lists the snapshot's versions of ga without contacting the
// source.
func (ic *IndexContext) KnownVersions(ga coordinate.GroupArtifact) []string {
	records, err := ic.snapshot.Records(ga)
	if err != nil {
		return nil
	}
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Version
	}
	return out
}

func (ic *IndexContext) isPlugin(ga coordinate.GroupArtifact) bool {
	info, ok := ic.Artifact(ga)
	if !ok {
		return coordinate.IsPlugin(ga, "")
	}
	return info.IsPlugin()
}

func (ic *IndexContext) search(ctx context.Context, partial coordinate.Coordinate) {
	if ic.fetcher == nil || (partial.GroupID == "" && partial.ArtifactID == "") {
		return
	}
	start := time.Now()
	hits, err := ic.fetcher.SearchArtifacts(ctx, partial)
	ic.observe("search", start, err)
	if err != nil {
		ic.logger.Warn("artifact search failed", "group_id", partial.GroupID, "artifact_id", partial.ArtifactID, "error", err)
		return
	}
	for _, h := range hits {
		ic.snapshot.Add(h.GroupArtifact, segment.Record{Version: h.Version, Packaging: h.Packaging, Description: h.Description})
	}
}

func (ic *IndexContext) listVersions(ctx context.Context, ga coordinate.GroupArtifact) {
	if ic.fetcher == nil {
		return
	}
	start := time.Now()
	versions, err := ic.fetcher.ListVersions(ctx, ga)
	ic.observe("versions", start, err)
	if err != nil {
		ic.logger.Warn("version listing failed", "artifact", ga.String(), "error", err)
		return
	}
	existing := make(map[string]bool)
	for _, v := range ic.KnownVersions(ga) {
		existing[v] = true
	}
	records := make([]segment.Record, 0, len(versions))
	for _, v := range versions {
		if !existing[v] {
			records = append(records, segment.Record{Version: v})
		}
	}
	ic.snapshot.Add(ga, records...)
}

func (ic *IndexContext) observe(kind string, start time.Time, err error) {
	if ic.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = apperrors.Kind(err)
	}
	ic.metrics.RemoteQueriesTotal.WithLabelValues(kind, outcome).Inc()
	ic.metrics.RemoteQueryLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
}
