// Package completion answers completion requests on POM documents. It merges
// the local repository index, which answers synchronously, with one query
// per remote source, all bounded by a shared deadline.
package completion

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/edit"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/project"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/tracing"
)

// LocalIndex is the local repository index.
type LocalIndex interface {
	Artifacts(ctx context.Context) (map[coordinate.GroupArtifact]coordinate.Version, error)
	PluginArtifacts(ctx context.Context) (map[coordinate.GroupArtifact]coordinate.Version, error)
	GroupIDs(ctx context.Context) ([]string, error)
	PluginGroupIDs(ctx context.Context) ([]string, error)
}

// RemoteIndex queries remote sources by URL.
type RemoteIndex interface {
	GroupIDs(ctx context.Context, source string, partial coordinate.Coordinate, pluginsOnly bool) ([]string, error)
	ArtifactIDs(ctx context.Context, source string, partial coordinate.Coordinate, pluginsOnly bool) ([]coordinate.ArtifactInfo, error)
	Versions(ctx context.Context, source string, partial coordinate.Coordinate, pluginsOnly bool, keep func(coordinate.Version) bool) ([]coordinate.Version, error)
}

// Projects builds POM files found on disk, such as a filesystem parent.
type Projects interface {
	SnapshotProject(ctx context.Context, path string) (*project.Model, error)
}

// Request is one completion: the parsed document, the cursor offset, the
// document's path on disk (empty when unknown) and its last good model
// (nil when none was ever built).
type Request struct {
	Doc    *dom.Document
	Offset int
	Path   string
	Model  *project.Model
}

type Aggregator struct {
	local         LocalIndex
	remote        RemoteIndex
	projects      Projects
	defaultSource string
	deadline      time.Duration
	queryTimeout  time.Duration
	metrics       *metrics.Metrics
}

// New creates an aggregator. Any of local, remote and projects may be nil to
// disable that source of candidates.
func New(cfg *config.Config, local LocalIndex, remote RemoteIndex, projects Projects, m *metrics.Metrics) *Aggregator {
	deadline := cfg.Completion.Deadline
	if deadline <= 0 {
		deadline = 2 * time.Second
	}
	queryTimeout := cfg.Remote.QueryTimeout
	if queryTimeout <= 0 {
		queryTimeout = 15 * time.Second
	}
	defaultSource := cfg.Remote.DefaultSource
	if defaultSource == "" {
		defaultSource = config.CentralURL
	}
	return &Aggregator{
		local:         local,
		remote:        remote,
		projects:      projects,
		defaultSource: defaultSource,
		deadline:      deadline,
		queryTimeout:  queryTimeout,
		metrics:       m,
	}
}

// position is the syntactic context of a request.
type position struct {
	Request
	el          *dom.Node
	edit        edit.Request
	plugin      bool
	parentDecl  bool
	declaration coordinate.Coordinate
}

func (a *Aggregator) locate(req Request) *position {
	el := req.Doc.ElementAt(req.Offset)
	if el == nil {
		return nil
	}
	p := &position{
		Request: req,
		el:      el,
		edit:    edit.Request{Doc: req.Doc, Offset: req.Offset, Element: el},
	}
	parent := el.ParentElement()
	p.plugin = el.Name == "plugin" || (parent != nil && parent.Name == "plugin")
	p.parentDecl = el.Name == "parent" || (parent != nil && parent.Name == "parent")
	p.declaration = dom.SiblingCoordinate(el)
	return p
}

// Complete never fails: problems with any source are logged and that source
// contributes nothing.
func (a *Aggregator) Complete(ctx context.Context, req Request) []protocol.CompletionItem {
	start := time.Now()
	requestID := uuid.NewString()
	ctx = logger.WithRequestID(ctx, requestID)
	if req.Path != "" {
		ctx = logger.WithDocument(ctx, req.Path)
	}
	ctx, span := tracing.StartSpan(ctx, "completion", requestID)
	defer func() {
		span.End()
		span.Log()
	}()

	items := a.complete(ctx, req)

	span.SetAttr("items", len(items))
	if a.metrics != nil {
		a.metrics.RequestsTotal.WithLabelValues("completion", "ok").Inc()
		a.metrics.RequestLatency.WithLabelValues("completion").Observe(time.Since(start).Seconds())
		a.metrics.CompletionItemsCount.Observe(float64(len(items)))
	}
	logger.FromContext(ctx).Debug("completion finished", "items", len(items), "duration_ms", time.Since(start).Milliseconds())
	return items
}

func (a *Aggregator) complete(ctx context.Context, req Request) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	if len(req.Doc.Text) < 2 {
		items = append(items, minimalPOM(req.Doc))
	}
	p := a.locate(req)
	if p == nil {
		return items
	}

	switch p.el.Name {
	case "scope":
		items = append(items, named(p, coordinate.Scopes)...)
	case "phase":
		items = append(items, named(p, coordinate.Phases)...)
	case "groupId":
		if p.parentDecl {
			if parent := a.filesystemParent(ctx, p); parent != nil {
				items = append(items, edit.Value(p.edit, parent.Coordinate.GroupID, parent.Description, protocol.CompletionItemKindProperty))
			}
			break
		}
		items = append(items, a.localGroupIDs(ctx, p)...)
		items = append(items, a.fanOut(ctx, p, p.plugin)...)
	case "artifactId":
		if p.parentDecl {
			if parent := a.filesystemParent(ctx, p); parent != nil {
				items = append(items, edit.GAV(p.edit, edit.Insertion{Strategy: edit.ElementValueAndSibling}, infoOf(parent)))
			}
			break
		}
		items = append(items, a.localArtifacts(ctx, p, edit.Insertion{Strategy: edit.ElementValueAndSibling}, p.declaration.GroupID)...)
		items = append(items, a.fanOut(ctx, p, p.plugin)...)
	case "version":
		if p.parentDecl {
			if parent := a.filesystemParent(ctx, p); parent != nil {
				items = append(items, edit.Value(p.edit, parent.Coordinate.Version, parent.Description, protocol.CompletionItemKindProperty))
			}
			break
		}
		if p.declaration.ArtifactID != "" {
			items = append(items, a.localVersion(ctx, p)...)
			items = append(items, a.fanOut(ctx, p, p.plugin)...)
		}
	case "module":
		items = append(items, modules(p)...)
	case "dependencies", "dependency":
		items = append(items, a.localArtifacts(ctx, p, edit.InsertionFor(p.el), "")...)
		items = append(items, a.fanOut(ctx, p, false)...)
	case "plugins", "plugin":
		p.plugin = true
		items = append(items, a.localArtifacts(ctx, p, edit.InsertionFor(p.el), "")...)
		items = append(items, a.fanOut(ctx, p, true)...)
	case "parent":
		if parent := a.filesystemParent(ctx, p); parent != nil {
			items = append(items, edit.GAV(p.edit, edit.Insertion{Strategy: edit.ChildrenElements}, infoOf(parent)))
		}
	}

	if node := req.Doc.NodeAt(req.Offset); node.IsText() {
		items = append(items, properties(p, node)...)
	}
	return items
}

func named(p *position, list []coordinate.Named) []protocol.CompletionItem {
	items := make([]protocol.CompletionItem, 0, len(list))
	for _, n := range list {
		items = append(items, edit.Closing(p.edit, n.Name, n.Description))
	}
	return items
}

func modules(p *position) []protocol.CompletionItem {
	if p.Model == nil {
		return nil
	}
	items := make([]protocol.CompletionItem, 0, len(p.Model.Modules))
	for _, m := range p.Model.Modules {
		items = append(items, edit.Value(p.edit, m, "", protocol.CompletionItemKindModule))
	}
	return items
}

func infoOf(m *project.Model) coordinate.ArtifactInfo {
	return coordinate.ArtifactInfo{
		GroupArtifact: m.Coordinate.GroupArtifact,
		Version:       m.Coordinate.Version,
		Packaging:     m.Packaging,
		Description:   m.Description,
	}
}

func (a *Aggregator) localGroupIDs(ctx context.Context, p *position) []protocol.CompletionItem {
	if a.local == nil {
		return nil
	}
	lookup := a.local.GroupIDs
	if p.plugin {
		lookup = a.local.PluginGroupIDs
	}
	groups, err := lookup(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("local group lookup failed", "error", err)
		return nil
	}
	items := make([]protocol.CompletionItem, 0, len(groups))
	for _, g := range groups {
		items = append(items, edit.Closing(p.edit, g, g))
	}
	return items
}

func (a *Aggregator) localMap(ctx context.Context, plugins bool) []coordinate.ArtifactInfo {
	if a.local == nil {
		return nil
	}
	lookup := a.local.Artifacts
	if plugins {
		lookup = a.local.PluginArtifacts
	}
	artifacts, err := lookup(ctx)
	if err != nil {
		logger.FromContext(ctx).Warn("local artifact lookup failed", "error", err)
		return nil
	}
	out := make([]coordinate.ArtifactInfo, 0, len(artifacts))
	for ga, v := range artifacts {
		out = append(out, coordinate.ArtifactInfo{GroupArtifact: ga, Version: v.String()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Compare(out[j].GroupArtifact) < 0 })
	return out
}

func (a *Aggregator) localArtifacts(ctx context.Context, p *position, ins edit.Insertion, groupID string) []protocol.CompletionItem {
	var items []protocol.CompletionItem
	for _, info := range a.localMap(ctx, p.plugin) {
		if groupID != "" && info.GroupID != groupID {
			continue
		}
		items = append(items, edit.GAV(p.edit, ins, info))
	}
	return items
}

func (a *Aggregator) localVersion(ctx context.Context, p *position) []protocol.CompletionItem {
	for _, info := range a.localMap(ctx, false) {
		if info.ArtifactID != p.declaration.ArtifactID {
			continue
		}
		if p.declaration.GroupID != "" && info.GroupID != p.declaration.GroupID {
			continue
		}
		return []protocol.CompletionItem{edit.Value(p.edit, info.Version, "", protocol.CompletionItemKindProperty)}
	}
	return nil
}

// filesystemParent builds the parent POM the declaration points at through
// relativePath, "../pom.xml" by default.
func (a *Aggregator) filesystemParent(ctx context.Context, p *position) *project.Model {
	if a.projects == nil || p.Path == "" {
		return nil
	}
	decl := p.el
	if decl.Name != "parent" {
		decl = decl.ParentElement()
	}
	rel, ok := decl.ChildText("relativePath")
	if !ok {
		rel = ".."
	}
	target := filepath.Join(filepath.Dir(p.Path), filepath.FromSlash(rel))
	info, err := os.Stat(target)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		target = filepath.Join(target, "pom.xml")
		if _, err := os.Stat(target); err != nil {
			return nil
		}
	}
	model, err := a.projects.SnapshotProject(ctx, target)
	if err != nil {
		logger.FromContext(ctx).Debug("filesystem parent unavailable", "path", target, "error", err)
		return nil
	}
	return model
}
