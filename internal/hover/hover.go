// Package hover describes the value under the cursor: dependency scopes,
// lifecycle phases, artifact declarations and property references.
package hover

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/project"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
)

// LocalPOMs locates artifact POMs in the local store.
type LocalPOMs interface {
	POMPath(c coordinate.Coordinate) string
}

// Catalog answers from the remote snapshots without network access.
type Catalog interface {
	Artifact(source string, ga coordinate.GroupArtifact) (coordinate.ArtifactInfo, bool)
}

type Projects interface {
	SnapshotProject(ctx context.Context, path string) (*project.Model, error)
}

type Request struct {
	Doc    *dom.Document
	Offset int
	Model  *project.Model
}

type Provider struct {
	local         LocalPOMs
	catalog       Catalog
	projects      Projects
	defaultSource string
	logger        *slog.Logger
}

// NewProvider creates a hover provider. Nil collaborators are skipped.
func NewProvider(local LocalPOMs, catalog Catalog, projects Projects, defaultSource string) *Provider {
	if defaultSource == "" {
		defaultSource = config.CentralURL
	}
	return &Provider{
		local:         local,
		catalog:       catalog,
		projects:      projects,
		defaultSource: defaultSource,
		logger:        logger.WithComponent("hover"),
	}
}

// Hover returns nil when there is nothing to describe.
func (p *Provider) Hover(ctx context.Context, req Request) *protocol.Hover {
	if node := req.Doc.NodeAt(req.Offset); node.IsText() {
		if h := property(req, node); h != nil {
			return h
		}
	}
	el := req.Doc.ElementAt(req.Offset)
	if el == nil {
		return nil
	}
	switch el.Name {
	case "scope":
		return named(req, el, coordinate.Scopes)
	case "phase":
		return named(req, el, coordinate.Phases)
	case "groupId", "artifactId", "version":
		if dom.IsDeclaration(el.ParentElement()) {
			return p.artifact(ctx, req, el)
		}
	}
	return nil
}

func contentRange(doc *dom.Document, el *dom.Node) *protocol.Range {
	return ptr(doc.Range(el.ContentStart(), el.ContentEnd()))
}

func named(req Request, el *dom.Node, list []coordinate.Named) *protocol.Hover {
	desc, ok := coordinate.Lookup(list, strings.TrimSpace(el.TextContent()))
	if !ok {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.PlainText, Value: desc},
		Range:    contentRange(req.Doc, el),
	}
}

func (p *Provider) artifact(ctx context.Context, req Request, el *dom.Node) *protocol.Hover {
	c := dom.Coordinate(el.ParentElement())
	if c.ArtifactID == "" {
		return nil
	}
	if req.Model != nil {
		if c.Version == "" {
			c.Version, _ = req.Model.ManagedVersion(c.GroupArtifact)
		}
		c.Version, _ = req.Model.Interpolate(c.Version)
		c.GroupID, _ = req.Model.Interpolate(c.GroupID)
	}

	info, found := p.describe(ctx, req.Model, c)
	if c.Version == "" {
		c.Version = info.Version
	}

	var b strings.Builder
	b.WriteString("**")
	b.WriteString(c.GroupArtifact.String())
	if c.Version != "" {
		b.WriteString(":" + c.Version)
	}
	b.WriteString("**")
	if found && info.Packaging != "" {
		b.WriteString("\n\nPackaging: " + info.Packaging)
	}
	if found && info.Description != "" {
		b.WriteString("\n\n" + info.Description)
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.Markdown, Value: b.String()},
		Range:    contentRange(req.Doc, el),
	}
}

// describe looks the artifact up in its local POM first, then in the remote
// snapshots of the project's sources.
func (p *Provider) describe(ctx context.Context, model *project.Model, c coordinate.Coordinate) (coordinate.ArtifactInfo, bool) {
	if p.local != nil && p.projects != nil && c.GroupID != "" && c.Version != "" && !strings.Contains(c.Version, "${") {
		path := p.local.POMPath(c)
		if _, err := os.Stat(path); err == nil {
			m, err := p.projects.SnapshotProject(ctx, path)
			if err == nil {
				desc := m.Description
				if desc == "" {
					desc = m.Name
				}
				return coordinate.ArtifactInfo{GroupArtifact: c.GroupArtifact, Version: c.Version, Packaging: m.Packaging, Description: desc}, true
			}
			p.logger.Debug("local pom unreadable", "path", path, "error", err)
		}
	}
	if p.catalog == nil || c.GroupID == "" {
		return coordinate.ArtifactInfo{}, false
	}
	sources := []string{p.defaultSource}
	if model != nil {
		if urls := model.RepositoryURLs(); len(urls) > 0 {
			sources = urls
		}
	}
	for _, source := range sources {
		if info, ok := p.catalog.Artifact(source, c.GroupArtifact); ok {
			return info, true
		}
	}
	return coordinate.ArtifactInfo{}, false
}

// property describes the ${name} reference around the cursor.
func property(req Request, text *dom.Node) *protocol.Hover {
	if req.Model == nil {
		return nil
	}
	s := req.Doc.Text
	start := -1
	for i := req.Offset - 1; i >= text.Start && i >= 0; i-- {
		if s[i] == '}' && i < req.Offset-1 {
			return nil
		}
		if s[i] == '$' && i+1 < len(s) && s[i+1] == '{' {
			start = i
			break
		}
	}
	if start < 0 {
		return nil
	}
	end := strings.IndexByte(s[start:text.End], '}')
	if end < 0 || start+end < req.Offset-1 {
		return nil
	}
	end += start
	name := s[start+2 : end]
	value, missing := req.Model.Interpolate("${" + name + "}")
	if missing != "" {
		return nil
	}
	return &protocol.Hover{
		Contents: protocol.MarkupContent{Kind: protocol.PlainText, Value: name + " = " + value},
		Range:    ptr(req.Doc.Range(start, end+1)),
	}
}

func ptr(r protocol.Range) *protocol.Range {
	return &r
}
