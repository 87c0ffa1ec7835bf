// Package diagnostics turns model build problems and structural checks of a
// POM document into editor diagnostics.
package diagnostics

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/project"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

const source = "pomassist"

// LocalVersions lists the versions of an artifact in the local store.
type LocalVersions interface {
	Versions(ga coordinate.GroupArtifact) ([]coordinate.Version, error)
}

// Catalog lists the versions the remote snapshots know of.
type Catalog interface {
	KnownVersions(source string, ga coordinate.GroupArtifact) []string
}

type Projects interface {
	SnapshotProject(ctx context.Context, path string) (*project.Model, error)
}

// Request carries the document, its path on disk, the last good model and
// the problems of the latest build attempt.
type Request struct {
	Doc      *dom.Document
	Path     string
	Model    *project.Model
	Problems []project.Problem
}

type Validator struct {
	local         LocalVersions
	catalog       Catalog
	projects      Projects
	defaultSource string
	metrics       *metrics.Metrics
	logger        *slog.Logger
}

func NewValidator(local LocalVersions, catalog Catalog, projects Projects, defaultSource string, m *metrics.Metrics) *Validator {
	if defaultSource == "" {
		defaultSource = config.CentralURL
	}
	return &Validator{
		local:         local,
		catalog:       catalog,
		projects:      projects,
		defaultSource: defaultSource,
		metrics:       m,
		logger:        logger.WithComponent("diagnostics"),
	}
}

// Diagnose reports the build problems first, then the structural checks in
// document order.
func (v *Validator) Diagnose(ctx context.Context, req Request) []protocol.Diagnostic {
	out := make([]protocol.Diagnostic, 0, len(req.Problems))
	for _, p := range req.Problems {
		out = append(out, FromProblem(p))
		v.count("model", protocolSeverity(p.Severity))
	}
	root := req.Doc.DocumentElement()
	if root == nil {
		return out
	}
	root.Walk(func(n *dom.Node) {
		if !n.IsElement() {
			return
		}
		var d *protocol.Diagnostic
		check := n.Name
		switch n.Name {
		case "module":
			d = v.module(req, n)
		case "version":
			if dom.IsDeclaration(n.ParentElement()) {
				d = v.version(req, n)
			}
		case "parent":
			d = v.parent(ctx, req, n)
		}
		if d != nil {
			out = append(out, *d)
			v.count(check, d.Severity)
		}
	})
	return out
}

func (v *Validator) count(check string, severity protocol.DiagnosticSeverity) {
	if v.metrics != nil {
		v.metrics.DiagnosticsTotal.WithLabelValues(check, severityLabel(severity)).Inc()
	}
}

func severityLabel(s protocol.DiagnosticSeverity) string {
	switch s {
	case protocol.DiagnosticSeverityError:
		return "error"
	case protocol.DiagnosticSeverityWarning:
		return "warning"
	case protocol.DiagnosticSeverityInformation:
		return "information"
	default:
		return "hint"
	}
}

// FromProblem places a build problem on the character at its 1-based
// location. Problems without a location land at the document start.
func FromProblem(p project.Problem) protocol.Diagnostic {
	line := uint32(max(p.Line-1, 0))
	col := uint32(max(p.Column-1, 0))
	return protocol.Diagnostic{
		Range: protocol.Range{
			Start: protocol.Position{Line: line, Character: col},
			End:   protocol.Position{Line: line, Character: col + 1},
		},
		Severity: protocolSeverity(p.Severity),
		Source:   source,
		Message:  p.Message,
	}
}

func protocolSeverity(s project.Severity) protocol.DiagnosticSeverity {
	switch s {
	case project.SeverityFatal, project.SeverityError:
		return protocol.DiagnosticSeverityError
	case project.SeverityWarning:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityInformation
	}
}

func diagnostic(doc *dom.Document, el *dom.Node, severity protocol.DiagnosticSeverity, format string, args ...any) *protocol.Diagnostic {
	start, end := el.ContentStart(), el.ContentEnd()
	if start == end {
		start, end = el.Start, el.End
	}
	return &protocol.Diagnostic{
		Range:    doc.Range(start, end),
		Severity: severity,
		Source:   source,
		Message:  fmt.Sprintf(format, args...),
	}
}

// module checks that a <module> entry points at a directory holding a POM,
// or at a POM file.
func (v *Validator) module(req Request, el *dom.Node) *protocol.Diagnostic {
	name := strings.TrimSpace(el.TextContent())
	if name == "" || req.Path == "" {
		return nil
	}
	target := filepath.Join(filepath.Dir(req.Path), filepath.FromSlash(name))
	info, err := os.Stat(target)
	if err == nil && info.IsDir() {
		_, err = os.Stat(filepath.Join(target, "pom.xml"))
	}
	if err != nil {
		return diagnostic(req.Doc, el, protocol.DiagnosticSeverityError, "Module '%s' does not exist", name)
	}
	return nil
}

// version reports a version whose property references cannot be resolved,
// and a version no index knows while other versions of the artifact are
// known.
func (v *Validator) version(req Request, el *dom.Node) *protocol.Diagnostic {
	raw := strings.TrimSpace(el.TextContent())
	if raw == "" {
		return nil
	}
	c := dom.Coordinate(el.ParentElement())
	resolved := raw
	if strings.Contains(raw, "${") {
		if req.Model == nil {
			return nil
		}
		var missing string
		resolved, missing = req.Model.Interpolate(raw)
		if missing != "" {
			return diagnostic(req.Doc, el, protocol.DiagnosticSeverityError, "Cannot resolve property '${%s}'", missing)
		}
		c.GroupID, _ = req.Model.Interpolate(c.GroupID)
	}
	if c.GroupID == "" || c.ArtifactID == "" || isRange(resolved) {
		return nil
	}
	known := v.knownVersions(req.Model, c.GroupArtifact)
	if len(known) == 0 || known[resolved] {
		return nil
	}
	return diagnostic(req.Doc, el, protocol.DiagnosticSeverityWarning,
		"Version '%s' of %s is not known to the local repository or the remote indexes", resolved, c.GroupArtifact)
}

func isRange(v string) bool {
	return strings.HasPrefix(v, "[") || strings.HasPrefix(v, "(")
}

func (v *Validator) knownVersions(model *project.Model, ga coordinate.GroupArtifact) map[string]bool {
	known := make(map[string]bool)
	if v.local != nil {
		versions, err := v.local.Versions(ga)
		if err != nil {
			v.logger.Warn("local version lookup failed", "artifact", ga.String(), "error", err)
		}
		for _, ver := range versions {
			known[ver.String()] = true
		}
	}
	if v.catalog != nil {
		sources := []string{v.defaultSource}
		if model != nil {
			if urls := model.RepositoryURLs(); len(urls) > 0 {
				sources = urls
			}
		}
		for _, s := range sources {
			for _, ver := range v.catalog.KnownVersions(s, ga) {
				known[ver] = true
			}
		}
	}
	return known
}

// parent warns when an explicit relativePath points at a POM that is not
// the declared parent.
func (v *Validator) parent(ctx context.Context, req Request, el *dom.Node) *protocol.Diagnostic {
	if v.projects == nil || req.Path == "" || el.ParentElement() == nil || el.ParentElement().Name != "project" {
		return nil
	}
	relEl := el.Child("relativePath")
	rel, ok := el.ChildText("relativePath")
	if !ok {
		return nil
	}
	declared := dom.Coordinate(el)
	if declared.GroupID == "" || declared.ArtifactID == "" {
		return nil
	}
	target := filepath.Join(filepath.Dir(req.Path), filepath.FromSlash(rel))
	info, err := os.Stat(target)
	if err != nil {
		return nil
	}
	if info.IsDir() {
		target = filepath.Join(target, "pom.xml")
	}
	m, err := v.projects.SnapshotProject(ctx, target)
	if err != nil {
		v.logger.Debug("relative parent unreadable", "path", target, "error", err)
		return nil
	}
	if m.Coordinate.GroupArtifact == declared.GroupArtifact {
		return nil
	}
	return diagnostic(req.Doc, relEl, protocol.DiagnosticSeverityWarning,
		"relativePath points at %s instead of %s", m.Coordinate.GroupArtifact, declared.GroupArtifact)
}
