// Package project builds the semantic model of a POM (inheritance from the
// parent chain, property interpolation, validation) and caches the latest
// model per open document.
package project

import (
	"fmt"
	"path/filepath"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
)

type Severity int

const (
	SeverityFatal Severity = iota
	SeverityError
	SeverityWarning
	SeverityInfo
)

func (s Severity) String() string {
	switch s {
	case SeverityFatal:
		return "FATAL"
	case SeverityError:
		return "ERROR"
	case SeverityWarning:
		return "WARNING"
	default:
		return "INFO"
	}
}

// Problem is a located build problem. Line and Column are 1-based; zero
// means the location is unknown.
type Problem struct {
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
	Line     int      `json:"line"`
	Column   int      `json:"column"`
	Source   string   `json:"source,omitempty"`
}

func (p Problem) String() string {
	return fmt.Sprintf("[%s] %s @ line %d, column %d", p.Severity, p.Message, p.Line, p.Column)
}

func (p Problem) blocking() bool {
	return p.Severity == SeverityFatal || p.Severity == SeverityError
}

type Repository struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Central is appended to every model's repository list.
var Central = Repository{ID: "central", URL: config.CentralURL}

type Dependency struct {
	coordinate.Coordinate
	Optional bool `json:"optional,omitempty"`
	Line     int  `json:"line"`
}

type Model struct {
	Path        string                 `json:"path"`
	Basedir     string                 `json:"basedir"`
	Coordinate  coordinate.Coordinate  `json:"coordinate"`
	Packaging   string                 `json:"packaging"`
	Name        string                 `json:"name,omitempty"`
	Description string                 `json:"description,omitempty"`
	Parent      *coordinate.Coordinate `json:"parent,omitempty"`
	// ParentPath is the POM file the parent was loaded from.
	ParentPath           string                  `json:"parentPath,omitempty"`
	Modules              []string                `json:"modules,omitempty"`
	Properties           map[string]string       `json:"properties"`
	Repositories         []Repository            `json:"repositories"`
	Dependencies         []Dependency            `json:"dependencies,omitempty"`
	DependencyManagement []coordinate.Coordinate `json:"dependencyManagement,omitempty"`
	Plugins              []coordinate.Coordinate `json:"plugins,omitempty"`
	BuildDirectory       string                  `json:"buildDirectory"`
	OutputDirectory      string                  `json:"outputDirectory"`
}

// RepositoryURLs returns the remote sources to query for this project in
// declaration order.
func (m *Model) RepositoryURLs() []string {
	urls := make([]string, 0, len(m.Repositories))
	for _, r := range m.Repositories {
		urls = append(urls, r.URL)
	}
	return urls
}

// Property resolves a property reference the way the build would: model
// properties first, then the computed project values.
func (m *Model) Property(name string) (string, bool) {
	if v, ok := m.Properties[name]; ok {
		return v, true
	}
	return m.builtin(name)
}

func (m *Model) builtin(name string) (string, bool) {
	switch name {
	case "basedir", "project.basedir", "pom.basedir":
		return m.Basedir, m.Basedir != ""
	case "project.groupId", "pom.groupId":
		return m.Coordinate.GroupID, m.Coordinate.GroupID != ""
	case "project.artifactId", "pom.artifactId":
		return m.Coordinate.ArtifactID, m.Coordinate.ArtifactID != ""
	case "project.version", "pom.version", "version":
		return m.Coordinate.Version, m.Coordinate.Version != ""
	case "project.name", "pom.name":
		return m.Name, m.Name != ""
	case "project.description":
		return m.Description, m.Description != ""
	case "project.packaging":
		return m.Packaging, m.Packaging != ""
	case "project.build.directory":
		return m.BuildDirectory, m.BuildDirectory != ""
	case "project.build.outputDirectory":
		return m.OutputDirectory, m.OutputDirectory != ""
	case "project.parent.groupId":
		if m.Parent != nil {
			return m.Parent.GroupID, true
		}
	case "project.parent.artifactId":
		if m.Parent != nil {
			return m.Parent.ArtifactID, true
		}
	case "project.parent.version":
		if m.Parent != nil {
			return m.Parent.Version, true
		}
	}
	return "", false
}

// ManagedVersion returns the dependencyManagement version for ga.
func (m *Model) ManagedVersion(ga coordinate.GroupArtifact) (string, bool) {
	for _, c := range m.DependencyManagement {
		if c.GroupArtifact == ga && c.Version != "" {
			return c.Version, true
		}
	}
	return "", false
}

// ModuleDir returns the directory a <module> entry points at.
func (m *Model) ModuleDir(module string) string {
	return filepath.Join(m.Basedir, filepath.FromSlash(module))
}
