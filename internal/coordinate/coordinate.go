// Package coordinate holds the artifact coordinate value types shared by the
// indexes, the project model and the editing participants.
package coordinate

import (
	"fmt"
	"strings"
)

const (
	MissingGroupID    = "MissingGroupID"
	MissingArtifactID = "MissingArtifactID"
	DefaultVersion    = "1.0.0"
	DefaultScope      = "compile"
	DefaultType       = "jar"

	PluginPackaging = "maven-plugin"
)

// GroupArtifact identifies an artifact independent of its version.
type GroupArtifact struct {
	GroupID    string `json:"groupId"`
	ArtifactID string `json:"artifactId"`
}

func (ga GroupArtifact) String() string {
	return ga.GroupID + ":" + ga.ArtifactID
}

// Compare orders by groupId, then artifactId.
func (ga GroupArtifact) Compare(other GroupArtifact) int {
	if c := strings.Compare(ga.GroupID, other.GroupID); c != 0 {
		return c
	}
	return strings.Compare(ga.ArtifactID, other.ArtifactID)
}

// ParseGroupArtifact accepts "group:artifact".
func ParseGroupArtifact(s string) (GroupArtifact, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return GroupArtifact{}, fmt.Errorf("invalid group:artifact %q", s)
	}
	return GroupArtifact{GroupID: parts[0], ArtifactID: parts[1]}, nil
}

// Coordinate is a declaration as found in a document. Absent fields are
// empty; WithDefaults fills them in.
type Coordinate struct {
	GroupArtifact
	Version     string `json:"version,omitempty"`
	Scope       string `json:"scope,omitempty"`
	Type        string `json:"type,omitempty"`
	Classifier  string `json:"classifier,omitempty"`
	Description string `json:"description,omitempty"`
}

// WithDefaults substitutes sentinel values for missing fields so that a
// partially written declaration can still be looked up.
func (c Coordinate) WithDefaults() Coordinate {
	if c.GroupID == "" {
		c.GroupID = MissingGroupID
	}
	if c.ArtifactID == "" {
		c.ArtifactID = MissingArtifactID
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	if c.Scope == "" {
		c.Scope = DefaultScope
	}
	if c.Type == "" {
		c.Type = DefaultType
	}
	return c
}

// Complete reports whether the declaration names groupId, artifactId and
// version explicitly.
func (c Coordinate) Complete() bool {
	return c.GroupID != "" && c.ArtifactID != "" && c.Version != ""
}

func (c Coordinate) String() string {
	var b strings.Builder
	b.WriteString(c.GroupID)
	b.WriteByte(':')
	b.WriteString(c.ArtifactID)
	b.WriteByte(':')
	b.WriteString(c.Version)
	if c.Scope != "" {
		b.WriteByte(':')
		b.WriteString(c.Scope)
	}
	if c.Type != "" {
		b.WriteByte(':')
		b.WriteString(c.Type)
	}
	if c.Classifier != "" {
		b.WriteByte(':')
		b.WriteString(c.Classifier)
	}
	return b.String()
}

// ArtifactInfo is a hit returned by an artifact index.
type ArtifactInfo struct {
	GroupArtifact
	Version     string `json:"version"`
	Packaging   string `json:"packaging,omitempty"`
	Description string `json:"description,omitempty"`
}

func (a ArtifactInfo) IsPlugin() bool {
	return IsPlugin(a.GroupArtifact, a.Packaging)
}

// IsPlugin classifies a build plugin by packaging when known, otherwise by
// the well-known plugin groups and naming conventions.
func IsPlugin(ga GroupArtifact, packaging string) bool {
	if packaging != "" {
		return packaging == PluginPackaging
	}
	switch ga.GroupID {
	case "org.apache.maven.plugins", "org.codehaus.mojo":
		return true
	}
	a := ga.ArtifactID
	if strings.HasSuffix(a, "-maven-plugin") {
		return true
	}
	return strings.HasPrefix(a, "maven-") && strings.HasSuffix(a, "-plugin")
}
