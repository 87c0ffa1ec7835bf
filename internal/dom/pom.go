package dom

import (
	"strings"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
)

// Coordinate reads the groupId/artifactId/version/scope/type/classifier
// children of a declaration element such as <dependency>. Missing fields
// stay empty.
func Coordinate(decl *Node) coordinate.Coordinate {
	var c coordinate.Coordinate
	if decl == nil {
		return c
	}
	for _, child := range decl.ChildElements() {
		value := strings.TrimSpace(child.TextContent())
		if value == "" {
			continue
		}
		switch child.Name {
		case "groupId":
			c.GroupID = value
		case "artifactId":
			c.ArtifactID = value
		case "version":
			c.Version = value
		case "scope":
			c.Scope = value
		case "type":
			c.Type = value
		case "classifier":
			c.Classifier = value
		}
	}
	return c
}

// SiblingCoordinate reads the declaration that el is part of, for example
// the <dependency> around an <artifactId>.
func SiblingCoordinate(el *Node) coordinate.Coordinate {
	return Coordinate(el.ParentElement())
}

// IsDeclaration reports whether an element declares an artifact.
func IsDeclaration(el *Node) bool {
	if el == nil {
		return false
	}
	switch el.Name {
	case "dependency", "plugin", "parent", "extension":
		return true
	}
	return false
}
