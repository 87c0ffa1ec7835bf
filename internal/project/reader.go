package project

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
)

// element is a strict XML element with the position just after its start
// tag, which is where located problems point.
type element struct {
	name     string
	text     strings.Builder
	children []*element
	line     int
	col      int
}

func (e *element) child(name string) *element {
	for _, c := range e.children {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (e *element) all(name string) []*element {
	var out []*element
	for _, c := range e.children {
		if c.name == name {
			out = append(out, c)
		}
	}
	return out
}

func (e *element) value() string {
	return strings.TrimSpace(e.text.String())
}

func (e *element) childValue(name string) (string, bool) {
	c := e.child(name)
	if c == nil {
		return "", false
	}
	return c.value(), true
}

// path walks nested single children: path("build", "plugins").
func (e *element) path(names ...string) *element {
	cur := e
	for _, n := range names {
		if cur == nil {
			return nil
		}
		cur = cur.child(n)
	}
	return cur
}

type rawParent struct {
	coordinate.Coordinate
	relativePath    string
	hasRelativePath bool
	el              *element
}

type rawDependency struct {
	coordinate.Coordinate
	optional bool
	el       *element
}

type property struct {
	key, value string
}

// rawModel is a POM as written, before inheritance and interpolation.
type rawModel struct {
	path string
	root *element

	modelVersion string
	groupID      string
	artifactID   string
	version      string
	packaging    string
	name         string
	description  string

	parent       *rawParent
	modules      []string
	properties   []property
	repositories []Repository
	dependencies []rawDependency
	managed      []rawDependency
	plugins      []coordinate.Coordinate

	buildDirectory  string
	outputDirectory string
}

// syntaxError carries the position of a malformed document.
type syntaxError struct {
	msg       string
	line, col int
}

func (e *syntaxError) Error() string {
	return fmt.Sprintf("%s (line %d, column %d)", e.msg, e.line, e.col)
}

func readModelFile(path string) (*rawModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	root, err := parseElements(data)
	if err != nil {
		return nil, err
	}
	if root.name != "project" {
		return nil, &syntaxError{msg: fmt.Sprintf("Unrecognised tag: '%s'", root.name), line: root.line, col: root.col}
	}
	raw := extract(root)
	raw.path = path
	return raw, nil
}

func parseElements(data []byte) (*element, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = true
	// declared encodings other than UTF-8 are read as-is
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) { return input, nil }
	var stack []*element
	var root *element
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			line, col := dec.InputPos()
			var se *xml.SyntaxError
			if errors.As(err, &se) {
				return nil, &syntaxError{msg: se.Msg, line: se.Line, col: col}
			}
			return nil, &syntaxError{msg: err.Error(), line: line, col: col}
		}
		switch t := tok.(type) {
		case xml.StartElement:
			line, col := dec.InputPos()
			el := &element{name: t.Name.Local, line: line, col: col}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, el)
			} else if root == nil {
				root = el
			}
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, &syntaxError{msg: "document has no root element", line: 1, col: 1}
	}
	return root, nil
}

func coordinateOf(e *element) coordinate.Coordinate {
	var c coordinate.Coordinate
	c.GroupID, _ = e.childValue("groupId")
	c.ArtifactID, _ = e.childValue("artifactId")
	c.Version, _ = e.childValue("version")
	c.Scope, _ = e.childValue("scope")
	c.Type, _ = e.childValue("type")
	c.Classifier, _ = e.childValue("classifier")
	return c
}

func dependenciesOf(e *element) []rawDependency {
	if e == nil {
		return nil
	}
	var out []rawDependency
	for _, d := range e.all("dependency") {
		optional, _ := d.childValue("optional")
		out = append(out, rawDependency{
			Coordinate: coordinateOf(d),
			optional:   optional == "true",
			el:         d,
		})
	}
	return out
}

func pluginsOf(e *element) []coordinate.Coordinate {
	if e == nil {
		return nil
	}
	var out []coordinate.Coordinate
	for _, p := range e.all("plugin") {
		c := coordinateOf(p)
		if c.GroupID == "" {
			c.GroupID = "org.apache.maven.plugins"
		}
		out = append(out, c)
	}
	return out
}

func repositoriesOf(e *element, container, item string) []Repository {
	var out []Repository
	if list := e.child(container); list != nil {
		for _, r := range list.all(item) {
			id, _ := r.childValue("id")
			url, _ := r.childValue("url")
			if url != "" {
				out = append(out, Repository{ID: id, URL: url})
			}
		}
	}
	return out
}

func extract(root *element) *rawModel {
	raw := &rawModel{root: root}
	raw.modelVersion, _ = root.childValue("modelVersion")
	raw.groupID, _ = root.childValue("groupId")
	raw.artifactID, _ = root.childValue("artifactId")
	raw.version, _ = root.childValue("version")
	raw.packaging, _ = root.childValue("packaging")
	raw.name, _ = root.childValue("name")
	raw.description, _ = root.childValue("description")

	if p := root.child("parent"); p != nil {
		parent := &rawParent{Coordinate: coordinateOf(p), el: p}
		if rp := p.child("relativePath"); rp != nil {
			parent.relativePath = rp.value()
			parent.hasRelativePath = true
		}
		raw.parent = parent
	}
	if modules := root.child("modules"); modules != nil {
		for _, m := range modules.all("module") {
			if v := m.value(); v != "" {
				raw.modules = append(raw.modules, v)
			}
		}
	}
	if props := root.child("properties"); props != nil {
		for _, p := range props.children {
			raw.properties = append(raw.properties, property{key: p.name, value: p.value()})
		}
	}
	raw.repositories = append(repositoriesOf(root, "repositories", "repository"),
		repositoriesOf(root, "pluginRepositories", "pluginRepository")...)
	raw.dependencies = dependenciesOf(root.child("dependencies"))
	raw.managed = dependenciesOf(root.path("dependencyManagement", "dependencies"))
	if build := root.child("build"); build != nil {
		raw.buildDirectory, _ = build.childValue("directory")
		raw.outputDirectory, _ = build.childValue("outputDirectory")
		raw.plugins = append(pluginsOf(build.child("plugins")), pluginsOf(build.path("pluginManagement", "plugins"))...)
	}
	return raw
}
