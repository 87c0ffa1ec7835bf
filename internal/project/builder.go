package project

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/logger"
)

const maxParentDepth = 16

const (
	defaultRelativePath    = "../pom.xml"
	defaultBuildDirectory  = "${project.basedir}/target"
	defaultOutputDirectory = "${project.build.directory}/classes"
)

var (
	dependencyScopes = []string{"provided", "compile", "runtime", "test", "system"}
	managedScopes    = append(append([]string(nil), dependencyScopes...), "import")
)

// ParentLocator finds the POM of a coordinate in the local artifact store.
type ParentLocator interface {
	POMPath(c coordinate.Coordinate) string
}

// Request names the file to build. Basedir defaults to the file's
// directory; it differs when building a working copy placed elsewhere.
type Request struct {
	Path    string
	Basedir string
}

// ModelBuilder turns a POM file into a Model.
type ModelBuilder interface {
	Build(ctx context.Context, req Request) (*Model, []Problem, error)
}

type Builder struct {
	locator ParentLocator
	logger  *slog.Logger
}

// NewBuilder returns a builder resolving parents through locator, which may
// be nil when only relativePath resolution is wanted.
func NewBuilder(locator ParentLocator) *Builder {
	return &Builder{
		locator: locator,
		logger:  logger.WithComponent("model-builder"),
	}
}

// lineage is a POM together with the directory its relative references
// resolve against.
type lineage struct {
	raw     *rawModel
	basedir string
}

// Build reads, inherits, interpolates and validates the POM at req.Path.
// The returned problems describe the attempt whether or not it succeeded.
// A blocking problem yields an error wrapping ErrDocumentBuild alongside the
// problems; a failure to read the file itself is returned unwrapped.
func (b *Builder) Build(ctx context.Context, req Request) (*Model, []Problem, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	basedir := req.Basedir
	if basedir == "" {
		basedir = filepath.Dir(req.Path)
	}
	raw, err := readModelFile(req.Path)
	if err != nil {
		var se *syntaxError
		if errors.As(err, &se) {
			problems := []Problem{{Severity: SeverityFatal, Message: "Non-parseable POM " + req.Path + ": " + se.msg, Line: se.line, Column: se.col}}
			return nil, problems, apperrors.Newf(apperrors.ErrDocumentBuild, "%s: %s", req.Path, se.Error())
		}
		return nil, nil, fmt.Errorf("reading %s: %w", req.Path, err)
	}

	var problems []Problem
	chain := []lineage{{raw: raw, basedir: basedir}}
	var parentPath string
	if raw.parent != nil {
		ancestors, path, problem := b.resolveParents(raw, basedir)
		if problem != nil {
			problems = append(problems, *problem)
		}
		chain = append(chain, ancestors...)
		parentPath = path
	}

	model, r := assemble(chain, basedir)
	model.Path = req.Path
	model.ParentPath = parentPath
	problems = append(problems, validate(raw, model, r)...)

	for _, p := range problems {
		if p.blocking() {
			b.logger.Debug("model build failed", "path", req.Path, "problems", len(problems))
			return nil, problems, apperrors.Newf(apperrors.ErrDocumentBuild, "%s: %s", req.Path, p.Message)
		}
	}
	return model, problems, nil
}

func at(el *element, severity Severity, format string, args ...any) Problem {
	p := Problem{Severity: severity, Message: fmt.Sprintf(format, args...)}
	if el != nil {
		p.Line, p.Column = el.line, el.col
	}
	return p
}

// resolveParents loads the parent chain of raw. A failure anywhere in the
// chain is reported on raw's <parent> element; ancestors resolved so far are
// still returned.
func (b *Builder) resolveParents(raw *rawModel, basedir string) ([]lineage, string, *Problem) {
	var chain []lineage
	seen := map[string]bool{}
	if abs, err := filepath.Abs(raw.path); err == nil {
		seen[abs] = true
	}
	firstPath := ""
	current, currentDir := raw, basedir
	for depth := 0; current.parent != nil; depth++ {
		p := current.parent
		if depth >= maxParentDepth {
			problem := at(raw.parent.el, SeverityError, "The parent chain of %s is deeper than %d levels", raw.path, maxParentDepth)
			return chain, firstPath, &problem
		}
		for _, field := range []struct{ name, value string }{
			{"groupId", p.GroupID}, {"artifactId", p.ArtifactID}, {"version", p.Version},
		} {
			if field.value == "" {
				problem := at(p.el, SeverityError, "'parent.%s' is missing.", field.name)
				if current != raw {
					problem = at(raw.parent.el, SeverityError, "'parent.%s' is missing in %s.", field.name, current.path)
				}
				return chain, firstPath, &problem
			}
		}

		parent, path, err := b.locateParent(p, currentDir)
		if err != nil {
			problem := at(raw.parent.el, SeverityError, "%s", err.Error())
			return chain, firstPath, &problem
		}
		abs, _ := filepath.Abs(path)
		if seen[abs] {
			problem := at(raw.parent.el, SeverityError, "The parents form a cycle: %s", abs)
			return chain, firstPath, &problem
		}
		seen[abs] = true
		if firstPath == "" {
			firstPath = path
		}
		parentDir := filepath.Dir(path)
		chain = append(chain, lineage{raw: parent, basedir: parentDir})
		current, currentDir = parent, parentDir
	}
	return chain, firstPath, nil
}

// relativeParentPath returns the file a <relativePath> points at, or "" when
// relative lookup is disabled.
func relativeParentPath(p *rawParent, basedir string) string {
	rel := defaultRelativePath
	if p.hasRelativePath {
		rel = p.relativePath
	}
	if rel == "" {
		return ""
	}
	path := filepath.Join(basedir, filepath.FromSlash(rel))
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, "pom.xml")
	}
	return path
}

func effectiveGroupVersion(raw *rawModel) (string, string) {
	g, v := raw.groupID, raw.version
	if raw.parent != nil {
		if g == "" {
			g = raw.parent.GroupID
		}
		if v == "" {
			v = raw.parent.Version
		}
	}
	return g, v
}

func (b *Builder) locateParent(p *rawParent, basedir string) (*rawModel, string, error) {
	if path := relativeParentPath(p, basedir); path != "" {
		parent, err := readModelFile(path)
		switch {
		case err == nil:
			g, v := effectiveGroupVersion(parent)
			if g == p.GroupID && parent.artifactID == p.ArtifactID && (v == p.Version || strings.Contains(p.Version, "${")) {
				return parent, path, nil
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			var se *syntaxError
			if errors.As(err, &se) {
				return nil, "", fmt.Errorf("Non-parseable POM %s: %s", path, se.Error())
			}
			b.logger.Debug("parent relativePath unreadable", "path", path, "error", err)
		}
	}
	if b.locator != nil {
		path := b.locator.POMPath(p.Coordinate)
		parent, err := readModelFile(path)
		if err == nil {
			return parent, path, nil
		}
		var se *syntaxError
		if errors.As(err, &se) {
			return nil, "", fmt.Errorf("Non-parseable POM %s: %s", path, se.Error())
		}
	}
	return nil, "", fmt.Errorf("Non-resolvable parent POM for %s:%s:%s: not found in the local repository and 'parent.relativePath' points at no local POM",
		p.GroupID, p.ArtifactID, p.Version)
}

// assemble merges the chain (child first) into an interpolated model. The
// returned resolver expands references against that model.
func assemble(chain []lineage, basedir string) (*Model, *resolver) {
	child := chain[0].raw
	groupID, version := effectiveGroupVersion(child)

	props := map[string]string{}
	managed := map[coordinate.GroupArtifact]int{}
	var managedList []coordinate.Coordinate
	for i := len(chain) - 1; i >= 0; i-- {
		for _, p := range chain[i].raw.properties {
			props[p.key] = p.value
		}
		for _, d := range chain[i].raw.managed {
			if idx, ok := managed[d.GroupArtifact]; ok {
				managedList[idx] = d.Coordinate
				continue
			}
			managed[d.GroupArtifact] = len(managedList)
			managedList = append(managedList, d.Coordinate)
		}
	}

	buildDir, outputDir := defaultBuildDirectory, defaultOutputDirectory
	for i := len(chain) - 1; i >= 0; i-- {
		if d := chain[i].raw.buildDirectory; d != "" {
			buildDir = d
		}
		if d := chain[i].raw.outputDirectory; d != "" {
			outputDir = d
		}
	}

	packaging := child.packaging
	if packaging == "" {
		packaging = coordinate.DefaultType
	}
	var parent *coordinate.Coordinate
	if child.parent != nil {
		pc := child.parent.Coordinate
		parent = &pc
	}

	projectValues := map[string]string{
		"project.groupId":               groupID,
		"project.artifactId":            child.artifactID,
		"project.version":               version,
		"project.packaging":             packaging,
		"project.name":                  child.name,
		"project.description":           child.description,
		"project.basedir":               basedir,
		"project.build.directory":       buildDir,
		"project.build.outputDirectory": outputDir,
	}
	if parent != nil {
		projectValues["project.parent.groupId"] = parent.GroupID
		projectValues["project.parent.artifactId"] = parent.ArtifactID
		projectValues["project.parent.version"] = parent.Version
	}
	r := newResolver(func(expr string) (string, bool) {
		if v, ok := props[expr]; ok {
			return v, true
		}
		switch expr {
		case "basedir":
			expr = "project.basedir"
		case "version":
			expr = "project.version"
		}
		if name, ok := strings.CutPrefix(expr, "pom."); ok {
			expr = "project." + name
		}
		v, ok := projectValues[expr]
		return v, ok && v != ""
	})

	model := &Model{
		Basedir: basedir,
		Coordinate: coordinate.Coordinate{
			GroupArtifact: coordinate.GroupArtifact{GroupID: r.resolve(groupID), ArtifactID: r.resolve(child.artifactID)},
			Version:       r.resolve(version),
		},
		Packaging:       packaging,
		Name:            r.resolve(child.name),
		Description:     r.resolve(child.description),
		Parent:          parent,
		Modules:         child.modules,
		Properties:      make(map[string]string, len(props)),
		BuildDirectory:  filepath.FromSlash(r.resolve(buildDir)),
		OutputDirectory: filepath.FromSlash(r.resolve(outputDir)),
	}
	for k := range props {
		model.Properties[k] = r.resolve("${" + k + "}")
	}
	interpolate := func(c coordinate.Coordinate) coordinate.Coordinate {
		c.GroupID = r.resolve(c.GroupID)
		c.ArtifactID = r.resolve(c.ArtifactID)
		c.Version = r.resolve(c.Version)
		c.Scope = r.resolve(c.Scope)
		return c
	}
	for _, c := range managedList {
		model.DependencyManagement = append(model.DependencyManagement, interpolate(c))
	}

	declared := map[coordinate.GroupArtifact]bool{}
	for i, link := range chain {
		for _, d := range link.raw.dependencies {
			c := interpolate(d.Coordinate)
			if i > 0 && declared[c.GroupArtifact] {
				continue
			}
			declared[c.GroupArtifact] = true
			dep := Dependency{Coordinate: c, Optional: d.optional}
			if i == 0 && d.el != nil {
				dep.Line = d.el.line
			}
			model.Dependencies = append(model.Dependencies, dep)
		}
	}
	for _, p := range child.plugins {
		model.Plugins = append(model.Plugins, interpolate(p))
	}

	seenID := map[string]bool{}
	seenURL := map[string]bool{}
	addRepo := func(repo Repository) {
		repo.URL = r.resolve(repo.URL)
		key := strings.TrimSuffix(repo.URL, "/")
		if (repo.ID != "" && seenID[repo.ID]) || seenURL[key] {
			return
		}
		if repo.ID != "" {
			seenID[repo.ID] = true
		}
		seenURL[key] = true
		model.Repositories = append(model.Repositories, repo)
	}
	for _, link := range chain {
		for _, repo := range link.raw.repositories {
			addRepo(repo)
		}
	}
	addRepo(Central)
	return model, r
}

func validate(raw *rawModel, model *Model, r *resolver) []Problem {
	var problems []Problem
	root := raw.root
	switch {
	case raw.modelVersion == "":
		problems = append(problems, at(root, SeverityError, "'modelVersion' is missing."))
	case raw.modelVersion != "4.0.0":
		problems = append(problems, at(root.child("modelVersion"), SeverityError, "'modelVersion' must be one of [4.0.0] but is '%s'.", raw.modelVersion))
	}
	if model.Coordinate.GroupID == "" {
		problems = append(problems, at(root, SeverityError, "'groupId' is missing."))
	}
	if raw.artifactID == "" {
		problems = append(problems, at(root, SeverityError, "'artifactId' is missing."))
	}
	if model.Coordinate.Version == "" {
		problems = append(problems, at(root, SeverityError, "'version' is missing."))
	}
	if len(raw.modules) > 0 && model.Packaging != "pom" {
		el := root.child("packaging")
		if el == nil {
			el = root
		}
		problems = append(problems, at(el, SeverityError, "Aggregator projects require 'pom' as packaging."))
	}

	problems = append(problems, validateDependencies("dependencies.dependency", raw.dependencies, dependencyScopes, model, r, true)...)
	problems = append(problems, validateDependencies("dependencyManagement.dependencies.dependency", raw.managed, managedScopes, model, r, false)...)
	return problems
}

func validateDependencies(prefix string, deps []rawDependency, scopes []string, model *Model, r *resolver, requireVersion bool) []Problem {
	var problems []Problem
	seen := map[string]bool{}
	for _, d := range deps {
		c := d.Coordinate.WithDefaults()
		key := fmt.Sprintf("%s:%s:%s", d.GroupID, d.ArtifactID, c.Type)
		if d.Classifier != "" {
			key += ":" + d.Classifier
		}
		if d.GroupID == "" {
			problems = append(problems, at(d.el, SeverityError, "'%s.groupId' for %s is missing.", prefix, key))
		}
		if d.ArtifactID == "" {
			problems = append(problems, at(d.el, SeverityError, "'%s.artifactId' for %s is missing.", prefix, key))
		}

		version := d.Version
		if version == "" && requireVersion {
			ga := coordinate.GroupArtifact{GroupID: r.resolve(d.GroupID), ArtifactID: r.resolve(d.ArtifactID)}
			managed, ok := model.ManagedVersion(ga)
			if !ok {
				problems = append(problems, at(d.el, SeverityError, "'%s.version' for %s is missing.", prefix, key))
			}
			version = managed
		} else if version != "" {
			if ref, ok := unresolved(r.resolve(version)); ok {
				problems = append(problems, at(d.el.child("version"), SeverityError, "'%s.version' for %s must be a valid version but is '${%s}'.", prefix, key, ref))
			}
		}

		if seen[key] {
			problems = append(problems, at(d.el, SeverityWarning, "'%s.(groupId:artifactId:type:classifier)' must be unique: %s -> duplicate declaration of version %s", prefix, key, displayVersion(version)))
		}
		seen[key] = true

		if d.Scope != "" && !contains(scopes, d.Scope) {
			problems = append(problems, at(d.el.child("scope"), SeverityWarning, "'%s.scope' for %s must be one of [%s] but is '%s'.", prefix, key, strings.Join(scopes, ", "), d.Scope))
		}
	}
	return problems
}

func displayVersion(v string) string {
	if v == "" {
		return "(?)"
	}
	return v
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
