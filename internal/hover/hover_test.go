package hover

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/project"
)

type dirPOMs string

func (d dirPOMs) POMPath(c coordinate.Coordinate) string {
	return filepath.Join(string(d), c.ArtifactID+"-"+c.Version+".pom")
}

type mapCatalog map[string]map[coordinate.GroupArtifact]coordinate.ArtifactInfo

func (m mapCatalog) Artifact(source string, ga coordinate.GroupArtifact) (coordinate.ArtifactInfo, bool) {
	info, ok := m[source][ga]
	return info, ok
}

type mapProjects map[string]*project.Model

func (m mapProjects) SnapshotProject(_ context.Context, path string) (*project.Model, error) {
	if model, ok := m[path]; ok {
		return model, nil
	}
	return nil, os.ErrNotExist
}

func request(text string, model *project.Model) Request {
	offset := strings.Index(text, "|")
	text = strings.Replace(text, "|", "", 1)
	return Request{Doc: dom.Parse(text), Offset: offset, Model: model}
}

func TestScopeAndPhase(t *testing.T) {
	p := NewProvider(nil, nil, nil, "")
	ctx := context.Background()

	h := p.Hover(ctx, request("<project><dependencies><dependency><scope>te|st</scope></dependency></dependencies></project>", nil))
	require.NotNil(t, h)
	desc, _ := coordinate.Lookup(coordinate.Scopes, "test")
	assert.Equal(t, desc, h.Contents.Value)
	assert.Equal(t, protocol.PlainText, h.Contents.Kind)

	h = p.Hover(ctx, request("<project><build><plugins><plugin><executions><execution><phase>pack|age</phase></execution></executions></plugin></plugins></build></project>", nil))
	require.NotNil(t, h)
	assert.Contains(t, h.Contents.Value, "distributable format")

	assert.Nil(t, p.Hover(ctx, request("<project><dependencies><dependency><scope>bog|us</scope></dependency></dependencies></project>", nil)))
}

const dependencyDoc = `<project>
  <dependencies>
    <dependency>
      <groupId>org.x</groupId>
      <artifactId>co|re</artifactId>
      <version>${core.version}</version>
    </dependency>
  </dependencies>
</project>`

func TestArtifactFromLocalPOM(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core-1.4.pom")
	require.NoError(t, os.WriteFile(path, []byte("<project/>"), 0o644))
	p := NewProvider(dirPOMs(dir), nil, mapProjects{path: {Packaging: "jar", Description: "Core library"}}, "")

	model := &project.Model{Properties: map[string]string{"core.version": "1.4"}}
	h := p.Hover(context.Background(), request(dependencyDoc, model))
	require.NotNil(t, h)
	assert.Equal(t, protocol.Markdown, h.Contents.Kind)
	assert.Equal(t, "**org.x:core:1.4**\n\nPackaging: jar\n\nCore library", h.Contents.Value)
}

func TestArtifactFromRemoteSnapshot(t *testing.T) {
	catalog := mapCatalog{
		"https://b/": {
			{GroupID: "org.x", ArtifactID: "core"}: {GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core"}, Version: "2.0", Description: "From b"},
		},
	}
	p := NewProvider(dirPOMs(t.TempDir()), catalog, mapProjects{}, "")
	model := &project.Model{Repositories: []project.Repository{{ID: "a", URL: "https://a/"}, {ID: "b", URL: "https://b/"}}}

	text := strings.Replace(dependencyDoc, "<version>${core.version}</version>", "", 1)
	h := p.Hover(context.Background(), request(text, model))
	require.NotNil(t, h)
	assert.Equal(t, "**org.x:core:2.0**\n\nFrom b", h.Contents.Value)
}

func TestArtifactWithoutDescription(t *testing.T) {
	p := NewProvider(nil, nil, nil, "")
	h := p.Hover(context.Background(), request("<project><parent><groupId>org.p</groupId><artifactId>pa|rent</artifactId><version>3</version></parent></project>", nil))
	require.NotNil(t, h)
	assert.Equal(t, "**org.p:parent:3**", h.Contents.Value)

	// an artifactId outside a declaration describes nothing
	assert.Nil(t, p.Hover(context.Background(), request("<project><artifactId>a|pp</artifactId></project>", nil)))
}

func TestPropertyReference(t *testing.T) {
	p := NewProvider(nil, nil, nil, "")
	model := &project.Model{
		Coordinate: coordinate.Coordinate{Version: "1.0"},
		Properties: map[string]string{"junit.version": "5.10.0"},
	}
	text := "<project><description>uses ${jun|it.version} and ${project.version}</description></project>"
	req := request(text, model)
	h := p.Hover(context.Background(), req)
	require.NotNil(t, h)
	assert.Equal(t, "junit.version = 5.10.0", h.Contents.Value)
	start := uint32(strings.Index(text, "$"))
	assert.Equal(t, start, h.Range.Start.Character)
	assert.Equal(t, start+uint32(len("${junit.version}")), h.Range.End.Character)

	req = request("<project><description>uses ${junit.version} an|d</description></project>", model)
	assert.Nil(t, p.Hover(context.Background(), req))

	req = request("<project><description>${nope|}</description></project>", model)
	assert.Nil(t, p.Hover(context.Background(), req))
}
