package completion

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/dom"
	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/project"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

type fakeLocal struct {
	artifacts map[coordinate.GroupArtifact]coordinate.Version
	plugins   map[coordinate.GroupArtifact]coordinate.Version
	calls     atomic.Int32
}

func (f *fakeLocal) Artifacts(context.Context) (map[coordinate.GroupArtifact]coordinate.Version, error) {
	f.calls.Add(1)
	return f.artifacts, nil
}

func (f *fakeLocal) PluginArtifacts(context.Context) (map[coordinate.GroupArtifact]coordinate.Version, error) {
	f.calls.Add(1)
	return f.plugins, nil
}

func (f *fakeLocal) GroupIDs(context.Context) ([]string, error) {
	f.calls.Add(1)
	return groupsOf(f.artifacts), nil
}

func (f *fakeLocal) PluginGroupIDs(context.Context) ([]string, error) {
	f.calls.Add(1)
	return groupsOf(f.plugins), nil
}

func groupsOf(m map[coordinate.GroupArtifact]coordinate.Version) []string {
	seen := map[string]bool{}
	var out []string
	for ga := range m {
		if !seen[ga.GroupID] {
			seen[ga.GroupID] = true
			out = append(out, ga.GroupID)
		}
	}
	return out
}

// fakeRemote answers per source. A source listed in block waits until
// release is closed.
type fakeRemote struct {
	artifacts map[string][]coordinate.ArtifactInfo
	versions  map[string][]coordinate.Version
	failing   map[string]bool
	block     map[string]bool
	release   chan struct{}
	calls     atomic.Int32

	mu       sync.Mutex
	partials []coordinate.Coordinate
}

func (f *fakeRemote) wait(ctx context.Context, source string) error {
	f.calls.Add(1)
	if f.block[source] {
		select {
		case <-f.release:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.failing[source] {
		return errors.New("connection refused")
	}
	return nil
}

func (f *fakeRemote) GroupIDs(ctx context.Context, source string, partial coordinate.Coordinate, _ bool) ([]string, error) {
	if err := f.wait(ctx, source); err != nil {
		return nil, err
	}
	var out []string
	for _, a := range f.artifacts[source] {
		out = append(out, a.GroupID)
	}
	return out, nil
}

func (f *fakeRemote) ArtifactIDs(ctx context.Context, source string, partial coordinate.Coordinate, _ bool) ([]coordinate.ArtifactInfo, error) {
	f.mu.Lock()
	f.partials = append(f.partials, partial)
	f.mu.Unlock()
	if err := f.wait(ctx, source); err != nil {
		return nil, err
	}
	return f.artifacts[source], nil
}

func (f *fakeRemote) Versions(ctx context.Context, source string, _ coordinate.Coordinate, _ bool, _ func(coordinate.Version) bool) ([]coordinate.Version, error) {
	if err := f.wait(ctx, source); err != nil {
		return nil, err
	}
	return f.versions[source], nil
}

type fakeProjects struct {
	models map[string]*project.Model
}

func (f *fakeProjects) SnapshotProject(_ context.Context, path string) (*project.Model, error) {
	if m, ok := f.models[path]; ok {
		return m, nil
	}
	return nil, os.ErrNotExist
}

func newAggregator(t *testing.T, local LocalIndex, remote RemoteIndex, projects Projects, deadline time.Duration) (*Aggregator, *metrics.Metrics) {
	t.Helper()
	cfg := config.Default()
	cfg.Completion.Deadline = deadline
	cfg.Remote.QueryTimeout = 5 * time.Second
	m := metrics.New(nil)
	return New(cfg, local, remote, projects, m), m
}

// request parses text with a '|' marking the cursor.
func request(text string, model *project.Model) Request {
	offset := strings.Index(text, "|")
	text = strings.Replace(text, "|", "", 1)
	return Request{Doc: dom.Parse(text), Offset: offset, Model: model}
}

func labels(items []protocol.CompletionItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Label)
	}
	return out
}

func modelWithRepositories(urls ...string) *project.Model {
	m := &project.Model{}
	for _, u := range urls {
		m.Repositories = append(m.Repositories, project.Repository{ID: u, URL: u})
	}
	return m
}

func TestModuleCompletionUsesModelOnly(t *testing.T) {
	local := &fakeLocal{}
	remote := &fakeRemote{}
	agg, _ := newAggregator(t, local, remote, nil, time.Second)

	req := request("<project>\n  <modules>\n    <module>|</module>\n  </modules>\n</project>", &project.Model{Modules: []string{"core", "ui"}})
	items := agg.Complete(context.Background(), req)

	assert.Equal(t, []string{"core", "ui"}, labels(items))
	assert.Equal(t, protocol.CompletionItemKindModule, items[0].Kind)
	assert.Zero(t, local.calls.Load())
	assert.Zero(t, remote.calls.Load())
}

func TestPropertyCompletion(t *testing.T) {
	agg, _ := newAggregator(t, nil, nil, nil, time.Second)
	model := &project.Model{
		Coordinate: coordinate.Coordinate{Version: "1.2.3"},
		Properties: map[string]string{"junit.version": "5.10.0"},
	}
	text := "<project><description>${proj|</description></project>"
	req := request(text, model)
	items := agg.Complete(context.Background(), req)

	var found *protocol.CompletionItem
	for i := range items {
		if items[i].Label == "${project.version}" {
			found = &items[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, "Default Value: 1.2.3", found.Documentation)
	dollar := uint32(strings.Index(text, "$"))
	assert.Equal(t, protocol.Range{
		Start: protocol.Position{Line: 0, Character: dollar},
		End:   protocol.Position{Line: 0, Character: uint32(req.Offset)},
	}, found.TextEdit.Range)
	assert.Contains(t, labels(items), "${junit.version}")
	assert.Contains(t, labels(items), "${basedir}")
}

func TestNoPropertyCompletionWithoutDollar(t *testing.T) {
	agg, _ := newAggregator(t, nil, nil, nil, time.Second)
	items := agg.Complete(context.Background(), request("<project><description>proj|</description></project>", &project.Model{}))
	assert.Empty(t, items)
}

const artifactDoc = `<project>
  <dependencies>
    <dependency>
      <groupId>org.x</groupId>
      <artifactId>co|</artifactId>
    </dependency>
  </dependencies>
</project>`

func TestRemoteSourcesMergeInOrderAndSkipFailures(t *testing.T) {
	remote := &fakeRemote{
		artifacts: map[string][]coordinate.ArtifactInfo{
			"https://a/": {{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core-a"}, Version: "1.0"}},
			"https://b/": {{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core-b"}, Version: "1.0"}},
			"https://c/": {{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core-c"}, Version: "1.0"}},
		},
		failing: map[string]bool{"https://b/": true},
	}
	agg, m := newAggregator(t, nil, remote, nil, time.Second)

	items := agg.Complete(context.Background(), request(artifactDoc, modelWithRepositories("https://a/", "https://b/", "https://c/")))
	assert.Equal(t, []string{"core-a", "core-c"}, labels(items))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RemoteQueriesTotal.WithLabelValues("artifactId", "failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.RemoteQueriesTotal.WithLabelValues("artifactId", "done")))

	require.NotEmpty(t, remote.partials)
	assert.Equal(t, "org.x", remote.partials[0].GroupID)
	assert.Equal(t, "co", remote.partials[0].ArtifactID)
}

func TestSlowSourceYieldsPlaceholder(t *testing.T) {
	remote := &fakeRemote{
		artifacts: map[string][]coordinate.ArtifactInfo{
			"https://a/": {{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core-a"}}},
			"https://b/": {{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core-b"}}},
		},
		block:   map[string]bool{"https://b/": true},
		release: make(chan struct{}),
	}
	t.Cleanup(func() { close(remote.release) })
	agg, m := newAggregator(t, nil, remote, nil, 50*time.Millisecond)

	start := time.Now()
	items := agg.Complete(context.Background(), request(artifactDoc, modelWithRepositories("https://a/", "https://b/")))
	assert.Less(t, time.Since(start), 2*time.Second)

	require.Len(t, items, 2)
	assert.Equal(t, "core-a", items[0].Label)
	assert.Equal(t, "Updating index for https://b/", items[1].Label)
	assert.Equal(t, protocol.CompletionItemKindEvent, items[1].Kind)
	assert.True(t, items[1].Preselect)
	assert.Empty(t, items[1].InsertText)
	assert.Equal(t, float64(1), testutil.ToFloat64(m.PlaceholdersTotal.WithLabelValues("https://b/")))
}

func TestDefaultSourceWhenModelMissing(t *testing.T) {
	remote := &fakeRemote{
		artifacts: map[string][]coordinate.ArtifactInfo{
			config.CentralURL: {{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core"}}},
		},
	}
	agg, _ := newAggregator(t, nil, remote, nil, time.Second)
	items := agg.Complete(context.Background(), request(artifactDoc, nil))
	assert.Equal(t, []string{"core"}, labels(items))
}

func TestLocalArtifactsComeFirstAndFollowGroupID(t *testing.T) {
	local := &fakeLocal{artifacts: map[coordinate.GroupArtifact]coordinate.Version{
		{GroupID: "org.x", ArtifactID: "core"}:  coordinate.ParseVersion("2.0"),
		{GroupID: "org.y", ArtifactID: "other"}: coordinate.ParseVersion("1.0"),
	}}
	remote := &fakeRemote{artifacts: map[string][]coordinate.ArtifactInfo{
		"https://a/": {{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.x", ArtifactID: "core-remote"}}},
	}}
	agg, _ := newAggregator(t, local, remote, nil, time.Second)

	items := agg.Complete(context.Background(), request(artifactDoc, modelWithRepositories("https://a/")))
	assert.Equal(t, []string{"core", "core-remote"}, labels(items))
	assert.Equal(t, "org.x:core:2.0", items[0].Detail)
	// groupId is already declared, only the version is added
	require.Len(t, items[0].AdditionalTextEdits, 1)
	assert.Contains(t, items[0].AdditionalTextEdits[0].NewText, "<version>2.0</version>")
}

func TestVersionCompletion(t *testing.T) {
	local := &fakeLocal{artifacts: map[coordinate.GroupArtifact]coordinate.Version{
		{GroupID: "org.x", ArtifactID: "core"}: coordinate.ParseVersion("2.0"),
	}}
	remote := &fakeRemote{versions: map[string][]coordinate.Version{
		"https://a/": {coordinate.ParseVersion("3.0"), coordinate.ParseVersion("2.0")},
	}}
	agg, _ := newAggregator(t, local, remote, nil, time.Second)

	text := `<project><dependencies><dependency>
  <groupId>org.x</groupId>
  <artifactId>core</artifactId>
  <version>|</version>
</dependency></dependencies></project>`
	items := agg.Complete(context.Background(), request(text, modelWithRepositories("https://a/")))
	assert.Equal(t, []string{"2.0", "3.0", "2.0"}, labels(items))
	assert.Less(t, items[1].SortText, items[2].SortText)
}

func TestVersionWithoutArtifactIDHasNoCandidates(t *testing.T) {
	remote := &fakeRemote{}
	agg, _ := newAggregator(t, &fakeLocal{}, remote, nil, time.Second)
	items := agg.Complete(context.Background(), request("<project><dependencies><dependency><version>|</version></dependency></dependencies></project>", nil))
	assert.Empty(t, items)
	assert.Zero(t, remote.calls.Load())
}

func TestScopeCompletion(t *testing.T) {
	agg, _ := newAggregator(t, nil, nil, nil, time.Second)
	items := agg.Complete(context.Background(), request("<project><dependencies><dependency><scope>|</scope></dependency></dependencies></project>", nil))
	require.Len(t, items, len(coordinate.Scopes))
	assert.Equal(t, coordinate.Scopes[0].Name, items[0].Label)
	assert.Equal(t, coordinate.Scopes[0].Description, items[0].Documentation)
}

func TestMinimalContentForEmptyDocument(t *testing.T) {
	agg, _ := newAggregator(t, nil, nil, nil, time.Second)
	items := agg.Complete(context.Background(), Request{Doc: dom.Parse(""), Offset: 0})
	require.Len(t, items, 1)
	assert.Equal(t, "minimal pom content", items[0].Label)
	assert.Equal(t, protocol.InsertTextFormatSnippet, items[0].InsertTextFormat)
	assert.Contains(t, items[0].TextEdit.NewText, "<artifactId>$0</artifactId>")
}

func TestFilesystemParent(t *testing.T) {
	root := t.TempDir()
	parentPath := filepath.Join(root, "pom.xml")
	require.NoError(t, os.WriteFile(parentPath, []byte("<project/>"), 0o644))
	childDir := filepath.Join(root, "child")
	require.NoError(t, os.MkdirAll(childDir, 0o755))

	projects := &fakeProjects{models: map[string]*project.Model{
		parentPath: {
			Coordinate:  coordinate.Coordinate{GroupArtifact: coordinate.GroupArtifact{GroupID: "org.p", ArtifactID: "parent"}, Version: "7"},
			Description: "the parent",
		},
	}}
	agg, _ := newAggregator(t, nil, nil, projects, time.Second)

	req := request("<project>\n  <parent>\n    <artifactId>|</artifactId>\n  </parent>\n</project>", nil)
	req.Path = filepath.Join(childDir, "pom.xml")
	items := agg.Complete(context.Background(), req)
	require.Len(t, items, 1)
	assert.Equal(t, "parent", items[0].Label)
	assert.Equal(t, "org.p:parent:7", items[0].Detail)

	req = request("<project>\n  <parent>\n    <version>|</version>\n  </parent>\n</project>", nil)
	req.Path = filepath.Join(childDir, "pom.xml")
	items = agg.Complete(context.Background(), req)
	assert.Equal(t, []string{"7"}, labels(items))

	// no document path, no parent
	req.Path = ""
	assert.Empty(t, agg.Complete(context.Background(), req))
}
