package localrepo

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/coordinate"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
)

func mkdirs(t *testing.T, root string, dirs ...string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(d)), 0o755))
	}
}

func newIndex(root string, exclude ...string) *Index {
	return New(config.LocalRepositoryConfig{Path: root, Exclude: exclude, WatchDebounce: 20 * time.Millisecond}, nil)
}

func ga(g, a string) coordinate.GroupArtifact {
	return coordinate.GroupArtifact{GroupID: g, ArtifactID: a}
}

func TestBestVersionSelection(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"g/a/1.0", "g/a/2.0-SNAPSHOT",
		"g/b/1.0", "g/b/0.9-SNAPSHOT",
		"g/c/1.0-SNAPSHOT", "g/c/1.0",
	)
	artifacts, err := newIndex(root).Artifacts(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2.0-SNAPSHOT", artifacts[ga("g", "a")].String())
	assert.Equal(t, "1.0", artifacts[ga("g", "b")].String())
	assert.Equal(t, "1.0", artifacts[ga("g", "c")].String())
}

func TestScanLayout(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root,
		"org/apache/maven/plugins/maven-compiler-plugin/3.11.0",
		"org/example/core/1.2/nested/9.9",
		"org/example/.cache/x/1.0",
		".hidden/a/1.0",
		"com/internal/secret/1.0",
		"orphan/1.0",
	)
	idx := newIndex(root, "com/internal/**")
	artifacts, err := idx.Artifacts(context.Background())
	require.NoError(t, err)

	assert.Len(t, artifacts, 2)
	assert.Contains(t, artifacts, ga("org.apache.maven.plugins", "maven-compiler-plugin"))
	assert.Equal(t, "1.2", artifacts[ga("org.example", "core")].String())

	groups, err := idx.GroupIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"org.apache.maven.plugins", "org.example"}, groups)

	plugins, err := idx.PluginArtifacts(context.Background())
	require.NoError(t, err)
	assert.Len(t, plugins, 1)
	pluginGroups, err := idx.PluginGroupIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"org.apache.maven.plugins"}, pluginGroups)
}

func TestMissingRootIsEmpty(t *testing.T) {
	artifacts, err := newIndex(filepath.Join(t.TempDir(), "none")).Artifacts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, artifacts)
}

func TestVersionsAndPOMPath(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "org/x/core/1.0", "org/x/core/1.10", "org/x/core/1.2-SNAPSHOT", "org/x/core/meta")
	idx := newIndex(root)

	versions, err := idx.Versions(ga("org.x", "core"))
	require.NoError(t, err)
	var names []string
	for _, v := range versions {
		names = append(names, v.String())
	}
	assert.Equal(t, []string{"1.10", "1.2-SNAPSHOT", "1.0"}, names)

	none, err := idx.Versions(ga("org.x", "absent"))
	require.NoError(t, err)
	assert.Empty(t, none)

	c := coordinate.Coordinate{GroupArtifact: ga("org.x", "core"), Version: "1.0"}
	assert.Equal(t, filepath.Join(root, "org", "x", "core", "1.0", "core-1.0.pom"), idx.POMPath(c))
}

func TestInvalidateRescans(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "g/a/1.0")
	idx := newIndex(root)
	artifacts, err := idx.Artifacts(context.Background())
	require.NoError(t, err)
	assert.Len(t, artifacts, 1)

	mkdirs(t, root, "g/b/1.0")
	artifacts, err = idx.Artifacts(context.Background())
	require.NoError(t, err)
	assert.Len(t, artifacts, 1, "cached until invalidated")

	idx.Invalidate()
	artifacts, err = idx.Artifacts(context.Background())
	require.NoError(t, err)
	assert.Len(t, artifacts, 2)
}

func TestWatchInvalidates(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "g/a/1.0")
	idx := newIndex(root)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, idx.Watch(ctx))
	defer idx.Close()
	require.NoError(t, idx.Watch(ctx), "second call is a no-op")

	_, err := idx.Artifacts(ctx)
	require.NoError(t, err)

	mkdirs(t, root, "g/a/2.0")
	assert.Eventually(t, func() bool {
		artifacts, err := idx.Artifacts(ctx)
		return err == nil && artifacts[ga("g", "a")].String() == "2.0"
	}, 5*time.Second, 20*time.Millisecond)
}

func TestScanHonoursCancellation(t *testing.T) {
	root := t.TempDir()
	mkdirs(t, root, "g/a/1.0")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newIndex(root).Artifacts(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
