package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.lsp.dev/protocol"
	"go.lsp.dev/uri"

	"github.com/Adithya-Monish-Kumar-K/pomassist/internal/remote"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/pomassist/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/pomassist/pkg/metrics"
)

const corePOM = `<project>
  <modelVersion>4.0.0</modelVersion>
  <groupId>org.x</groupId>
  <artifactId>core</artifactId>
  <version>1.0</version>
  <description>Core library</description>
</project>`

const appPOM = `<project>
  <modelVersion>4.0.0</modelVersion>
  <groupId>org.acme</groupId>
  <artifactId>app</artifactId>
  <version>1.0</version>
  <packaging>pom</packaging>
  <modules>
    <module>core</module>
    <module>missing</module>
  </modules>
  <dependencies>
    <dependency>
      <groupId>org.x</groupId>
      <artifactId>core</artifactId>
      <version>1.0</version>
    </dependency>
  </dependencies>
</project>`

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func repositoryServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			w.WriteHeader(http.StatusOK)
		case "/org/x/core/maven-metadata.xml":
			fmt.Fprint(w, `<metadata><versioning><versions><version>1.0</version><version>2.0</version></versions></versioning></metadata>`)
		default:
			http.NotFound(w, r)
		}
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

// newService builds a service over a temp local repository. Every remote
// source is served by one test server.
func newService(t *testing.T) (*Service, string) {
	root := t.TempDir()
	write(t, filepath.Join(root, "m2", "org", "x", "core", "1.0", "core-1.0.pom"), corePOM)
	write(t, filepath.Join(root, "app", "core", "pom.xml"), corePOM)
	appPath := filepath.Join(root, "app", "pom.xml")
	write(t, appPath, appPOM)

	srv := repositoryServer(t)
	cfg := config.Default()
	cfg.LocalRepository.Path = filepath.Join(root, "m2")
	cfg.LocalRepository.Watch = false
	cfg.Remote.IndexDir = filepath.Join(root, "indexes")
	cfg.Remote.DefaultSource = srv.URL + "/"
	cfg.Completion.Deadline = 5 * time.Second

	svc := New(cfg, Options{Metrics: metrics.New(nil), HTTPClient: srv.Client()})
	svc.Searcher().NewFetcher = func(string) remote.Fetcher {
		return remote.NewHTTPFetcher(srv.Client(), srv.URL, "", "pomassist-test", 1)
	}
	require.NoError(t, svc.Start(context.Background()))
	t.Cleanup(func() { svc.Close() })
	return svc, appPath
}

func TestDiagnoseFile(t *testing.T) {
	svc, appPath := newService(t)
	ds, err := svc.DiagnoseFile(context.Background(), appPath)
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, "Module 'missing' does not exist", ds[0].Message)
	assert.Equal(t, protocol.DiagnosticSeverityError, ds[0].Severity)

	// the document does not stay open
	_, err = svc.Diagnostics(context.Background(), uri.File(appPath), 1)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotOpen)
}

func TestHoverReadsLocalPOM(t *testing.T) {
	svc, appPath := newService(t)
	id := uri.File(appPath)
	svc.Open(id, 1, appPOM)

	offset := strings.Index(appPOM, "<artifactId>core</artifactId>") + len("<artifactId>co")
	h := svc.Hover(context.Background(), id, 1, offset)
	require.NotNil(t, h)
	assert.Equal(t, "**org.x:core:1.0**\n\nPackaging: jar\n\nCore library", h.Contents.Value)
}

func TestCompleteVersionMergesLocalAndRemote(t *testing.T) {
	svc, appPath := newService(t)
	id := uri.File(appPath)
	svc.Open(id, 1, appPOM)

	offset := strings.Index(appPOM, "<version>1.0</version>\n    </dependency>") + len("<version>1")
	items := svc.Complete(context.Background(), id, 1, offset)
	labels := make([]string, 0, len(items))
	for _, it := range items {
		labels = append(labels, it.Label)
	}
	assert.Equal(t, []string{"1.0", "2.0", "1.0"}, labels)
}

func TestDocumentLifecycle(t *testing.T) {
	svc, appPath := newService(t)
	id := uri.File(appPath)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Change(id, 1, appPOM), apperrors.ErrDocumentNotOpen)
	assert.Nil(t, svc.Complete(ctx, id, 1, 0))
	assert.Nil(t, svc.Hover(ctx, id, 1, 0))

	svc.Open(id, 2, appPOM)
	changed := strings.Replace(appPOM, "<module>missing</module>", "<module>ui</module>", 1)
	require.NoError(t, svc.Change(id, 3, changed))
	// older versions are ignored
	require.NoError(t, svc.Change(id, 1, appPOM))

	offset := strings.Index(changed, "<module>core</module>") + len("<module>")
	items := svc.Complete(ctx, id, 3, offset)
	require.Len(t, items, 2)
	assert.Equal(t, "core", items[0].Label)
	assert.Equal(t, "ui", items[1].Label)

	pos, err := svc.OffsetAt(id, protocol.Position{Line: 1, Character: 2})
	require.NoError(t, err)
	assert.Equal(t, strings.Index(changed, "<modelVersion>"), pos)

	svc.CloseDocument(id)
	_, err = svc.Diagnostics(ctx, id, 3)
	assert.ErrorIs(t, err, apperrors.ErrDocumentNotOpen)
}
