package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, CentralURL, cfg.Remote.DefaultSource)
	assert.Equal(t, 2*time.Second, cfg.Completion.Deadline)
	assert.True(t, strings.HasSuffix(cfg.LocalRepository.Path, filepath.Join(".m2", "repository")))
	assert.Equal(t, "https://search.maven.org/solrsearch/select", cfg.Remote.SearchEndpoint(CentralURL))
	assert.Equal(t, "https://search.maven.org/solrsearch/select", cfg.Remote.SearchEndpoint("https://repo1.maven.org/maven2"))
	assert.Empty(t, cfg.Remote.SearchEndpoint("https://repo.example.com/"))
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pomassist.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
localRepository:
  path: /data/m2
  exclude: ["**/org/internal/**"]
remote:
  queryTimeout: 5s
completion:
  deadline: 750ms
logging:
  level: debug
`), 0o644))
	t.Setenv("PA_LOGGING_FORMAT", "json")
	t.Setenv("PA_REDIS_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/m2", cfg.LocalRepository.Path)
	assert.Equal(t, []string{"**/org/internal/**"}, cfg.LocalRepository.Exclude)
	assert.Equal(t, 5*time.Second, cfg.Remote.QueryTimeout)
	assert.Equal(t, 750*time.Millisecond, cfg.Completion.Deadline)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Redis.Enabled)
	// untouched sections keep their defaults
	assert.Equal(t, CentralURL, cfg.Remote.DefaultSource)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
