package artifacts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prewarm/internal/config"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Extension.ID = "example.code-intel"
	return cfg
}

func seedIndex(t *testing.T, cfg *config.Config, rel string) string {
	t.Helper()
	dir := filepath.Join(cfg.UserDataDir(), rel)
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "symbols.db"), []byte("idx"), 0644))
	return dir
}

func TestLocate_DefaultLayout(t *testing.T) {
	cfg := testConfig(t)
	dir := seedIndex(t, cfg, filepath.Join("User", "globalStorage", "example.code-intel", "index"))

	assert.Equal(t, dir, Locate(cfg))
}

func TestLocate_NothingPersisted(t *testing.T) {
	cfg := testConfig(t)

	assert.Empty(t, Locate(cfg))
}

func TestLocate_CustomGlobs(t *testing.T) {
	cfg := testConfig(t)
	cfg.Artifacts.SourceGlobs = []string{filepath.Join("custom", "{ext}", "*")}
	dir := seedIndex(t, cfg, filepath.Join("custom", "example.code-intel", "v2"))

	assert.Equal(t, dir, Locate(cfg))
}

func TestCopy_PlacesTreeAtTarget(t *testing.T) {
	cfg := testConfig(t)
	seedIndex(t, cfg, filepath.Join("User", "globalStorage", "example.code-intel", "index"))
	cfg.Artifacts.TargetDir = filepath.Join(t.TempDir(), "target")

	require.NoError(t, Copy(cfg))

	data, err := os.ReadFile(filepath.Join(cfg.Artifacts.TargetDir, "symbols.db"))
	require.NoError(t, err)
	assert.Equal(t, "idx", string(data))
}

func TestCopy_MissingSourceIsNotAnError(t *testing.T) {
	cfg := testConfig(t)
	cfg.Artifacts.TargetDir = filepath.Join(t.TempDir(), "target")

	assert.NoError(t, Copy(cfg))
	assert.NoDirExists(t, cfg.Artifacts.TargetDir)
}

func TestCopy_NoTargetConfigured(t *testing.T) {
	cfg := testConfig(t)
	seedIndex(t, cfg, filepath.Join("User", "globalStorage", "example.code-intel", "index"))

	assert.NoError(t, Copy(cfg))
}
