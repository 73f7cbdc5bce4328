package editor

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/prewarm/internal/config"
)

func patchConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Extension.ID = "example.code-intel"
	return cfg
}

func installBundle(t *testing.T, cfg *config.Config, version, rel, content string) string {
	t.Helper()
	path := filepath.Join(cfg.ExtensionsDir(), "example.code-intel-"+version, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestPatchBundle_ReplacesFeatureFlag(t *testing.T) {
	cfg := patchConfig(t)
	path := installBundle(t, cfg, "1.4.0", filepath.Join("dist", "extension.js"),
		`var cfg={lazyActivation:!0,persistentIndex:!1,telemetry:!0};`)

	patched, err := PatchBundle(cfg)
	require.NoError(t, err)
	assert.True(t, patched)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `persistentIndex:!0`)
	assert.NotContains(t, string(data), `persistentIndex:!1`)
}

func TestPatchBundle_NeedleAbsentIsNoop(t *testing.T) {
	cfg := patchConfig(t)
	original := `var cfg={somethingElse:!1};`
	path := installBundle(t, cfg, "2.0.0", filepath.Join("dist", "extension.js"), original)

	patched, err := PatchBundle(cfg)
	require.NoError(t, err)
	assert.False(t, patched, "unknown bundle layout must degrade to a no-op")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, original, string(data), "bundle must be left untouched")
}

func TestPatchBundle_AlreadyPatched(t *testing.T) {
	cfg := patchConfig(t)
	installBundle(t, cfg, "1.4.0", filepath.Join("dist", "extension.js"),
		`var cfg={persistentIndex:!0};`)

	patched, err := PatchBundle(cfg)
	require.NoError(t, err)
	assert.False(t, patched)
}

func TestPatchBundle_MissingExtension(t *testing.T) {
	cfg := patchConfig(t)

	patched, err := PatchBundle(cfg)
	require.NoError(t, err)
	assert.False(t, patched)
}

func TestPatchBundle_NewestVersionWins(t *testing.T) {
	cfg := patchConfig(t)
	installBundle(t, cfg, "1.3.9", filepath.Join("dist", "extension.js"),
		`old {persistentIndex:!1}`)
	newest := installBundle(t, cfg, "1.4.0", filepath.Join("dist", "extension.js"),
		`new {persistentIndex:!1}`)

	patched, err := PatchBundle(cfg)
	require.NoError(t, err)
	assert.True(t, patched)

	data, err := os.ReadFile(newest)
	require.NoError(t, err)
	assert.Contains(t, string(data), `persistentIndex:!0`)
}

func TestFindBundle_FallbackLayouts(t *testing.T) {
	cfg := patchConfig(t)
	installBundle(t, cfg, "1.0.0", filepath.Join("out", "extension.js"), "bundle")

	path, err := findBundle(cfg.ExtensionsDir(), cfg.Extension.ID)
	require.NoError(t, err)
	assert.Contains(t, path, filepath.Join("out", "extension.js"))
}
