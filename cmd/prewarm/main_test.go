package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prewarm.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(nil)
	require.NoError(t, err)

	assert.Equal(t, 13338, cfg.Editor.Port)
	assert.Equal(t, "CodeIntel", cfg.Extension.LogChannel)
	assert.Equal(t, "10m", cfg.Poll.Timeout)
}

func TestLoadConfig_ConfigFlag(t *testing.T) {
	path := writeConfig(t, `
[editor]
workspace = "/work/repo"
port = 9000
`)

	cfg, err := loadConfig([]string{"--config", path})
	require.NoError(t, err)

	assert.Equal(t, "/work/repo", cfg.Editor.Workspace)
	assert.Equal(t, 9000, cfg.Editor.Port)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
[editor]
workspace = "/work/from-file"

[poll]
timeout = "5m"
`)

	cfg, err := loadConfig([]string{
		"--config", path,
		"--workspace", "/work/from-flag",
		"--open-file", "main.go",
		"--timeout", "2m",
	})
	require.NoError(t, err)

	assert.Equal(t, "/work/from-flag", cfg.Editor.Workspace)
	assert.Equal(t, "main.go", cfg.Browser.OpenFile)
	assert.Equal(t, "2m", cfg.Poll.Timeout)
}

func TestLoadConfig_UnknownFlag(t *testing.T) {
	_, err := loadConfig([]string{"--bogus"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--bogus")
}

func TestIsFlag(t *testing.T) {
	assert.True(t, isFlag("--workspace"))
	assert.True(t, isFlag("-v"))
	assert.False(t, isFlag("warm"))
	assert.False(t, isFlag(""))
}
