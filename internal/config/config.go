// Package config provides configuration management for prewarm.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the tool configuration.
type Config struct {
	DataDir string `toml:"data_dir"`

	Editor    EditorConfig    `toml:"editor"`
	Extension ExtensionConfig `toml:"extension"`
	Browser   BrowserConfig   `toml:"browser"`
	Poll      PollConfig      `toml:"poll"`
	Artifacts ArtifactsConfig `toml:"artifacts"`
	API       APIConfig       `toml:"api"`
	Logging   LoggingConfig   `toml:"logging"`
}

// EditorConfig controls the headless code-server instance.
type EditorConfig struct {
	Binary         string `toml:"binary"`
	Host           string `toml:"host"`
	Port           int    `toml:"port"`
	Workspace      string `toml:"workspace"`
	UserDataDir    string `toml:"user_data_dir"`
	ExtensionsDir  string `toml:"extensions_dir"`
	StartupTimeout string `toml:"startup_timeout"`
}

// ExtensionConfig identifies the code-intelligence extension being warmed.
type ExtensionConfig struct {
	ID         string `toml:"id"`
	VSIX       string `toml:"vsix"`
	LogChannel string `toml:"log_channel"`

	// PatchNeedle/PatchReplacement define the literal substitution applied
	// to the minified extension bundle to force the persistent-index feature
	// flag on. Version-fragile by design.
	PatchNeedle      string `toml:"patch_needle"`
	PatchReplacement string `toml:"patch_replacement"`
}

// BrowserConfig controls the headless Chrome session.
type BrowserConfig struct {
	// OpenFile is the workspace-relative file opened via quick-open to
	// trigger the extension's lazy activation.
	OpenFile string `toml:"open_file"`
	Timeout  string `toml:"timeout"`
}

// PollConfig controls the readiness poller. Empty durations use the poller
// package defaults.
type PollConfig struct {
	Timeout             string `toml:"timeout"`
	Interval            string `toml:"interval"`
	GracePeriod         string `toml:"grace_period"`
	IndexingExtension   string `toml:"indexing_extension"`
	OptimisticExtension string `toml:"optimistic_extension"`
}

// ArtifactsConfig controls where persisted index artifacts are copied.
type ArtifactsConfig struct {
	// SourceGlobs are tried in order against the warm user-data dir; empty
	// falls back to the extension's globalStorage layout.
	SourceGlobs []string `toml:"source_globs"`
	TargetDir   string   `toml:"target_dir"`
}

// APIConfig controls the optional local status server.
type APIConfig struct {
	Enabled bool   `toml:"enabled"`
	Host    string `toml:"host"`
	Port    int    `toml:"port"`
}

// LoggingConfig contains logging preferences.
type LoggingConfig struct {
	Level      string   `toml:"level"`
	Format     string   `toml:"format"`
	Output     []string `toml:"output"`
	TimeFormat string   `toml:"time_format"`
	MaxSizeMB  int      `toml:"max_size_mb"`
	MaxBackups int      `toml:"max_backups"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: DefaultDataDir(),
		Editor: EditorConfig{
			Binary:         "code-server",
			Host:           "127.0.0.1",
			Port:           13338,
			Workspace:      ".",
			StartupTimeout: "60s",
		},
		Extension: ExtensionConfig{
			LogChannel:       "CodeIntel",
			PatchNeedle:      `persistentIndex:!1`,
			PatchReplacement: `persistentIndex:!0`,
		},
		Browser: BrowserConfig{
			Timeout: "120s",
		},
		Poll: PollConfig{
			Timeout: "10m",
		},
		API: APIConfig{
			Enabled: false,
			Host:    "127.0.0.1",
			Port:    13339,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: []string{"stdout"},
		},
	}
}

// DefaultDataDir returns the default data directory based on OS.
func DefaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "prewarm")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", "prewarm")
	case "darwin":
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "Library", "Application Support", "prewarm")
	default: // linux and others
		xdgData := os.Getenv("XDG_DATA_HOME")
		if xdgData != "" {
			return filepath.Join(xdgData, "prewarm")
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".prewarm")
	}
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.toml")
}

// Load loads configuration from a file, starting from defaults. A missing
// file is not an error; the defaults are returned unchanged.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables in the config
	expanded := os.ExpandEnv(string(data))

	if err := toml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg.DataDir = expandTilde(cfg.DataDir)
	cfg.Editor.Workspace = expandTilde(cfg.Editor.Workspace)
	cfg.Artifacts.TargetDir = expandTilde(cfg.Artifacts.TargetDir)

	return cfg, nil
}

func expandTilde(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[2:])
	}
	return path
}

// EditorAddress returns the address the headless editor listens on.
func (c *Config) EditorAddress() string {
	return fmt.Sprintf("%s:%d", c.Editor.Host, c.Editor.Port)
}

// EditorURL returns the base URL of the headless editor.
func (c *Config) EditorURL() string {
	return "http://" + c.EditorAddress()
}

// APIAddress returns the address for the status server.
func (c *Config) APIAddress() string {
	return fmt.Sprintf("%s:%d", c.API.Host, c.API.Port)
}

// UserDataDir returns the throwaway user-data directory for the warm session.
func (c *Config) UserDataDir() string {
	if c.Editor.UserDataDir != "" {
		return c.Editor.UserDataDir
	}
	return filepath.Join(c.DataDir, "user-data")
}

// ExtensionsDir returns the extensions directory for the warm session.
func (c *Config) ExtensionsDir() string {
	if c.Editor.ExtensionsDir != "" {
		return c.Editor.ExtensionsDir
	}
	return filepath.Join(c.DataDir, "extensions")
}

// LogPath returns the path to the prewarm log file.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", "prewarm.log")
}

// EnsureDirectories creates all necessary directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.UserDataDir(),
		c.ExtensionsDir(),
		filepath.Dir(c.LogPath()),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	return nil
}

// Duration parses a duration field, falling back when empty or malformed.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}
