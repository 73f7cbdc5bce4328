// Package artifacts copies persisted index artifacts from the warm session
// into the location the developer's real session will read them from.
package artifacts

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/internal/fileutil"
	"github.com/ternarybob/prewarm/internal/logger"
)

// defaultSourceGlobs cover the extension's globalStorage layout under the
// warm user-data directory. The extension id placeholder is substituted at
// resolution time.
var defaultSourceGlobs = []string{
	filepath.Join("User", "globalStorage", "{ext}", "index"),
	filepath.Join("User", "globalStorage", "{ext}", "cache", "index"),
}

// Locate resolves the persisted index directory produced by the warm
// session, or empty when the extension never persisted anything (e.g. the
// bundle patch was a no-op).
func Locate(cfg *config.Config) string {
	globs := cfg.Artifacts.SourceGlobs
	if len(globs) == 0 {
		globs = defaultSourceGlobs
	}

	extID := strings.ToLower(cfg.Extension.ID)
	for _, pattern := range globs {
		pattern = strings.ReplaceAll(pattern, "{ext}", extID)
		matches, err := filepath.Glob(filepath.Join(cfg.UserDataDir(), pattern))
		if err != nil || len(matches) == 0 {
			continue
		}
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, m := range matches {
			if fileutil.IsDir(m) {
				return m
			}
		}
	}

	return ""
}

// Copy places the persisted artifacts into the configured target directory.
// A missing source is a warning, not an error: the warm run still achieved
// an in-memory index even when nothing was persisted.
func Copy(cfg *config.Config) error {
	log := logger.GetLogger()

	if cfg.Artifacts.TargetDir == "" {
		log.Info().Msg("No artifact target configured, skipping copy")
		return nil
	}

	src := Locate(cfg)
	if src == "" {
		log.Warn().Str("user_data_dir", cfg.UserDataDir()).Msg("No persisted index artifacts found")
		return nil
	}

	if err := os.MkdirAll(cfg.Artifacts.TargetDir, 0755); err != nil {
		return fmt.Errorf("create artifact target: %w", err)
	}
	if err := fileutil.CopyDir(src, cfg.Artifacts.TargetDir); err != nil {
		return fmt.Errorf("copy artifacts: %w", err)
	}

	log.Info().Str("from", src).Str("to", cfg.Artifacts.TargetDir).Msg("Copied index artifacts")
	return nil
}
