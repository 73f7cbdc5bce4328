package editor

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ternarybob/prewarm/internal/config"
	"github.com/ternarybob/prewarm/internal/logger"
)

// InstallExtension installs the configured extension VSIX into the warm
// extensions directory using the editor binary's own installer.
func InstallExtension(cfg *config.Config) error {
	log := logger.GetLogger()

	if cfg.Extension.VSIX == "" {
		log.Info().Str("extension", cfg.Extension.ID).Msg("No VSIX configured, assuming extension is preinstalled")
		return nil
	}

	cmd := exec.Command(cfg.Editor.Binary,
		"--extensions-dir", cfg.ExtensionsDir(),
		"--install-extension", cfg.Extension.VSIX,
	)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out

	log.Info().Str("vsix", cfg.Extension.VSIX).Msg("Installing extension")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("install extension: %w: %s", err, strings.TrimSpace(out.String()))
	}

	return nil
}

// PatchBundle applies the configured literal substitution to the extension's
// minified bundle, forcing the persistent-index feature flag on. The needle
// is pinned to a specific extension release; when a new release rephrases the
// minified output the patch becomes a no-op and warming proceeds without
// persisted artifacts. Returns whether a replacement was made.
func PatchBundle(cfg *config.Config) (bool, error) {
	log := logger.GetLogger()

	bundle, err := findBundle(cfg.ExtensionsDir(), cfg.Extension.ID)
	if err != nil {
		return false, err
	}
	if bundle == "" {
		log.Warn().Str("extension", cfg.Extension.ID).Msg("Extension bundle not found, skipping patch")
		return false, nil
	}

	data, err := os.ReadFile(bundle)
	if err != nil {
		return false, fmt.Errorf("read bundle: %w", err)
	}

	needle := []byte(cfg.Extension.PatchNeedle)
	if !bytes.Contains(data, needle) {
		if bytes.Contains(data, []byte(cfg.Extension.PatchReplacement)) {
			log.Info().Str("bundle", bundle).Msg("Bundle already patched")
			return false, nil
		}
		log.Warn().
			Str("bundle", bundle).
			Str("needle", cfg.Extension.PatchNeedle).
			Msg("Patch needle not found, extension version may have changed")
		return false, nil
	}

	patched := bytes.Replace(data, needle, []byte(cfg.Extension.PatchReplacement), 1)
	if err := os.WriteFile(bundle, patched, 0644); err != nil {
		return false, fmt.Errorf("write patched bundle: %w", err)
	}

	log.Info().Str("bundle", bundle).Msg("Patched extension bundle")
	return true, nil
}

// findBundle locates the extension's main bundle below the versioned install
// directory. The newest installed version wins.
func findBundle(extensionsDir, extensionID string) (string, error) {
	if extensionID == "" {
		return "", fmt.Errorf("extension id not configured")
	}

	dirs, err := filepath.Glob(filepath.Join(extensionsDir, strings.ToLower(extensionID)+"-*"))
	if err != nil || len(dirs) == 0 {
		return "", nil
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))

	candidates := []string{
		filepath.Join("dist", "extension.js"),
		filepath.Join("out", "extension.js"),
		"extension.js",
	}
	for _, dir := range dirs {
		for _, rel := range candidates {
			path := filepath.Join(dir, rel)
			if info, err := os.Stat(path); err == nil && !info.IsDir() {
				return path, nil
			}
		}
	}

	return "", nil
}
