// Package fileutil provides file system utilities.
package fileutil

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// Exists checks if a path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir checks if a path is a directory.
func IsDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// IsFile checks if a path is a regular file.
func IsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}

// WriteFile writes content to a file, creating parent directories.
func WriteFile(path string, content []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0644)
}

// CopyFile copies a file, creating parent directories of the destination.
func CopyFile(src, dst string) error {
	content, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return WriteFile(dst, content)
}

// CopyDir recursively copies a directory tree. Symlinks are skipped; the
// index artifacts being copied never contain them.
func CopyDir(src, dst string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		if d.IsDir() {
			return EnsureDir(target)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := CopyFile(path, target); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		return nil
	})
}
