// Package readiness decides when an externally-controlled background task
// has completed by watching its log output.
//
// The package owns a small retry/timeout state machine: a Poller periodically
// reads a Signal (the raw log text), derives a Status from it, and decides
// whether to keep waiting, re-fire the triggering action once, extend the
// wait, or give up. It is the core of the prewarm tool; everything around it
// (spawning code-server, driving the browser, copying artifacts) is glue that
// the poller calls into.
package readiness

import (
	"os"
	"path/filepath"
	"sort"
)

// Signal is a raw, append-only snapshot of an external log. It is read fresh
// on every poll; an absent log yields an empty Signal, never an error.
type Signal string

// SignalSource produces the latest Signal on demand.
type SignalSource interface {
	// Read returns the current signal content. Absence of the underlying
	// log is expected, not exceptional, and yields an empty Signal.
	Read() Signal
}

// SignalSourceFunc adapts a function to the SignalSource interface.
type SignalSourceFunc func() Signal

// Read implements SignalSource.
func (f SignalSourceFunc) Read() Signal { return f() }

// FileSignalSource reads the most recent of several candidate log locations.
// Candidates are glob patterns relative to a base directory; sessions are
// namespaced by timestamped directories, so within each pattern the matches
// are ordered most-recent-first and the first existing file wins.
type FileSignalSource struct {
	// BaseDir is the directory the patterns are resolved against.
	BaseDir string

	// Patterns are glob patterns tried in order. Within a pattern, matches
	// are sorted descending so the newest session directory is tried first.
	Patterns []string
}

// DefaultLogPatterns are the candidate extension host log locations under a
// code-server user-data directory, newest session first.
func DefaultLogPatterns(channel string) []string {
	return []string{
		filepath.Join("logs", "*", "window*", "exthost", "output_logging_*", "*-"+channel+".log"),
		filepath.Join("logs", "*", "exthost.log"),
	}
}

// NewFileSignalSource creates a source over the given base directory and
// candidate patterns.
func NewFileSignalSource(baseDir string, patterns []string) *FileSignalSource {
	return &FileSignalSource{BaseDir: baseDir, Patterns: patterns}
}

// Read returns the full content of the first existing candidate, or an empty
// Signal when no candidate exists yet. Read errors degrade to empty as well;
// the poller treats absence and unreadability the same way.
func (s *FileSignalSource) Read() Signal {
	if path := s.Resolve(); path != "" {
		if data, err := os.ReadFile(path); err == nil {
			return Signal(data)
		}
	}
	return ""
}

// Resolve returns the path of the current best candidate log file, or empty
// when none exists.
func (s *FileSignalSource) Resolve() string {
	for _, pattern := range s.Patterns {
		matches, err := filepath.Glob(filepath.Join(s.BaseDir, pattern))
		if err != nil || len(matches) == 0 {
			continue
		}
		// Session directories are timestamped; lexicographic descending
		// order puts the newest session first.
		sort.Sort(sort.Reverse(sort.StringSlice(matches)))
		for _, m := range matches {
			if info, err := os.Stat(m); err == nil && !info.IsDir() {
				return m
			}
		}
	}
	return ""
}
