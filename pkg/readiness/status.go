package readiness

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Markers is the contract table of log phrasings the extension emits. The
// matching is a de facto IPC protocol over log scraping and is therefore
// fragile by nature; keeping the phrasings in one value makes them swappable
// when the extension changes wording without touching the state machine.
type Markers struct {
	// StartupBanner indicates the engine process came up.
	StartupBanner string

	// UnitCount captures the discovered work count, e.g. "Found 2885 source files".
	UnitCount *regexp.Regexp

	// WorkerPool and WorkerStarted must BOTH be present for the background
	// worker pool to count as up.
	WorkerPool    string
	WorkerStarted string

	// IndexingPhase indicates the indexing sub-phase began.
	IndexingPhase string

	// Completion holds the accepted completion phrasings; any one suffices.
	Completion []string
}

// DefaultMarkers matches the current log output of the code-intelligence
// extension. Version-pinned: new extension releases may rephrase these.
func DefaultMarkers() Markers {
	return Markers{
		StartupBanner: "code intelligence engine starting",
		UnitCount:     regexp.MustCompile(`Found (\d+) source files`),
		WorkerPool:    "background worker pool",
		WorkerStarted: "started",
		IndexingPhase: "indexing source files",
		Completion: []string{
			"indexing complete",
			"index is up to date",
			"finished writing index",
		},
	}
}

// Status is a pure derivation of a Signal. It is idempotent and re-derivable
// at any time; no history is kept.
type Status struct {
	// Started reports the engine's startup banner was observed.
	Started bool

	// BackgroundReady reports the worker pool came up and at least one unit
	// of work was discovered.
	BackgroundReady bool

	// Indexing reports the indexing sub-phase marker was observed.
	Indexing bool

	// IndexDone reports a completion marker was observed.
	IndexDone bool

	// UnitCount is the number of discovered source files, 0 if not yet logged.
	UnitCount int
}

// Derive computes the Status for a signal. Missing markers and malformed
// counts degrade to zero values; derivation never fails.
func (m Markers) Derive(sig Signal) Status {
	text := string(sig)

	var st Status
	st.Started = strings.Contains(text, m.StartupBanner)

	if match := m.UnitCount.FindStringSubmatch(text); match != nil {
		if n, err := strconv.Atoi(match[1]); err == nil {
			st.UnitCount = n
		}
	}

	st.BackgroundReady = strings.Contains(text, m.WorkerPool) &&
		strings.Contains(text, m.WorkerStarted) &&
		st.UnitCount > 0

	st.Indexing = strings.Contains(text, m.IndexingPhase)

	for _, phrase := range m.Completion {
		if strings.Contains(text, phrase) {
			st.IndexDone = true
			break
		}
	}

	return st
}

// String renders the status for transition logging; the poller de-duplicates
// on this rendering.
func (s Status) String() string {
	return fmt.Sprintf("started=%v backgroundReady=%v indexing=%v indexDone=%v files=%d",
		s.Started, s.BackgroundReady, s.Indexing, s.IndexDone, s.UnitCount)
}
