// Package logtail follows the extension host log and republishes appended
// lines as events, so the status page can stream the extension's output
// while the index warms.
package logtail

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ternarybob/prewarm/internal/api"
	"github.com/ternarybob/prewarm/internal/logger"
	"github.com/ternarybob/prewarm/pkg/readiness"
)

// Follower tails the resolved extension host log. The log file does not
// exist when the warm run starts (the session directory is created by the
// editor later), so resolution is retried until a candidate appears; after
// that, fsnotify write events and a coarse ticker both drive draining.
type Follower struct {
	source  *readiness.FileSignalSource
	hub     *api.Hub
	watcher *fsnotify.Watcher

	// tick is the fallback drain cadence; tests shorten it.
	tick time.Duration

	running bool
	stopCh  chan struct{}
	mu      sync.Mutex

	// Tail state, owned by the run goroutine.
	path    string
	offset  int64
	partial []byte
}

// NewFollower creates a follower over the given signal source.
func NewFollower(source *readiness.FileSignalSource, hub *api.Hub) (*Follower, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Follower{
		source:  source,
		hub:     hub,
		watcher: fsWatcher,
		tick:    500 * time.Millisecond,
		stopCh:  make(chan struct{}),
	}, nil
}

// Start begins following in the background.
func (f *Follower) Start() {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return
	}
	f.running = true
	f.mu.Unlock()

	go f.run()
}

// Stop stops the follower.
func (f *Follower) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.running {
		return nil
	}
	f.running = false
	close(f.stopCh)

	return f.watcher.Close()
}

func (f *Follower) run() {
	ticker := time.NewTicker(f.tick)
	defer ticker.Stop()

	for {
		select {
		case <-f.stopCh:
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if event.Name == f.path && event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				f.drain()
			}

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			logger.GetLogger().Warn().Err(err).Msg("Log follower watch error")

		case <-ticker.C:
			f.drain()
		}
	}
}

// drain resolves the log file if needed and emits any appended lines.
func (f *Follower) drain() {
	if f.path == "" {
		f.path = f.source.Resolve()
		if f.path == "" {
			return
		}
		// Watch the containing directory; watching the file itself breaks
		// when the editor rotates it.
		if err := f.watcher.Add(filepath.Dir(f.path)); err != nil {
			logger.GetLogger().Warn().Err(err).Str("path", f.path).Msg("Cannot watch log directory")
		}
	}

	file, err := os.Open(f.path)
	if err != nil {
		return
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil || info.Size() <= f.offset {
		return
	}

	if _, err := file.Seek(f.offset, 0); err != nil {
		return
	}

	buf := make([]byte, info.Size()-f.offset)
	n, err := file.Read(buf)
	if n == 0 && err != nil {
		return
	}
	f.offset += int64(n)

	data := append(f.partial, buf[:n]...)
	lines := bytes.Split(data, []byte("\n"))

	// The last element is an unterminated partial line; hold it back.
	f.partial = append([]byte(nil), lines[len(lines)-1]...)
	for _, line := range lines[:len(lines)-1] {
		if len(line) == 0 {
			continue
		}
		f.hub.Emit(api.NewEvent(api.EventLogLine).WithData("line", string(line)))
	}
}
