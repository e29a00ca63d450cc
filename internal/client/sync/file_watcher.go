package sync

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	DefaultPollInterval   = time.Second
	DefaultStatRetryDelay = time.Second
	eventBufferSize       = 64
)

type EventKind uint8

const (
	EventAdded EventKind = iota + 1
	EventRemoved
	EventChanged
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventChanged:
		return "changed"
	default:
		return fmt.Sprintf("???(%d)", k)
	}
}

type Event struct {
	Kind EventKind
	Path string
}

// FilterCallback is a function that returns true if the path should be filtered
type FilterCallback func(path string) bool

// FileWatcher polls the watched directory. Additions and removals come from
// the difference between consecutive listings, modifications from mtimes.
type FileWatcher struct {
	watchDir       string
	pollInterval   time.Duration
	statRetryDelay time.Duration
	events         chan Event

	mu      sync.Mutex
	watched mapset.Set[string]
	mtimes  map[string]int64

	ignoreCallback FilterCallback
	callbackMu     sync.RWMutex
}

func NewFileWatcher(watchDir string) *FileWatcher {
	return &FileWatcher{
		watchDir:       watchDir,
		pollInterval:   DefaultPollInterval,
		statRetryDelay: DefaultStatRetryDelay,
		events:         make(chan Event, eventBufferSize),
		watched:        mapset.NewThreadUnsafeSet[string](),
		mtimes:         make(map[string]int64),
	}
}

func (fw *FileWatcher) SetPollInterval(interval time.Duration) {
	fw.pollInterval = interval
}

func (fw *FileWatcher) SetStatRetryDelay(delay time.Duration) {
	fw.statRetryDelay = delay
}

// FilterPaths sets a callback that hides paths from the watcher.
func (fw *FileWatcher) FilterPaths(callback FilterCallback) {
	fw.callbackMu.Lock()
	defer fw.callbackMu.Unlock()
	fw.ignoreCallback = callback
}

func (fw *FileWatcher) filtered(path string) bool {
	fw.callbackMu.RLock()
	defer fw.callbackMu.RUnlock()
	return fw.ignoreCallback != nil && fw.ignoreCallback(path)
}

func (fw *FileWatcher) Events() <-chan Event {
	return fw.events
}

// Seed takes the initial listing without reporting anything.
func (fw *FileWatcher) Seed() error {
	_, err := fw.Poll()
	return err
}

// Poll lists the directory and reports every path that appeared or vanished
// since the previous listing.
func (fw *FileWatcher) Poll() ([]Event, error) {
	files, err := ScanDir(fw.watchDir, fw.filtered)
	if err != nil {
		return nil, err
	}

	current := mapset.NewThreadUnsafeSetWithSize[string](len(files))
	for _, f := range files {
		current.Add(f.Path)
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	diff := current.SymmetricDifference(fw.watched).ToSlice()
	sort.Strings(diff)

	events := make([]Event, 0, len(diff))
	for _, path := range diff {
		if current.Contains(path) {
			fw.watched.Add(path)
			events = append(events, Event{Kind: EventAdded, Path: path})
		} else {
			fw.watched.Remove(path)
			delete(fw.mtimes, path)
			events = append(events, Event{Kind: EventRemoved, Path: path})
		}
	}
	return events, nil
}

// PollModifications stats every watched file and reports the first one whose
// mtime moved forward. Files seen for the first time only record a baseline.
// A file that cannot be stat'ed twice in a row is reported as removed.
func (fw *FileWatcher) PollModifications(ctx context.Context) (Event, bool) {
	fw.mu.Lock()
	paths := fw.watched.ToSlice()
	fw.mu.Unlock()
	sort.Strings(paths)

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			// changed and removed race each other, give it one more chance
			select {
			case <-ctx.Done():
				return Event{}, false
			case <-time.After(fw.statRetryDelay):
			}
			info, err = os.Stat(path)
		}

		fw.mu.Lock()
		if err != nil {
			fw.watched.Remove(path)
			delete(fw.mtimes, path)
			fw.mu.Unlock()
			return Event{Kind: EventRemoved, Path: path}, true
		}

		mtime := modTime(info)
		last, seen := fw.mtimes[path]
		fw.mtimes[path] = max(mtime, last)
		fw.mu.Unlock()

		if seen && mtime > last {
			return Event{Kind: EventChanged, Path: path}, true
		}
	}

	return Event{}, false
}

// Run polls every poll interval until ctx is done, then closes the events channel.
func (fw *FileWatcher) Run(ctx context.Context) error {
	slog.Info("file watcher start", "dir", fw.watchDir, "interval", fw.pollInterval)
	defer close(fw.events)

	ticker := time.NewTicker(fw.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("file watcher stopped")
			return nil
		case <-ticker.C:
		}

		events, err := fw.Poll()
		if err != nil {
			slog.Warn("file watcher poll", "error", err)
			continue
		}
		if ev, ok := fw.PollModifications(ctx); ok {
			events = append(events, ev)
		}

		for _, ev := range events {
			select {
			case fw.events <- ev:
				slog.Debug("file watcher", "event", ev.Kind, "path", ev.Path)
			default:
				// a full channel already guarantees another cycle
				slog.Warn("file watcher dropped", "reason", "channel full", "path", ev.Path)
			}
		}
	}
}
