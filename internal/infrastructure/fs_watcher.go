package infrastructure

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	"paladin/internal/domain"
)

// DefaultEventQueueSize bounds the events waiting for the monitor.
const DefaultEventQueueSize = 2000

// FSWatcher turns fsnotify notifications for a directory tree into domain
// file events on a bounded queue. When the queue is full the producer waits.
type FSWatcher struct {
	root      string
	queueSize int
	logger    zerolog.Logger

	watcher *fsnotify.Watcher
	events  chan domain.FileEvent
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool

	// Statistics
	stats struct {
		received    int
		delivered   int
		ignored     int
		dirsWatched int
		errors      int
	}
}

// NewFSWatcher creates a watcher for root.
func NewFSWatcher(root string, queueSize int, logger zerolog.Logger) *FSWatcher {
	if queueSize <= 0 {
		queueSize = DefaultEventQueueSize
	}
	return &FSWatcher{
		root:      filepath.Clean(root),
		queueSize: queueSize,
		logger:    logger.With().Str("component", "watcher").Logger(),
		events:    make(chan domain.FileEvent, queueSize),
		stopCh:    make(chan struct{}),
	}
}

// Events returns the queue. It is closed once the watcher has stopped.
func (fw *FSWatcher) Events() <-chan domain.FileEvent {
	return fw.events
}

// Start registers the tree and begins forwarding events.
func (fw *FSWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	if fw.running {
		fw.mu.Unlock()
		return fmt.Errorf("filesystem watcher already running")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		fw.mu.Unlock()
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	fw.watcher = watcher
	fw.running = true
	fw.mu.Unlock()

	if err := fw.addTree(fw.root, nil); err != nil {
		fw.mu.Lock()
		fw.running = false
		fw.mu.Unlock()
		watcher.Close()
		return err
	}

	fw.mu.RLock()
	watched := fw.stats.dirsWatched
	fw.mu.RUnlock()
	fw.logger.Info().Str("root", fw.root).Int("directories", watched).Int("queue_size", fw.queueSize).Msg("filesystem watcher started")

	fw.wg.Add(1)
	go fw.run(ctx)
	return nil
}

// Stop ends the watch loop and waits for it.
func (fw *FSWatcher) Stop() {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return
	}
	fw.running = false
	close(fw.stopCh)
	fw.mu.Unlock()

	fw.wg.Wait()
	fw.watcher.Close()
	fw.logger.Info().Msg("filesystem watcher stopped")
}

func (fw *FSWatcher) run(ctx context.Context) {
	defer fw.wg.Done()
	defer close(fw.events)

	for {
		select {
		case <-ctx.Done():
			return
		case <-fw.stopCh:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.handle(ctx, event) {
				return
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.mu.Lock()
			fw.stats.errors++
			fw.mu.Unlock()
			fw.logger.Error().Err(err).Msg("filesystem watcher error")
		}
	}
}

// handle returns false when the watcher was stopped while delivering.
func (fw *FSWatcher) handle(ctx context.Context, event fsnotify.Event) bool {
	fw.mu.Lock()
	fw.stats.received++
	fw.mu.Unlock()

	if fw.inSnapshotTree(event.Name) {
		fw.countIgnored()
		return true
	}

	var kind domain.EventKind
	switch {
	case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
		kind = domain.EventRemove
	case event.Has(fsnotify.Create):
		kind = domain.EventCreate
	case event.Has(fsnotify.Write):
		kind = domain.EventModify
	default:
		fw.countIgnored()
		return true
	}

	if kind == domain.EventCreate {
		if info, err := os.Lstat(event.Name); err == nil && info.IsDir() {
			// files may land in a new directory before it is watched
			var found []string
			if err := fw.addTree(event.Name, &found); err != nil {
				fw.logger.Warn().Err(err).Str("dir", event.Name).Msg("failed to watch new directory")
			}
			for _, path := range found {
				if !fw.deliver(ctx, domain.NewFileEvent(path, domain.EventCreate)) {
					return false
				}
			}
			return true
		}
	}

	return fw.deliver(ctx, domain.NewFileEvent(event.Name, kind))
}

func (fw *FSWatcher) deliver(ctx context.Context, fe domain.FileEvent) bool {
	select {
	case fw.events <- fe:
		fw.mu.Lock()
		fw.stats.delivered++
		fw.mu.Unlock()
		return true
	case <-fw.stopCh:
		return false
	case <-ctx.Done():
		return false
	}
}

// addTree watches dir and every directory below it except the snapshot
// subtree. When files is not nil the regular files found are appended to it.
func (fw *FSWatcher) addTree(dir string, files *[]string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return fmt.Errorf("failed to walk %s: %w", dir, err)
			}
			fw.logger.Warn().Err(err).Str("path", path).Msg("skipping unreadable path")
			return nil
		}

		if d.IsDir() {
			if fw.inSnapshotTree(path) {
				return fs.SkipDir
			}
			if err := fw.watcher.Add(path); err != nil {
				if path == dir {
					return fmt.Errorf("failed to watch %s: %w", path, err)
				}
				fw.logger.Warn().Err(err).Str("dir", path).Msg("failed to watch directory")
				return nil
			}
			fw.mu.Lock()
			fw.stats.dirsWatched++
			fw.mu.Unlock()
			return nil
		}

		if files != nil && d.Type().IsRegular() {
			*files = append(*files, path)
		}
		return nil
	})
}

func (fw *FSWatcher) inSnapshotTree(path string) bool {
	return domain.InSnapshotTree(fw.root, path)
}

func (fw *FSWatcher) countIgnored() {
	fw.mu.Lock()
	fw.stats.ignored++
	fw.mu.Unlock()
}

// GetStats returns watcher statistics.
func (fw *FSWatcher) GetStats() map[string]interface{} {
	fw.mu.RLock()
	defer fw.mu.RUnlock()

	return map[string]interface{}{
		"running":      fw.running,
		"received":     fw.stats.received,
		"delivered":    fw.stats.delivered,
		"ignored":      fw.stats.ignored,
		"dirs_watched": fw.stats.dirsWatched,
		"errors":       fw.stats.errors,
		"queue_depth":  len(fw.events),
		"queue_size":   fw.queueSize,
	}
}
