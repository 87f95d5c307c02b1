package harness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultSettle is how long a watcher waits after the last relevant event
// before it reports a change. Editors often write a file in several steps.
const DefaultSettle = 100 * time.Millisecond

// Watcher reports edits to scenario and declaration files.
type Watcher struct {
	fsw    *fsnotify.Watcher
	settle time.Duration
}

// NewWatcher watches every directory under each root. Roots that are files
// watch their parent directory. Hidden directories are skipped.
func NewWatcher(roots ...string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	w := &Watcher{fsw: fsw, settle: DefaultSettle}
	for _, root := range roots {
		if err := w.addTree(root); err != nil {
			fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			if path == root {
				return w.fsw.Add(filepath.Dir(path))
			}
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}

// Run calls onChange with the last changed path once events settle. It
// blocks until ctx is done, returning nil, or until the watcher fails.
func (w *Watcher) Run(ctx context.Context, onChange func(path string)) error {
	var (
		timer   *time.Timer
		fire    <-chan time.Time
		pending string
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) && w.newDir(event.Name) {
				if err := w.addTree(event.Name); err != nil && !errors.Is(err, fs.ErrNotExist) {
					return err
				}
				// Files written before the directory was added raise no events.
				path, found := firstRelevant(event.Name)
				if !found {
					continue
				}
				pending = path
			} else if relevantEvent(event) {
				pending = event.Name
			} else {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.settle)
			} else {
				timer.Reset(w.settle)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			onChange(pending)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				onChange("")
				continue
			}
			return fmt.Errorf("watcher: %w", err)
		}
	}
}

// newDir reports whether path is a directory that should be watched.
func (w *Watcher) newDir(path string) bool {
	if strings.HasPrefix(filepath.Base(path), ".") {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func firstRelevant(dir string) (string, bool) {
	var found string
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if relevantEvent(fsnotify.Event{Name: path, Op: fsnotify.Create}) {
			found = path
			return filepath.SkipAll
		}
		return nil
	})
	return found, found != ""
}

// relevantEvent reports whether an event touches a scenario or declaration
// file. Chmod-only events and hidden files are ignored.
func relevantEvent(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	base := filepath.Base(event.Name)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch filepath.Ext(base) {
	case ".yaml", ".yml", ".cue":
		return true
	}
	return false
}
