package decl

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/openfroyo/confeval/pkg/telemetry"
)

// DefaultDebounce is the quiet period before a change triggers a reload.
const DefaultDebounce = 300 * time.Millisecond

// Watcher re-runs a reload function when declaration, overlay or policy
// files change. Editors that replace files on save are handled by watching the
// parent directories and filtering events by path. Directories are watched
// with every subdirectory. Reloads run one at a time on the goroutine that
// calls Run.
type Watcher struct {
	Debounce time.Duration

	logger  *telemetry.Logger
	watcher *fsnotify.Watcher
	files   map[string]bool
	pkgs    map[string]bool
	roots   int
}

// NewWatcher watches the given files and directories.
func NewWatcher(paths []string, logger *telemetry.Logger) (*Watcher, error) {
	if logger == nil {
		logger = telemetry.Nop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	w := &Watcher{
		Debounce: DefaultDebounce,
		logger:   logger.NewComponentLogger("watch"),
		watcher:  fw,
		files:    make(map[string]bool),
		pkgs:     make(map[string]bool),
	}

	dirs := make(map[string]bool)
	for _, path := range paths {
		abs, err := filepath.Abs(path)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}
		if info.IsDir() {
			w.roots++
			if err := w.addTree(abs); err != nil {
				_ = fw.Close()
				return nil, err
			}
			continue
		}
		w.files[abs] = true
		dirs[filepath.Dir(abs)] = true
	}
	for dir := range dirs {
		if w.pkgs[dir] {
			continue
		}
		if err := fw.Add(dir); err != nil {
			_ = fw.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return w, nil
}

// addTree watches root and every directory below it as package directories.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() || w.pkgs[path] {
			return nil
		}
		if err := w.watcher.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		w.pkgs[path] = true
		return nil
	})
}

// Run calls reload after every debounced change until ctx is cancelled.
// Reload errors are logged and do not stop the watcher. Run returns only
// after a reload in progress has finished.
func (w *Watcher) Run(ctx context.Context, reload func(context.Context) error) error {
	defer w.watcher.Close()

	var (
		timer *time.Timer
		fire  <-chan time.Time
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	w.logger.Infof("watching %d file(s) and %d package(s) for changes", len(w.files), w.roots)
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-fire:
			fire = nil
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Info("reloading declarations")
			if err := reload(ctx); err != nil {
				w.logger.WithError(err).Error("reload failed")
			}

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.track(event)
			if !w.relevant(event) {
				continue
			}
			w.logger.WithFields(map[string]interface{}{
				"file": event.Name,
				"op":   event.Op.String(),
			}).Debug("declaration file changed")
			if timer == nil {
				timer = time.NewTimer(w.Debounce)
			} else {
				timer.Reset(w.Debounce)
			}
			fire = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.WithError(err).Error("watcher error")
		}
	}
}

// track starts watching directories created inside a package directory.
func (w *Watcher) track(event fsnotify.Event) {
	if !event.Has(fsnotify.Create) || !w.pkgs[filepath.Dir(event.Name)] {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil || !info.IsDir() {
		return
	}
	if err := w.addTree(event.Name); err != nil {
		w.logger.WithError(err).Warn("failed to watch new directory")
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if w.files[abs] {
		return true
	}
	switch filepath.Ext(abs) {
	case ".cue", ".rego":
		return w.pkgs[filepath.Dir(abs)]
	}
	return false
}
