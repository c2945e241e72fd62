package commons

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// SettingsWatcher reloads a settings file whenever it is written.
type SettingsWatcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Settings)
	done     chan struct{}
}

// WatchSettings starts watching path and calls onChange with every
// successfully parsed revision. Invalid revisions are logged and skipped.
func WatchSettings(path string, onChange func(*Settings)) (*SettingsWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	//editors often replace the file instead of writing it, so watch the directory
	if err := fsWatcher.Add(filepath.Dir(path)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &SettingsWatcher{
		path:     filepath.Clean(path),
		watcher:  fsWatcher,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *SettingsWatcher) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			settings, err := LoadSettings(w.path)
			if err != nil {
				log.Warn("[Settings] Ignoring invalid revision of ", w.path, ": ", err.Error())
				continue
			}
			log.Info("[Settings] Reloaded ", w.path)
			w.onChange(settings)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("[Settings] Watch error: ", err.Error())
		case <-w.done:
			return
		}
	}
}

// Close stops watching.
func (w *SettingsWatcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
