package config

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// Watcher reloads the config file on change and hands the fresh Config to the
// callback. Reload failures keep the previous configuration.
type Watcher struct {
	path     string
	onReload func(*Config)
	stopCh   chan struct{}
}

// NewWatcher starts watching path. onReload runs on the watcher goroutine.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, err
	}
	// Watch the directory too, to catch atomic writes (rename operations).
	if err := fw.Add(filepath.Dir(path)); err != nil {
		log.WithError(err).WithField("dir", filepath.Dir(path)).Warn("failed to watch config directory")
	}

	w := &Watcher{path: path, onReload: onReload, stopCh: make(chan struct{})}
	go w.run(fw)
	log.WithField("path", path).Info("config watcher started")
	return w, nil
}

func (w *Watcher) run(fw *fsnotify.Watcher) {
	defer fw.Close()

	var debounce *time.Timer
	for {
		select {
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Name != w.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(100*time.Millisecond, w.reload)
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			log.WithError(err).Warn("config watcher error")
		case <-w.stopCh:
			if debounce != nil {
				debounce.Stop()
			}
			return
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := LoadWithFile(w.path)
	if err != nil {
		log.WithError(err).Warn("config reload failed, keeping previous configuration")
		return
	}
	log.WithField("path", w.path).Info("config reloaded")
	w.onReload(cfg)
}

// Stop halts the watcher.
func (w *Watcher) Stop() { close(w.stopCh) }
