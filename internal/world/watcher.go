package world

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/scrypster/lorewiki/internal/logger"
)

// ConfigWatcher watches world directories and reports the world whose
// world.yaml changed or whose directory was removed.
type ConfigWatcher struct {
	callback func(world string)
	watcher  *fsnotify.Watcher
	log      *logger.Logger
	done     chan struct{}

	mu    sync.Mutex
	names map[string]string // dir -> world
}

// NewConfigWatcher starts a watcher with no directories.
func NewConfigWatcher(callback func(world string), log *logger.Logger) (*ConfigWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	cw := &ConfigWatcher{
		callback: callback,
		watcher:  w,
		log:      log,
		done:     make(chan struct{}),
		names:    make(map[string]string),
	}
	go cw.loop()
	return cw, nil
}

// Stop shuts down the watcher and waits for its loop to exit.
func (cw *ConfigWatcher) Stop() {
	_ = cw.watcher.Close()
	<-cw.done
}

func (cw *ConfigWatcher) add(world, dir string) {
	cw.mu.Lock()
	cw.names[dir] = world
	cw.mu.Unlock()
	if err := cw.watcher.Add(dir); err != nil {
		cw.log.Warn("world: cannot watch directory", "world", world, "dir", dir, "error", err)
	}
}

func (cw *ConfigWatcher) remove(dir string) {
	cw.mu.Lock()
	delete(cw.names, dir)
	cw.mu.Unlock()
	_ = cw.watcher.Remove(dir)
}

func (cw *ConfigWatcher) loop() {
	defer close(cw.done)
	for {
		select {
		case evt, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			dir, ok := cw.eventDir(evt)
			if !ok {
				continue
			}
			cw.mu.Lock()
			world, known := cw.names[dir]
			cw.mu.Unlock()
			if known && cw.callback != nil {
				cw.callback(world)
			}
		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			cw.log.Warn("world: watcher error", "error", err)
		}
	}
}

// eventDir returns the world directory evt concerns: the parent of a
// world.yaml event, or the directory itself when it was removed.
func (cw *ConfigWatcher) eventDir(evt fsnotify.Event) (string, bool) {
	if filepath.Base(evt.Name) == ConfigFile {
		return filepath.Dir(evt.Name), true
	}
	if evt.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		cw.mu.Lock()
		_, watched := cw.names[evt.Name]
		cw.mu.Unlock()
		return evt.Name, watched
	}
	return "", false
}
