package settings

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/ZawYePhyo/Handy/log"
	"github.com/ZawYePhyo/Handy/notify"
)

// Watcher turns external edits of the settings file into a store refresh
// plus a settings invalidation signal. The directory is watched rather
// than the file because editors and atomic saves replace the inode.
type Watcher struct {
	fw   *fsnotify.Watcher
	done chan struct{}
	wg   sync.WaitGroup
}

func Watch(store *Store, hub *notify.Hub) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(store.Path())); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch settings directory: %w", err)
	}

	w := &Watcher{fw: fw, done: make(chan struct{})}
	base := filepath.Base(store.Path())

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for {
			select {
			case ev, ok := <-fw.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if _, err := store.Refresh(); err != nil {
					log.Warnf("settings refresh after file change failed: %v", err)
					continue
				}
				hub.Emit(notify.TopicSettings)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				log.Warnf("settings watcher: %v", err)
			case <-w.done:
				return
			}
		}
	}()
	return w, nil
}

func (w *Watcher) Close() {
	close(w.done)
	w.fw.Close()
	w.wg.Wait()
}
