package orchestrator

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// SignalWatcher watches the signals directory for cancel/pause files
// dropped by an operator. The orchestrator checks it between workflow
// steps only: a step is never interrupted once its side-effecting call
// may have started.
type SignalWatcher struct {
	dir string

	mu     sync.RWMutex
	cancel bool
	pause  bool

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewSignalWatcher creates a watcher over dir (created if missing). A
// failed fsnotify setup is not fatal: the stat fallback in Cancelled and
// Paused still works.
func NewSignalWatcher(dir string) (*SignalWatcher, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	sw := &SignalWatcher{
		dir:  dir,
		done: make(chan struct{}),
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return sw, nil
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return sw, nil
	}
	sw.watcher = watcher
	go sw.watch()

	return sw, nil
}

func (sw *SignalWatcher) watch() {
	for {
		select {
		case <-sw.done:
			return
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			sw.mu.Lock()
			switch filepath.Base(event.Name) {
			case "cancel":
				sw.cancel = true
			case "pause":
				sw.pause = true
			}
			sw.mu.Unlock()
		case <-sw.watcher.Errors:
			// Keep watching.
		}
	}
}

// signalled checks the flag, falling back to a stat in case the watcher
// missed the event.
func (sw *SignalWatcher) signalled(name string, flag *bool) bool {
	if _, err := os.Stat(filepath.Join(sw.dir, name)); err == nil {
		sw.mu.Lock()
		*flag = true
		sw.mu.Unlock()
	}
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return *flag
}

// Cancelled reports whether a cancel signal has been received.
func (sw *SignalWatcher) Cancelled() bool {
	return sw.signalled("cancel", &sw.cancel)
}

// Paused reports whether a pause signal is in effect. Removing the pause
// file resumes.
func (sw *SignalWatcher) Paused() bool {
	if _, err := os.Stat(filepath.Join(sw.dir, "pause")); err != nil {
		sw.mu.Lock()
		sw.pause = false
		sw.mu.Unlock()
		return false
	}
	sw.mu.RLock()
	defer sw.mu.RUnlock()
	return true
}

// Clear removes signal files and resets state.
func (sw *SignalWatcher) Clear() {
	sw.mu.Lock()
	sw.cancel = false
	sw.pause = false
	sw.mu.Unlock()
	os.Remove(filepath.Join(sw.dir, "cancel"))
	os.Remove(filepath.Join(sw.dir, "pause"))
}

// Close shuts the watcher down.
func (sw *SignalWatcher) Close() {
	close(sw.done)
	if sw.watcher != nil {
		sw.watcher.Close()
	}
}
