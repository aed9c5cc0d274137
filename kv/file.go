package kv

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// File is the fallback storage area: one JSON file per key in a directory.
// A directory watcher surfaces changes made by other processes, so a
// degraded instance still observes cross-process mutations.
type File struct {
	dir     string
	watcher *fsnotify.Watcher
	notifier

	mu         sync.Mutex
	selfWrites map[string]int
	closed     chan struct{}
}

// OpenFile opens (creating if needed) the fallback area at dir.
func OpenFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("fsnotify: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}
	f := &File{
		dir:        dir,
		watcher:    watcher,
		selfWrites: make(map[string]int),
		closed:     make(chan struct{}),
	}
	go f.watch()
	return f, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

func (f *File) Get(key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	return data, nil
}

func (f *File) Set(key string, value []byte) error {
	old, err := f.Get(key)
	if err != nil {
		return err
	}
	path := f.path(key)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, value, 0o644); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	f.markSelf(filepath.Base(path))
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	f.notify(Change{Key: key, OldValue: old, NewValue: value})
	return nil
}

func (f *File) Remove(key string) error {
	old, err := f.Get(key)
	if err != nil {
		return err
	}
	path := f.path(key)
	f.markSelf(filepath.Base(path))
	err = os.Remove(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("remove %q: %w", key, err)
	}
	f.notify(Change{Key: key, OldValue: old})
	return nil
}

func (f *File) Subscribe(fn func(Change)) func() {
	return f.subscribe(fn)
}

func (f *File) Close() error {
	select {
	case <-f.closed:
		return nil
	default:
	}
	close(f.closed)
	return f.watcher.Close()
}

func (f *File) markSelf(name string) {
	f.mu.Lock()
	f.selfWrites[name]++
	f.mu.Unlock()
}

// consumeSelf reports whether the event for name was caused by this
// process; those are already delivered synchronously by Set and Remove.
func (f *File) consumeSelf(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selfWrites[name] > 0 {
		f.selfWrites[name]--
		return true
	}
	return false
}

func (f *File) watch() {
	for {
		select {
		case <-f.closed:
			return
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			f.handleEvent(event)
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *File) handleEvent(event fsnotify.Event) {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, ".json") {
		return
	}
	if !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Remove) {
		return
	}
	if f.consumeSelf(name) {
		return
	}
	key := strings.TrimSuffix(name, ".json")
	if event.Op.Has(fsnotify.Remove) {
		f.notify(Change{Key: key})
		return
	}
	value, err := os.ReadFile(event.Name)
	if err != nil {
		return
	}
	f.notify(Change{Key: key, NewValue: value})
}
