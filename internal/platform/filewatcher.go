/*
Copyright © 2025 dyncheckd contributors

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with this program. If not, see <http://www.gnu.org/licenses/>.
*/
// Package platform wraps OS-level file watching behind a small interface,
// so the server and its tests don't depend on fsnotify directly.
package platform

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher abstracts watching a set of paths for changes.
type FileWatcher interface {
	Add(name string) error
	Remove(name string) error
	Close() error
	Events() <-chan FileWatchEvent
	Errors() <-chan error
}

// FileWatchEvent is one filesystem change, translated from the
// implementation-specific event shape.
type FileWatchEvent struct {
	Name string
	Op   WatchOp
}

// WatchOp is a bitmask of the filesystem operations FileWatchEvent can carry.
type WatchOp uint32

const (
	Create WatchOp = 1 << iota
	Write
	Remove
	Rename
	Chmod
)

func (op WatchOp) String() string {
	switch {
	case op&Create != 0:
		return "CREATE"
	case op&Write != 0:
		return "WRITE"
	case op&Remove != 0:
		return "REMOVE"
	case op&Rename != 0:
		return "RENAME"
	case op&Chmod != 0:
		return "CHMOD"
	default:
		return ""
	}
}

// FSNotifyFileWatcher is the production FileWatcher, backed by fsnotify.
type FSNotifyFileWatcher struct {
	watcher *fsnotify.Watcher
	events  chan FileWatchEvent
	errors  chan error

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewFSNotifyFileWatcher starts the translation goroutine and returns a
// ready-to-use watcher; call Add for each path or directory to watch.
func NewFSNotifyFileWatcher() (*FSNotifyFileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}

	fw := &FSNotifyFileWatcher{
		watcher: watcher,
		events:  make(chan FileWatchEvent, 100),
		errors:  make(chan error, 10),
		done:    make(chan struct{}),
	}

	fw.wg.Add(1)
	go func() {
		defer fw.wg.Done()
		fw.translateEvents()
	}()

	return fw, nil
}

func (fw *FSNotifyFileWatcher) Add(name string) error {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	if fw.closed {
		return fmt.Errorf("file watcher is closed")
	}
	return fw.watcher.Add(name)
}

func (fw *FSNotifyFileWatcher) Remove(name string) error {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	if fw.closed {
		return fmt.Errorf("file watcher is closed")
	}
	return fw.watcher.Remove(name)
}

func (fw *FSNotifyFileWatcher) Close() error {
	fw.mu.Lock()
	if fw.closed {
		fw.mu.Unlock()
		return nil
	}
	fw.closed = true
	close(fw.done)
	fw.mu.Unlock()

	fw.wg.Wait()

	err := fw.watcher.Close()
	close(fw.events)
	close(fw.errors)
	return err
}

func (fw *FSNotifyFileWatcher) Events() <-chan FileWatchEvent { return fw.events }
func (fw *FSNotifyFileWatcher) Errors() <-chan error          { return fw.errors }

func (fw *FSNotifyFileWatcher) translateEvents() {
	for {
		select {
		case <-fw.done:
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.dispatchEvent(event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.dispatchError(err)
		}
	}
}

func (fw *FSNotifyFileWatcher) dispatchEvent(event fsnotify.Event) {
	var op WatchOp
	if event.Op&fsnotify.Create != 0 {
		op |= Create
	}
	if event.Op&fsnotify.Write != 0 {
		op |= Write
	}
	if event.Op&fsnotify.Remove != 0 {
		op |= Remove
	}
	if event.Op&fsnotify.Rename != 0 {
		op |= Rename
	}
	if event.Op&fsnotify.Chmod != 0 {
		op |= Chmod
	}

	fw.mu.RLock()
	defer fw.mu.RUnlock()
	if fw.closed {
		return
	}
	select {
	case fw.events <- FileWatchEvent{Name: event.Name, Op: op}:
	case <-fw.done:
	}
}

func (fw *FSNotifyFileWatcher) dispatchError(err error) {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	if fw.closed {
		return
	}
	select {
	case fw.errors <- err:
	case <-fw.done:
	}
}
