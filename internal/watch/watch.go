/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package watch reports changes to a character definition file.
package watch

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	applog "agentchar/internal/log"
)

// DefaultDebounce collapses the burst of events editors emit on save.
const DefaultDebounce = 200 * time.Millisecond

// Watcher delivers one event per settled change of a single file.
// The parent directory is watched so that rename-and-replace saves are seen.
type Watcher struct {
	fw       *fsnotify.Watcher
	path     string
	debounce time.Duration

	events  chan string
	errors  chan error
	closeCh chan struct{}
	done    chan struct{}
	once    sync.Once
}

// New watches path with DefaultDebounce.
func New(path string) (*Watcher, error) { return NewWithDebounce(path, DefaultDebounce) }

// NewWithDebounce watches path, emitting at most one event per quiet period d.
func NewWithDebounce(path string, d time.Duration) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	w := &Watcher{
		fw:       fw,
		path:     abs,
		debounce: d,
		events:   make(chan string, 1),
		errors:   make(chan error, 1),
		closeCh:  make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.run()
	return w, nil
}

// Events yields the watched path after each change settles. It is closed by Close.
func (w *Watcher) Events() <-chan string { return w.events }

// Errors yields watcher errors. It is closed by Close.
func (w *Watcher) Errors() <-chan error { return w.errors }

// Close stops watching and waits for the delivery goroutine to exit.
func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.closeCh)
		err = w.fw.Close()
		<-w.done
	})
	return err
}

func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.errors)
	defer close(w.events)

	l := applog.WithComponent("watch")
	var timer *time.Timer
	var fire <-chan time.Time
	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			l.Debug("change", "op", ev.Op.String(), "path", ev.Name)
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			select {
			case w.events <- w.path:
			default:
				// a reload is already pending
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			l.Warn("watch error", "err", err)
			select {
			case w.errors <- err:
			default:
			}
		case <-w.closeCh:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}
