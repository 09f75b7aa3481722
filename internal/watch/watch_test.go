/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatcherDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merlin.acd")
	if err := os.WriteFile(path, []byte("v0"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w, err := NewWithDebounce(path, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWithDebounce: %v", err)
	}
	defer w.Close()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(path, []byte{byte('a' + i)}, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	select {
	case got := <-w.Events():
		abs, _ := filepath.Abs(path)
		if got != abs {
			t.Fatalf("event path = %q, want %q", got, abs)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no event after writes")
	}
	select {
	case <-w.Events():
		t.Fatalf("burst produced more than one event")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestWatcherIgnoresSiblings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "merlin.acd")
	if err := os.WriteFile(path, []byte("v0"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	w, err := NewWithDebounce(path, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("NewWithDebounce: %v", err)
	}
	defer w.Close()
	if err := os.WriteFile(filepath.Join(dir, "other.acd"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	select {
	case p := <-w.Events():
		t.Fatalf("unexpected event for %q", p)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestCloseClosesChannels(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.acd")
	w, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, ok := <-w.Events(); ok {
		t.Fatalf("events channel still open")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}
