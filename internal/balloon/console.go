/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package balloon

import (
	"fmt"
	"io"
	"sync"
	"time"

	"agentchar/internal/definition"
)

// Console prints balloon pages to a writer and hides itself after the
// requested duration.
type Console struct {
	w        io.Writer
	settings definition.Balloon

	mu      sync.Mutex
	visible bool
	title   string
	pages   []Page
	timer   *time.Timer
	seq     uint64
}

func NewConsole(w io.Writer, s definition.Balloon) *Console {
	return &Console{w: w, settings: s}
}

// Show prints text and arms auto-hide when d > 0. A new Show replaces the
// previous one and its timer.
func (c *Console) Show(title, text string, d time.Duration) {
	pages := Wrap(text, c.settings)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.seq++
	c.visible, c.title, c.pages = true, title, pages
	for i, p := range pages {
		if title != "" {
			fmt.Fprintf(c.w, "[%s %d/%d]\n", title, i+1, len(pages))
		}
		for _, l := range p.Lines {
			fmt.Fprintf(c.w, "  %s\n", l)
		}
	}
	if d > 0 {
		seq := c.seq
		c.timer = time.AfterFunc(d, func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if c.seq == seq {
				c.visible = false
			}
		})
	}
}

// Hide clears the balloon.
func (c *Console) Hide() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
	c.seq++
	c.visible = false
}

func (c *Console) stopLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// Visible reports whether a balloon is showing.
func (c *Console) Visible() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visible
}

// Pages returns the pages of the last Show.
func (c *Console) Pages() []Page {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pages
}
