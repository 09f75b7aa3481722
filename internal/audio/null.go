/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"sync"

	"github.com/gopxl/beep/v2"
)

// NullSink accepts streams and counts them. Samples are not consumed.
type NullSink struct {
	mu     sync.Mutex
	rate   beep.SampleRate
	played int
	closed bool
}

func (n *NullSink) Init(sr beep.SampleRate, _ int) error {
	n.mu.Lock()
	n.rate = sr
	n.mu.Unlock()
	return nil
}

func (n *NullSink) Play(beep.Streamer) {
	n.mu.Lock()
	n.played++
	n.mu.Unlock()
}

func (n *NullSink) Close() {
	n.mu.Lock()
	n.closed = true
	n.mu.Unlock()
}

// Played is the number of streams handed to the sink.
func (n *NullSink) Played() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.played
}
