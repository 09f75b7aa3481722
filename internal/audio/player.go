/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"

	applog "agentchar/internal/log"
)

var (
	ErrUnknownSound = errors.New("unknown sound")
	ErrClosed       = errors.New("player closed")
)

// Sink is the final output stage, a speaker or a test double.
type Sink interface {
	Init(sr beep.SampleRate, bufferSize int) error
	Play(s beep.Streamer)
	Close()
}

// Player plays bank sounds on a sink, resampled to the sink rate.
// Play never blocks on the sound finishing.
type Player struct {
	bank *Bank
	sink Sink
	rate beep.SampleRate
	log  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewPlayer initializes sink at sampleRate with a 100ms buffer.
func NewPlayer(bank *Bank, sink Sink, sampleRate int) (*Player, error) {
	if sampleRate <= 0 {
		sampleRate = 44100
	}
	sr := beep.SampleRate(sampleRate)
	if err := sink.Init(sr, sr.N(time.Second/10)); err != nil {
		return nil, fmt.Errorf("init audio output: %w", err)
	}
	return &Player{bank: bank, sink: sink, rate: sr, log: applog.WithComponent("audio")}, nil
}

// Play starts sound id. An empty id is a no-op.
func (p *Player) Play(id string) error {
	if id == "" {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	buf, ok := p.bank.Buffer(id)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownSound, id)
	}
	var s beep.Streamer = buf.Streamer(0, buf.Len())
	if src := buf.Format().SampleRate; src != p.rate {
		s = beep.Resample(4, src, p.rate, s)
	}
	p.sink.Play(s)
	p.log.Debug("sound played", slog.String("id", id))
	return nil
}

// Close releases the sink. Further Play calls fail with ErrClosed.
func (p *Player) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.sink.Close()
	return nil
}
