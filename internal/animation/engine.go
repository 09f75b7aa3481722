/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package animation advances a character's frames over time.
//
// The Engine owns the current animation, frame index, exiting flag and the
// time of the last advance. Callers drive it with Tick and change what plays
// through SetAnimation, PlayAnimation and InterruptAndPlay. Frame changes and
// completions are reported to registered observers strictly in tick order.
package animation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"agentchar/internal/definition"
	applog "agentchar/internal/log"
)

var (
	// ErrUnknownAnimation is returned for names absent from the definition.
	// The current animation keeps playing.
	ErrUnknownAnimation = errors.New("unknown animation")
	// ErrSuperseded is returned to a waiter whose request was replaced by a
	// newer play or interrupt request.
	ErrSuperseded = errors.New("animation request superseded")
	// ErrStopped is returned once the engine has been stopped.
	ErrStopped = errors.New("animation engine stopped")
)

// DefaultFrameUnit is the length of one definition-file duration unit.
const DefaultFrameUnit = 10 * time.Millisecond

// Rand draws uniform integers in [0, n).
type Rand interface {
	IntN(n int) int
}

type globalRand struct{}

func (globalRand) IntN(n int) int { return rand.IntN(n) }

// Options configures an Engine. Zero values select defaults.
type Options struct {
	FrameUnit time.Duration
	Rand      Rand
	Now       func() time.Time
}

// FrameEvent describes the frame now on display.
type FrameEvent struct {
	Animation string
	Index     int
	Frame     definition.Frame
}

type event struct {
	frame     *FrameEvent
	completed string
}

// Engine is safe for concurrent use. Observers run with the engine unlocked
// and may call accessors, but must not call mutating methods synchronously.
type Engine struct {
	anims map[string]*definition.Animation
	unit  time.Duration
	rnd   Rand
	now   func() time.Time
	log   *slog.Logger

	// emitMu serializes mutation plus delivery so events keep tick order.
	emitMu sync.Mutex

	mu      sync.Mutex
	cur     *definition.Animation
	idx     int
	exiting bool
	last    time.Time
	pending *signal
	gen     uint64
	stopped bool

	obsMu    sync.RWMutex
	onFrame  []func(FrameEvent)
	onFinish []func(string)
}

// New creates an engine over the animations of a parsed character.
func New(anims map[string]*definition.Animation, opts Options) *Engine {
	e := &Engine{
		anims: anims,
		unit:  opts.FrameUnit,
		rnd:   opts.Rand,
		now:   opts.Now,
		log:   applog.WithComponent("animation"),
	}
	if e.unit <= 0 {
		e.unit = DefaultFrameUnit
	}
	if e.rnd == nil {
		e.rnd = globalRand{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e
}

// OnFrameChanged registers fn for every displayed frame.
func (e *Engine) OnFrameChanged(fn func(FrameEvent)) {
	e.obsMu.Lock()
	e.onFrame = append(e.onFrame, fn)
	e.obsMu.Unlock()
}

// OnAnimationCompleted registers fn for replaced and completed animations.
func (e *Engine) OnAnimationCompleted(fn func(name string)) {
	e.obsMu.Lock()
	e.onFinish = append(e.onFinish, fn)
	e.obsMu.Unlock()
}

// SetAnimation switches to name at frame 0. It reports false and changes
// nothing when name is unknown.
func (e *Engine) SetAnimation(name string, exit bool) bool {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	var evs []event
	e.mu.Lock()
	ok := !e.stopped && e.setLocked(name, exit, &evs)
	e.mu.Unlock()
	e.deliver(evs)
	return ok
}

// PlayAnimation starts name and blocks until it completes one loop (or its
// exit sequence when exit is true), ctx ends, or a newer request replaces it.
func (e *Engine) PlayAnimation(ctx context.Context, name string, exit bool) error {
	e.emitMu.Lock()
	var evs []event
	e.mu.Lock()
	if err := e.checkLocked(name); err != nil {
		e.mu.Unlock()
		e.emitMu.Unlock()
		return err
	}
	e.gen++
	sig := e.armLocked()
	e.setLocked(name, exit, &evs)
	e.mu.Unlock()
	e.deliver(evs)
	e.emitMu.Unlock()

	return sig.wait(ctx)
}

// InterruptAndPlay winds the current animation down through its exit
// branch and then plays name for one loop. When nothing is playing, name is
// started in exit mode right away. A later play or interrupt request makes
// this one return ErrSuperseded without starting name.
func (e *Engine) InterruptAndPlay(ctx context.Context, name string) error {
	e.emitMu.Lock()
	e.mu.Lock()
	if err := e.checkLocked(name); err != nil {
		e.mu.Unlock()
		e.emitMu.Unlock()
		return err
	}
	e.gen++
	ticket := e.gen
	if e.cur == nil {
		var evs []event
		sig := e.armLocked()
		e.setLocked(name, true, &evs)
		e.mu.Unlock()
		e.deliver(evs)
		e.emitMu.Unlock()
		return sig.wait(ctx)
	}
	e.exiting = true
	sig := e.pending
	if sig == nil {
		sig = newSignal()
		e.pending = sig
	}
	e.mu.Unlock()
	e.emitMu.Unlock()

	if err := sig.wait(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
		return err
	}

	e.emitMu.Lock()
	var evs []event
	e.mu.Lock()
	switch {
	case e.stopped:
		e.mu.Unlock()
		e.emitMu.Unlock()
		return ErrStopped
	case e.gen != ticket:
		e.mu.Unlock()
		e.emitMu.Unlock()
		return ErrSuperseded
	}
	next := e.armLocked()
	e.setLocked(name, false, &evs)
	e.mu.Unlock()
	e.deliver(evs)
	e.emitMu.Unlock()

	return next.wait(ctx)
}

// RequestExit puts the current animation into exit mode so it winds down
// through its exit branch at the next frame boundary.
func (e *Engine) RequestExit() {
	e.mu.Lock()
	if e.cur != nil {
		e.exiting = true
	}
	e.mu.Unlock()
}

// Tick advances the current frame when its duration has elapsed at now.
func (e *Engine) Tick(now time.Time) {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	var evs []event
	e.mu.Lock()
	e.tickLocked(now, &evs)
	e.mu.Unlock()
	e.deliver(evs)
}

func (e *Engine) tickLocked(now time.Time, evs *[]event) {
	if e.cur == nil {
		return
	}
	f := e.cur.Frames[e.idx]
	if now.Sub(e.last) < time.Duration(f.Duration)*e.unit {
		return
	}
	next := e.nextIndexLocked(f)

	// Terminal frame of an exit sequence: hold it and report completion.
	if e.exiting && !f.HasExitBranch() && next == 0 {
		if e.pending != nil {
			e.pending.resolve(nil)
			e.pending = nil
			*evs = append(*evs, event{completed: e.cur.Name})
		}
		return
	}

	e.idx = next
	e.last = now
	if !e.exiting && next == 0 && e.pending != nil {
		e.pending.resolve(nil)
		e.pending = nil
		*evs = append(*evs, event{completed: e.cur.Name})
	}
	*evs = append(*evs, e.frameEventLocked())
}

// nextIndexLocked picks the exit branch, then a weighted branch, then the
// sequential successor. Draws that land past the summed weights and targets
// outside the animation fall through to sequential advance.
func (e *Engine) nextIndexLocked(f definition.Frame) int {
	n := len(e.cur.Frames)
	if e.exiting && f.HasExitBranch() {
		if t := *f.ExitBranch; t >= 0 && t < n {
			return t
		}
	}
	if len(f.Branches) > 0 {
		r := e.rnd.IntN(100)
		sum := 0
		for _, b := range f.Branches {
			sum += b.Weight
			if r < sum {
				if b.Target >= 0 && b.Target < n {
					return b.Target
				}
				break
			}
		}
	}
	return (e.idx + 1) % n
}

// Stop resolves any waiter with ErrStopped and rejects later requests.
func (e *Engine) Stop() {
	e.emitMu.Lock()
	defer e.emitMu.Unlock()
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopped {
		return
	}
	e.stopped = true
	e.gen++
	if e.pending != nil {
		e.pending.resolve(ErrStopped)
		e.pending = nil
	}
	e.cur = nil
	e.log.Debug("engine stopped")
}

func (e *Engine) checkLocked(name string) error {
	if e.stopped {
		return ErrStopped
	}
	if _, ok := e.anims[name]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAnimation, name)
	}
	return nil
}

// armLocked installs a fresh completion signal, releasing a stale one.
func (e *Engine) armLocked() *signal {
	if e.pending != nil {
		e.pending.resolve(ErrSuperseded)
	}
	e.pending = newSignal()
	return e.pending
}

func (e *Engine) setLocked(name string, exit bool, evs *[]event) bool {
	a, ok := e.anims[name]
	if !ok {
		e.log.Debug("unknown animation ignored", slog.String("name", name))
		return false
	}
	prev := e.cur
	e.cur = a
	e.idx = 0
	e.exiting = exit
	e.last = e.now()
	*evs = append(*evs, e.frameEventLocked())
	if prev != nil {
		*evs = append(*evs, event{completed: prev.Name})
	}
	e.log.Debug("animation set", slog.String("name", name), slog.Bool("exit", exit))
	return true
}

func (e *Engine) frameEventLocked() event {
	return event{frame: &FrameEvent{Animation: e.cur.Name, Index: e.idx, Frame: e.cur.Frames[e.idx]}}
}

func (e *Engine) deliver(evs []event) {
	if len(evs) == 0 {
		return
	}
	e.obsMu.RLock()
	onFrame := e.onFrame
	onFinish := e.onFinish
	e.obsMu.RUnlock()
	for _, ev := range evs {
		if ev.frame != nil {
			for _, fn := range onFrame {
				fn(*ev.frame)
			}
			continue
		}
		for _, fn := range onFinish {
			fn(ev.completed)
		}
	}
}

// CurrentFrame returns the displayed frame, or false when idle.
func (e *Engine) CurrentFrame() (definition.Frame, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return definition.Frame{}, false
	}
	return e.cur.Frames[e.idx], true
}

// CurrentAnimationName returns "" when nothing is playing.
func (e *Engine) CurrentAnimationName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.cur == nil {
		return ""
	}
	return e.cur.Name
}

func (e *Engine) CurrentFrameIndex() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.idx
}

func (e *Engine) IsAnimating() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cur != nil
}

func (e *Engine) Exiting() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.exiting
}

// Animations lists every animation name, sorted.
func (e *Engine) Animations() []string {
	out := make([]string, 0, len(e.anims))
	for n := range e.anims {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SelectableAnimations lists names a user may pick: everything not
// prefixed "Idle" in any letter case.
func (e *Engine) SelectableAnimations() []string {
	var out []string
	for _, n := range e.Animations() {
		if len(n) >= 4 && strings.EqualFold(n[:4], "idle") {
			continue
		}
		out = append(out, n)
	}
	return out
}
