/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package behavior decides what a character does next.
//
// A Machine walks the idle ladder (IdlingLevel1..3) as periodic ticks
// accumulate, picks random candidate animations for the current state, runs
// explicit one-shot playbacks and handles show/hide transitions. It drives
// the animation engine only through the Animator interface.
package behavior

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"agentchar/internal/animation"
	"agentchar/internal/definition"
	applog "agentchar/internal/log"
)

// Pseudo-state and idle ladder names.
const (
	StatePlaying = "Playing"
	StateShowing = "Showing"
	StateHiding  = "Hiding"
	IdlePrefix   = "IdlingLevel"
	StateIdle1   = IdlePrefix + "1"
)

var (
	ErrUnknownState = errors.New("unknown state")
	ErrClosed       = errors.New("behavior machine closed")
)

// Animator is the part of the animation engine the machine drives.
type Animator interface {
	PlayAnimation(ctx context.Context, name string, exit bool) error
	InterruptAndPlay(ctx context.Context, name string) error
	RequestExit()
	SelectableAnimations() []string
}

// Options tunes timing. Zero values select the defaults below.
type Options struct {
	TickInterval  time.Duration // 10s
	TicksPerLevel int           // 12
	MaxIdleLevel  int           // 3
	RandomTimeout time.Duration // 5s
	Rand          animation.Rand
}

func (o *Options) applyDefaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = 10 * time.Second
	}
	if o.TicksPerLevel <= 0 {
		o.TicksPerLevel = 12
	}
	if o.MaxIdleLevel <= 0 {
		o.MaxIdleLevel = 3
	}
	if o.RandomTimeout <= 0 {
		o.RandomTimeout = 5 * time.Second
	}
	if o.Rand == nil {
		o.Rand = defaultRand{}
	}
}

type defaultRand struct{}

func (defaultRand) IntN(n int) int { return rand.IntN(n) }

// playback is one explicit PlayAnimationOnce call.
type playback struct {
	name   string
	cancel context.CancelFunc
	once   sync.Once
}

// Machine is safe for concurrent use. At most one background job (a
// pick-and-play or a visibility transition) runs at a time; starting a new
// one cancels the previous.
type Machine struct {
	anim   Animator
	states map[string]*definition.State
	opts   Options
	log    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	state     string
	level     int
	ticks     int
	exiting   bool
	ticking   bool
	jobCancel context.CancelFunc
	play      *playback
}

// New creates a machine in IdlingLevel1 with periodic ticking enabled.
func New(anim Animator, states map[string]*definition.State, opts Options) *Machine {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	return &Machine{
		anim:    anim,
		states:  states,
		opts:    opts,
		log:     applog.WithComponent("behavior"),
		ctx:     ctx,
		cancel:  cancel,
		state:   StateIdle1,
		level:   1,
		ticking: true,
	}
}

// Tick runs one periodic step: nothing while Playing, idle escalation on
// the ladder, and a fresh random pick otherwise.
func (m *Machine) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil || m.state == StatePlaying {
		return
	}
	if isIdle(m.state) {
		m.ticks++
		if m.ticks >= m.opts.TicksPerLevel && m.level < m.opts.MaxIdleLevel {
			m.level++
			m.ticks = 0
			m.state = idleName(m.level)
			m.log.Debug("idle escalated", slog.Int("level", m.level))
		}
	}
	m.pickAndPlayLocked()
}

// SetState switches to a state declared by the definition or to Playing.
func (m *Machine) SetState(name string) error {
	if _, ok := m.states[name]; !ok && name != StatePlaying {
		return fmt.Errorf("%w: %q", ErrUnknownState, name)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return ErrClosed
	}
	m.enterLocked(name)
	return nil
}

func (m *Machine) enterLocked(name string) {
	if lvl := idleLevelOf(name); lvl > 0 {
		m.level = min(lvl, m.opts.MaxIdleLevel)
	} else {
		m.level = 1
	}
	m.ticks = 0
	m.state = name
	if name == StatePlaying {
		m.cancelJobLocked()
		return
	}
	m.pickAndPlayLocked()
}

// PlayAnimationOnce plays name once in the Playing state. With a positive
// timeout the animation is asked to wind down through its exit branch when
// the timeout passes; the call still returns only once it has. A newer call
// or a visibility change revokes this playback. Unless revoked, the machine
// is back in IdlingLevel1 when the call returns.
func (m *Machine) PlayAnimationOnce(ctx context.Context, name string, timeout time.Duration) error {
	m.mu.Lock()
	if m.ctx.Err() != nil {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.play != nil {
		m.play.cancel()
	}
	m.cancelJobLocked()
	pctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(m.ctx, cancel)
	p := &playback{name: name, cancel: cancel}
	m.play = p
	m.state = StatePlaying
	m.exiting = false
	m.mu.Unlock()

	defer m.finishPlayback(p)
	defer stop()
	defer cancel()

	if timeout > 0 {
		t := time.AfterFunc(timeout, func() { m.expire(p) })
		defer t.Stop()
	}
	err := m.anim.PlayAnimation(pctx, name, false)
	if err != nil {
		m.log.Debug("playback ended", slog.String("name", name), slog.Any("err", err))
	}
	return err
}

// expire forces a timed-out playback toward its exit frame.
func (m *Machine) expire(p *playback) {
	m.mu.Lock()
	owner := m.play == p && m.state == StatePlaying
	if owner {
		m.exiting = true
	}
	m.mu.Unlock()
	if owner {
		m.log.Debug("playback timed out", slog.String("name", p.name))
		m.anim.RequestExit()
	}
}

// finishPlayback returns to IdlingLevel1 once per playback, and only while
// the playback still owns the machine.
func (m *Machine) finishPlayback(p *playback) {
	p.once.Do(func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.play != p || m.ctx.Err() != nil {
			return
		}
		m.play = nil
		m.exiting = false
		m.enterLocked(StateIdle1)
	})
}

// HandleAnimationCompleted ends a timed-out playback as soon as the engine
// reports the exit sequence finished.
func (m *Machine) HandleAnimationCompleted() {
	m.mu.Lock()
	p := m.play
	done := p != nil && m.state == StatePlaying && m.exiting
	m.mu.Unlock()
	if done {
		m.finishPlayback(p)
	}
}

// HandleVisibilityChange stops periodic ticking, revokes any explicit
// playback and plays the Showing or Hiding state. After Showing the machine
// restarts from IdlingLevel1 with ticking enabled; after Hiding ticking
// stays off.
func (m *Machine) HandleVisibilityChange(showing bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx.Err() != nil {
		return
	}
	m.ticking = false
	if m.play != nil {
		m.play.cancel()
		m.play = nil
	}
	m.exiting = false
	m.level, m.ticks = 1, 0
	m.state = StateHiding
	if showing {
		m.state = StateShowing
	}
	cand := m.candidateLocked()
	m.log.Debug("visibility changed", slog.Bool("showing", showing))
	m.spawnLocked(func(ctx context.Context) {
		if cand != "" {
			if err := m.anim.InterruptAndPlay(ctx, cand); err != nil {
				m.logJobErr(cand, err)
			}
		}
		if !showing || ctx.Err() != nil {
			return
		}
		m.mu.Lock()
		defer m.mu.Unlock()
		if m.state != StateShowing || m.ctx.Err() != nil {
			return
		}
		m.ticking = true
		m.enterLocked(StateIdle1)
	})
}

// PlayRandomAnimation plays one selectable animation with the random
// timeout. It does nothing when none exist.
func (m *Machine) PlayRandomAnimation(ctx context.Context) error {
	names := m.anim.SelectableAnimations()
	if len(names) == 0 {
		return nil
	}
	name := names[m.opts.Rand.IntN(len(names))]
	return m.PlayAnimationOnce(ctx, name, m.opts.RandomTimeout)
}

// Run ticks the machine every TickInterval until ctx ends or the machine
// is closed. Ticks are handled inline, so handlers never overlap.
func (m *Machine) Run(ctx context.Context) error {
	t := time.NewTicker(m.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.ctx.Done():
			return nil
		case <-t.C:
			if m.Ticking() {
				m.Tick()
			}
		}
	}
}

// Close stops background work and waits for it to finish.
func (m *Machine) Close() {
	m.mu.Lock()
	m.cancel()
	if m.play != nil {
		m.play.cancel()
	}
	m.cancelJobLocked()
	m.mu.Unlock()
	m.wg.Wait()
}

func (m *Machine) pickAndPlayLocked() {
	name := m.candidateLocked()
	if name == "" {
		return
	}
	m.spawnLocked(func(ctx context.Context) {
		if err := m.anim.InterruptAndPlay(ctx, name); err != nil {
			m.logJobErr(name, err)
		}
	})
}

// candidateLocked picks uniformly among the current state's animations.
func (m *Machine) candidateLocked() string {
	st, ok := m.states[m.state]
	if !ok || len(st.Animations) == 0 {
		return ""
	}
	return st.Animations[m.opts.Rand.IntN(len(st.Animations))]
}

func (m *Machine) spawnLocked(job func(ctx context.Context)) {
	if m.ctx.Err() != nil {
		return
	}
	m.cancelJobLocked()
	ctx, cancel := context.WithCancel(m.ctx)
	m.jobCancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		job(ctx)
	}()
}

func (m *Machine) cancelJobLocked() {
	if m.jobCancel != nil {
		m.jobCancel()
		m.jobCancel = nil
	}
}

func (m *Machine) logJobErr(name string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, animation.ErrSuperseded) {
		return
	}
	m.log.Warn("animation request failed", slog.String("name", name), slog.Any("err", err))
}

// CurrentState returns the active state name.
func (m *Machine) CurrentState() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IdleLevel returns the idle ladder position, 1-based.
func (m *Machine) IdleLevel() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.level
}

// Ticking reports whether periodic ticks are currently honored.
func (m *Machine) Ticking() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ticking
}

// AvailableStates lists the states declared by the definition, sorted.
func (m *Machine) AvailableStates() []string {
	out := make([]string, 0, len(m.states))
	for n := range m.states {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func isIdle(state string) bool {
	return len(state) >= len(IdlePrefix) && strings.EqualFold(state[:len(IdlePrefix)], IdlePrefix)
}

func idleName(level int) string { return IdlePrefix + strconv.Itoa(level) }

// idleLevelOf returns the numeric suffix of an idle state, or 0.
func idleLevelOf(state string) int {
	if !isIdle(state) {
		return 0
	}
	n, err := strconv.Atoi(state[len(IdlePrefix):])
	if err != nil || n < 1 {
		return 1
	}
	return n
}
