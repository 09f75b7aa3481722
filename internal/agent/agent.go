/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package agent runs one character: it owns the parsed definition, the
// animation engine and the behavior machine, and connects them to the
// sprite, sound and balloon collaborators supplied by the host.
package agent

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/language"

	"agentchar/internal/animation"
	"agentchar/internal/behavior"
	"agentchar/internal/config"
	"agentchar/internal/definition"
	applog "agentchar/internal/log"
	"agentchar/internal/telemetry"
)

// SpriteRenderer turns a frame into a displayable image.
type SpriteRenderer interface {
	Render(f definition.Frame) (image.Image, error)
	Close() error
}

// SoundPlayer plays a sound effect by id without waiting for it.
type SoundPlayer interface {
	Play(id string) error
	Close() error
}

// Balloon shows speech text next to the character.
type Balloon interface {
	Show(title, text string, d time.Duration)
	Hide()
}

var ErrClosed = errors.New("agent closed")

// Options configure an Agent. Collaborators may be nil.
type Options struct {
	Language          language.Tag
	GreetingAnimation string
	ClosingAnimation  string
	FrameUnit         time.Duration
	RedrawInterval    time.Duration
	BalloonDuration   time.Duration
	Behavior          behavior.Options
	Rand              animation.Rand
	Now               func() time.Time

	Sprites SpriteRenderer
	Sounds  SoundPlayer
	Balloon Balloon
	// OnRedraw is called after every frame change.
	OnRedraw func()
}

// OptionsFromConfig maps the user config onto Options.
func OptionsFromConfig(c config.AgentConfig) Options {
	return Options{
		Language:          ParseLanguage(languageOrEnv(c.Language)),
		GreetingAnimation: c.GreetingAnimation,
		ClosingAnimation:  c.ClosingAnimation,
		FrameUnit:         c.FrameUnit(),
		RedrawInterval:    c.RedrawInterval(),
		BalloonDuration:   c.BalloonDuration(),
		Behavior: behavior.Options{
			TickInterval:  c.IdleInterval(),
			TicksPerLevel: c.TicksPerLevel,
			MaxIdleLevel:  c.MaxIdleLevel,
			RandomTimeout: c.RandomTimeout(),
		},
	}
}

// languageOrEnv falls back to the POSIX locale variables when s is empty.
func languageOrEnv(s string) string {
	if strings.TrimSpace(s) != "" {
		return s
	}
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}

// ParseLanguage accepts BCP 47 tags and POSIX locales like de_DE.UTF-8.
// Unparseable input yields language.Und.
func ParseLanguage(s string) language.Tag {
	s, _, _ = strings.Cut(strings.TrimSpace(s), ".")
	s = strings.ReplaceAll(s, "_", "-")
	if s == "" || s == "C" || s == "POSIX" {
		return language.Und
	}
	t, err := language.Parse(s)
	if err != nil {
		return language.Und
	}
	return t
}

func (o *Options) applyDefaults() {
	if o.GreetingAnimation == "" {
		o.GreetingAnimation = "Greeting"
	}
	if o.ClosingAnimation == "" {
		o.ClosingAnimation = "GoodBye"
	}
	if o.RedrawInterval <= 0 {
		o.RedrawInterval = 16 * time.Millisecond
	}
	if o.BalloonDuration <= 0 {
		o.BalloonDuration = 10 * time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Behavior.Rand == nil {
		o.Behavior.Rand = o.Rand
	}
}

// Agent is safe for concurrent use.
type Agent struct {
	def     *definition.Character
	opts    Options
	engine  *animation.Engine
	machine *behavior.Machine
	log     *slog.Logger
	ctx     context.Context

	obsMu    sync.Mutex
	onFrame  []func(animation.FrameEvent)
	onFinish []func(name string)

	imgMu    sync.Mutex
	imgKey   string
	imgCache image.Image

	closeOnce sync.Once
	closed    chan struct{}
}

// Load parses the definition at path and builds an Agent from it.
func Load(path string, opts Options) (*Agent, error) {
	def, err := definition.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("load character: %w", err)
	}
	return New(def, opts)
}

// New wires engine, machine and collaborators for def.
func New(def *definition.Character, opts Options) (*Agent, error) {
	if def == nil {
		return nil, errors.New("nil character definition")
	}
	opts.applyDefaults()
	a := &Agent{
		def:    def,
		opts:   opts,
		log:    applog.WithComponent("agent"),
		closed: make(chan struct{}),
	}
	a.ctx = applog.WithCharacter(context.Background(), a.Name())
	a.engine = animation.New(def.Animations, animation.Options{FrameUnit: opts.FrameUnit, Rand: opts.Rand, Now: opts.Now})
	a.machine = behavior.New(a.engine, def.States, opts.Behavior)
	a.engine.OnFrameChanged(a.frameChanged)
	a.engine.OnAnimationCompleted(a.animationCompleted)
	a.log.DebugContext(a.ctx, "agent created",
		slog.Int("animations", len(def.Animations)), slog.Int("states", len(def.States)))
	return a, nil
}

func (a *Agent) frameChanged(ev animation.FrameEvent) {
	if id := ev.Frame.Sound; id != "" && a.opts.Sounds != nil {
		if err := a.opts.Sounds.Play(id); err != nil {
			a.log.WarnContext(a.ctx, "sound failed", slog.String("sound", id), slog.Any("err", err))
		}
	}
	if a.opts.OnRedraw != nil {
		a.opts.OnRedraw()
	}
	a.obsMu.Lock()
	obs := append([]func(animation.FrameEvent){}, a.onFrame...)
	a.obsMu.Unlock()
	for _, fn := range obs {
		fn(ev)
	}
}

func (a *Agent) animationCompleted(name string) {
	a.obsMu.Lock()
	obs := append([]func(string){}, a.onFinish...)
	a.obsMu.Unlock()
	for _, fn := range obs {
		fn(name)
	}
	a.machine.HandleAnimationCompleted()
}

// OnFrameChanged registers a host observer for frame changes.
func (a *Agent) OnFrameChanged(fn func(animation.FrameEvent)) {
	a.obsMu.Lock()
	a.onFrame = append(a.onFrame, fn)
	a.obsMu.Unlock()
}

// OnAnimationCompleted registers a host observer for completed loops.
func (a *Agent) OnAnimationCompleted(fn func(name string)) {
	a.obsMu.Lock()
	a.onFinish = append(a.onFinish, fn)
	a.obsMu.Unlock()
}

// Definition returns the parsed character. Callers must not modify it.
func (a *Agent) Definition() *definition.Character { return a.def }

// Name is the localized character name, or the GUID when there is none.
func (a *Agent) Name() string {
	if info, ok := a.Info(); ok && info.Name != "" {
		return info.Name
	}
	return a.def.Meta.GUID.String()
}

// Info returns the localized info block best matching the configured
// language; the first block wins when nothing matches.
func (a *Agent) Info() (definition.Info, bool) {
	infos := a.def.Infos
	if len(infos) == 0 {
		return definition.Info{}, false
	}
	tags := make([]language.Tag, len(infos))
	for i, in := range infos {
		tags[i] = in.Language
	}
	_, idx, _ := language.NewMatcher(tags).Match(a.opts.Language)
	if idx < 0 || idx >= len(infos) {
		idx = 0
	}
	return infos[idx], true
}

func (a *Agent) isClosed() bool {
	select {
	case <-a.closed:
		return true
	default:
		return false
	}
}

// Start plays the greeting animation to completion, shows a greeting in
// the balloon and leaves the character idling.
func (a *Agent) Start(ctx context.Context) error {
	if a.isClosed() {
		return ErrClosed
	}
	telemetry.AgentStarted(a.def.Meta.GUID.String(), len(a.def.Animations))
	if _, ok := a.def.Animations[a.opts.GreetingAnimation]; ok {
		if err := a.machine.PlayAnimationOnce(ctx, a.opts.GreetingAnimation, 0); err != nil {
			return fmt.Errorf("greeting: %w", err)
		}
	} else {
		a.log.InfoContext(a.ctx, "no greeting animation", slog.String("name", a.opts.GreetingAnimation))
	}
	if info, ok := a.Info(); ok && len(info.Greetings) > 0 && a.opts.Balloon != nil {
		text := info.Greetings[0]
		if a.opts.Rand != nil {
			text = info.Greetings[a.opts.Rand.IntN(len(info.Greetings))]
		}
		a.opts.Balloon.Show(info.Name, text, a.opts.BalloonDuration)
	}
	a.log.InfoContext(a.ctx, "agent started", slog.String("state", a.machine.CurrentState()))
	return nil
}

// PlayAnimation plays name once and returns to idle. A positive timeout
// winds the animation down early through its exit branch.
func (a *Agent) PlayAnimation(ctx context.Context, name string, timeout time.Duration) error {
	if a.isClosed() {
		return ErrClosed
	}
	telemetry.AnimationPlayed(a.def.Meta.GUID.String(), name)
	return a.machine.PlayAnimationOnce(ctx, name, timeout)
}

// SetState switches the behavior state; unknown names are rejected.
func (a *Agent) SetState(name string) error { return a.machine.SetState(name) }

// PlayRandomAnimation plays one selectable animation with the random timeout.
func (a *Agent) PlayRandomAnimation(ctx context.Context) error {
	if a.isClosed() {
		return ErrClosed
	}
	return a.machine.PlayRandomAnimation(ctx)
}

// PlayClosingAnimation halts idle behavior, then interrupts the current
// animation and plays the farewell animation to its end. A character
// without one returns immediately.
func (a *Agent) PlayClosingAnimation(ctx context.Context) error {
	a.machine.Close()
	if a.opts.Balloon != nil {
		a.opts.Balloon.Hide()
	}
	name := a.opts.ClosingAnimation
	if _, ok := a.def.Animations[name]; !ok {
		a.log.DebugContext(a.ctx, "no closing animation", slog.String("name", name))
		return nil
	}
	return a.engine.InterruptAndPlay(ctx, name)
}

// HandleVisibilityChange plays the Showing or Hiding state.
func (a *Agent) HandleVisibilityChange(showing bool) {
	if !showing && a.opts.Balloon != nil {
		a.opts.Balloon.Hide()
	}
	a.machine.HandleVisibilityChange(showing)
}

// UpdateAnimation advances the engine to now.
func (a *Agent) UpdateAnimation(now time.Time) { a.engine.Tick(now) }

func (a *Agent) CurrentState() string         { return a.machine.CurrentState() }
func (a *Agent) CurrentAnimationName() string { return a.engine.CurrentAnimationName() }
func (a *Agent) CurrentFrameIndex() int       { return a.engine.CurrentFrameIndex() }
func (a *Agent) IdleLevel() int               { return a.machine.IdleLevel() }
func (a *Agent) SelectableAnimations() []string {
	return a.engine.SelectableAnimations()
}
func (a *Agent) AvailableStates() []string { return a.machine.AvailableStates() }

// CurrentImage renders the current frame. The last render is cached until
// the frame changes.
func (a *Agent) CurrentImage() (image.Image, bool) {
	if a.opts.Sprites == nil {
		return nil, false
	}
	f, ok := a.engine.CurrentFrame()
	if !ok {
		return nil, false
	}
	key := fmt.Sprintf("%s#%d", a.engine.CurrentAnimationName(), a.engine.CurrentFrameIndex())
	a.imgMu.Lock()
	defer a.imgMu.Unlock()
	if key == a.imgKey && a.imgCache != nil {
		return a.imgCache, true
	}
	img, err := a.opts.Sprites.Render(f)
	if err != nil {
		a.log.WarnContext(a.ctx, "render failed", slog.String("frame", key), slog.Any("err", err))
		return nil, false
	}
	a.imgKey, a.imgCache = key, img
	return img, true
}

// Run drives the engine at the redraw interval and the behavior machine
// at its own interval until ctx ends or the agent is closed.
func (a *Agent) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = a.machine.Run(ctx)
	}()

	t := time.NewTicker(a.opts.RedrawInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.closed:
			return nil
		case <-t.C:
			a.engine.Tick(a.opts.Now())
		}
	}
}

// Close stops behavior and animation and releases the collaborators.
func (a *Agent) Close() error {
	var errs []error
	a.closeOnce.Do(func() {
		close(a.closed)
		a.machine.Close()
		a.engine.Stop()
		if a.opts.Balloon != nil {
			a.opts.Balloon.Hide()
		}
		if a.opts.Sprites != nil {
			if err := a.opts.Sprites.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sprites: %w", err))
			}
		}
		if a.opts.Sounds != nil {
			if err := a.opts.Sounds.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close sounds: %w", err))
			}
		}
		a.log.InfoContext(a.ctx, "agent closed")
	})
	return errors.Join(errs...)
}
