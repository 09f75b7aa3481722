/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package ui hosts a character on the desktop. The menu model in this file
// is toolkit independent; the fyne shell renders it when built with -tags fyne.
package ui

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"agentchar/internal/animation"
	applog "agentchar/internal/log"
)

// Controller is the subset of agent.Agent the host drives.
type Controller interface {
	Name() string
	SelectableAnimations() []string
	AvailableStates() []string
	CurrentState() string
	PlayAnimation(ctx context.Context, name string, timeout time.Duration) error
	SetState(name string) error
	PlayRandomAnimation(ctx context.Context) error
	HandleVisibilityChange(showing bool)
}

// Item is one menu entry. Items with Children are submenus; a zero Item
// is a separator.
type Item struct {
	Label    string
	Checked  bool
	Disabled bool
	Children []Item
	Action   func()
}

// IsSeparator reports whether it is a separator entry.
func (it Item) IsSeparator() bool {
	return it.Label == "" && it.Action == nil && len(it.Children) == 0
}

// Host turns menu choices into agent calls. Playback blocks until the
// animation ends, so actions run off the caller's goroutine.
type Host struct {
	ctx    context.Context
	ctrl   Controller
	onExit func()
	log    *slog.Logger

	mu      sync.Mutex
	visible bool

	// spawn runs an action; tests replace it to run inline.
	spawn func(func())
}

// NewHost builds a host for ctrl. onExit runs when the user picks Exit.
func NewHost(ctx context.Context, ctrl Controller, onExit func()) *Host {
	return &Host{
		ctx:     ctx,
		ctrl:    ctrl,
		onExit:  onExit,
		log:     applog.WithComponent("ui"),
		visible: true,
		spawn:   func(f func()) { go f() },
	}
}

// Visible reports whether the character is shown.
func (h *Host) Visible() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.visible
}

// SetVisible shows or hides the character and plays the matching state.
func (h *Host) SetVisible(show bool) {
	h.mu.Lock()
	changed := h.visible != show
	h.visible = show
	h.mu.Unlock()
	if changed {
		h.ctrl.HandleVisibilityChange(show)
	}
}

// Menu returns the current menu: animations, states, show/hide, random
// animation and exit. Call it again after state changes to refresh checks.
func (h *Host) Menu() []Item {
	anims := h.ctrl.SelectableAnimations()
	animItems := make([]Item, 0, len(anims))
	for _, name := range anims {
		name := name
		animItems = append(animItems, Item{Label: name, Action: func() { h.play(name) }})
	}

	current := h.ctrl.CurrentState()
	states := h.ctrl.AvailableStates()
	stateItems := make([]Item, 0, len(states))
	for _, name := range states {
		name := name
		stateItems = append(stateItems, Item{Label: name, Checked: name == current, Action: func() { h.setState(name) }})
	}

	visible := h.Visible()
	toggle := "Hide"
	if !visible {
		toggle = "Show"
	}
	return []Item{
		{Label: "Animations", Children: animItems, Disabled: len(animItems) == 0},
		{Label: "States", Children: stateItems, Disabled: len(stateItems) == 0},
		{},
		{Label: toggle, Action: func() { h.SetVisible(!visible) }},
		{Label: "Random Animation", Disabled: len(anims) == 0, Action: h.random},
		{},
		{Label: "Exit", Action: h.exit},
	}
}

func (h *Host) play(name string) {
	h.log.Info("menu: play", slog.String("animation", name))
	h.spawn(func() {
		err := h.ctrl.PlayAnimation(h.ctx, name, 0)
		h.logErr("play", err)
	})
}

func (h *Host) setState(name string) {
	h.log.Info("menu: state", slog.String("state", name))
	h.logErr("set state", h.ctrl.SetState(name))
}

func (h *Host) random() {
	h.log.Info("menu: random")
	h.spawn(func() { h.logErr("random", h.ctrl.PlayRandomAnimation(h.ctx)) })
}

func (h *Host) exit() {
	h.log.Info("menu: exit")
	if h.onExit != nil {
		h.spawn(h.onExit)
	}
}

func (h *Host) logErr(op string, err error) {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, animation.ErrSuperseded) {
		return
	}
	h.log.Warn(op+" failed", slog.Any("err", err))
}
