/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package session assembles an agent with concrete sprite, sound and
// balloon collaborators from the user configuration.
package session

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"agentchar/internal/agent"
	"agentchar/internal/audio"
	"agentchar/internal/balloon"
	"agentchar/internal/config"
	"agentchar/internal/definition"
	applog "agentchar/internal/log"
	"agentchar/internal/sprite"
)

// Options select the assets for one character. Empty paths disable the
// matching collaborator.
type Options struct {
	SpriteDir string
	SoundBank string
	// BalloonOut receives console balloon text; nil disables the balloon
	// unless Balloon is set.
	BalloonOut io.Writer
	Balloon    agent.Balloon
	OnRedraw   func()
	// Sink overrides the audio output device.
	Sink audio.Sink
}

// Open parses the definition at path and returns a ready, not yet started agent.
func Open(path string, cfg config.AppConfig, opts Options) (*agent.Agent, error) {
	def, err := definition.ParseFile(path)
	if err != nil {
		return nil, fmt.Errorf("load character: %w", err)
	}
	return Build(def, cfg, opts)
}

// Build wires collaborators around an already parsed definition.
func Build(def *definition.Character, cfg config.AppConfig, opts Options) (*agent.Agent, error) {
	l := applog.WithOperation(applog.WithComponent("session"), "build")
	ao := agent.OptionsFromConfig(cfg.Agent)
	ao.OnRedraw = opts.OnRedraw

	if opts.SpriteDir != "" {
		sheet, err := sprite.Load(opts.SpriteDir, def, cfg.Agent.Scale)
		if err != nil {
			return nil, fmt.Errorf("load sprites: %w", err)
		}
		ao.Sprites = sheet
		l.Info("sprites loaded", slog.String("dir", opts.SpriteDir), slog.Int("count", sheet.Len()))
	}

	if opts.SoundBank != "" && cfg.Audio.Enabled {
		player, err := openSounds(opts.SoundBank, cfg.Audio.SampleRate, opts.Sink)
		if err != nil {
			closeAll(ao)
			return nil, err
		}
		ao.Sounds = player
	} else if opts.SoundBank != "" {
		l.Info("audio disabled; sound bank ignored", slog.String("path", opts.SoundBank))
	}

	switch {
	case opts.Balloon != nil:
		ao.Balloon = opts.Balloon
	case opts.BalloonOut != nil:
		ao.Balloon = balloon.NewConsole(opts.BalloonOut, def.Balloon)
	}

	a, err := agent.New(def, ao)
	if err != nil {
		closeAll(ao)
		return nil, err
	}
	return a, nil
}

func openSounds(path string, sampleRate int, sink audio.Sink) (*audio.Player, error) {
	bank, err := audio.LoadBank(path)
	if err != nil {
		return nil, fmt.Errorf("load sounds: %w", err)
	}
	if sink == nil {
		sink = audio.DefaultSink()
	}
	p, err := audio.NewPlayer(bank, sink, sampleRate)
	if err != nil {
		return nil, fmt.Errorf("open audio: %w", err)
	}
	applog.WithComponent("session").Info("sound bank loaded",
		slog.String("path", path), slog.Int("sounds", bank.Len()), slog.Bool("device", audio.HasDevice()))
	return p, nil
}

func closeAll(o agent.Options) {
	var errs []error
	if o.Sprites != nil {
		errs = append(errs, o.Sprites.Close())
	}
	if o.Sounds != nil {
		errs = append(errs, o.Sounds.Close())
	}
	if err := errors.Join(errs...); err != nil {
		applog.WithComponent("session").Warn("cleanup failed", slog.Any("err", err))
	}
}
