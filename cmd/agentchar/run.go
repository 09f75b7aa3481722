/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"agentchar/internal/agent"
	"agentchar/internal/animation"
	"agentchar/internal/crash"
	applog "agentchar/internal/log"
	"agentchar/internal/session"
	"agentchar/internal/watch"
)

const closeTimeout = 10 * time.Second

type runFlags struct {
	sprites  string
	sounds   string
	watch    bool
	frames   bool
	duration time.Duration
}

func newRunCmd(a *app) *cobra.Command {
	var f runFlags
	cmd := &cobra.Command{
		Use:   "run <character.acd>",
		Short: "Drive a character headlessly, printing balloon text and state changes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			defer crash.Recover(args[0])
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if f.duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, f.duration)
				defer cancel()
			}
			return a.run(ctx, cmd.OutOrStdout(), args[0], f)
		},
	}
	cmd.Flags().StringVar(&f.sprites, "sprites", "", "Directory of NNNN.bmp frame images")
	cmd.Flags().StringVar(&f.sounds, "sounds", "", "Sound bank JSON file or directory of audio files")
	cmd.Flags().BoolVar(&f.watch, "watch", false, "Reload the character when the definition file changes")
	cmd.Flags().BoolVar(&f.frames, "frames", false, "Print every frame change")
	cmd.Flags().DurationVar(&f.duration, "duration", 0, "Stop after this long (0 runs until interrupted)")
	return cmd
}

// run drives one character until ctx ends, reloading it on file changes
// when requested, then plays the closing animation.
func (a *app) run(ctx context.Context, out io.Writer, path string, f runFlags) error {
	l := applog.WithOperation(a.log, "run")
	var changes <-chan string
	if f.watch {
		w, err := watch.New(path)
		if err != nil {
			return err
		}
		defer w.Close()
		changes = w.Events()
	}

	for first := true; ; first = false {
		ag, err := a.open(out, path, f)
		if err != nil {
			if first {
				return err
			}
			// keep watching; the file is often mid-edit
			fmt.Fprintln(out, "! reload failed:", err)
			select {
			case <-changes:
				continue
			case <-ctx.Done():
				return nil
			}
		}
		l.Info("character loaded", slog.String("name", ag.Name()), slog.String("path", path))
		reload, err := drive(ctx, out, ag, changes)
		if !reload {
			return err
		}
		l.Info("definition changed; reloading", slog.String("path", path))
		fmt.Fprintln(out, "~ reloading", path)
	}
}

func (a *app) open(out io.Writer, path string, f runFlags) (*agent.Agent, error) {
	var pmu sync.Mutex
	ag, err := session.Open(path, a.cfg, session.Options{
		SpriteDir:  f.sprites,
		SoundBank:  f.sounds,
		BalloonOut: out,
	})
	if err != nil {
		return nil, err
	}
	ag.OnAnimationCompleted(func(name string) {
		pmu.Lock()
		defer pmu.Unlock()
		fmt.Fprintf(out, "# completed=%s state=%s idle=%d\n", name, ag.CurrentState(), ag.IdleLevel())
	})
	if f.frames {
		ag.OnFrameChanged(func(ev animation.FrameEvent) {
			pmu.Lock()
			defer pmu.Unlock()
			fmt.Fprintf(out, "# frame %s[%d] duration=%d sound=%q\n", ev.Animation, ev.Index, ev.Frame.Duration, ev.Frame.Sound)
		})
	}
	return ag, nil
}

// drive starts ag and blocks until ctx ends or a change arrives. It
// always closes ag; reload reports whether a change ended the run.
func drive(ctx context.Context, out io.Writer, ag *agent.Agent, changes <-chan string) (reload bool, err error) {
	// detached from ctx so the loop keeps ticking through the closing animation
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	loopDone := make(chan error, 1)
	go func() { loopDone <- ag.Run(runCtx) }()

	startDone := make(chan error, 1)
	go func() { startDone <- ag.Start(runCtx) }()

	for waiting := true; waiting; {
		select {
		case err := <-startDone:
			startDone = nil
			if err != nil && runCtx.Err() == nil {
				fmt.Fprintln(out, "! start:", err)
			}
		case <-changes:
			reload = true
			waiting = false
		case <-ctx.Done():
			waiting = false
		}
	}

	closeCtx, closeCancel := context.WithTimeout(context.Background(), closeTimeout)
	if !reload {
		if err := ag.PlayClosingAnimation(closeCtx); err != nil && !errors.Is(err, animation.ErrStopped) {
			fmt.Fprintln(out, "! closing:", err)
		}
	}
	closeCancel()
	cancel()
	<-loopDone
	return reload, ag.Close()
}
