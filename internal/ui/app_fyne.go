//go:build fyne && cgo

/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package ui

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/driver/desktop"
	"golang.org/x/image/font"

	"agentchar/internal/balloon"
	"agentchar/internal/crash"
	"agentchar/internal/definition"
	applog "agentchar/internal/log"
	"agentchar/internal/session"
	"agentchar/internal/version"
)

const closeTimeout = 10 * time.Second

// Run shows the character at characterPath in a desktop window with a
// main menu and a system tray menu, and blocks until the user exits.
func Run(characterPath string, opts Options) error {
	l := applog.WithComponent("ui")
	l.Info("starting UI", slog.String("character", characterPath))
	defer crash.Recover(characterPath)

	def, err := definition.ParseFile(characterPath)
	if err != nil {
		return fmt.Errorf("load character: %w", err)
	}

	fyneApp := app.NewWithID("agentchar")
	w := fyneApp.NewWindow("AgentChar")
	prefs := fyneApp.Preferences()

	scale := opts.Config.Agent.Scale
	if scale < 1 {
		scale = 1
	}
	frame := canvas.NewImageFromImage(nil)
	frame.FillMode = canvas.ImageFillOriginal
	frame.ScaleMode = canvas.ImageScalePixels
	frame.SetMinSize(fyne.NewSize(float32(def.Meta.Width*scale), float32(def.Meta.Height*scale)))
	bal := newBalloonView(def.Balloon)

	var mu sync.Mutex
	var redraw func()
	a, err := session.Build(def, opts.Config, session.Options{
		SpriteDir: opts.SpriteDir,
		SoundBank: opts.SoundBank,
		Balloon:   bal,
		OnRedraw: func() {
			mu.Lock()
			f := redraw
			mu.Unlock()
			if f != nil {
				f()
			}
		},
	})
	if err != nil {
		return err
	}
	mu.Lock()
	redraw = func() {
		fyne.Do(func() {
			if img, ok := a.CurrentImage(); ok {
				frame.Image = img
				frame.Refresh()
			}
		})
	}
	mu.Unlock()
	w.SetTitle(a.Name())

	ctx, cancel := context.WithCancel(applog.WithCharacter(context.Background(), a.Name()))
	defer cancel()

	var quitOnce sync.Once
	quit := func() {
		quitOnce.Do(func() {
			cctx, ccancel := context.WithTimeout(ctx, closeTimeout)
			if err := a.PlayClosingAnimation(cctx); err != nil {
				l.Warn("closing animation", slog.Any("err", err))
			}
			ccancel()
			cancel()
			if err := a.Close(); err != nil {
				l.Warn("close agent", slog.Any("err", err))
			}
			fyne.Do(fyneApp.Quit)
		})
	}
	host := NewHost(ctx, a, quit)

	content := container.NewCenter(frame)
	aboutItem := fyne.NewMenuItem("About AgentChar", func() {
		l.Info("menu: about")
		exe, _ := os.Executable()
		info := fmt.Sprintf("AgentChar\nVersion: %s\nOS: %s\nArch: %s\nGo: %s\nExecutable: %s\nCharacter: %s",
			version.String(), runtime.GOOS, runtime.GOARCH, runtime.Version(), exe, characterPath)
		dialog.ShowInformation("About", info, w)
	})

	var refreshMenus func()
	syncVisibility := func() {
		if host.Visible() {
			content.Show()
		}
		refreshMenus()
	}
	refreshMenus = func() {
		items := host.Menu()
		w.SetMainMenu(fyne.NewMainMenu(
			fyne.NewMenu("Character", toMenuItems(items, syncVisibility)...),
			fyne.NewMenu("About", aboutItem),
		))
		if desk, ok := fyneApp.(desktop.App); ok {
			desk.SetSystemTrayMenu(fyne.NewMenu(a.Name(), toMenuItems(items, syncVisibility)...))
		}
	}
	a.OnAnimationCompleted(func(string) {
		fyne.Do(func() {
			if !host.Visible() {
				content.Hide()
			}
			refreshMenus()
		})
	})

	w.SetContent(container.NewBorder(bal.img, nil, nil, nil, content))
	winW := prefs.IntWithFallback("window.width", def.Meta.Width*scale+40)
	winH := prefs.IntWithFallback("window.height", def.Meta.Height*scale+120)
	w.Resize(fyne.NewSize(float32(winW), float32(winH)))
	w.SetCloseIntercept(func() {
		sz := w.Canvas().Size()
		prefs.SetInt("window.width", int(sz.Width))
		prefs.SetInt("window.height", int(sz.Height))
		go quit()
	})
	refreshMenus()

	go func() {
		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			l.Error("agent loop stopped", slog.Any("err", err))
		}
	}()
	go func() {
		if err := a.Start(ctx); err != nil {
			l.Warn("start", slog.Any("err", err))
		}
		fyne.Do(refreshMenus)
	}()

	w.ShowAndRun()
	return nil
}

// toMenuItems converts the host menu model; after runs following every action.
func toMenuItems(items []Item, after func()) []*fyne.MenuItem {
	out := make([]*fyne.MenuItem, 0, len(items))
	for _, it := range items {
		if it.IsSeparator() {
			out = append(out, fyne.NewMenuItemSeparator())
			continue
		}
		it := it
		mi := fyne.NewMenuItem(it.Label, nil)
		if it.Action != nil {
			mi.Action = func() {
				it.Action()
				if after != nil {
					after()
				}
			}
		}
		mi.Checked = it.Checked
		mi.Disabled = it.Disabled
		if len(it.Children) > 0 {
			mi.ChildMenu = fyne.NewMenu(it.Label, toMenuItems(it.Children, after)...)
		}
		out = append(out, mi)
	}
	return out
}

// balloonView renders balloon pages above the character and advances
// through them until the display time is used up.
type balloonView struct {
	img      *canvas.Image
	settings definition.Balloon
	face     font.Face

	mu    sync.Mutex
	seq   int
	timer *time.Timer
}

func newBalloonView(s definition.Balloon) *balloonView {
	img := canvas.NewImageFromImage(nil)
	img.FillMode = canvas.ImageFillOriginal
	img.Hide()
	f, ok := balloon.SystemFace(s)
	if !ok {
		f = balloon.DefaultFace()
	}
	return &balloonView{img: img, settings: s, face: f}
}

func (b *balloonView) Show(title, text string, d time.Duration) {
	pages := balloon.Wrap(text, b.settings)
	if len(pages) == 0 {
		b.Hide()
		return
	}
	b.mu.Lock()
	b.seq++
	seq := b.seq
	b.mu.Unlock()
	per := d / time.Duration(len(pages))
	b.showPage(seq, title, pages, 0, per)
}

func (b *balloonView) showPage(seq int, title string, pages []balloon.Page, i int, per time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if seq != b.seq {
		return
	}
	if b.timer != nil {
		b.timer.Stop()
	}
	if i >= len(pages) {
		b.timer = nil
		fyne.Do(b.img.Hide)
		return
	}
	rendered := balloon.RenderFace(title, pages[i], b.settings, b.face)
	fyne.Do(func() {
		b.img.Image = rendered
		sz := rendered.Bounds().Size()
		b.img.SetMinSize(fyne.NewSize(float32(sz.X), float32(sz.Y)))
		b.img.Show()
		b.img.Refresh()
	})
	if per > 0 {
		b.timer = time.AfterFunc(per, func() { b.showPage(seq, title, pages, i+1, per) })
	}
}

func (b *balloonView) Hide() {
	b.mu.Lock()
	b.seq++
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.mu.Unlock()
	fyne.Do(b.img.Hide)
}
