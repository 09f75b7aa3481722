/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package balloon lays out and shows the speech balloon next to a character.
package balloon

// Text is measured with x/image/basicfont so layout is deterministic across
// hosts; CharsPerLine is converted to pixels with the face's advance.

import (
	"image"
	"image/draw"
	"strings"
	"unicode/utf8"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"agentchar/internal/definition"
)

// Page is one screenful of wrapped lines.
type Page struct {
	Lines []string
}

const padding = 6

var face font.Face = basicfont.Face7x13

func advance(d *font.Drawer, s string) int { return d.MeasureString(s).Round() }

// maxWidth is CharsPerLine glyphs of the balloon face.
func maxWidth(d *font.Drawer, s definition.Balloon) int {
	n := s.CharsPerLine
	if n <= 0 {
		n = definition.DefaultBalloon().CharsPerLine
	}
	return n * advance(d, "M")
}

// Wrap breaks text on spaces into lines no wider than the balloon and
// groups them into pages of NumLines. Newlines force a break; a word wider
// than a line is split by rune.
func Wrap(text string, s definition.Balloon) []Page {
	d := &font.Drawer{Face: face}
	limit := maxWidth(d, s)
	var lines []string
	for _, para := range strings.Split(text, "\n") {
		cur := ""
		for _, word := range strings.Fields(para) {
			for advance(d, word) > limit {
				if cur != "" {
					lines = append(lines, cur)
					cur = ""
				}
				head, rest := splitAt(d, word, limit)
				lines = append(lines, head)
				word = rest
			}
			switch {
			case cur == "":
				cur = word
			case advance(d, cur+" "+word) <= limit:
				cur += " " + word
			default:
				lines = append(lines, cur)
				cur = word
			}
		}
		if cur != "" {
			lines = append(lines, cur)
		}
	}
	per := s.NumLines
	if per <= 0 {
		per = definition.DefaultBalloon().NumLines
	}
	var pages []Page
	for len(lines) > 0 {
		n := min(per, len(lines))
		pages = append(pages, Page{Lines: lines[:n:n]})
		lines = lines[n:]
	}
	return pages
}

// splitAt returns the longest rune prefix of word fitting limit (at least one rune).
func splitAt(d *font.Drawer, word string, limit int) (string, string) {
	i := 0
	for i < len(word) {
		_, size := utf8.DecodeRuneInString(word[i:])
		if i > 0 && advance(d, word[:i+size]) > limit {
			break
		}
		i += size
	}
	return word[:i], word[i:]
}

// Render draws a page with an optional title line in the balloon colors
// using DefaultFace.
func Render(title string, p Page, s definition.Balloon) *image.NRGBA {
	return RenderFace(title, p, s, face)
}

// RenderFace is Render with a caller-supplied face, typically from SystemFace.
func RenderFace(title string, p Page, s definition.Balloon, f font.Face) *image.NRGBA {
	if f == nil {
		f = face
	}
	d := &font.Drawer{Face: f}
	m := f.Metrics()
	lineH := m.Height.Ceil()
	rows := len(p.Lines)
	if title != "" {
		rows++
	}
	w := maxWidth(d, s) + 2*padding
	h := rows*lineH + 2*padding
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), image.NewUniform(s.BackColor.NRGBA()), image.Point{}, draw.Src)
	border := image.NewUniform(s.BorderColor.NRGBA())
	for _, r := range []image.Rectangle{
		image.Rect(0, 0, w, 1), image.Rect(0, h-1, w, h),
		image.Rect(0, 0, 1, h), image.Rect(w-1, 0, w, h),
	} {
		draw.Draw(img, r, border, image.Point{}, draw.Src)
	}
	d.Dst = img
	d.Src = image.NewUniform(s.ForeColor.NRGBA())
	y := padding + m.Ascent.Ceil()
	put := func(line string) {
		d.Dot = fixed.P(padding, y)
		d.DrawString(line)
		y += lineH
	}
	if title != "" {
		put(title)
	}
	for _, l := range p.Lines {
		put(l)
	}
	return img
}
