/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package sprite loads numbered BMP frames for a character and composes
// them into the image shown for an animation frame.
package sprite

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"

	"agentchar/internal/definition"
	applog "agentchar/internal/log"
)

var (
	ErrNotPaletted = errors.New("color table is not a paletted image")
	ErrClosed      = errors.New("sprite sheet closed")
)

// Sheet holds the decoded sprites of one character.
type Sheet struct {
	width, height int
	scale         int
	log           *slog.Logger

	mu      sync.RWMutex
	sprites map[int]*image.NRGBA
	closed  bool
}

// Load reads every NNNN.bmp in dir. Pixels matching the color table's
// transparency entry become fully transparent. A missing color table
// leaves sprites opaque.
func Load(dir string, def *definition.Character, scale int) (*Sheet, error) {
	if scale < 1 {
		scale = 1
	}
	s := &Sheet{
		width:   def.Meta.Width,
		height:  def.Meta.Height,
		scale:   scale,
		log:     applog.WithComponent("sprite"),
		sprites: map[int]*image.NRGBA{},
	}

	var key color.Color
	if ct := def.Meta.ColorTable; ct != "" {
		// definitions carry Windows paths; the table sits next to the frames
		p := filepath.Join(dir, filepath.Base(strings.ReplaceAll(ct, `\`, "/")))
		c, err := TransparencyColor(p, def.Meta.Transparency)
		if err != nil {
			s.log.Warn("no transparency color", slog.String("table", p), slog.Any("err", err))
		} else {
			key = c
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read sprites: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.EqualFold(filepath.Ext(name), ".bmp") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSuffix(name, filepath.Ext(name)))
		if err != nil {
			continue
		}
		img, err := decodeFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("load sprite %s: %w", name, err)
		}
		s.sprites[n] = keyed(img, key)
	}
	s.log.Debug("sprites loaded", slog.String("dir", dir), slog.Int("count", len(s.sprites)))
	return s, nil
}

// FromImages builds a sheet from already decoded sprites.
func FromImages(width, height, scale int, sprites map[int]image.Image) *Sheet {
	if scale < 1 {
		scale = 1
	}
	s := &Sheet{width: width, height: height, scale: scale, log: applog.WithComponent("sprite"), sprites: map[int]*image.NRGBA{}}
	for n, img := range sprites {
		s.sprites[n] = keyed(img, nil)
	}
	return s
}

// TransparencyColor returns palette entry index of the BMP at path.
func TransparencyColor(path string, index int) (color.Color, error) {
	img, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	p, ok := img.(*image.Paletted)
	if !ok {
		return nil, ErrNotPaletted
	}
	if index < 0 || index >= len(p.Palette) {
		return nil, fmt.Errorf("transparency index %d outside palette of %d", index, len(p.Palette))
	}
	return p.Palette[index], nil
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return bmp.Decode(f)
}

// keyed converts img to NRGBA, clearing pixels equal to key.
func keyed(img image.Image, key color.Color) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	if key == nil {
		return out
	}
	kr, kg, kb, _ := key.RGBA()
	want := color.NRGBA{R: uint8(kr >> 8), G: uint8(kg >> 8), B: uint8(kb >> 8), A: 0xFF}
	for i := 0; i+3 < len(out.Pix); i += 4 {
		px := out.Pix[i : i+4 : i+4]
		if px[0] == want.R && px[1] == want.G && px[2] == want.B {
			px[0], px[1], px[2], px[3] = 0, 0, 0, 0
		}
	}
	return out
}

// Size is the scaled output size.
func (s *Sheet) Size() (int, int) { return s.width * s.scale, s.height * s.scale }

// Len is the number of loaded sprites.
func (s *Sheet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sprites)
}

// Render composes the frame's images, last declared first, each at its
// offset, scaled with nearest-neighbour. Images whose file name is not a
// loaded sprite number are skipped.
func (s *Sheet) Render(f definition.Frame) (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	w, h := s.Size()
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := len(f.Images) - 1; i >= 0; i-- {
		im := f.Images[i]
		n, err := strconv.Atoi(im.Key())
		if err != nil {
			continue
		}
		src, ok := s.sprites[n]
		if !ok {
			continue
		}
		sr := image.Rect(0, 0, min(s.width, src.Bounds().Dx()), min(s.height, src.Bounds().Dy()))
		r := image.Rect(im.OffsetX, im.OffsetY, im.OffsetX+sr.Dx(), im.OffsetY+sr.Dy())
		r.Min, r.Max = r.Min.Mul(s.scale), r.Max.Mul(s.scale)
		draw.NearestNeighbor.Scale(dst, r, src, sr, draw.Over, nil)
	}
	return dst, nil
}

// Close drops the decoded sprites.
func (s *Sheet) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.sprites = nil
	return nil
}
