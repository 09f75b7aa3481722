/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package balloon

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/flopp/go-findfont"
	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"

	"agentchar/internal/definition"
	applog "agentchar/internal/log"
)

// DefaultFace is the built-in bitmap face used when the balloon font is
// not installed.
func DefaultFace() font.Face { return face }

// SystemFace looks up the balloon's FontName among the installed fonts and
// opens it at FontHeight pixels. ok is false when the font is missing or
// unreadable; callers then use DefaultFace.
func SystemFace(s definition.Balloon) (f font.Face, ok bool) {
	name := strings.TrimSpace(s.FontName)
	if name == "" {
		return nil, false
	}
	l := applog.WithComponent("balloon")
	path, err := findfont.Find(name + ".ttf")
	if err != nil {
		l.Debug("font not installed", slog.String("font", name))
		return nil, false
	}
	f, err = openFace(path, s.FontHeight)
	if err != nil {
		l.Warn("font unusable", slog.String("font", name), slog.String("path", path), slog.Any("err", err))
		return nil, false
	}
	return f, true
}

func openFace(path string, height int) (font.Face, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	otf, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if height <= 0 {
		height = definition.DefaultBalloon().FontHeight
	}
	return opentype.NewFace(otf, &opentype.FaceOptions{Size: float64(height), DPI: 72, Hinting: font.HintingFull})
}
