/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package definition holds the in-memory character model and the parser for
// the line-oriented character definition language (.acd files).
//
// A Character is built once by Parse and must be treated as read-only
// afterwards; the animation engine and behavior machine share it without
// copying.
package definition

import (
	"encoding/json"
	"fmt"
	"image/color"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// Character is the parsed definition of one animated character.
type Character struct {
	Meta       Meta                  `json:"meta"`
	Infos      []Info                `json:"infos"`
	Balloon    Balloon               `json:"balloon"`
	Animations map[string]*Animation `json:"animations"`
	States     map[string]*State     `json:"states"`
}

// Meta carries the DefineCharacter header fields.
type Meta struct {
	GUID                 uuid.UUID `json:"guid"`
	Width                int       `json:"width"`
	Height               int       `json:"height"`
	Transparency         int       `json:"transparency"`
	DefaultFrameDuration int       `json:"defaultFrameDuration"`
	Style                Style     `json:"style"`
	ColorTable           string    `json:"colorTable,omitempty"`
}

// Info is the localized name, description and balloon text for one language.
type Info struct {
	LCID        uint16       `json:"lcid"`
	Language    language.Tag `json:"language"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	Greetings   []string     `json:"greetings"`
	Reminders   []string     `json:"reminders"`
}

// Balloon describes the speech balloon layout.
type Balloon struct {
	NumLines     int    `json:"numLines"`
	CharsPerLine int    `json:"charsPerLine"`
	FontName     string `json:"fontName"`
	FontHeight   int    `json:"fontHeight"`
	ForeColor    Color  `json:"foreColor"`
	BackColor    Color  `json:"backColor"`
	BorderColor  Color  `json:"borderColor"`
}

// DefaultBalloon is used when a definition has no DefineBalloon section.
func DefaultBalloon() Balloon {
	return Balloon{
		NumLines:     2,
		CharsPerLine: 28,
		FontName:     "MS Sans Serif",
		FontHeight:   13,
		ForeColor:    0x00000000,
		BackColor:    0x00FFFFE1,
		BorderColor:  0x00000000,
	}
}

// Animation is a named, non-empty sequence of frames.
type Animation struct {
	Name           string  `json:"name"`
	TransitionType int     `json:"transitionType"`
	Frames         []Frame `json:"frames"`
}

// TotalDuration sums the frame durations of one sequential pass.
func (a *Animation) TotalDuration() int {
	n := 0
	for _, f := range a.Frames {
		n += f.Duration
	}
	return n
}

// Frame is one step of an animation. Duration is in hundredths of a second.
// ExitBranch and Branch targets are 0-based frame indices.
type Frame struct {
	Duration   int      `json:"duration"`
	Sound      string   `json:"sound,omitempty"`
	ExitBranch *int     `json:"exitBranch,omitempty"`
	Images     []Image  `json:"images,omitempty"`
	Branches   []Branch `json:"branches,omitempty"`
}

// HasExitBranch reports whether an exit target is declared.
func (f Frame) HasExitBranch() bool { return f.ExitBranch != nil }

// ImageKey returns a stable identifier for the frame's artwork: the
// basenames of its images joined by '+', or "" for a blank frame.
func (f Frame) ImageKey() string {
	if len(f.Images) == 0 {
		return ""
	}
	parts := make([]string, len(f.Images))
	for i, im := range f.Images {
		parts[i] = im.Key()
	}
	return strings.Join(parts, "+")
}

// Image references one bitmap drawn at an offset inside the frame.
type Image struct {
	Filename string `json:"filename"`
	OffsetX  int    `json:"offsetX,omitempty"`
	OffsetY  int    `json:"offsetY,omitempty"`
}

// Key is the image basename without extension. Definition files use both
// slash styles, so backslashes are normalized first.
func (im Image) Key() string {
	base := path.Base(strings.ReplaceAll(im.Filename, `\`, "/"))
	return strings.TrimSuffix(base, path.Ext(base))
}

// Branch is a weighted alternative next frame.
type Branch struct {
	Target int `json:"target"`
	Weight int `json:"weight"`
}

// State names an ordered list of candidate animations.
type State struct {
	Name       string   `json:"name"`
	Animations []string `json:"animations"`
}

// AnimationNames returns all animation names sorted.
func (c *Character) AnimationNames() []string {
	out := make([]string, 0, len(c.Animations))
	for n := range c.Animations {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// StateNames returns all state names sorted.
func (c *Character) StateNames() []string {
	out := make([]string, 0, len(c.States))
	for n := range c.States {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Style is the set of AXS_* flags from the Style key.
type Style uint32

const (
	StyleVoiceNone Style = 1 << iota
	StyleBalloonRoundRect
	StyleVoiceTTS
	StyleBalloonOn
	StyleBalloonSizeToText
	StyleBalloonAutoHide
	StyleBalloonAutoPace
	StyleSystemChar
)

var styleTokens = []struct {
	token string
	flag  Style
}{
	{"AXS_VOICE_NONE", StyleVoiceNone},
	{"AXS_BALLOON_ROUNDRECT", StyleBalloonRoundRect},
	{"AXS_VOICE_TTS", StyleVoiceTTS},
	{"AXS_BALLOON_ON", StyleBalloonOn},
	{"AXS_BALLOON_SIZETOTEXT", StyleBalloonSizeToText},
	{"AXS_BALLOON_AUTOHIDE", StyleBalloonAutoHide},
	{"AXS_BALLOON_AUTOPACE", StyleBalloonAutoPace},
	{"AXS_SYSTEM_CHAR", StyleSystemChar},
}

// Has reports whether all bits of f are set.
func (s Style) Has(f Style) bool { return s&f == f }

// Tokens lists the set flags by their definition-file names.
func (s Style) Tokens() []string {
	var out []string
	for _, t := range styleTokens {
		if s.Has(t.flag) {
			out = append(out, t.token)
		}
	}
	return out
}

func (s Style) String() string { return strings.Join(s.Tokens(), "|") }

// MarshalJSON writes the flag names as an array.
func (s Style) MarshalJSON() ([]byte, error) {
	toks := s.Tokens()
	if toks == nil {
		toks = []string{}
	}
	return json.Marshal(toks)
}

// Color is a packed 0xAARRGGBB value. Definition files store colors in
// alpha, blue, green, red byte order; Parse reorders them.
type Color uint32

func (c Color) A() uint8 { return uint8(c >> 24) }
func (c Color) R() uint8 { return uint8(c >> 16) }
func (c Color) G() uint8 { return uint8(c >> 8) }
func (c Color) B() uint8 { return uint8(c) }

// NRGBA converts to an opaque color. The alpha byte is reserved in
// definition files and is zero in practice.
func (c Color) NRGBA() color.NRGBA {
	return color.NRGBA{R: c.R(), G: c.G(), B: c.B(), A: 0xff}
}

// MarshalText renders the ARGB value as 8 upper-case hex digits.
func (c Color) MarshalText() ([]byte, error) {
	return []byte(fmt.Sprintf("%08X", uint32(c))), nil
}
