/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package definition

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// ParseError reports a malformed value. It aborts the whole parse.
type ParseError struct {
	Line  int
	Key   string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: invalid %s %q: %v", e.Line, e.Key, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

var (
	errColorLength = errors.New("color must be 8 hex digits")

	reAnimationHeader = regexp.MustCompile(`^DefineAnimation\s+"([^"]+)"`)
	reStateHeader     = regexp.MustCompile(`^DefineState\s+"([^"]+)"`)
	reInfoHeader      = regexp.MustCompile(`0x([0-9A-Fa-f]{4})`)
)

// ParseFile reads and parses a definition file.
func ParseFile(path string) (*Character, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definition: %w", err)
	}
	c, err := Parse(string(b))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

// Parse builds a Character from definition text.
//
// Recognized sections are DefineCharacter (with nested DefineInfo),
// DefineBalloon, DefineAnimation (DefineFrame, DefineImage, DefineBranching)
// and DefineState, each closed by its End* marker. Blank lines and lines
// starting with "//" are ignored, as are unknown keys.
//
// Branch and exit-branch targets are 1-based in the file and stored 0-based.
// Animations without frames are dropped. Frames without a Duration take the
// character's DefaultFrameDuration.
func Parse(text string) (*Character, error) {
	p := &parser{
		c: &Character{
			Balloon:    DefaultBalloon(),
			Animations: map[string]*Animation{},
			States:     map[string]*State{},
		},
	}
	sc := bufio.NewScanner(strings.NewReader(text))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		p.lines = append(p.lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan definition: %w", err)
	}
	if err := p.run(); err != nil {
		return nil, err
	}
	p.finish()
	return p.c, nil
}

type parser struct {
	lines []string
	pos   int // 1-based number of the last line returned by next
	c     *Character
	// frames that declared no Duration, resolved in finish
	untimed []frameRef
}

type frameRef struct {
	a *Animation
	i int
}

// next returns the next significant trimmed line.
func (p *parser) next() (string, bool) {
	for p.pos < len(p.lines) {
		line := strings.TrimSpace(p.lines[p.pos])
		p.pos++
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		return line, true
	}
	return "", false
}

// block feeds lines to fn until the end marker or EOF.
func (p *parser) block(end string, fn func(line string) error) error {
	for {
		line, ok := p.next()
		if !ok || line == end {
			return nil
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

func (p *parser) skip(end string) { _ = p.block(end, func(string) error { return nil }) }

func (p *parser) run() error {
	for {
		line, ok := p.next()
		if !ok {
			return nil
		}
		var err error
		switch {
		case strings.HasPrefix(line, "DefineCharacter"):
			err = p.character()
		case strings.HasPrefix(line, "DefineBalloon"):
			err = p.balloon()
		case strings.HasPrefix(line, "DefineAnimation"):
			err = p.animation(line)
		case strings.HasPrefix(line, "DefineState"):
			p.state(line)
		}
		if err != nil {
			return err
		}
	}
}

func (p *parser) character() error {
	m := &p.c.Meta
	return p.block("EndCharacter", func(line string) error {
		if strings.HasPrefix(line, "DefineInfo") {
			return p.info(line)
		}
		key, val, ok := keyValue(line)
		if !ok {
			return nil
		}
		var err error
		switch key {
		case "GUID":
			m.GUID, err = p.guid(key, val)
		case "Width":
			m.Width, err = p.int(key, val)
		case "Height":
			m.Height, err = p.int(key, val)
		case "Transparency":
			m.Transparency, err = p.int(key, val)
		case "DefaultFrameDuration":
			m.DefaultFrameDuration, err = p.int(key, val)
		case "Style":
			m.Style = parseStyle(val)
		case "ColorTable":
			m.ColorTable = val
		}
		return err
	})
}

func (p *parser) info(header string) error {
	mm := reInfoHeader.FindStringSubmatch(header)
	if mm == nil {
		p.skip("EndInfo")
		return nil
	}
	// four hex digits always fit
	lcid, _ := strconv.ParseUint(mm[1], 16, 16)
	in := Info{LCID: uint16(lcid), Language: TagForLCID(uint16(lcid)), Reminders: []string{}}
	err := p.block("EndInfo", func(line string) error {
		key, val, ok := keyValue(line)
		if !ok {
			return nil
		}
		switch key {
		case "Name":
			in.Name = val
		case "Description":
			in.Description = val
		case "ExtraData":
			in.Greetings, in.Reminders = splitExtraData(val)
		}
		return nil
	})
	if err != nil {
		return err
	}
	p.c.Infos = append(p.c.Infos, in)
	return nil
}

func (p *parser) balloon() error {
	b := &p.c.Balloon
	return p.block("EndBalloon", func(line string) error {
		key, val, ok := keyValue(line)
		if !ok {
			return nil
		}
		var err error
		switch key {
		case "NumLines":
			b.NumLines, err = p.int(key, val)
		case "CharsPerLine":
			b.CharsPerLine, err = p.int(key, val)
		case "FontName":
			b.FontName = val
		case "FontHeight":
			b.FontHeight, err = p.int(key, val)
		case "ForeColor":
			b.ForeColor, err = p.color(key, val)
		case "BackColor":
			b.BackColor, err = p.color(key, val)
		case "BorderColor":
			b.BorderColor, err = p.color(key, val)
		}
		return err
	})
}

func (p *parser) animation(header string) error {
	mm := reAnimationHeader.FindStringSubmatch(header)
	if mm == nil {
		p.skip("EndAnimation")
		return nil
	}
	a := &Animation{Name: mm[1]}
	err := p.block("EndAnimation", func(line string) error {
		if strings.HasPrefix(line, "DefineFrame") {
			return p.frame(a)
		}
		key, val, ok := keyValue(line)
		if ok && key == "TransitionType" {
			n, err := p.int(key, val)
			a.TransitionType = n
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}
	if len(a.Frames) > 0 {
		p.c.Animations[a.Name] = a
	}
	return nil
}

func (p *parser) frame(a *Animation) error {
	var f Frame
	timed := false
	err := p.block("EndFrame", func(line string) error {
		switch {
		case strings.HasPrefix(line, "DefineImage"):
			im, err := p.image()
			if err == nil {
				f.Images = append(f.Images, im)
			}
			return err
		case strings.HasPrefix(line, "DefineBranching"):
			br, err := p.branching()
			f.Branches = append(f.Branches, br...)
			return err
		}
		key, val, ok := keyValue(line)
		if !ok {
			return nil
		}
		switch key {
		case "Duration":
			n, err := p.int(key, val)
			f.Duration, timed = n, true
			return err
		case "ExitBranch":
			n, err := p.int(key, val)
			if err != nil {
				return err
			}
			if n >= 1 {
				idx := n - 1
				f.ExitBranch = &idx
			}
		case "SoundEffect":
			f.Sound = val
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.Frames = append(a.Frames, f)
	if !timed {
		p.untimed = append(p.untimed, frameRef{a, len(a.Frames) - 1})
	}
	return nil
}

func (p *parser) image() (Image, error) {
	var im Image
	err := p.block("EndImage", func(line string) error {
		key, val, ok := keyValue(line)
		if !ok {
			return nil
		}
		var err error
		switch key {
		case "Filename":
			im.Filename = val
		case "OffsetX":
			im.OffsetX, err = p.int(key, val)
		case "OffsetY":
			im.OffsetY, err = p.int(key, val)
		}
		return err
	})
	return im, err
}

// branching collects BranchTo/Probability pairs. A pair is committed once
// both fields are positive, then the accumulator starts over.
func (p *parser) branching() ([]Branch, error) {
	var out []Branch
	var to, weight int
	err := p.block("EndBranching", func(line string) error {
		key, val, ok := keyValue(line)
		if !ok {
			return nil
		}
		var err error
		switch key {
		case "BranchTo":
			to, err = p.int(key, val)
		case "Probability":
			weight, err = p.int(key, val)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		if to > 0 && weight > 0 {
			out = append(out, Branch{Target: to - 1, Weight: weight})
			to, weight = 0, 0
		}
		return nil
	})
	return out, err
}

func (p *parser) state(header string) {
	mm := reStateHeader.FindStringSubmatch(header)
	if mm == nil {
		p.skip("EndState")
		return
	}
	s := &State{Name: mm[1], Animations: []string{}}
	_ = p.block("EndState", func(line string) error {
		if key, val, ok := keyValue(line); ok && key == "Animation" {
			s.Animations = append(s.Animations, val)
		}
		return nil
	})
	p.c.States[s.Name] = s
}

// finish applies defaults that depend on the whole file.
func (p *parser) finish() {
	for _, r := range p.untimed {
		r.a.Frames[r.i].Duration = p.c.Meta.DefaultFrameDuration
	}
	if p.c.Infos == nil {
		p.c.Infos = []Info{}
	}
}

func (p *parser) fail(key, val string, err error) error {
	return &ParseError{Line: p.pos, Key: key, Value: val, Err: err}
}

func (p *parser) int(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, p.fail(key, val, err)
	}
	return n, nil
}

func (p *parser) guid(key, val string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.Trim(val, "{}"))
	if err != nil {
		return uuid.Nil, p.fail(key, val, err)
	}
	return id, nil
}

func (p *parser) color(key, val string) (Color, error) {
	c, err := ParseColor(val)
	if err != nil {
		return 0, p.fail(key, val, err)
	}
	return c, nil
}

// ParseColor decodes 8 hex digits stored as alpha, blue, green, red.
func ParseColor(s string) (Color, error) {
	if len(s) != 8 {
		return 0, errColorLength
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, err
	}
	a := uint32(v>>24) & 0xff
	b := uint32(v>>16) & 0xff
	g := uint32(v>>8) & 0xff
	r := uint32(v) & 0xff
	return Color(a<<24 | r<<16 | g<<8 | b), nil
}

func parseStyle(val string) Style {
	var s Style
	for _, tok := range strings.Split(val, "|") {
		tok = strings.TrimSpace(tok)
		for _, t := range styleTokens {
			if t.token == tok {
				s |= t.flag
			}
		}
	}
	return s
}

// splitExtraData splits "g1~~g2^^r1~~r2" into greetings and reminders.
// Empty messages are dropped.
func splitExtraData(s string) (greetings, reminders []string) {
	before, after, found := strings.Cut(s, "^^")
	greetings = splitMessages(before)
	reminders = []string{}
	if found {
		reminders = splitMessages(after)
	}
	return greetings, reminders
}

func splitMessages(s string) []string {
	out := []string{}
	for _, m := range strings.Split(s, "~~") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// keyValue splits "key = value" and strips surrounding quotes from value.
func keyValue(line string) (key, val string, ok bool) {
	k, v, found := strings.Cut(line, "=")
	if !found {
		return "", "", false
	}
	return strings.TrimSpace(k), strings.Trim(strings.TrimSpace(v), `"`), true
}
