/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package definition

import (
	"errors"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"

	"golang.org/x/text/language"
)

func loadSample(t *testing.T) *Character {
	t.Helper()
	c, err := ParseFile(filepath.Join("testdata", "merlin.acd"))
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	return c
}

func TestParseCharacterHeader(t *testing.T) {
	c := loadSample(t)
	if got := c.Meta.GUID.String(); got != "0fb7e820-2d72-11d1-a5d6-00c04fb6de47" {
		t.Fatalf("unexpected guid: %q", got)
	}
	if c.Meta.Width != 128 || c.Meta.Height != 128 || c.Meta.Transparency != 1 {
		t.Fatalf("unexpected dimensions: %+v", c.Meta)
	}
	if !c.Meta.Style.Has(StyleVoiceNone) || !c.Meta.Style.Has(StyleBalloonRoundRect) {
		t.Fatalf("expected voice-none and roundrect styles, got %s", c.Meta.Style)
	}
	if c.Meta.Style.Has(StyleVoiceTTS) {
		t.Fatalf("unexpected TTS flag")
	}
	if c.Meta.ColorTable != `Images\0001.bmp` {
		t.Fatalf("unexpected color table: %q", c.Meta.ColorTable)
	}
}

func TestParseInfoExtraData(t *testing.T) {
	c := loadSample(t)
	if len(c.Infos) != 2 {
		t.Fatalf("expected 2 infos, got %d", len(c.Infos))
	}
	en := c.Infos[0]
	if en.LCID != 0x0409 || en.Language != language.AmericanEnglish {
		t.Fatalf("unexpected language: %#x %s", en.LCID, en.Language)
	}
	if !reflect.DeepEqual(en.Greetings, []string{"Hi", "Hello"}) {
		t.Fatalf("unexpected greetings: %q", en.Greetings)
	}
	if !reflect.DeepEqual(en.Reminders, []string{"Bye", "See ya"}) {
		t.Fatalf("unexpected reminders: %q", en.Reminders)
	}
	de := c.Infos[1]
	if len(de.Reminders) != 0 || !reflect.DeepEqual(de.Greetings, []string{"Hallo"}) {
		t.Fatalf("unexpected german info: %+v", de)
	}
}

func TestParseInfoWithoutCodeIsSkipped(t *testing.T) {
	c, err := Parse("DefineCharacter\nDefineInfo\nName = \"x\"\nEndInfo\nWidth = 5\nEndCharacter\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(c.Infos) != 0 {
		t.Fatalf("expected info to be skipped, got %+v", c.Infos)
	}
	if c.Meta.Width != 5 {
		t.Fatalf("expected parsing to continue after skipped info, width=%d", c.Meta.Width)
	}
}

func TestParseBalloonColors(t *testing.T) {
	c := loadSample(t)
	b := c.Balloon
	if b.NumLines != 3 || b.CharsPerLine != 32 || b.FontName != "Tahoma" || b.FontHeight != 14 {
		t.Fatalf("unexpected balloon: %+v", b)
	}
	bc := b.BackColor
	if bc.A() != 0x00 || bc.B() != 0xE1 || bc.G() != 0xFF || bc.R() != 0xFF {
		t.Fatalf("unexpected back color channels a=%#x r=%#x g=%#x b=%#x", bc.A(), bc.R(), bc.G(), bc.B())
	}
}

func TestParseColorByteOrder(t *testing.T) {
	c, err := ParseColor("00E1FFFF")
	if err != nil {
		t.Fatalf("ParseColor: %v", err)
	}
	if c != 0x00FFFFE1 {
		t.Fatalf("expected ARGB 00FFFFE1, got %08X", uint32(c))
	}
	if _, err := ParseColor("E1FFFF"); err == nil {
		t.Fatalf("expected error for short color")
	}
}

func TestDefaultBalloonWithoutSection(t *testing.T) {
	c, err := Parse("DefineCharacter\nEndCharacter\n")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Balloon != DefaultBalloon() {
		t.Fatalf("expected default balloon, got %+v", c.Balloon)
	}
}

func TestParseAnimationsAndFrames(t *testing.T) {
	c := loadSample(t)
	if _, ok := c.Animations["Empty"]; ok {
		t.Fatalf("animation without frames should be dropped")
	}
	if len(c.Animations) != 2 {
		t.Fatalf("expected 2 animations, got %v", c.AnimationNames())
	}
	g := c.Animations["Greeting"]
	if len(g.Frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(g.Frames))
	}
	f1 := g.Frames[1]
	if f1.Duration != 20 || f1.Sound != "1" {
		t.Fatalf("unexpected frame 1: %+v", f1)
	}
	if f1.Images[0].OffsetX != 4 || f1.Images[0].OffsetY != -2 || f1.ImageKey() != "0002" {
		t.Fatalf("unexpected image: %+v key=%q", f1.Images[0], f1.ImageKey())
	}
	if g.Frames[2].Duration != 10 {
		t.Fatalf("frame without duration should inherit default, got %d", g.Frames[2].Duration)
	}
	if g.TotalDuration() != 40 {
		t.Fatalf("unexpected total duration %d", g.TotalDuration())
	}
}

func TestParseBranchingIsZeroBased(t *testing.T) {
	c := loadSample(t)
	f := c.Animations["IdleBlink"].Frames[0]
	want := []Branch{{Target: 1, Weight: 40}, {Target: 2, Weight: 60}}
	if !reflect.DeepEqual(f.Branches, want) {
		t.Fatalf("unexpected branches: %+v", f.Branches)
	}
	if !f.HasExitBranch() || *f.ExitBranch != 2 {
		t.Fatalf("unexpected exit branch: %v", f.ExitBranch)
	}
	if c.Animations["IdleBlink"].Frames[1].HasExitBranch() {
		t.Fatalf("frame 1 should have no exit branch")
	}
}

func TestBranchPairNeedsBothFields(t *testing.T) {
	src := `DefineAnimation "A"
DefineFrame
Duration = 1
DefineBranching
BranchTo = 2
BranchTo = 3
Probability = 50
Probability = 10
EndBranching
EndFrame
EndAnimation`
	c, err := Parse(src)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := c.Animations["A"].Frames[0].Branches
	if len(got) != 1 || got[0].Target != 2 || got[0].Weight != 50 {
		t.Fatalf("expected single committed pair {2 50}, got %+v", got)
	}
}

func TestBranchingIgnoresUnknownKeys(t *testing.T) {
	src := `DefineAnimation "A"
DefineFrame
Duration = 1
DefineBranching
BranchTo = 1
Comment = "hi"
Probability = 50
EndBranching
EndFrame
EndAnimation`
	c, err := Parse(src)
	if err != nil {
		t.Fatalf("unknown key inside branching should be ignored: %v", err)
	}
	want := []Branch{{Target: 0, Weight: 50}}
	if got := c.Animations["A"].Frames[0].Branches; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected branches %+v", got)
	}
}

func TestBranchingRejectsBadProbability(t *testing.T) {
	src := `DefineAnimation "A"
DefineFrame
DefineBranching
BranchTo = 1
Probability = lots
EndBranching
EndFrame
EndAnimation`
	_, err := Parse(src)
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Key != "Probability" || pe.Line != 5 {
		t.Fatalf("expected ParseError for Probability on line 5, got %v", err)
	}
}

func TestStyleMarshalsFlagNames(t *testing.T) {
	b, err := (StyleSystemChar).MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if string(b) != `["AXS_SYSTEM_CHAR"]` {
		t.Fatalf("unexpected json %s", b)
	}
	b, _ = Style(0).MarshalJSON()
	if string(b) != "[]" {
		t.Fatalf("empty style should marshal to [], got %s", b)
	}
}

func TestParseStatesKeepOrder(t *testing.T) {
	c := loadSample(t)
	s, ok := c.States["Idle1"]
	if !ok {
		t.Fatalf("state Idle1 missing")
	}
	if !reflect.DeepEqual(s.Animations, []string{"Wave", "Blink"}) {
		t.Fatalf("unexpected candidates: %q", s.Animations)
	}
	if len(c.States) != 2 {
		t.Fatalf("nameless state should be skipped, got %v", c.StateNames())
	}
}

func TestParseErrorAbortsLoad(t *testing.T) {
	cases := map[string]string{
		"Width":     "DefineCharacter\nWidth = wide\nEndCharacter",
		"GUID":      "DefineCharacter\nGUID = {not-a-guid}\nEndCharacter",
		"BackColor": "DefineBalloon\nBackColor = 00E1FFZZ\nEndBalloon",
		"Duration":  "DefineAnimation \"A\"\nDefineFrame\nDuration = 1.5\nEndFrame\nEndAnimation",
	}
	for key, src := range cases {
		c, err := Parse(src)
		if err == nil {
			t.Fatalf("%s: expected error, got %+v", key, c)
		}
		if c != nil {
			t.Fatalf("%s: expected no partial result", key)
		}
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Fatalf("%s: expected *ParseError, got %T", key, err)
		}
		if pe.Key != key || pe.Line != 2 && key != "Duration" {
			t.Fatalf("%s: unexpected error detail %+v", key, pe)
		}
	}
}

func TestParseErrorReportsLine(t *testing.T) {
	_, err := Parse("// header\n\nDefineCharacter\n  Height = x\nEndCharacter")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Line != 4 {
		t.Fatalf("expected line 4, got %d", pe.Line)
	}
	var numErr *strconv.NumError
	if !errors.As(err, &numErr) {
		t.Fatalf("expected wrapped strconv error, got %v", pe.Err)
	}
}

func TestTagForLCIDFallback(t *testing.T) {
	if got := TagForLCID(0x0409); got != language.AmericanEnglish {
		t.Fatalf("unexpected tag %s", got)
	}
	// Swiss French is not in the table; primary language still resolves.
	if base, _ := TagForLCID(0x100C).Base(); base.String() != "fr" {
		t.Fatalf("expected fr fallback, got %s", base)
	}
	if TagForLCID(0x7FFF) != language.Und {
		t.Fatalf("expected und for unknown lcid")
	}
}
