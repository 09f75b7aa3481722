/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export writes printable summaries of a character definition.
package export

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"agentchar/internal/definition"
)

// Sheet layout in points on A4 portrait.
const (
	margin   = 40.0
	lineH    = 14.0
	pageH    = 842.0
	colWidth = 515.0
)

// CharacterSheetPDF writes a one-document overview of def to outPath:
// metadata, balloon settings, localized info, an animation table and the
// state list.
func CharacterSheetPDF(def *definition.Character, outPath string) error {
	return CharacterSheetPDFWithPreview(def, outPath, nil)
}

// CharacterSheetPDFWithPreview is CharacterSheetPDF with a rendered frame
// placed next to the metadata.
func CharacterSheetPDFWithPreview(def *definition.Character, outPath string, preview image.Image) error {
	if def == nil {
		return errors.New("character definition is nil")
	}
	pdf := gofpdf.New("P", "pt", "A4", "")
	title := sheetTitle(def)
	pdf.SetTitle(title+" character sheet", true)
	pdf.SetAuthor("AgentChar", false)
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(colWidth, 24, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	top := pdf.GetY()

	m := def.Meta
	kv(pdf, tr, "GUID", m.GUID.String())
	kv(pdf, tr, "Size", fmt.Sprintf("%d x %d", m.Width, m.Height))
	kv(pdf, tr, "Frame duration", fmt.Sprintf("%d (x10 ms)", m.DefaultFrameDuration))
	kv(pdf, tr, "Transparency", strconv.Itoa(m.Transparency))
	kv(pdf, tr, "Style", m.Style.String())
	kv(pdf, tr, "Color table", m.ColorTable)

	if preview != nil {
		if err := placePreview(pdf, preview, margin+colWidth-128, top); err != nil {
			return err
		}
	}

	section(pdf, "Balloon")
	b := def.Balloon
	kv(pdf, tr, "Lines x chars", fmt.Sprintf("%d x %d", b.NumLines, b.CharsPerLine))
	kv(pdf, tr, "Font", fmt.Sprintf("%s %d", b.FontName, b.FontHeight))
	y := pdf.GetY()
	swatch(pdf, "Fore", b.ForeColor, margin, y)
	swatch(pdf, "Back", b.BackColor, margin+120, y)
	swatch(pdf, "Border", b.BorderColor, margin+240, y)
	pdf.Ln(lineH + 4)

	if len(def.Infos) > 0 {
		section(pdf, "Localized info")
		for _, in := range def.Infos {
			kv(pdf, tr, fmt.Sprintf("0x%04X %s", in.LCID, in.Language), in.Name)
			if in.Description != "" {
				kv(pdf, tr, "  description", in.Description)
			}
			if len(in.Greetings) > 0 {
				kv(pdf, tr, "  greetings", strings.Join(in.Greetings, " / "))
			}
			if len(in.Reminders) > 0 {
				kv(pdf, tr, "  reminders", strings.Join(in.Reminders, " / "))
			}
		}
	}

	section(pdf, fmt.Sprintf("Animations (%d)", len(def.Animations)))
	widths := []float64{215, 60, 80, 80, 80}
	header(pdf, widths, "Name", "Frames", "Duration", "Branches", "Exit frames")
	pdf.SetFont("Helvetica", "", 9)
	for _, name := range def.AnimationNames() {
		a := def.Animations[name]
		branches, exits := 0, 0
		for _, f := range a.Frames {
			branches += len(f.Branches)
			if f.HasExitBranch() {
				exits++
			}
		}
		row(pdf, tr, widths, name, strconv.Itoa(len(a.Frames)), strconv.Itoa(a.TotalDuration()),
			strconv.Itoa(branches), strconv.Itoa(exits))
	}

	if len(def.States) > 0 {
		section(pdf, fmt.Sprintf("States (%d)", len(def.States)))
		pdf.SetFont("Helvetica", "", 10)
		for _, name := range def.StateNames() {
			kv(pdf, tr, name, strings.Join(def.States[name].Animations, ", "))
		}
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func sheetTitle(def *definition.Character) string {
	for _, in := range def.Infos {
		if in.Name != "" {
			return in.Name
		}
	}
	return def.Meta.GUID.String()
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.Ln(6)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(colWidth, lineH+4, title, "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.Ln(2)
}

func kv(pdf *gofpdf.Fpdf, tr func(string) string, k, v string) {
	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(120, lineH, tr(k), "", 0, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.MultiCell(colWidth-120, lineH, tr(v), "", "L", false)
}

func header(pdf *gofpdf.Fpdf, widths []float64, cols ...string) {
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, c := range cols {
		pdf.CellFormat(widths[i], lineH, c, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
}

func row(pdf *gofpdf.Fpdf, tr func(string) string, widths []float64, cols ...string) {
	if pdf.GetY()+lineH > pageH-margin {
		pdf.AddPage()
	}
	for i, c := range cols {
		pdf.CellFormat(widths[i], lineH, tr(c), "1", 0, "L", false, 0, "")
	}
	pdf.Ln(-1)
}

func swatch(pdf *gofpdf.Fpdf, label string, c definition.Color, x, y float64) {
	pdf.SetFillColor(int(c.R()), int(c.G()), int(c.B()))
	pdf.SetDrawColor(0, 0, 0)
	pdf.Rect(x, y, 12, 12, "FD")
	pdf.Text(x+16, y+10, fmt.Sprintf("%s #%02X%02X%02X", label, c.R(), c.G(), c.B()))
}

func placePreview(pdf *gofpdf.Fpdf, img image.Image, x, y float64) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("preview", opt, &buf)
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("register preview: %w", err)
	}
	pdf.ImageOptions("preview", x, y, 128, 0, false, opt, 0, "")
	return nil
}
