/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"fmt"
	"image/color"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/version"

	"github.com/jung-kurt/gofpdf"
)

// PDFOptions controls the layout sheet.
// Units are points. The page is A4 landscape; the canvas is scaled to fit
// inside the margins.
type PDFOptions struct {
	Title string
	// AreaTable adds a second page listing every area with its geometry.
	AreaTable bool
	// Now stamps the footer; zero uses time.Now.
	Now time.Time
}

const pdfMargin = 36.0

// WritePDF renders the layout sheet of doc.
func WritePDF(w io.Writer, doc *domain.Document, opt PDFOptions) error {
	pdf, err := layoutSheet(doc, opt)
	if err != nil {
		return err
	}
	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// ExportPDF writes the layout sheet to path.
func ExportPDF(path string, doc *domain.Document, opt PDFOptions) error {
	pdf, err := layoutSheet(doc, opt)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

func layoutSheet(doc *domain.Document, opt PDFOptions) (*gofpdf.Fpdf, error) {
	boxes, cw, ch, err := Layout(doc)
	if err != nil {
		return nil, err
	}
	tpl := doc.Template
	title := opt.Title
	if title == "" {
		title = tpl.Name
	}
	if !isLatin1(title) {
		title = tpl.ID
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now()
	}

	pdf := gofpdf.New("L", "pt", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(title, true)
	pdf.SetCreator("NebulaScreen "+version.Version, true)
	pdf.SetAutoPageBreak(false, pdfMargin)
	pageW, pageH := pdf.GetPageSize()

	pdf.AddPage()
	pdf.SetFont("Helvetica", "B", 16)
	pdf.Text(pdfMargin, pdfMargin+4, tr(title))
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(90, 90, 90)
	pdf.Text(pdfMargin, pdfMargin+18, tr(fmt.Sprintf("%s layout, %.0f x %.0f px, %d areas", tpl.Mode(), cw, ch, len(boxes))))

	// Canvas frame below the header.
	top := pdfMargin + 30
	availW := pageW - 2*pdfMargin
	availH := pageH - top - pdfMargin - 14
	s := math.Min(availW/cw, availH/ch)
	ox := pdfMargin + (availW-cw*s)/2
	oy := top

	setFillColor(pdf, background(tpl.BackgroundColor))
	pdf.Rect(ox, oy, cw*s, ch*s, "F")
	pdf.SetLineWidth(1)
	for _, b := range boxes {
		fill, stroke := kindColors(b)
		setFillColor(pdf, fill)
		setDrawColor(pdf, stroke)
		pdf.Rect(ox+b.X*s, oy+b.Y*s, b.W*s, b.H*s, "FD")

		pdf.SetTextColor(232, 238, 247)
		pdf.SetFont("Helvetica", "", 8)
		pdf.ClipRect(ox+b.X*s, oy+b.Y*s, b.W*s, b.H*s, false)
		pdf.Text(ox+b.X*s+4, oy+b.Y*s+11, tr(b.Label()))
		pdf.ClipEnd()
	}

	footer(pdf, tr, pageH, now)

	if opt.AreaTable && len(boxes) > 0 {
		areaTable(pdf, tr, boxes)
		footer(pdf, tr, pageH, now)
	}
	return pdf, pdf.Error()
}

func areaTable(pdf *gofpdf.Fpdf, tr func(string) string, boxes []Box) {
	pdf.AddPage()
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetXY(pdfMargin, pdfMargin)
	pdf.CellFormat(0, 18, "Areas", "", 1, "L", false, 0, "")

	widths := []float64{120, 180, 160, 160, 80}
	pdf.SetFont("Helvetica", "B", 9)
	pdf.SetFillColor(230, 234, 240)
	for i, h := range []string{"ID", "Name", "Widget", "Geometry", "Kind"} {
		pdf.CellFormat(widths[i], 16, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Helvetica", "", 9)
	for _, b := range boxes {
		name := b.Name
		if !isLatin1(name) {
			name = "-"
		}
		widget := string(b.Type)
		if b.Empty {
			widget = "(empty)"
		}
		cells := []string{b.AreaID, name, widget, b.Geometry(), string(b.Kind)}
		for i, c := range cells {
			pdf.CellFormat(widths[i], 14, tr(c), "1", 0, "L", false, 0, "")
		}
		pdf.Ln(-1)
	}
}

func footer(pdf *gofpdf.Fpdf, tr func(string) string, pageH float64, now time.Time) {
	pdf.SetFont("Helvetica", "", 7)
	pdf.SetTextColor(120, 120, 120)
	pdf.Text(pdfMargin, pageH-pdfMargin+10, tr(fmt.Sprintf("NebulaScreen %s  %s  page %d", version.Version, now.Format("2006-01-02 15:04"), pdf.PageNo())))
}

func setDrawColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetDrawColor(int(c.R), int(c.G), int(c.B))
}

func setFillColor(pdf *gofpdf.Fpdf, c color.RGBA) {
	pdf.SetFillColor(int(c.R), int(c.G), int(c.B))
}
