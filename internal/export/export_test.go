/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package export

import (
	"bytes"
	"errors"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"nebulascreen/internal/domain"
)

func gridDoc() *domain.Document {
	return &domain.Document{
		Format: "1.1.0",
		Template: &domain.Template{
			ID: "basic-grid", Name: "Basic grid",
			GridRows: 2, GridCols: 2, BackgroundColor: "#102030",
			Areas: []domain.Area{
				{ID: "area-1", Name: "Sales", Grid: &domain.GridSpan{X: 0, Y: 0, W: 1, H: 1}},
				{ID: "area-2", Name: "自定义区域", Grid: &domain.GridSpan{X: 1, Y: 0, W: 1, H: 2}},
			},
		},
		Widgets: map[string]*domain.Widget{
			"area-1": domain.NewWidget("bar-chart", nil),
		},
	}
}

func TestLayoutGridAndFree(t *testing.T) {
	boxes, w, h, err := Layout(gridDoc())
	if err != nil {
		t.Fatalf("Layout: %v", err)
	}
	if w != DefaultCanvasWidth || h != DefaultCanvasHeight || len(boxes) != 2 {
		t.Fatalf("unexpected layout: %vx%v %d boxes", w, h, len(boxes))
	}
	b1, b2 := boxes[0], boxes[1]
	if b1.W != 960 || b1.H != 540 || b1.Kind != domain.KindChart || b1.Empty {
		t.Fatalf("area-1 box = %+v", b1)
	}
	if b2.X != 960 || b2.H != 1080 || !b2.Empty {
		t.Fatalf("area-2 box = %+v", b2)
	}
	if b1.Label() != "Sales (bar-chart)" || b2.Label() != "area-2" {
		t.Fatalf("labels = %q, %q", b1.Label(), b2.Label())
	}

	free := &domain.Document{Template: &domain.Template{
		ID: "free", LayoutMode: domain.LayoutFree, CanvasWidth: domain.Px(800), CanvasHeight: domain.Px(600),
		Areas: []domain.Area{
			{ID: "b", Free: &domain.FreeRect{Left: 10, Top: 10, Width: 100, Height: 50, ZIndex: 2}},
			{ID: "a", Free: &domain.FreeRect{Left: 0, Top: 0, Width: 300, Height: 200, ZIndex: 1}},
		},
	}}
	boxes, w, h, err = Layout(free)
	if err != nil || w != 800 || h != 600 {
		t.Fatalf("free layout = %v x %v, %v", w, h, err)
	}
	if boxes[0].AreaID != "a" || boxes[1].AreaID != "b" {
		t.Fatalf("free boxes not in z order: %+v", boxes)
	}

	if _, _, _, err := Layout(&domain.Document{}); !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("missing template: err = %v", err)
	}
}

func TestThumbnailSizeAndColors(t *testing.T) {
	img, err := Thumbnail(gridDoc(), PNGOptions{Width: 320, Labels: true})
	if err != nil {
		t.Fatalf("Thumbnail: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 320 || b.Dy() != 180 {
		t.Fatalf("thumbnail bounds = %v", b)
	}
	// Centre of the chart box carries the chart fill.
	fill, _ := kindColors(Box{Kind: domain.KindChart})
	if got := img.RGBAAt(80, 60); !near(got, fill) {
		t.Fatalf("chart fill = %v, want ~%v", got, fill)
	}

	var buf bytes.Buffer
	if err := WritePNG(&buf, gridDoc(), PNGOptions{}); err != nil {
		t.Fatalf("WritePNG: %v", err)
	}
	dec, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Bounds().Dx() != 480 {
		t.Fatalf("default width = %d", dec.Bounds().Dx())
	}
}

func near(a, b color.RGBA) bool {
	d := func(x, y uint8) int {
		if x > y {
			return int(x - y)
		}
		return int(y - x)
	}
	return d(a.R, b.R) < 8 && d(a.G, b.G) < 8 && d(a.B, b.B) < 8
}

func TestBackgroundParsing(t *testing.T) {
	if c := background("#fff"); c != (color.RGBA{255, 255, 255, 255}) {
		t.Fatalf("#fff = %v", c)
	}
	if c := background("#102030"); c != (color.RGBA{0x10, 0x20, 0x30, 0xff}) {
		t.Fatalf("#102030 = %v", c)
	}
	if c := background("rgba(1,2,3,0.5)"); c != background("") {
		t.Fatalf("unparsed colors should use the default")
	}
}

func TestExportFiles(t *testing.T) {
	dir := t.TempDir()
	pngPath := filepath.Join(dir, "out", "thumb.png")
	if err := ExportPNG(pngPath, gridDoc(), PNGOptions{Width: 200}); err != nil {
		t.Fatalf("ExportPNG: %v", err)
	}
	pdfPath := filepath.Join(dir, "out", "sheet.pdf")
	if err := ExportPDF(pdfPath, gridDoc(), PDFOptions{AreaTable: true}); err != nil {
		t.Fatalf("ExportPDF: %v", err)
	}
	for _, p := range []string{pngPath, pdfPath} {
		st, err := os.Stat(p)
		if err != nil || st.Size() == 0 {
			t.Fatalf("%s not written: %v", p, err)
		}
	}
	b, _ := os.ReadFile(pdfPath)
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a pdf")
	}

	var buf bytes.Buffer
	if err := WritePDF(&buf, &domain.Document{}, PDFOptions{}); !errors.Is(err, ErrNoTemplate) {
		t.Fatalf("WritePDF without template: err = %v", err)
	}
}
