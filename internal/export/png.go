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
	"image"
	"image/color"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"

	"nebulascreen/internal/domain"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

// PNGOptions controls thumbnail rendering.
//   - Width: output width in pixels; height follows the canvas aspect ratio. Default 480.
//   - Labels: draw area captions after scaling so they stay legible.
type PNGOptions struct {
	Width  int
	Labels bool
}

// maxWorkWidth bounds the full-resolution pass before downscaling.
const maxWorkWidth = 1920

// WritePNG renders the layout of doc as a PNG thumbnail.
func WritePNG(w io.Writer, doc *domain.Document, opt PNGOptions) error {
	img, err := Thumbnail(doc, opt)
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// ExportPNG writes the thumbnail to path, creating the directory if needed.
func ExportPNG(path string, doc *domain.Document, opt PNGOptions) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create png: %w", err)
	}
	if err := WritePNG(f, doc, opt); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close png: %w", err)
	}
	return nil
}

// Thumbnail draws the boxes at working resolution, scales down with
// Catmull-Rom and then writes the labels.
func Thumbnail(doc *domain.Document, opt PNGOptions) (*image.RGBA, error) {
	boxes, cw, ch, err := Layout(doc)
	if err != nil {
		return nil, err
	}
	outW := opt.Width
	if outW <= 0 {
		outW = 480
	}
	workScale := math.Min(1, maxWorkWidth/cw)
	workW := int(math.Round(cw * workScale))
	workH := int(math.Round(ch * workScale))
	if workW < 1 || workH < 1 {
		return nil, fmt.Errorf("export: degenerate canvas %vx%v", cw, ch)
	}

	work := image.NewRGBA(image.Rect(0, 0, workW, workH))
	draw.Draw(work, work.Bounds(), &image.Uniform{C: background(doc.Template.BackgroundColor)}, image.Point{}, draw.Src)
	for _, b := range boxes {
		fill, stroke := kindColors(b)
		x0, y0, x1, y1 := scaleBox(b, workScale)
		fillRect(work, x0, y0, x1, y1, fill)
		// thicker outline so it survives downscaling
		for i := 0; i < 3; i++ {
			strokeRect(work, x0+i, y0+i, x1-i, y1-i, stroke)
		}
	}

	outH := int(math.Round(float64(workH) * float64(outW) / float64(workW)))
	if outH < 1 {
		outH = 1
	}
	out := image.NewRGBA(image.Rect(0, 0, outW, outH))
	draw.CatmullRom.Scale(out, out.Bounds(), work, work.Bounds(), draw.Src, nil)

	if opt.Labels {
		outScale := workScale * float64(outW) / float64(workW)
		for _, b := range boxes {
			x0, y0, x1, _ := scaleBox(b, outScale)
			drawLabel(out, b.Label(), x0+4, y0+14, x1-4)
		}
	}
	return out, nil
}

func scaleBox(b Box, s float64) (x0, y0, x1, y1 int) {
	x0 = int(math.Round(b.X * s))
	y0 = int(math.Round(b.Y * s))
	x1 = int(math.Round((b.X+b.W)*s)) - 1
	y1 = int(math.Round((b.Y+b.H)*s)) - 1
	return
}

// drawLabel writes s with the 7x13 bitmap face, cut at maxX.
func drawLabel(img *image.RGBA, s string, x, y, maxX int) {
	face := basicfont.Face7x13
	avail := (maxX - x) / face.Advance
	if avail <= 0 {
		return
	}
	r := []rune(s)
	if len(r) > avail {
		if avail > 1 {
			r = append(r[:avail-1], '~')
		} else {
			r = r[:avail]
		}
	}
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(color.RGBA{0xe8, 0xee, 0xf7, 0xff}),
		Face: face,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(string(r))
}

// strokeRect draws a 1px axis-aligned rectangle border inclusive of endpoints.
func strokeRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 || y1 < y0 {
		return
	}
	for x := x0; x <= x1; x++ {
		img.SetRGBA(x, y0, col)
		img.SetRGBA(x, y1, col)
	}
	for y := y0; y <= y1; y++ {
		img.SetRGBA(x0, y, col)
		img.SetRGBA(x1, y, col)
	}
}

func fillRect(img *image.RGBA, x0, y0, x1, y1 int, col color.RGBA) {
	if x1 < x0 {
		x0, x1 = x1, x0
	}
	if y1 < y0 {
		y0, y1 = y1, y0
	}
	draw.Draw(img, image.Rect(x0, y0, x1+1, y1+1), &image.Uniform{C: col}, image.Point{}, draw.Src)
}
