/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package export renders a screen document's layout to a PNG thumbnail or a
// PDF layout sheet. Areas are drawn as labelled boxes colored by widget kind;
// widget content itself is rendered by the browser and is not reproduced.
package export

import (
	"errors"
	"image/color"
	"sort"
	"strconv"
	"strings"

	"nebulascreen/internal/domain"
)

// Canvas size used when a template does not declare one.
const (
	DefaultCanvasWidth  = 1920.0
	DefaultCanvasHeight = 1080.0
)

var ErrNoTemplate = errors.New("export: document has no template")

// Box is one area in canvas pixels.
type Box struct {
	AreaID string
	Name   string
	Type   domain.WidgetType
	Kind   domain.WidgetKind
	// Empty is true when no widget is assigned.
	Empty      bool
	X, Y, W, H float64
	Z          int
}

// Layout resolves every area of doc to canvas coordinates. Free areas keep
// their z order; grid areas are laid out on GridCols x GridRows cells.
func Layout(doc *domain.Document) (boxes []Box, width, height float64, err error) {
	if doc == nil || doc.Template == nil {
		return nil, 0, 0, ErrNoTemplate
	}
	tpl := doc.Template
	width, height = tpl.PixelSize(DefaultCanvasWidth, DefaultCanvasHeight)
	cols, rows := tpl.GridCols, tpl.GridRows
	if cols <= 0 {
		cols = 12
	}
	if rows <= 0 {
		rows = 12
	}
	cw, ch := width/float64(cols), height/float64(rows)

	for _, a := range tpl.Areas {
		b := Box{AreaID: a.ID, Name: a.Name, Type: a.Type}
		switch {
		case a.Free != nil:
			b.X, b.Y, b.W, b.H, b.Z = a.Free.Left, a.Free.Top, a.Free.Width, a.Free.Height, a.Free.ZIndex
		case a.Grid != nil:
			b.X, b.Y = float64(a.Grid.X)*cw, float64(a.Grid.Y)*ch
			b.W, b.H = float64(a.Grid.W)*cw, float64(a.Grid.H)*ch
		default:
			continue
		}
		if w := doc.Widgets[a.ID]; w != nil {
			b.Type = w.Type
		} else {
			b.Empty = true
		}
		b.Kind = domain.ResolveKind(b.Type)
		boxes = append(boxes, b)
	}
	sort.SliceStable(boxes, func(i, j int) bool { return boxes[i].Z < boxes[j].Z })
	return boxes, width, height, nil
}

// Label is the ASCII caption drawn inside a box. The built-in fonts of both
// renderers only cover Latin-1, so names outside it fall back to the area id.
func (b Box) Label() string {
	name := b.Name
	if name == "" || !isLatin1(name) {
		name = b.AreaID
	}
	if b.Empty {
		return name
	}
	return name + " (" + string(b.Type) + ")"
}

// Geometry is the "x,y wxh" summary used in the PDF table.
func (b Box) Geometry() string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'f', 0, 64) }
	return f(b.X) + "," + f(b.Y) + " " + f(b.W) + "x" + f(b.H)
}

func isLatin1(s string) bool {
	return strings.IndexFunc(s, func(r rune) bool { return r > 0xff }) < 0
}

// palette per widget kind; fill and stroke.
func kindColors(b Box) (fill, stroke color.RGBA) {
	switch {
	case b.Empty:
		return color.RGBA{0x2a, 0x33, 0x45, 0xff}, color.RGBA{0x5c, 0x6b, 0x86, 0xff}
	case b.Kind == domain.KindChart:
		return color.RGBA{0x1b, 0x4d, 0x3e, 0xff}, color.RGBA{0x3d, 0xd6, 0x9c, 0xff}
	case b.Kind == domain.KindBasic:
		return color.RGBA{0x1d, 0x3b, 0x6b, 0xff}, color.RGBA{0x4c, 0x9a, 0xff, 0xff}
	default:
		return color.RGBA{0x5a, 0x3a, 0x1a, 0xff}, color.RGBA{0xff, 0xa9, 0x4d, 0xff}
	}
}

// background parses #rgb / #rrggbb; anything else gives the default dark blue.
func background(s string) color.RGBA {
	def := color.RGBA{0x0b, 0x12, 0x20, 0xff}
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) == 3 {
		s = string([]byte{s[0], s[0], s[1], s[1], s[2], s[2]})
	}
	if len(s) != 6 {
		return def
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return def
	}
	return color.RGBA{uint8(v >> 16), uint8(v >> 8), uint8(v), 0xff}
}
