/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import "time"

// This file defines the layout model: screen templates and the areas that
// widgets are dropped onto. JSON field names follow the browser client.

// LayoutMode selects how a template positions its areas.
type LayoutMode string

const (
	LayoutGrid LayoutMode = "grid"
	LayoutFree LayoutMode = "free"
)

// Category groups templates in the template library.
type Category string

const (
	CategoryBasic        Category = "basic"
	CategoryDashboard    Category = "dashboard"
	CategoryMonitor      Category = "monitor"
	CategoryDataAnalysis Category = "data-analysis"
	CategoryCustom       Category = "custom"
)

// Template is a screen layout. Grid templates use GridRows/GridCols and
// GridSpan areas; free templates use a canvas size and FreeRect areas.
type Template struct {
	ID              string     `json:"id" yaml:"id"`
	Name            string     `json:"name" yaml:"name"`
	Description     string     `json:"description" yaml:"description"`
	Thumbnail       string     `json:"thumbnail,omitempty" yaml:"thumbnail,omitempty"`
	Category        Category   `json:"category" yaml:"category"`
	LayoutMode      LayoutMode `json:"layoutMode,omitempty" yaml:"layoutMode,omitempty"`
	GridRows        int        `json:"gridRows,omitempty" yaml:"gridRows,omitempty"`
	GridCols        int        `json:"gridCols,omitempty" yaml:"gridCols,omitempty"`
	CanvasWidth     Dimension  `json:"canvasWidth,omitzero" yaml:"canvasWidth,omitempty"`
	CanvasHeight    Dimension  `json:"canvasHeight,omitzero" yaml:"canvasHeight,omitempty"`
	BackgroundColor string     `json:"backgroundColor,omitempty" yaml:"backgroundColor,omitempty"`
	BackgroundImage string     `json:"backgroundImage,omitempty" yaml:"backgroundImage,omitempty"`
	Areas           []Area     `json:"areas" yaml:"areas"`
	CreatedAt       time.Time  `json:"createdAt,omitzero" yaml:"-"`
	UpdatedAt       time.Time  `json:"updatedAt,omitzero" yaml:"-"`
}

// Mode returns the layout mode, defaulting to grid as older templates omit it.
func (t *Template) Mode() LayoutMode {
	if t == nil || t.LayoutMode == "" {
		return LayoutGrid
	}
	return t.LayoutMode
}

// PixelSize resolves the canvas size, falling back to defW x defH for
// dimensions the template leaves unset.
func (t *Template) PixelSize(defW, defH float64) (w, h float64) {
	w, h = defW, defH
	if t == nil {
		return w, h
	}
	if !t.CanvasWidth.IsZero() {
		w = t.CanvasWidth.Pixels(defW)
	}
	if !t.CanvasHeight.IsZero() {
		h = t.CanvasHeight.Pixels(defH)
	}
	return w, h
}

// Clone returns a deep copy.
func (t *Template) Clone() *Template {
	if t == nil {
		return nil
	}
	c := *t
	c.Areas = make([]Area, len(t.Areas))
	for i, a := range t.Areas {
		c.Areas[i] = a.Clone()
	}
	return &c
}

// Area is a region of a template that can host one widget.
type Area struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description,omitempty" yaml:"description,omitempty"`
	Type        WidgetType `json:"type" yaml:"type"`
	Grid        *GridSpan  `json:"grid,omitempty" yaml:"grid,omitempty"`
	Free        *FreeRect  `json:"free,omitempty" yaml:"free,omitempty"`
}

// Clone returns a deep copy.
func (a Area) Clone() Area {
	if a.Grid != nil {
		g := *a.Grid
		a.Grid = &g
	}
	if a.Free != nil {
		f := *a.Free
		a.Free = &f
	}
	return a
}

// GridSpan places an area on the template grid, in cells.
type GridSpan struct {
	X    int `json:"x" yaml:"x"`
	Y    int `json:"y" yaml:"y"`
	W    int `json:"w" yaml:"w"`
	H    int `json:"h" yaml:"h"`
	MinW int `json:"minW,omitempty" yaml:"minW,omitempty"`
	MinH int `json:"minH,omitempty" yaml:"minH,omitempty"`
	MaxW int `json:"maxW,omitempty" yaml:"maxW,omitempty"`
	MaxH int `json:"maxH,omitempty" yaml:"maxH,omitempty"`
}

// FreeRect positions an area on a free canvas, in pixels.
type FreeRect struct {
	Left   float64 `json:"left" yaml:"left"`
	Top    float64 `json:"top" yaml:"top"`
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	ZIndex int     `json:"zIndex,omitempty" yaml:"zIndex,omitempty"`
}

// Contains reports whether the point lies inside the rectangle (edges inclusive).
func (r FreeRect) Contains(x, y float64) bool {
	return x >= r.Left && y >= r.Top && x <= r.Left+r.Width && y <= r.Top+r.Height
}

// AreaPatch is a partial area update. Nil fields are left unchanged.
type AreaPatch struct {
	Name        *string     `json:"name,omitempty"`
	Description *string     `json:"description,omitempty"`
	Type        *WidgetType `json:"type,omitempty"`
	Left        *float64    `json:"left,omitempty"`
	Top         *float64    `json:"top,omitempty"`
	Width       *float64    `json:"width,omitempty"`
	Height      *float64    `json:"height,omitempty"`
	ZIndex      *int        `json:"zIndex,omitempty"`
	Grid        *GridSpan   `json:"grid,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p AreaPatch) Empty() bool {
	return p == AreaPatch{}
}

func (p AreaPatch) touchesFree() bool {
	return p.Left != nil || p.Top != nil || p.Width != nil || p.Height != nil || p.ZIndex != nil
}

// Apply returns a copy of a with the patch merged in. Geometry fields create
// the FreeRect if the area has none yet.
func (p AreaPatch) Apply(a Area) Area {
	a = a.Clone()
	if p.Name != nil {
		a.Name = *p.Name
	}
	if p.Description != nil {
		a.Description = *p.Description
	}
	if p.Type != nil {
		a.Type = *p.Type
	}
	if p.touchesFree() {
		if a.Free == nil {
			a.Free = &FreeRect{}
		}
		if p.Left != nil {
			a.Free.Left = *p.Left
		}
		if p.Top != nil {
			a.Free.Top = *p.Top
		}
		if p.Width != nil {
			a.Free.Width = *p.Width
		}
		if p.Height != nil {
			a.Free.Height = *p.Height
		}
		if p.ZIndex != nil {
			a.Free.ZIndex = *p.ZIndex
		}
	}
	if p.Grid != nil {
		g := *p.Grid
		a.Grid = &g
	}
	return a
}

// Ptr returns a pointer to v; handy for building patches.
func Ptr[T any](v T) *T { return &v }
