/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package canvas

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"nebulascreen/internal/domain"
	applog "nebulascreen/internal/log"
)

// ErrNotSelected is returned when a drag or resize targets an area other than
// the selected one.
var ErrNotSelected = errors.New("canvas: area not selected")

// SelectedZIndex lifts the selected area above all others.
const SelectedZIndex = 1000

// Point is a position relative to the canvas origin.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Interaction is the pointer gesture in progress on the free canvas.
type Interaction int

const (
	Idle Interaction = iota
	Dragging
	Resizing
)

// Visual is how an area should be drawn right now.
type Visual struct {
	ZIndex      int  `json:"zIndex"`
	Selected    bool `json:"selected"`
	Movable     bool `json:"movable"`
	Transitions bool `json:"transitions"`
}

// FreeCanvas hosts areas positioned in pixels.
type FreeCanvas struct {
	store    AreaStore
	reg      WidgetRegistry
	defaults Defaults
	newID    func() string
	log      *slog.Logger

	mu     sync.Mutex
	active Interaction
}

// NewFreeCanvas returns a free canvas. defaults may be nil.
func NewFreeCanvas(store AreaStore, reg WidgetRegistry, defaults Defaults) *FreeCanvas {
	return &FreeCanvas{
		store:    store,
		reg:      reg,
		defaults: defaults,
		newID:    func() string { return "area-" + uuid.NewString() },
		log:      applog.WithComponent("canvas").With(slog.String("layout", "free")),
	}
}

// Drop creates an area for the payload around pt, registers the widget and
// selects the new area.
func (f *FreeCanvas) Drop(pt Point, payload []byte) (domain.Area, error) {
	p, err := ParseDrop(payload)
	if err != nil {
		f.log.Warn("drop ignored", slog.Any("err", err))
		return domain.Area{}, err
	}
	w, h := InitialSize(p, f.defaults)
	a := domain.Area{
		ID:   f.newID(),
		Name: p.AreaName(),
		Type: p.Type,
		Free: &domain.FreeRect{
			Left:   max(0, pt.X-DefaultWidth/2),
			Top:    max(0, pt.Y-DefaultHeight/2),
			Width:  w,
			Height: h,
			ZIndex: len(f.store.Areas()) + 1,
		},
	}
	if err := f.store.CreateArea(a); err != nil {
		f.log.Warn("create area failed", slog.String("area", a.ID), slog.Any("err", err))
		return domain.Area{}, err
	}
	wd := p.Widget()
	f.reg.Set(a.ID, wd)
	f.reg.SetCurrent(a.ID, wd)
	f.log.Debug("area created", slog.String("area", a.ID), slog.String("type", string(a.Type)))
	return a, nil
}

// Click selects the area.
func (f *FreeCanvas) Click(areaID string) error {
	return selectArea(f.store, f.reg, areaID)
}

// ClickAt selects the topmost area under pt, or clears the selection when
// the click hits empty canvas. It returns the selected id or "".
func (f *FreeCanvas) ClickAt(pt Point) string {
	sel := f.selected()
	areas := f.store.Areas()
	sort.SliceStable(areas, func(i, j int) bool {
		return f.zIndex(areas[i], sel) > f.zIndex(areas[j], sel)
	})
	for _, a := range areas {
		if a.Free != nil && a.Free.Contains(pt.X, pt.Y) {
			w, _ := f.reg.Get(a.ID)
			f.reg.SetCurrent(a.ID, w)
			return a.ID
		}
	}
	f.reg.ResetCurrent()
	return ""
}

func (f *FreeCanvas) selected() string {
	if cur, ok := f.reg.Current(); ok {
		return cur.AreaID
	}
	return ""
}

func (f *FreeCanvas) zIndex(a domain.Area, selected string) int {
	if a.ID == selected {
		return SelectedZIndex
	}
	if a.Free != nil && a.Free.ZIndex > 0 {
		return a.Free.ZIndex
	}
	return 1
}

func (f *FreeCanvas) requireSelected(areaID string) error {
	if areaID == "" || f.selected() != areaID {
		return fmt.Errorf("%w: %s", ErrNotSelected, areaID)
	}
	return nil
}

// BeginDrag starts moving the selected area.
func (f *FreeCanvas) BeginDrag(areaID string) error { return f.begin(areaID, Dragging) }

// BeginResize starts resizing the selected area.
func (f *FreeCanvas) BeginResize(areaID string) error { return f.begin(areaID, Resizing) }

func (f *FreeCanvas) begin(areaID string, i Interaction) error {
	if err := f.requireSelected(areaID); err != nil {
		return err
	}
	f.mu.Lock()
	f.active = i
	f.mu.Unlock()
	return nil
}

func (f *FreeCanvas) end() {
	f.mu.Lock()
	f.active = Idle
	f.mu.Unlock()
}

// EndDrag commits the new position of the selected area. The gesture ends
// even when the area is no longer selected.
func (f *FreeCanvas) EndDrag(areaID string, left, top float64) error {
	defer f.end()
	if err := f.requireSelected(areaID); err != nil {
		return err
	}
	if !f.store.UpdateArea(areaID, domain.AreaPatch{Left: &left, Top: &top}) {
		return fmt.Errorf("%w: %s", ErrUnknownArea, areaID)
	}
	return nil
}

// EndResize commits the new box of the selected area. Resizing from the top
// or left edge moves the origin, so the position is committed too.
func (f *FreeCanvas) EndResize(areaID string, box domain.FreeRect) error {
	defer f.end()
	if err := f.requireSelected(areaID); err != nil {
		return err
	}
	patch := domain.AreaPatch{Width: &box.Width, Height: &box.Height, Left: &box.Left, Top: &box.Top}
	if !f.store.UpdateArea(areaID, patch) {
		return fmt.Errorf("%w: %s", ErrUnknownArea, areaID)
	}
	return nil
}

// Interaction returns the gesture in progress.
func (f *FreeCanvas) Interaction() Interaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.active
}

// Visual reports how the area should be drawn.
func (f *FreeCanvas) Visual(areaID string) (Visual, bool) {
	a, ok := f.store.Area(areaID)
	if !ok {
		return Visual{}, false
	}
	sel := f.selected()
	return Visual{
		ZIndex:      f.zIndex(a, sel),
		Selected:    a.ID == sel,
		Movable:     a.ID == sel,
		Transitions: f.Interaction() == Idle,
	}, true
}
