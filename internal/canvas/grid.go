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

	"nebulascreen/internal/domain"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/registry"
)

var (
	// ErrUnknownArea is returned for drops and clicks on areas the template
	// does not have. Nothing is changed.
	ErrUnknownArea = errors.New("canvas: unknown area")
	// ErrReplaceDeclined is returned when ConfirmReplace refused an overwrite.
	ErrReplaceDeclined = errors.New("canvas: replace declined")
)

// AreaStore is the part of the template store the canvases use.
type AreaStore interface {
	Mode() domain.LayoutMode
	Area(id string) (domain.Area, bool)
	Areas() []domain.Area
	CreateArea(a domain.Area) error
	UpdateArea(id string, patch domain.AreaPatch) bool
}

// WidgetRegistry is the part of the component registry the canvases use.
type WidgetRegistry interface {
	Set(areaID string, w *domain.Widget)
	Get(areaID string) (*domain.Widget, registry.Presence)
	SetCurrent(areaID string, w *domain.Widget)
	Current() (domain.Selection, bool)
	ResetCurrent()
}

// ConfirmFunc decides whether an occupied grid area may be overwritten.
type ConfirmFunc func(areaID string, old, replacement *domain.Widget) bool

// GridCanvas accepts drops onto the fixed areas of a grid template.
type GridCanvas struct {
	store AreaStore
	reg   WidgetRegistry
	log   *slog.Logger

	// ConfirmReplace is asked before a configured area is overwritten.
	// Nil means overwrite.
	ConfirmReplace ConfirmFunc
}

// NewGridCanvas returns a grid canvas over store and reg.
func NewGridCanvas(store AreaStore, reg WidgetRegistry) *GridCanvas {
	return &GridCanvas{store: store, reg: reg, log: applog.WithComponent("canvas").With(slog.String("layout", "grid"))}
}

// Drop parses payload and assigns the widget to the area.
func (g *GridCanvas) Drop(areaID string, payload []byte) error {
	p, err := ParseDrop(payload)
	if err != nil {
		g.log.Warn("drop ignored", slog.String("area", areaID), slog.Any("err", err))
		return err
	}
	if _, ok := g.store.Area(areaID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArea, areaID)
	}
	w := p.Widget()
	if old, presence := g.reg.Get(areaID); presence == registry.Configured && g.ConfirmReplace != nil {
		if !g.ConfirmReplace(areaID, old, w) {
			return ErrReplaceDeclined
		}
	}
	g.reg.Set(areaID, w)
	g.store.UpdateArea(areaID, domain.AreaPatch{Type: &w.Type})
	g.log.Debug("widget dropped", slog.String("area", areaID), slog.String("type", string(w.Type)))
	return nil
}

// Click selects the area for the property panel.
func (g *GridCanvas) Click(areaID string) error {
	return selectArea(g.store, g.reg, areaID)
}

func selectArea(store AreaStore, reg WidgetRegistry, areaID string) error {
	if _, ok := store.Area(areaID); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownArea, areaID)
	}
	w, _ := reg.Get(areaID)
	reg.SetCurrent(areaID, w)
	return nil
}
