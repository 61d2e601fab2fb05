/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package editor ties the stores of one editing session together: the
// template store, the component registry, the render dispatcher, both canvases
// and the panel, plus the cascades that keep them consistent.
package editor

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nebulascreen/internal/canvas"
	"nebulascreen/internal/catalog"
	"nebulascreen/internal/domain"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/registry"
	"nebulascreen/internal/render"
	"nebulascreen/internal/schema"
	"nebulascreen/internal/template"
	"nebulascreen/internal/undo"
)

var (
	// ErrNoTemplate is returned by operations that need an active template.
	ErrNoTemplate = errors.New("editor: no active template")
	// ErrNoSelection is returned when the panel is used without a selected area.
	ErrNoSelection = errors.New("editor: no area selected")
	// ErrNoWidget is returned by Apply on an area without a widget.
	ErrNoWidget = errors.New("editor: area has no widget")
	// ErrWrongLayout is returned for grid operations on a free template and
	// vice versa.
	ErrWrongLayout = errors.New("editor: operation does not match the layout mode")
)

// Default canvas size for templates that do not declare one.
const (
	DefaultCanvasWidth  = 1920.0
	DefaultCanvasHeight = 1080.0
)

// Deps are the shared, read-only collaborators of every session.
type Deps struct {
	Catalog *catalog.Catalog
	Schemas *schema.Set
	// ChartEngines creates chart engines; nil uses render.OptionEngine.
	ChartEngines render.EngineFactory
	Undo         undo.Config
	Now          func() time.Time
}

// Session is one open editor. All methods are safe for concurrent use.
type Session struct {
	ID string

	deps     Deps
	store    *template.Store
	reg      *registry.Registry
	renderer *render.Dispatcher
	grid     *canvas.GridCanvas
	free     *canvas.FreeCanvas
	history  *undo.Manager
	log      *slog.Logger

	// mu serializes compound operations (panel apply, undo, restore).
	mu       sync.Mutex
	touched  time.Time
	stopping []func()
	owner    string
	project  string
}

// NewSession wires a session. deps.Catalog and deps.Schemas default to the
// built-in ones.
func NewSession(id string, deps Deps) *Session {
	if deps.Catalog == nil {
		deps.Catalog = catalog.Builtin()
	}
	if deps.Schemas == nil {
		deps.Schemas = schema.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Session{
		ID:      id,
		deps:    deps,
		store:   template.NewStore(),
		reg:     registry.New(),
		history: undo.NewManager(deps.Undo),
		log:     applog.WithComponent("editor").With(slog.String("session", id)),
		touched: deps.Now(),
	}
	charts := render.NewChartHost(deps.ChartEngines, s.surface)
	s.renderer = render.NewDispatcher(s.reg, deps.Catalog, charts)
	s.renderer.SetClock(deps.Now)
	s.grid = canvas.NewGridCanvas(s.store, s.reg)
	s.free = canvas.NewFreeCanvas(s.store, s.reg, deps.Catalog)

	s.stopping = append(s.stopping,
		s.store.OnAreaRemoved(s.onAreaRemoved),
		s.store.OnTemplateChanged(s.onTemplateChanged),
		s.store.OnAreaChanged(s.onAreaChanged),
		s.renderer.Watch(),
	)
	return s
}

// onAreaRemoved drops everything keyed by a deleted area.
func (s *Session) onAreaRemoved(ev template.AreaRemoved) {
	s.reg.Delete(ev.AreaID)
	if cur, ok := s.reg.Current(); ok && cur.AreaID == ev.AreaID {
		s.reg.ResetCurrent()
	}
	s.history.ClearArea(ev.AreaID)
}

// onTemplateChanged clears the previous template's widgets and tracks every
// area of the new one as empty.
func (s *Session) onTemplateChanged(ev template.TemplateChanged) {
	s.reg.Reset()
	s.reg.ResetCurrent()
	s.history.Reset()
	if ev.Current == nil {
		return
	}
	for _, a := range ev.Current.Areas {
		s.reg.Set(a.ID, nil)
	}
	s.log.Info("template switched", slog.String("template", ev.Current.ID), slog.Int("areas", len(ev.Current.Areas)))
}

// onAreaChanged relays out the area's chart after geometry edits.
func (s *Session) onAreaChanged(ev template.AreaChanged) {
	if ev.Created {
		return
	}
	if err := s.renderer.Charts().Resize(ev.Area.ID); err != nil {
		s.log.Warn("chart resize failed", slog.String("area", ev.Area.ID), slog.Any("err", err))
	}
}

// surface derives the pixel box of an area from the template geometry.
func (s *Session) surface(areaID string) (render.Surface, bool) {
	tpl := s.store.Template()
	if tpl == nil {
		return render.Surface{}, false
	}
	a, ok := s.store.Area(areaID)
	if !ok {
		return render.Surface{}, false
	}
	if a.Free != nil {
		return render.Surface{Width: a.Free.Width, Height: a.Free.Height}, true
	}
	if a.Grid == nil || tpl.GridCols <= 0 || tpl.GridRows <= 0 {
		return render.Surface{}, false
	}
	cw, ch := canvasSize(tpl)
	return render.Surface{
		Width:  cw / float64(tpl.GridCols) * float64(a.Grid.W),
		Height: ch / float64(tpl.GridRows) * float64(a.Grid.H),
	}, true
}

func canvasSize(tpl *domain.Template) (w, h float64) {
	return tpl.PixelSize(DefaultCanvasWidth, DefaultCanvasHeight)
}

// Close stops all subscriptions and releases chart engines.
func (s *Session) Close() {
	s.mu.Lock()
	stops := s.stopping
	s.stopping = nil
	s.mu.Unlock()
	for _, stop := range stops {
		stop()
	}
	s.renderer.Charts().DisposeAll()
}

func (s *Session) touch() {
	s.touched = s.deps.Now()
}

// LastUsed returns the time of the last mutating call.
func (s *Session) LastUsed() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.touched
}

// Bind records who opened the session and which project it edits.
func (s *Session) Bind(owner, projectID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.owner, s.project = owner, projectID
}

// Owner returns the user id passed to Bind.
func (s *Session) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// ProjectID returns the bound project, or "" for an unsaved screen.
func (s *Session) ProjectID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.project
}

// Store, Registry, Renderer and the canvases are exposed for read access and
// for tests. Mutations should go through Session methods.
func (s *Session) Store() *template.Store       { return s.store }
func (s *Session) Registry() *registry.Registry { return s.reg }
func (s *Session) Renderer() *render.Dispatcher { return s.renderer }
func (s *Session) Grid() *canvas.GridCanvas     { return s.grid }
func (s *Session) Free() *canvas.FreeCanvas     { return s.free }

// SetTemplate activates a template. The registry is reset by the
// template-changed cascade.
func (s *Session) SetTemplate(t *domain.Template) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.store.SetTemplate(t)
}

// UseTemplate activates a catalog template by id.
func (s *Session) UseTemplate(id string) error {
	t, err := s.deps.Catalog.Template(id)
	if err != nil {
		return err
	}
	s.SetTemplate(t)
	return nil
}

// DropOnArea handles a drop onto an existing grid area. The replaced
// configuration, if any, is kept for Undo.
func (s *Session) DropOnArea(areaID string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMode(domain.LayoutGrid); err != nil {
		return err
	}
	s.touch()
	before, err := s.snapshot(areaID)
	if err != nil {
		return err
	}
	if err := s.grid.Drop(areaID, payload); err != nil {
		return err
	}
	s.history.Push(before)
	return nil
}

// DropOnCanvas handles a drop onto open free-layout canvas.
func (s *Session) DropOnCanvas(pt canvas.Point, payload []byte) (domain.Area, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMode(domain.LayoutFree); err != nil {
		return domain.Area{}, err
	}
	s.touch()
	return s.free.Drop(pt, payload)
}

func (s *Session) requireMode(m domain.LayoutMode) error {
	if s.store.Template() == nil {
		return ErrNoTemplate
	}
	if s.store.Mode() != m {
		return fmt.Errorf("%w: template is %s", ErrWrongLayout, s.store.Mode())
	}
	return nil
}

// Select selects an area on either layout.
func (s *Session) Select(areaID string) error {
	if s.store.Mode() == domain.LayoutFree {
		return s.free.Click(areaID)
	}
	return s.grid.Click(areaID)
}

// SelectAt selects the topmost free area under pt. It returns "" and clears
// the selection when pt hits empty canvas.
func (s *Session) SelectAt(pt canvas.Point) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMode(domain.LayoutFree); err != nil {
		return "", err
	}
	s.touch()
	return s.free.ClickAt(pt), nil
}

// Deselect clears the selection.
func (s *Session) Deselect() { s.reg.ResetCurrent() }

// Move commits a drag of the selected free area.
func (s *Session) Move(areaID string, left, top float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMode(domain.LayoutFree); err != nil {
		return err
	}
	s.touch()
	return s.free.EndDrag(areaID, left, top)
}

// Resize commits a resize of the selected free area.
func (s *Session) Resize(areaID string, box domain.FreeRect) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.requireMode(domain.LayoutFree); err != nil {
		return err
	}
	s.touch()
	return s.free.EndResize(areaID, box)
}

// Render renders one area.
func (s *Session) Render(areaID string) render.View { return s.renderer.Render(areaID) }

// RenderAll renders every tracked area.
func (s *Session) RenderAll() []render.View { return s.renderer.RenderAll() }

// OnRender subscribes to render events of this session.
func (s *Session) OnRender(h func(render.Event)) func() { return s.renderer.OnRender(h) }

// Undo restores the previous widget configuration of an area.
func (s *Session) Undo(areaID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.snapshot(areaID)
	if err != nil {
		return false, err
	}
	prev, ok := s.history.Undo(cur)
	if !ok {
		return false, nil
	}
	return true, s.restoreSnapshot(prev)
}

// Redo re-applies an undone configuration.
func (s *Session) Redo(areaID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, err := s.snapshot(areaID)
	if err != nil {
		return false, err
	}
	next, ok := s.history.Redo(cur)
	if !ok {
		return false, nil
	}
	return true, s.restoreSnapshot(next)
}

func (s *Session) snapshot(areaID string) (undo.Snapshot, error) {
	snap := undo.Snapshot{AreaID: areaID, TS: s.deps.Now()}
	w, presence := s.reg.Get(areaID)
	if presence == registry.Configured {
		b, err := json.Marshal(w)
		if err != nil {
			return undo.Snapshot{}, err
		}
		snap.Blob = b
	}
	return snap, nil
}

func (s *Session) restoreSnapshot(snap undo.Snapshot) error {
	if _, ok := s.store.Area(snap.AreaID); !ok {
		return nil
	}
	var w *domain.Widget
	if snap.Blob != nil {
		w = new(domain.Widget)
		if err := json.Unmarshal(snap.Blob, w); err != nil {
			return fmt.Errorf("restore %s: %w", snap.AreaID, err)
		}
	}
	s.touch()
	s.reg.Set(snap.AreaID, w)
	return nil
}
