/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package render

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"nebulascreen/internal/domain"
	applog "nebulascreen/internal/log"
)

// ErrDisposed is returned by engines used after Dispose.
var ErrDisposed = errors.New("render: chart engine disposed")

// Surface is the pixel region a chart is mounted on.
type Surface struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Usable reports whether a chart can be initialized on the surface.
func (s Surface) Usable() bool { return s.Width > 0 && s.Height > 0 }

// SurfaceFunc reports the current surface of an area. ok is false while the
// area has no mountable region yet.
type SurfaceFunc func(areaID string) (s Surface, ok bool)

// ChartEngine is one chart instance bound to a surface.
type ChartEngine interface {
	// SetOption merges opts into the current state: given fields override,
	// missing fields keep their previous value.
	SetOption(opts domain.Options) error
	Resize(s Surface) error
	Dispose()
}

// EngineFactory creates an engine for an area on a surface.
type EngineFactory func(areaID string, s Surface) (ChartEngine, error)

// ChartState tracks an engine through its lifecycle.
type ChartState int

const (
	ChartUninitialized ChartState = iota
	ChartInitialized
	ChartUpdated
	ChartDisposed
)

func (s ChartState) String() string {
	switch s {
	case ChartInitialized:
		return "initialized"
	case ChartUpdated:
		return "updated"
	case ChartDisposed:
		return "disposed"
	default:
		return "uninitialized"
	}
}

func (s ChartState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// ChartView describes a chart area after a render pass.
type ChartView struct {
	State   ChartState     `json:"state"`
	Surface Surface        `json:"surface"`
	Option  domain.Options `json:"option,omitempty"`
	// Pending is set when the pass was skipped for lack of a surface.
	Pending bool `json:"pending,omitempty"`
}

type chartInstance struct {
	engine  ChartEngine
	state   ChartState
	surface Surface
}

// ChartHost owns one engine per area id.
type ChartHost struct {
	mu        sync.Mutex
	instances map[string]*chartInstance
	factory   EngineFactory
	surfaces  SurfaceFunc
	log       *slog.Logger
}

// NewChartHost returns a host creating engines with factory; nil uses
// NewOptionEngine.
func NewChartHost(factory EngineFactory, surfaces SurfaceFunc) *ChartHost {
	if factory == nil {
		factory = func(string, Surface) (ChartEngine, error) { return NewOptionEngine(), nil }
	}
	if surfaces == nil {
		surfaces = func(string) (Surface, bool) { return Surface{}, false }
	}
	return &ChartHost{
		instances: make(map[string]*chartInstance),
		factory:   factory,
		surfaces:  surfaces,
		log:       applog.WithComponent("chart"),
	}
}

// Render pushes opts into the area's engine, creating it on first use and
// resizing it when the surface changed. Without a usable surface the pass is
// skipped and Pending is reported; the next Render retries.
func (h *ChartHost) Render(areaID string, opts domain.Options) (ChartView, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	s, ok := h.surfaces(areaID)
	inst := h.instances[areaID]
	if inst == nil {
		if !ok || !s.Usable() {
			h.log.Debug("chart surface missing, retry later", slog.String("area", areaID))
			return ChartView{State: ChartUninitialized, Pending: true}, nil
		}
		eng, err := h.factory(areaID, s)
		if err != nil {
			h.log.Warn("chart init failed", slog.String("area", areaID), slog.Any("err", err))
			return ChartView{State: ChartUninitialized, Pending: true}, nil
		}
		if err := eng.SetOption(opts); err != nil {
			eng.Dispose()
			return ChartView{}, fmt.Errorf("chart %s: %w", areaID, err)
		}
		inst = &chartInstance{engine: eng, state: ChartInitialized, surface: s}
		h.instances[areaID] = inst
		return inst.view(), nil
	}

	if ok && s.Usable() && s != inst.surface {
		if err := inst.engine.Resize(s); err != nil {
			return ChartView{}, fmt.Errorf("chart %s resize: %w", areaID, err)
		}
		inst.surface = s
	}
	if err := inst.engine.SetOption(opts); err != nil {
		return ChartView{}, fmt.Errorf("chart %s: %w", areaID, err)
	}
	inst.state = ChartUpdated
	return inst.view(), nil
}

// Resize re-lays out the area's chart for its current surface. It is a no-op
// when the area has no engine or the size did not change.
func (h *ChartHost) Resize(areaID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	inst := h.instances[areaID]
	if inst == nil {
		return nil
	}
	s, ok := h.surfaces(areaID)
	if !ok || !s.Usable() || s == inst.surface {
		return nil
	}
	if err := inst.engine.Resize(s); err != nil {
		return err
	}
	inst.surface = s
	return nil
}

// Dispose releases the area's engine. A later Render creates a new one.
func (h *ChartHost) Dispose(areaID string) {
	h.mu.Lock()
	inst := h.instances[areaID]
	delete(h.instances, areaID)
	h.mu.Unlock()
	if inst != nil {
		inst.engine.Dispose()
		inst.state = ChartDisposed
	}
}

// DisposeAll releases every engine.
func (h *ChartHost) DisposeAll() {
	h.mu.Lock()
	all := h.instances
	h.instances = make(map[string]*chartInstance)
	h.mu.Unlock()
	for _, inst := range all {
		inst.engine.Dispose()
		inst.state = ChartDisposed
	}
}

// State reports the lifecycle state of the area's engine.
func (h *ChartHost) State(areaID string) ChartState {
	h.mu.Lock()
	defer h.mu.Unlock()
	if inst := h.instances[areaID]; inst != nil {
		return inst.state
	}
	return ChartUninitialized
}

// Active returns the number of live engines.
func (h *ChartHost) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.instances)
}

func (inst *chartInstance) view() ChartView {
	v := ChartView{State: inst.state, Surface: inst.surface}
	if oe, ok := inst.engine.(interface{ Option() domain.Options }); ok {
		v.Option = oe.Option()
	}
	return v
}

// OptionEngine is an in-process engine that keeps the merged option state and
// the surface size. The browser client mirrors it with a real chart library.
type OptionEngine struct {
	mu       sync.Mutex
	option   domain.Options
	surface  Surface
	updates  int
	disposed bool
}

// NewOptionEngine returns an empty engine.
func NewOptionEngine() *OptionEngine { return &OptionEngine{option: domain.Options{}} }

func (e *OptionEngine) SetOption(opts domain.Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	e.option = domain.Merge(e.option, opts)
	e.updates++
	return nil
}

func (e *OptionEngine) Resize(s Surface) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.disposed {
		return ErrDisposed
	}
	e.surface = s
	return nil
}

func (e *OptionEngine) Dispose() {
	e.mu.Lock()
	e.disposed = true
	e.option = nil
	e.mu.Unlock()
}

// Option returns a copy of the merged state.
func (e *OptionEngine) Option() domain.Options {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.option.Clone()
}

// Updates counts SetOption calls.
func (e *OptionEngine) Updates() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.updates
}

// Disposed reports whether Dispose was called.
func (e *OptionEngine) Disposed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.disposed
}
