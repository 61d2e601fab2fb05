/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package render resolves the widget configured on an area into a view:
// a placeholder for unconfigured areas, one of the basic content renderers,
// a chart hosted on a ChartEngine, or an "unsupported" fallback.
package render

import (
	"log/slog"
	"time"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/eventbus"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/registry"
)

// ViewKind names the branch a render took.
type ViewKind string

const (
	ViewPlaceholder ViewKind = "placeholder"
	ViewBasic       ViewKind = "basic"
	ViewChart       ViewKind = "chart"
	ViewUnsupported ViewKind = "unsupported"
)

const (
	MsgNotConfigured = "configuration not found"
	MsgUnsupported   = "unsupported component type"
)

// View is the render result for one area.
type View struct {
	AreaID  string            `json:"areaId"`
	Kind    ViewKind          `json:"kind"`
	Type    domain.WidgetType `json:"type,omitempty"`
	Message string            `json:"message,omitempty"`
	Basic   *BasicView        `json:"basic,omitempty"`
	Chart   *ChartView        `json:"chart,omitempty"`
}

// DefaultsProvider supplies per-type default options.
type DefaultsProvider interface {
	Defaults(t domain.WidgetType) domain.Options
}

// Event is published by a watching Dispatcher.
type Event struct {
	Op     registry.ChangeOp `json:"op"`
	AreaID string            `json:"areaId,omitempty"`
	View   *View             `json:"view,omitempty"`
}

// Dispatcher routes registry entries to renderers.
type Dispatcher struct {
	reg      *registry.Registry
	defaults DefaultsProvider
	charts   *ChartHost
	now      func() time.Time
	events   *eventbus.Bus[Event]
	log      *slog.Logger
}

// NewDispatcher wires a dispatcher. defaults and charts may be nil.
func NewDispatcher(reg *registry.Registry, defaults DefaultsProvider, charts *ChartHost) *Dispatcher {
	if charts == nil {
		charts = NewChartHost(nil, nil)
	}
	return &Dispatcher{
		reg:      reg,
		defaults: defaults,
		charts:   charts,
		now:      time.Now,
		events:   eventbus.New[Event](),
		log:      applog.WithComponent("render"),
	}
}

// SetClock replaces the time source for clock widgets.
func (d *Dispatcher) SetClock(now func() time.Time) { d.now = now }

// Charts returns the chart host.
func (d *Dispatcher) Charts() *ChartHost { return d.charts }

// OnRender subscribes to render events.
func (d *Dispatcher) OnRender(h func(Event)) func() { return d.events.Subscribe(h) }

// Render resolves the area's widget into a view.
func (d *Dispatcher) Render(areaID string) View {
	w, presence := d.reg.Get(areaID)
	if presence != registry.Configured {
		d.charts.Dispose(areaID)
		return View{AreaID: areaID, Kind: ViewPlaceholder, Message: MsgNotConfigured}
	}
	v := View{AreaID: areaID, Type: w.Type}
	kind := w.Kind
	if kind == "" {
		kind = domain.ResolveKind(w.Type)
	}
	if kind != domain.KindChart {
		// a chart replaced by another widget unmounts its engine
		d.charts.Dispose(areaID)
	}
	switch kind {
	case domain.KindBasic:
		r, ok := basicRenderers[w.Type]
		if !ok {
			return d.unsupported(v)
		}
		bv := r(d.basicOptions(w), d.now())
		v.Kind, v.Basic = ViewBasic, &bv
	case domain.KindChart:
		opts := w.Options
		if d.defaults != nil {
			opts = domain.Merge(d.defaults.Defaults(w.Type), w.Options)
		}
		cv, err := d.charts.Render(areaID, opts)
		if err != nil {
			d.log.Warn("chart render failed", slog.String("area", areaID), slog.Any("err", err))
			cv = ChartView{State: d.charts.State(areaID), Pending: true}
		}
		v.Kind, v.Chart = ViewChart, &cv
	default:
		return d.unsupported(v)
	}
	return v
}

func (d *Dispatcher) unsupported(v View) View {
	d.log.Debug("unsupported widget type", slog.String("area", v.AreaID), slog.String("type", string(v.Type)))
	v.Kind, v.Message = ViewUnsupported, MsgUnsupported
	return v
}

func (d *Dispatcher) basicOptions(w *domain.Widget) domain.Options {
	base := fallbacks[w.Type]
	if d.defaults != nil {
		base = domain.Merge(base, d.defaults.Defaults(w.Type))
	}
	return domain.Merge(base, w.Options)
}

// RenderAll renders every tracked area.
func (d *Dispatcher) RenderAll() []View {
	ids := d.reg.IDs()
	out := make([]View, 0, len(ids))
	for _, id := range ids {
		out = append(out, d.Render(id))
	}
	return out
}

// Watch re-renders areas as the registry changes and publishes an Event per
// change. The returned func stops watching.
func (d *Dispatcher) Watch() (stop func()) {
	return d.reg.OnChange(func(c registry.Change) {
		switch c.Op {
		case registry.OpSet:
			v := d.Render(c.AreaID)
			d.events.Publish(Event{Op: c.Op, AreaID: c.AreaID, View: &v})
		case registry.OpDelete:
			d.charts.Dispose(c.AreaID)
			d.events.Publish(Event{Op: c.Op, AreaID: c.AreaID})
		case registry.OpReset:
			d.charts.DisposeAll()
			d.events.Publish(Event{Op: c.Op})
		default:
			d.events.Publish(Event{Op: c.Op, AreaID: c.AreaID})
		}
	})
}
