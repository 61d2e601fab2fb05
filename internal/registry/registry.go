/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package registry maps area ids to the widget configured on them and tracks
// the area currently selected for editing.
package registry

import (
	"sort"
	"sync"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/eventbus"
)

// Presence is the tri-state result of a lookup.
type Presence int

const (
	// Untracked: the id was never registered (or was deleted).
	Untracked Presence = iota
	// Empty: the area is tracked but has no widget yet.
	Empty
	// Configured: a widget is assigned.
	Configured
)

func (p Presence) String() string {
	switch p {
	case Empty:
		return "empty"
	case Configured:
		return "configured"
	default:
		return "untracked"
	}
}

// ChangeOp names the mutation carried by a Change.
type ChangeOp string

const (
	OpSet      ChangeOp = "set"
	OpDelete   ChangeOp = "delete"
	OpReset    ChangeOp = "reset"
	OpSelect   ChangeOp = "select"
	OpDeselect ChangeOp = "deselect"
)

// Change is published after every mutation. AreaID is empty for OpReset.
type Change struct {
	Op     ChangeOp
	AreaID string
	Widget *domain.Widget
}

// Registry is safe for concurrent use. Widgets are stored by pointer and
// returned as stored; callers replace rather than mutate them.
type Registry struct {
	mu      sync.RWMutex
	widgets map[string]*domain.Widget
	current *domain.Selection

	changes *eventbus.Bus[Change]
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{widgets: make(map[string]*domain.Widget), changes: eventbus.New[Change]()}
}

// OnChange subscribes to mutations.
func (r *Registry) OnChange(h func(Change)) func() { return r.changes.Subscribe(h) }

// Set assigns w to the area. A nil widget tracks the area as empty.
func (r *Registry) Set(areaID string, w *domain.Widget) {
	r.mu.Lock()
	r.widgets[areaID] = w
	if r.current != nil && r.current.AreaID == areaID {
		r.current.Widget = w
	}
	r.mu.Unlock()
	r.changes.Publish(Change{Op: OpSet, AreaID: areaID, Widget: w})
}

// Delete removes the mapping; the area becomes untracked.
func (r *Registry) Delete(areaID string) {
	r.mu.Lock()
	_, ok := r.widgets[areaID]
	delete(r.widgets, areaID)
	r.mu.Unlock()
	if ok {
		r.changes.Publish(Change{Op: OpDelete, AreaID: areaID})
	}
}

// Reset clears every mapping. The selection is left alone; it has its own lifecycle.
func (r *Registry) Reset() {
	r.mu.Lock()
	r.widgets = make(map[string]*domain.Widget)
	r.mu.Unlock()
	r.changes.Publish(Change{Op: OpReset})
}

// Get returns the widget for the area and how the area is tracked.
func (r *Registry) Get(areaID string) (*domain.Widget, Presence) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.widgets[areaID]
	switch {
	case !ok:
		return nil, Untracked
	case w == nil:
		return nil, Empty
	default:
		return w, Configured
	}
}

// Len returns the number of tracked areas, empty ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.widgets)
}

// IDs returns the tracked area ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.widgets))
	for id := range r.widgets {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Snapshot returns a deep copy of all mappings.
func (r *Registry) Snapshot() map[string]*domain.Widget {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]*domain.Widget, len(r.widgets))
	for id, w := range r.widgets {
		out[id] = w.Clone()
	}
	return out
}

// SetCurrent selects an area. The area does not need a stored widget.
func (r *Registry) SetCurrent(areaID string, w *domain.Widget) {
	r.mu.Lock()
	r.current = &domain.Selection{AreaID: areaID, Widget: w}
	r.mu.Unlock()
	r.changes.Publish(Change{Op: OpSelect, AreaID: areaID, Widget: w})
}

// Current returns the selection, if any.
func (r *Registry) Current() (domain.Selection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.current == nil {
		return domain.Selection{}, false
	}
	return *r.current, true
}

// ResetCurrent clears the selection.
func (r *Registry) ResetCurrent() {
	r.mu.Lock()
	had := r.current != nil
	var id string
	if had {
		id = r.current.AreaID
	}
	r.current = nil
	r.mu.Unlock()
	if had {
		r.changes.Publish(Change{Op: OpDeselect, AreaID: id})
	}
}
