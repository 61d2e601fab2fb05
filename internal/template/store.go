/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package template holds the active screen template of an editor session and
// manages the lifecycle of its areas.
package template

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/eventbus"
	applog "nebulascreen/internal/log"
)

var (
	// ErrNotFreeLayout is returned by CreateArea when there is no active
	// template or it uses grid layout.
	ErrNotFreeLayout = errors.New("template: areas can only be created on a free layout")
	// ErrDuplicateArea is returned by CreateArea when the id is taken.
	ErrDuplicateArea = errors.New("template: duplicate area id")
	ErrInvalidArea   = errors.New("template: area id is required")
)

// TemplateChanged is published after SetTemplate. Previous and Current are copies.
type TemplateChanged struct {
	Previous *domain.Template
	Current  *domain.Template
}

// AreaRemoved is published after an area is deleted.
type AreaRemoved struct {
	AreaID string
}

// AreaChanged is published after an area is created or updated.
type AreaChanged struct {
	Area    domain.Area
	Created bool
}

// Store owns at most one active template. All methods are safe on a store
// without a template: lookups miss and mutations report false.
type Store struct {
	mu  sync.Mutex
	tpl *domain.Template
	now func() time.Time

	changed *eventbus.Bus[TemplateChanged]
	removed *eventbus.Bus[AreaRemoved]
	areas   *eventbus.Bus[AreaChanged]
	log     *slog.Logger
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		now:     time.Now,
		changed: eventbus.New[TemplateChanged](),
		removed: eventbus.New[AreaRemoved](),
		areas:   eventbus.New[AreaChanged](),
		log:     applog.WithComponent("template"),
	}
}

// OnTemplateChanged subscribes to template replacement.
func (s *Store) OnTemplateChanged(h func(TemplateChanged)) func() {
	return s.changed.Subscribe(h)
}

// OnAreaRemoved subscribes to area deletion.
func (s *Store) OnAreaRemoved(h func(AreaRemoved)) func() { return s.removed.Subscribe(h) }

// OnAreaChanged subscribes to area creation and updates.
func (s *Store) OnAreaChanged(h func(AreaChanged)) func() { return s.areas.Subscribe(h) }

// SetTemplate replaces the active template (nil clears it). The store keeps
// its own copy; later changes to t are not observed.
func (s *Store) SetTemplate(t *domain.Template) {
	s.mu.Lock()
	prev := s.tpl
	s.tpl = t.Clone()
	cur := s.tpl.Clone()
	s.mu.Unlock()

	if cur != nil {
		s.log.Debug("template set", slog.String("id", cur.ID), slog.String("mode", string(cur.Mode())), slog.Int("areas", len(cur.Areas)))
	} else {
		s.log.Debug("template cleared")
	}
	s.changed.Publish(TemplateChanged{Previous: prev, Current: cur})
}

// Template returns a copy of the active template, or nil.
func (s *Store) Template() *domain.Template {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tpl.Clone()
}

// Mode returns the active layout mode, or "" without a template.
func (s *Store) Mode() domain.LayoutMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tpl == nil {
		return ""
	}
	return s.tpl.Mode()
}

// CreateArea appends an area to a free-layout template.
func (s *Store) CreateArea(a domain.Area) error {
	if a.ID == "" {
		return ErrInvalidArea
	}
	s.mu.Lock()
	if s.tpl == nil || s.tpl.Mode() != domain.LayoutFree {
		s.mu.Unlock()
		return ErrNotFreeLayout
	}
	if s.indexLocked(a.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateArea, a.ID)
	}
	a = a.Clone()
	s.tpl.Areas = append(s.tpl.Areas, a)
	s.tpl.UpdatedAt = s.now()
	s.mu.Unlock()

	s.areas.Publish(AreaChanged{Area: a.Clone(), Created: true})
	return nil
}

// UpdateArea shallow-merges patch into the area. It reports false when the
// area or the template does not exist.
func (s *Store) UpdateArea(id string, patch domain.AreaPatch) bool {
	s.mu.Lock()
	if s.tpl == nil {
		s.mu.Unlock()
		return false
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	updated := patch.Apply(s.tpl.Areas[i])
	s.tpl.Areas[i] = updated
	s.tpl.UpdatedAt = s.now()
	s.mu.Unlock()

	s.areas.Publish(AreaChanged{Area: updated.Clone()})
	return true
}

// DeleteArea removes the area and publishes AreaRemoved so dependents
// (the component registry, selection) can drop their state for it.
func (s *Store) DeleteArea(id string) bool {
	s.mu.Lock()
	if s.tpl == nil {
		s.mu.Unlock()
		return false
	}
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.tpl.Areas = append(s.tpl.Areas[:i:i], s.tpl.Areas[i+1:]...)
	s.tpl.UpdatedAt = s.now()
	s.mu.Unlock()

	s.log.Debug("area deleted", slog.String("area", id))
	s.removed.Publish(AreaRemoved{AreaID: id})
	return true
}

// Area returns a copy of the area with the given id.
func (s *Store) Area(id string) (domain.Area, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tpl == nil {
		return domain.Area{}, false
	}
	if i := s.indexLocked(id); i >= 0 {
		return s.tpl.Areas[i].Clone(), true
	}
	return domain.Area{}, false
}

// Areas returns copies of all areas in template order.
func (s *Store) Areas() []domain.Area {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tpl == nil {
		return nil
	}
	out := make([]domain.Area, len(s.tpl.Areas))
	for i, a := range s.tpl.Areas {
		out[i] = a.Clone()
	}
	return out
}

func (s *Store) indexLocked(id string) int {
	for i := range s.tpl.Areas {
		if s.tpl.Areas[i].ID == id {
			return i
		}
	}
	return -1
}
