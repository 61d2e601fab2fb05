/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"log/slog"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/schema"
)

// Panel is the property panel of the selected area.
type Panel struct {
	AreaID  string            `json:"areaId"`
	Type    domain.WidgetType `json:"type,omitempty"`
	Options domain.Options    `json:"options"`
	Form    schema.Form       `json:"form"`
	CanUndo bool              `json:"canUndo"`
	CanRedo bool              `json:"canRedo"`

	s *Session
}

// Panel opens the panel for the current selection.
func (s *Session) Panel() (*Panel, error) {
	cur, ok := s.reg.Current()
	if !ok {
		return nil, ErrNoSelection
	}
	p := &Panel{AreaID: cur.AreaID, Options: domain.Options{}, s: s}
	if w, _ := s.reg.Get(cur.AreaID); w != nil {
		p.Type = w.Type
		p.Options = w.Options.Clone()
	}
	p.Form = s.deps.Schemas.Form(p.Type)
	p.CanUndo = s.history.CanUndo(cur.AreaID)
	p.CanRedo = s.history.CanRedo(cur.AreaID)
	return p, nil
}

// Apply validates opts against the widget's schema and replaces the widget's
// options. The previous configuration is kept for Undo.
func (p *Panel) Apply(opts domain.Options) error {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()

	w, _ := s.reg.Get(p.AreaID)
	if w == nil {
		return ErrNoWidget
	}
	if err := s.deps.Schemas.Validate(w.Type, opts); err != nil {
		s.log.Info("panel edit rejected", slog.String("area", p.AreaID), slog.Any("err", err))
		return err
	}
	before, err := s.snapshot(p.AreaID)
	if err != nil {
		return err
	}
	s.history.Push(before)
	s.touch()
	next := domain.NewWidget(w.Type, opts.Clone())
	s.reg.Set(p.AreaID, next)
	p.Type, p.Options = next.Type, next.Options.Clone()
	p.CanUndo, p.CanRedo = true, false
	return nil
}

// Delete removes the area, its widget and the selection. It reports false
// when the area no longer exists.
func (p *Panel) Delete() bool {
	s := p.s
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	removed := s.store.DeleteArea(p.AreaID)
	// the removal cascade already did this; repeated here for areas the
	// template no longer had
	s.reg.Delete(p.AreaID)
	s.reg.ResetCurrent()
	return removed
}
