/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"errors"
	"fmt"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/version"
)

// ErrIncompatibleDocument is returned when a document was written by a newer
// major document format.
var ErrIncompatibleDocument = errors.New("editor: document format not supported")

// Snapshot captures the session as a document for saving.
func (s *Session) Snapshot() *domain.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &domain.Document{
		Format:   version.DocumentFormat,
		Template: s.store.Template(),
		Widgets:  s.reg.Snapshot(),
	}
}

// Restore replaces the session state with doc. Widgets for areas the template
// does not contain are dropped.
func (s *Session) Restore(doc *domain.Document) error {
	if doc == nil {
		return fmt.Errorf("%w: empty document", ErrIncompatibleDocument)
	}
	ok, err := version.Compatible(doc.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleDocument, err)
	}
	if !ok {
		return fmt.Errorf("%w: format %s", ErrIncompatibleDocument, doc.Format)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()
	s.store.SetTemplate(doc.Template)
	if doc.Template == nil {
		return nil
	}
	for _, a := range doc.Template.Areas {
		w, ok := doc.Widgets[a.ID]
		if !ok || w == nil {
			continue
		}
		w = w.Clone()
		w.Kind = domain.ResolveKind(w.Type)
		s.reg.Set(a.ID, w)
	}
	return nil
}
