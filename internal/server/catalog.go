/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"net/http"

	"nebulascreen/internal/catalog"
	"nebulascreen/internal/domain"
)

func (s *Server) handleBasicWidgets(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, s.catalog.BasicWidgets())
}

func (s *Server) handleChartGroups(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, s.catalog.ChartGroups())
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	page, size := paging(r, 12)
	all := s.catalog.Templates(domain.Category(r.URL.Query().Get("category")))
	writeOK(w, http.StatusOK, catalog.Paginate(all, page, size))
}

func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.catalog.Template(r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, t)
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	hits := s.catalog.Search(r.URL.Query().Get("q"))
	if n := len(hits); n > 50 {
		hits = hits[:50]
	}
	writeOK(w, http.StatusOK, hits)
}

// handleSchema serves the property form of a widget type. Unknown types get
// an empty form.
func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request) {
	writeOK(w, http.StatusOK, s.schemas.Form(domain.WidgetType(r.PathValue("type"))))
}
