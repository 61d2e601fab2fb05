/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"nebulascreen/internal/domain"
)

// projectInput is the body of create and update. Nil fields are left
// unchanged on update.
type projectInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	TemplateID  *string          `json:"template"`
	Members     []string         `json:"members"`
	Content     *domain.Document `json:"content"`
}

func (in projectInput) apply(p *domain.Project) error {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return badRequest("project name must not be empty")
		}
		if len([]rune(name)) > 100 {
			return badRequest("project name is longer than 100 characters")
		}
		p.Name = name
	}
	if in.Description != nil {
		p.Description = strings.TrimSpace(*in.Description)
	}
	if in.TemplateID != nil {
		p.TemplateID = *in.TemplateID
	}
	if in.Members != nil {
		p.Members = in.Members
	}
	if in.Content != nil {
		p.Content = in.Content
		if in.TemplateID == nil && in.Content.Template != nil {
			p.TemplateID = in.Content.Template.ID
		}
	}
	return nil
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request, u *domain.User) {
	page, size := paging(r, 20)
	list, err := s.projects.ProjectsFor(r.Context(), u.ID, size, (page-1)*size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if list == nil {
		list = []*domain.Project{}
	}
	writeOK(w, http.StatusOK, map[string]any{"items": list, "page": page, "pageSize": size})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request, u *domain.User) {
	var in projectInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Name == nil {
		s.writeError(w, r, badRequest("project name is required"))
		return
	}
	p := &domain.Project{CreatorID: u.ID}
	if err := in.apply(p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.projects.CreateProject(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.InfoContext(r.Context(), "project created", slog.String("project", p.ID), slog.String("user", u.ID))
	writeOK(w, http.StatusCreated, p)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, u *domain.User) {
	p, err := s.accessibleProject(r.Context(), r.PathValue("id"), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, p)
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request, u *domain.User) {
	p, err := s.accessibleProject(r.Context(), r.PathValue("id"), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var in projectInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	// membership is managed by the creator only
	if in.Members != nil && p.CreatorID != u.ID {
		s.writeError(w, r, errForbidden)
		return
	}
	if err := in.apply(p); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.projects.UpdateProject(r.Context(), p); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, p)
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, u *domain.User) {
	p, err := s.accessibleProject(r.Context(), r.PathValue("id"), u)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if p.CreatorID != u.ID {
		s.writeError(w, r, errForbidden)
		return
	}
	if err := s.projects.DeleteProject(r.Context(), p.ID); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.InfoContext(r.Context(), "project deleted", slog.String("project", p.ID))
	writeOK(w, http.StatusOK, map[string]string{"id": p.ID})
}

// accessibleProject loads a project the user is creator or member of.
func (s *Server) accessibleProject(ctx context.Context, id string, u *domain.User) (*domain.Project, error) {
	p, err := s.projects.Project(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.CanAccess(u.ID) {
		return nil, errForbidden
	}
	return p, nil
}
