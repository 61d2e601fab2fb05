/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"log/slog"
	"net/http"

	"nebulascreen/internal/auth"
	"nebulascreen/internal/domain"
)

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var in auth.RegisterInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	u, err := s.auth.Register(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.log.InfoContext(r.Context(), "user registered", slog.String("user", u.ID))
	writeOK(w, http.StatusCreated, u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in auth.LoginInput
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.auth.Login(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, res)
}

func (s *Server) handleProfile(w http.ResponseWriter, _ *http.Request, u *domain.User) {
	writeOK(w, http.StatusOK, u)
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	page, size := paging(r, 20)
	users, err := s.auth.Users(r.Context(), size, (page-1)*size)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if users == nil {
		users = []*domain.User{}
	}
	writeOK(w, http.StatusOK, map[string]any{"items": users, "page": page, "pageSize": size})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request, _ *domain.User) {
	u, err := s.auth.User(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, u)
}
