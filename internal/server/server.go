/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package server exposes users, projects, catalogs and editor sessions over
// HTTP. Every JSON response uses the {code, message, data, success} envelope;
// errors carry {code, message, success:false, timestamp}.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"nebulascreen/internal/auth"
	"nebulascreen/internal/catalog"
	"nebulascreen/internal/domain"
	"nebulascreen/internal/editor"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/schema"
	"nebulascreen/internal/storage"
	"nebulascreen/internal/telemetry"
	"nebulascreen/internal/version"

	"golang.org/x/net/netutil"
)

// ProjectStore is the project persistence; *storage.Store implements it.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *domain.Project) error
	Project(ctx context.Context, id string) (*domain.Project, error)
	ProjectsFor(ctx context.Context, userID string, limit, offset int) ([]*domain.Project, error)
	UpdateProject(ctx context.Context, p *domain.Project) error
	DeleteProject(ctx context.Context, id string) error
}

type Options struct {
	Auth     *auth.Service
	Projects ProjectStore
	// Ready backs /readyz, typically the database ping.
	Ready    func(ctx context.Context) error
	Catalog  *catalog.Catalog
	Schemas  *schema.Set
	Sessions *editor.Manager
	// Telemetry receives anonymous usage events; nil disables them.
	Telemetry *telemetry.Client
	// MaxConns caps concurrent connections; 0 means unlimited.
	MaxConns int
	// OnPanic is called with a recovered handler panic and its stack, after
	// the 500 response is written. Optional.
	OnPanic func(p any, stack []byte)
}

// Server is the HTTP API.
type Server struct {
	mux       *http.ServeMux
	handler   http.Handler
	auth      *auth.Service
	projects  ProjectStore
	ready     func(ctx context.Context) error
	catalog   *catalog.Catalog
	schemas   *schema.Set
	sessions  *editor.Manager
	sse       *Broadcaster
	telemetry *telemetry.Client
	maxConns  int
	onPanic   func(p any, stack []byte)
	log       *slog.Logger
}

func New(opts Options) *Server {
	if opts.Catalog == nil {
		opts.Catalog = catalog.Builtin()
	}
	if opts.Schemas == nil {
		opts.Schemas = schema.Default()
	}
	if opts.Sessions == nil {
		opts.Sessions = editor.NewManager(editor.Deps{Catalog: opts.Catalog, Schemas: opts.Schemas}, 0)
	}
	s := &Server{
		mux:       http.NewServeMux(),
		auth:      opts.Auth,
		projects:  opts.Projects,
		ready:     opts.Ready,
		catalog:   opts.Catalog,
		schemas:   opts.Schemas,
		sessions:  opts.Sessions,
		sse:       NewBroadcaster(),
		telemetry: opts.Telemetry,
		maxConns:  opts.MaxConns,
		onPanic:   opts.OnPanic,
		log:       applog.WithComponent("server"),
	}
	s.routes()
	s.handler = s.withRequestLog(s.mux)
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.HandleFunc("GET /readyz", s.handleReady)
	s.mux.HandleFunc("GET /version", s.handleVersion)

	// Users
	s.mux.HandleFunc("POST /api/users/register", s.handleRegister)
	s.mux.HandleFunc("POST /api/users/login", s.handleLogin)
	s.mux.HandleFunc("GET /api/users/profile", s.withAuth(s.handleProfile))
	s.mux.HandleFunc("GET /api/users", s.withAuth(s.handleListUsers))
	s.mux.HandleFunc("GET /api/users/{id}", s.withAuth(s.handleGetUser))

	// Projects
	s.mux.HandleFunc("GET /api/projects", s.withAuth(s.handleListProjects))
	s.mux.HandleFunc("POST /api/projects", s.withAuth(s.handleCreateProject))
	s.mux.HandleFunc("GET /api/projects/{id}", s.withAuth(s.handleGetProject))
	s.mux.HandleFunc("PUT /api/projects/{id}", s.withAuth(s.handleUpdateProject))
	s.mux.HandleFunc("DELETE /api/projects/{id}", s.withAuth(s.handleDeleteProject))

	// Catalogs and form schemas are public.
	s.mux.HandleFunc("GET /api/catalog/basic", s.handleBasicWidgets)
	s.mux.HandleFunc("GET /api/catalog/charts", s.handleChartGroups)
	s.mux.HandleFunc("GET /api/catalog/templates", s.handleTemplates)
	s.mux.HandleFunc("GET /api/catalog/templates/{id}", s.handleTemplate)
	s.mux.HandleFunc("GET /api/catalog/search", s.handleSearch)
	s.mux.HandleFunc("GET /api/schemas/{type}", s.handleSchema)

	// Editor sessions
	s.mux.HandleFunc("POST /api/editor/sessions", s.withAuth(s.handleOpenSession))
	s.mux.HandleFunc("GET /api/editor/sessions/{sid}", s.withSession(s.handleSessionState))
	s.mux.HandleFunc("DELETE /api/editor/sessions/{sid}", s.withSession(s.handleCloseSession))
	s.mux.HandleFunc("PUT /api/editor/sessions/{sid}/template", s.withSession(s.handleSetTemplate))
	s.mux.HandleFunc("POST /api/editor/sessions/{sid}/areas/{area}/drop", s.withSession(s.handleDropOnArea))
	s.mux.HandleFunc("POST /api/editor/sessions/{sid}/drop", s.withSession(s.handleDropOnCanvas))
	s.mux.HandleFunc("PUT /api/editor/sessions/{sid}/selection", s.withSession(s.handleSelect))
	s.mux.HandleFunc("DELETE /api/editor/sessions/{sid}/selection", s.withSession(s.handleDeselect))
	s.mux.HandleFunc("PUT /api/editor/sessions/{sid}/areas/{area}/position", s.withSession(s.handleMove))
	s.mux.HandleFunc("PUT /api/editor/sessions/{sid}/areas/{area}/size", s.withSession(s.handleResize))
	s.mux.HandleFunc("GET /api/editor/sessions/{sid}/render", s.withSession(s.handleRenderAll))
	s.mux.HandleFunc("GET /api/editor/sessions/{sid}/areas/{area}/render", s.withSession(s.handleRenderArea))
	s.mux.HandleFunc("GET /api/editor/sessions/{sid}/panel", s.withSession(s.handlePanel))
	s.mux.HandleFunc("PUT /api/editor/sessions/{sid}/panel", s.withSession(s.handlePanelApply))
	s.mux.HandleFunc("DELETE /api/editor/sessions/{sid}/panel", s.withSession(s.handlePanelDelete))
	s.mux.HandleFunc("POST /api/editor/sessions/{sid}/areas/{area}/undo", s.withSession(s.handleUndo))
	s.mux.HandleFunc("POST /api/editor/sessions/{sid}/areas/{area}/redo", s.withSession(s.handleRedo))
	s.mux.HandleFunc("POST /api/editor/sessions/{sid}/save", s.withSession(s.handleSave))
	s.mux.HandleFunc("GET /api/editor/sessions/{sid}/events", s.withSession(s.handleEvents))
	s.mux.HandleFunc("GET /api/editor/sessions/{sid}/thumbnail.png", s.withSession(s.handleThumbnail))
	s.mux.HandleFunc("GET /api/editor/sessions/{sid}/sheet.pdf", s.withSession(s.handleSheet))
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("X-Frame-Options", "DENY")
	w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
	s.handler.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully and closes all editor sessions.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	if s.maxConns > 0 {
		ln = netutil.LimitListener(ln, s.maxConns)
	}
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.log.Info("listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	s.sessions.CloseAll()
	s.log.Info("server stopped")
	return err
}

// ReapIdle closes editor sessions idle for longer than maxIdle every interval
// until ctx is done.
func (s *Server) ReapIdle(ctx context.Context, interval, maxIdle time.Duration) error {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-t.C:
			if n := s.sessions.CloseIdle(now, maxIdle); n > 0 {
				s.log.Info("idle sessions closed", slog.Int("count", n))
			}
		}
	}
}

// SaveOpenSessions writes the document of every open session with a template
// to dir as <session>.json. It is the crash autosave.
func (s *Server) SaveOpenSessions(dir string) (int, error) {
	n := 0
	var errs []error
	for _, id := range s.sessions.IDs() {
		sess, err := s.sessions.Get(id)
		if err != nil {
			continue
		}
		doc := sess.Snapshot()
		if doc.Template == nil {
			continue
		}
		if err := storage.SaveDocument(filepath.Join(dir, id+".json"), doc); err != nil {
			errs = append(errs, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.log.WarnContext(r.Context(), "not ready", slog.Any("err", err))
			writeFail(w, http.StatusServiceUnavailable, "not ready", nil)
			return
		}
	}
	writeOK(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(w http.ResponseWriter, _ *http.Request) {
	writeOK(w, http.StatusOK, map[string]string{
		"version":        version.Version,
		"commit":         version.Commit,
		"documentFormat": version.DocumentFormat,
	})
}
