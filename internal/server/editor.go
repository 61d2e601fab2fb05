/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"nebulascreen/internal/canvas"
	"nebulascreen/internal/domain"
	"nebulascreen/internal/editor"
	"nebulascreen/internal/export"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/render"
)

type sessionHandler func(w http.ResponseWriter, r *http.Request, u *domain.User, sess *editor.Session)

// withSession resolves {sid} to a session owned by the caller. Sessions of
// other users are reported as unknown.
func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return s.withAuth(func(w http.ResponseWriter, r *http.Request, u *domain.User) {
		sess, err := s.sessions.Get(r.PathValue("sid"))
		if err == nil && sess.Owner() != u.ID {
			err = editor.ErrUnknownSession
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		r = r.WithContext(applog.ContextWithSession(r.Context(), sess.ID))
		next(w, r, u, sess)
	})
}

// sessionState is the full editor state returned on open and on GET.
type sessionState struct {
	ID        string                    `json:"id"`
	ProjectID string                    `json:"projectId,omitempty"`
	Template  *domain.Template          `json:"template"`
	Widgets   map[string]*domain.Widget `json:"widgets"`
	Selection *domain.Selection         `json:"selection,omitempty"`
}

func stateOf(sess *editor.Session) sessionState {
	doc := sess.Snapshot()
	st := sessionState{ID: sess.ID, ProjectID: sess.ProjectID(), Template: doc.Template, Widgets: doc.Widgets}
	if cur, ok := sess.Registry().Current(); ok {
		st.Selection = &cur
	}
	return st
}

type openSessionInput struct {
	ProjectID  string `json:"projectId"`
	TemplateID string `json:"templateId"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request, u *domain.User) {
	var in openSessionInput
	body, err := readBody(w, r)
	if err == nil && len(bytes.TrimSpace(body)) > 0 {
		if jerr := json.Unmarshal(body, &in); jerr != nil {
			err = badRequest("invalid json: %v", jerr)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var project *domain.Project
	if in.ProjectID != "" {
		if project, err = s.accessibleProject(r.Context(), in.ProjectID, u); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	sess := s.sessions.Open()
	sess.Bind(u.ID, in.ProjectID)
	switch {
	case project != nil && project.Content != nil:
		err = sess.Restore(project.Content)
	case project != nil && project.TemplateID != "":
		err = sess.UseTemplate(project.TemplateID)
	case in.TemplateID != "":
		err = sess.UseTemplate(in.TemplateID)
	}
	if err != nil {
		s.sessions.Close(sess.ID)
		s.writeError(w, r, err)
		return
	}

	id := sess.ID
	sess.OnRender(func(ev render.Event) {
		b, err := json.Marshal(ev)
		if err != nil {
			return
		}
		s.sse.Broadcast(id, "render", string(b))
	})
	s.telemetry.Event("session_opened", map[string]any{"layout": string(sess.Store().Mode()), "fromProject": project != nil})
	s.log.InfoContext(r.Context(), "editor session opened",
		slog.String("session", id), slog.String("user", u.ID), slog.String("project", in.ProjectID))
	writeOK(w, http.StatusCreated, stateOf(sess))
}

func (s *Server) handleSessionState(w http.ResponseWriter, _ *http.Request, _ *domain.User, sess *editor.Session) {
	writeOK(w, http.StatusOK, stateOf(sess))
}

func (s *Server) handleCloseSession(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	s.sessions.Close(sess.ID)
	s.sse.CloseSession(sess.ID)
	s.log.InfoContext(r.Context(), "editor session closed", slog.String("session", sess.ID))
	writeOK(w, http.StatusOK, map[string]string{"id": sess.ID})
}

// handleSetTemplate activates a catalog template by id or a custom template
// sent inline.
func (s *Server) handleSetTemplate(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	var in struct {
		TemplateID string           `json:"templateId"`
		Template   *domain.Template `json:"template"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	var err error
	switch {
	case in.Template != nil:
		err = validTemplate(in.Template)
		if err == nil {
			sess.SetTemplate(in.Template)
		}
	case in.TemplateID != "":
		err = sess.UseTemplate(in.TemplateID)
	default:
		err = badRequest("templateId or template is required")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, stateOf(sess))
}

func validTemplate(t *domain.Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return badRequest("template id is required")
	}
	seen := make(map[string]bool, len(t.Areas))
	for _, a := range t.Areas {
		if a.ID == "" {
			return badRequest("template %s: area id is required", t.ID)
		}
		if seen[a.ID] {
			return badRequest("template %s: duplicate area id %s", t.ID, a.ID)
		}
		seen[a.ID] = true
	}
	return nil
}

func (s *Server) handleDropOnArea(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	payload, err := readBody(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	area := r.PathValue("area")
	if err := sess.DropOnArea(area, payload); err != nil {
		s.writeError(w, r, err)
		return
	}
	v := sess.Render(area)
	s.telemetry.Event("widget_dropped", map[string]any{"type": string(v.Type), "layout": "grid"})
	writeOK(w, http.StatusOK, v)
}

func (s *Server) handleDropOnCanvas(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	var in struct {
		X       float64         `json:"x"`
		Y       float64         `json:"y"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	a, err := sess.DropOnCanvas(canvas.Point{X: in.X, Y: in.Y}, in.Payload)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.telemetry.Event("widget_dropped", map[string]any{"type": string(a.Type), "layout": "free"})
	writeOK(w, http.StatusCreated, map[string]any{"area": a, "view": sess.Render(a.ID)})
}

// handleSelect selects by area id, or on free layouts by canvas position.
func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	var in struct {
		AreaID string   `json:"areaId"`
		X      *float64 `json:"x"`
		Y      *float64 `json:"y"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	var err error
	switch {
	case in.AreaID != "":
		err = sess.Select(in.AreaID)
	case in.X != nil && in.Y != nil:
		_, err = sess.SelectAt(canvas.Point{X: *in.X, Y: *in.Y})
	default:
		err = badRequest("areaId or x and y are required")
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	cur, ok := sess.Registry().Current()
	if !ok {
		writeOK(w, http.StatusOK, nil)
		return
	}
	writeOK(w, http.StatusOK, cur)
}

func (s *Server) handleDeselect(w http.ResponseWriter, _ *http.Request, _ *domain.User, sess *editor.Session) {
	sess.Deselect()
	writeOK(w, http.StatusOK, nil)
}

func (s *Server) handleMove(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	var in struct {
		Left float64 `json:"left"`
		Top  float64 `json:"top"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	area := r.PathValue("area")
	if err := sess.Move(area, in.Left, in.Top); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeArea(w, r, sess, area)
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	var box domain.FreeRect
	if err := decodeJSON(w, r, &box); err != nil {
		s.writeError(w, r, err)
		return
	}
	if box.Width <= 0 || box.Height <= 0 {
		s.writeError(w, r, badRequest("width and height must be positive"))
		return
	}
	area := r.PathValue("area")
	if err := sess.Resize(area, box); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeArea(w, r, sess, area)
}

func (s *Server) writeArea(w http.ResponseWriter, r *http.Request, sess *editor.Session, areaID string) {
	a, ok := sess.Store().Area(areaID)
	if !ok {
		s.writeError(w, r, canvas.ErrUnknownArea)
		return
	}
	v, _ := sess.Free().Visual(areaID)
	writeOK(w, http.StatusOK, map[string]any{"area": a, "visual": v})
}

// areaView is a render result plus, on free layouts, how to draw the area.
type areaView struct {
	render.View
	Visual *canvas.Visual `json:"visual,omitempty"`
}

func withVisual(sess *editor.Session, v render.View) areaView {
	av := areaView{View: v}
	if sess.Store().Mode() == domain.LayoutFree {
		if vis, ok := sess.Free().Visual(v.AreaID); ok {
			av.Visual = &vis
		}
	}
	return av
}

func (s *Server) handleRenderAll(w http.ResponseWriter, _ *http.Request, _ *domain.User, sess *editor.Session) {
	views := sess.RenderAll()
	out := make([]areaView, len(views))
	for i, v := range views {
		out[i] = withVisual(sess, v)
	}
	writeOK(w, http.StatusOK, out)
}

func (s *Server) handleRenderArea(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	area := r.PathValue("area")
	if _, ok := sess.Store().Area(area); !ok {
		s.writeError(w, r, canvas.ErrUnknownArea)
		return
	}
	writeOK(w, http.StatusOK, withVisual(sess, sess.Render(area)))
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	p, err := sess.Panel()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, p)
}

func (s *Server) handlePanelApply(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	var in struct {
		Options domain.Options `json:"options"`
	}
	if err := decodeJSON(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	if in.Options == nil {
		s.writeError(w, r, badRequest("options are required"))
		return
	}
	p, err := sess.Panel()
	if err == nil {
		err = p.Apply(in.Options)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// reopen so canUndo reflects the edit
	if p, err = sess.Panel(); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, p)
}

func (s *Server) handlePanelDelete(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	p, err := sess.Panel()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"areaId": p.AreaID, "deleted": p.Delete()})
}

func (s *Server) handleUndo(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	s.history(w, r, sess, sess.Undo)
}

func (s *Server) handleRedo(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	s.history(w, r, sess, sess.Redo)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, sess *editor.Session, step func(string) (bool, error)) {
	area := r.PathValue("area")
	if _, ok := sess.Store().Area(area); !ok {
		s.writeError(w, r, canvas.ErrUnknownArea)
		return
	}
	changed, err := step(area)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"changed": changed, "view": sess.Render(area)})
}

// handleSave writes the session document to its project, creating and
// binding a new project when the session has none.
func (s *Server) handleSave(w http.ResponseWriter, r *http.Request, u *domain.User, sess *editor.Session) {
	var in projectInput
	body, err := readBody(w, r)
	if err == nil && len(bytes.TrimSpace(body)) > 0 {
		if jerr := json.Unmarshal(body, &in); jerr != nil {
			err = badRequest("invalid json: %v", jerr)
		}
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	doc := sess.Snapshot()
	if doc.Template == nil {
		s.writeError(w, r, editor.ErrNoTemplate)
		return
	}
	in.Content = doc
	in.Members = nil

	if pid := sess.ProjectID(); pid != "" {
		p, err := s.accessibleProject(r.Context(), pid, u)
		if err == nil {
			err = in.apply(p)
		}
		if err == nil {
			err = s.projects.UpdateProject(r.Context(), p)
		}
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.telemetry.Event("project_saved", map[string]any{"new": false})
		writeOK(w, http.StatusOK, p)
		return
	}

	if in.Name == nil {
		name := doc.Template.Name
		if name == "" {
			name = doc.Template.ID
		}
		in.Name = &name
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
	sess.Bind(u.ID, p.ID)
	s.telemetry.Event("project_saved", map[string]any{"new": true})
	s.log.InfoContext(r.Context(), "session saved as new project", slog.String("project", p.ID))
	writeOK(w, http.StatusCreated, p)
}

// handleEvents streams render events of the session. The current views are
// sent first as one "snapshot" event.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	s.sse.ServeSSE(w, r, sess.ID, func(send func(event, data string)) {
		b, err := json.Marshal(sess.RenderAll())
		if err != nil {
			return
		}
		send("snapshot", string(b))
	})
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	// width is optional; when omitted the default thumbnail width is used
	var width int
	if raw := r.URL.Query().Get("width"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 4096 {
			s.writeError(w, r, badRequest("width must be between 1 and 4096"))
			return
		}
		width = n
	}
	var buf bytes.Buffer
	opt := export.PNGOptions{Width: width, Labels: r.URL.Query().Get("labels") != "0"}
	if err := export.WritePNG(&buf, sess.Snapshot(), opt); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.telemetry.Event("export", map[string]any{"format": "png"})
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSheet(w http.ResponseWriter, r *http.Request, _ *domain.User, sess *editor.Session) {
	var buf bytes.Buffer
	opt := export.PDFOptions{Title: r.URL.Query().Get("title"), AreaTable: r.URL.Query().Get("areas") == "1"}
	if err := export.WritePDF(&buf, sess.Snapshot(), opt); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.telemetry.Event("export", map[string]any{"format": "pdf"})
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", `inline; filename="layout.pdf"`)
	_, _ = w.Write(buf.Bytes())
}
