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
	"context"
	"encoding/json"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"nebulascreen/internal/auth"
	"nebulascreen/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Details json.RawMessage `json:"details"`
}

type testAPI struct {
	t   *testing.T
	ts  *httptest.Server
	st  *storage.Store
	srv *Server
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "api.sqlite"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	svc := auth.NewService(st, auth.Config{Secret: "test", BcryptCost: bcrypt.MinCost})
	srv := New(Options{Auth: svc, Projects: st, Ready: st.Ping})
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return &testAPI{t: t, ts: ts, st: st, srv: srv}
}

func (a *testAPI) raw(method, path, token string, body any) *http.Response {
	a.t.Helper()
	var rd io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rd = strings.NewReader(b)
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			a.t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, a.ts.URL+path, rd)
	if err != nil {
		a.t.Fatalf("new request: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := a.ts.Client().Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

// do sends a request and decodes the envelope; into receives data on success.
func (a *testAPI) do(method, path, token string, body, into any) (int, envelope) {
	a.t.Helper()
	resp := a.raw(method, path, token, body)
	defer resp.Body.Close()
	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		a.t.Fatalf("%s %s: decode envelope: %v", method, path, err)
	}
	if env.Code != resp.StatusCode {
		a.t.Fatalf("%s %s: envelope code %d != status %d", method, path, env.Code, resp.StatusCode)
	}
	if into != nil && env.Success {
		if err := json.Unmarshal(env.Data, into); err != nil {
			a.t.Fatalf("%s %s: decode data: %v", method, path, err)
		}
	}
	return resp.StatusCode, env
}

// signup registers and logs in a user, returning id and token.
func (a *testAPI) signup(name string) (string, string) {
	a.t.Helper()
	in := map[string]string{"username": name, "email": name + "@example.com", "password": "secret123"}
	if code, env := a.do("POST", "/api/users/register", "", in, nil); code != http.StatusCreated {
		a.t.Fatalf("register %s: %d %s", name, code, env.Message)
	}
	var res struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	if code, env := a.do("POST", "/api/users/login", "", map[string]string{"email": in["email"], "password": in["password"]}, &res); code != http.StatusOK {
		a.t.Fatalf("login %s: %d %s", name, code, env.Message)
	}
	return res.User.ID, res.Token
}

func TestHealthReadyVersion(t *testing.T) {
	a := newTestAPI(t)
	for _, p := range []string{"/healthz", "/readyz", "/version"} {
		code, env := a.do("GET", p, "", nil, nil)
		if code != http.StatusOK || !env.Success || env.Message != "ok" {
			t.Fatalf("%s: %d %+v", p, code, env)
		}
	}
	resp := a.raw("GET", "/healthz", "", nil)
	resp.Body.Close()
	if resp.Header.Get("X-Request-ID") == "" || resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing headers: %v", resp.Header)
	}
}

func TestUsersFlow(t *testing.T) {
	a := newTestAPI(t)
	id, token := a.signup("ada")

	code, env := a.do("POST", "/api/users/register", "", map[string]string{"username": "ada", "email": "x@example.com", "password": "secret123"}, nil)
	if code != http.StatusConflict || env.Success {
		t.Fatalf("duplicate username: %d %+v", code, env)
	}
	code, env = a.do("POST", "/api/users/register", "", map[string]string{"username": "b", "email": "nope", "password": "short"}, nil)
	if code != http.StatusBadRequest || len(env.Details) == 0 {
		t.Fatalf("invalid register: %d %+v", code, env)
	}
	if code, _ := a.do("POST", "/api/users/register", "", "{", nil); code != http.StatusBadRequest {
		t.Fatalf("broken json: %d", code)
	}
	if code, _ := a.do("POST", "/api/users/login", "", map[string]string{"email": "ada@example.com", "password": "wrong123"}, nil); code != http.StatusUnauthorized {
		t.Fatalf("bad password: %d", code)
	}

	if code, _ := a.do("GET", "/api/users/profile", "", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("profile without token: %d", code)
	}
	if code, _ := a.do("GET", "/api/users/profile", "garbage", nil, nil); code != http.StatusUnauthorized {
		t.Fatalf("profile with garbage token: %d", code)
	}
	var me map[string]any
	if code, _ := a.do("GET", "/api/users/profile", token, nil, &me); code != http.StatusOK || me["id"] != id {
		t.Fatalf("profile: %d %v", code, me)
	}
	if _, ok := me["passwordHash"]; ok {
		t.Fatalf("password hash leaked: %v", me)
	}

	a.signup("grace")
	var list struct {
		Items []map[string]any `json:"items"`
	}
	if code, _ := a.do("GET", "/api/users?pageSize=1&page=2", token, nil, &list); code != http.StatusOK || len(list.Items) != 1 {
		t.Fatalf("list users: %d %d", code, len(list.Items))
	}
	if code, _ := a.do("GET", "/api/users/"+id, token, nil, nil); code != http.StatusOK {
		t.Fatalf("user by id: %d", code)
	}
	if code, _ := a.do("GET", "/api/users/missing", token, nil, nil); code != http.StatusNotFound {
		t.Fatalf("missing user: %d", code)
	}
}

type projectDTO struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Creator string          `json:"creator"`
	Members []string        `json:"members"`
	Content json.RawMessage `json:"content"`
}

func TestProjectAccess(t *testing.T) {
	a := newTestAPI(t)
	adaID, ada := a.signup("ada")
	bobID, bob := a.signup("bob")

	var p projectDTO
	if code, env := a.do("POST", "/api/projects", ada, map[string]any{"name": " Sales ", "template": "basic-grid"}, &p); code != http.StatusCreated {
		t.Fatalf("create: %d %s", code, env.Message)
	}
	if p.Name != "Sales" || p.Creator != adaID {
		t.Fatalf("created = %+v", p)
	}
	if code, _ := a.do("POST", "/api/projects", ada, map[string]any{"name": "  "}, nil); code != http.StatusBadRequest {
		t.Fatalf("blank name: %d", code)
	}

	if code, _ := a.do("GET", "/api/projects/"+p.ID, bob, nil, nil); code != http.StatusForbidden {
		t.Fatalf("stranger read: %d", code)
	}
	if code, _ := a.do("PUT", "/api/projects/"+p.ID, ada, map[string]any{"members": []string{"ghost"}}, nil); code != http.StatusBadRequest {
		t.Fatalf("unknown member: %d", code)
	}
	if code, _ := a.do("PUT", "/api/projects/"+p.ID, ada, map[string]any{"members": []string{bobID}}, &p); code != http.StatusOK || len(p.Members) != 1 {
		t.Fatalf("add member: %d %+v", code, p)
	}

	var list struct {
		Items []projectDTO `json:"items"`
	}
	if code, _ := a.do("GET", "/api/projects", bob, nil, &list); code != http.StatusOK || len(list.Items) != 1 {
		t.Fatalf("member listing: %d %+v", code, list)
	}
	if code, _ := a.do("PUT", "/api/projects/"+p.ID, bob, map[string]any{"description": "edited"}, nil); code != http.StatusOK {
		t.Fatalf("member edit: %d", code)
	}
	if code, _ := a.do("PUT", "/api/projects/"+p.ID, bob, map[string]any{"members": []string{}}, nil); code != http.StatusForbidden {
		t.Fatalf("member changing members: %d", code)
	}
	if code, _ := a.do("DELETE", "/api/projects/"+p.ID, bob, nil, nil); code != http.StatusForbidden {
		t.Fatalf("member delete: %d", code)
	}
	if code, _ := a.do("DELETE", "/api/projects/"+p.ID, ada, nil, nil); code != http.StatusOK {
		t.Fatalf("creator delete: %d", code)
	}
	if code, _ := a.do("GET", "/api/projects/"+p.ID, ada, nil, nil); code != http.StatusNotFound {
		t.Fatalf("deleted project: %d", code)
	}
}

func TestCatalogAndSchemas(t *testing.T) {
	a := newTestAPI(t)

	var basic []map[string]any
	if code, _ := a.do("GET", "/api/catalog/basic", "", nil, &basic); code != http.StatusOK || len(basic) != 6 {
		t.Fatalf("basic widgets: %d %d", code, len(basic))
	}
	var page struct {
		Items []map[string]any `json:"items"`
		Total int              `json:"total"`
	}
	if code, _ := a.do("GET", "/api/catalog/templates?pageSize=3", "", nil, &page); code != http.StatusOK || len(page.Items) != 3 || page.Total < 8 {
		t.Fatalf("templates page: %d %d/%d", code, len(page.Items), page.Total)
	}
	if code, _ := a.do("GET", "/api/catalog/templates?category=custom", "", nil, &page); code != http.StatusOK || page.Total != 1 {
		t.Fatalf("custom templates: %d %d", code, page.Total)
	}
	if code, _ := a.do("GET", "/api/catalog/templates/nope", "", nil, nil); code != http.StatusNotFound {
		t.Fatalf("unknown template: %d", code)
	}
	var hits []struct {
		Entry struct {
			ID string `json:"id"`
		} `json:"entry"`
	}
	if code, _ := a.do("GET", "/api/catalog/search?q=pie", "", nil, &hits); code != http.StatusOK || len(hits) == 0 {
		t.Fatalf("search: %d %d", code, len(hits))
	}
	if !strings.Contains(hits[0].Entry.ID, "pie") {
		t.Fatalf("best hit = %s", hits[0].Entry.ID)
	}
	var form struct {
		Schema map[string]any `json:"schema"`
	}
	if code, _ := a.do("GET", "/api/schemas/basic.text", "", nil, &form); code != http.StatusOK || form.Schema["type"] != "object" {
		t.Fatalf("schema: %d %v", code, form.Schema)
	}
}

type stateDTO struct {
	ID        string                     `json:"id"`
	ProjectID string                     `json:"projectId"`
	Template  *struct{ ID string }       `json:"template"`
	Widgets   map[string]json.RawMessage `json:"widgets"`
	Selection *struct {
		AreaID string `json:"areaId"`
	} `json:"selection"`
}

func TestEditorGridSession(t *testing.T) {
	a := newTestAPI(t)
	_, tok := a.signup("ada")
	_, other := a.signup("eve")

	var st stateDTO
	if code, env := a.do("POST", "/api/editor/sessions", tok, map[string]string{"templateId": "basic-grid"}, &st); code != http.StatusCreated {
		t.Fatalf("open: %d %s", code, env.Message)
	}
	if st.Template == nil || st.Template.ID != "basic-grid" || len(st.Widgets) != 4 {
		t.Fatalf("state = %+v", st)
	}
	base := "/api/editor/sessions/" + st.ID
	if code, _ := a.do("GET", base, other, nil, nil); code != http.StatusNotFound {
		t.Fatalf("foreign session: %d", code)
	}

	var view struct {
		Kind string `json:"kind"`
		Type string `json:"type"`
	}
	if code, _ := a.do("POST", base+"/areas/area-1/drop", tok, `{"type":"basic.text","content":"hello"}`, &view); code != http.StatusOK || view.Kind != "basic" {
		t.Fatalf("drop: %d %+v", code, view)
	}
	if code, _ := a.do("POST", base+"/areas/area-9/drop", tok, `{"type":"basic.text"}`, nil); code != http.StatusNotFound {
		t.Fatalf("drop on unknown area: %d", code)
	}
	if code, _ := a.do("POST", base+"/areas/area-2/drop", tok, `{"content":"x"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("malformed payload: %d", code)
	}
	if code, _ := a.do("POST", base+"/drop", tok, map[string]any{"x": 1, "y": 1, "payload": map[string]string{"type": "basic.text"}}, nil); code != http.StatusConflict {
		t.Fatalf("free drop on grid: %d", code)
	}

	if code, _ := a.do("GET", base+"/panel", tok, nil, nil); code != http.StatusConflict {
		t.Fatalf("panel without selection: %d", code)
	}
	if code, _ := a.do("PUT", base+"/selection", tok, map[string]string{"areaId": "area-1"}, nil); code != http.StatusOK {
		t.Fatalf("select: %d", code)
	}
	code, env := a.do("PUT", base+"/panel", tok, map[string]any{"options": map[string]any{"fontSize": "big"}}, nil)
	if code != http.StatusUnprocessableEntity || len(env.Details) == 0 {
		t.Fatalf("invalid options: %d %+v", code, env)
	}
	var panel struct {
		Options map[string]any `json:"options"`
		CanUndo bool           `json:"canUndo"`
	}
	if code, _ := a.do("PUT", base+"/panel", tok, map[string]any{"options": map[string]any{"content": "edited", "fontSize": 20}}, &panel); code != http.StatusOK {
		t.Fatalf("apply: %d", code)
	}
	if panel.Options["content"] != "edited" || !panel.CanUndo {
		t.Fatalf("panel = %+v", panel)
	}

	var step struct {
		Changed bool `json:"changed"`
	}
	if code, _ := a.do("POST", base+"/areas/area-1/undo", tok, nil, &step); code != http.StatusOK || !step.Changed {
		t.Fatalf("undo: %d %+v", code, step)
	}
	if code, _ := a.do("POST", base+"/areas/area-1/redo", tok, nil, &step); code != http.StatusOK || !step.Changed {
		t.Fatalf("redo: %d %+v", code, step)
	}

	var views []struct {
		AreaID string `json:"areaId"`
		Kind   string `json:"kind"`
	}
	if code, _ := a.do("GET", base+"/render", tok, nil, &views); code != http.StatusOK || len(views) != 4 {
		t.Fatalf("render all: %d %d", code, len(views))
	}
	placeholders := 0
	for _, v := range views {
		if v.Kind == "placeholder" {
			placeholders++
		}
	}
	if placeholders != 3 {
		t.Fatalf("placeholders = %d", placeholders)
	}

	var del struct {
		Deleted bool `json:"deleted"`
	}
	if code, _ := a.do("DELETE", base+"/panel", tok, nil, &del); code != http.StatusOK || !del.Deleted {
		t.Fatalf("panel delete: %d %+v", code, del)
	}
	if code, _ := a.do("GET", base+"/areas/area-1/render", tok, nil, nil); code != http.StatusNotFound {
		t.Fatalf("render deleted area: %d", code)
	}

	if code, _ := a.do("DELETE", base, tok, nil, nil); code != http.StatusOK {
		t.Fatalf("close: %d", code)
	}
	if code, _ := a.do("GET", base, tok, nil, nil); code != http.StatusNotFound {
		t.Fatalf("closed session: %d", code)
	}
}

func TestEditorFreeSessionAndExports(t *testing.T) {
	a := newTestAPI(t)
	_, tok := a.signup("ada")

	var st stateDTO
	if code, _ := a.do("POST", "/api/editor/sessions", tok, nil, &st); code != http.StatusCreated || st.Template != nil {
		t.Fatalf("open empty: %d %+v", code, st)
	}
	base := "/api/editor/sessions/" + st.ID
	if code, _ := a.do("POST", base+"/save", tok, nil, nil); code != http.StatusConflict {
		t.Fatalf("save without template: %d", code)
	}
	if code, _ := a.do("PUT", base+"/template", tok, map[string]string{"templateId": "free-canvas"}, &st); code != http.StatusOK {
		t.Fatalf("template: %d", code)
	}

	var dropped struct {
		Area struct {
			ID   string `json:"id"`
			Free struct {
				Left, Top, Width, Height float64
			} `json:"free"`
		} `json:"area"`
	}
	body := map[string]any{"x": 400, "y": 300, "payload": map[string]any{"type": "basic.text", "content": "hi"}}
	if code, env := a.do("POST", base+"/drop", tok, body, &dropped); code != http.StatusCreated {
		t.Fatalf("free drop: %d %s", code, env.Message)
	}
	area := dropped.Area.ID
	if area == "" || dropped.Area.Free.Width <= 0 {
		t.Fatalf("dropped = %+v", dropped)
	}

	// the dropped area is selected; a click on empty canvas clears it
	var sel *struct {
		AreaID string `json:"areaId"`
	}
	if code, _ := a.do("PUT", base+"/selection", tok, map[string]any{"x": 1900, "y": 1070}, &sel); code != http.StatusOK || sel != nil {
		t.Fatalf("click empty: %d %+v", code, sel)
	}
	if code, _ := a.do("PUT", base+"/areas/"+area+"/position", tok, map[string]float64{"left": 10, "top": 10}, nil); code != http.StatusConflict {
		t.Fatalf("move unselected: %d", code)
	}
	if code, _ := a.do("PUT", base+"/selection", tok, map[string]any{"x": 400, "y": 300}, &sel); code != http.StatusOK || sel == nil || sel.AreaID != area {
		t.Fatalf("click area: %d %+v", code, sel)
	}
	var moved struct {
		Area struct {
			Free struct {
				Left float64 `json:"left"`
				Top  float64 `json:"top"`
			} `json:"free"`
		} `json:"area"`
		Visual struct {
			Selected bool `json:"selected"`
			ZIndex   int  `json:"zIndex"`
		} `json:"visual"`
	}
	if code, _ := a.do("PUT", base+"/areas/"+area+"/position", tok, map[string]float64{"left": 10, "top": 20}, &moved); code != http.StatusOK {
		t.Fatalf("move: %d", code)
	}
	if moved.Area.Free.Left != 10 || moved.Area.Free.Top != 20 || !moved.Visual.Selected || moved.Visual.ZIndex != 1000 {
		t.Fatalf("moved = %+v", moved)
	}
	if code, _ := a.do("PUT", base+"/areas/"+area+"/size", tok, map[string]float64{"left": 10, "top": 20, "width": 0, "height": 5}, nil); code != http.StatusBadRequest {
		t.Fatalf("zero width: %d", code)
	}
	if code, _ := a.do("PUT", base+"/areas/"+area+"/size", tok, map[string]float64{"left": 10, "top": 20, "width": 640, "height": 360}, nil); code != http.StatusOK {
		t.Fatalf("resize: %d", code)
	}

	for _, q := range []string{"?width=0", "?width=abc", "?width=5000"} {
		bad := a.raw("GET", base+"/thumbnail.png"+q, tok, nil)
		bad.Body.Close()
		if bad.StatusCode != http.StatusBadRequest {
			t.Fatalf("thumbnail%s: %d", q, bad.StatusCode)
		}
	}
	resp := a.raw("GET", base+"/thumbnail.png", tok, nil)
	if _, err := png.Decode(resp.Body); err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("default thumbnail: %d %v", resp.StatusCode, err)
	}
	resp.Body.Close()
	resp = a.raw("GET", base+"/thumbnail.png?width=320", tok, nil)
	img, err := png.Decode(resp.Body)
	resp.Body.Close()
	if err != nil || img.Bounds().Dx() != 320 || img.Bounds().Dy() != 180 {
		t.Fatalf("thumbnail: %v %v", err, img)
	}
	resp = a.raw("GET", base+"/sheet.pdf?areas=1", tok, nil)
	pdf, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.Header.Get("Content-Type") != "application/pdf" || !bytes.HasPrefix(pdf, []byte("%PDF-")) {
		t.Fatalf("sheet: %s", resp.Header.Get("Content-Type"))
	}

	var p projectDTO
	if code, env := a.do("POST", base+"/save", tok, map[string]string{"name": "Wall"}, &p); code != http.StatusCreated {
		t.Fatalf("save new: %d %s", code, env.Message)
	}
	if p.Name != "Wall" || len(p.Content) == 0 {
		t.Fatalf("saved = %+v", p)
	}
	if code, _ := a.do("POST", base+"/save", tok, nil, &p); code != http.StatusOK {
		t.Fatalf("save again: %d", code)
	}

	// reopening the project restores the free area
	if code, _ := a.do("POST", "/api/editor/sessions", tok, map[string]string{"projectId": p.ID}, &st); code != http.StatusCreated {
		t.Fatalf("reopen: %d", code)
	}
	if st.ProjectID != p.ID || st.Template == nil || st.Template.ID != "free-canvas" {
		t.Fatalf("reopened = %+v", st)
	}
	if _, ok := st.Widgets[area]; !ok {
		t.Fatalf("widget of %s not restored: %v", area, st.Widgets)
	}
}

func TestSaveOpenSessions(t *testing.T) {
	a := newTestAPI(t)
	_, tok := a.signup("ada")
	var st stateDTO
	if code, _ := a.do("POST", "/api/editor/sessions", tok, map[string]string{"templateId": "kpi-dashboard"}, &st); code != http.StatusCreated {
		t.Fatalf("open: %d", code)
	}
	// sessions without a template are skipped
	if code, _ := a.do("POST", "/api/editor/sessions", tok, nil, nil); code != http.StatusCreated {
		t.Fatalf("open empty: %d", code)
	}
	dir := t.TempDir()
	n, err := a.srv.SaveOpenSessions(dir)
	if err != nil || n != 1 {
		t.Fatalf("SaveOpenSessions = %d, %v", n, err)
	}
	doc, err := storage.LoadDocument(filepath.Join(dir, st.ID+".json"))
	if err != nil || doc.Template == nil || doc.Template.ID != "kpi-dashboard" {
		t.Fatalf("LoadDocument = %+v, %v", doc, err)
	}
}

func TestHandlerPanicIsReported(t *testing.T) {
	var got any
	var stack []byte
	srv := New(Options{OnPanic: func(p any, s []byte) { got, stack = p, s }})
	srv.mux.HandleFunc("GET /boom", func(http.ResponseWriter, *http.Request) { panic("boom") })

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
	if got != "boom" || len(stack) == 0 {
		t.Fatalf("OnPanic got %v with %d stack bytes", got, len(stack))
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("server unusable after panic: %d", rec.Code)
	}
}
