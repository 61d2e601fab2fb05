/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"nebulascreen/internal/domain"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), DriverSQLite, filepath.Join(t.TempDir(), "data", "nbs.sqlite"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustUser(t *testing.T, s *Store, name string) *domain.User {
	t.Helper()
	u := &domain.User{Username: name, Email: name + "@Example.com", PasswordHash: "x"}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatalf("CreateUser(%s): %v", name, err)
	}
	return u
}

func TestOpenAppliesMigrationsOnce(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nbs.sqlite")
	s, err := Open(ctx, "SQLite", path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	v, err := s.SchemaVersion(ctx)
	if err != nil || v != 2 {
		t.Fatalf("SchemaVersion = %d, %v; want 2", v, err)
	}
	_ = s.Close()

	s2, err := Open(ctx, DriverSQLite, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	var n int
	if err := s2.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil || n != 2 {
		t.Fatalf("schema_migrations rows = %d, %v", n, err)
	}
	if err := s2.Ping(ctx); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), "mysql", "x"); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if _, err := Open(context.Background(), DriverSQLite, " "); err == nil {
		t.Fatalf("expected error for empty dsn")
	}
}

func TestRebindDollar(t *testing.T) {
	got := rebindDollar(`SELECT * FROM t WHERE a = ? AND b = '?' AND c = ?`)
	want := `SELECT * FROM t WHERE a = $1 AND b = '?' AND c = $2`
	if got != want {
		t.Fatalf("rebindDollar = %q", got)
	}
	s := &Store{driver: DriverSQLite}
	if q := s.rebind("a = ?"); q != "a = ?" {
		t.Fatalf("sqlite must keep ? placeholders: %q", q)
	}
}

func TestParseVersion(t *testing.T) {
	if v, err := parseVersion("migrations/012_add_things.sql"); err != nil || v != 12 {
		t.Fatalf("parseVersion = %d, %v", v, err)
	}
	if _, err := parseVersion("init.sql"); err == nil {
		t.Fatalf("expected error for unnumbered file")
	}
}

func TestUsersCRUD(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	ada := mustUser(t, s, "ada")
	if ada.ID == "" || ada.CreatedAt.IsZero() {
		t.Fatalf("id/timestamps not assigned: %+v", ada)
	}
	if ada.Email != "ada@example.com" {
		t.Fatalf("email not normalized: %q", ada.Email)
	}

	got, err := s.UserByEmail(ctx, "ADA@example.com ")
	if err != nil || got.ID != ada.ID || got.PasswordHash != "x" {
		t.Fatalf("UserByEmail = %+v, %v", got, err)
	}
	if got, err := s.UserByUsername(ctx, "ada"); err != nil || got.ID != ada.ID {
		t.Fatalf("UserByUsername = %+v, %v", got, err)
	}
	if got, err := s.UserByID(ctx, ada.ID); err != nil || got.Username != "ada" {
		t.Fatalf("UserByID = %+v, %v", got, err)
	}
	if _, err := s.UserByID(ctx, "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown id: err = %v, want ErrNotFound", err)
	}

	dupEmail := &domain.User{Username: "other", Email: "ada@example.com", PasswordHash: "y"}
	if err := s.CreateUser(ctx, dupEmail); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate email: err = %v, want ErrConflict", err)
	}
	dupName := &domain.User{Username: "ada", Email: "ada2@example.com", PasswordHash: "y"}
	if err := s.CreateUser(ctx, dupName); !errors.Is(err, ErrConflict) {
		t.Fatalf("duplicate username: err = %v, want ErrConflict", err)
	}

	mustUser(t, s, "bob")
	mustUser(t, s, "cy")
	all, err := s.ListUsers(ctx, 0, 0)
	if err != nil || len(all) != 3 {
		t.Fatalf("ListUsers all = %d, %v", len(all), err)
	}
	page, err := s.ListUsers(ctx, 2, 2)
	if err != nil || len(page) != 1 {
		t.Fatalf("ListUsers page = %d, %v", len(page), err)
	}
	tail, err := s.ListUsers(ctx, 0, 1)
	if err != nil || len(tail) != 2 {
		t.Fatalf("ListUsers offset only = %d, %v", len(tail), err)
	}
	if n, err := s.CountUsers(ctx); err != nil || n != 3 {
		t.Fatalf("CountUsers = %d, %v", n, err)
	}
}

func sampleDocument() *domain.Document {
	return &domain.Document{
		Format: "1.1.0",
		Template: &domain.Template{
			ID:   "basic-grid",
			Name: "Basic",
			Areas: []domain.Area{
				{ID: "area-1", Name: "A", Type: "bar-chart", Grid: &domain.GridSpan{X: 0, Y: 0, W: 6, H: 4}},
			},
		},
		Widgets: map[string]*domain.Widget{
			"area-1": domain.NewWidget("bar-chart", domain.Options{"title": map[string]any{"text": "Sales"}}),
		},
	}
}

func TestProjectsScopedByCreatorAndMembers(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	ada := mustUser(t, s, "ada")
	bob := mustUser(t, s, "bob")
	cy := mustUser(t, s, "cy")

	p := &domain.Project{Name: "Ops", CreatorID: ada.ID, Members: []string{bob.ID, bob.ID, ada.ID, " "}, TemplateID: "basic-grid", Content: sampleDocument()}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}
	if len(p.Members) != 1 || p.Members[0] != bob.ID {
		t.Fatalf("members not normalized: %v", p.Members)
	}

	got, err := s.Project(ctx, p.ID)
	if err != nil {
		t.Fatalf("Project: %v", err)
	}
	if got.Content == nil || got.Content.Template.ID != "basic-grid" {
		t.Fatalf("content not round-tripped: %+v", got.Content)
	}
	w := got.Content.Widgets["area-1"]
	if w == nil || w.Kind != domain.KindChart {
		t.Fatalf("widget not decoded: %+v", w)
	}
	if !got.CanAccess(bob.ID) || got.CanAccess(cy.ID) {
		t.Fatalf("CanAccess wrong for %+v", got)
	}

	if list, _ := s.ProjectsFor(ctx, bob.ID, 0, 0); len(list) != 1 || list[0].ID != p.ID {
		t.Fatalf("member should see project: %v", list)
	}
	if list, _ := s.ProjectsFor(ctx, cy.ID, 0, 0); len(list) != 0 {
		t.Fatalf("outsider sees %d projects", len(list))
	}
	if err := s.CreateProject(ctx, &domain.Project{Name: "Solo", CreatorID: ada.ID}); err != nil {
		t.Fatalf("CreateProject(Solo): %v", err)
	}
	if list, _ := s.ProjectsFor(ctx, ada.ID, 0, 0); len(list) != 2 {
		t.Fatalf("creator sees %d projects, want 2", len(list))
	}
	if list, _ := s.ProjectsFor(ctx, ada.ID, 1, 0); len(list) != 1 {
		t.Fatalf("limit not applied: %d", len(list))
	}
}

func TestUpdateAndDeleteProject(t *testing.T) {
	ctx := context.Background()
	s := openTemp(t)
	ada := mustUser(t, s, "ada")
	bob := mustUser(t, s, "bob")
	p := &domain.Project{Name: "Ops", CreatorID: ada.ID}
	if err := s.CreateProject(ctx, p); err != nil {
		t.Fatalf("CreateProject: %v", err)
	}

	upd := &domain.Project{ID: p.ID, Name: "Ops v2", CreatorID: bob.ID, Members: []string{bob.ID}, Content: sampleDocument()}
	if err := s.UpdateProject(ctx, upd); err != nil {
		t.Fatalf("UpdateProject: %v", err)
	}
	got, _ := s.Project(ctx, p.ID)
	if got.Name != "Ops v2" || got.CreatorID != ada.ID || len(got.Members) != 1 || got.Content == nil {
		t.Fatalf("update not applied correctly: %+v", got)
	}

	if err := s.UpdateProject(ctx, &domain.Project{ID: "missing", Name: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update missing: err = %v", err)
	}
	bad := &domain.Project{ID: p.ID, Name: "Ops", Members: []string{"ghost"}}
	if err := s.UpdateProject(ctx, bad); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("unknown member: err = %v, want ErrInvalidReference", err)
	}

	if err := s.DeleteProject(ctx, p.ID); err != nil {
		t.Fatalf("DeleteProject: %v", err)
	}
	if _, err := s.Project(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleted project still readable: %v", err)
	}
	if err := s.DeleteProject(ctx, p.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: err = %v", err)
	}
	if list, _ := s.ProjectsFor(ctx, bob.ID, 0, 0); len(list) != 0 {
		t.Fatalf("member rows survived delete")
	}
}

func TestDocumentFileBackupAndFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "screen.json")
	doc := sampleDocument()
	if err := SaveDocument(path, doc); err != nil {
		t.Fatalf("SaveDocument: %v", err)
	}
	doc.Template.Name = "Second"
	if err := SaveDocument(path, doc); err != nil {
		t.Fatalf("SaveDocument(2): %v", err)
	}
	ents, err := os.ReadDir(filepath.Join(dir, BackupsDirName))
	if err != nil || len(ents) != 1 {
		t.Fatalf("expected one backup, got %d (%v)", len(ents), err)
	}

	got, err := LoadDocument(path)
	if err != nil || got.Template.Name != "Second" {
		t.Fatalf("LoadDocument = %+v, %v", got, err)
	}

	if err := os.WriteFile(path, []byte("{broken"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err = LoadDocument(path)
	if err != nil {
		t.Fatalf("fallback to backup failed: %v", err)
	}
	if got.Template.Name != "Basic" {
		t.Fatalf("backup content = %q, want first save", got.Template.Name)
	}

	if _, err := LoadDocument(filepath.Join(t.TempDir(), "none.json")); err == nil {
		t.Fatalf("expected error without file and backups")
	}
}
