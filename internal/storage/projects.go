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
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nebulascreen/internal/domain"

	"github.com/google/uuid"
)

const projectColumns = `p.id, p.name, p.description, p.creator_id, p.template_id, p.content, p.created_at, p.updated_at`

// CreateProject inserts p and its member list in one transaction.
func (s *Store) CreateProject(ctx context.Context, p *domain.Project) error {
	if p == nil {
		return errors.New("storage: nil project")
	}
	if strings.TrimSpace(p.Name) == "" || p.CreatorID == "" {
		return errors.New("storage: project name and creator are required")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	content, err := encodeContent(p.Content)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	p.Members = normalizeMembers(p.Members, p.CreatorID)

	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO projects (id, name, description, creator_id, template_id, content, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`),
			p.ID, p.Name, p.Description, p.CreatorID, p.TemplateID, content, toMillis(now), toMillis(now)); err != nil {
			return mapErr(err)
		}
		return s.writeMembers(ctx, tx, p.ID, p.Members)
	})
}

// Project loads one project with its members.
func (s *Store) Project(ctx context.Context, id string) (*domain.Project, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+projectColumns+` FROM projects p WHERE p.id = ?`), id)
	p, err := scanProject(row)
	if err != nil {
		return nil, mapErr(err)
	}
	if p.Members, err = s.members(ctx, p.ID); err != nil {
		return nil, err
	}
	return p, nil
}

// ProjectsFor lists projects the user created or is a member of, most recently updated first.
func (s *Store) ProjectsFor(ctx context.Context, userID string, limit, offset int) ([]*domain.Project, error) {
	q := `SELECT ` + projectColumns + ` FROM projects p
		WHERE p.creator_id = ? OR EXISTS (SELECT 1 FROM project_members m WHERE m.project_id = p.id AND m.user_id = ?)
		ORDER BY p.updated_at DESC, p.id`
	q, args := s.withPage(q, []any{userID, userID}, limit, offset)
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	var out []*domain.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	// Close before the member queries: sqlite runs on a single connection.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	for _, p := range out {
		if p.Members, err = s.members(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateProject overwrites name, description, template, content and members.
// Creator and created_at never change.
func (s *Store) UpdateProject(ctx context.Context, p *domain.Project) error {
	if p == nil || p.ID == "" {
		return errors.New("storage: project id is required")
	}
	content, err := encodeContent(p.Content)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var creator string
		if err := tx.QueryRowContext(ctx, s.rebind(`SELECT creator_id FROM projects WHERE id = ?`), p.ID).Scan(&creator); err != nil {
			return mapErr(err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`UPDATE projects SET name = ?, description = ?, template_id = ?, content = ?, updated_at = ? WHERE id = ?`),
			p.Name, p.Description, p.TemplateID, content, toMillis(now), p.ID); err != nil {
			return mapErr(err)
		}
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM project_members WHERE project_id = ?`), p.ID); err != nil {
			return err
		}
		p.CreatorID = creator
		p.Members = normalizeMembers(p.Members, creator)
		return s.writeMembers(ctx, tx, p.ID, p.Members)
	})
	if err != nil {
		return err
	}
	p.UpdatedAt = now
	return nil
}

// DeleteProject removes the project; members cascade.
func (s *Store) DeleteProject(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// Explicit member delete: postgres cascades, sqlite only when foreign_keys took effect.
		if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM project_members WHERE project_id = ?`), id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM projects WHERE id = ?`), id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) members(ctx context.Context, projectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`SELECT user_id FROM project_members WHERE project_id = ? ORDER BY user_id`), projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Store) writeMembers(ctx context.Context, tx *sql.Tx, projectID string, members []string) error {
	for _, m := range members {
		if _, err := tx.ExecContext(ctx, s.rebind(`INSERT INTO project_members (project_id, user_id) VALUES (?, ?)`), projectID, m); err != nil {
			return fmt.Errorf("add member %s: %w", m, mapErr(err))
		}
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.log.Warn("rollback failed", slog.Any("err", rerr))
		}
		return err
	}
	return tx.Commit()
}

// normalizeMembers drops blanks, duplicates and the creator, who has access anyway.
func normalizeMembers(in []string, creator string) []string {
	seen := map[string]bool{creator: true}
	out := []string{}
	for _, m := range in {
		m = strings.TrimSpace(m)
		if m == "" || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

func encodeContent(doc *domain.Document) (sql.NullString, error) {
	if doc == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("encode content: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func scanProject(r scanner) (*domain.Project, error) {
	var (
		p                domain.Project
		content          sql.NullString
		created, updated int64
	)
	if err := r.Scan(&p.ID, &p.Name, &p.Description, &p.CreatorID, &p.TemplateID, &content, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan project: %w", err)
	}
	p.CreatedAt, p.UpdatedAt = fromMillis(created), fromMillis(updated)
	if content.Valid && content.String != "" {
		var doc domain.Document
		if err := json.Unmarshal([]byte(content.String), &doc); err != nil {
			return nil, fmt.Errorf("decode content of %s: %w", p.ID, err)
		}
		p.Content = &doc
	}
	return &p, nil
}
