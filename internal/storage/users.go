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
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"nebulascreen/internal/domain"

	"github.com/google/uuid"
)

const userColumns = `id, username, email, password_hash, created_at, updated_at`

// CreateUser inserts u. Empty ids are assigned; timestamps are set to now.
func (s *Store) CreateUser(ctx context.Context, u *domain.User) error {
	if u == nil {
		return errors.New("storage: nil user")
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		u.ID, u.Username, u.Email, u.PasswordHash, toMillis(now), toMillis(now))
	if err != nil {
		err = mapErr(err)
		s.log.Debug("create user failed", slog.String("user", u.ID), slog.Any("err", err))
		return err
	}
	return nil
}

// UserByID returns ErrNotFound when the id is unknown.
func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.userWhere(ctx, "id = ?", id)
}

// UserByEmail matches case-insensitively; emails are stored lower-cased.
func (s *Store) UserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.userWhere(ctx, "email = ?", strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) UserByUsername(ctx context.Context, name string) (*domain.User, error) {
	return s.userWhere(ctx, "username = ?", name)
}

func (s *Store) userWhere(ctx context.Context, cond string, arg any) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+userColumns+` FROM users WHERE `+cond), arg)
	u, err := scanUser(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return u, nil
}

// ListUsers returns users ordered by creation time, newest first.
// A non-positive limit returns everything after offset.
func (s *Store) ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	q, args := `SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`, []any{}
	q, args = s.withPage(q, args, limit, offset)
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()
	var out []*domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// CountUsers is used for paging metadata.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n)
	return n, err
}

// withPage appends LIMIT/OFFSET. A non-positive limit means no limit.
func (s *Store) withPage(q string, args []any, limit, offset int) (string, []any) {
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	if offset > 0 {
		if limit <= 0 {
			// sqlite needs a LIMIT before OFFSET.
			if s.driver == DriverPostgres {
				q += ` LIMIT ALL`
			} else {
				q += ` LIMIT -1`
			}
		}
		q += ` OFFSET ?`
		args = append(args, offset)
	}
	return q, args
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(r scanner) (*domain.User, error) {
	var (
		u                domain.User
		created, updated int64
	)
	if err := r.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.CreatedAt, u.UpdatedAt = fromMillis(created), fromMillis(updated)
	return &u, nil
}
