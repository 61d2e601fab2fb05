/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package auth implements user registration, login and bearer tokens.
// Passwords are hashed with bcrypt; tokens are HMAC-signed claims with an expiry.
package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"nebulascreen/internal/domain"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrEmailTaken     = errors.New("auth: email already registered")
	ErrUsernameTaken  = errors.New("auth: username already taken")
	ErrBadCredentials = errors.New("auth: wrong email or password")
	ErrUserNotFound   = errors.New("auth: user not found")
)

// DefaultTokenTTL matches the 7 day session of the web client.
const DefaultTokenTTL = 7 * 24 * time.Hour

// UserStore is the persistence the service needs; *storage.Store implements it.
type UserStore interface {
	CreateUser(ctx context.Context, u *domain.User) error
	UserByID(ctx context.Context, id string) (*domain.User, error)
	UserByEmail(ctx context.Context, email string) (*domain.User, error)
	UserByUsername(ctx context.Context, name string) (*domain.User, error)
	ListUsers(ctx context.Context, limit, offset int) ([]*domain.User, error)
}

type Config struct {
	// Secret signs tokens. When empty a random per-process secret is used.
	Secret     string
	TTL        time.Duration
	BcryptCost int
}

// Service handles the user flows behind /api/users.
type Service struct {
	users  UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	log    *slog.Logger
}

func NewService(users UserStore, cfg Config) *Service {
	l := applog.WithComponent("auth")
	secret := []byte(cfg.Secret)
	if len(secret) == 0 {
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
		l.Warn("no auth secret configured; tokens will not survive a restart")
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	cost := cfg.BcryptCost
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Service{users: users, secret: secret, ttl: ttl, cost: cost, now: time.Now, log: l}
}

// SetClock replaces the time source; tests use it to expire tokens.
func (s *Service) SetClock(now func() time.Time) { s.now = now }

// Register validates the input, checks email and username uniqueness and stores
// the user with a bcrypt hash.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}
	if err := s.taken(ctx, in); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &domain.User{Username: in.Username, Email: in.Email, PasswordHash: string(hash)}
	if err := s.users.CreateUser(ctx, u); err != nil {
		// Lost a race with a concurrent registration; report the field that
		// collided.
		if errors.Is(err, storage.ErrConflict) {
			if terr := s.taken(ctx, in); terr != nil {
				return nil, terr
			}
		}
		return nil, err
	}
	s.log.InfoContext(ctx, "user registered", slog.String("user", u.ID))
	return u, nil
}

// taken returns ErrEmailTaken or ErrUsernameTaken when a stored user already
// has the email or the username.
func (s *Service) taken(ctx context.Context, in RegisterInput) error {
	if _, err := s.users.UserByEmail(ctx, in.Email); err == nil {
		return ErrEmailTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	if _, err := s.users.UserByUsername(ctx, in.Username); err == nil {
		return ErrUsernameTaken
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return nil
}

// LoginResult is returned to the client after a successful login.
type LoginResult struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *domain.User `json:"user"`
}

// Login never reveals whether the email or the password was wrong.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	u, err := s.users.UserByEmail(ctx, in.Email)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrBadCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)); err != nil {
		s.log.InfoContext(ctx, "login rejected", slog.String("user", u.ID))
		return nil, ErrBadCredentials
	}
	now := s.now()
	exp := now.Add(s.ttl)
	tok, err := SignToken(s.secret, Claims{Sub: u.ID, Email: u.Email, Username: u.Username, Iat: now.Unix(), Exp: exp.Unix()})
	if err != nil {
		return nil, err
	}
	s.log.InfoContext(ctx, "user logged in", slog.String("user", u.ID))
	return &LoginResult{Token: tok, ExpiresAt: exp.UTC(), User: u}, nil
}

// Authenticate verifies the token and that its subject still exists.
func (s *Service) Authenticate(ctx context.Context, token string) (*domain.User, error) {
	claims, err := VerifyToken(s.secret, token, s.now())
	if err != nil {
		return nil, err
	}
	u, err := s.users.UserByID(ctx, claims.Sub)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	return u, err
}

// User returns one user by id.
func (s *Service) User(ctx context.Context, id string) (*domain.User, error) {
	u, err := s.users.UserByID(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

func (s *Service) Users(ctx context.Context, limit, offset int) ([]*domain.User, error) {
	return s.users.ListUsers(ctx, limit, offset)
}
