/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package auth

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/storage"

	"golang.org/x/crypto/bcrypt"
)

func newService(t *testing.T) *Service {
	t.Helper()
	st, err := storage.Open(context.Background(), storage.DriverSQLite, filepath.Join(t.TempDir(), "auth.sqlite"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return NewService(st, Config{Secret: "test-secret", BcryptCost: bcrypt.MinCost})
}

func TestTokenRoundTripAndTamper(t *testing.T) {
	secret := []byte("s3cret")
	now := time.Unix(1_700_000_000, 0)
	tok, err := SignToken(secret, Claims{Sub: "u1", Iat: now.Unix(), Exp: now.Add(time.Hour).Unix()})
	if err != nil {
		t.Fatalf("SignToken: %v", err)
	}
	c, err := VerifyToken(secret, tok, now)
	if err != nil || c.Sub != "u1" {
		t.Fatalf("VerifyToken = %+v, %v", c, err)
	}
	if _, err := VerifyToken([]byte("other"), tok, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("wrong secret: err = %v", err)
	}
	if _, err := VerifyToken(secret, tok, now.Add(2*time.Hour)); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired: err = %v", err)
	}
	parts := strings.Split(tok, ".")
	forged := parts[0] + "x." + parts[1]
	if _, err := VerifyToken(secret, forged, now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered payload: err = %v", err)
	}
	if _, err := VerifyToken(secret, "garbage", now); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("garbage: err = %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	cases := []struct {
		in    RegisterInput
		field string
	}{
		{RegisterInput{Username: "a", Email: "a@b.io", Password: "abc123"}, "username"},
		{RegisterInput{Username: strings.Repeat("x", 21), Email: "a@b.io", Password: "abc123"}, "username"},
		{RegisterInput{Username: "ab", Email: "not-an-email", Password: "abc123"}, "email"},
		{RegisterInput{Username: "ab", Email: "a@b.io", Password: "abc12"}, "password"},
		{RegisterInput{Username: "ab", Email: "a@b.io", Password: "abcdefg"}, "password"},
		{RegisterInput{Username: "ab", Email: "a@b.io", Password: "1234567"}, "password"},
		{RegisterInput{Username: "ab", Email: "a@b.io", Password: strings.Repeat("a1", 26)}, "password"},
	}
	for _, c := range cases {
		err := c.in.Normalize().Validate()
		var ve *ValidationError
		if !errors.As(err, &ve) || !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("%+v: expected ValidationError, got %v", c.in, err)
		}
		if ve.Fields[0].Field != c.field {
			t.Fatalf("%+v: field = %s, want %s", c.in, ve.Fields[0].Field, c.field)
		}
	}
	ok := RegisterInput{Username: " 小明 ", Email: " Ming@Example.COM ", Password: "pass1234"}.Normalize()
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid input rejected: %v", err)
	}
	if ok.Username != "小明" || ok.Email != "ming@example.com" {
		t.Fatalf("not normalized: %+v", ok)
	}
}

func TestRegisterLoginAuthenticate(t *testing.T) {
	ctx := context.Background()
	s := newService(t)
	u, err := s.Register(ctx, RegisterInput{Username: "ada", Email: "ada@example.com", Password: "lovelace1"})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.PasswordHash == "lovelace1" || u.PasswordHash == "" {
		t.Fatalf("password not hashed")
	}

	if _, err := s.Register(ctx, RegisterInput{Username: "ada2", Email: "ADA@example.com", Password: "lovelace1"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("duplicate email: err = %v", err)
	}
	if _, err := s.Register(ctx, RegisterInput{Username: "ada", Email: "other@example.com", Password: "lovelace1"}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("duplicate username: err = %v", err)
	}

	if _, err := s.Login(ctx, LoginInput{Email: "ada@example.com", Password: "wrong123"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("wrong password: err = %v", err)
	}
	if _, err := s.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "lovelace1"}); !errors.Is(err, ErrBadCredentials) {
		t.Fatalf("unknown email: err = %v", err)
	}

	now := time.Now()
	s.SetClock(func() time.Time { return now })
	res, err := s.Login(ctx, LoginInput{Email: "ada@example.com", Password: "lovelace1"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.User.ID != u.ID || res.Token == "" {
		t.Fatalf("unexpected login result: %+v", res)
	}
	if got := res.ExpiresAt.Sub(now.UTC()); got != DefaultTokenTTL {
		t.Fatalf("token ttl = %v", got)
	}

	me, err := s.Authenticate(ctx, res.Token)
	if err != nil || me.ID != u.ID {
		t.Fatalf("Authenticate = %+v, %v", me, err)
	}
	s.SetClock(func() time.Time { return now.Add(DefaultTokenTTL + time.Second) })
	if _, err := s.Authenticate(ctx, res.Token); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expired token accepted: %v", err)
	}

	if _, err := s.User(ctx, "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("User(missing): err = %v", err)
	}
	list, err := s.Users(ctx, 10, 0)
	if err != nil || len(list) != 1 {
		t.Fatalf("Users = %d, %v", len(list), err)
	}
}

// racingStore registers a competing user right before the real insert.
type racingStore struct {
	*storage.Store
	rival *domain.User
}

func (r *racingStore) CreateUser(ctx context.Context, u *domain.User) error {
	if r.rival != nil {
		rival := r.rival
		r.rival = nil
		if err := r.Store.CreateUser(ctx, rival); err != nil {
			return err
		}
	}
	return r.Store.CreateUser(ctx, u)
}

func TestRegisterRaceReportsCollidingField(t *testing.T) {
	ctx := context.Background()
	st, err := storage.Open(ctx, storage.DriverSQLite, filepath.Join(t.TempDir(), "race.sqlite"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	rs := &racingStore{Store: st}
	s := NewService(rs, Config{Secret: "x", BcryptCost: bcrypt.MinCost})

	rs.rival = &domain.User{Username: "grace", Email: "other@example.com", PasswordHash: "h"}
	if _, err := s.Register(ctx, RegisterInput{Username: "grace", Email: "grace@example.com", Password: "hopper123"}); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("username race: err = %v", err)
	}
	rs.rival = &domain.User{Username: "someone", Email: "alan@example.com", PasswordHash: "h"}
	if _, err := s.Register(ctx, RegisterInput{Username: "alan", Email: "alan@example.com", Password: "turing123"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("email race: err = %v", err)
	}
}
