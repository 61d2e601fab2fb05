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
	"runtime/debug"
	"strings"
	"time"

	"nebulascreen/internal/domain"
	applog "nebulascreen/internal/log"

	"github.com/google/uuid"
)

// statusRecorder captures the status for the access log. It forwards Flush so
// SSE keeps working through the middleware.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withRequestLog assigns a request id, recovers panics and writes one access
// line per request.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		ctx := applog.ContextWithRequestID(r.Context(), id)
		r = r.WithContext(ctx)

		rec := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		defer func() {
			if p := recover(); p != nil {
				stack := debug.Stack()
				s.log.ErrorContext(ctx, "handler panic", slog.Any("panic", p), slog.String("stack", string(stack)))
				if rec.status == 0 {
					writeFail(rec, http.StatusInternalServerError, "internal server error", nil)
				}
				if s.onPanic != nil {
					s.onPanic(p, stack)
				}
			}
			s.log.InfoContext(ctx, "http",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Int("bytes", rec.bytes),
				slog.Duration("dur", time.Since(start)),
			)
		}()
		next.ServeHTTP(rec, r)
	})
}

// authedHandler receives the authenticated user.
type authedHandler func(w http.ResponseWriter, r *http.Request, user *domain.User)

// withAuth requires a valid bearer token.
func (s *Server) withAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearer(r)
		if !ok {
			writeFail(w, http.StatusUnauthorized, "missing bearer token", nil)
			return
		}
		u, err := s.auth.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next(w, r, u)
	}
}

// bearer reads the Authorization header, or the access_token query parameter
// for EventSource clients that cannot set headers.
func bearer(r *http.Request) (string, bool) {
	const prefix = "bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return strings.TrimSpace(h[len(prefix):]), true
	}
	if t := r.URL.Query().Get("access_token"); t != "" && r.Method == http.MethodGet {
		return t, true
	}
	return "", false
}
