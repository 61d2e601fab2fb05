/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"nebulascreen/internal/auth"
	"nebulascreen/internal/canvas"
	"nebulascreen/internal/catalog"
	"nebulascreen/internal/editor"
	"nebulascreen/internal/export"
	"nebulascreen/internal/schema"
	"nebulascreen/internal/storage"
	"nebulascreen/internal/template"
)

const maxBodyBytes = 1 << 20

// Success is the envelope of every 2xx response.
type Success struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data"`
	Success bool   `json:"success"`
}

// Failure is the envelope of every error response. Details carries field
// problems for validation errors.
type Failure struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	Success   bool   `json:"success"`
	Timestamp string `json:"timestamp"`
	Details   any    `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeOK(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, Success{Code: status, Message: "ok", Data: data, Success: true})
}

func writeFail(w http.ResponseWriter, status int, msg string, details any) {
	writeJSON(w, status, Failure{
		Code:      status,
		Message:   msg,
		Success:   false,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Details:   details,
	})
}

// writeError maps package sentinels to statuses. Unknown errors are logged and
// reported as 500 without their text.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, "internal server error"
	var details any

	var aerr *auth.ValidationError
	var serr *schema.ValidationError
	switch {
	case errors.As(err, &aerr):
		status, msg, details = http.StatusBadRequest, "invalid input", aerr.Fields
	case errors.As(err, &serr):
		status, msg, details = http.StatusUnprocessableEntity, "options do not match the widget schema", serr.Problems
	case errors.Is(err, errBadRequest), errors.Is(err, canvas.ErrMalformedPayload),
		errors.Is(err, template.ErrInvalidArea), errors.Is(err, storage.ErrInvalidReference):
		status, msg = http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrBadCredentials), errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenExpired):
		status, msg = http.StatusUnauthorized, err.Error()
	case errors.Is(err, errForbidden):
		status, msg = http.StatusForbidden, err.Error()
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, auth.ErrUserNotFound), errors.Is(err, editor.ErrUnknownSession),
		errors.Is(err, catalog.ErrUnknownTemplate), errors.Is(err, canvas.ErrUnknownArea):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, auth.ErrEmailTaken), errors.Is(err, auth.ErrUsernameTaken), errors.Is(err, storage.ErrConflict),
		errors.Is(err, template.ErrDuplicateArea), errors.Is(err, canvas.ErrReplaceDeclined):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, editor.ErrNoTemplate), errors.Is(err, editor.ErrNoSelection), errors.Is(err, editor.ErrNoWidget),
		errors.Is(err, editor.ErrWrongLayout), errors.Is(err, editor.ErrIncompatibleDocument),
		errors.Is(err, canvas.ErrNotSelected), errors.Is(err, template.ErrNotFreeLayout), errors.Is(err, export.ErrNoTemplate):
		status, msg = http.StatusConflict, err.Error()
	}
	if status == http.StatusInternalServerError {
		s.log.ErrorContext(r.Context(), "request failed", slog.String("path", r.URL.Path), slog.Any("err", err))
	} else {
		s.log.DebugContext(r.Context(), "request rejected", slog.Int("status", status), slog.Any("err", err))
	}
	writeFail(w, status, msg, details)
}

var (
	errBadRequest = errors.New("bad request")
	errForbidden  = errors.New("forbidden")
)

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return badRequest("empty body")
		}
		return badRequest("invalid json: %v", err)
	}
	return nil
}

// readBody returns the raw bounded body; drop payloads are parsed by canvas.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	b, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, badRequest("read body: %v", err)
	}
	return b, nil
}

// paging reads page/pageSize (1-based) with defaults.
func paging(r *http.Request, defSize int) (page, size int) {
	page, size = 1, defSize
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("pageSize")); err == nil && v > 0 {
		size = min(v, 100)
	}
	return page, size
}
