/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package auth

import (
	"errors"
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Field limits for registration.
const (
	UsernameMin = 2
	UsernameMax = 20
	PasswordMin = 6
	PasswordMax = 50
)

var ErrInvalidInput = errors.New("auth: invalid input")

// FieldError names the offending field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError collects every field problem of one request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		msgs[i] = f.Field + ": " + f.Message
	}
	return "invalid input: " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Unwrap() error { return ErrInvalidInput }

func (e *ValidationError) add(field, msg string) { e.Fields = append(e.Fields, FieldError{field, msg}) }

func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

// RegisterInput is the registration request body.
type RegisterInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Normalize trims the fields, folds the email to lower case and composes the
// username to NFC so length limits count what the user sees.
func (in RegisterInput) Normalize() RegisterInput {
	in.Username = norm.NFC.String(strings.TrimSpace(in.Username))
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	return in
}

// Validate expects normalized input.
func (in RegisterInput) Validate() error {
	var ve ValidationError
	switch n := utf8.RuneCountInString(in.Username); {
	case n == 0:
		ve.add("username", "username is required")
	case n < UsernameMin:
		ve.add("username", "username must be at least 2 characters")
	case n > UsernameMax:
		ve.add("username", "username must be at most 20 characters")
	}
	if msg := validateEmail(in.Email); msg != "" {
		ve.add("email", msg)
	}
	if msg := validatePassword(in.Password); msg != "" {
		ve.add("password", msg)
	}
	return ve.orNil()
}

// LoginInput is the login request body.
type LoginInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (in LoginInput) Validate() error {
	var ve ValidationError
	if msg := validateEmail(strings.TrimSpace(in.Email)); msg != "" {
		ve.add("email", msg)
	}
	if in.Password == "" {
		ve.add("password", "password is required")
	}
	return ve.orNil()
}

func validateEmail(s string) string {
	if s == "" {
		return "email is required"
	}
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s || !strings.Contains(s[strings.LastIndexByte(s, '@')+1:], ".") {
		return "email format is invalid"
	}
	return ""
}

// validatePassword requires 6-50 characters with at least one letter and one digit.
func validatePassword(p string) string {
	n := utf8.RuneCountInString(p)
	switch {
	case n == 0:
		return "password is required"
	case n < PasswordMin:
		return "password must be at least 6 characters"
	case n > PasswordMax:
		return "password must be at most 50 characters"
	}
	var letter, digit bool
	for _, r := range p {
		switch {
		case r <= unicode.MaxASCII && unicode.IsLetter(r):
			letter = true
		case r >= '0' && r <= '9':
			digit = true
		}
	}
	if !letter || !digit {
		return "password must contain letters and digits"
	}
	return ""
}
