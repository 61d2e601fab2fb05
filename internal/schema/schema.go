/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package schema holds the JSON schemas (plus client UI hints) that drive the
// property panel form of every widget type, and validates panel edits
// against them.
package schema

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"

	"nebulascreen/internal/domain"
)

//go:embed data/*.json
var files embed.FS

// ErrInvalidOptions is wrapped by every *ValidationError.
var ErrInvalidOptions = errors.New("schema: invalid options")

// Form is what the client needs to render a property form.
type Form struct {
	Schema   json.RawMessage `json:"schema"`
	UISchema json.RawMessage `json:"uiSchema"`
}

// Problem is one failed constraint.
type Problem struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError lists every problem found in one options object.
type ValidationError struct {
	Type     domain.WidgetType
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Field + ": " + p.Message
	}
	return fmt.Sprintf("invalid options for %s: %s", e.Type, strings.Join(msgs, "; "))
}

func (e *ValidationError) Unwrap() error { return ErrInvalidOptions }

type entry struct {
	form     Form
	compiled *gojsonschema.Schema
}

// Set is a compiled collection of widget schemas.
type Set struct {
	basic    map[domain.WidgetType]entry
	chart    entry
	pie      entry
	fallback entry
}

var loadDefault = sync.OnceValues(Load)

// Default returns the built-in schema set. It panics if the embedded schemas
// do not compile.
func Default() *Set {
	s, err := loadDefault()
	if err != nil {
		panic(err)
	}
	return s
}

type rawForm struct {
	Schema   json.RawMessage `json:"schema"`
	UISchema json.RawMessage `json:"uiSchema"`
}

// Load compiles the embedded schemas.
func Load() (*Set, error) {
	s := &Set{basic: make(map[domain.WidgetType]entry)}
	for _, t := range domain.BasicTypes {
		e, err := loadFile(string(t) + ".json")
		if err != nil {
			return nil, err
		}
		s.basic[t] = e
	}
	chart, err := loadFile("chart.json")
	if err != nil {
		return nil, err
	}
	s.chart = chart
	if s.pie, err = withoutAxes(chart.form); err != nil {
		return nil, err
	}
	if s.fallback, err = compile(Form{Schema: json.RawMessage(`{"type":"object","properties":{}}`), UISchema: json.RawMessage(`{}`)}); err != nil {
		return nil, err
	}
	return s, nil
}

func loadFile(name string) (entry, error) {
	b, err := files.ReadFile(path.Join("data", name))
	if err != nil {
		return entry{}, err
	}
	var rf rawForm
	if err := json.Unmarshal(b, &rf); err != nil {
		return entry{}, fmt.Errorf("schema %s: %w", name, err)
	}
	e, err := compile(Form(rf))
	if err != nil {
		return entry{}, fmt.Errorf("schema %s: %w", name, err)
	}
	return e, nil
}

func compile(f Form) (entry, error) {
	c, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(f.Schema))
	if err != nil {
		return entry{}, err
	}
	return entry{form: f, compiled: c}, nil
}

// withoutAxes derives the pie form: pies have no cartesian axes.
func withoutAxes(f Form) (entry, error) {
	var sch, ui map[string]any
	if err := json.Unmarshal(f.Schema, &sch); err != nil {
		return entry{}, err
	}
	if err := json.Unmarshal(f.UISchema, &ui); err != nil {
		return entry{}, err
	}
	if props, ok := sch["properties"].(map[string]any); ok {
		delete(props, "xAxis")
		delete(props, "yAxis")
	}
	delete(ui, "xAxis")
	delete(ui, "yAxis")
	sb, err := json.Marshal(sch)
	if err != nil {
		return entry{}, err
	}
	ub, err := json.Marshal(ui)
	if err != nil {
		return entry{}, err
	}
	return compile(Form{Schema: sb, UISchema: ub})
}

func (s *Set) lookup(t domain.WidgetType) entry {
	switch domain.ResolveKind(t) {
	case domain.KindBasic:
		if e, ok := s.basic[t]; ok {
			return e
		}
	case domain.KindChart:
		if t == "pie-chart" {
			return s.pie
		}
		return s.chart
	}
	return s.fallback
}

// Form returns the form definition for a widget type. Unknown types get an
// empty object form.
func (s *Set) Form(t domain.WidgetType) Form { return s.lookup(t).form }

// Validate checks opts against the schema of t.
func (s *Set) Validate(t domain.WidgetType, opts domain.Options) error {
	if opts == nil {
		opts = domain.Options{}
	}
	res, err := s.lookup(t).compiled.Validate(gojsonschema.NewGoLoader(map[string]any(opts)))
	if err != nil {
		return fmt.Errorf("validate %s: %w", t, err)
	}
	if res.Valid() {
		return nil
	}
	ve := &ValidationError{Type: t}
	for _, re := range res.Errors() {
		ve.Problems = append(ve.Problems, Problem{Field: re.Field(), Message: re.Description()})
	}
	return ve
}
