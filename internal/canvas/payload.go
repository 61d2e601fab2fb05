/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package canvas implements the two area-hosting surfaces of the editor: the
// grid canvas, whose areas come from the template, and the free canvas, where
// dropping a widget creates a new positioned area.
package canvas

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rivo/uniseg"

	"nebulascreen/internal/domain"
)

// ErrMalformedPayload is wrapped by every drop parse failure.
var ErrMalformedPayload = errors.New("canvas: malformed drop payload")

// DefaultAreaName names areas created from payloads without a title.
const DefaultAreaName = "自定义区域"

// Payload is a parsed drag-and-drop descriptor.
type Payload struct {
	Type    domain.WidgetType
	Options domain.Options
	// Title is the top-level title.text, if any.
	Title string
}

// ParseDrop decodes a drop payload. It accepts preset entries carrying a
// nested "options" object as well as flat option objects with a "type" field.
func ParseDrop(b []byte) (Payload, error) {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return Payload{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw == nil {
		return Payload{}, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}
	t, _ := raw["type"].(string)
	if strings.TrimSpace(t) == "" {
		return Payload{}, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}
	p := Payload{Type: domain.WidgetType(t)}
	if title, ok := raw["title"].(map[string]any); ok {
		p.Title, _ = title["text"].(string)
	}
	if nested, ok := raw["options"]; ok && nested != nil {
		m, ok := nested.(map[string]any)
		if !ok {
			return Payload{}, fmt.Errorf("%w: options is not an object", ErrMalformedPayload)
		}
		p.Options = domain.Options(m)
		return p, nil
	}
	p.Options = domain.Options{}
	for k, v := range raw {
		switch k {
		case "type", "isBasicComponent":
			continue
		}
		p.Options[k] = v
	}
	return p, nil
}

// Widget returns the configuration to register for the payload.
func (p Payload) Widget() *domain.Widget { return domain.NewWidget(p.Type, p.Options.Clone()) }

// AreaName picks the name of an area created from the payload.
func (p Payload) AreaName() string {
	if p.Title != "" {
		return p.Title
	}
	if t, ok := p.Options.Map("title"); ok {
		if s := t.String("text"); s != "" {
			return s
		}
	}
	return DefaultAreaName
}

// Defaults supplies catalog defaults for sizing.
type Defaults interface {
	Defaults(t domain.WidgetType) domain.Options
}

// Fixed box for charts, images and containers.
const (
	DefaultWidth  = 400.0
	DefaultHeight = 300.0
)

// InitialSize estimates the box of a freshly dropped widget. Text-like basic
// widgets are sized from font size and text length; the rest get the fixed
// box. defaults may be nil.
func InitialSize(p Payload, defaults Defaults) (w, h float64) {
	if !p.Type.IsBasic() || p.Type == domain.BasicContainer || p.Type == domain.BasicImage {
		return DefaultWidth, DefaultHeight
	}
	opts := p.Options
	if defaults != nil {
		opts = domain.Merge(defaults.Defaults(p.Type), p.Options)
	}
	fontSize, ok := opts.Float("fontSize")
	if !ok || fontSize <= 0 {
		fontSize = 16
	}
	text := opts.String("format")
	if _, has := opts["format"]; !has {
		text = opts.String("content")
	}
	n := uniseg.GraphemeClusterCount(text)
	return fontSize * float64(n), fontSize * 1.5
}
