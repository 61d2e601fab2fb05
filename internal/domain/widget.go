/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package domain

import (
	"encoding/json"
	"strings"
)

// WidgetType is the type tag carried by areas and widget configurations,
// e.g. "bar-chart" or "basic.text".
type WidgetType string

const (
	// BasicPrefix marks basic-content widgets.
	BasicPrefix = "basic."
	// ChartSuffix marks chart widgets.
	ChartSuffix = "-chart"
)

// Basic-content widget types.
const (
	BasicText      WidgetType = "basic.text"
	BasicTitle     WidgetType = "basic.title"
	BasicImage     WidgetType = "basic.image"
	BasicTime      WidgetType = "basic.time"
	BasicMarquee   WidgetType = "basic.marquee"
	BasicContainer WidgetType = "basic.container"
)

// BasicTypes lists the basic widgets in palette order.
var BasicTypes = []WidgetType{BasicText, BasicTitle, BasicImage, BasicTime, BasicMarquee, BasicContainer}

func (t WidgetType) IsBasic() bool { return strings.HasPrefix(string(t), BasicPrefix) }
func (t WidgetType) IsChart() bool { return strings.HasSuffix(string(t), ChartSuffix) }

// KnownBasic reports whether t is one of the six basic widgets.
func (t WidgetType) KnownBasic() bool {
	for _, b := range BasicTypes {
		if t == b {
			return true
		}
	}
	return false
}

// ChartKind returns "bar" for "bar-chart", or "" for non-chart tags.
func (t WidgetType) ChartKind() string {
	if !t.IsChart() {
		return ""
	}
	return strings.TrimSuffix(string(t), ChartSuffix)
}

// WidgetKind is the resolved variant of a widget configuration.
type WidgetKind string

const (
	KindUnknown WidgetKind = "unknown"
	KindChart   WidgetKind = "chart"
	KindBasic   WidgetKind = "basic"
)

// ResolveKind classifies a type tag. It is called once where a tag enters the
// system (drop handling, document load); everything downstream switches on Kind.
func ResolveKind(t WidgetType) WidgetKind {
	switch {
	case t.IsBasic():
		return KindBasic
	case t.IsChart():
		return KindChart
	default:
		return KindUnknown
	}
}

// Widget is the configuration assigned to one area.
type Widget struct {
	Type    WidgetType `json:"type"`
	Kind    WidgetKind `json:"kind"`
	Options Options    `json:"options"`
}

// NewWidget builds a widget with its kind resolved from the tag.
func NewWidget(t WidgetType, opts Options) *Widget {
	if opts == nil {
		opts = Options{}
	}
	return &Widget{Type: t, Kind: ResolveKind(t), Options: opts}
}

// Clone returns a deep copy.
func (w *Widget) Clone() *Widget {
	if w == nil {
		return nil
	}
	return &Widget{Type: w.Type, Kind: w.Kind, Options: w.Options.Clone()}
}

// UnmarshalJSON re-resolves Kind so stored documents cannot carry a kind that
// disagrees with the tag.
func (w *Widget) UnmarshalJSON(b []byte) error {
	type raw Widget
	var r raw
	if err := json.Unmarshal(b, &r); err != nil {
		return err
	}
	*w = Widget(r)
	w.Kind = ResolveKind(w.Type)
	if w.Options == nil {
		w.Options = Options{}
	}
	return nil
}

// Selection is the area currently open in the property panel.
type Selection struct {
	AreaID string  `json:"areaId"`
	Widget *Widget `json:"widget"`
}
