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
	"math"
	"strconv"
)

// Options is a widget's attribute set: a declarative chart-options object for
// charts, or the basic attributes (content, fontSize, color...) for basic widgets.
type Options map[string]any

// Clone deep-copies nested maps and slices.
func (o Options) Clone() Options {
	if o == nil {
		return nil
	}
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return map[string]any(Options(t).Clone())
	case Options:
		return t.Clone()
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = cloneValue(e)
		}
		return s
	default:
		return v
	}
}

// Merge returns base with patch merged in: nested objects merge recursively,
// everything else (including arrays) is replaced. Neither input is modified.
func Merge(base, patch Options) Options {
	out := base.Clone()
	if out == nil {
		out = Options{}
	}
	for k, pv := range patch {
		pm, pIsMap := asMap(pv)
		bm, bIsMap := asMap(out[k])
		if pIsMap && bIsMap {
			out[k] = map[string]any(Merge(bm, pm))
			continue
		}
		out[k] = cloneValue(pv)
	}
	return out
}

func asMap(v any) (Options, bool) {
	switch t := v.(type) {
	case map[string]any:
		return Options(t), true
	case Options:
		return t, true
	}
	return nil, false
}

// String returns the string at key, or "" when absent or not a string.
func (o Options) String(key string) string {
	s, _ := o[key].(string)
	return s
}

// Has reports whether key is present and non-nil.
func (o Options) Has(key string) bool {
	v, ok := o[key]
	return ok && v != nil
}

// Float returns the numeric value at key. Numeric strings are accepted since
// form widgets sometimes submit "16".
func (o Options) Float(key string) (float64, bool) {
	switch v := o[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil && !math.IsNaN(f)
	}
	return 0, false
}

// Map returns the nested object at key.
func (o Options) Map(key string) (Options, bool) { return asMap(o[key]) }
