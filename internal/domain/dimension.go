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
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Unit is a CSS length unit accepted for canvas sizes.
type Unit string

const (
	UnitPx      Unit = "px"
	UnitPercent Unit = "%"
	UnitVW      Unit = "vw"
	UnitVH      Unit = "vh"
)

// Dimension is a canvas length. Pixel values encode as bare JSON numbers,
// everything else as a string such as "100vw".
type Dimension struct {
	Value float64
	Unit  Unit
}

// Px is shorthand for a pixel dimension.
func Px(v float64) Dimension { return Dimension{Value: v, Unit: UnitPx} }

func (d Dimension) IsZero() bool { return d.Value == 0 && d.Unit == "" }

// Pixels resolves the dimension against a reference length (used for %, vw, vh).
func (d Dimension) Pixels(ref float64) float64 {
	switch d.Unit {
	case UnitPercent, UnitVW, UnitVH:
		return d.Value * ref / 100
	default:
		return d.Value
	}
}

func (d Dimension) String() string {
	if d.Unit == "" || d.Unit == UnitPx {
		return strconv.FormatFloat(d.Value, 'f', -1, 64) + "px"
	}
	return strconv.FormatFloat(d.Value, 'f', -1, 64) + string(d.Unit)
}

// ParseDimension accepts "1920", "1920px", "100%", "100vw" and "100vh".
func ParseDimension(s string) (Dimension, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Dimension{}, nil
	}
	unit := UnitPx
	for _, u := range []Unit{UnitPx, UnitPercent, UnitVW, UnitVH} {
		if strings.HasSuffix(s, string(u)) {
			unit = u
			s = strings.TrimSpace(strings.TrimSuffix(s, string(u)))
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Dimension{}, fmt.Errorf("invalid dimension %q", s)
	}
	if v < 0 {
		return Dimension{}, fmt.Errorf("negative dimension %q", s)
	}
	return Dimension{Value: v, Unit: unit}, nil
}

func (d Dimension) MarshalJSON() ([]byte, error) {
	if d.Unit == "" || d.Unit == UnitPx {
		return json.Marshal(d.Value)
	}
	return json.Marshal(d.String())
}

func (d *Dimension) UnmarshalJSON(b []byte) error {
	var n float64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Px(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("dimension must be a number or string: %w", err)
	}
	v, err := ParseDimension(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d *Dimension) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: dimension must be a scalar", n.Line)
	}
	v, err := ParseDimension(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*d = v
	return nil
}

func (d Dimension) MarshalYAML() (any, error) {
	if d.Unit == "" || d.Unit == UnitPx {
		return d.Value, nil
	}
	return d.String(), nil
}
