/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package schema

import (
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/xeipuuv/gojsonschema"
)

var (
	hexColor  = regexp.MustCompile(`^#(?:[0-9a-fA-F]{3,4}|[0-9a-fA-F]{6}|[0-9a-fA-F]{8})$`)
	funcColor = regexp.MustCompile(`^(?:rgb|rgba|hsl|hsla)\(\s*[-0-9.%\s,/]+\)$`)
	namedLike = regexp.MustCompile(`^[a-zA-Z]+$`)
)

// colorFormat accepts CSS hex, functional and named colors.
type colorFormat struct{}

func (colorFormat) IsFormat(input any) bool {
	s, ok := input.(string)
	if !ok {
		return true
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return hexColor.MatchString(s) || funcColor.MatchString(s) || namedLike.MatchString(s)
}

// timezoneFormat accepts IANA zone names.
type timezoneFormat struct{}

func (timezoneFormat) IsFormat(input any) bool {
	s, ok := input.(string)
	if !ok || s == "" {
		return true
	}
	_, err := time.LoadLocation(s)
	return err == nil
}

func init() {
	gojsonschema.FormatCheckers.Add("color", colorFormat{})
	gojsonschema.FormatCheckers.Add("timezone", timezoneFormat{})
}
