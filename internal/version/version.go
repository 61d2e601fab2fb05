/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package version exposes build and document-format versions.
package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is overridden at link time: -ldflags "-X nebulascreen/internal/version.Version=1.2.3".
var Version = "0.3.0-dev"

// Commit is the short VCS revision, if known.
var Commit = ""

// DocumentFormat is the version stamped into saved editor documents.
const DocumentFormat = "1.1.0"

// String returns a human readable version string.
func String() string {
	if Commit == "" {
		return "nebulascreen " + Version
	}
	return fmt.Sprintf("nebulascreen %s (%s)", Version, Commit)
}

// Compatible reports whether a document written with format docFormat can be
// opened by this build. Documents from a newer major format are refused; an
// empty format is treated as the first release.
func Compatible(docFormat string) (bool, error) {
	docFormat = strings.TrimPrefix(strings.TrimSpace(docFormat), "v")
	if docFormat == "" {
		return true, nil
	}
	doc, err := semver.NewVersion(docFormat)
	if err != nil {
		return false, fmt.Errorf("parse document format %q: %w", docFormat, err)
	}
	cur := semver.MustParse(DocumentFormat)
	c, err := semver.NewConstraint(fmt.Sprintf("<%d.0.0", cur.Major()+1))
	if err != nil {
		return false, err
	}
	return c.Check(doc), nil
}
