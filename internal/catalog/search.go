/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package catalog

import (
	"strings"

	"github.com/sahilm/fuzzy"
)

// Hit is a search result over the palette.
type Hit struct {
	Entry Entry `json:"entry"`
	Score int   `json:"score"`
}

type entrySource []Entry

func (s entrySource) String(i int) string {
	return s[i].Name + " " + s[i].ID + " " + string(s[i].Type)
}

func (s entrySource) Len() int { return len(s) }

// Search fuzzy-matches query against names, ids and types of all palette
// entries, best match first. An empty query returns everything.
func (c *Catalog) Search(query string) []Hit {
	all := c.all()
	q := strings.TrimSpace(query)
	if q == "" {
		out := make([]Hit, len(all))
		for i, e := range all {
			out[i] = Hit{Entry: e}
		}
		return out
	}
	matches := fuzzy.FindFrom(q, entrySource(all))
	out := make([]Hit, 0, len(matches))
	for _, m := range matches {
		out = append(out, Hit{Entry: all[m.Index], Score: m.Score})
	}
	return out
}
