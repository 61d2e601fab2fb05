/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package catalog provides the palettes of basic widgets, chart presets and
// screen templates, and the per-type default options used when a widget is
// rendered with missing fields.
package catalog

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"nebulascreen/internal/domain"
	"nebulascreen/internal/eventbus"
	applog "nebulascreen/internal/log"
)

//go:embed data/catalog.yaml
var builtin []byte

// Entry is one palette item.
type Entry struct {
	ID      string            `json:"id" yaml:"id"`
	Name    string            `json:"name" yaml:"name"`
	Type    domain.WidgetType `json:"type" yaml:"type"`
	Options domain.Options    `json:"options" yaml:"options"`
}

// ChartGroup bundles the presets of one chart kind.
type ChartGroup struct {
	ID     string            `json:"id" yaml:"id"`
	Name   string            `json:"name" yaml:"name"`
	Type   domain.WidgetType `json:"type" yaml:"type"`
	Charts []Entry           `json:"charts" yaml:"charts"`
}

// File is the on-disk catalog layout.
type File struct {
	Basic     []Entry           `yaml:"basic"`
	Charts    []ChartGroup      `yaml:"charts"`
	Templates []domain.Template `yaml:"templates"`
}

// Reloaded is published after a successful override reload.
type Reloaded struct {
	Files int
}

// ErrUnknownTemplate is returned for template ids not in the catalog.
var ErrUnknownTemplate = errors.New("catalog: unknown template")

// Catalog is safe for concurrent use; Reload swaps the content atomically.
type Catalog struct {
	dir string

	mu        sync.RWMutex
	basic     []Entry
	charts    []ChartGroup
	templates []domain.Template

	reloaded *eventbus.Bus[Reloaded]
	log      *slog.Logger
}

// New loads the built-in catalog and, if dir is non-empty, merges every
// *.yaml / *.yml file in it.
func New(dir string) (*Catalog, error) {
	c := &Catalog{dir: dir, reloaded: eventbus.New[Reloaded](), log: applog.WithComponent("catalog")}
	if _, err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Builtin returns the catalog without overrides. It panics if the embedded
// data is broken, which tests catch.
func Builtin() *Catalog {
	c, err := New("")
	if err != nil {
		panic(err)
	}
	return c
}

// OnReload subscribes to override reloads.
func (c *Catalog) OnReload(h func(Reloaded)) func() { return c.reloaded.Subscribe(h) }

// Reload re-reads the built-in data and the override directory. On error the
// previous content stays active.
func (c *Catalog) Reload() (int, error) {
	base, err := parse(builtin, "builtin")
	if err != nil {
		return 0, err
	}
	files := 0
	if c.dir != "" {
		paths, err := overrideFiles(c.dir)
		if err != nil {
			return 0, err
		}
		for _, p := range paths {
			b, err := os.ReadFile(p)
			if err != nil {
				return 0, fmt.Errorf("read %s: %w", p, err)
			}
			f, err := parse(b, p)
			if err != nil {
				return 0, err
			}
			base = mergeFiles(base, f)
			files++
		}
	}

	c.mu.Lock()
	c.basic, c.charts, c.templates = base.Basic, base.Charts, base.Templates
	c.mu.Unlock()
	if c.dir != "" {
		c.log.Info("catalog loaded", slog.String("dir", c.dir), slog.Int("files", files))
		c.reloaded.Publish(Reloaded{Files: files})
	}
	return files, nil
}

func overrideFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read catalog dir: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !isCatalogFile(e.Name()) {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

func isCatalogFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return (ext == ".yaml" || ext == ".yml") && !strings.HasPrefix(name, ".")
}

func parse(b []byte, src string) (File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return File{}, fmt.Errorf("parse catalog %s: %w", src, err)
	}
	for i := range f.Basic {
		if err := normalizeEntry(&f.Basic[i], src); err != nil {
			return File{}, err
		}
	}
	for i := range f.Charts {
		for j := range f.Charts[i].Charts {
			if err := normalizeEntry(&f.Charts[i].Charts[j], src); err != nil {
				return File{}, err
			}
		}
	}
	for _, t := range f.Templates {
		if t.ID == "" {
			return File{}, fmt.Errorf("catalog %s: template without id", src)
		}
	}
	return f, nil
}

// normalizeEntry round-trips options through JSON so numbers are float64 and
// nested objects are map[string]any, the same shapes a decoded drop payload has.
func normalizeEntry(e *Entry, src string) error {
	if e.ID == "" || e.Type == "" {
		return fmt.Errorf("catalog %s: entry needs id and type", src)
	}
	b, err := json.Marshal(e.Options)
	if err != nil {
		return fmt.Errorf("catalog %s: entry %s: %w", src, e.ID, err)
	}
	var o domain.Options
	if err := json.Unmarshal(b, &o); err != nil {
		return err
	}
	if o == nil {
		o = domain.Options{}
	}
	e.Options = o
	return nil
}

func mergeFiles(base, over File) File {
	base.Basic = mergeEntries(base.Basic, over.Basic)
	for _, g := range over.Charts {
		found := false
		for i := range base.Charts {
			if base.Charts[i].ID == g.ID {
				base.Charts[i].Charts = mergeEntries(base.Charts[i].Charts, g.Charts)
				if g.Name != "" {
					base.Charts[i].Name = g.Name
				}
				found = true
				break
			}
		}
		if !found {
			base.Charts = append(base.Charts, g)
		}
	}
	for _, t := range over.Templates {
		replaced := false
		for i := range base.Templates {
			if base.Templates[i].ID == t.ID {
				base.Templates[i] = t
				replaced = true
				break
			}
		}
		if !replaced {
			base.Templates = append(base.Templates, t)
		}
	}
	return base
}

func mergeEntries(base, over []Entry) []Entry {
	for _, e := range over {
		replaced := false
		for i := range base {
			if base[i].ID == e.ID {
				base[i] = e
				replaced = true
				break
			}
		}
		if !replaced {
			base = append(base, e)
		}
	}
	return base
}

// BasicWidgets returns the basic widget palette.
func (c *Catalog) BasicWidgets() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return cloneEntries(c.basic)
}

// ChartGroups returns chart presets grouped by kind.
func (c *Catalog) ChartGroups() []ChartGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]ChartGroup, len(c.charts))
	for i, g := range c.charts {
		g.Charts = cloneEntries(g.Charts)
		out[i] = g
	}
	return out
}

// Entry looks up any palette item by id.
func (c *Catalog) Entry(id string) (Entry, bool) {
	for _, e := range c.all() {
		if e.ID == id {
			return e, true
		}
	}
	return Entry{}, false
}

// Defaults returns the default options for a widget type: the palette entry
// for basic widgets, the first preset of the kind for charts, nil otherwise.
func (c *Catalog) Defaults(t domain.WidgetType) domain.Options {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch domain.ResolveKind(t) {
	case domain.KindBasic:
		for _, e := range c.basic {
			if e.Type == t {
				return e.Options.Clone()
			}
		}
	case domain.KindChart:
		for _, g := range c.charts {
			if g.Type == t && len(g.Charts) > 0 {
				return g.Charts[0].Options.Clone()
			}
		}
	}
	return nil
}

// Templates returns all templates, optionally filtered by category.
func (c *Catalog) Templates(category domain.Category) []domain.Template {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []domain.Template
	for i := range c.templates {
		if category != "" && c.templates[i].Category != category {
			continue
		}
		out = append(out, *c.templates[i].Clone())
	}
	return out
}

// Template returns a copy of the template with the given id.
func (c *Catalog) Template(id string) (*domain.Template, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for i := range c.templates {
		if c.templates[i].ID == id {
			return c.templates[i].Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, id)
}

// Page is one page of a listing.
type Page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

// Paginate slices items into 1-based pages. Out-of-range pages are empty.
func Paginate[T any](items []T, page, size int) Page[T] {
	if size <= 0 {
		size = 12
	}
	if page <= 0 {
		page = 1
	}
	p := Page[T]{Page: page, PageSize: size, Total: len(items), Items: []T{}}
	pages := len(items) / size
	if len(items)%size != 0 {
		pages++
	}
	if page > pages {
		return p
	}
	start := (page - 1) * size
	p.Items = items[start : start+min(size, len(items)-start)]
	return p
}

func (c *Catalog) all() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := cloneEntries(c.basic)
	for _, g := range c.charts {
		out = append(out, cloneEntries(g.Charts)...)
	}
	return out
}

func cloneEntries(in []Entry) []Entry {
	out := make([]Entry, len(in))
	for i, e := range in {
		e.Options = e.Options.Clone()
		out[i] = e
	}
	return out
}
