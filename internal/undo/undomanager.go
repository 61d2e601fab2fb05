/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package undo keeps per-area undo/redo history of widget configurations.
package undo

import (
	"sync"
	"time"
)

// Snapshot is the serialized widget configuration of one area at TS.
// Blob is opaque to the manager; its size is len(Blob). A nil Blob records
// an area without a widget.
type Snapshot struct {
	AreaID string
	Blob   []byte
	TS     time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; the oldest entries across areas are pruned when exceeded.
	MaxBytes int
	// MaxPerArea limits the undo depth per area (0 means unlimited).
	MaxPerArea int
	// MinInterval coalesces edits on the same area that follow each other
	// closely: the burst is undone as one step.
	MinInterval time.Duration
}

// Manager keeps an undo and a redo stack per area. Push records the state
// before an edit; Undo and Redo exchange the current state for a stored one.
// It is safe for concurrent use.
type Manager struct {
	cfg  Config
	mu   sync.Mutex
	undo map[string][]Snapshot
	redo map[string][]Snapshot
	// last edit per area, for coalescing
	lastEdit   map[string]time.Time
	totalBytes int
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 4 * 1024 * 1024
	}
	if cfg.MinInterval < 0 {
		cfg.MinInterval = 0
	}
	return &Manager{
		cfg:      cfg,
		undo:     make(map[string][]Snapshot),
		redo:     make(map[string][]Snapshot),
		lastEdit: make(map[string]time.Time),
	}
}

// Push records the state of an area before an edit and clears its redo
// stack. Within MinInterval of the previous edit the earlier snapshot is kept,
// so the whole burst undoes in one step.
func (m *Manager) Push(s Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	last, seen := m.lastEdit[s.AreaID]
	m.lastEdit[s.AreaID] = s.TS
	m.dropRedoLocked(s.AreaID)
	if seen && len(m.undo[s.AreaID]) > 0 && s.TS.Sub(last) < m.cfg.MinInterval {
		return
	}
	m.undo[s.AreaID] = append(m.undo[s.AreaID], s)
	m.totalBytes += len(s.Blob)
	m.enforceCapsLocked(s.AreaID)
}

// Undo returns the state to restore and saves current for Redo.
func (m *Manager) Undo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := current.AreaID
	stack := m.undo[id]
	if len(stack) == 0 {
		return Snapshot{}, false
	}
	s := stack[len(stack)-1]
	m.undo[id] = stack[:len(stack)-1]
	m.totalBytes -= len(s.Blob)
	m.redo[id] = append(m.redo[id], current)
	m.totalBytes += len(current.Blob)
	delete(m.lastEdit, id)
	return s, true
}

// Redo returns the state undone last and saves current for Undo.
func (m *Manager) Redo(current Snapshot) (Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := current.AreaID
	r := m.redo[id]
	if len(r) == 0 {
		return Snapshot{}, false
	}
	s := r[len(r)-1]
	m.redo[id] = r[:len(r)-1]
	m.totalBytes -= len(s.Blob)
	m.undo[id] = append(m.undo[id], current)
	m.totalBytes += len(current.Blob)
	delete(m.lastEdit, id)
	m.enforceCapsLocked(id)
	return s, true
}

// CanUndo and CanRedo report stack depths for the client toolbar.
func (m *Manager) CanUndo(areaID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[areaID]) > 0
}

func (m *Manager) CanRedo(areaID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[areaID]) > 0
}

// ClearArea drops the history of a deleted area.
func (m *Manager) ClearArea(areaID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[areaID] {
		m.totalBytes -= len(s.Blob)
	}
	m.dropRedoLocked(areaID)
	delete(m.undo, areaID)
	delete(m.redo, areaID)
	delete(m.lastEdit, areaID)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Reset drops all history, e.g. when the template is switched.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.undo = make(map[string][]Snapshot)
	m.redo = make(map[string][]Snapshot)
	m.lastEdit = make(map[string]time.Time)
	m.totalBytes = 0
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, areas int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	areas = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, areas, totalSnapshots
}

func (m *Manager) dropRedoLocked(areaID string) {
	for _, s := range m.redo[areaID] {
		m.totalBytes -= len(s.Blob)
	}
	delete(m.redo, areaID)
}

func (m *Manager) enforceCapsLocked(areaID string) {
	if m.cfg.MaxPerArea > 0 {
		stack := m.undo[areaID]
		if len(stack) > m.cfg.MaxPerArea {
			toDrop := len(stack) - m.cfg.MaxPerArea
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= len(stack[i].Blob)
			}
			m.undo[areaID] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// prune oldest across all areas
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		oldestArea := ""
		found := false
		var oldestTS time.Time
		for id, stack := range m.undo {
			if len(stack) == 0 {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldestArea, oldestTS, found = id, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldestArea]
		m.totalBytes -= len(stack[0].Blob)
		m.undo[oldestArea] = stack[1:]
		if len(m.undo[oldestArea]) == 0 {
			delete(m.undo, oldestArea)
		}
	}
}
