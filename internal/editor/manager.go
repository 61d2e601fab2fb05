/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package editor

import (
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	applog "nebulascreen/internal/log"
)

// ErrUnknownSession is returned for ids the manager does not hold.
var ErrUnknownSession = errors.New("editor: unknown session")

// Manager holds the open sessions of a server. When the limit is reached the
// least recently used session is closed to make room.
type Manager struct {
	deps  Deps
	limit int

	mu       sync.Mutex
	sessions map[string]*Session
	log      *slog.Logger
}

// NewManager returns a manager; limit <= 0 means unlimited.
func NewManager(deps Deps, limit int) *Manager {
	return &Manager{deps: deps, limit: limit, sessions: make(map[string]*Session), log: applog.WithComponent("editor")}
}

// Open creates a session.
func (m *Manager) Open() *Session {
	s := NewSession(uuid.NewString(), m.deps)
	m.mu.Lock()
	var evicted *Session
	if m.limit > 0 && len(m.sessions) >= m.limit {
		evicted = m.oldestLocked()
		if evicted != nil {
			delete(m.sessions, evicted.ID)
		}
	}
	m.sessions[s.ID] = s
	m.mu.Unlock()
	if evicted != nil {
		evicted.Close()
		m.log.Info("session evicted", slog.String("session", evicted.ID))
	}
	return s
}

func (m *Manager) oldestLocked() *Session {
	var oldest *Session
	var at time.Time
	for _, s := range m.sessions {
		if t := s.LastUsed(); oldest == nil || t.Before(at) {
			oldest, at = s, t
		}
	}
	return oldest
}

// Get returns an open session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// Close closes and forgets a session.
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if ok {
		s.Close()
	}
	return ok
}

// CloseIdle closes sessions unused for longer than maxIdle and returns how
// many were closed.
func (m *Manager) CloseIdle(now time.Time, maxIdle time.Duration) int {
	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastUsed()) > maxIdle {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()
	for _, s := range idle {
		s.Close()
	}
	return len(idle)
}

// CloseAll closes every session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range all {
		s.Close()
	}
}

// IDs lists open session ids, sorted.
func (m *Manager) IDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
