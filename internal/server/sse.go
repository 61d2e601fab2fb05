/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package server

import (
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	sseChannelBuffer = 32
	sseHeartbeat     = 30 * time.Second
)

// sseMessage is one event; Name is sent as the SSE event field.
type sseMessage struct {
	Name string
	Data string
}

type sseClient struct {
	ch      chan sseMessage
	session string
}

// Broadcaster fans render events out to the SSE clients of an editor session.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*sseClient]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[*sseClient]struct{})}
}

func (b *Broadcaster) register(session string) *sseClient {
	c := &sseClient{ch: make(chan sseMessage, sseChannelBuffer), session: session}
	b.mu.Lock()
	b.clients[c] = struct{}{}
	b.mu.Unlock()
	return c
}

// unregister removes a client and closes its channel. Safe to call twice.
func (b *Broadcaster) unregister(c *sseClient) {
	b.mu.Lock()
	if _, ok := b.clients[c]; ok {
		delete(b.clients, c)
		close(c.ch)
	}
	b.mu.Unlock()
}

// Broadcast sends to every client of the session. Slow clients miss events
// rather than block the editor.
func (b *Broadcaster) Broadcast(session, event, data string) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for c := range b.clients {
		if c.session != session {
			continue
		}
		select {
		case c.ch <- sseMessage{Name: event, Data: data}:
		default:
		}
	}
}

// CloseSession disconnects every client of a closed session.
func (b *Broadcaster) CloseSession(session string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for c := range b.clients {
		if c.session == session {
			delete(b.clients, c)
			close(c.ch)
		}
	}
}

// ClientCount returns the number of connected clients for a session.
func (b *Broadcaster) ClientCount(session string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for c := range b.clients {
		if c.session == session {
			n++
		}
	}
	return n
}

// ServeSSE streams events of a session until the client goes away or the
// session is closed. onConnect runs after registration, e.g. to send a snapshot.
func (b *Broadcaster) ServeSSE(w http.ResponseWriter, r *http.Request, session string, onConnect func(send func(event, data string))) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeFail(w, http.StatusInternalServerError, "streaming unsupported", nil)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	c := b.register(session)
	defer b.unregister(c)

	write := func(m sseMessage) {
		if m.Name != "" {
			fmt.Fprintf(w, "event: %s\n", m.Name)
		}
		fmt.Fprintf(w, "data: %s\n\n", m.Data)
		flusher.Flush()
	}
	if onConnect != nil {
		onConnect(func(event, data string) { write(sseMessage{Name: event, Data: data}) })
	} else {
		flusher.Flush()
	}

	ticker := time.NewTicker(sseHeartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case m, ok := <-c.ch:
			if !ok {
				return
			}
			write(m)
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		}
	}
}
