/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package eventbus is a small typed publish/subscribe helper used by the
// editor stores to announce mutations.
package eventbus

import "sync"

// Handler receives published events.
type Handler[T any] func(T)

type entry[T any] struct {
	id int
	fn Handler[T]
}

// Bus delivers events synchronously to subscribers in subscription order.
type Bus[T any] struct {
	mu     sync.RWMutex
	subs   []entry[T]
	nextID int
}

// New creates an empty bus.
func New[T any]() *Bus[T] { return &Bus[T]{} }

// Subscribe registers h and returns a function that removes it. The returned
// function is idempotent.
func (b *Bus[T]) Subscribe(h Handler[T]) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs = append(b.subs, entry[T]{id: id, fn: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, e := range b.subs {
				if e.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// Publish calls every handler with ev. The lock is not held during callbacks,
// so handlers may publish or (un)subscribe themselves.
func (b *Bus[T]) Publish(ev T) {
	b.mu.RLock()
	snapshot := make([]Handler[T], len(b.subs))
	for i, e := range b.subs {
		snapshot[i] = e.fn
	}
	b.mu.RUnlock()

	for _, h := range snapshot {
		h(ev)
	}
}

// Count returns the number of subscribers.
func (b *Bus[T]) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
