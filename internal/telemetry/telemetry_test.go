/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"nebulascreen/internal/config"
)

type collector struct {
	mu      sync.Mutex
	batches []batch
	crashes [][]byte
}

func (c *collector) server(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		var b batch
		if err := json.NewDecoder(r.Body).Decode(&b); err != nil {
			t.Errorf("bad batch: %v", err)
		}
		c.mu.Lock()
		c.batches = append(c.batches, b)
		c.mu.Unlock()
	})
	mux.HandleFunc("/crash", func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		c.mu.Lock()
		c.crashes = append(c.crashes, b)
		c.mu.Unlock()
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestEventsAreBatched(t *testing.T) {
	var col collector
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events", CrashURL: srv.URL + "/crash", Timeout: 2 * time.Second})
	defer c.Close()

	c.Event("session_opened", map[string]any{"layout": "grid"})
	c.Event("export", map[string]any{"format": "png"})
	c.Flush(context.Background())

	col.mu.Lock()
	if len(col.batches) != 1 || len(col.batches[0].Events) != 2 {
		col.mu.Unlock()
		t.Fatalf("batches = %+v", col.batches)
	}
	b := col.batches[0]
	col.mu.Unlock()
	if b.Instance == "" || b.Version == "" || b.Events[0].Name != "session_opened" || b.Events[1].Props["format"] != "png" {
		t.Fatalf("batch = %+v", b)
	}

	if err := c.UploadCrash([]byte("STACK")); err != nil {
		t.Fatalf("UploadCrash: %v", err)
	}
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.crashes) != 1 || string(col.crashes[0]) != "STACK" {
		t.Fatalf("crashes = %q", col.crashes)
	}
}

func TestCloseSendsPending(t *testing.T) {
	var col collector
	srv := col.server(t)
	c := New(Config{OptIn: true, EventsURL: srv.URL + "/events"})
	c.Event("project_saved", nil)
	c.Close()
	c.Close()
	col.mu.Lock()
	defer col.mu.Unlock()
	if len(col.batches) != 1 {
		t.Fatalf("pending event not sent on close: %+v", col.batches)
	}
}

func TestDisabledSendsNothing(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	c := New(Config{OptIn: false, EventsURL: srv.URL, CrashURL: srv.URL})
	if c.Enabled() {
		t.Fatalf("expected disabled client")
	}
	c.Event("ignored", nil)
	if err := c.UploadCrash([]byte("ignored")); err != nil {
		t.Fatalf("UploadCrash: %v", err)
	}
	c.Close()

	c2 := New(Config{OptIn: true, EventsURL: srv.URL})
	c2.Event("", nil)
	c2.Close()
	if n := atomic.LoadInt32(&hits); n != 0 {
		t.Fatalf("requests = %d", n)
	}

	var nilClient *Client
	nilClient.Event("x", nil)
	nilClient.Flush(context.Background())
	nilClient.Close()
}

func TestSendErrorsAreSwallowed(t *testing.T) {
	c := New(Config{OptIn: true, EventsURL: "http://127.0.0.1:1/events", CrashURL: "http://127.0.0.1:1/crash", Timeout: 50 * time.Millisecond, DebugLogging: true})
	defer c.Close()
	c.Event("err", map[string]any{"a": 1})
	c.Flush(context.Background())
	if err := c.UploadCrash([]byte("oops")); err == nil {
		t.Fatalf("expected crash upload error")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.TelemetryConfig{OptIn: true, EventsURL: "http://x/e", TimeoutMs: 300})
	if !cfg.OptIn || cfg.EventsURL != "http://x/e" || cfg.Timeout != 300*time.Millisecond {
		t.Fatalf("cfg = %+v", cfg)
	}
	if FromConfig(config.TelemetryConfig{}).Timeout <= 0 {
		t.Fatalf("default timeout missing")
	}
}
