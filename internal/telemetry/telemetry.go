/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package telemetry sends opt-in, anonymous usage events and crash reports.
// Events carry no user, project or area identifiers; props must stay coarse
// (widget types, layout modes, export formats).
package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"sync"
	"time"

	"nebulascreen/internal/config"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/version"

	"github.com/google/uuid"
)

const (
	queueSize     = 256
	maxBatch      = 32
	flushInterval = 2 * time.Second
)

// Config controls the client. Nothing is sent unless OptIn is set and the
// matching URL is configured.
type Config struct {
	OptIn        bool
	EventsURL    string
	CrashURL     string
	Timeout      time.Duration
	DebugLogging bool
}

// FromConfig converts the telemetry section of the app config.
func FromConfig(tc config.TelemetryConfig) Config {
	cfg := Config{OptIn: tc.OptIn, EventsURL: tc.EventsURL, CrashURL: tc.CrashURL, Timeout: 1500 * time.Millisecond}
	if tc.TimeoutMs > 0 {
		cfg.Timeout = time.Duration(tc.TimeoutMs) * time.Millisecond
	}
	return cfg
}

// Event is one usage event as posted.
type Event struct {
	Name  string         `json:"name"`
	TS    string         `json:"ts"`
	Props map[string]any `json:"props,omitempty"`
}

type batch struct {
	Instance string  `json:"instance"`
	Version  string  `json:"version"`
	OS       string  `json:"os"`
	Arch     string  `json:"arch"`
	Events   []Event `json:"events"`
}

// Client batches events in the background. A nil *Client is valid and
// drops everything.
type Client struct {
	cfg      Config
	instance string
	log      *slog.Logger
	cli      *http.Client
	q        chan Event
	flush    chan chan struct{}
	once     sync.Once
	closed   chan struct{}
	done     chan struct{}
}

// New starts a client. The instance id is random per process.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 1500 * time.Millisecond
	}
	c := &Client{
		cfg:      cfg,
		instance: uuid.NewString(),
		log:      applog.WithComponent("telemetry"),
		cli:      &http.Client{Timeout: cfg.Timeout},
		q:        make(chan Event, queueSize),
		flush:    make(chan chan struct{}),
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.loop()
	return c
}

// Enabled reports whether usage events are sent.
func (c *Client) Enabled() bool { return c != nil && c.cfg.OptIn && c.cfg.EventsURL != "" }

// Event queues an event. It never blocks; events are dropped when the queue
// is full.
func (c *Client) Event(name string, props map[string]any) {
	if !c.Enabled() || name == "" {
		return
	}
	ev := Event{Name: name, TS: time.Now().UTC().Format(time.RFC3339Nano)}
	if len(props) > 0 {
		ev.Props = make(map[string]any, len(props))
		for k, v := range props {
			ev.Props[k] = v
		}
	}
	select {
	case c.q <- ev:
	default:
	}
}

// Flush sends everything queued so far and waits for it, or for ctx.
func (c *Client) Flush(ctx context.Context) {
	if c == nil {
		return
	}
	ack := make(chan struct{})
	select {
	case c.flush <- ack:
	case <-c.done:
		return
	case <-ctx.Done():
		return
	}
	select {
	case <-ack:
	case <-ctx.Done():
	}
}

// Close sends pending events and stops the background goroutine.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.once.Do(func() { close(c.closed) })
	<-c.done
}

func (c *Client) loop() {
	defer close(c.done)
	t := time.NewTicker(flushInterval)
	defer t.Stop()
	var pending []Event
	send := func() {
		if len(pending) > 0 {
			c.send(pending)
			pending = nil
		}
	}
	drain := func() {
		for {
			select {
			case ev := <-c.q:
				pending = append(pending, ev)
				if len(pending) >= maxBatch {
					send()
				}
			default:
				return
			}
		}
	}
	for {
		select {
		case <-c.closed:
			drain()
			send()
			return
		case ack := <-c.flush:
			drain()
			send()
			close(ack)
		case ev := <-c.q:
			pending = append(pending, ev)
			if len(pending) >= maxBatch {
				send()
			}
		case <-t.C:
			send()
		}
	}
}

func (c *Client) send(events []Event) {
	b := batch{Instance: c.instance, Version: version.String(), OS: runtime.GOOS, Arch: runtime.GOARCH, Events: events}
	buf, err := json.Marshal(b)
	if err != nil {
		return
	}
	if err := c.post(c.cfg.EventsURL, "application/json", buf); err != nil {
		if c.cfg.DebugLogging {
			c.log.Debug("telemetry send failed", slog.Int("events", len(events)), slog.Any("err", err))
		}
		return
	}
	if c.cfg.DebugLogging {
		c.log.Debug("telemetry sent", slog.Int("events", len(events)))
	}
}

// UploadCrash posts a crash report. It blocks up to the configured timeout
// since the process usually exits right after.
func (c *Client) UploadCrash(report []byte) error {
	if c == nil || !c.cfg.OptIn || c.cfg.CrashURL == "" {
		return nil
	}
	return c.post(c.cfg.CrashURL, "text/plain; charset=utf-8", report)
}

func (c *Client) post(url, contentType string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-Instance-ID", c.instance)
	resp, err := c.cli.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("telemetry: %s", resp.Status)
	}
	return nil
}
