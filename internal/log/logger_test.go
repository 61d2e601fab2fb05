/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package log

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lastJSONLine(t *testing.T, b []byte) map[string]any {
	t.Helper()
	var last string
	sc := bufio.NewScanner(bytes.NewReader(b))
	for sc.Scan() {
		if s := strings.TrimSpace(sc.Text()); s != "" {
			last = s
		}
	}
	if last == "" {
		t.Fatalf("no log lines found")
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(last), &m); err != nil {
		t.Fatalf("unmarshal json log: %v", err)
	}
	return m
}

func TestInitJSONToFileCarriesStaticAndContextAttrs(t *testing.T) {
	fpath := filepath.Join(t.TempDir(), "nbs.log")
	var console bytes.Buffer
	Init(Options{Level: "debug", Format: "json", File: fpath, Output: &console})

	ctx := ContextWithSession(ContextWithRequestID(context.Background(), "r-1"), "s-9")
	l := WithOperation(WithComponent("testcomp"), "op1")
	l.InfoContext(ctx, "hello world", slog.String("k", "v"))
	time.Sleep(20 * time.Millisecond)

	b, err := os.ReadFile(fpath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, m := range []map[string]any{lastJSONLine(t, b), lastJSONLine(t, console.Bytes())} {
		if m["app"] != "nebulascreen" {
			t.Fatalf("missing app attr: %v", m["app"])
		}
		if _, ok := m["ver"].(string); !ok {
			t.Fatalf("missing ver attr")
		}
		if m["component"] != "testcomp" || m["op"] != "op1" {
			t.Fatalf("component/op mismatch: %v", m)
		}
		if m["req"] != "r-1" || m["session"] != "s-9" {
			t.Fatalf("context attrs missing: %v", m)
		}
		if m["msg"] != "hello world" {
			t.Fatalf("msg mismatch: %v", m["msg"])
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("NBS_LOG_LEVEL", "warn")
	t.Setenv("NBS_LOG_FORMAT", "json")
	t.Setenv("NBS_LOG_SOURCE", "true")
	t.Setenv("NBS_LOG_FILE", "")

	opts := FromEnv()
	if opts.Level != "warn" || opts.Format != "json" || !opts.AddSource || opts.File != "" {
		t.Fatalf("FromEnv mismatch: %+v", opts)
	}
	if v := getenv("NBS_SURELY_UNSET_VAR", "fallback"); v != "fallback" {
		t.Fatalf("getenv fallback failed: %q", v)
	}
}

func TestSetLevelAdjustsRunningLogger(t *testing.T) {
	var buf bytes.Buffer
	Init(Options{Level: "info", Output: &buf})
	L().Debug("hidden")
	SetLevel("debug")
	L().Debug("shown")
	SetLevel("info")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestPrettyTextHandler(t *testing.T) {
	var buf bytes.Buffer
	h := &prettyTextHandler{opts: prettyOpts{Level: slog.LevelWarn}, w: &buf}

	if h.Enabled(context.Background(), slog.LevelInfo) {
		t.Fatalf("info should not be enabled at warn level")
	}
	if !h.Enabled(context.Background(), slog.LevelError) {
		t.Fatalf("error should be enabled at warn level")
	}

	h2 := h.WithAttrs([]slog.Attr{slog.String("k", "v")}).WithGroup("grp")
	r := slog.NewRecord(time.Now(), slog.LevelError, "boom", 0)
	r.AddAttrs(slog.Int("n", 42), slog.Float64("pi", 3.14), slog.String("msg2", "two words"))
	if err := h2.Handle(context.Background(), r); err != nil {
		t.Fatalf("handle error: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"ERR", "boom", "k=v", "grp.n=42", "grp.pi=3.14", `grp.msg2="two words"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q: %q", want, out)
		}
	}
}
