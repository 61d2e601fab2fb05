/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package crash

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"nebulascreen/internal/telemetry"
)

func TestWriteReportCreatesFileInTemp(t *testing.T) {
	rep := &Reporter{}
	path, report, err := rep.writeReport("boom", []byte("stacktrace"))
	if err != nil {
		t.Fatalf("writeReport error: %v", err)
	}
	t.Cleanup(func() { _ = os.Remove(path) })
	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if string(b) != string(report) {
		t.Fatalf("file and returned report differ")
	}
	s := string(b)
	if !strings.Contains(s, "NebulaScreen Crash Report") || !strings.Contains(s, "Panic: boom") {
		t.Fatalf("report content: %s", s)
	}
}

// Recover handles a panic, writes the report, runs the autosave and uploads,
// without terminating the test process thanks to the injected exitFn.
func TestRecoverWritesReportAutosavesAndUploads(t *testing.T) {
	oldStderr := os.Stderr
	r, w, _ := os.Pipe()
	os.Stderr = w
	defer func() {
		_ = w.Close()
		os.Stderr = oldStderr
		_, _ = io.Copy(io.Discard, r)
	}()

	code := 0
	oldExit := exitFn
	exitFn = func(c int) { code = c }
	defer func() { exitFn = oldExit }()

	var uploads int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		if strings.Contains(string(b), "Panic: boom") {
			atomic.AddInt32(&uploads, 1)
		}
	}))
	defer srv.Close()
	tel := telemetry.New(telemetry.Config{OptIn: true, CrashURL: srv.URL})
	defer tel.Close()

	dataDir := t.TempDir()
	var savedTo string
	rep := &Reporter{
		Dir:       dataDir,
		Telemetry: tel,
		Autosave: func(dir string) (int, error) {
			savedTo = dir
			return 1, os.MkdirAll(dir, 0o755)
		},
	}
	func() {
		defer rep.Recover()
		panic("boom")
	}()

	if code != 2 {
		t.Fatalf("exit code = %d", code)
	}
	files, _ := filepath.Glob(filepath.Join(dataDir, ReportsDirName, "crash-*.log"))
	if len(files) != 1 {
		t.Fatalf("reports = %v", files)
	}
	if !strings.HasPrefix(savedTo, filepath.Join(dataDir, ReportsDirName, "recovered-")) {
		t.Fatalf("autosave dir = %q", savedTo)
	}
	if atomic.LoadInt32(&uploads) != 1 {
		t.Fatalf("crash report not uploaded")
	}
}

func TestRecoverWithoutPanicIsNoop(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()
	func() {
		defer (&Reporter{}).Recover()
	}()
	if called {
		t.Fatalf("exit called without panic")
	}
}

func TestReportDoesNotExit(t *testing.T) {
	called := false
	oldExit := exitFn
	exitFn = func(int) { called = true }
	defer func() { exitFn = oldExit }()

	dataDir := t.TempDir()
	saves := 0
	rep := &Reporter{
		Dir: dataDir,
		Autosave: func(string) (int, error) {
			saves++
			return 0, nil
		},
	}
	path := rep.Report("handler boom", []byte("stacktrace"))
	_ = rep.Report("again", []byte("stacktrace"))

	if called {
		t.Fatalf("Report must not exit")
	}
	if saves != 2 {
		t.Fatalf("autosave calls = %d", saves)
	}
	b, err := os.ReadFile(path)
	if err != nil || !strings.Contains(string(b), "Panic: handler boom") {
		t.Fatalf("report %q: %v", path, err)
	}
}
