/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package crash turns a fatal panic into a report file, a last autosave of
// open editor sessions and, when opted in, a crash upload.
package crash

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	applog "nebulascreen/internal/log"
	"nebulascreen/internal/telemetry"
	"nebulascreen/internal/version"
)

// ReportsDirName is the folder under the data dir holding crash reports.
const ReportsDirName = "crash"

// exitFn is used to allow testing of Recover without terminating the test process.
var exitFn = os.Exit

// Reporter handles a panic of the process.
type Reporter struct {
	// Dir is the data dir; reports go to Dir/crash. Empty uses the temp dir.
	Dir string
	// Autosave persists open work into dir and reports how many documents
	// were written. Optional.
	Autosave  func(dir string) (int, error)
	Telemetry *telemetry.Client

	mu sync.Mutex
}

// Recover captures a panic, reports it and exits with code 2.
//
// Usage: defer rep.Recover()
func (rep *Reporter) Recover() {
	r := recover()
	if r == nil {
		return
	}
	reportPath := rep.Report(r, debug.Stack())
	_, _ = fmt.Fprintf(os.Stderr, "A fatal error occurred. A crash report was saved to: %s\n", reportPath)
	_, _ = fmt.Fprintf(os.Stderr, "Version: %s\nOS/Arch: %s/%s\n", version.String(), runtime.GOOS, runtime.GOARCH)
	exitFn(2)
}

// Report logs a recovered panic with its stack, writes the report file, runs
// the autosave and uploads the report. It does not exit, so a server can
// keep serving after a handler panic. It returns the report path.
func (rep *Reporter) Report(panicVal any, stack []byte) string {
	rep.mu.Lock()
	defer rep.mu.Unlock()
	l := applog.WithComponent("crash")
	l.Error("panic recovered", slog.Any("panic", panicVal), slog.String("stack", string(stack)))

	reportPath, report, err := rep.writeReport(panicVal, stack)
	if err != nil {
		l.Error("crash report not written", slog.Any("err", err))
	}
	if rep.Autosave != nil {
		dir := filepath.Join(rep.reportsDir(), "recovered-"+time.Now().Format("20060102-150405.000"))
		if n, err := rep.Autosave(dir); err != nil {
			l.Error("crash autosave failed", slog.Any("err", err), slog.Int("saved", n))
		} else if n > 0 {
			l.Info("crash autosave written", slog.String("dir", dir), slog.Int("documents", n))
		}
	}
	if err := rep.Telemetry.UploadCrash(report); err != nil {
		l.Warn("crash upload failed", slog.Any("err", err))
	}
	return reportPath
}

func (rep *Reporter) reportsDir() string {
	if rep.Dir == "" {
		return os.TempDir()
	}
	return filepath.Join(rep.Dir, ReportsDirName)
}

func (rep *Reporter) writeReport(panicVal any, stack []byte) (string, []byte, error) {
	dir := rep.reportsDir()
	var buf bytes.Buffer
	_, _ = fmt.Fprintf(&buf, "NebulaScreen Crash Report\n")
	_, _ = fmt.Fprintf(&buf, "Timestamp: %s\n", time.Now().Format(time.RFC3339))
	_, _ = fmt.Fprintf(&buf, "Version: %s\n", version.String())
	_, _ = fmt.Fprintf(&buf, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintf(&buf, "Goroutines: %d\n", runtime.NumGoroutine())
	_, _ = fmt.Fprintf(&buf, "\nPanic: %v\n\n", panicVal)
	_, _ = fmt.Fprintf(&buf, "Stack:\n%s\n", string(stack))

	path := filepath.Join(dir, fmt.Sprintf("crash-%s.log", time.Now().Format("20060102-150405.000")))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return path, buf.Bytes(), err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return path, buf.Bytes(), err
	}
	defer func() {
		if err := f.Close(); err != nil {
			applog.WithComponent("crash").Error("failed to close crash report file", slog.Any("err", err), slog.String("path", path))
		}
	}()
	if _, err := f.Write(buf.Bytes()); err != nil {
		return path, buf.Bytes(), err
	}
	_ = f.Sync()
	return path, buf.Bytes(), nil
}
