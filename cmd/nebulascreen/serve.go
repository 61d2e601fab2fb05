/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"nebulascreen/internal/auth"
	"nebulascreen/internal/catalog"
	"nebulascreen/internal/config"
	"nebulascreen/internal/crash"
	"nebulascreen/internal/editor"
	applog "nebulascreen/internal/log"
	"nebulascreen/internal/schema"
	"nebulascreen/internal/server"
	"nebulascreen/internal/storage"
	"nebulascreen/internal/telemetry"

	"golang.org/x/sync/errgroup"
)

const (
	reapInterval   = time.Minute
	sessionMaxIdle = 30 * time.Minute
	maxConns       = 1024
)

// dataDir resolves the directory for the sqlite file and crash reports.
func dataDir(cfg config.AppConfig) (string, error) {
	if d := strings.TrimSpace(cfg.Storage.DataDir); d != "" {
		return d, nil
	}
	base, err := config.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "data"), nil
}

func serve(cfg config.AppConfig, addr string) error {
	l := applog.WithOperation(applog.WithComponent("cli"), "serve")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dir, err := dataDir(cfg)
	if err != nil {
		return err
	}
	dsn := cfg.Storage.DSN
	if dsn == "" && (cfg.Storage.Driver == "" || cfg.Storage.Driver == storage.DriverSQLite) {
		dsn = filepath.Join(dir, "nebulascreen.sqlite")
	}
	st, err := storage.Open(ctx, cfg.Storage.Driver, dsn)
	if err != nil {
		return err
	}
	defer func() { _ = st.Close() }()

	cat, err := catalog.New(cfg.Catalog.Dir)
	if err != nil {
		return err
	}
	schemas := schema.Default()
	tel := telemetry.New(telemetry.FromConfig(cfg.Telemetry))
	defer tel.Close()

	rep := &crash.Reporter{Dir: dir, Telemetry: tel}
	defer rep.Recover()

	srv := server.New(server.Options{
		Auth: auth.NewService(st, auth.Config{
			Secret:     cfg.Server.AuthSecret,
			TTL:        cfg.Server.TokenTTL(),
			BcryptCost: cfg.Server.BcryptCost,
		}),
		Projects:  st,
		Ready:     st.Ping,
		Catalog:   cat,
		Schemas:   schemas,
		Sessions:  editor.NewManager(editor.Deps{Catalog: cat, Schemas: schemas}, cfg.Server.SessionLimit),
		Telemetry: tel,
		MaxConns:  maxConns,
		OnPanic:   func(p any, stack []byte) { rep.Report(p, stack) },
	})
	rep.Autosave = srv.SaveOpenSessions

	// a panic on any of these goroutines is reported before the process exits
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer rep.Recover()
		return srv.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		defer rep.Recover()
		return srv.ReapIdle(gctx, reapInterval, sessionMaxIdle)
	})
	if cfg.Catalog.Watch && cfg.Catalog.Dir != "" {
		g.Go(func() error {
			defer rep.Recover()
			err := cat.Watch(gctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				l.Warn("catalog watch stopped", slog.Any("err", err))
			}
			return nil
		})
	}
	l.Info("serving", slog.String("addr", addr), slog.String("driver", st.Driver()), slog.Bool("telemetry", tel.Enabled()))
	return g.Wait()
}
