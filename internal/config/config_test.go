/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/zalando/go-keyring"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv(EnvConfigDir, dir)
	return dir
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	dir := isolate(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Server.Addr != ":8080" || cfg.Storage.Driver != "sqlite" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if want := filepath.Join(dir, "data", "nebulascreen.sqlite"); cfg.Storage.DSN != want {
		t.Fatalf("DSN = %q, want %q", cfg.Storage.DSN, want)
	}
	if cfg.Server.TokenTTL() != 7*24*time.Hour {
		t.Fatalf("TokenTTL = %v", cfg.Server.TokenTTL())
	}
}

func TestSaveAndLoadRoundTripsFile(t *testing.T) {
	isolate(t)
	cfg := Defaults()
	cfg.Server.Addr = "127.0.0.1:9999"
	cfg.Catalog.Dir = "/srv/catalog"
	cfg.Catalog.Watch = true
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Server.Addr != "127.0.0.1:9999" || got.Catalog.Dir != "/srv/catalog" || !got.Catalog.Watch {
		t.Fatalf("file values not merged: %+v", got)
	}
}

func TestLoadRejectsBrokenYAML(t *testing.T) {
	dir := isolate(t)
	if err := os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("server: [oops"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnvOverrides(t *testing.T) {
	isolate(t)
	t.Setenv(EnvDBDriver, "POSTGRES")
	t.Setenv(EnvDSN, "postgres://u:p@db/nbs")
	t.Setenv(EnvServerURL, "https://example.test:8443")
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvBcryptCost, "12")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Storage.Driver != "postgres" || cfg.Storage.DSN != "postgres://u:p@db/nbs" {
		t.Fatalf("storage overrides not applied: %+v", cfg.Storage)
	}
	if cfg.Client.BaseURL != "https://example.test:8443" {
		t.Fatalf("client override not applied: %+v", cfg.Client)
	}
	if cfg.Logging.Level != "error" || !cfg.Logging.Source || cfg.Server.BcryptCost != 12 {
		t.Fatalf("overrides not applied: %+v %+v", cfg.Logging, cfg.Server)
	}
	if env, ok := EnvOverrideFor("storage.dsn"); !ok || env != EnvDSN {
		t.Fatalf("EnvOverrideFor(storage.dsn) = %q,%v", env, ok)
	}
	if _, ok := EnvOverrideFor("catalog.dir"); ok {
		t.Fatalf("catalog.dir should not be overridden")
	}
}

func TestSaveDoesNotPersistEnvSecret(t *testing.T) {
	dir := isolate(t)
	t.Setenv(EnvAuthSecret, "from-env")
	cfg, _ := Load()
	if err := Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	b, _ := os.ReadFile(filepath.Join(dir, "config.yaml"))
	if len(b) == 0 {
		t.Fatalf("config file empty")
	}
	if strings.Contains(string(b), "from-env") {
		t.Fatalf("secret leaked to file: %s", b)
	}
}

type memKeyring map[string]string

func (m memKeyring) Get(service, key string) (string, error) {
	v, ok := m[service+"/"+key]
	if !ok {
		return "", keyring.ErrNotFound
	}
	return v, nil
}
func (m memKeyring) Set(service, key, value string) error { m[service+"/"+key] = value; return nil }
func (m memKeyring) Delete(service, key string) error {
	if _, ok := m[service+"/"+key]; !ok {
		return keyring.ErrNotFound
	}
	delete(m, service+"/"+key)
	return nil
}

func TestTokenStoreLifecycle(t *testing.T) {
	prev := SetTokenStore(memKeyring{})
	t.Cleanup(func() { SetTokenStore(prev) })

	if tok, err := LoadToken(); err != nil || tok != "" {
		t.Fatalf("empty keyring: tok=%q err=%v", tok, err)
	}
	if err := SaveToken("abc"); err != nil {
		t.Fatalf("SaveToken: %v", err)
	}
	if tok, _ := LoadToken(); tok != "abc" {
		t.Fatalf("LoadToken = %q", tok)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("second ClearToken should be a no-op: %v", err)
	}
}
