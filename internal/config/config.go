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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig is persisted as YAML in the user config directory. Environment
// variables are read-only overrides applied after the file is merged.
//
// config_version: bump when the structure changes in a backward-incompatible way.
type AppConfig struct {
	ConfigVersion int             `yaml:"config_version"`
	Server        ServerConfig    `yaml:"server"`
	Storage       StorageConfig   `yaml:"storage"`
	Catalog       CatalogConfig   `yaml:"catalog"`
	Client        ClientConfig    `yaml:"client"`
	Logging       LoggingConfig   `yaml:"logging"`
	Telemetry     TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AuthSecret signs bearer tokens. Never written back by Save when it came from env.
	AuthSecret   string `yaml:"auth_secret"`
	TokenTTLHrs  int    `yaml:"token_ttl_hours"`
	BcryptCost   int    `yaml:"bcrypt_cost"`
	SessionLimit int    `yaml:"session_limit"`
}

type StorageConfig struct {
	Driver  string `yaml:"driver"` // "sqlite" | "postgres"
	DSN     string `yaml:"dsn"`
	DataDir string `yaml:"data_dir"`
}

type CatalogConfig struct {
	// Dir holds optional *.yaml files that override or extend the built-in catalog.
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

type ClientConfig struct {
	BaseURL   string `yaml:"base_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
	Email     string `yaml:"email"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

// TelemetryConfig is opt-in; nothing is sent unless OptIn is set and a URL
// is configured.
type TelemetryConfig struct {
	OptIn     bool   `yaml:"opt_in"`
	EventsURL string `yaml:"events_url"`
	CrashURL  string `yaml:"crash_url"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Server:        ServerConfig{Addr: ":8080", TokenTTLHrs: 7 * 24, BcryptCost: 10, SessionLimit: 256},
		Storage:       StorageConfig{Driver: "sqlite"},
		Catalog:       CatalogConfig{},
		Client:        ClientConfig{BaseURL: "http://localhost:8080", TimeoutMs: 15000},
		Logging:       LoggingConfig{Level: "info", Format: "console"},
		Telemetry:     TelemetryConfig{TimeoutMs: 1500},
	}
}

// Env var names used as overrides.
const (
	EnvAddr         = "NBS_ADDR"
	EnvAuthSecret   = "NBS_AUTH_SECRET"
	EnvTokenTTL     = "NBS_TOKEN_TTL_HOURS"
	EnvBcryptCost   = "NBS_BCRYPT_COST"
	EnvDBDriver     = "NBS_DB_DRIVER"
	EnvDSN          = "NBS_DSN"
	EnvDataDir      = "NBS_DATA_DIR"
	EnvCatalogDir   = "NBS_CATALOG_DIR"
	EnvCatalogWatch = "NBS_CATALOG_WATCH"
	EnvServerURL    = "NBS_SERVER_URL"
	EnvClientTimeMs = "NBS_CLIENT_TIMEOUT_MS"
	EnvLogLevel     = "NBS_LOG_LEVEL"
	EnvLogFormat    = "NBS_LOG_FORMAT"
	EnvLogSource    = "NBS_LOG_SOURCE"
	EnvLogFile      = "NBS_LOG_FILE"
	EnvTelemetry    = "NBS_TELEMETRY_OPT_IN"
	EnvTelemetryURL = "NBS_TELEMETRY_URL"
	EnvCrashURL     = "NBS_CRASH_UPLOAD_URL"
	// EnvConfigDir relocates the config file; mostly useful for tests and containers.
	EnvConfigDir = "NBS_CONFIG_DIR"
)

// ConfigDir returns the per-user config directory.
func ConfigDir() (string, error) {
	if v := strings.TrimSpace(os.Getenv(EnvConfigDir)); v != "" {
		return v, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "NebulaScreen")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "NebulaScreen")
	default:
		if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
			base = filepath.Join(x, "nebulascreen")
		} else if h := os.Getenv("HOME"); h != "" {
			base = filepath.Join(h, ".config", "nebulascreen")
		}
	}
	if base == "" {
		return "", errors.New("cannot resolve config directory")
	}
	return base, nil
}

// ConfigPath returns the per-user config file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load reads the config file (if present), applies defaults and env overrides,
// and fills derived paths. The CLI token is read from the keyring separately.
func Load() (AppConfig, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var fileCfg AppConfig
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	case !errors.Is(err, os.ErrNotExist):
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	applyEnvOverrides(&cfg)
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = filepath.Join(filepath.Dir(path), "data")
	}
	if cfg.Storage.Driver == "sqlite" && cfg.Storage.DSN == "" {
		cfg.Storage.DSN = filepath.Join(cfg.Storage.DataDir, "nebulascreen.sqlite")
	}
	return cfg, nil
}

// Save writes the config YAML. Secrets supplied via env are not persisted.
func Save(cfg AppConfig) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if os.Getenv(EnvAuthSecret) != "" && cfg.Server.AuthSecret == os.Getenv(EnvAuthSecret) {
		cfg.Server.AuthSecret = ""
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	setStr(&dst.Server.Addr, src.Server.Addr)
	setStr(&dst.Server.AuthSecret, src.Server.AuthSecret)
	setInt(&dst.Server.TokenTTLHrs, src.Server.TokenTTLHrs)
	setInt(&dst.Server.BcryptCost, src.Server.BcryptCost)
	setInt(&dst.Server.SessionLimit, src.Server.SessionLimit)

	if d := strings.ToLower(strings.TrimSpace(src.Storage.Driver)); d != "" {
		dst.Storage.Driver = d
	}
	setStr(&dst.Storage.DSN, src.Storage.DSN)
	setStr(&dst.Storage.DataDir, src.Storage.DataDir)

	setStr(&dst.Catalog.Dir, src.Catalog.Dir)
	dst.Catalog.Watch = src.Catalog.Watch

	setStr(&dst.Client.BaseURL, src.Client.BaseURL)
	setInt(&dst.Client.TimeoutMs, src.Client.TimeoutMs)
	setStr(&dst.Client.Email, src.Client.Email)

	if v := strings.TrimSpace(src.Logging.Level); v != "" {
		dst.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(src.Logging.Format); v != "" {
		dst.Logging.Format = strings.ToLower(v)
	}
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)

	dst.Telemetry.OptIn = src.Telemetry.OptIn
	setStr(&dst.Telemetry.EventsURL, src.Telemetry.EventsURL)
	setStr(&dst.Telemetry.CrashURL, src.Telemetry.CrashURL)
	setInt(&dst.Telemetry.TimeoutMs, src.Telemetry.TimeoutMs)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func applyEnvOverrides(cfg *AppConfig) {
	envStr(EnvAddr, &cfg.Server.Addr)
	envStr(EnvAuthSecret, &cfg.Server.AuthSecret)
	envInt(EnvTokenTTL, &cfg.Server.TokenTTLHrs)
	envInt(EnvBcryptCost, &cfg.Server.BcryptCost)
	if v := strings.TrimSpace(os.Getenv(EnvDBDriver)); v != "" {
		cfg.Storage.Driver = strings.ToLower(v)
	}
	envStr(EnvDSN, &cfg.Storage.DSN)
	envStr(EnvDataDir, &cfg.Storage.DataDir)
	envStr(EnvCatalogDir, &cfg.Catalog.Dir)
	envBool(EnvCatalogWatch, &cfg.Catalog.Watch)
	envStr(EnvServerURL, &cfg.Client.BaseURL)
	envInt(EnvClientTimeMs, &cfg.Client.TimeoutMs)
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	envBool(EnvLogSource, &cfg.Logging.Source)
	envStr(EnvLogFile, &cfg.Logging.File)
	envBool(EnvTelemetry, &cfg.Telemetry.OptIn)
	envStr(EnvTelemetryURL, &cfg.Telemetry.EventsURL)
	envStr(EnvCrashURL, &cfg.Telemetry.CrashURL)
}

func envStr(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envBool(key string, dst *bool) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		lv := strings.ToLower(v)
		*dst = lv == "1" || lv == "true" || lv == "on" || lv == "yes"
	}
}

// EnvOverrideFor returns the env var name if the dotted key is overridden by the environment.
func EnvOverrideFor(key string) (string, bool) {
	m := map[string]string{
		"server.addr":            EnvAddr,
		"server.auth_secret":     EnvAuthSecret,
		"server.token_ttl_hours": EnvTokenTTL,
		"server.bcrypt_cost":     EnvBcryptCost,
		"storage.driver":         EnvDBDriver,
		"storage.dsn":            EnvDSN,
		"storage.data_dir":       EnvDataDir,
		"catalog.dir":            EnvCatalogDir,
		"catalog.watch":          EnvCatalogWatch,
		"client.base_url":        EnvServerURL,
		"client.timeout_ms":      EnvClientTimeMs,
		"logging.level":          EnvLogLevel,
		"logging.format":         EnvLogFormat,
		"logging.source":         EnvLogSource,
		"logging.file":           EnvLogFile,
		"telemetry.opt_in":       EnvTelemetry,
		"telemetry.events_url":   EnvTelemetryURL,
		"telemetry.crash_url":    EnvCrashURL,
	}
	env, ok := m[key]
	if !ok || os.Getenv(env) == "" {
		return "", false
	}
	return env, true
}

// TokenTTL returns the bearer token lifetime.
func (s ServerConfig) TokenTTL() time.Duration {
	if s.TokenTTLHrs <= 0 {
		return time.Duration(Defaults().Server.TokenTTLHrs) * time.Hour
	}
	return time.Duration(s.TokenTTLHrs) * time.Hour
}

// Timeout returns the client request timeout.
func (c ClientConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return time.Duration(Defaults().Client.TimeoutMs) * time.Millisecond
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}
