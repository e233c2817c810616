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
	"testing"
	"time"
)

type memTokens struct{ m map[string]string }

func (s *memTokens) Get(service, key string) (string, error) { return s.m[service+"/"+key], nil }
func (s *memTokens) Set(service, key, value string) error {
	s.m[service+"/"+key] = value
	return nil
}
func (s *memTokens) Delete(service, key string) error {
	delete(s.m, service+"/"+key)
	return nil
}

func isolate(t *testing.T) (string, *memTokens) {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv(EnvConfigFile, path)
	mem := &memTokens{m: map[string]string{}}
	prev := SetTokenStore(mem)
	t.Cleanup(func() { SetTokenStore(prev) })
	return path, mem
}

func TestEnvOverridesServices(t *testing.T) {
	isolate(t)
	t.Setenv(EnvCatalogURL, "https://catalog.example.test")
	t.Setenv(EnvTimeoutMs, "2500")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if got, want := cfg.Services.CatalogURL, "https://catalog.example.test"; got != want {
		t.Fatalf("Services.CatalogURL = %q, want %q", got, want)
	}
	if cfg.Services.Timeout() != 2500*time.Millisecond {
		t.Fatalf("Timeout = %v", cfg.Services.Timeout())
	}
	if env, ok := EnvOverrideFor("services.catalog_url"); !ok || env != EnvCatalogURL {
		t.Fatalf("EnvOverrideFor = %q %v", env, ok)
	}
	if _, ok := EnvOverrideFor("services.cart_url"); ok {
		t.Fatalf("cart_url should not be overridden")
	}
}

func TestCanvasOverridesRejectInvalid(t *testing.T) {
	isolate(t)
	t.Setenv(EnvCanvasWidth, "1024")
	t.Setenv(EnvClipMargin, "1.7")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Canvas.Width != 1024 {
		t.Fatalf("Canvas.Width = %v", cfg.Canvas.Width)
	}
	if cfg.Canvas.ClipMargin != 0.9 {
		t.Fatalf("out-of-range margin should be ignored, got %v", cfg.Canvas.ClipMargin)
	}
}

func TestSaveLoadRoundTripWithToken(t *testing.T) {
	path, mem := isolate(t)
	cfg := Defaults()
	cfg.Canvas.DefaultFont = "Go"
	cfg.Projection.Depth = 0.3
	cfg.Orders.DSN = "postgres://localhost/orders"
	if err := Save(cfg, "secret"); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("config file not written: %v", err)
	}
	got, tok, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if tok != "secret" {
		t.Fatalf("token = %q", tok)
	}
	if got.Canvas.DefaultFont != "Go" || got.Projection.Depth != 0.3 || got.Orders.DSN != cfg.Orders.DSN {
		t.Fatalf("round trip mismatch: %+v", got)
	}
	if got.Projection.Syf != Defaults().Projection.Syf {
		t.Fatalf("untouched projection params changed")
	}
	if err := ClearToken(); err != nil {
		t.Fatalf("ClearToken: %v", err)
	}
	if len(mem.m) != 0 {
		t.Fatalf("token not cleared")
	}
}

func TestPartialProjectionKeepsDefaults(t *testing.T) {
	path, _ := isolate(t)
	yml := "projection:\n  depth: 0.4\n  h_angle: -12\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	def := Defaults().Projection
	if cfg.Projection.Depth != 0.4 || cfg.Projection.HAngle != -12 {
		t.Fatalf("projection overrides not applied: %+v", cfg.Projection)
	}
	if cfg.Projection.Sxf != def.Sxf || cfg.Projection.W1 != def.W1 {
		t.Fatalf("unset projection params should keep defaults: %+v", cfg.Projection)
	}
}

func TestProjectionZeroOverrides(t *testing.T) {
	path, _ := isolate(t)
	yml := "projection:\n  depth: 0\n  ox: 0\n  kxf: 0\n"
	if err := os.WriteFile(path, []byte(yml), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := Defaults().Projection
	want.Depth, want.Ox, want.Kxf = 0, 0, 0
	if cfg.Projection != want {
		t.Fatalf("projection = %+v, want %+v", cfg.Projection, want)
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path, _ := isolate(t)
	if err := os.WriteFile(path, []byte("canvas: [1, 2"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, _, err := Load(); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestMergeIncludesLogging(t *testing.T) {
	dst := Defaults()
	src := AppConfig{Logging: LoggingConfig{Level: "DEBUG", Format: "json", Source: true, File: "/tmp/gbs.log"}}
	mergeInto(&dst, &src)
	if dst.Logging.Level != "debug" || dst.Logging.Format != "json" || !dst.Logging.Source || dst.Logging.File != "/tmp/gbs.log" {
		t.Fatalf("logging fields not merged correctly: %#v", dst.Logging)
	}
	if dst.Canvas.Width != 800 {
		t.Fatalf("zero canvas width in file should keep default")
	}
	if dst.Projection != Defaults().Projection {
		t.Fatalf("missing projection block replaced defaults: %+v", dst.Projection)
	}
}

func TestEnvOverridesLogging(t *testing.T) {
	isolate(t)
	t.Setenv(EnvLogLevel, "error")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvLogSource, "1")
	t.Setenv(EnvLogFile, "/var/log/gbs.log")
	cfg, _, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Logging.Level != "error" || cfg.Logging.Format != "json" || !cfg.Logging.Source || cfg.Logging.File != "/var/log/gbs.log" {
		t.Fatalf("env overrides not applied to logging: %#v", cfg.Logging)
	}
}

func TestDraftsDirDefault(t *testing.T) {
	if got := (StorageConfig{DraftsDir: "/x"}).DraftsDirOrDefault(); got != "/x" {
		t.Fatalf("explicit drafts dir = %q", got)
	}
	if got := (StorageConfig{}).DraftsDirOrDefault(); got == "" {
		t.Fatalf("default drafts dir empty")
	}
}
