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

	"bagstudio/internal/projector"

	"gopkg.in/yaml.v3"
)

// AppConfig is the user-editable configuration persisted to a YAML file in the user scope.
// Environment variables are treated as read-only overrides at runtime.
//
// config_version: bump when the structure changes in a backward-incompatible way.

type ServicesConfig struct {
	CatalogURL string `yaml:"catalog_url"`
	AssetsURL  string `yaml:"assets_url"`
	CartURL    string `yaml:"cart_url"`
	TimeoutMs  int    `yaml:"timeout_ms"`
	// Token is not stored on disk; it lives in the OS keychain.
}

// CanvasConfig sizes the editing surface and seeds the property editor.
type CanvasConfig struct {
	Width       float64  `yaml:"width"`
	Height      float64  `yaml:"height"`
	ClipMargin  float64  `yaml:"clip_margin"`
	DefaultFill string   `yaml:"default_fill"`
	DefaultSize float64  `yaml:"default_font_size"`
	DefaultFont string   `yaml:"default_font_family"`
	FontDirs    []string `yaml:"font_dirs,omitempty"`
	SnapPx      float64  `yaml:"snap_px"`
}

// AssetsConfig bounds what the field binder accepts.
type AssetsConfig struct {
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`
	MaxDimension   int   `yaml:"max_dimension"`
	Parallelism    int   `yaml:"parallelism"`
}

type StorageConfig struct {
	DraftsDir         string `yaml:"drafts_dir"`
	PreviewCacheBytes int64  `yaml:"preview_cache_bytes"`
}

// OrdersConfig enables the optional Postgres record store.
type OrdersConfig struct {
	DSN string `yaml:"dsn"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Source bool   `yaml:"source"`
	File   string `yaml:"file"`
}

type AppConfig struct {
	ConfigVersion int              `yaml:"config_version"`
	Services      ServicesConfig   `yaml:"services"`
	Canvas        CanvasConfig     `yaml:"canvas"`
	Assets        AssetsConfig     `yaml:"assets"`
	Projection    projector.Params `yaml:"projection"`
	Storage       StorageConfig    `yaml:"storage"`
	Orders        OrdersConfig     `yaml:"orders"`
	Logging       LoggingConfig    `yaml:"logging"`
}

// Defaults returns the application defaults.
func Defaults() AppConfig {
	return AppConfig{
		ConfigVersion: 1,
		Services: ServicesConfig{
			CatalogURL: "http://localhost:8080/api",
			AssetsURL:  "http://localhost:8080/api",
			CartURL:    "http://localhost:8080/api",
			TimeoutMs:  15000,
		},
		Canvas: CanvasConfig{
			Width: 800, Height: 600, ClipMargin: 0.9,
			DefaultFill: "#000000", DefaultSize: 20, DefaultFont: "Arial",
			SnapPx: 6,
		},
		Assets:     AssetsConfig{MaxUploadBytes: 10 << 20, MaxDimension: 2048, Parallelism: 4},
		Projection: projector.DefaultParams(),
		Storage:    StorageConfig{DraftsDir: "", PreviewCacheBytes: 32 << 20},
		Logging:    LoggingConfig{Level: "info", Format: "console", Source: false, File: ""},
	}
}

// Env var names used as overrides.
const (
	EnvCatalogURL   = "GBS_CATALOG_URL"
	EnvAssetsURL    = "GBS_ASSETS_URL"
	EnvCartURL      = "GBS_CART_URL"
	EnvTimeoutMs    = "GBS_TIMEOUT_MS"
	EnvCanvasWidth  = "GBS_CANVAS_WIDTH"
	EnvCanvasHeight = "GBS_CANVAS_HEIGHT"
	EnvClipMargin   = "GBS_CLIP_MARGIN"
	EnvOrdersDSN    = "GBS_ORDERS_DSN"
	EnvDraftsDir    = "GBS_DRAFTS_DIR"
	EnvConfigFile   = "GBS_CONFIG"
	// EnvLogLevel Logging envs
	EnvLogLevel  = "GBS_LOG_LEVEL"
	EnvLogFormat = "GBS_LOG_FORMAT"
	EnvLogSource = "GBS_LOG_SOURCE"
	EnvLogFile   = "GBS_LOG_FILE"
)

// ConfigPath returns the per-user config file path. GBS_CONFIG wins when set.
func ConfigPath() (string, error) {
	if p := strings.TrimSpace(os.Getenv(EnvConfigFile)); p != "" {
		return p, nil
	}
	var base string
	switch runtime.GOOS {
	case "windows":
		base = os.Getenv("AppData")
		if base == "" {
			base = filepath.Join(os.Getenv("USERPROFILE"), "AppData", "Roaming")
		}
		base = filepath.Join(base, "BagStudio")
	case "darwin":
		base = filepath.Join(os.Getenv("HOME"), "Library", "Application Support", "BagStudio")
	default:
		base = filepath.Join(os.Getenv("HOME"), ".config", "bagstudio")
	}
	if strings.TrimSpace(os.Getenv("HOME")) == "" && runtime.GOOS != "windows" {
		return "", errors.New("cannot resolve config directory")
	}
	return filepath.Join(base, "config.yaml"), nil
}

// Load reads user config file (if present), applies defaults, and merges environment overrides.
// It also loads the services token from keyring (not kept inside the struct; returned separately).
func Load() (AppConfig, string, error) {
	cfg := Defaults()
	path, err := ConfigPath()
	if err != nil {
		return cfg, "", err
	}
	if data, err := os.ReadFile(path); err == nil {
		// Projection keys are decoded over the defaults so an explicit 0 is kept.
		fileCfg := AppConfig{Projection: cfg.Projection}
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return cfg, "", fmt.Errorf("parse %s: %w", path, err)
		}
		mergeInto(&cfg, &fileCfg)
	}
	applyEnvOverrides(&cfg)
	tok, _ := tokenStore.Get(keyringService, keyringToken)
	return cfg, tok, nil
}

// Save writes the user config YAML and persists the token into OS keyring (if non-empty).
func Save(cfg AppConfig, token string) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return err
	}
	if token != "" {
		if err := tokenStore.Set(keyringService, keyringToken, token); err != nil {
			return err
		}
	}
	return nil
}

func mergeInto(dst *AppConfig, src *AppConfig) {
	if src.ConfigVersion != 0 {
		dst.ConfigVersion = src.ConfigVersion
	}
	setStr(&dst.Services.CatalogURL, src.Services.CatalogURL)
	setStr(&dst.Services.AssetsURL, src.Services.AssetsURL)
	setStr(&dst.Services.CartURL, src.Services.CartURL)
	if src.Services.TimeoutMs != 0 {
		dst.Services.TimeoutMs = src.Services.TimeoutMs
	}
	// canvas
	setFloat(&dst.Canvas.Width, src.Canvas.Width)
	setFloat(&dst.Canvas.Height, src.Canvas.Height)
	if src.Canvas.ClipMargin > 0 && src.Canvas.ClipMargin <= 1 {
		dst.Canvas.ClipMargin = src.Canvas.ClipMargin
	}
	setStr(&dst.Canvas.DefaultFill, src.Canvas.DefaultFill)
	setFloat(&dst.Canvas.DefaultSize, src.Canvas.DefaultSize)
	setStr(&dst.Canvas.DefaultFont, src.Canvas.DefaultFont)
	setFloat(&dst.Canvas.SnapPx, src.Canvas.SnapPx)
	if len(src.Canvas.FontDirs) > 0 {
		dst.Canvas.FontDirs = append([]string(nil), src.Canvas.FontDirs...)
	}
	// assets
	if src.Assets.MaxUploadBytes > 0 {
		dst.Assets.MaxUploadBytes = src.Assets.MaxUploadBytes
	}
	if src.Assets.MaxDimension > 0 {
		dst.Assets.MaxDimension = src.Assets.MaxDimension
	}
	if src.Assets.Parallelism > 0 {
		dst.Assets.Parallelism = src.Assets.Parallelism
	}
	// projection: Load decodes the file block over the defaults
	if src.Projection != (projector.Params{}) {
		dst.Projection = src.Projection
	}
	// storage
	setStr(&dst.Storage.DraftsDir, src.Storage.DraftsDir)
	if src.Storage.PreviewCacheBytes > 0 {
		dst.Storage.PreviewCacheBytes = src.Storage.PreviewCacheBytes
	}
	setStr(&dst.Orders.DSN, src.Orders.DSN)
	// logging
	if strings.TrimSpace(src.Logging.Level) != "" {
		dst.Logging.Level = strings.ToLower(strings.TrimSpace(src.Logging.Level))
	}
	if strings.TrimSpace(src.Logging.Format) != "" {
		dst.Logging.Format = strings.ToLower(strings.TrimSpace(src.Logging.Format))
	}
	dst.Logging.Source = src.Logging.Source
	setStr(&dst.Logging.File, src.Logging.File)
}

func setStr(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}

func envBool(v string) bool {
	lv := strings.ToLower(v)
	return lv == "1" || lv == "true" || lv == "on" || lv == "yes"
}

func applyEnvOverrides(cfg *AppConfig) {
	setStr(&cfg.Services.CatalogURL, os.Getenv(EnvCatalogURL))
	setStr(&cfg.Services.AssetsURL, os.Getenv(EnvAssetsURL))
	setStr(&cfg.Services.CartURL, os.Getenv(EnvCartURL))
	if v := strings.TrimSpace(os.Getenv(EnvTimeoutMs)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Services.TimeoutMs = n
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvCanvasWidth)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Canvas.Width = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvCanvasHeight)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.Canvas.Height = f
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvClipMargin)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Canvas.ClipMargin = f
		}
	}
	setStr(&cfg.Orders.DSN, os.Getenv(EnvOrdersDSN))
	setStr(&cfg.Storage.DraftsDir, os.Getenv(EnvDraftsDir))
	// logging overrides
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogFormat)); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogSource)); v != "" {
		cfg.Logging.Source = envBool(v)
	}
	setStr(&cfg.Logging.File, os.Getenv(EnvLogFile))
}

// EnvOverrideFor returns the env var name if the field is overridden by environment variables.
func EnvOverrideFor(key string) (string, bool) {
	names := map[string]string{
		"services.catalog_url": EnvCatalogURL,
		"services.assets_url":  EnvAssetsURL,
		"services.cart_url":    EnvCartURL,
		"services.timeout_ms":  EnvTimeoutMs,
		"canvas.width":         EnvCanvasWidth,
		"canvas.height":        EnvCanvasHeight,
		"canvas.clip_margin":   EnvClipMargin,
		"orders.dsn":           EnvOrdersDSN,
		"storage.drafts_dir":   EnvDraftsDir,
		"logging.level":        EnvLogLevel,
		"logging.format":       EnvLogFormat,
		"logging.source":       EnvLogSource,
		"logging.file":         EnvLogFile,
	}
	if env, ok := names[key]; ok && os.Getenv(env) != "" {
		return env, true
	}
	return "", false
}

// Timeout returns the services timeout, falling back to the default.
func (s ServicesConfig) Timeout() time.Duration {
	if s.TimeoutMs <= 0 {
		return time.Duration(Defaults().Services.TimeoutMs) * time.Millisecond
	}
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// DraftsDirOrDefault resolves the drafts directory under the user's home.
func (s StorageConfig) DraftsDirOrDefault() string {
	if strings.TrimSpace(s.DraftsDir) != "" {
		return s.DraftsDir
	}
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(os.TempDir(), "bagstudio-drafts")
	}
	return filepath.Join(home, "BagStudio", "drafts")
}
