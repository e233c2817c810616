/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	applog "bagstudio/internal/log"
	"bagstudio/internal/version"

	// Pure-Go SQLite driver (CGO-free)
	_ "modernc.org/sqlite"
)

const (
	// IndexDirName holds the derived index data under the drafts directory.
	IndexDirName  = ".bagstudio"
	IndexFileName = "index.sqlite"

	// schemaVersion tracks the local SQLite schema. Bump it together with a
	// new step in runMigrations.
	schemaVersion = 2

	// savedAtLayout is fixed width so that saved_at sorts lexicographically.
	savedAtLayout = "2006-01-02T15:04:05.000000000Z"
)

// IndexPath returns the full path of the drafts index database.
func IndexPath(draftsDir string) string {
	return filepath.Join(draftsDir, IndexDirName, IndexFileName)
}

// InitOrOpenIndex ensures the SQLite index exists at .bagstudio/index.sqlite,
// opens it in WAL mode and brings the schema up to date.
// Callers close the returned *sql.DB.
func InitOrOpenIndex(draftsDir string) (*sql.DB, error) {
	l := applog.WithOperation(applog.WithComponent("storage"), "index_init").With(
		slog.String("root", draftsDir),
	)
	if strings.TrimSpace(draftsDir) == "" {
		return nil, errors.New("drafts directory is required")
	}
	if err := os.MkdirAll(filepath.Join(draftsDir, IndexDirName), 0o755); err != nil {
		l.Error("create index dir failed", slog.Any("err", err))
		return nil, fmt.Errorf("create index dir: %w", err)
	}

	path := IndexPath(draftsDir)
	dsn := fmt.Sprintf("file:%s?cache=shared&_pragma=busy_timeout(5000)", filepath.ToSlash(path))
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		l.Error("sqlite open failed", slog.Any("err", err))
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		l.Error("enable WAL failed", slog.Any("err", err))
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := ensureMetaAndVersion(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure meta/version failed", slog.Any("err", err))
		return nil, err
	}
	if err := ensureIndexSchema(ctx, db); err != nil {
		_ = db.Close()
		l.Error("ensure index schema failed", slog.Any("err", err))
		return nil, err
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		l.Error("run migrations failed", slog.Any("err", err))
		return nil, err
	}
	l.Debug("index ready", slog.String("path", path))
	return db, nil
}

func ensureMetaAndVersion(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS version (
			id          INTEGER PRIMARY KEY CHECK(id=1),
			schema      INTEGER NOT NULL,
			app         TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}
	now := time.Now().UTC().Format(time.RFC3339)
	appv := version.String()
	var curSchema int
	err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&curSchema)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		// A fresh database starts at schema 1 and is migrated forward.
		if _, err := db.ExecContext(ctx, `INSERT INTO version (id, schema, app, created_at, updated_at) VALUES(1, 1, ?, ?, ?)`, appv, now, now); err != nil {
			return fmt.Errorf("insert version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read version: %w", err)
	default:
		if _, err := db.ExecContext(ctx, `UPDATE version SET app=?, updated_at=? WHERE id=1`, appv, now); err != nil {
			return fmt.Errorf("update version: %w", err)
		}
	}
	return nil
}

// SchemaVersion returns the schema recorded in the version table.
func SchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var cur int
	if err := db.QueryRowContext(ctx, `SELECT schema FROM version WHERE id=1`).Scan(&cur); err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return cur, nil
}

// runMigrations applies incremental schema steps up to schemaVersion.
func runMigrations(ctx context.Context, db *sql.DB) error {
	cur, err := SchemaVersion(ctx, db)
	if err != nil {
		return err
	}
	// Never downgrade.
	for cur < schemaVersion {
		next := cur + 1
		var stmts []string
		switch next {
		case 2:
			stmts = []string{
				`CREATE INDEX IF NOT EXISTS idx_drafts_product ON drafts(product_id, saved_at);`,
				`CREATE INDEX IF NOT EXISTS idx_previews_access ON previews(last_access);`,
			}
		}
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", next, err)
		}
		for _, q := range stmts {
			if _, err := tx.ExecContext(ctx, q); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("migration %d stmt failed: %w", next, err)
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE version SET schema=?, updated_at=? WHERE id=1`, next, time.Now().UTC().Format(time.RFC3339)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d update version: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("migration %d commit: %w", next, err)
		}
		cur = next
	}
	return nil
}

// ensureIndexSchema creates the drafts and previews tables if they do not exist.
func ensureIndexSchema(ctx context.Context, db *sql.DB) error {
	ddl := []string{
		`CREATE TABLE IF NOT EXISTS drafts (
			design_id   TEXT PRIMARY KEY,
			product_id  TEXT    NOT NULL,
			template_id TEXT,
			path        TEXT    NOT NULL,
			quantity    INTEGER NOT NULL DEFAULT 0,
			description TEXT,
			saved_at    TEXT    NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS previews (
			key         TEXT PRIMARY KEY,
			w           INTEGER NOT NULL DEFAULT 0,
			h           INTEGER NOT NULL DEFAULT 0,
			blob        BLOB    NOT NULL,
			size        INTEGER NOT NULL DEFAULT 0,
			updated_at  TEXT    NOT NULL,
			last_access INTEGER NOT NULL DEFAULT 0
		);`,
	}
	for _, q := range ddl {
		if _, err := db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("ensure index schema: %w", err)
		}
	}
	return nil
}

// DraftSummary is one row of the drafts listing.
type DraftSummary struct {
	DesignID    string
	ProductID   string
	TemplateID  string
	Path        string
	Quantity    int
	Description string
	SavedAt     time.Time
}

// IndexDraft upserts the listing row for a saved draft.
func IndexDraft(ctx context.Context, db *sql.DB, h *DraftHandle) error {
	if h == nil {
		return errors.New("nil DraftHandle")
	}
	d := h.Draft
	_, err := db.ExecContext(ctx, `INSERT INTO drafts(design_id, product_id, template_id, path, quantity, description, saved_at)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(design_id) DO UPDATE SET product_id=excluded.product_id, template_id=excluded.template_id,
			path=excluded.path, quantity=excluded.quantity, description=excluded.description, saved_at=excluded.saved_at`,
		d.DesignID, d.ProductID, d.TemplateID, h.Root, d.Quantity, d.Record.Description, d.SavedAt.UTC().Format(savedAtLayout))
	if err != nil {
		return fmt.Errorf("index draft %s: %w", d.DesignID, err)
	}
	return nil
}

// RemoveDraft deletes a draft's listing row.
func RemoveDraft(ctx context.Context, db *sql.DB, designID string) error {
	_, err := db.ExecContext(ctx, `DELETE FROM drafts WHERE design_id=?`, designID)
	return err
}

// ListDrafts returns drafts newest first. An empty productID lists all drafts.
func ListDrafts(ctx context.Context, db *sql.DB, productID string) ([]DraftSummary, error) {
	q := `SELECT design_id, product_id, COALESCE(template_id,''), path, quantity, COALESCE(description,''), saved_at FROM drafts`
	var args []any
	if productID != "" {
		q += ` WHERE product_id=?`
		args = append(args, productID)
	}
	q += ` ORDER BY saved_at DESC, rowid DESC`
	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list drafts: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []DraftSummary
	for rows.Next() {
		var s DraftSummary
		var ts string
		if err := rows.Scan(&s.DesignID, &s.ProductID, &s.TemplateID, &s.Path, &s.Quantity, &s.Description, &ts); err != nil {
			return nil, err
		}
		s.SavedAt, _ = time.Parse(savedAtLayout, ts)
		out = append(out, s)
	}
	return out, rows.Err()
}

// RebuildIndex drops the drafts listing and repopulates it from the draft
// manifests found under draftsDir. Cached previews are dropped too.
func RebuildIndex(ctx context.Context, draftsDir string) error {
	db, err := InitOrOpenIndex(draftsDir)
	if err != nil {
		return err
	}
	defer db.Close()
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	for _, q := range []string{"DELETE FROM drafts;", "DELETE FROM previews;"} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("clear index: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("clear commit: %w", err)
	}
	ents, err := os.ReadDir(draftsDir)
	if err != nil {
		return fmt.Errorf("read drafts dir: %w", err)
	}
	l := applog.WithComponent("storage")
	for _, e := range ents {
		if !e.IsDir() || e.Name() == IndexDirName {
			continue
		}
		root := filepath.Join(draftsDir, e.Name())
		if _, err := os.Stat(filepath.Join(root, ManifestFileName)); err != nil {
			continue
		}
		h, err := Open(root)
		if err != nil {
			l.Warn("skip unreadable draft", slog.String("path", root), slog.Any("err", err))
			continue
		}
		if err := IndexDraft(ctx, db, h); err != nil {
			return err
		}
	}
	return nil
}

// DetectAndRebuildIndex checks the index for corruption or a missing schema
// and rebuilds it when needed. It reports whether a rebuild happened.
func DetectAndRebuildIndex(ctx context.Context, draftsDir string) (bool, error) {
	path := IndexPath(draftsDir)
	db, err := InitOrOpenIndex(draftsDir)
	if err != nil {
		backupIndexFile(path)
		removeIndexFiles(path)
		if rbErr := RebuildIndex(ctx, draftsDir); rbErr != nil {
			return false, fmt.Errorf("rebuild after open failure: %w (open err: %v)", rbErr, err)
		}
		return true, nil
	}
	needs := false
	var chk string
	if err := db.QueryRowContext(ctx, `PRAGMA quick_check;`).Scan(&chk); err != nil || !strings.Contains(strings.ToLower(chk), "ok") {
		needs = true
	}
	if !needs {
		if _, err := db.ExecContext(ctx, `SELECT 1 FROM drafts LIMIT 1;`); err != nil {
			needs = true
		}
	}
	_ = db.Close()
	if !needs {
		return false, nil
	}
	backupIndexFile(path)
	removeIndexFiles(path)
	if err := RebuildIndex(ctx, draftsDir); err != nil {
		return false, err
	}
	return true, nil
}

// backupIndexFile copies the index file into .bagstudio/backups.
func backupIndexFile(indexPath string) {
	bdir := filepath.Join(filepath.Dir(indexPath), "backups")
	_ = os.MkdirAll(bdir, 0o755)
	stamp := time.Now().Format("20060102-150405")
	bak := filepath.Join(bdir, fmt.Sprintf("%s.%s.bak", filepath.Base(indexPath), stamp))
	if data, err := os.ReadFile(indexPath); err == nil {
		_ = os.WriteFile(bak, data, 0o644)
	}
}

func removeIndexFiles(indexPath string) {
	for _, suffix := range []string{"", "-wal", "-shm"} {
		_ = os.Remove(indexPath + suffix)
	}
}
