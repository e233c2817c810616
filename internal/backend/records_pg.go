/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package backend

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"bagstudio/internal/domain"
	applog "bagstudio/internal/log"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrRecordNotFound is returned by Get for unknown designs.
var ErrRecordNotFound = errors.New("customization record not found")

// StoredRecord is a finished design as persisted for the order pipeline.
type StoredRecord struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.NullDecimal
	Record    domain.CustomizationRecord
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PGRecordStore keeps customization records in Postgres.
type PGRecordStore struct {
	db  *sql.DB
	log *slog.Logger
}

// OpenRecordStore connects with the pgx stdlib driver and applies the
// embedded migrations.
func OpenRecordStore(ctx context.Context, dsn string) (*PGRecordStore, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	pctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	s := &PGRecordStore{db: db, log: applog.WithComponent("records")}
	if err := s.applyMigrations(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the connection pool.
func (s *PGRecordStore) Close() error { return s.db.Close() }

// Save inserts or replaces the record for its design id.
func (s *PGRecordStore) Save(ctx context.Context, productID string, quantity int, unitPrice *decimal.Decimal, rec domain.CustomizationRecord) error {
	if strings.TrimSpace(rec.DesignID) == "" {
		return &domain.ValidationError{Field: "designId", Reason: "is required"}
	}
	b, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	var price decimal.NullDecimal
	if unitPrice != nil {
		price = decimal.NewNullDecimal(*unitPrice)
	}
	var tpl sql.NullString
	if rec.TemplateID != "" {
		tpl = sql.NullString{String: rec.TemplateID, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO customization_records (design_id, product_id, template_id, quantity, unit_price, record)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (design_id) DO UPDATE SET product_id = EXCLUDED.product_id, template_id = EXCLUDED.template_id,
			quantity = EXCLUDED.quantity, unit_price = EXCLUDED.unit_price, record = EXCLUDED.record, updated_at = now()`,
		rec.DesignID, productID, tpl, quantity, price, string(b))
	if err != nil {
		return fmt.Errorf("save record %s: %w", rec.DesignID, err)
	}
	s.log.Info("record stored", slog.String("design", rec.DesignID), slog.String("product", productID))
	return nil
}

// Get loads the record for a design id.
func (s *PGRecordStore) Get(ctx context.Context, designID string) (StoredRecord, error) {
	var (
		out StoredRecord
		raw string
	)
	row := s.db.QueryRowContext(ctx, `SELECT product_id, quantity, unit_price, record, created_at, updated_at
		FROM customization_records WHERE design_id = $1`, designID)
	switch err := row.Scan(&out.ProductID, &out.Quantity, &out.UnitPrice, &raw, &out.CreatedAt, &out.UpdatedAt); {
	case errors.Is(err, sql.ErrNoRows):
		return StoredRecord{}, ErrRecordNotFound
	case err != nil:
		return StoredRecord{}, fmt.Errorf("get record %s: %w", designID, err)
	}
	if err := json.Unmarshal([]byte(raw), &out.Record); err != nil {
		return StoredRecord{}, fmt.Errorf("decode record %s: %w", designID, err)
	}
	return out, nil
}

// applyMigrations applies embedded SQL migrations in filename order and
// records each applied version.
func (s *PGRecordStore) applyMigrations(ctx context.Context) error {
	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if name := e.Name(); strings.HasSuffix(strings.ToLower(name), ".sql") {
			files = append(files, name)
		}
	}
	sort.Strings(files)

	// dialect=PostreSQL
	if _, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version BIGINT PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := map[int64]bool{}
	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("select schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int64
		if err := rows.Scan(&v); err != nil {
			_ = rows.Close()
			return err
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	for _, fname := range files {
		version, err := parseVersion(fname)
		if err != nil {
			return err
		}
		if applied[version] {
			continue
		}
		b, err := migrationsFS.ReadFile(path.Join("migrations", fname))
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(b)) == "" {
			continue
		}
		s.log.Info("applying migration", slog.String("file", fname))
		if _, err := s.db.ExecContext(ctx, string(b)); err != nil {
			return fmt.Errorf("apply %s: %w", fname, err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, version, fname); err != nil {
			return fmt.Errorf("record %s: %w", fname, err)
		}
	}
	return nil
}

func parseVersion(name string) (int64, error) {
	base := path.Base(name)
	parts := strings.SplitN(base, "_", 2)
	if len(parts) < 2 {
		return 0, errors.New("invalid migration filename: " + name)
	}
	v, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse version from %s: %w", name, err)
	}
	return v, nil
}
