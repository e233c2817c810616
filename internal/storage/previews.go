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
	"os"
	"strconv"
	"strings"
	"time"
)

// EnvPreviewsMaxBytes overrides the preview cache cap.
const EnvPreviewsMaxBytes = "GBS_PREVIEWS_MAX_BYTES"

// PreviewCache stores rendered PNGs in the index database and evicts the
// least recently used entries once the total exceeds the cap.
type PreviewCache struct {
	db       *sql.DB
	capBytes int64
	now      func() time.Time
}

// NewPreviewCache wraps an open index. capBytes <= 0 reads the cap from
// GBS_PREVIEWS_MAX_BYTES.
func NewPreviewCache(db *sql.DB, capBytes int64) *PreviewCache {
	if capBytes <= 0 {
		capBytes = MaxPreviewsBytesFromEnv()
	}
	return &PreviewCache{db: db, capBytes: capBytes, now: time.Now}
}

// PreviewKey names a cached render of one design view at a size.
func PreviewKey(designID, view string, w, h int) string {
	return fmt.Sprintf("%s/%s/%dx%d", designID, view, w, h)
}

// Get returns the cached blob for key and marks it as recently used.
// A miss returns nil without error.
func (c *PreviewCache) Get(ctx context.Context, key string) ([]byte, error) {
	var blob []byte
	err := c.db.QueryRowContext(ctx, `SELECT blob FROM previews WHERE key=?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query preview: %w", err)
	}
	_, _ = c.db.ExecContext(ctx, `UPDATE previews SET last_access=? WHERE key=?`, c.now().UnixNano(), key)
	return blob, nil
}

// Put upserts a blob and enforces the cap.
func (c *PreviewCache) Put(ctx context.Context, key string, w, h int, blob []byte) error {
	if strings.TrimSpace(key) == "" {
		return errors.New("preview key is required")
	}
	if len(blob) == 0 {
		return errors.New("empty preview blob")
	}
	now := c.now()
	_, err := c.db.ExecContext(ctx, `INSERT INTO previews(key,w,h,blob,size,updated_at,last_access)
		VALUES(?,?,?,?,?,?,?)
		ON CONFLICT(key) DO UPDATE SET w=excluded.w, h=excluded.h, blob=excluded.blob, size=excluded.size,
			updated_at=excluded.updated_at, last_access=excluded.last_access`,
		key, w, h, blob, len(blob), now.UTC().Format(time.RFC3339), now.UnixNano())
	if err != nil {
		return fmt.Errorf("upsert preview: %w", err)
	}
	return c.EvictToFit(ctx)
}

// GetOrCreate returns the cached blob or generates, stores and returns it.
func (c *PreviewCache) GetOrCreate(ctx context.Context, key string, w, h int, gen func(context.Context) ([]byte, error)) ([]byte, error) {
	if b, err := c.Get(ctx, key); err != nil {
		return nil, err
	} else if b != nil {
		return b, nil
	}
	if gen == nil {
		return nil, nil
	}
	data, err := gen(ctx)
	if err != nil || data == nil {
		return nil, err
	}
	if err := c.Put(ctx, key, w, h, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Invalidate drops every cached view of a design.
func (c *PreviewCache) Invalidate(ctx context.Context, designID string) error {
	_, err := c.db.ExecContext(ctx, `DELETE FROM previews WHERE key LIKE ? ESCAPE '\'`, escapeLike(designID)+"/%")
	return err
}

// EvictToFit deletes least recently used rows until the total size fits the cap.
func (c *PreviewCache) EvictToFit(ctx context.Context) error {
	total, err := c.Total(ctx)
	if err != nil {
		return err
	}
	if total <= c.capBytes {
		return nil
	}
	rows, err := c.db.QueryContext(ctx, `SELECT key, size FROM previews ORDER BY last_access ASC, rowid ASC`)
	if err != nil {
		return fmt.Errorf("select victims: %w", err)
	}
	victims := make([]any, 0, 8)
	cur := total
	for rows.Next() {
		var key string
		var sz int64
		if err := rows.Scan(&key, &sz); err != nil {
			_ = rows.Close()
			return err
		}
		victims = append(victims, key)
		cur -= sz
		if cur <= c.capBytes {
			break
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	// Close the cursor before writing; the index uses a single connection.
	if err := rows.Close(); err != nil {
		return err
	}
	if len(victims) == 0 {
		return nil
	}
	q := `DELETE FROM previews WHERE key IN (?` + strings.Repeat(",?", len(victims)-1) + `)`
	if _, err := c.db.ExecContext(ctx, q, victims...); err != nil {
		return fmt.Errorf("evict delete: %w", err)
	}
	return nil
}

// Total returns the bytes currently held by the cache.
func (c *PreviewCache) Total(ctx context.Context) (int64, error) {
	var total int64
	if err := c.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size),0) FROM previews`).Scan(&total); err != nil {
		return 0, fmt.Errorf("sum previews size: %w", err)
	}
	return total, nil
}

// MaxPreviewsBytesFromEnv reads GBS_PREVIEWS_MAX_BYTES, defaulting to 32MB.
func MaxPreviewsBytesFromEnv() int64 {
	const def = 32 << 20
	v := os.Getenv(EnvPreviewsMaxBytes)
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
