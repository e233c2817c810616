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
	"errors"
	"testing"
	"time"
)

func newTestCache(t *testing.T, capBytes int64) *PreviewCache {
	t.Helper()
	db, err := InitOrOpenIndex(t.TempDir())
	if err != nil {
		t.Fatalf("InitOrOpenIndex: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	c := NewPreviewCache(db, capBytes)
	tick := time.Unix(1700000000, 0)
	c.now = func() time.Time {
		tick = tick.Add(time.Millisecond)
		return tick
	}
	return c
}

func TestPreviewsPutGetAndEvict(t *testing.T) {
	c := newTestCache(t, 100)
	ctx := context.Background()
	for _, k := range []string{"a", "b"} {
		if err := c.Put(ctx, k, 10, 10, make([]byte, 40)); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	// Touch a so that b becomes the eviction candidate.
	if b, err := c.Get(ctx, "a"); err != nil || len(b) != 40 {
		t.Fatalf("get a = %d, %v", len(b), err)
	}
	if err := c.Put(ctx, "c", 10, 10, make([]byte, 40)); err != nil {
		t.Fatalf("put c: %v", err)
	}
	total, err := c.Total(ctx)
	if err != nil || total != 80 {
		t.Fatalf("total = %d, %v", total, err)
	}
	if b, _ := c.Get(ctx, "b"); b != nil {
		t.Fatalf("least recently used entry survived")
	}
	for _, k := range []string{"a", "c"} {
		if b, _ := c.Get(ctx, k); b == nil {
			t.Fatalf("entry %s evicted", k)
		}
	}
}

func TestPreviewsUpsertReplacesSize(t *testing.T) {
	c := newTestCache(t, 1000)
	ctx := context.Background()
	_ = c.Put(ctx, "k", 1, 1, make([]byte, 10))
	_ = c.Put(ctx, "k", 2, 2, make([]byte, 30))
	if total, _ := c.Total(ctx); total != 30 {
		t.Fatalf("total = %d", total)
	}
	if err := c.Put(ctx, "k", 1, 1, nil); err == nil {
		t.Fatalf("empty blob accepted")
	}
}

func TestGetOrCreatePreview(t *testing.T) {
	c := newTestCache(t, 1000)
	ctx := context.Background()
	calls := 0
	gen := func(context.Context) ([]byte, error) { calls++; return []byte("abcd"), nil }
	for i := 0; i < 2; i++ {
		b, err := c.GetOrCreate(ctx, PreviewKey("d1", "front", 800, 600), 800, 600, gen)
		if err != nil || string(b) != "abcd" {
			t.Fatalf("GetOrCreate %d = %q, %v", i, b, err)
		}
	}
	if calls != 1 {
		t.Fatalf("generator should be called once, got %d", calls)
	}
	boom := errors.New("boom")
	if _, err := c.GetOrCreate(ctx, "other", 1, 1, func(context.Context) ([]byte, error) { return nil, boom }); !errors.Is(err, boom) {
		t.Fatalf("generator error = %v", err)
	}
}

func TestInvalidateDropsDesignViews(t *testing.T) {
	c := newTestCache(t, 1000)
	ctx := context.Background()
	_ = c.Put(ctx, PreviewKey("d_1", "front", 10, 10), 10, 10, []byte("x"))
	_ = c.Put(ctx, PreviewKey("d_1", "back", 10, 10), 10, 10, []byte("x"))
	_ = c.Put(ctx, PreviewKey("dx1", "front", 10, 10), 10, 10, []byte("y"))
	if err := c.Invalidate(ctx, "d_1"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	if total, _ := c.Total(ctx); total != 1 {
		t.Fatalf("total after invalidate = %d", total)
	}
}

func TestMaxPreviewsBytesFromEnv(t *testing.T) {
	t.Setenv(EnvPreviewsMaxBytes, "1234")
	if got := MaxPreviewsBytesFromEnv(); got != 1234 {
		t.Fatalf("got %d", got)
	}
	t.Setenv(EnvPreviewsMaxBytes, "nope")
	if got := MaxPreviewsBytesFromEnv(); got != 32<<20 {
		t.Fatalf("fallback = %d", got)
	}
}
