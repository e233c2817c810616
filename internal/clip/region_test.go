/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package clip

import (
	"errors"
	"testing"

	"bagstudio/internal/domain"
	"bagstudio/internal/vector"
)

func TestComputeRegionCenteredWithinMargin(t *testing.T) {
	canvas := vector.Size{W: 800, H: 600}
	photos := []vector.Size{{W: 1200, H: 1600}, {W: 3000, H: 1000}, {W: 200, H: 150}}
	for _, p := range photos {
		r, ok := ComputeRegion(p, canvas, 0)
		if !ok {
			t.Fatalf("no region for %+v", p)
		}
		if r.Width > 720+1e-9 || r.Height > 540+1e-9 {
			t.Fatalf("region exceeds 90%%: %+v", r)
		}
		cx, cy := r.X+r.Width/2, r.Y+r.Height/2
		if !vector.NearlyEqual(cx, 400, 1e-9) || !vector.NearlyEqual(cy, 300, 1e-9) {
			t.Fatalf("region not centered: %+v", r)
		}
		if !vector.NearlyEqual(r.Width/r.Height, p.W/p.H, 1e-9) {
			t.Fatalf("aspect changed: %+v for %+v", r, p)
		}
	}
}

func TestRecomputeYieldsNewRegion(t *testing.T) {
	m := NewManager(vector.Size{W: 800, H: 600}, DefaultMargin)
	a, ok := m.Recompute(vector.Size{W: 1000, H: 1000})
	if !ok {
		t.Fatalf("expected region")
	}
	b, _ := m.Recompute(vector.Size{W: 1000, H: 1000})
	if a.ID == b.ID {
		t.Fatalf("recompute must produce a new region id")
	}
	if m.IsCurrent(a.ID) || !m.IsCurrent(b.ID) {
		t.Fatalf("IsCurrent mismatch")
	}
	if _, ok := m.Recompute(vector.Size{}); ok {
		t.Fatalf("empty photo should clear the region")
	}
	if _, ok := m.Current(); ok {
		t.Fatalf("region should be cleared")
	}
}

func TestAttachRequiresRegion(t *testing.T) {
	m := NewManager(vector.Size{W: 800, H: 600}, 0.8)
	el := domain.SceneElement{ID: "x"}
	if err := m.Attach(&el); !errors.Is(err, domain.ErrClipRegionMissing) {
		t.Fatalf("Attach without region = %v", err)
	}
	r, _ := m.Recompute(vector.Size{W: 400, H: 300})
	if err := m.Attach(&el); err != nil || el.ClipRegionID != r.ID {
		t.Fatalf("Attach = %v, id %q want %q", err, el.ClipRegionID, r.ID)
	}
	if !vector.NearlyEqual(r.Width, 640, 1e-9) {
		t.Fatalf("margin 0.8 width = %v", r.Width)
	}
	m.Clear()
	if m.IsCurrent(r.ID) {
		t.Fatalf("cleared region still current")
	}
}
