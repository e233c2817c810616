/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package clip computes the canvas rectangle occupied by the product photo
// and binds elements to it.
package clip

import (
	"bagstudio/internal/domain"
	"bagstudio/internal/vector"

	"github.com/google/uuid"
)

// DefaultMargin is the fraction of the canvas the photo may occupy.
const DefaultMargin = 0.9

// ComputeRegion uniformly scales photo to fit within margin of the canvas
// and centers it. Each call yields a region with a fresh id.
func ComputeRegion(photo, canvas vector.Size, margin float64) (domain.ClipRegion, bool) {
	if margin <= 0 || margin > 1 {
		margin = DefaultMargin
	}
	r, _ := vector.FitContain(photo, vector.R(0, 0, canvas.W, canvas.H), margin)
	if r.Empty() {
		return domain.ClipRegion{}, false
	}
	return domain.ClipRegion{ID: uuid.NewString(), X: r.X, Y: r.Y, Width: r.W, Height: r.H}, true
}

// Rect converts a region to a vector rectangle.
func Rect(c domain.ClipRegion) vector.Rect { return vector.R(c.X, c.Y, c.Width, c.Height) }

// Manager holds the single active region.
type Manager struct {
	canvas  vector.Size
	margin  float64
	current domain.ClipRegion
	ok      bool
}

// NewManager returns a manager for a canvas of the given size.
func NewManager(canvas vector.Size, margin float64) *Manager {
	if margin <= 0 || margin > 1 {
		margin = DefaultMargin
	}
	return &Manager{canvas: canvas, margin: margin}
}

// Canvas returns the canvas size.
func (m *Manager) Canvas() vector.Size { return m.canvas }

// Margin returns the configured margin.
func (m *Manager) Margin() float64 { return m.margin }

// Recompute replaces the active region for a new photo. An empty photo
// clears the region.
func (m *Manager) Recompute(photo vector.Size) (domain.ClipRegion, bool) {
	m.current, m.ok = ComputeRegion(photo, m.canvas, m.margin)
	return m.current, m.ok
}

// Clear drops the active region.
func (m *Manager) Clear() { m.current, m.ok = domain.ClipRegion{}, false }

// Current returns the active region.
func (m *Manager) Current() (domain.ClipRegion, bool) { return m.current, m.ok }

// IsCurrent reports whether id references the active region.
func (m *Manager) IsCurrent(id string) bool { return m.ok && id != "" && id == m.current.ID }

// Attach stamps el with the active region or fails with ErrClipRegionMissing.
func (m *Manager) Attach(el *domain.SceneElement) error {
	if !m.ok {
		return domain.ErrClipRegionMissing
	}
	el.ClipRegionID = m.current.ID
	return nil
}
