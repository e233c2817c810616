/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package undo

import (
	"sync"
	"time"

	"bagstudio/internal/domain"
)

// View names one canvas whose history is tracked separately.
type View string

const (
	Front View = "front"
	Back  View = "back"
)

// Snapshot is the element list of a view before an edit.
// Size is an estimate used for the memory cap.
type Snapshot struct {
	View     View
	Elements []domain.SceneElement
	Size     int
	TS       time.Time
}

// Config controls memory and depth caps and coalescing behavior.
type Config struct {
	// MaxBytes is a soft cap; older entries are pruned when exceeded.
	MaxBytes int
	// MaxPerView limits snapshots kept per view (0 means unlimited).
	MaxPerView int
	// MinInterval coalesces edits within the interval into one step. The
	// earlier snapshot is kept since it already holds the state before the
	// burst.
	MinInterval time.Duration
}

// Manager keeps undo/redo stacks per view. It is safe for concurrent use.
type Manager struct {
	cfg Config
	mu  sync.Mutex
	// per-view stacks
	undo map[View][]Snapshot
	redo map[View][]Snapshot
	// accounting
	totalBytes int
	now        func() time.Time
}

func NewManager(cfg Config) *Manager {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 16 * 1024 * 1024 // 16 MiB
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = 250 * time.Millisecond
	}
	return &Manager{cfg: cfg, undo: make(map[View][]Snapshot), redo: make(map[View][]Snapshot), now: time.Now}
}

// SetClock replaces the time source used by Record.
func (m *Manager) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

// EstimateSize approximates the retained memory of an element list.
// Rasters are shared between snapshots and counted once per element.
func EstimateSize(els []domain.SceneElement) int {
	n := 0
	for _, e := range els {
		n += 256 + len(e.ID) + len(e.Text) + len(e.Label)
		if e.Asset != nil {
			n += len(e.Asset.Ref) + len(e.Asset.DataURL)
			if e.Asset.Raster != nil {
				b := e.Asset.Raster.Bounds()
				n += b.Dx() * b.Dy() * 4
			}
		}
	}
	return n
}

// Record stores the state of view before an edit. Within MinInterval of the
// previous record on the same view the edit joins the previous step. Any
// record clears redo for the view.
func (m *Manager) Record(view View, before []domain.SceneElement) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := Snapshot{View: view, Elements: domain.CloneElements(before), TS: m.now()}
	s.Size = EstimateSize(s.Elements)
	m.redo[view] = nil
	stack := m.undo[view]
	if n := len(stack); n > 0 && s.TS.Sub(stack[n-1].TS) < m.cfg.MinInterval {
		// Coalesce: keep the older state, refresh the timestamp so a
		// continuous drag stays one step.
		stack[n-1].TS = s.TS
		return
	}
	m.undo[view] = append(stack, s)
	m.totalBytes += s.Size
	m.enforceCapsLocked(view)
}

// Undo pops the last snapshot of view and stores current for Redo.
func (m *Manager) Undo(view View, current []domain.SceneElement) ([]domain.SceneElement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stack := m.undo[view]
	if len(stack) == 0 {
		return nil, false
	}
	s := stack[len(stack)-1]
	m.undo[view] = stack[:len(stack)-1]
	m.totalBytes -= s.Size
	cur := domain.CloneElements(current)
	m.redo[view] = append(m.redo[view], Snapshot{View: view, Elements: cur, Size: EstimateSize(cur), TS: s.TS})
	return domain.CloneElements(s.Elements), true
}

// Redo pops the last undone state and pushes current back onto undo.
func (m *Manager) Redo(view View, current []domain.SceneElement) ([]domain.SceneElement, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := m.redo[view]
	if len(r) == 0 {
		return nil, false
	}
	s := r[len(r)-1]
	m.redo[view] = r[:len(r)-1]
	cur := domain.CloneElements(current)
	// Backdate so an immediate edit after redo does not coalesce into it.
	back := Snapshot{View: view, Elements: cur, Size: EstimateSize(cur), TS: m.now().Add(-m.cfg.MinInterval)}
	m.undo[view] = append(m.undo[view], back)
	m.totalBytes += back.Size
	m.enforceCapsLocked(view)
	return domain.CloneElements(s.Elements), true
}

// CanUndo reports whether view has undo history.
func (m *Manager) CanUndo(view View) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.undo[view]) > 0
}

// CanRedo reports whether view has redo history.
func (m *Manager) CanRedo(view View) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.redo[view]) > 0
}

// Clear drops all history for view, e.g. after the product photo changed.
func (m *Manager) Clear(view View) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.undo[view] {
		m.totalBytes -= s.Size
	}
	delete(m.undo, view)
	delete(m.redo, view)
	if m.totalBytes < 0 {
		m.totalBytes = 0
	}
}

// Stats returns current sizes for diagnostics.
func (m *Manager) Stats() (totalBytes int, views int, totalSnapshots int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	views = len(m.undo)
	for _, v := range m.undo {
		totalSnapshots += len(v)
	}
	return m.totalBytes, views, totalSnapshots
}

func (m *Manager) enforceCapsLocked(view View) {
	if m.cfg.MaxPerView > 0 {
		stack := m.undo[view]
		if len(stack) > m.cfg.MaxPerView {
			toDrop := len(stack) - m.cfg.MaxPerView
			for i := 0; i < toDrop; i++ {
				m.totalBytes -= stack[i].Size
			}
			m.undo[view] = append([]Snapshot{}, stack[toDrop:]...)
		}
	}
	// Global memory cap: prune oldest across all views, never the newest step.
	for m.cfg.MaxBytes > 0 && m.totalBytes > m.cfg.MaxBytes {
		var oldest View
		found := false
		var oldestTS time.Time
		for v, stack := range m.undo {
			if len(stack) == 0 || (v == view && len(stack) == 1) {
				continue
			}
			if !found || stack[0].TS.Before(oldestTS) {
				oldest, oldestTS, found = v, stack[0].TS, true
			}
		}
		if !found {
			break
		}
		stack := m.undo[oldest]
		m.totalBytes -= stack[0].Size
		m.undo[oldest] = stack[1:]
		if len(m.undo[oldest]) == 0 {
			delete(m.undo, oldest)
		}
	}
}
