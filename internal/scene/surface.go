/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package scene

import (
	"bytes"
	"image"
	"image/png"

	"bagstudio/internal/domain"
	"bagstudio/internal/vector"
)

// Frame is an immutable view of the scene handed to a Surface.
type Frame struct {
	Canvas     vector.Size
	Background *Background
	Region     domain.ClipRegion
	HasRegion  bool
	Elements   []domain.SceneElement
	Selected   string
	Version    uint64
}

// Surface is the low-level rendering primitive the scene drives.
type Surface interface {
	Render(Frame) error
	// Snapshot returns the last rendered frame encoded as PNG.
	Snapshot() ([]byte, error)
}

// RecordingSurface keeps the last frame and counts renders. Its snapshot
// is a blank canvas-sized PNG.
type RecordingSurface struct {
	Count int
	Last  Frame
	Err   error
}

func (r *RecordingSurface) Render(f Frame) error {
	r.Count++
	r.Last = f
	return r.Err
}

func (r *RecordingSurface) Snapshot() ([]byte, error) {
	w, h := int(r.Last.Canvas.W), int(r.Last.Canvas.H)
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, w, h))); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
