/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package projector derives an approximate alternate-angle view of the
// front design. The mapping is an affine heuristic, not a 3-D projection.
package projector

import (
	"math"
	"sort"

	"bagstudio/internal/domain"
	"bagstudio/internal/vector"
)

// Project maps front elements onto the alternate view. Elements are emitted
// sorted by ascending y so that lower elements stack on top. Project is
// pure: equal inputs give equal outputs.
func Project(front []domain.SceneElement, canvas vector.Size, p Params) []domain.SceneElement {
	if canvas.Empty() {
		return nil
	}
	els := domain.CloneElements(front)
	sort.SliceStable(els, func(i, j int) bool { return els[i].Transform.Y < els[j].Transform.Y })
	W, H := canvas.W, canvas.H
	for i := range els {
		e := &els[i]
		t := e.Transform.Normalized()
		relX, relY := t.X/W, t.Y/H

		t.X = W*(relX*p.Sxf+relY*p.Kxf+(1-relX)*p.Sxs*p.W1) + p.Ox
		t.Y = H*(relY*p.Syf+relX*p.Kyf+(1-relY)*p.Kys*p.W2) + p.Oy
		ps := 1 - relY*p.Depth
		t.ScaleX *= ps * p.Syf
		t.ScaleY *= ps * p.Syf
		t.Angle += p.HAngle*relY*0.5 + p.VAngle*relX*0.5
		t.SkewY += p.Kxs * (1 - relX) * p.W1

		if e.Kind == domain.KindText {
			t.SkewX += p.TextSkewX * relY
			t.SkewY += p.TextSkewY * relX
			t.X += p.TextOffsetX
			e.Style.CharSpacing += p.TextSpacing * relY
		}
		e.Transform = t
		e.Style.Opacity = e.Style.Alpha() * math.Max(0.9, 1-relY*0.1)
		e.ClipRegionID = ""
	}
	return els
}
