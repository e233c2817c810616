/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package vector

// Smart guides and snapping helpers used when the editor moves an element
// relative to the clip region and the other placed elements.

import "math"

// SnapOptions controls which guide candidates are considered and the threshold.
type SnapOptions struct {
	// Threshold is the maximum snapping distance in canvas pixels; zero means 6.
	Threshold     float64
	SnapToEdges   bool
	SnapToCenters bool
}

// Anchor is a static reference rect (the clip region or another element).
// Higher weights win when distances tie.
type Anchor struct {
	Rect   Rect
	Weight float64
}

// GuideLine is a visual guide for one snapped axis. Orientation is
// "vertical" or "horizontal", Kind is "edge" or "center". Positions are
// rounded to 3 decimals.
type GuideLine struct {
	Orientation string
	Kind        string
	Position    float64
	From        Pt
	To          Pt
}

// span is a rect projected onto one axis.
type span struct{ lo, hi float64 }

func (s span) mid() float64 { return (s.lo + s.hi) / 2 }

func xSpan(r Rect) span { return span{r.X, r.X + r.W} }
func ySpan(r Rect) span { return span{r.Y, r.Y + r.H} }

// snap is the best candidate found on one axis.
type snap struct {
	delta float64
	score float64
	at    float64
	kind  string
	ref   Rect
	ok    bool
}

func (b *snap) consider(delta, at, threshold, weight float64, kind string, ref Rect) {
	dist := math.Abs(delta)
	if dist > threshold {
		return
	}
	score := dist / math.Max(1, weight)
	if b.ok && score >= b.score {
		return
	}
	*b = snap{delta: delta, score: score, at: at, kind: kind, ref: ref, ok: true}
}

// scan looks for the closest alignment of moving against anchor on one axis:
// same edges, abutting edges and centers.
func scan(b *snap, moving, anchor span, ref Rect, weight float64, opts SnapOptions) {
	if opts.SnapToEdges {
		for _, pair := range [4][2]float64{
			{moving.lo, anchor.lo}, {moving.hi, anchor.hi},
			{moving.lo, anchor.hi}, {moving.hi, anchor.lo},
		} {
			b.consider(pair[0]-pair[1], pair[1], opts.Threshold, weight, "edge", ref)
		}
	}
	if opts.SnapToCenters {
		b.consider(moving.mid()-anchor.mid(), anchor.mid(), opts.Threshold, weight, "center", ref)
	}
}

// ComputeSmartGuides snaps a moving rectangle to the anchors, independently
// in X and Y, and returns the snapped rectangle with the guides to draw.
func ComputeSmartGuides(moving Rect, anchors []Anchor, opts SnapOptions) (Rect, []GuideLine) {
	if opts.Threshold <= 0 {
		opts.Threshold = 6
	}
	var bx, by snap
	for _, a := range anchors {
		scan(&bx, xSpan(moving), xSpan(a.Rect), a.Rect, a.Weight, opts)
		scan(&by, ySpan(moving), ySpan(a.Rect), a.Rect, a.Weight, opts)
	}
	snapped := moving
	var guides []GuideLine
	if bx.ok {
		snapped.X = FloatRound(moving.X-bx.delta, 3)
		x := FloatRound(bx.at, 3)
		lo, hi := math.Min(moving.Y, bx.ref.Y), math.Max(moving.Y+moving.H, bx.ref.Y+bx.ref.H)
		guides = append(guides, GuideLine{Orientation: "vertical", Kind: bx.kind, Position: x, From: Pt{x, lo}, To: Pt{x, hi}})
	}
	if by.ok {
		snapped.Y = FloatRound(moving.Y-by.delta, 3)
		y := FloatRound(by.at, 3)
		lo, hi := math.Min(moving.X, by.ref.X), math.Max(moving.X+moving.W, by.ref.X+by.ref.W)
		guides = append(guides, GuideLine{Orientation: "horizontal", Kind: by.kind, Position: y, From: Pt{lo, y}, To: Pt{hi, y}})
	}
	return snapped, guides
}

// RegionAnchors builds the anchor set for moving an element inside a clip
// region: the region itself (preferred on ties) followed by the other
// elements' bounds.
func RegionAnchors(region Rect, others []Rect) []Anchor {
	out := make([]Anchor, 0, len(others)+1)
	if !region.Empty() {
		out = append(out, Anchor{Rect: region, Weight: 2})
	}
	for _, r := range others {
		out = append(out, Anchor{Rect: r, Weight: 1})
	}
	return out
}
