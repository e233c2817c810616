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

import "testing"

func hasGuide(guides []GuideLine, orientation, kind string, pos float64) bool {
	for _, g := range guides {
		if g.Orientation == orientation && g.Position == pos && (kind == "" || g.Kind == kind) {
			return true
		}
	}
	return false
}

func TestComputeSmartGuides(t *testing.T) {
	region := Rect{W: 200, H: 100}
	cases := []struct {
		name    string
		moving  Rect
		anchors []Anchor
		opts    SnapOptions
		want    Pt
		vGuide  string
		vPos    float64
		hGuide  string
		hPos    float64
		noGuide bool
	}{
		{
			name:    "edges near top-left",
			moving:  Rect{X: 3, Y: 4, W: 80, H: 40},
			anchors: []Anchor{{Rect: region, Weight: 1}},
			opts:    SnapOptions{Threshold: 6, SnapToEdges: true},
			want:    Pt{0, 0},
			vGuide:  "edge", hGuide: "edge",
		},
		{
			name:    "centers",
			moving:  Rect{X: 48, Y: 17, W: 100, H: 60},
			anchors: []Anchor{{Rect: region, Weight: 1}},
			opts:    SnapOptions{Threshold: 5, SnapToCenters: true},
			want:    Pt{50, 20},
			vGuide:  "center", vPos: 100,
			hGuide: "center", hPos: 50,
		},
		{
			name:    "outside threshold",
			moving:  Rect{X: 10, Y: 10, W: 50, H: 20},
			anchors: []Anchor{{Rect: region, Weight: 1}},
			opts:    SnapOptions{Threshold: 5, SnapToEdges: true},
			want:    Pt{10, 10},
			noGuide: true,
		},
		{
			name:   "abutting edge on Y, aligned edge on X",
			moving: Rect{X: 2, Y: 97, W: 80, H: 80},
			anchors: []Anchor{
				{Rect: Rect{W: 100, H: 100}, Weight: 1},
				{Rect: Rect{X: 300, W: 100, H: 100}, Weight: 1},
			},
			opts:   SnapOptions{Threshold: 5, SnapToEdges: true},
			want:   Pt{0, 100},
			vGuide: "edge", hGuide: "edge", hPos: 100,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, guides := ComputeSmartGuides(tc.moving, tc.anchors, tc.opts)
			if got.X != tc.want.X || got.Y != tc.want.Y {
				t.Fatalf("snapped to (%v,%v), want %v", got.X, got.Y, tc.want)
			}
			if got.W != tc.moving.W || got.H != tc.moving.H {
				t.Fatalf("size changed: %+v", got)
			}
			if tc.noGuide {
				if len(guides) != 0 {
					t.Fatalf("unexpected guides: %+v", guides)
				}
				return
			}
			if !hasGuide(guides, "vertical", tc.vGuide, tc.vPos) {
				t.Fatalf("missing vertical %s guide at %v: %+v", tc.vGuide, tc.vPos, guides)
			}
			if !hasGuide(guides, "horizontal", tc.hGuide, tc.hPos) {
				t.Fatalf("missing horizontal %s guide at %v: %+v", tc.hGuide, tc.hPos, guides)
			}
		})
	}
}

func TestGuideSpansBothRects(t *testing.T) {
	anchor := Rect{X: 0, Y: 200, W: 50, H: 50}
	_, guides := ComputeSmartGuides(Rect{X: 1, Y: 10, W: 20, H: 20}, []Anchor{{Rect: anchor, Weight: 1}}, SnapOptions{SnapToEdges: true})
	if len(guides) != 1 || guides[0].Orientation != "vertical" {
		t.Fatalf("guides = %+v", guides)
	}
	if guides[0].From.Y != 10 || guides[0].To.Y != 250 {
		t.Fatalf("guide span %v..%v, want 10..250", guides[0].From.Y, guides[0].To.Y)
	}
}

func TestRegionAnchorsPrefersRegion(t *testing.T) {
	region := Rect{X: 40, Y: 30, W: 720, H: 540}
	other := Rect{X: 44, Y: 200, W: 50, H: 50}
	anchors := RegionAnchors(region, []Rect{other})
	if len(anchors) != 2 || anchors[0].Rect != region || anchors[0].Weight <= anchors[1].Weight {
		t.Fatalf("unexpected anchors: %+v", anchors)
	}
	// 2px from both the region and the other element.
	snapped, _ := ComputeSmartGuides(Rect{X: 42, Y: 400, W: 30, H: 30}, anchors, SnapOptions{Threshold: 5, SnapToEdges: true})
	if snapped.X != 40 {
		t.Fatalf("expected snap to region edge 40, got %v", snapped.X)
	}
	if len(RegionAnchors(Rect{}, nil)) != 0 {
		t.Fatalf("empty region should produce no anchors")
	}
}
