/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package projector

import (
	"math"
	"reflect"
	"testing"

	"bagstudio/internal/domain"
	"bagstudio/internal/scene"
	"bagstudio/internal/vector"
)

var canvas = vector.Size{W: 800, H: 600}

func sample() []domain.SceneElement {
	return []domain.SceneElement{
		{ID: "low", Kind: domain.KindImage, Width: 100, Height: 50, Transform: domain.Transform{X: 400, Y: 450, ScaleX: 2, ScaleY: 2}},
		{ID: "top", Kind: domain.KindText, Text: "Hello", Style: domain.Style{FontSize: 20}, Transform: domain.Transform{X: 200, Y: 120, Angle: 10}},
		{ID: "mid", Kind: domain.KindPlaceholder, Width: 80, Height: 80, Transform: domain.Transform{X: 600, Y: 300}},
	}
}

func TestProjectIsDeterministic(t *testing.T) {
	p := DefaultParams()
	a := Project(sample(), canvas, p)
	b := Project(sample(), canvas, p)
	if !reflect.DeepEqual(a, b) {
		t.Fatalf("projection not deterministic:\n%+v\n%+v", a, b)
	}
}

func TestProjectSortsByY(t *testing.T) {
	got := Project(sample(), canvas, DefaultParams())
	var ids []string
	for _, e := range got {
		ids = append(ids, e.ID)
	}
	if !reflect.DeepEqual(ids, []string{"top", "mid", "low"}) {
		t.Fatalf("order = %v", ids)
	}
}

func TestProjectFormula(t *testing.T) {
	p := DefaultParams()
	in := sample()[0]
	out := Project([]domain.SceneElement{in}, canvas, p)[0]
	relX, relY := 400.0/800, 450.0/600
	wantX := 800*(relX*p.Sxf+relY*p.Kxf+(1-relX)*p.Sxs*p.W1) + p.Ox
	wantY := 600*(relY*p.Syf+relX*p.Kyf+(1-relY)*p.Kys*p.W2) + p.Oy
	ps := 1 - relY*p.Depth
	if !vector.NearlyEqual(out.Transform.X, wantX, 1e-9) || !vector.NearlyEqual(out.Transform.Y, wantY, 1e-9) {
		t.Fatalf("position = (%v,%v), want (%v,%v)", out.Transform.X, out.Transform.Y, wantX, wantY)
	}
	if !vector.NearlyEqual(out.Transform.ScaleX, 2*ps*p.Syf, 1e-9) {
		t.Fatalf("scale = %v", out.Transform.ScaleX)
	}
	wantAngle := p.HAngle*relY*0.5 + p.VAngle*relX*0.5
	if !vector.NearlyEqual(out.Transform.Angle, wantAngle, 1e-9) {
		t.Fatalf("angle = %v want %v", out.Transform.Angle, wantAngle)
	}
	if !vector.NearlyEqual(out.Style.Opacity, math.Max(0.9, 1-relY*0.1), 1e-9) {
		t.Fatalf("opacity = %v", out.Style.Opacity)
	}
	if in.Transform.X != 400 {
		t.Fatalf("input mutated")
	}
}

func TestProjectTextCorrections(t *testing.T) {
	p := DefaultParams()
	txt := sample()[1]
	shape := txt
	shape.Kind = domain.KindPlaceholder
	a := Project([]domain.SceneElement{txt}, canvas, p)[0]
	b := Project([]domain.SceneElement{shape}, canvas, p)[0]
	relX, relY := 200.0/800, 120.0/600
	if !vector.NearlyEqual(a.Transform.X-b.Transform.X, p.TextOffsetX, 1e-9) {
		t.Fatalf("text offset = %v", a.Transform.X-b.Transform.X)
	}
	if !vector.NearlyEqual(a.Transform.SkewX-b.Transform.SkewX, p.TextSkewX*relY, 1e-9) ||
		!vector.NearlyEqual(a.Transform.SkewY-b.Transform.SkewY, p.TextSkewY*relX, 1e-9) {
		t.Fatalf("text skew = %+v vs %+v", a.Transform, b.Transform)
	}
	if !vector.NearlyEqual(a.Style.CharSpacing, p.TextSpacing*relY, 1e-9) || b.Style.CharSpacing != 0 {
		t.Fatalf("char spacing = %v / %v", a.Style.CharSpacing, b.Style.CharSpacing)
	}
}

func newFront(t *testing.T) *scene.Scene {
	t.Helper()
	s := scene.New(scene.Options{Canvas: canvas})
	if err := s.SetBackground(scene.Background{ID: "front", Asset: domain.AssetRef{Ref: "front.jpg"}, Width: 1000, Height: 750}); err != nil {
		t.Fatal(err)
	}
	for _, e := range sample() {
		if _, err := s.AddElement(e); err != nil {
			t.Fatalf("AddElement: %v", err)
		}
	}
	return s
}

func TestPreviewRebuildsOnlyWhenStale(t *testing.T) {
	front := newFront(t)
	surf := &scene.RecordingSurface{}
	target := scene.New(scene.Options{Canvas: canvas, Surface: surf})
	pv := NewPreview(target, DefaultParams())
	back := &scene.Background{ID: "back", Asset: domain.AssetRef{Ref: "back.jpg"}, Width: 900, Height: 900}

	if _, err := pv.Refresh(front, nil); err != ErrNoBackground {
		t.Fatalf("Refresh without background = %v", err)
	}
	if !pv.Stale(front, back) {
		t.Fatalf("new preview should be stale")
	}
	built, err := pv.Refresh(front, back)
	if err != nil || !built {
		t.Fatalf("Refresh = %v, %v", built, err)
	}
	if target.Len() != 3 || target.Background().ID != "back" {
		t.Fatalf("derived scene: len=%d bg=%+v", target.Len(), target.Background())
	}
	if err := target.Validate(); err != nil {
		t.Fatalf("derived elements not bound to target region: %v", err)
	}
	if built, _ := pv.Refresh(front, back); built || pv.Builds() != 1 {
		t.Fatalf("unchanged front rebuilt the preview")
	}

	sel := front.Elements()[0].ID
	if err := front.UpdateElement(sel, func(e *domain.SceneElement) { e.Transform.X += 10 }); err != nil {
		t.Fatal(err)
	}
	if !pv.Stale(front, back) {
		t.Fatalf("front change not detected")
	}
	if built, _ := pv.Refresh(front, back); !built || target.Len() != 3 {
		t.Fatalf("rebuild after front change: built=%v len=%d", built, target.Len())
	}

	other := &scene.Background{ID: "side", Asset: domain.AssetRef{Ref: "side.jpg"}, Width: 500, Height: 900}
	if built, _ := pv.Refresh(front, other); !built || target.Background().ID != "side" {
		t.Fatalf("background change not applied")
	}
	if pv.Builds() != 3 {
		t.Fatalf("builds = %d", pv.Builds())
	}
}

func TestPreviewClearsRemovedElements(t *testing.T) {
	front := newFront(t)
	target := scene.New(scene.Options{Canvas: canvas})
	pv := NewPreview(target, DefaultParams())
	back := &scene.Background{ID: "back", Width: 900, Height: 900}
	if _, err := pv.Refresh(front, back); err != nil {
		t.Fatal(err)
	}
	front.ClearElements()
	if _, err := pv.Refresh(front, back); err != nil {
		t.Fatal(err)
	}
	if target.Len() != 0 {
		t.Fatalf("derived scene kept %d elements", target.Len())
	}
}
