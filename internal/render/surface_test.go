/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package render

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"bagstudio/internal/domain"
	"bagstudio/internal/scene"
	"bagstudio/internal/vector"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func photoScene(t *testing.T, surf scene.Surface) *scene.Scene {
	t.Helper()
	s := scene.New(scene.Options{Canvas: vector.Size{W: 200, H: 100}, Surface: surf})
	bg := scene.Background{Asset: domain.AssetRef{Raster: solid(100, 100, color.RGBA{R: 255, A: 255})}}
	if err := s.SetBackground(bg); err != nil {
		t.Fatalf("SetBackground: %v", err)
	}
	return s
}

func TestBackgroundFitsClipRegion(t *testing.T) {
	surf := NewGGSurface(Options{})
	s := photoScene(t, surf)
	region, _ := s.Region()
	// 100x100 photo in a 200x100 canvas at 90%: 90x90 centered at (100,50).
	if region.Width != 90 || region.X != 55 || region.Y != 5 {
		t.Fatalf("region = %+v", region)
	}
	img := surf.Image()
	if p := PixelAt(img, 100, 50); p.R < 200 || p.G > 60 {
		t.Fatalf("center pixel = %+v, want red photo", p)
	}
	if p := PixelAt(img, 10, 50); p.R != 255 || p.G != 255 || p.B != 255 {
		t.Fatalf("outside pixel = %+v, want paper", p)
	}
}

func TestElementsAreClippedToRegion(t *testing.T) {
	surf := NewGGSurface(Options{})
	s := photoScene(t, surf)
	// A large blue image centered on the left edge of the region.
	_, err := s.AddElement(domain.SceneElement{
		Kind:      domain.KindImage,
		Asset:     &domain.AssetRef{Raster: solid(10, 10, color.RGBA{B: 255, A: 255})},
		Width:     60,
		Height:    60,
		Transform: domain.Transform{X: 55, Y: 50},
	})
	if err != nil {
		t.Fatalf("AddElement: %v", err)
	}
	img := surf.Image()
	if p := PixelAt(img, 70, 50); p.B < 200 || p.R > 60 {
		t.Fatalf("inside pixel = %+v, want blue", p)
	}
	if p := PixelAt(img, 40, 50); p.B != 255 || p.R != 255 || p.G != 255 {
		t.Fatalf("pixel left of region = %+v, want untouched paper", p)
	}
}

func TestTextAndPlaceholderRender(t *testing.T) {
	surf := NewGGSurface(Options{ShowSelection: true})
	s := photoScene(t, surf)
	id, err := s.AddElement(domain.SceneElement{Kind: domain.KindText, Text: "Hi\nthere",
		Style: domain.Style{Fill: "#00ff00", FontSize: 18, CharSpacing: 1}, Transform: domain.Transform{X: 100, Y: 50, Angle: 15}})
	if err != nil {
		t.Fatalf("AddElement text: %v", err)
	}
	_ = s.Select(id)
	if _, err := s.AddElement(domain.SceneElement{Kind: domain.KindPlaceholder, Width: 40, Height: 30, Label: "Logo",
		Transform: domain.Transform{X: 80, Y: 40}}); err != nil {
		t.Fatalf("AddElement placeholder: %v", err)
	}
	b, err := s.Snapshot()
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(b))
	if err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if img.Bounds().Dx() != 200 || img.Bounds().Dy() != 100 {
		t.Fatalf("snapshot size = %v", img.Bounds())
	}
	green := 0
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if p := PixelAt(img, x, y); p.G > 150 && p.R < 150 {
				green++
			}
		}
	}
	if green == 0 {
		t.Fatalf("no text pixels rendered")
	}
}

func TestRenderReportsMissingRaster(t *testing.T) {
	surf := NewGGSurface(Options{})
	s := photoScene(t, surf)
	_, _ = s.AddElement(domain.SceneElement{Kind: domain.KindImage, Width: 10, Height: 10, Transform: domain.Transform{X: 100, Y: 50}})
	if err := surf.Render(s.Frame()); err == nil {
		t.Fatalf("expected error for image without raster")
	}
	if _, err := NewGGSurface(Options{}).Snapshot(); err == nil {
		t.Fatalf("snapshot before render should fail")
	}
}
