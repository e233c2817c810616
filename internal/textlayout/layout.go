/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package textlayout

// Text measurement for sizing text elements. Multi-line text splits on
// newlines; width is the widest line.

import (
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Metrics provides font metrics in pixels for the resolved face.
type Metrics struct {
	Ascent, Descent, LineGap float64
}

// LineHeight is ascent + descent + gap.
func (m Metrics) LineHeight() float64 { return m.Ascent + m.Descent + m.LineGap }

// Box is a measured text block.
type Box struct {
	Width   float64
	Height  float64
	Lines   []string
	Metrics Metrics
}

// Measurer measures text in a family at a pixel size.
type Measurer interface {
	Measure(text, family string, sizePx, charSpacing float64) Box
}

// Measure measures text with faces from lib at 72 DPI (1pt = 1px).
// charSpacing adds that many pixels after every glyph but the last.
func (fl *FontLibrary) Measure(text, family string, sizePx, charSpacing float64) Box {
	if sizePx <= 0 {
		sizePx = 20
	}
	var face font.Face = basicfont.Face7x13
	if f, _ := fl.Lookup(family); f != nil {
		if ff, err := opentype.NewFace(f.OT, &opentype.FaceOptions{Size: sizePx, DPI: 72, Hinting: font.HintingNone}); err == nil {
			defer ff.Close()
			face = ff
		}
	}
	return measureWith(face, text, charSpacing)
}

// BasicMeasurer uses the fixed 7x13 face; deterministic for tests.
type BasicMeasurer struct{}

func (BasicMeasurer) Measure(text, _ string, _ float64, charSpacing float64) Box {
	return measureWith(basicfont.Face7x13, text, charSpacing)
}

func measureWith(face font.Face, text string, charSpacing float64) Box {
	fm := face.Metrics()
	met := Metrics{
		Ascent:  i26(fm.Ascent),
		Descent: i26(fm.Descent),
		LineGap: i26(fm.Height - fm.Ascent - fm.Descent),
	}
	if met.LineGap < 0 {
		met.LineGap = 0
	}
	lines := strings.Split(text, "\n")
	d := &font.Drawer{Face: face}
	box := Box{Lines: lines, Metrics: met}
	for _, ln := range lines {
		w := i26(d.MeasureString(ln))
		if n := len([]rune(ln)); n > 1 {
			w += charSpacing * float64(n-1)
		}
		if w > box.Width {
			box.Width = w
		}
	}
	box.Height = float64(len(lines))*(met.Ascent+met.Descent) + float64(len(lines)-1)*met.LineGap
	return box
}

func i26(v fixed.Int26_6) float64 { return float64(v) / 64 }
