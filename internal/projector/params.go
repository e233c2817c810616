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

// Params are the tunable constants of the alternate-view heuristic. They are
// hand-picked to look plausible for a box seen from the front-left and are
// not derived from any 3-D model.
type Params struct {
	// Sxf, Syf scale the front plane horizontally and vertically.
	Sxf float64 `yaml:"sxf" json:"sxf"`
	Syf float64 `yaml:"syf" json:"syf"`
	// Kxf, Kyf couple one axis into the other on the front plane.
	Kxf float64 `yaml:"kxf" json:"kxf"`
	Kyf float64 `yaml:"kyf" json:"kyf"`
	// Ox, Oy offset the projected plane in canvas pixels.
	Ox float64 `yaml:"ox" json:"ox"`
	Oy float64 `yaml:"oy" json:"oy"`
	// Sxs, Kys pull elements towards the side plane, weighted by W1 and W2.
	Sxs float64 `yaml:"sxs" json:"sxs"`
	Kys float64 `yaml:"kys" json:"kys"`
	// Kxs is a side-plane shear in degrees added to SkewY.
	Kxs float64 `yaml:"kxs" json:"kxs"`
	W1  float64 `yaml:"w1" json:"w1"`
	W2  float64 `yaml:"w2" json:"w2"`
	// Depth shrinks elements further down the canvas.
	Depth float64 `yaml:"depth" json:"depth"`
	// HAngle, VAngle add rotation in degrees by vertical/horizontal position.
	HAngle float64 `yaml:"h_angle" json:"hAngle"`
	VAngle float64 `yaml:"v_angle" json:"vAngle"`

	// Text-only corrections: glyph runs distort more than solid shapes.
	TextSkewX   float64 `yaml:"text_skew_x" json:"textSkewX"`
	TextSkewY   float64 `yaml:"text_skew_y" json:"textSkewY"`
	TextSpacing float64 `yaml:"text_spacing" json:"textSpacing"`
	TextOffsetX float64 `yaml:"text_offset_x" json:"textOffsetX"`
}

// DefaultParams returns the shipped projection constants.
func DefaultParams() Params {
	return Params{
		Sxf:         0.85,
		Syf:         0.9,
		Kxf:         -0.05,
		Kyf:         0.08,
		Ox:          40,
		Oy:          10,
		Sxs:         0.35,
		Kys:         0.25,
		Kxs:         2,
		W1:          0.1,
		W2:          0.1,
		Depth:       0.15,
		HAngle:      -8,
		VAngle:      4,
		TextSkewX:   -6,
		TextSkewY:   3,
		TextSpacing: 1.5,
		TextOffsetX: 4,
	}
}
