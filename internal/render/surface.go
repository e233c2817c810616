/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package render rasterizes scene frames with gogpu/gg. Every element is
// drawn through an absolute clip of the active region: content outside the
// product photo never reaches the canvas.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"strings"

	"bagstudio/internal/domain"
	"bagstudio/internal/scene"
	"bagstudio/internal/textlayout"
	"bagstudio/internal/vector"

	"github.com/gogpu/gg"
	"github.com/gogpu/gg/text"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/f64"
)

// Options configures a GGSurface.
type Options struct {
	Fonts *textlayout.FontLibrary
	// Paper is the canvas color behind the photo.
	Paper string
	// ShowSelection outlines the selected element.
	ShowSelection bool
}

// GGSurface implements scene.Surface.
type GGSurface struct {
	opts    Options
	sources map[string]*text.FontSource
	last    *gg.Context
}

var _ scene.Surface = (*GGSurface)(nil)

// NewGGSurface returns a surface drawing with fonts from opts.Fonts.
func NewGGSurface(opts Options) *GGSurface {
	if opts.Fonts == nil {
		opts.Fonts = textlayout.NewFontLibrary()
	}
	if opts.Paper == "" {
		opts.Paper = "#ffffff"
	}
	return &GGSurface{opts: opts, sources: map[string]*text.FontSource{}}
}

// Render draws f into a fresh context which Snapshot then encodes.
func (s *GGSurface) Render(f scene.Frame) error {
	w, h := int(math.Ceil(f.Canvas.W)), int(math.Ceil(f.Canvas.H))
	if w <= 0 || h <= 0 {
		return errors.New("render: empty canvas")
	}
	dc := gg.NewContext(w, h)
	dc.ClearWithColor(gg.Hex(s.opts.Paper))
	if s.last != nil {
		_ = s.last.Close()
	}
	s.last = dc

	if f.Background != nil && f.HasRegion && f.Background.Asset.Raster != nil {
		dc.DrawImageEx(gg.ImageBufFromImage(f.Background.Asset.Raster), gg.DrawImageOptions{
			X: f.Region.X, Y: f.Region.Y, DstWidth: f.Region.Width, DstHeight: f.Region.Height,
		})
	}
	if !f.HasRegion {
		return nil
	}
	region := vector.R(f.Region.X, f.Region.Y, f.Region.Width, f.Region.Height)
	var errs []error
	for _, el := range f.Elements {
		if el.ClipRegionID != f.Region.ID {
			errs = append(errs, fmt.Errorf("element %s: stale clip region", el.ID))
			continue
		}
		var err error
		switch el.Kind {
		case domain.KindImage:
			err = s.drawImage(dc, el, region)
		case domain.KindText:
			err = s.drawText(dc, el, region)
		case domain.KindPlaceholder:
			err = s.drawPlaceholder(dc, el, region)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("element %s: %w", el.ID, err))
		}
		if s.opts.ShowSelection && el.ID == f.Selected {
			s.outline(dc, el, region)
		}
	}
	return errors.Join(errs...)
}

// Snapshot encodes the last rendered frame as PNG.
func (s *GGSurface) Snapshot() ([]byte, error) {
	if s.last == nil {
		return nil, errors.New("render: nothing rendered yet")
	}
	var buf bytes.Buffer
	if err := s.last.EncodePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Image returns the last rendered frame.
func (s *GGSurface) Image() image.Image {
	if s.last == nil {
		return nil
	}
	return s.last.Image()
}

func (s *GGSurface) drawImage(dc *gg.Context, el domain.SceneElement, region vector.Rect) error {
	if el.Asset == nil || el.Asset.Raster == nil {
		return errors.New("image element has no raster")
	}
	src := el.Asset.Raster
	b := src.Bounds()
	w, h := el.Width, el.Height
	if w <= 0 || h <= 0 {
		w, h = float64(b.Dx()), float64(b.Dy())
	}
	s.composite(dc, src, vector.Size{W: w, H: h}, el, region)
	return nil
}

func (s *GGSurface) drawText(dc *gg.Context, el domain.SceneElement, region vector.Rect) error {
	if strings.TrimSpace(el.Text) == "" {
		return nil
	}
	layer, size, err := s.textLayer(el)
	if err != nil {
		return err
	}
	s.composite(dc, layer, size, el, region)
	return nil
}

// textLayer draws the element's text unrotated onto a tight transparent image.
func (s *GGSurface) textLayer(el domain.SceneElement) (image.Image, vector.Size, error) {
	face, err := s.face(el.Style.FontFamily, fontSize(el.Style))
	if err != nil {
		return nil, vector.Size{}, err
	}
	m := face.Metrics()
	lines := strings.Split(el.Text, "\n")
	lineH := m.Ascent + m.Descent
	probe := gg.NewContext(1, 1)
	defer probe.Close()
	probe.SetFont(face)
	width := 0.0
	for _, ln := range lines {
		if w := lineWidth(probe, ln, el.Style.CharSpacing); w > width {
			width = w
		}
	}
	height := float64(len(lines))*lineH + float64(len(lines)-1)*m.LineGap
	if width <= 0 || height <= 0 {
		return nil, vector.Size{}, errors.New("text measures empty")
	}
	lc := gg.NewContext(int(math.Ceil(width)), int(math.Ceil(height)))
	defer lc.Close()
	lc.SetFont(face)
	lc.SetHexColor(fill(el.Style))
	y := m.Ascent
	for _, ln := range lines {
		if el.Style.CharSpacing == 0 {
			lc.DrawString(ln, 0, y)
		} else {
			x := 0.0
			for _, r := range ln {
				g := string(r)
				lc.DrawString(g, x, y)
				gw, _ := lc.MeasureString(g)
				x += gw + el.Style.CharSpacing
			}
		}
		y += lineH + m.LineGap
	}
	return lc.Image(), vector.Size{W: width, H: height}, nil
}

func lineWidth(dc *gg.Context, ln string, spacing float64) float64 {
	w, _ := dc.MeasureString(ln)
	if n := len([]rune(ln)); n > 1 {
		w += spacing * float64(n-1)
	}
	return w
}

func (s *GGSurface) drawPlaceholder(dc *gg.Context, el domain.SceneElement, region vector.Rect) error {
	w, h := el.Width, el.Height
	if w <= 0 || h <= 0 {
		return errors.New("placeholder has no size")
	}
	t := el.Transform.Normalized()
	dc.Push()
	dc.ClipRect(region.X, region.Y, region.W, region.H)
	dc.Translate(t.X, t.Y)
	dc.Rotate(vector.Deg(t.Angle))
	dc.Shear(math.Tan(vector.Deg(t.SkewX)), math.Tan(vector.Deg(t.SkewY)))
	dc.Scale(t.ScaleX, t.ScaleY)
	dc.SetRGBA(0.5, 0.5, 0.5, 0.15*el.Style.Alpha())
	dc.DrawRectangle(-w/2, -h/2, w, h)
	ferr := dc.Fill()
	dc.SetHexColor("#888888")
	dc.SetLineWidth(1.5)
	dc.SetDash(6, 4)
	dc.DrawRectangle(-w/2, -h/2, w, h)
	serr := dc.Stroke()
	dc.ClearDash()
	dc.Pop()
	dc.ResetClip()
	if label := strings.TrimSpace(el.Label); label != "" {
		if face, err := s.face(el.Style.FontFamily, 14); err == nil {
			dc.SetFont(face)
			dc.SetHexColor("#555555")
			c := vector.Pt{X: t.X, Y: t.Y}
			if region.Contains(c) {
				dc.DrawStringAnchored(label, c.X, c.Y, 0.5, 0.5)
			}
		}
	}
	return errors.Join(ferr, serr)
}

func (s *GGSurface) outline(dc *gg.Context, el domain.SceneElement, region vector.Rect) {
	sz := vector.Size{W: el.Width, H: el.Height}
	if el.Kind == domain.KindText {
		if _, ts, err := s.textLayer(el); err == nil {
			sz = ts
		}
	}
	b := vector.TransformedBounds(vector.R(-sz.W/2, -sz.H/2, sz.W, sz.H), scene.Matrix(el.Transform)).Intersection(region)
	if b.Empty() {
		return
	}
	dc.SetHexColor("#1e88e5")
	dc.SetLineWidth(1)
	dc.DrawRectangle(b.X, b.Y, b.W, b.H)
	_ = dc.Stroke()
}

// composite maps src (pixel space) onto the element's local box of size,
// transforms it to canvas space, and draws only the part inside region.
func (s *GGSurface) composite(dc *gg.Context, src image.Image, size vector.Size, el domain.SceneElement, region vector.Rect) {
	sb := src.Bounds()
	if sb.Empty() || size.Empty() {
		return
	}
	local := vector.Translate(-size.W/2, -size.H/2).
		Mul(vector.Scale(size.W/float64(sb.Dx()), size.H/float64(sb.Dy()))).
		Mul(vector.Translate(-float64(sb.Min.X), -float64(sb.Min.Y)))
	m := scene.Matrix(el.Transform).Mul(local)
	dst := vector.TransformedBounds(vector.R(float64(sb.Min.X), float64(sb.Min.Y), float64(sb.Dx()), float64(sb.Dy())), m).Intersection(region)
	dst = vector.R(math.Floor(dst.X), math.Floor(dst.Y), math.Ceil(dst.W)+1, math.Ceil(dst.H)+1).Intersection(region)
	if dst.Empty() {
		return
	}
	layer := image.NewRGBA(image.Rect(0, 0, int(math.Ceil(dst.W)), int(math.Ceil(dst.H))))
	toLayer := vector.Translate(-dst.X, -dst.Y).Mul(m)
	xdraw.BiLinear.Transform(layer, aff3(toLayer), src, sb, xdraw.Over, nil)
	dc.DrawImageEx(gg.ImageBufFromImage(layer), gg.DrawImageOptions{
		X: dst.X, Y: dst.Y, Opacity: el.Style.Alpha(),
	})
}

func aff3(m vector.Affine2D) f64.Aff3 { return f64.Aff3{m.A, m.C, m.E, m.B, m.D, m.F} }

func (s *GGSurface) face(family string, size float64) (text.Face, error) {
	f, _ := s.opts.Fonts.Lookup(family)
	if f == nil {
		return nil, errors.New("no font available")
	}
	src, ok := s.sources[f.Family]
	if !ok {
		var err error
		src, err = text.NewFontSource(f.Data)
		if err != nil {
			return nil, fmt.Errorf("font %s: %w", f.Family, err)
		}
		s.sources[f.Family] = src
	}
	return src.Face(size), nil
}

func fontSize(st domain.Style) float64 {
	if st.FontSize > 0 {
		return st.FontSize
	}
	return 20
}

func fill(st domain.Style) string {
	if st.Fill == "" {
		return "#000000"
	}
	return st.Fill
}

// PixelAt is a small helper for inspecting rendered output.
func PixelAt(img image.Image, x, y int) color.NRGBA {
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}
