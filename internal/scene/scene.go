/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package scene owns the ordered collection of placed design elements, the
// product photo they sit on, and the active clip region. It is not safe for
// concurrent use: every call must come from the loop goroutine. Async work
// captures a Token and checks it with Valid before applying results.
package scene

import (
	"errors"
	"fmt"
	"image"
	"log/slog"

	"bagstudio/internal/clip"
	"bagstudio/internal/domain"
	applog "bagstudio/internal/log"
	"bagstudio/internal/textlayout"
	"bagstudio/internal/vector"

	"github.com/google/uuid"
	"go.uber.org/multierr"
)

// ErrNotFound is returned for unknown element ids.
var ErrNotFound = errors.New("scene: element not found")

// Background is the product photo.
type Background struct {
	ID     string
	Asset  domain.AssetRef
	Width  float64
	Height float64
}

// Size returns the photo size, taken from the raster when not declared.
func (b *Background) Size() vector.Size {
	if b == nil {
		return vector.Size{}
	}
	if (b.Width <= 0 || b.Height <= 0) && b.Asset.Raster != nil {
		r := b.Asset.Raster.Bounds()
		return vector.Size{W: float64(r.Dx()), H: float64(r.Dy())}
	}
	return vector.Size{W: b.Width, H: b.Height}
}

// Token identifies the scene generation an async operation was started in.
type Token struct {
	Generation uint64
	Version    uint64
}

// ChangeKind classifies element notifications.
type ChangeKind int

const (
	ChangeAdded ChangeKind = iota
	ChangeRemoved
	ChangeReplaced
	ChangeUpdated
	ChangeCleared
	ChangeBackground
	ChangeRestored
)

func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeReplaced:
		return "replaced"
	case ChangeUpdated:
		return "updated"
	case ChangeCleared:
		return "cleared"
	case ChangeBackground:
		return "background"
	case ChangeRestored:
		return "restored"
	}
	return "unknown"
}

// Change is delivered to OnElementModified observers.
type Change struct {
	Kind      ChangeKind
	ElementID string
	Version   uint64
}

// Options configures a Scene.
type Options struct {
	Canvas   vector.Size
	Margin   float64
	Surface  Surface
	Measurer textlayout.Measurer
	Logger   *slog.Logger
}

// Scene is the single owner of design state.
type Scene struct {
	clip     *clip.Manager
	surface  Surface
	measurer textlayout.Measurer
	log      *slog.Logger

	bg       *Background
	elements []domain.SceneElement
	selected string

	version    uint64
	generation uint64

	nextObs  int
	selObs   []observer[string]
	modObs   []observer[Change]
	rendered int
}

type observer[T any] struct {
	id int
	fn func(T)
}

// New returns an empty scene.
func New(opts Options) *Scene {
	if opts.Canvas.Empty() {
		opts.Canvas = vector.Size{W: 800, H: 600}
	}
	if opts.Surface == nil {
		opts.Surface = &RecordingSurface{}
	}
	if opts.Measurer == nil {
		opts.Measurer = textlayout.BasicMeasurer{}
	}
	if opts.Logger == nil {
		opts.Logger = applog.WithComponent("scene")
	}
	return &Scene{
		clip:     clip.NewManager(opts.Canvas, opts.Margin),
		surface:  opts.Surface,
		measurer: opts.Measurer,
		log:      opts.Logger,
	}
}

// Version increments on every mutation.
func (s *Scene) Version() uint64 { return s.version }

// Generation increments when in-flight work must be discarded.
func (s *Scene) Generation() uint64 { return s.generation }

// Token captures the current generation and version.
func (s *Scene) Token() Token { return Token{Generation: s.generation, Version: s.version} }

// Valid reports whether work started at t may still be applied.
func (s *Scene) Valid(t Token) bool { return t.Generation == s.generation }

// Unchanged reports whether nothing at all changed since t.
func (s *Scene) Unchanged(t Token) bool { return t == s.Token() }

// Invalidate discards all in-flight work without touching content, e.g.
// when the customer leaves the editor.
func (s *Scene) Invalidate() {
	s.generation++
	s.log.Debug("scene invalidated", slog.Uint64("generation", s.generation))
}

// Canvas returns the canvas size.
func (s *Scene) Canvas() vector.Size { return s.clip.Canvas() }

// Region returns the active clip region.
func (s *Scene) Region() (domain.ClipRegion, bool) { return s.clip.Current() }

// Background returns the current photo or nil.
func (s *Scene) Background() *Background {
	if s.bg == nil {
		return nil
	}
	b := *s.bg
	return &b
}

// SetBackground replaces the product photo. It clears every element,
// recomputes the clip region and invalidates in-flight work.
func (s *Scene) SetBackground(bg Background) error {
	size := bg.Size()
	if size.Empty() {
		return &domain.AssetError{Op: "background", Ref: bg.Asset.Ref, Err: errors.New("photo has no size")}
	}
	if bg.ID == "" {
		bg.ID = uuid.NewString()
	}
	bg.Width, bg.Height = size.W, size.H
	s.bg = &bg
	s.elements = nil
	s.clearSelection()
	region, _ := s.clip.Recompute(size)
	s.generation++
	s.bump(Change{Kind: ChangeBackground})
	s.log.Debug("background set", slog.String("background", bg.ID), slog.String("region", region.ID),
		slog.Float64("x", region.X), slog.Float64("y", region.Y),
		slog.Float64("w", region.Width), slog.Float64("h", region.Height))
	return nil
}

// Reset clears everything including the background and clip region.
func (s *Scene) Reset() {
	s.bg = nil
	s.elements = nil
	s.clearSelection()
	s.clip.Clear()
	s.generation++
	s.bump(Change{Kind: ChangeCleared})
}

// ClearElements removes every element but keeps the background. In-flight
// work for the previous elements is invalidated.
func (s *Scene) ClearElements() {
	s.elements = nil
	s.clearSelection()
	s.generation++
	s.bump(Change{Kind: ChangeCleared})
}

func (s *Scene) prepare(el *domain.SceneElement) error {
	if !el.Kind.Valid() {
		return fmt.Errorf("scene: unknown element kind %q", el.Kind)
	}
	if err := s.clip.Attach(el); err != nil {
		return err
	}
	if el.ID == "" {
		el.ID = uuid.NewString()
	}
	el.Transform = el.Transform.Normalized()
	return nil
}

// AddElement places el on top of the scene and returns its id.
func (s *Scene) AddElement(el domain.SceneElement) (string, error) {
	el = el.Clone()
	if err := s.prepare(&el); err != nil {
		return "", err
	}
	if s.index(el.ID) >= 0 {
		return "", fmt.Errorf("scene: duplicate element id %s", el.ID)
	}
	s.elements = append(s.elements, el)
	s.bump(Change{Kind: ChangeAdded, ElementID: el.ID})
	return el.ID, nil
}

// InsertElements adds a batch atomically with a single render. Either all
// elements are added or none.
func (s *Scene) InsertElements(els []domain.SceneElement) ([]string, error) {
	batch := domain.CloneElements(els)
	seen := make(map[string]bool, len(batch))
	for i := range batch {
		if err := s.prepare(&batch[i]); err != nil {
			return nil, err
		}
		if seen[batch[i].ID] || s.index(batch[i].ID) >= 0 {
			return nil, fmt.Errorf("scene: duplicate element id %s", batch[i].ID)
		}
		seen[batch[i].ID] = true
	}
	ids := make([]string, len(batch))
	for i, el := range batch {
		ids[i] = el.ID
	}
	s.elements = append(s.elements, batch...)
	s.bump(Change{Kind: ChangeAdded})
	return ids, nil
}

// RemoveElement deletes an element. Locked elements are rejected and the
// scene is left unchanged.
func (s *Scene) RemoveElement(id string) error {
	i := s.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if s.elements[i].Locked {
		return &domain.LockedElementError{ElementID: id, Op: "remove"}
	}
	s.elements = append(s.elements[:i], s.elements[i+1:]...)
	if s.selected == id {
		s.clearSelection()
	}
	s.bump(Change{Kind: ChangeRemoved, ElementID: id})
	return nil
}

// ReplaceElement swaps an unlocked element for el, keeping its z-order.
func (s *Scene) ReplaceElement(id string, el domain.SceneElement) error {
	i := s.index(id)
	if i < 0 {
		return ErrNotFound
	}
	if s.elements[i].Locked {
		return &domain.LockedElementError{ElementID: id, Op: "replace"}
	}
	return s.replaceAt(i, el, false)
}

// BindField replaces the element bound to a required field. It is the only
// replacement permitted on a locked element; el must carry the same
// requiredFieldId and inherits the lock.
func (s *Scene) BindField(id string, el domain.SceneElement) error {
	i := s.index(id)
	if i < 0 {
		return ErrNotFound
	}
	cur := s.elements[i]
	if cur.RequiredFieldID == "" || cur.RequiredFieldID != el.RequiredFieldID {
		return &domain.LockedElementError{ElementID: id, Op: "bind"}
	}
	el.Locked = cur.Locked
	return s.replaceAt(i, el, true)
}

func (s *Scene) replaceAt(i int, el domain.SceneElement, newID bool) error {
	old := s.elements[i].ID
	el = el.Clone()
	if !newID && el.ID == "" {
		el.ID = old
	}
	if el.ID != old && s.index(el.ID) >= 0 {
		return fmt.Errorf("scene: duplicate element id %s", el.ID)
	}
	if err := s.prepare(&el); err != nil {
		return err
	}
	s.elements[i] = el
	if s.selected == old {
		s.selected = el.ID
		if el.ID != old {
			s.notifySelection()
		}
	}
	s.bump(Change{Kind: ChangeReplaced, ElementID: el.ID})
	return nil
}

// UpdateElement applies fn to a copy of the element and stores the result.
// Identity, binding and lock flags cannot be changed through fn.
func (s *Scene) UpdateElement(id string, fn func(*domain.SceneElement)) error {
	i := s.index(id)
	if i < 0 {
		return ErrNotFound
	}
	cur := s.elements[i]
	next := cur.Clone()
	fn(&next)
	next.ID, next.Kind, next.RequiredFieldID, next.Locked, next.ClipRegionID = cur.ID, cur.Kind, cur.RequiredFieldID, cur.Locked, cur.ClipRegionID
	next.Transform = next.Transform.Normalized()
	s.elements[i] = next
	s.bump(Change{Kind: ChangeUpdated, ElementID: id})
	return nil
}

// Restore replaces all elements wholesale, e.g. from undo history. Elements
// are re-bound to the current clip region.
func (s *Scene) Restore(els []domain.SceneElement) error {
	batch := domain.CloneElements(els)
	for i := range batch {
		if err := s.prepare(&batch[i]); err != nil {
			return err
		}
	}
	s.elements = batch
	if s.selected != "" && s.index(s.selected) < 0 {
		s.clearSelection()
	}
	s.bump(Change{Kind: ChangeRestored})
	return nil
}

// Elements returns a copy of all elements in z-order.
func (s *Scene) Elements() []domain.SceneElement { return domain.CloneElements(s.elements) }

// Len returns the number of elements.
func (s *Scene) Len() int { return len(s.elements) }

// Find returns a copy of the element with id.
func (s *Scene) Find(id string) (domain.SceneElement, bool) {
	if i := s.index(id); i >= 0 {
		return s.elements[i].Clone(), true
	}
	return domain.SceneElement{}, false
}

// FindByField returns the element bound to a required field.
func (s *Scene) FindByField(fieldID string) (domain.SceneElement, bool) {
	if fieldID == "" {
		return domain.SceneElement{}, false
	}
	for _, e := range s.elements {
		if e.RequiredFieldID == fieldID {
			return e.Clone(), true
		}
	}
	return domain.SceneElement{}, false
}

func (s *Scene) index(id string) int {
	for i := range s.elements {
		if s.elements[i].ID == id {
			return i
		}
	}
	return -1
}

// Validate reports every element whose clip region is stale.
func (s *Scene) Validate() error {
	var err error
	for _, e := range s.elements {
		if !s.clip.IsCurrent(e.ClipRegionID) {
			err = multierr.Append(err, fmt.Errorf("element %s: stale clip region %q", e.ID, e.ClipRegionID))
		}
	}
	return err
}

// LocalSize is the element's unscaled content size.
func (s *Scene) LocalSize(e domain.SceneElement) vector.Size {
	switch e.Kind {
	case domain.KindText:
		b := s.measurer.Measure(e.Text, e.Style.FontFamily, e.Style.FontSize, e.Style.CharSpacing)
		return vector.Size{W: b.Width, H: b.Height}
	case domain.KindImage:
		if (e.Width <= 0 || e.Height <= 0) && e.Asset != nil && e.Asset.Raster != nil {
			return rasterSize(e.Asset.Raster)
		}
	}
	return vector.Size{W: e.Width, H: e.Height}
}

// Matrix returns the element's local-to-canvas transform. Local
// coordinates are centered on the element.
func Matrix(t domain.Transform) vector.Affine2D {
	t = t.Normalized()
	return vector.Translate(t.X, t.Y).
		Mul(vector.Rotate(vector.Deg(t.Angle))).
		Mul(vector.Skew(vector.Deg(t.SkewX), vector.Deg(t.SkewY))).
		Mul(vector.Scale(t.ScaleX, t.ScaleY))
}

// Bounds returns the canvas-space bounding box of e.
func (s *Scene) Bounds(e domain.SceneElement) vector.Rect {
	sz := s.LocalSize(e)
	return vector.TransformedBounds(vector.R(-sz.W/2, -sz.H/2, sz.W, sz.H), Matrix(e.Transform))
}

// ElementBounds returns the bounding box of the element with id.
func (s *Scene) ElementBounds(id string) (vector.Rect, bool) {
	e, ok := s.Find(id)
	if !ok {
		return vector.Rect{}, false
	}
	return s.Bounds(e), true
}

func rasterSize(img image.Image) vector.Size {
	r := img.Bounds()
	return vector.Size{W: float64(r.Dx()), H: float64(r.Dy())}
}

// Select makes id the active element.
func (s *Scene) Select(id string) error {
	if s.index(id) < 0 {
		return ErrNotFound
	}
	if s.selected == id {
		return nil
	}
	s.selected = id
	s.notifySelection()
	s.render()
	return nil
}

// ClearSelection deselects the active element.
func (s *Scene) ClearSelection() {
	if s.selected == "" {
		return
	}
	s.clearSelection()
	s.render()
}

func (s *Scene) clearSelection() {
	if s.selected == "" {
		return
	}
	s.selected = ""
	s.notifySelection()
}

// Selected returns the active element.
func (s *Scene) Selected() (domain.SceneElement, bool) {
	if s.selected == "" {
		return domain.SceneElement{}, false
	}
	return s.Find(s.selected)
}

// OnSelectionChanged registers fn for selection changes; the id is empty
// when the selection is cleared. The returned func unsubscribes.
func (s *Scene) OnSelectionChanged(fn func(id string)) func() {
	s.nextObs++
	id := s.nextObs
	s.selObs = append(s.selObs, observer[string]{id: id, fn: fn})
	return func() { s.selObs = drop(s.selObs, id) }
}

// OnElementModified registers fn for every mutation.
func (s *Scene) OnElementModified(fn func(Change)) func() {
	s.nextObs++
	id := s.nextObs
	s.modObs = append(s.modObs, observer[Change]{id: id, fn: fn})
	return func() { s.modObs = drop(s.modObs, id) }
}

func drop[T any](obs []observer[T], id int) []observer[T] {
	out := obs[:0]
	for _, o := range obs {
		if o.id != id {
			out = append(out, o)
		}
	}
	return out
}

func (s *Scene) notifySelection() {
	for _, o := range append([]observer[string](nil), s.selObs...) {
		o.fn(s.selected)
	}
}

func (s *Scene) bump(c Change) {
	s.version++
	c.Version = s.version
	s.render()
	for _, o := range append([]observer[Change](nil), s.modObs...) {
		o.fn(c)
	}
}

// Frame returns what the surface draws.
func (s *Scene) Frame() Frame {
	region, ok := s.clip.Current()
	return Frame{
		Canvas:     s.clip.Canvas(),
		Background: s.Background(),
		Region:     region,
		HasRegion:  ok,
		Elements:   domain.CloneElements(s.elements),
		Selected:   s.selected,
		Version:    s.version,
	}
}

func (s *Scene) render() {
	s.rendered++
	if err := s.surface.Render(s.Frame()); err != nil {
		s.log.Warn("render failed", slog.Any("err", err), slog.Uint64("version", s.version))
	}
}

// Renders counts surface renders triggered by this scene.
func (s *Scene) Renders() int { return s.rendered }

// Snapshot renders the current state and returns it as PNG bytes.
func (s *Scene) Snapshot() ([]byte, error) {
	s.render()
	return s.surface.Snapshot()
}
