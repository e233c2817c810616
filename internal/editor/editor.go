/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package editor keeps the style controls and the selected element in sync.
package editor

import (
	"errors"
	"fmt"
	"strings"

	"bagstudio/internal/clip"
	"bagstudio/internal/domain"
	"bagstudio/internal/fields"
	"bagstudio/internal/scene"
	"bagstudio/internal/undo"
	"bagstudio/internal/vector"

	"github.com/go-playground/validator/v10"
)

// EditState mirrors the property panel.
type EditState struct {
	Color      string
	FontSize   float64
	FontFamily string
	Text       string
}

// DefaultState is shown while nothing is selected.
func DefaultState() EditState {
	return EditState{Color: "#000000", FontSize: 20, FontFamily: "Arial"}
}

var validate = validator.New()

// colorRule matches the template schema's fill pattern: #rgb, #rrggbb or #rrggbbaa.
const colorRule = "required,hexcolor,len=4|len=7|len=9"

func checkColor(hex string) error {
	err := validate.Var(hex, colorRule)
	if err == nil {
		return nil
	}
	var ves validator.ValidationErrors
	if !errors.As(err, &ves) || len(ves) == 0 {
		return &domain.ValidationError{Field: "color", Reason: err.Error()}
	}
	reason := fmt.Sprintf("%q is not a hex color", hex)
	if ves[0].Tag() == "required" {
		reason = "color is required"
	}
	return &domain.ValidationError{Field: "color", Reason: reason}
}

// Options configures an Editor.
type Options struct {
	Defaults EditState
	// SnapPx is the smart-guide threshold; zero disables snapping.
	SnapPx float64
	View   undo.View
}

// Editor applies property edits to the selected element and records undo
// history. It runs on the loop goroutine.
type Editor struct {
	scene   *scene.Scene
	binder  *fields.Binder
	history *undo.Manager
	opts    Options
	state   EditState
	guides  []vector.GuideLine
	unsub   []func()

	// OnStateChanged fires whenever the edit state was repopulated.
	OnStateChanged func(EditState)
}

// New attaches an editor to s. binder may be nil when no template is used.
func New(s *scene.Scene, binder *fields.Binder, history *undo.Manager, opts Options) *Editor {
	if opts.Defaults == (EditState{}) {
		opts.Defaults = DefaultState()
	}
	if opts.View == "" {
		opts.View = undo.Front
	}
	if history == nil {
		history = undo.NewManager(undo.Config{})
	}
	e := &Editor{scene: s, binder: binder, history: history, opts: opts, state: opts.Defaults}
	e.unsub = append(e.unsub,
		s.OnSelectionChanged(func(string) { e.sync() }),
		s.OnElementModified(e.modified),
	)
	e.sync()
	return e
}

// Close detaches the editor from the scene.
func (e *Editor) Close() {
	for _, fn := range e.unsub {
		fn()
	}
	e.unsub = nil
}

func (e *Editor) modified(c scene.Change) {
	switch c.Kind {
	case scene.ChangeBackground, scene.ChangeCleared:
		e.history.Clear(e.opts.View)
	}
	if sel, ok := e.scene.Selected(); ok && (c.ElementID == "" || c.ElementID == sel.ID) {
		e.sync()
	}
}

// sync populates the edit state from the selection or resets it.
func (e *Editor) sync() {
	el, ok := e.scene.Selected()
	next := e.opts.Defaults
	if ok {
		if el.Style.Fill != "" {
			next.Color = el.Style.Fill
		}
		if el.Style.FontSize > 0 {
			next.FontSize = el.Style.FontSize
		}
		if el.Style.FontFamily != "" {
			next.FontFamily = el.Style.FontFamily
		}
		next.Text = el.Text
	}
	if next == e.state {
		return
	}
	e.state = next
	if e.OnStateChanged != nil {
		e.OnStateChanged(next)
	}
}

// State returns the current edit state.
func (e *Editor) State() EditState { return e.state }

// Guides returns the guide lines of the last snapped move.
func (e *Editor) Guides() []vector.GuideLine { return e.guides }

// Select makes id the active element.
func (e *Editor) Select(id string) error { return e.scene.Select(id) }

// ClearSelection deselects and resets the edit state to defaults.
func (e *Editor) ClearSelection() { e.scene.ClearSelection() }

// recorded runs op and records the prior state for undo only if op succeeds.
func (e *Editor) recorded(op func() error) error {
	before := e.scene.Elements()
	if err := op(); err != nil {
		return err
	}
	e.history.Record(e.opts.View, before)
	return nil
}

// update applies fn to the selected element. Without a selection only the
// edit state changes so the next new element picks it up.
func (e *Editor) update(apply func(*EditState), fn func(*domain.SceneElement)) error {
	sel, ok := e.scene.Selected()
	if !ok {
		next := e.state
		apply(&next)
		e.state = next
		return nil
	}
	return e.recorded(func() error { return e.scene.UpdateElement(sel.ID, fn) })
}

// SetColor sets the fill of the selected element.
func (e *Editor) SetColor(hex string) error {
	hex = strings.TrimSpace(hex)
	if err := checkColor(hex); err != nil {
		return err
	}
	return e.update(func(s *EditState) { s.Color = hex }, func(el *domain.SceneElement) { el.Style.Fill = hex })
}

// SetFontSize sets the font size in pixels.
func (e *Editor) SetFontSize(px float64) error {
	if px <= 0 || px > 1000 {
		return &domain.ValidationError{Field: "fontSize", Reason: "font size must be between 1 and 1000"}
	}
	return e.update(func(s *EditState) { s.FontSize = px }, func(el *domain.SceneElement) { el.Style.FontSize = px })
}

// SetFontFamily sets the font family.
func (e *Editor) SetFontFamily(family string) error {
	family = strings.TrimSpace(family)
	if family == "" {
		return &domain.ValidationError{Field: "fontFamily", Reason: "font family is required"}
	}
	return e.update(func(s *EditState) { s.FontFamily = family }, func(el *domain.SceneElement) { el.Style.FontFamily = family })
}

// SetText edits the selected text element. Required text fields go through
// the field binder so completeness stays accurate.
func (e *Editor) SetText(text string) error {
	sel, ok := e.scene.Selected()
	if !ok {
		e.state.Text = text
		return nil
	}
	if sel.Kind != domain.KindText {
		return &domain.ValidationError{Field: "text", Reason: "only text elements have text"}
	}
	return e.recorded(func() error {
		if sel.RequiredFieldID != "" && e.binder != nil {
			return e.binder.SetText(sel.RequiredFieldID, text)
		}
		return e.scene.UpdateElement(sel.ID, func(el *domain.SceneElement) { el.Text = text })
	})
}

// AddText places a new text element at the center of the clip region using
// the current edit state and selects it.
func (e *Editor) AddText(text string) (string, error) {
	region, ok := e.scene.Region()
	if !ok {
		return "", domain.ErrClipRegionMissing
	}
	c := clip.Rect(region).Center()
	var id string
	err := e.recorded(func() (err error) {
		id, err = e.scene.AddElement(domain.SceneElement{
			Kind:      domain.KindText,
			Text:      text,
			Transform: domain.Transform{X: c.X, Y: c.Y},
			Style:     domain.Style{Fill: e.state.Color, FontSize: e.state.FontSize, FontFamily: e.state.FontFamily},
		})
		return err
	})
	if err != nil {
		return "", err
	}
	return id, e.scene.Select(id)
}

// AddImage places el centered in the clip region, scaled down to fit, and
// selects it.
func (e *Editor) AddImage(el domain.SceneElement) (string, error) {
	region, ok := e.scene.Region()
	if !ok {
		return "", domain.ErrClipRegionMissing
	}
	el.Kind = domain.KindImage
	r := clip.Rect(region)
	sz := e.scene.LocalSize(el)
	if el.Transform == (domain.Transform{}) {
		c := r.Center()
		el.Transform = domain.Transform{X: c.X, Y: c.Y, ScaleX: 1, ScaleY: 1}
		if !sz.Empty() {
			_, s := vector.FitContain(sz, r, 0.5)
			if s < 1 {
				el.Transform.ScaleX, el.Transform.ScaleY = s, s
			}
		}
	}
	var id string
	err := e.recorded(func() (err error) {
		id, err = e.scene.AddElement(el)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, e.scene.Select(id)
}

// Move offsets the selected element. With snap enabled the moved bounds
// align to the clip region and the other elements when within SnapPx.
func (e *Editor) Move(dx, dy float64, snap bool) error {
	sel, ok := e.scene.Selected()
	if !ok {
		return scene.ErrNotFound
	}
	e.guides = nil
	if snap && e.opts.SnapPx > 0 {
		moved := e.scene.Bounds(sel)
		moved.X += dx
		moved.Y += dy
		var others []vector.Rect
		for _, o := range e.scene.Elements() {
			if o.ID != sel.ID {
				others = append(others, e.scene.Bounds(o))
			}
		}
		var region vector.Rect
		if cr, ok := e.scene.Region(); ok {
			region = clip.Rect(cr)
		}
		snapped, guides := vector.ComputeSmartGuides(moved, vector.RegionAnchors(region, others),
			vector.SnapOptions{Threshold: e.opts.SnapPx, SnapToEdges: true, SnapToCenters: true})
		dx += snapped.X - moved.X
		dy += snapped.Y - moved.Y
		e.guides = guides
	}
	return e.recorded(func() error {
		return e.scene.UpdateElement(sel.ID, func(el *domain.SceneElement) {
			el.Transform.X += dx
			el.Transform.Y += dy
		})
	})
}

// Rotate sets the angle of the selected element in degrees.
func (e *Editor) Rotate(deg float64) error {
	sel, ok := e.scene.Selected()
	if !ok {
		return scene.ErrNotFound
	}
	return e.recorded(func() error {
		return e.scene.UpdateElement(sel.ID, func(el *domain.SceneElement) { el.Transform.Angle = deg })
	})
}

// Resize sets the scale of the selected element.
func (e *Editor) Resize(sx, sy float64) error {
	if sx <= 0 || sy <= 0 {
		return &domain.ValidationError{Field: "scale", Reason: "scale must be positive"}
	}
	sel, ok := e.scene.Selected()
	if !ok {
		return scene.ErrNotFound
	}
	return e.recorded(func() error {
		return e.scene.UpdateElement(sel.ID, func(el *domain.SceneElement) {
			el.Transform.ScaleX, el.Transform.ScaleY = sx, sy
		})
	})
}

// Delete removes the selected element. Locked elements fail with
// LockedElementError and the scene is left unchanged.
func (e *Editor) Delete() error {
	sel, ok := e.scene.Selected()
	if !ok {
		return scene.ErrNotFound
	}
	if sel.Locked {
		return &domain.LockedElementError{ElementID: sel.ID, Op: "delete"}
	}
	return e.recorded(func() error { return e.scene.RemoveElement(sel.ID) })
}

// Undo restores the view state before the last edit.
func (e *Editor) Undo() (bool, error) {
	els, ok := e.history.Undo(e.opts.View, e.scene.Elements())
	if !ok {
		return false, nil
	}
	return true, e.restore(els)
}

// Redo reapplies the last undone edit.
func (e *Editor) Redo() (bool, error) {
	els, ok := e.history.Redo(e.opts.View, e.scene.Elements())
	if !ok {
		return false, nil
	}
	return true, e.restore(els)
}

func (e *Editor) restore(els []domain.SceneElement) error {
	if err := e.scene.Restore(els); err != nil {
		return err
	}
	if e.binder != nil {
		e.binder.Reconcile()
	}
	return nil
}
