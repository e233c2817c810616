/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package fields tracks the customer's values for a template's required
// fields and routes them into the bound scene elements.
package fields

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"bagstudio/internal/assets"
	"bagstudio/internal/domain"
	applog "bagstudio/internal/log"
	"bagstudio/internal/loop"
	"bagstudio/internal/scene"

	"go.uber.org/multierr"
)

// Binder maps required field ids to their current values. All methods run
// on the loop goroutine.
type Binder struct {
	loop     *loop.Loop
	scene    *scene.Scene
	uploader assets.Uploader
	limits   assets.Limits
	log      *slog.Logger

	tpl       *domain.Template
	values    map[string]domain.FieldValue
	originals map[string]domain.SceneElement
	seq       map[string]uint64
	inflight  map[string]bool

	// OnBound reports the outcome of every image binding.
	OnBound func(fieldID string, err error)
}

// NewBinder returns a binder without an active template.
func NewBinder(l *loop.Loop, s *scene.Scene, up assets.Uploader, lim assets.Limits) *Binder {
	b := &Binder{loop: l, scene: s, uploader: up, limits: lim, log: applog.WithComponent("fields")}
	b.Reset(nil)
	return b
}

// Reset activates tpl and forgets every value. The current field elements
// of the scene are remembered as placeholders for ClearField. A nil
// template leaves nothing required.
func (b *Binder) Reset(tpl *domain.Template) {
	b.tpl = tpl
	b.values = map[string]domain.FieldValue{}
	b.originals = map[string]domain.SceneElement{}
	for id := range b.seq {
		b.seq[id]++
	}
	if b.seq == nil {
		b.seq = map[string]uint64{}
	}
	b.inflight = map[string]bool{}
	if tpl == nil {
		return
	}
	for _, f := range tpl.RequiredFields {
		if el, ok := b.scene.FindByField(f.ID); ok {
			b.originals[f.ID] = el
		}
	}
}

// Template returns the active template.
func (b *Binder) Template() *domain.Template { return b.tpl }

func (b *Binder) field(id string) (domain.RequiredFieldDef, error) {
	if b.tpl == nil {
		return domain.RequiredFieldDef{}, &domain.ValidationError{Field: id, Reason: "no template is active"}
	}
	def, ok := b.tpl.Field(id)
	if !ok {
		return domain.RequiredFieldDef{}, &domain.ValidationError{Field: id, Reason: "unknown field"}
	}
	return def, nil
}

func (b *Binder) bound(id string) (domain.SceneElement, error) {
	el, ok := b.scene.FindByField(id)
	if !ok {
		return domain.SceneElement{}, fmt.Errorf("fields: no element bound to %q", id)
	}
	return el, nil
}

// SetText writes text into the element bound to a text field. Empty text
// unsets the value.
func (b *Binder) SetText(fieldID, text string) error {
	def, err := b.field(fieldID)
	if err != nil {
		return err
	}
	if def.Type != domain.FieldText {
		return &domain.ValidationError{Field: fieldID, Reason: fmt.Sprintf("%s field does not accept text", def.Type)}
	}
	el, err := b.bound(fieldID)
	if err != nil {
		return err
	}
	if err := b.scene.UpdateElement(el.ID, func(e *domain.SceneElement) { e.Text = text }); err != nil {
		return err
	}
	if strings.TrimSpace(text) == "" {
		delete(b.values, fieldID)
		return nil
	}
	b.values[fieldID] = domain.FieldValue{FieldID: fieldID, Type: def.Type, Value: text}
	return nil
}

// SetImage decodes raw and uploads it in the background. On success the
// bound element is replaced by an image sized exactly to the placeholder's
// bounding box and the field value becomes the asset reference. Decode
// errors are returned; upload errors go to OnBound and leave the field
// unset. A newer SetImage, ClearField or Reset supersedes a pending one.
func (b *Binder) SetImage(ctx context.Context, fieldID string, raw []byte, kind domain.FieldType) error {
	def, err := b.field(fieldID)
	if err != nil {
		return err
	}
	if !def.Type.IsImage() {
		return &domain.ValidationError{Field: fieldID, Reason: "text field does not accept images"}
	}
	if kind != "" && kind != def.Type {
		return &domain.ValidationError{Field: fieldID, Reason: fmt.Sprintf("expected %s, got %s", def.Type, kind)}
	}
	if _, err := b.bound(fieldID); err != nil {
		return err
	}
	dec, err := assets.Decode(raw, b.limits)
	if err != nil {
		return err
	}
	if b.uploader == nil {
		return &domain.AssetError{Op: "upload", Ref: fieldID, Err: fmt.Errorf("no asset service configured")}
	}
	tok := b.scene.Token()
	b.seq[fieldID]++
	seq := b.seq[fieldID]
	b.inflight[fieldID] = true
	log := applog.WithOperation(b.log, "set-image").With(slog.String("field", fieldID))
	log.Debug("upload started", slog.String("mime", dec.MimeType), slog.Int("bytes", len(dec.Raw)))

	loop.Go(b.loop, ctx, func(ctx context.Context) (string, error) {
		return b.uploader.Upload(ctx, dec.Raw, dec.MimeType)
	}, func(ref string, err error) {
		if b.seq[fieldID] != seq || !b.scene.Valid(tok) {
			log.Debug("stale upload dropped")
			return
		}
		delete(b.inflight, fieldID)
		if err == nil && strings.TrimSpace(ref) == "" {
			err = fmt.Errorf("asset service returned an empty reference")
		}
		if err != nil {
			err = &domain.AssetError{Op: "upload", Ref: fieldID, Err: err}
			log.Warn("upload failed", slog.Any("err", err))
			b.notify(fieldID, err)
			return
		}
		if err := b.bindImage(def, ref, dec); err != nil {
			log.Warn("bind failed", slog.Any("err", err))
			b.notify(fieldID, err)
			return
		}
		log.Info("field bound", slog.String("ref", ref))
		b.notify(fieldID, nil)
	})
	return nil
}

func (b *Binder) bindImage(def domain.RequiredFieldDef, ref string, dec assets.Decoded) error {
	cur, err := b.bound(def.ID)
	if err != nil {
		return err
	}
	slot, ok := b.originals[def.ID]
	if !ok {
		slot = cur
	}
	box := b.scene.LocalSize(slot)
	boxW, boxH := box.W*slot.Transform.Normalized().ScaleX, box.H*slot.Transform.Normalized().ScaleY
	ib := dec.Image.Bounds()
	w, h := float64(ib.Dx()), float64(ib.Dy())
	if w <= 0 || h <= 0 || boxW <= 0 || boxH <= 0 {
		return &domain.AssetError{Op: "bind", Ref: def.ID, Err: fmt.Errorf("empty placeholder or image")}
	}
	t := slot.Transform.Normalized()
	t.ScaleX, t.ScaleY = boxW/w, boxH/h
	el := domain.SceneElement{
		Kind:            domain.KindImage,
		Transform:       t,
		Style:           domain.Style{Opacity: slot.Style.Opacity},
		Asset:           &domain.AssetRef{Ref: ref, Raster: dec.Image},
		RequiredFieldID: def.ID,
		Width:           w,
		Height:          h,
		Label:           slot.Label,
	}
	if err := b.scene.BindField(cur.ID, el); err != nil {
		return err
	}
	b.values[def.ID] = domain.FieldValue{FieldID: def.ID, Type: def.Type, Value: ref}
	return nil
}

func (b *Binder) notify(fieldID string, err error) {
	if b.OnBound != nil {
		b.OnBound(fieldID, err)
	}
}

// ClearField unsets a field and puts the original placeholder back.
func (b *Binder) ClearField(fieldID string) error {
	def, err := b.field(fieldID)
	if err != nil {
		return err
	}
	b.seq[fieldID]++
	delete(b.inflight, fieldID)
	delete(b.values, fieldID)
	cur, err := b.bound(fieldID)
	if err != nil {
		return err
	}
	orig, ok := b.originals[fieldID]
	if !ok {
		return nil
	}
	if def.Type == domain.FieldText {
		return b.scene.UpdateElement(cur.ID, func(e *domain.SceneElement) { e.Text = orig.Text })
	}
	if cur.ID == orig.ID {
		return nil
	}
	return b.scene.BindField(cur.ID, orig)
}

// Restore reapplies saved values without re-uploading, e.g. when a draft or
// record is reopened. Image values must already be stable references.
func (b *Binder) Restore(values []domain.FieldValue) error {
	var errs error
	for _, v := range values {
		if strings.TrimSpace(v.Value) == "" {
			continue
		}
		def, err := b.field(v.FieldID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if def.Type == domain.FieldText {
			if el, ok := b.scene.FindByField(def.ID); ok && el.Text != v.Value {
				errs = multierr.Append(errs, b.SetText(def.ID, v.Value))
				continue
			}
		}
		b.values[def.ID] = domain.FieldValue{FieldID: def.ID, Type: def.Type, Value: v.Value}
	}
	return errs
}

// Reconcile rebuilds the value map from the scene after elements were
// replaced wholesale, e.g. by undo.
func (b *Binder) Reconcile() {
	if b.tpl == nil {
		return
	}
	for _, f := range b.tpl.RequiredFields {
		el, ok := b.scene.FindByField(f.ID)
		if !ok {
			delete(b.values, f.ID)
			continue
		}
		switch {
		case f.Type == domain.FieldText:
			orig, hasOrig := b.originals[f.ID]
			if strings.TrimSpace(el.Text) == "" || (hasOrig && el.Text == orig.Text) {
				delete(b.values, f.ID)
			} else {
				b.values[f.ID] = domain.FieldValue{FieldID: f.ID, Type: f.Type, Value: el.Text}
			}
		case el.Kind == domain.KindImage && el.Asset.Stable():
			b.values[f.ID] = domain.FieldValue{FieldID: f.ID, Type: f.Type, Value: el.Asset.Ref}
		default:
			delete(b.values, f.ID)
		}
	}
}

// Value returns the current value of a field.
func (b *Binder) Value(fieldID string) (domain.FieldValue, bool) {
	v, ok := b.values[fieldID]
	return v, ok
}

// Pending reports whether an upload for fieldID is outstanding.
func (b *Binder) Pending(fieldID string) bool { return b.inflight[fieldID] }

// Values returns one entry per required field in declaration order. Unset
// fields carry an empty value.
func (b *Binder) Values() []domain.FieldValue {
	if b.tpl == nil {
		return nil
	}
	out := make([]domain.FieldValue, 0, len(b.tpl.RequiredFields))
	for _, f := range b.tpl.RequiredFields {
		v, ok := b.values[f.ID]
		if !ok {
			v = domain.FieldValue{FieldID: f.ID, Type: f.Type}
		}
		out = append(out, v)
	}
	return out
}

// IsComplete reports whether every required field has a non-empty value.
func (b *Binder) IsComplete() bool { return b.Missing() == nil }

// Missing returns one ValidationError per unset required field.
func (b *Binder) Missing() error {
	if b.tpl == nil {
		return nil
	}
	var errs error
	for _, f := range b.tpl.RequiredFields {
		if v, ok := b.values[f.ID]; !ok || strings.TrimSpace(v.Value) == "" {
			name := f.Label
			if name == "" {
				name = f.ID
			}
			errs = multierr.Append(errs, &domain.ValidationError{Field: f.ID, Reason: name + " is required"})
		}
	}
	return errs
}
