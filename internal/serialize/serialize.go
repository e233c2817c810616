/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package serialize flattens a finished design into the order record and
// rebuilds scene elements from one.
package serialize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"bagstudio/internal/assets"
	"bagstudio/internal/domain"
	"bagstudio/internal/scene"

	"go.uber.org/multierr"
)

// FieldSource supplies the required field values, one per definition.
type FieldSource interface {
	Values() []domain.FieldValue
}

// Options tune Serialize.
type Options struct {
	DesignID    string
	Description string
	// PreviewRef is a customer-uploaded full image; it wins over a snapshot.
	PreviewRef string
	// Uploader stores the snapshot preview; without it the preview is inlined.
	Uploader assets.Uploader
}

// Serialize walks the scene and builds the record. A failed preview upload
// does not fail the call: the preview falls back to an inline PNG and the
// returned error is a secondary *domain.AssetError alongside a valid record.
func Serialize(ctx context.Context, s *scene.Scene, fields FieldSource, tpl *domain.Template, opts Options) (domain.CustomizationRecord, error) {
	canvas := s.Canvas()
	rec := domain.CustomizationRecord{
		DesignID:     opts.DesignID,
		Description:  opts.Description,
		CanvasWidth:  canvas.W,
		CanvasHeight: canvas.H,
		CustomFields: []domain.CustomField{},
	}
	if tpl != nil {
		rec.TemplateID = tpl.ID
	}
	var errs error
	for _, el := range s.Elements() {
		cf, err := customField(el)
		if err != nil {
			return domain.CustomizationRecord{}, err
		}
		rec.CustomFields = append(rec.CustomFields, cf)
	}
	if fields != nil {
		rec.RequiredFieldValues = fields.Values()
	}
	if rec.RequiredFieldValues == nil {
		rec.RequiredFieldValues = []domain.FieldValue{}
	}
	if rec.Description == "" {
		rec.Description = describe(tpl, rec)
	}

	preview, err := previewAsset(ctx, s, opts)
	if err != nil {
		if domain.IsBlocking(err) {
			return domain.CustomizationRecord{}, err
		}
		errs = multierr.Append(errs, err)
	}
	rec.PreviewAsset = preview
	return rec, errs
}

func customField(el domain.SceneElement) (domain.CustomField, error) {
	t := el.Transform.Normalized()
	cf := domain.CustomField{
		FieldID:   el.RequiredFieldID,
		ElementID: el.ID,
		Type:      el.Kind,
		Required:  el.RequiredFieldID != "",
		Properties: domain.FieldProperties{
			FontSize:    el.Style.FontSize,
			FontFamily:  el.Style.FontFamily,
			Fill:        el.Style.Fill,
			Position:    domain.Point{X: t.X, Y: t.Y},
			Scale:       domain.Point{X: t.ScaleX, Y: t.ScaleY},
			Angle:       t.Angle,
			Width:       el.Width,
			Height:      el.Height,
			SkewX:       t.SkewX,
			SkewY:       t.SkewY,
			Opacity:     el.Style.Opacity,
			CharSpacing: el.Style.CharSpacing,
		},
	}
	if cf.FieldID == "" {
		cf.FieldID = el.ID
	}
	switch el.Kind {
	case domain.KindText:
		cf.Content = el.Text
	case domain.KindPlaceholder:
		cf.Content = el.Label
	case domain.KindImage:
		c, err := imageContent(el)
		if err != nil {
			return domain.CustomField{}, err
		}
		cf.Content = c
	}
	return cf, nil
}

// imageContent prefers the stable reference, then any inline data, and
// re-encodes pixels only as the last resort.
func imageContent(el domain.SceneElement) (string, error) {
	a := el.Asset
	switch {
	case a == nil:
		return "", &domain.AssetError{Op: "serialize", Ref: el.ID, Err: fmt.Errorf("image element has no asset")}
	case a.Stable():
		return a.Ref, nil
	case a.DataURL != "":
		return a.DataURL, nil
	case a.Raster != nil:
		b, err := assets.EncodePNG(a.Raster)
		if err != nil {
			return "", &domain.AssetError{Op: "serialize", Ref: el.ID, Err: err}
		}
		return assets.DataURL("image/png", b), nil
	}
	return "", &domain.AssetError{Op: "serialize", Ref: el.ID, Err: fmt.Errorf("image element has no content")}
}

func previewAsset(ctx context.Context, s *scene.Scene, opts Options) (string, error) {
	if ref := strings.TrimSpace(opts.PreviewRef); ref != "" {
		return ref, nil
	}
	png, err := s.Snapshot()
	if err != nil {
		return "", &domain.AssetError{Op: "snapshot", Err: err}
	}
	inline := assets.DataURL("image/png", png)
	if opts.Uploader == nil {
		return inline, nil
	}
	ref, err := opts.Uploader.Upload(ctx, png, "image/png")
	if err == nil && strings.TrimSpace(ref) == "" {
		err = fmt.Errorf("asset service returned an empty reference")
	}
	if err != nil {
		return inline, &domain.AssetError{Op: "upload", Ref: "preview", Secondary: true, Err: err}
	}
	return ref, nil
}

func describe(tpl *domain.Template, rec domain.CustomizationRecord) string {
	var b strings.Builder
	if tpl != nil {
		name := tpl.Name
		if name == "" {
			name = tpl.ID
		}
		b.WriteString("Template " + name + ": ")
	} else {
		b.WriteString("Custom design: ")
	}
	texts, images := 0, 0
	for _, f := range rec.CustomFields {
		switch f.Type {
		case domain.KindText:
			texts++
		case domain.KindImage:
			images++
		}
	}
	fmt.Fprintf(&b, "%d text, %d image elements", texts, images)
	return b.String()
}

// Hydrate rebuilds scene elements from a record. Inline images are decoded
// so they can be rendered again; references are left for the caller to
// fetch. Elements are returned even when some images fail to decode.
func Hydrate(rec domain.CustomizationRecord) ([]domain.SceneElement, error) {
	var errs error
	out := make([]domain.SceneElement, 0, len(rec.CustomFields))
	for _, cf := range rec.CustomFields {
		p := cf.Properties
		el := domain.SceneElement{
			ID:   cf.ElementID,
			Kind: cf.Type,
			Transform: domain.Transform{
				X: p.Position.X, Y: p.Position.Y,
				ScaleX: p.Scale.X, ScaleY: p.Scale.Y,
				Angle: p.Angle, SkewX: p.SkewX, SkewY: p.SkewY,
			}.Normalized(),
			Style: domain.Style{Fill: p.Fill, FontSize: p.FontSize, FontFamily: p.FontFamily,
				Opacity: p.Opacity, CharSpacing: p.CharSpacing},
			Width:  p.Width,
			Height: p.Height,
		}
		if cf.Required {
			el.RequiredFieldID = cf.FieldID
			el.Locked = true
		}
		switch cf.Type {
		case domain.KindText:
			el.Text = cf.Content
		case domain.KindPlaceholder:
			el.Label = cf.Content
		case domain.KindImage:
			el.Asset = &domain.AssetRef{}
			if assets.IsDataURL(cf.Content) {
				el.Asset.DataURL = cf.Content
				raw, _, err := assets.ParseDataURL(cf.Content)
				if err == nil {
					var dec assets.Decoded
					if dec, err = assets.Decode(raw, assets.Limits{}); err == nil {
						el.Asset.Raster = dec.Image
					}
				}
				if err != nil {
					errs = multierr.Append(errs, &domain.AssetError{Op: "hydrate", Ref: cf.ElementID, Secondary: true, Err: err})
				}
			} else {
				el.Asset.Ref = cf.Content
			}
		default:
			errs = multierr.Append(errs, fmt.Errorf("customFields[%s]: unknown type %q", cf.ElementID, cf.Type))
			continue
		}
		out = append(out, el)
	}
	return out, errs
}

// Marshal encodes a record for the cart service.
func Marshal(rec domain.CustomizationRecord) ([]byte, error) { return json.Marshal(rec) }

// Unmarshal decodes a record.
func Unmarshal(b []byte) (domain.CustomizationRecord, error) {
	var rec domain.CustomizationRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return rec, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}
