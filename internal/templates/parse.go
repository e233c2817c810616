/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package templates

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"bagstudio/internal/domain"

	gojsonschema "github.com/xeipuuv/gojsonschema"
	"go.uber.org/multierr"
)

//go:embed schema/element.schema.json
var elementSchema []byte

var (
	schemaOnce sync.Once
	schema     *gojsonschema.Schema
	schemaErr  error
)

func compiled() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		schema, schemaErr = gojsonschema.NewSchema(gojsonschema.NewBytesLoader(elementSchema))
	})
	return schema, schemaErr
}

// ElementDef is a decoded, schema-valid element definition.
type ElementDef struct {
	Index         int                `json:"-"`
	ID            string             `json:"id,omitempty"`
	Kind          domain.ElementKind `json:"kind"`
	Text          string             `json:"text,omitempty"`
	Src           string             `json:"src,omitempty"`
	FieldID       string             `json:"fieldId,omitempty"`
	Label         string             `json:"label,omitempty"`
	Required      bool               `json:"required,omitempty"`
	IsPlaceholder bool               `json:"isPlaceholder,omitempty"`
	Width         float64            `json:"width,omitempty"`
	Height        float64            `json:"height,omitempty"`
	Transform     domain.Transform   `json:"transform"`
	Style         domain.Style       `json:"style"`
}

// Locked reports whether the element may not be deleted by the customer.
// Elements bound to a required field are always locked.
func (d ElementDef) Locked() bool { return d.Required || d.IsPlaceholder || d.FieldID != "" }

// Element builds the scene element for this definition. Image rasters are
// attached by the resolver.
func (d ElementDef) Element() domain.SceneElement {
	return domain.SceneElement{
		ID:              d.ID,
		Kind:            d.Kind,
		Transform:       d.Transform.Normalized(),
		Style:           d.Style,
		Text:            d.Text,
		RequiredFieldID: d.FieldID,
		Locked:          d.Locked(),
		Width:           d.Width,
		Height:          d.Height,
		Label:           d.Label,
	}
}

// Parse validates every element definition of tpl against the embedded
// schema and the template's required field declarations. All problems are
// reported together in one *domain.TemplateParseError.
func Parse(tpl domain.Template) ([]ElementDef, error) {
	sch, err := compiled()
	if err != nil {
		return nil, &domain.TemplateParseError{TemplateID: tpl.ID, Err: fmt.Errorf("element schema: %w", err)}
	}
	var errs error
	defs := make([]ElementDef, 0, len(tpl.ElementDefs))
	for i, raw := range tpl.ElementDefs {
		res, err := sch.Validate(gojsonschema.NewBytesLoader([]byte(raw)))
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("elementDefs[%d]: %w", i, err))
			continue
		}
		if !res.Valid() {
			for _, e := range res.Errors() {
				errs = multierr.Append(errs, fmt.Errorf("elementDefs[%d]: %s", i, e.String()))
			}
			continue
		}
		var d ElementDef
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&d); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("elementDefs[%d]: %w", i, err))
			continue
		}
		d.Index = i
		defs = append(defs, d)
	}
	errs = multierr.Append(errs, checkFields(tpl, defs))
	if errs != nil {
		return nil, &domain.TemplateParseError{TemplateID: tpl.ID, Err: errs}
	}
	return defs, nil
}

// checkFields enforces that every declared required field has exactly one
// element and that elements only reference declared fields.
func checkFields(tpl domain.Template, defs []ElementDef) error {
	var errs error
	declared := make(map[string]domain.FieldType, len(tpl.RequiredFields))
	for _, f := range tpl.RequiredFields {
		if f.ID == "" {
			errs = multierr.Append(errs, errors.New("requiredFieldDefs: empty id"))
			continue
		}
		if _, dup := declared[f.ID]; dup {
			errs = multierr.Append(errs, fmt.Errorf("requiredFieldDefs: duplicate id %q", f.ID))
		}
		declared[f.ID] = f.Type
	}
	bound := map[string]int{}
	ids := map[string]bool{}
	for _, d := range defs {
		if d.ID != "" {
			if ids[d.ID] {
				errs = multierr.Append(errs, fmt.Errorf("elementDefs[%d]: duplicate id %q", d.Index, d.ID))
			}
			ids[d.ID] = true
		}
		if d.FieldID == "" {
			continue
		}
		ft, ok := declared[d.FieldID]
		if !ok {
			errs = multierr.Append(errs, fmt.Errorf("elementDefs[%d]: field %q is not declared", d.Index, d.FieldID))
			continue
		}
		if ft == domain.FieldText && d.Kind != domain.KindText {
			errs = multierr.Append(errs, fmt.Errorf("elementDefs[%d]: text field %q must be bound to a text element", d.Index, d.FieldID))
		}
		if ft.IsImage() && d.Kind == domain.KindText {
			errs = multierr.Append(errs, fmt.Errorf("elementDefs[%d]: %s field %q cannot be bound to a text element", d.Index, ft, d.FieldID))
		}
		bound[d.FieldID]++
	}
	for _, f := range tpl.RequiredFields {
		switch n := bound[f.ID]; {
		case n == 0:
			errs = multierr.Append(errs, fmt.Errorf("required field %q has no element", f.ID))
		case n > 1:
			errs = multierr.Append(errs, fmt.Errorf("required field %q is bound to %d elements", f.ID, n))
		}
	}
	return errs
}

// FilterByCategory returns the templates for a product category.
func FilterByCategory(all []domain.Template, categoryID string) []domain.Template {
	var out []domain.Template
	for _, t := range all {
		if t.CategoryID == categoryID {
			out = append(out, t)
		}
	}
	return out
}
