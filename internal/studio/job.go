/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package studio

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bagstudio/internal/domain"
	"bagstudio/internal/export"

	"gopkg.in/yaml.v3"
)

// JobField is the value of one required field: literal text or an image file.
type JobField struct {
	Text string `yaml:"text,omitempty"`
	File string `yaml:"file,omitempty"`
}

// Job describes a non-interactive design run.
type Job struct {
	Product  string              `yaml:"product"`
	Photo    string              `yaml:"photo,omitempty"`
	Template string              `yaml:"template,omitempty"`
	Fields   map[string]JobField `yaml:"fields,omitempty"`
	Texts    []string            `yaml:"texts,omitempty"`
	Images   []string            `yaml:"images,omitempty"`
	Quantity int                 `yaml:"quantity,omitempty"`
	Out      string              `yaml:"out"`
	Preset   export.PresetName   `yaml:"preset,omitempty"`
	Formats  []string            `yaml:"formats,omitempty"`
	Paper    string              `yaml:"paper,omitempty"`

	// dir resolves relative paths.
	dir string
}

// LoadJob reads a YAML job file. Relative paths inside it are resolved
// against the file's directory.
func LoadJob(path string) (Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Job{}, err
	}
	var j Job
	if err := yaml.Unmarshal(data, &j); err != nil {
		return Job{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if strings.TrimSpace(j.Product) == "" {
		return Job{}, fmt.Errorf("%s: product is required", path)
	}
	if strings.TrimSpace(j.Out) == "" {
		return Job{}, fmt.Errorf("%s: out is required", path)
	}
	j.dir = filepath.Dir(path)
	return j, nil
}

func (j Job) path(p string) string {
	if filepath.IsAbs(p) || j.dir == "" {
		return p
	}
	return filepath.Join(j.dir, p)
}

// JobResult lists what a job produced.
type JobResult struct {
	Record   domain.CustomizationRecord
	Written  []string
	Checkout *CheckoutResult
}

// RunJob opens the product, applies the job's photo, template and values,
// exports the bundle and optionally checks out.
func (s *Studio) RunJob(ctx context.Context, j Job, checkout bool) (JobResult, error) {
	var res JobResult
	if err := s.OpenProduct(ctx, j.Product); err != nil {
		return res, err
	}
	if j.Photo != "" && j.Photo != s.photoID {
		if err := s.SelectPhoto(ctx, j.Photo); err != nil {
			return res, err
		}
	}
	if j.Template != "" {
		if err := s.ApplyTemplate(ctx, j.Template); err != nil {
			return res, err
		}
	}
	for id, f := range j.Fields {
		var raw []byte
		if f.File != "" {
			b, err := os.ReadFile(j.path(f.File))
			if err != nil {
				return res, fmt.Errorf("field %s: %w", id, err)
			}
			raw = b
		}
		if err := s.SetField(ctx, id, f.Text, raw); err != nil {
			return res, err
		}
	}
	for _, t := range j.Texts {
		if _, err := s.AddText(t); err != nil {
			return res, err
		}
	}
	for _, p := range j.Images {
		raw, err := os.ReadFile(j.path(p))
		if err != nil {
			return res, err
		}
		if _, err := s.AddImage(ctx, raw); err != nil && domain.IsBlocking(err) {
			return res, err
		}
	}
	if j.Quantity > 0 {
		if err := s.SetQuantity(j.Quantity); err != nil {
			return res, err
		}
	}
	s.editor.ClearSelection()

	back, err := s.RefreshPreview(ctx)
	if err != nil {
		return res, err
	}
	if checkout {
		co, err := s.Checkout(ctx)
		if err != nil {
			return res, err
		}
		res.Checkout = &co
		res.Record = co.Item.Customization
	} else {
		rec, err := s.serializeLocal(ctx)
		if err != nil {
			return res, err
		}
		res.Record = rec
	}
	q, err := s.Quote()
	if err != nil {
		return res, err
	}
	proof := export.Proof{
		DesignID:    s.designID,
		ProductName: s.product.Name,
		Description: res.Record.Description,
		Front:       s.frontSurf.Image(),
		Back:        back,
		Quote:       &q,
	}
	if tpl := s.binder.Template(); tpl != nil {
		proof.TemplateName = tpl.Name
		if proof.TemplateName == "" {
			proof.TemplateName = tpl.ID
		}
		for _, v := range s.binder.Values() {
			label := v.FieldID
			if def, ok := tpl.Field(v.FieldID); ok && def.Label != "" {
				label = def.Label
			}
			proof.Fields = append(proof.Fields, export.ProofField{Label: label, Value: v.Value})
		}
	}
	proof.Fields = append(proof.Fields, export.ProofField{Label: "Quantity", Value: fmt.Sprint(s.quantity)})
	res.Written, err = export.BatchExport(export.Bundle{Record: res.Record, Proof: proof}, export.BatchOptions{
		Preset:  j.Preset,
		Formats: j.Formats,
		Paper:   j.Paper,
		OutDir:  j.path(j.Out),
	})
	return res, err
}
