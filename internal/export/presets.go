/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package export

import (
	"encoding/json"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"

	"bagstudio/internal/assets"
	"bagstudio/internal/domain"
)

// PageSize is a proof page in points.
type PageSize struct {
	Wd float64
	Ht float64
}

var (
	PageA4     = PageSize{Wd: 595.28, Ht: 841.89}
	PageLetter = PageSize{Wd: 612, Ht: 792}
)

// PresetName selects which artifacts a bundle export writes.
type PresetName string

const (
	PresetWeb        PresetName = "web"
	PresetProduction PresetName = "production"
)

// Bundle is everything known about a finished design.
type Bundle struct {
	Record domain.CustomizationRecord
	Proof  Proof
}

// BatchOptions controls a bundle export.
//
// Formats: png writes <designId>-front.png and <designId>-back.png, pdf writes
// <designId>-proof.pdf, json writes <designId>.json. Empty means preset defaults.
type BatchOptions struct {
	Preset  PresetName
	Formats []string
	Paper   string // a4 or letter
	OutDir  string
}

// BatchExport writes the bundle's artifacts and returns the written paths.
func BatchExport(b Bundle, opt BatchOptions) ([]string, error) {
	if strings.TrimSpace(opt.OutDir) == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	id := b.Record.DesignID
	if id == "" {
		id = b.Proof.DesignID
	}
	if id == "" {
		return nil, fmt.Errorf("design id is required")
	}
	formats := opt.Formats
	if len(formats) == 0 {
		formats = presetDefaultFormats(opt.Preset)
	}
	page, err := PaperSize(opt.Paper)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(opt.OutDir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure out dir: %w", err)
	}
	var written []string
	for _, f := range formats {
		switch strings.ToLower(strings.TrimSpace(f)) {
		case "png":
			views := []struct {
				name string
				img  image.Image
			}{{"front", b.Proof.Front}, {"back", b.Proof.Back}}
			for _, v := range views {
				if v.img == nil {
					continue
				}
				out := filepath.Join(opt.OutDir, fmt.Sprintf("%s-%s.png", id, v.name))
				if err := WritePNG(out, v.img); err != nil {
					return written, err
				}
				written = append(written, out)
			}
		case "pdf":
			out := filepath.Join(opt.OutDir, id+"-proof.pdf")
			p := b.Proof
			p.Page = page
			if p.DesignID == "" {
				p.DesignID = id
			}
			if err := ExportProofPDF(out, p); err != nil {
				return written, err
			}
			written = append(written, out)
		case "json":
			out := filepath.Join(opt.OutDir, id+".json")
			data, err := json.MarshalIndent(b.Record, "", "  ")
			if err != nil {
				return written, fmt.Errorf("marshal record: %w", err)
			}
			if err := os.WriteFile(out, append(data, '\n'), 0o644); err != nil {
				return written, fmt.Errorf("write record: %w", err)
			}
			written = append(written, out)
		default:
			return written, fmt.Errorf("unknown format: %s", f)
		}
	}
	return written, nil
}

// WritePNG encodes img to path.
func WritePNG(path string, img image.Image) error {
	data, err := assets.EncodePNG(img)
	if err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write png: %w", err)
	}
	return nil
}

// PaperSize maps a paper name to a page size; empty means A4.
func PaperSize(name string) (PageSize, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "a4":
		return PageA4, nil
	case "letter":
		return PageLetter, nil
	}
	return PageSize{}, fmt.Errorf("unknown paper size: %s", name)
}

func presetDefaultFormats(p PresetName) []string {
	switch p {
	case PresetWeb:
		return []string{"png", "json"}
	default:
		return []string{"png", "pdf", "json"}
	}
}
