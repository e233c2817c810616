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
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"bagstudio/internal/domain"
	"bagstudio/internal/pricing"

	"github.com/shopspring/decimal"
)

func solid(w, h int, c color.Color) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return img
}

func sampleProof() Proof {
	return Proof{
		DesignID:     "d1",
		ProductName:  "Canvas tote",
		TemplateName: "Classic",
		Description:  "Template Classic: 1 text, 1 image elements",
		Front:        solid(80, 60, color.RGBA{200, 30, 30, 255}),
		Back:         solid(80, 60, color.RGBA{30, 30, 200, 255}),
		Fields:       []ProofField{{Label: "Name", Value: "Zoë"}, {Label: "Logo", Value: ""}},
		Quote: &pricing.Quote{Quantity: 60, UnitPrice: decimal.RequireFromString("2.00"),
			Total: decimal.RequireFromString("120.00"), Currency: "USD"},
		GeneratedAt: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestExportProofPDFCreatesFile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "proof", "d1.pdf")
	if err := ExportProofPDF(out, sampleProof()); err != nil {
		t.Fatalf("export: %v", err)
	}
	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !bytes.HasPrefix(b, []byte("%PDF-")) {
		t.Fatalf("not a pdf: %q", b[:8])
	}
}

func TestExportProofPDFContactForQuoteWithoutBack(t *testing.T) {
	p := sampleProof()
	p.Back = nil
	p.Quote = &pricing.Quote{Quantity: 5000, ContactForQuote: true}
	out := filepath.Join(t.TempDir(), "d1.pdf")
	if err := ExportProofPDF(out, p); err != nil {
		t.Fatalf("export: %v", err)
	}
	if st, err := os.Stat(out); err != nil || st.Size() == 0 {
		t.Fatalf("pdf missing: %v", err)
	}
}

func TestExportProofPDFRequiresFront(t *testing.T) {
	p := sampleProof()
	p.Front = nil
	if err := ExportProofPDF(filepath.Join(t.TempDir(), "x.pdf"), p); err == nil {
		t.Fatalf("expected error without front render")
	}
}

func TestBatchExportProductionPreset(t *testing.T) {
	dir := t.TempDir()
	b := Bundle{Record: domain.CustomizationRecord{DesignID: "d1", TemplateID: "t1"}, Proof: sampleProof()}
	written, err := BatchExport(b, BatchOptions{Preset: PresetProduction, Paper: "letter", OutDir: dir})
	if err != nil {
		t.Fatalf("BatchExport: %v", err)
	}
	want := []string{"d1-front.png", "d1-back.png", "d1-proof.pdf", "d1.json"}
	if len(written) != len(want) {
		t.Fatalf("written = %v", written)
	}
	for i, w := range want {
		if filepath.Base(written[i]) != w {
			t.Fatalf("written[%d] = %s, want %s", i, written[i], w)
		}
		if _, err := os.Stat(written[i]); err != nil {
			t.Fatalf("missing %s: %v", w, err)
		}
	}
	rec, _ := os.ReadFile(filepath.Join(dir, "d1.json"))
	if !strings.Contains(string(rec), `"templateId": "t1"`) {
		t.Fatalf("record json = %s", rec)
	}
}

func TestBatchExportWebPresetAndErrors(t *testing.T) {
	dir := t.TempDir()
	b := Bundle{Record: domain.CustomizationRecord{DesignID: "d2"}, Proof: sampleProof()}
	written, err := BatchExport(b, BatchOptions{Preset: PresetWeb, OutDir: dir})
	if err != nil || len(written) != 3 {
		t.Fatalf("web preset = %v, %v", written, err)
	}
	if _, err := BatchExport(b, BatchOptions{Formats: []string{"svg"}, OutDir: dir}); err == nil {
		t.Fatalf("unknown format accepted")
	}
	if _, err := BatchExport(b, BatchOptions{Paper: "a0", OutDir: dir}); err == nil {
		t.Fatalf("unknown paper accepted")
	}
	if _, err := BatchExport(b, BatchOptions{}); err == nil {
		t.Fatalf("missing out dir accepted")
	}
}

func TestPaperSize(t *testing.T) {
	if p, _ := PaperSize(""); p != PageA4 {
		t.Fatalf("default = %+v", p)
	}
	if p, _ := PaperSize("Letter"); p != PageLetter {
		t.Fatalf("letter = %+v", p)
	}
}
