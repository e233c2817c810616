/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package export writes production artifacts for a finished design: view
// PNGs, a one-page proof sheet and the customization record.
package export

import (
	"bytes"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"strings"
	"time"

	"bagstudio/internal/assets"
	"bagstudio/internal/pricing"

	"github.com/jung-kurt/gofpdf"
)

// ProofField is one labelled value printed on the proof.
type ProofField struct {
	Label string
	Value string
}

// Proof is the content of a proof sheet. Units are points.
type Proof struct {
	DesignID     string
	ProductName  string
	TemplateName string
	Description  string
	Front        image.Image
	Back         image.Image
	Fields       []ProofField
	Quote        *pricing.Quote
	Page         PageSize
	GeneratedAt  time.Time
}

const (
	proofMargin = 36.0
	proofFont   = "Helvetica"
)

// ExportProofPDF writes a one-page proof: header, front and back renders
// side by side, field values and the price quote.
func ExportProofPDF(outPath string, p Proof) error {
	if p.Front == nil {
		return fmt.Errorf("proof %s: front render is required", p.DesignID)
	}
	page := p.Page
	if page.Wd <= 0 || page.Ht <= 0 {
		page = PageA4
	}
	if p.GeneratedAt.IsZero() {
		p.GeneratedAt = time.Now()
	}
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		UnitStr: "pt",
		Size:    gofpdf.SizeType{Wd: page.Wd, Ht: page.Ht},
	})
	pdf.SetTitle(fmt.Sprintf("Proof %s", p.DesignID), true)
	pdf.SetAuthor("Bag Studio", false)
	pdf.SetMargins(proofMargin, proofMargin, proofMargin)
	pdf.SetAutoPageBreak(false, proofMargin)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	contentW := page.Wd - 2*proofMargin

	// Header
	pdf.SetFont(proofFont, "B", 16)
	title := p.ProductName
	if title == "" {
		title = "Design proof"
	}
	pdf.CellFormat(contentW, 20, tr(title), "", 1, "L", false, 0, "")
	pdf.SetFont(proofFont, "", 9)
	sub := fmt.Sprintf("Design %s  |  %s", p.DesignID, p.GeneratedAt.Format("2006-01-02 15:04"))
	if p.TemplateName != "" {
		sub += "  |  Template " + p.TemplateName
	}
	pdf.CellFormat(contentW, 12, tr(sub), "", 1, "L", false, 0, "")
	pdf.Ln(8)

	// Renders
	top := pdf.GetY()
	slotW := (contentW - proofMargin/2) / 2
	slotH := slotW * 0.75
	if err := placeImage(pdf, "front", p.Front, proofMargin, top, slotW, slotH); err != nil {
		return err
	}
	if p.Back != nil {
		if err := placeImage(pdf, "back", p.Back, proofMargin+slotW+proofMargin/2, top, slotW, slotH); err != nil {
			return err
		}
	}
	pdf.SetFont(proofFont, "", 8)
	pdf.SetXY(proofMargin, top+slotH+2)
	pdf.CellFormat(slotW, 10, "Front", "", 0, "C", false, 0, "")
	if p.Back != nil {
		pdf.SetX(proofMargin + slotW + proofMargin/2)
		pdf.CellFormat(slotW, 10, "Back (projected)", "", 0, "C", false, 0, "")
	}
	pdf.SetXY(proofMargin, top+slotH+22)

	// Fields
	if len(p.Fields) > 0 {
		pdf.SetFont(proofFont, "B", 11)
		pdf.CellFormat(contentW, 16, "Fields", "B", 1, "L", false, 0, "")
		pdf.SetFont(proofFont, "", 10)
		for _, f := range p.Fields {
			v := f.Value
			if strings.TrimSpace(v) == "" {
				v = "(empty)"
			}
			pdf.CellFormat(contentW*0.35, 14, tr(f.Label), "", 0, "L", false, 0, "")
			pdf.CellFormat(contentW*0.65, 14, tr(truncate(v, 80)), "", 1, "L", false, 0, "")
		}
		pdf.Ln(6)
	}

	// Quote
	if p.Quote != nil {
		q := p.Quote
		pdf.SetFont(proofFont, "B", 11)
		pdf.CellFormat(contentW, 16, "Price", "B", 1, "L", false, 0, "")
		pdf.SetFont(proofFont, "", 10)
		pdf.CellFormat(contentW*0.35, 14, "Quantity", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.65, 14, fmt.Sprintf("%d", q.Quantity), "", 1, "L", false, 0, "")
		if q.ContactForQuote {
			pdf.CellFormat(contentW, 14, "Contact us for a quote", "", 1, "L", false, 0, "")
		} else {
			pdf.CellFormat(contentW*0.35, 14, "Unit price", "", 0, "L", false, 0, "")
			pdf.CellFormat(contentW*0.65, 14, tr(pricing.Format(q.UnitPrice, q.Currency)), "", 1, "L", false, 0, "")
			pdf.CellFormat(contentW*0.35, 14, "Total", "", 0, "L", false, 0, "")
			pdf.CellFormat(contentW*0.65, 14, tr(pricing.Format(q.Total, q.Currency)), "", 1, "L", false, 0, "")
		}
		pdf.Ln(6)
	}

	if p.Description != "" {
		pdf.SetFont(proofFont, "I", 9)
		pdf.MultiCell(contentW, 12, tr(p.Description), "", "L", false)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("ensure out dir: %w", err)
	}
	if err := pdf.OutputFileAndClose(outPath); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	return nil
}

// placeImage fits img into the slot, keeping its aspect ratio, and draws a
// hairline frame around the slot.
func placeImage(pdf *gofpdf.Fpdf, name string, img image.Image, x, y, w, h float64) error {
	b, err := assets.EncodePNG(img)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	opt := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader(name, opt, bytes.NewReader(b))
	if pdf.Err() {
		return fmt.Errorf("register %s: %w", name, pdf.Error())
	}
	iw, ih := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	scale := w / iw
	if ih*scale > h {
		scale = h / ih
	}
	dw, dh := iw*scale, ih*scale
	pdf.ImageOptions(name, x+(w-dw)/2, y+(h-dh)/2, dw, dh, false, opt, 0, "")
	pdf.SetDrawColor(200, 200, 200)
	pdf.SetLineWidth(0.3)
	pdf.Rect(x, y, w, h, "D")
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
