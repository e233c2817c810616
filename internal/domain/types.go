/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package domain

// This file defines the core data model of the customization engine: placed
// scene elements, the clip region they are bound to, templates with their
// required fields, catalog products with pricing tiers, and the order-ready
// customization record.

import (
	"image"
	"strings"

	"github.com/shopspring/decimal"
)

// ElementKind is the tagged variant of a SceneElement.
type ElementKind string

const (
	KindText        ElementKind = "text"
	KindImage       ElementKind = "image"
	KindPlaceholder ElementKind = "placeholder"
)

// Valid reports whether k is one of the known kinds.
func (k ElementKind) Valid() bool {
	switch k {
	case KindText, KindImage, KindPlaceholder:
		return true
	}
	return false
}

// Transform positions an element on the canvas. X/Y is the element center.
// Angle and skews are in degrees.
type Transform struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
	Angle  float64 `json:"angle"`
	SkewX  float64 `json:"skewX,omitempty"`
	SkewY  float64 `json:"skewY,omitempty"`
}

// Normalized returns t with zero scales replaced by 1.
func (t Transform) Normalized() Transform {
	if t.ScaleX == 0 {
		t.ScaleX = 1
	}
	if t.ScaleY == 0 {
		t.ScaleY = 1
	}
	return t
}

// Style holds the visual properties editable from the property panel.
type Style struct {
	Fill        string  `json:"fill,omitempty"`
	FontSize    float64 `json:"fontSize,omitempty"`
	FontFamily  string  `json:"fontFamily,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	CharSpacing float64 `json:"charSpacing,omitempty"`
}

// Alpha returns the effective opacity; zero means fully opaque.
func (s Style) Alpha() float64 {
	if s.Opacity <= 0 || s.Opacity > 1 {
		return 1
	}
	return s.Opacity
}

// AssetRef points to image content: a stable reference returned by the
// asset service, an inline data URL, or both. Raster is the decoded pixels
// and never serialized.
type AssetRef struct {
	Ref     string      `json:"ref,omitempty"`
	DataURL string      `json:"dataUrl,omitempty"`
	Raster  image.Image `json:"-"`
}

// Stable reports whether the asset has been uploaded.
func (a *AssetRef) Stable() bool { return a != nil && strings.TrimSpace(a.Ref) != "" }

// SceneElement is one placed design object.
// Width/Height is the natural (unscaled) content size in canvas pixels.
type SceneElement struct {
	ID              string      `json:"id"`
	Kind            ElementKind `json:"kind"`
	Transform       Transform   `json:"transform"`
	Style           Style       `json:"style"`
	Text            string      `json:"text,omitempty"`
	Asset           *AssetRef   `json:"asset,omitempty"`
	RequiredFieldID string      `json:"requiredFieldId,omitempty"`
	Locked          bool        `json:"locked,omitempty"`
	ClipRegionID    string      `json:"clipRegionId,omitempty"`
	Width           float64     `json:"width,omitempty"`
	Height          float64     `json:"height,omitempty"`
	Label           string      `json:"label,omitempty"`
}

// Clone returns a copy that shares no mutable state with e, except the
// decoded raster which is treated as immutable.
func (e SceneElement) Clone() SceneElement {
	if e.Asset != nil {
		a := *e.Asset
		e.Asset = &a
	}
	return e
}

// CloneElements deep-copies a slice of elements.
func CloneElements(in []SceneElement) []SceneElement {
	if in == nil {
		return nil
	}
	out := make([]SceneElement, len(in))
	for i, e := range in {
		out[i] = e.Clone()
	}
	return out
}

// ClipRegion is the canvas rectangle occupied by the current product photo.
type ClipRegion struct {
	ID     string  `json:"id"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Empty reports whether the region has no area.
func (c ClipRegion) Empty() bool { return c.Width <= 0 || c.Height <= 0 }

// FieldType is the kind of value a required field accepts.
type FieldType string

const (
	FieldText  FieldType = "text"
	FieldImage FieldType = "image"
	FieldLogo  FieldType = "logo"
)

// IsImage reports whether values of this type are raster uploads.
func (f FieldType) IsImage() bool { return f == FieldImage || f == FieldLogo }

// RequiredFieldDef declares a slot the customer must fill before checkout.
type RequiredFieldDef struct {
	ID          string    `json:"id" validate:"required"`
	Type        FieldType `json:"type" validate:"required,oneof=text image logo"`
	Label       string    `json:"label,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

// Template is a designer-authored starting layout. Element definitions are
// kept raw and decoded by the template loader.
type Template struct {
	ID             string             `json:"id" validate:"required"`
	CategoryID     string             `json:"categoryId" validate:"required"`
	Name           string             `json:"name,omitempty"`
	RequiredFields []RequiredFieldDef `json:"requiredFieldDefs" validate:"dive"`
	ElementDefs    []RawDef           `json:"elementDefs"`
	PreviewAsset   string             `json:"previewAsset,omitempty"`
}

// RawDef is one serialized element definition.
type RawDef []byte

// MarshalJSON returns the raw definition or null.
func (r RawDef) MarshalJSON() ([]byte, error) {
	if len(r) == 0 {
		return []byte("null"), nil
	}
	return r, nil
}

// UnmarshalJSON stores a copy of the raw definition.
func (r *RawDef) UnmarshalJSON(b []byte) error {
	*r = append((*r)[:0], b...)
	return nil
}

// Field returns the RequiredFieldDef with the given id.
func (t *Template) Field(id string) (RequiredFieldDef, bool) {
	for _, f := range t.RequiredFields {
		if f.ID == id {
			return f, true
		}
	}
	return RequiredFieldDef{}, false
}

// ProductImage is one photo of the product; View distinguishes front/back.
type ProductImage struct {
	ID   string `json:"id" validate:"required"`
	URL  string `json:"url" validate:"required"`
	View string `json:"view,omitempty" validate:"omitempty,oneof=front back side"`
}

// PricingTier maps a quantity range to a unit price. A nil MaxQuantity is
// unbounded. ContactForQuote tiers carry no usable price.
type PricingTier struct {
	MinQuantity     int             `json:"minQuantity" validate:"gte=1"`
	MaxQuantity     *int            `json:"maxQuantity,omitempty"`
	Price           decimal.Decimal `json:"price"`
	ContactForQuote bool            `json:"contactForQuote,omitempty"`
}

// Matches reports whether q falls inside the tier bounds.
func (t PricingTier) Matches(q int) bool {
	if q < t.MinQuantity {
		return false
	}
	return t.MaxQuantity == nil || q <= *t.MaxQuantity
}

// Product is the catalog view of a customizable item.
type Product struct {
	ID           string          `json:"id" validate:"required"`
	Name         string          `json:"name"`
	Category     string          `json:"category" validate:"required"`
	Images       []ProductImage  `json:"images" validate:"dive"`
	PricingTiers []PricingTier   `json:"pricingTiers" validate:"dive"`
	BasePrice    decimal.Decimal `json:"basePrice"`
	Currency     string          `json:"currency,omitempty"`
	MinimumOrder int             `json:"minimumOrder" validate:"gte=0"`
	InStock      bool            `json:"inStock"`
}

// Image returns the photo for a view. The front view falls back to the first image.
func (p *Product) Image(view string) (ProductImage, bool) {
	for _, im := range p.Images {
		if im.View == view {
			return im, true
		}
	}
	if len(p.Images) > 0 && (view == "" || view == "front") {
		return p.Images[0], true
	}
	return ProductImage{}, false
}

// Point is a serialized canvas coordinate or scale pair.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// FieldProperties is the visual state of a serialized field.
type FieldProperties struct {
	FontSize    float64 `json:"fontSize,omitempty"`
	FontFamily  string  `json:"fontFamily,omitempty"`
	Fill        string  `json:"fill,omitempty"`
	Position    Point   `json:"position"`
	Scale       Point   `json:"scale"`
	Angle       float64 `json:"angle,omitempty"`
	Width       float64 `json:"width,omitempty"`
	Height      float64 `json:"height,omitempty"`
	SkewX       float64 `json:"skewX,omitempty"`
	SkewY       float64 `json:"skewY,omitempty"`
	Opacity     float64 `json:"opacity,omitempty"`
	CharSpacing float64 `json:"charSpacing,omitempty"`
}

// CustomField is one non-background element of a finished design.
type CustomField struct {
	FieldID    string          `json:"fieldId"`
	ElementID  string          `json:"elementId"`
	Type       ElementKind     `json:"type"`
	Content    string          `json:"content"`
	Required   bool            `json:"required,omitempty"`
	Properties FieldProperties `json:"properties"`
}

// FieldValue is the customer's value for one required field.
type FieldValue struct {
	FieldID string    `json:"fieldId"`
	Type    FieldType `json:"type"`
	Value   string    `json:"value"`
}

// CustomizationRecord is the order-ready design handed to the cart service.
type CustomizationRecord struct {
	DesignID            string        `json:"designId"`
	TemplateID          string        `json:"templateId,omitempty"`
	PreviewAsset        string        `json:"previewAsset"`
	Description         string        `json:"description"`
	CanvasWidth         float64       `json:"canvasWidth"`
	CanvasHeight        float64       `json:"canvasHeight"`
	CustomFields        []CustomField `json:"customFields"`
	RequiredFieldValues []FieldValue  `json:"requiredFieldValues"`
}

// CartItem is the payload of a cart add request.
type CartItem struct {
	ProductID     string              `json:"productId" validate:"required"`
	Quantity      int                 `json:"quantity" validate:"gte=1"`
	Customization CustomizationRecord `json:"customization"`
}
