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

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies engine errors.
type Code string

const (
	CodeValidation        Code = "VALIDATION"
	CodeAsset             Code = "ASSET"
	CodeTemplateParse     Code = "TEMPLATE_PARSE"
	CodeRenderSync        Code = "RENDER_SYNC"
	CodeLockedElement     Code = "LOCKED_ELEMENT"
	CodeClipRegionMissing Code = "CLIP_REGION_MISSING"
	CodeInternal          Code = "INTERNAL"
)

// Metadata describes how an error class is surfaced. Blocking errors stop the
// triggering operation.
type Metadata struct {
	PublicMessage string
	Blocking      bool
}

var metadataByCode = map[Code]Metadata{
	CodeValidation:        {PublicMessage: "please check your input", Blocking: true},
	CodeAsset:             {PublicMessage: "the image could not be processed", Blocking: true},
	CodeTemplateParse:     {PublicMessage: "this template could not be loaded", Blocking: true},
	CodeRenderSync:        {PublicMessage: "the design is out of sync, please reload the template", Blocking: false},
	CodeLockedElement:     {PublicMessage: "this element is required by the template and cannot be removed", Blocking: true},
	CodeClipRegionMissing: {PublicMessage: "select a product image first", Blocking: true},
	CodeInternal:          {PublicMessage: "something went wrong", Blocking: true},
}

// MetadataFor returns the metadata of code, or the internal defaults.
func MetadataFor(code Code) Metadata {
	if m, ok := metadataByCode[code]; ok {
		return m
	}
	return metadataByCode[CodeInternal]
}

// Coded is implemented by every error in the taxonomy.
type Coded interface {
	error
	Code() Code
}

// ValidationError rejects a customer action: missing field, bad quantity,
// out-of-stock mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Reason)
}
func (e *ValidationError) Code() Code { return CodeValidation }
func (e *ValidationError) PublicMessage() string {
	if e.Reason != "" {
		return e.Reason
	}
	return MetadataFor(CodeValidation).PublicMessage
}

// AssetError reports a decode, fetch or upload failure. Secondary assets
// (thumbnails, previews) do not block the primary flow.
type AssetError struct {
	Op        string
	Ref       string
	Secondary bool
	Err       error
}

func (e *AssetError) Error() string {
	var b strings.Builder
	b.WriteString("asset ")
	b.WriteString(e.Op)
	if e.Ref != "" {
		b.WriteString(" ")
		b.WriteString(e.Ref)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}
func (e *AssetError) Code() Code    { return CodeAsset }
func (e *AssetError) Unwrap() error { return e.Err }

// TemplateParseError aborts a template load. Err may combine several
// diagnostics (see multierr.Errors).
type TemplateParseError struct {
	TemplateID string
	Err        error
}

func (e *TemplateParseError) Error() string {
	return fmt.Sprintf("template %s: parse: %v", e.TemplateID, e.Err)
}
func (e *TemplateParseError) Code() Code    { return CodeTemplateParse }
func (e *TemplateParseError) Unwrap() error { return e.Err }

// RenderSyncError signals that the template ready notification would fire
// a number of times other than one.
type RenderSyncError struct {
	TemplateID string
	Detail     string
}

func (e *RenderSyncError) Error() string {
	return fmt.Sprintf("template %s: render sync: %s", e.TemplateID, e.Detail)
}
func (e *RenderSyncError) Code() Code { return CodeRenderSync }

// LockedElementError rejects delete or replace of a required/placeholder element.
type LockedElementError struct {
	ElementID string
	Op        string
}

func (e *LockedElementError) Error() string {
	return fmt.Sprintf("%s %s: element is locked", e.Op, e.ElementID)
}
func (e *LockedElementError) Code() Code { return CodeLockedElement }

// ErrClipRegionMissing is returned when an element is created before a
// product photo has been selected.
var ErrClipRegionMissing = &ClipRegionMissingError{}

// ClipRegionMissingError is the type of ErrClipRegionMissing.
type ClipRegionMissingError struct{}

func (e *ClipRegionMissingError) Error() string { return "no clip region: select a product image first" }
func (e *ClipRegionMissingError) Code() Code    { return CodeClipRegionMissing }

// CodeOf returns the code of the first coded error in err's chain.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var c Coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return CodeInternal
}

// PublicMessage returns a message suitable for the customer.
func PublicMessage(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.PublicMessage()
	}
	return MetadataFor(CodeOf(err)).PublicMessage
}

// IsBlocking applies the error policy: secondary asset failures are
// recoverable, everything else follows the metadata table.
func IsBlocking(err error) bool {
	if err == nil {
		return false
	}
	var a *AssetError
	if errors.As(err, &a) {
		return !a.Secondary
	}
	return MetadataFor(CodeOf(err)).Blocking
}
