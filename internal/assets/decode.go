/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package assets decodes customer and template images into displayable
// rasters and converts them to and from data URLs.
package assets

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"net/http"
	"strings"

	"bagstudio/internal/domain"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Limits bounds accepted uploads.
type Limits struct {
	MaxBytes     int64
	MaxDimension int
}

// DefaultLimits accepts up to 10MiB and downsizes to 2048px.
var DefaultLimits = Limits{MaxBytes: 10 << 20, MaxDimension: 2048}

var allowedTypes = map[string]bool{
	"image/png":  true,
	"image/jpeg": true,
	"image/gif":  true,
	"image/webp": true,
}

// Decoded is a decoded asset.
type Decoded struct {
	Image    image.Image
	Format   string
	MimeType string
	// Raw is the original input, kept for upload.
	Raw []byte
}

// Decode sniffs, validates and decodes raw, applying EXIF orientation and
// shrinking oversized images. Any failure is an *domain.AssetError.
func Decode(raw []byte, lim Limits) (Decoded, error) {
	if lim.MaxBytes <= 0 {
		lim.MaxBytes = DefaultLimits.MaxBytes
	}
	if len(raw) == 0 {
		return Decoded{}, &domain.AssetError{Op: "decode", Err: errors.New("empty input")}
	}
	if int64(len(raw)) > lim.MaxBytes {
		return Decoded{}, &domain.AssetError{Op: "decode", Err: fmt.Errorf("image is %d bytes, limit is %d", len(raw), lim.MaxBytes)}
	}
	mt := sniff(raw)
	if !allowedTypes[mt] {
		return Decoded{}, &domain.AssetError{Op: "decode", Err: fmt.Errorf("unsupported type %s", mt)}
	}
	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return Decoded{}, &domain.AssetError{Op: "decode", Err: err}
	}
	_, format, _ := image.DecodeConfig(bytes.NewReader(raw))
	if lim.MaxDimension > 0 {
		b := img.Bounds()
		if b.Dx() > lim.MaxDimension || b.Dy() > lim.MaxDimension {
			img = imaging.Fit(img, lim.MaxDimension, lim.MaxDimension, imaging.Lanczos)
		}
	}
	return Decoded{Image: img, Format: format, MimeType: mt, Raw: raw}, nil
}

func sniff(raw []byte) string {
	// http.DetectContentType predates webp on some versions; check the RIFF header directly.
	if len(raw) >= 12 && string(raw[0:4]) == "RIFF" && string(raw[8:12]) == "WEBP" {
		return "image/webp"
	}
	return http.DetectContentType(raw)
}

// Uploader stores raw image bytes with the asset service and returns a
// stable reference.
type Uploader interface {
	Upload(ctx context.Context, raw []byte, mimeType string) (string, error)
}

// Thumbnail returns a copy of img fitted into a size x size box.
func Thumbnail(img image.Image, size int) image.Image {
	return imaging.Fit(img, size, size, imaging.Lanczos)
}

// ParseDataURL returns the payload of a base64 data URL.
func ParseDataURL(s string) ([]byte, string, error) {
	if !strings.HasPrefix(s, "data:") {
		return nil, "", errors.New("not a data URL")
	}
	meta, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return nil, "", errors.New("malformed data URL")
	}
	mime, isB64 := strings.CutSuffix(meta, ";base64")
	if !isB64 {
		return nil, "", errors.New("data URL is not base64")
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("data URL payload: %w", err)
	}
	return b, mime, nil
}

// IsDataURL reports whether s is an inline data URL.
func IsDataURL(s string) bool { return strings.HasPrefix(s, "data:") }

// DataURL encodes raw bytes of the given type.
func DataURL(mime string, raw []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(raw)
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
