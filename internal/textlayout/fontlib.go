/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package textlayout

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FallbackFamily is always available and used for unknown families.
const FallbackFamily = "Go"

// FontLibrary stores loaded OpenType fonts by case-insensitive family name.
// The raw bytes are kept alongside the parsed font so a rasterizer can build
// its own faces from them.
type FontLibrary struct {
	mu    sync.RWMutex
	fonts map[string]*Font
}

// Font is one registered family.
type Font struct {
	Family string
	Data   []byte
	OT     *opentype.Font
}

// NewFontLibrary returns a library with the Go Regular fallback registered.
func NewFontLibrary() *FontLibrary {
	fl := &FontLibrary{fonts: make(map[string]*Font)}
	if err := fl.Register(FallbackFamily, goregular.TTF); err != nil {
		panic(fmt.Sprintf("textlayout: embedded fallback font: %v", err))
	}
	return fl
}

// Register parses data and stores it under family.
func (fl *FontLibrary) Register(family string, data []byte) error {
	f, err := opentype.Parse(data)
	if err != nil {
		return fmt.Errorf("parse font %s: %w", family, err)
	}
	fl.mu.Lock()
	defer fl.mu.Unlock()
	if fl.fonts == nil {
		fl.fonts = make(map[string]*Font)
	}
	fl.fonts[key(family)] = &Font{Family: family, Data: data, OT: f}
	return nil
}

// LoadTTF loads a font file into the library under the given family.
func (fl *FontLibrary) LoadTTF(family, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read font %s: %w", path, err)
	}
	return fl.Register(family, data)
}

// LoadDir registers every .ttf/.otf file in dir using the file name
// (without extension) as family. It returns the families loaded.
func (fl *FontLibrary) LoadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var loaded []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		family := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if err := fl.LoadTTF(family, filepath.Join(dir, e.Name())); err != nil {
			return loaded, err
		}
		loaded = append(loaded, family)
	}
	return loaded, nil
}

// Lookup returns the font for family, falling back to Go Regular.
// exact reports whether the family itself was found.
func (fl *FontLibrary) Lookup(family string) (f *Font, exact bool) {
	if fl == nil {
		return nil, false
	}
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	if f, ok := fl.fonts[key(family)]; ok {
		return f, true
	}
	return fl.fonts[key(FallbackFamily)], false
}

// Families lists registered family names, sorted.
func (fl *FontLibrary) Families() []string {
	fl.mu.RLock()
	defer fl.mu.RUnlock()
	out := make([]string, 0, len(fl.fonts))
	for _, f := range fl.fonts {
		out = append(out, f.Family)
	}
	sort.Strings(out)
	return out
}

func key(family string) string { return strings.ToLower(strings.TrimSpace(family)) }
