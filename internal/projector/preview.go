/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package projector

import (
	"errors"

	"bagstudio/internal/scene"
)

// ErrNoBackground is returned when the alternate view has no photo.
var ErrNoBackground = errors.New("projector: no background for alternate view")

// Preview owns the derived scene. It is rebuilt from scratch whenever the
// front scene version or the target photo changed since the last build.
type Preview struct {
	params Params
	target *scene.Scene

	built        bool
	frontVersion uint64
	background   string
	builds       int
}

// NewPreview returns a preview rendering into target.
func NewPreview(target *scene.Scene, p Params) *Preview {
	return &Preview{params: p, target: target}
}

// Scene returns the derived scene.
func (p *Preview) Scene() *scene.Scene { return p.target }

// Params returns the projection constants in use.
func (p *Preview) Params() Params { return p.params }

// Builds counts full rebuilds.
func (p *Preview) Builds() int { return p.builds }

func backgroundKey(bg *scene.Background) string {
	if bg == nil {
		return ""
	}
	if bg.ID != "" {
		return bg.ID
	}
	return bg.Asset.Ref
}

// Stale reports whether Refresh would rebuild.
func (p *Preview) Stale(front *scene.Scene, bg *scene.Background) bool {
	return !p.built || p.frontVersion != front.Version() || p.background != backgroundKey(bg)
}

// Refresh rebuilds the derived scene if stale and reports whether it did.
func (p *Preview) Refresh(front *scene.Scene, bg *scene.Background) (bool, error) {
	if bg == nil {
		return false, ErrNoBackground
	}
	if !p.Stale(front, bg) {
		return false, nil
	}
	key := backgroundKey(bg)
	if cur := p.target.Background(); cur == nil || backgroundKey(cur) != key {
		b := *bg
		b.ID = key
		if err := p.target.SetBackground(b); err != nil {
			return false, err
		}
	} else {
		p.target.ClearElements()
	}
	if els := Project(front.Elements(), front.Canvas(), p.params); len(els) > 0 {
		if _, err := p.target.InsertElements(els); err != nil {
			return false, err
		}
	}
	p.built = true
	p.frontVersion = front.Version()
	p.background = key
	p.builds++
	return true, nil
}
