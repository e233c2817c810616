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
	"context"
	"fmt"

	"bagstudio/internal/assets"
	"bagstudio/internal/domain"

	"golang.org/x/sync/semaphore"
)

// AssetFetcher loads the raw bytes behind a remote asset reference.
type AssetFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Resolver turns one element definition into a concrete scene element.
// Resolve runs off the loop and must not touch the scene.
type Resolver interface {
	Resolve(ctx context.Context, def ElementDef) (domain.SceneElement, error)
}

// DefaultResolver decodes inline data URLs directly and fetches remote
// images through Fetcher. At most Parallelism fetches run at once.
type DefaultResolver struct {
	Fetcher AssetFetcher
	Limits  assets.Limits
	sem     *semaphore.Weighted
}

// NewResolver returns a resolver bounded to parallelism concurrent fetches.
func NewResolver(f AssetFetcher, lim assets.Limits, parallelism int) *DefaultResolver {
	if parallelism <= 0 {
		parallelism = 4
	}
	return &DefaultResolver{Fetcher: f, Limits: lim, sem: semaphore.NewWeighted(int64(parallelism))}
}

func (r *DefaultResolver) Resolve(ctx context.Context, def ElementDef) (domain.SceneElement, error) {
	el := def.Element()
	if def.Kind != domain.KindImage {
		return el, nil
	}
	raw, remote, err := r.load(ctx, def.Src)
	if err != nil {
		return domain.SceneElement{}, err
	}
	dec, err := assets.Decode(raw, r.Limits)
	if err != nil {
		return domain.SceneElement{}, fmt.Errorf("elementDefs[%d]: %w", def.Index, err)
	}
	el.Asset = &domain.AssetRef{Raster: dec.Image}
	if remote {
		el.Asset.Ref = def.Src
	} else {
		el.Asset.DataURL = def.Src
	}
	if el.Width <= 0 || el.Height <= 0 {
		b := dec.Image.Bounds()
		el.Width, el.Height = float64(b.Dx()), float64(b.Dy())
	}
	return el, nil
}

func (r *DefaultResolver) load(ctx context.Context, src string) ([]byte, bool, error) {
	if assets.IsDataURL(src) {
		raw, _, err := assets.ParseDataURL(src)
		if err != nil {
			return nil, false, &domain.AssetError{Op: "decode", Ref: "data-url", Err: err}
		}
		return raw, false, nil
	}
	if r.Fetcher == nil {
		return nil, true, &domain.AssetError{Op: "fetch", Ref: src, Err: fmt.Errorf("no asset fetcher configured")}
	}
	if r.sem != nil {
		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil, true, err
		}
		defer r.sem.Release(1)
	}
	raw, err := r.Fetcher.Fetch(ctx, src)
	if err != nil {
		return nil, true, &domain.AssetError{Op: "fetch", Ref: src, Err: err}
	}
	return raw, true, nil
}
