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
	"log/slog"

	"bagstudio/internal/domain"
	applog "bagstudio/internal/log"
	"bagstudio/internal/loop"
	"bagstudio/internal/scene"

	"go.uber.org/multierr"
)

// Loader instantiates templates into a scene. All methods and callbacks
// run on the loop goroutine.
type Loader struct {
	loop     *loop.Loop
	scene    *scene.Scene
	resolver Resolver
	log      *slog.Logger

	// OnStart fires when a load has cleared the scene, before any
	// definition resolves.
	OnStart func(templateID string)
	// OnReady fires exactly once per successful load, after every element
	// was inserted.
	OnReady func(templateID string, count int)
	// OnError receives TemplateParseError for failed loads and
	// RenderSyncError for completion bookkeeping faults.
	OnError func(error)

	active *load
	seq    uint64
}

type load struct {
	seq    uint64
	tpl    domain.Template
	token  scene.Token
	defs   []ElementDef
	slots  []domain.SceneElement
	filled []bool
	done   int
	errs   error
	fired  bool
	cancel context.CancelFunc
}

// NewLoader returns a loader that resolves definitions with r.
func NewLoader(l *loop.Loop, s *scene.Scene, r Resolver) *Loader {
	return &Loader{loop: l, scene: s, resolver: r, log: applog.WithComponent("templates")}
}

// Load parses tpl, clears every non-background element and resolves the
// definitions concurrently. A parse failure is returned before the scene is
// touched. Failures while resolving are reported through OnError and leave
// the scene background-only.
func (l *Loader) Load(ctx context.Context, tpl domain.Template) error {
	defs, err := Parse(tpl)
	if err != nil {
		l.log.Warn("template rejected", slog.String("template", tpl.ID), slog.Any("err", err))
		return err
	}
	if _, ok := l.scene.Region(); !ok {
		return domain.ErrClipRegionMissing
	}
	l.Cancel()
	l.scene.ClearElements()
	if l.OnStart != nil {
		l.OnStart(tpl.ID)
	}

	lctx, cancel := context.WithCancel(ctx)
	l.seq++
	ld := &load{
		seq:    l.seq,
		tpl:    tpl,
		token:  l.scene.Token(),
		defs:   defs,
		slots:  make([]domain.SceneElement, len(defs)),
		filled: make([]bool, len(defs)),
		cancel: cancel,
	}
	l.active = ld
	l.log.Debug("template load started", slog.String("template", tpl.ID), slog.Int("elements", len(defs)), slog.Uint64("seq", ld.seq))
	if len(defs) == 0 {
		l.finish(ld)
		return nil
	}
	for i, def := range defs {
		i, def := i, def
		loop.Go(l.loop, lctx, func(ctx context.Context) (domain.SceneElement, error) {
			return l.resolver.Resolve(ctx, def)
		}, func(el domain.SceneElement, err error) {
			l.complete(ld, i, el, err)
		})
	}
	return nil
}

// complete records the result for slot i. Results for superseded loads are
// dropped.
func (l *Loader) complete(ld *load, i int, el domain.SceneElement, err error) {
	if ld != l.active || !l.scene.Valid(ld.token) {
		l.log.Debug("stale element resolution dropped", slog.String("template", ld.tpl.ID), slog.Int("index", i))
		return
	}
	if i < 0 || i >= len(ld.slots) || ld.filled[i] {
		l.report(&domain.RenderSyncError{TemplateID: ld.tpl.ID, Detail: fmt.Sprintf("duplicate completion for elementDefs[%d]", i)})
		return
	}
	ld.filled[i] = true
	ld.done++
	if err != nil {
		ld.errs = multierr.Append(ld.errs, err)
	} else {
		ld.slots[i] = el
	}
	if ld.done == len(ld.slots) {
		l.finish(ld)
	}
}

func (l *Loader) finish(ld *load) {
	if ld.fired {
		l.report(&domain.RenderSyncError{TemplateID: ld.tpl.ID, Detail: "ready already signalled"})
		return
	}
	ld.fired = true
	ld.cancel()
	if ld.errs != nil {
		l.report(&domain.TemplateParseError{TemplateID: ld.tpl.ID, Err: ld.errs})
		return
	}
	ids, err := l.scene.InsertElements(ld.slots)
	if err != nil {
		l.report(&domain.TemplateParseError{TemplateID: ld.tpl.ID, Err: err})
		return
	}
	l.log.Info("template ready", slog.String("template", ld.tpl.ID), slog.Int("elements", len(ids)))
	if l.OnReady != nil {
		l.OnReady(ld.tpl.ID, len(ids))
	}
}

func (l *Loader) report(err error) {
	l.log.Warn("template load failed", slog.Any("err", err))
	if l.OnError != nil {
		l.OnError(err)
	}
}

// Active returns the template of the current load, finished or not.
func (l *Loader) Active() (domain.Template, bool) {
	if l.active == nil {
		return domain.Template{}, false
	}
	return l.active.tpl, true
}

// Progress reports resolved and total definitions of the current load.
func (l *Loader) Progress() (done, total int) {
	if l.active == nil {
		return 0, 0
	}
	return l.active.done, len(l.active.slots)
}

// Finished reports whether the current load delivered its outcome.
func (l *Loader) Finished() bool { return l.active != nil && l.active.fired }

// Cancel abandons the current load. Outstanding resolutions are dropped.
func (l *Loader) Cancel() {
	if l.active == nil {
		return
	}
	l.active.cancel()
	l.active = nil
}
