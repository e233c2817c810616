/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

// Package loop provides the single thread of control that owns the scene.
// Callbacks posted from any goroutine run one at a time, in order, on the
// goroutine that pumps the loop. Blocking I/O runs elsewhere through Go and
// delivers its result back onto the loop.
package loop

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Run after Close.
var ErrClosed = errors.New("loop closed")

// Loop is an unbounded FIFO of callbacks.
type Loop struct {
	mu      sync.Mutex
	queue   []func()
	wake    chan struct{}
	closed  chan struct{}
	once    sync.Once
	pending atomic.Int64
}

// New returns an idle loop.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1), closed: make(chan struct{})}
}

// Post enqueues fn. Safe to call from any goroutine, including loop callbacks.
// Posting to a closed loop drops fn.
func (l *Loop) Post(fn func()) {
	if fn == nil {
		return
	}
	select {
	case <-l.closed:
		return
	default:
	}
	l.mu.Lock()
	l.queue = append(l.queue, fn)
	l.mu.Unlock()
	l.signal()
}

func (l *Loop) signal() {
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

// Drain runs every queued callback, including ones posted while draining,
// and returns how many ran. It never blocks on background work.
func (l *Loop) Drain() int {
	n := 0
	for {
		fn := l.pop()
		if fn == nil {
			return n
		}
		fn()
		n++
	}
}

func (l *Loop) pop() func() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.queue) == 0 {
		return nil
	}
	fn := l.queue[0]
	l.queue[0] = nil
	l.queue = l.queue[1:]
	return fn
}

// Run pumps callbacks until ctx is done or the loop is closed.
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.Drain()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closed:
			l.Drain()
			return ErrClosed
		case <-l.wake:
		}
	}
}

// RunUntil pumps callbacks until cond reports true (checked between
// callbacks on the loop goroutine) or ctx is done.
func (l *Loop) RunUntil(ctx context.Context, cond func() bool) error {
	for {
		if cond() {
			return nil
		}
		if fn := l.pop(); fn != nil {
			fn()
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.closed:
			return ErrClosed
		case <-l.wake:
		}
	}
}

// Idle pumps until no background work started with Go is outstanding and
// the queue is empty.
func (l *Loop) Idle(ctx context.Context) error {
	for {
		l.Drain()
		if l.pending.Load() == 0 && l.empty() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.wake:
		}
	}
}

func (l *Loop) empty() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queue) == 0
}

// Close stops Run; queued callbacks still run once more.
func (l *Loop) Close() { l.once.Do(func() { close(l.closed) }) }

// Go runs work on its own goroutine and posts apply(result, err) back to l.
// apply always runs on the loop, even when ctx was cancelled; callers gate
// application on their own staleness token.
func Go[T any](l *Loop, ctx context.Context, work func(context.Context) (T, error), apply func(T, error)) {
	l.pending.Add(1)
	go func() {
		v, err := work(ctx)
		l.Post(func() { apply(v, err) })
		l.pending.Add(-1)
		l.signal()
	}()
}
