/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the
 *  specific language governing permissions and limitations under the License.
 */

package loop

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestDrainRunsInOrderIncludingNested(t *testing.T) {
	l := New()
	var got []int
	l.Post(func() {
		got = append(got, 1)
		l.Post(func() { got = append(got, 3) })
	})
	l.Post(func() { got = append(got, 2) })
	if n := l.Drain(); n != 3 {
		t.Fatalf("Drain ran %d callbacks, want 3", n)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("order = %v", got)
	}
	if l.Drain() != 0 {
		t.Fatalf("second drain should be empty")
	}
}

func TestGoAppliesOnLoopGoroutine(t *testing.T) {
	l := New()
	var mu sync.Mutex
	applied := 0
	for i := 0; i < 10; i++ {
		Go(l, context.Background(), func(context.Context) (int, error) { return i, nil }, func(v int, err error) {
			mu.Lock()
			applied++
			mu.Unlock()
		})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Idle(ctx); err != nil {
		t.Fatalf("Idle: %v", err)
	}
	if applied != 10 {
		t.Fatalf("applied = %d", applied)
	}
}

func TestRunUntilStopsOnCondition(t *testing.T) {
	l := New()
	done := false
	Go(l, context.Background(), func(context.Context) (string, error) {
		time.Sleep(10 * time.Millisecond)
		return "", errors.New("boom")
	}, func(_ string, err error) {
		done = err != nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.RunUntil(ctx, func() bool { return done }); err != nil {
		t.Fatalf("RunUntil: %v", err)
	}
}

func TestRunReturnsOnClose(t *testing.T) {
	l := New()
	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	errc := make(chan error, 1)
	go func() { errc <- l.Run(context.Background()) }()
	<-ran
	l.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Run error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("Run did not return after Close")
	}
	l.Post(func() { t.Errorf("posted after close must not run") })
	l.Drain()
}

func TestRunHonorsContext(t *testing.T) {
	l := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run error = %v", err)
	}
}
