/*
 * Copyright (c) "Lodestone"
 * Lodestone Database Systems
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package async adds the small set of future helpers the session chains
// need on top of the go-future primitives.
package async

import (
	"context"

	"github.com/jizhuozhi/go-future"
)

// Run executes f on its own goroutine and exposes its completion as a
// future.
func Run[T any](f func() (T, error)) *future.Future[T] {
	p := future.NewPromise[T]()
	go func() {
		p.Set(f())
	}()
	return p.Future()
}

// Completed returns an already resolved future.
func Completed[T any](val T) *future.Future[T] {
	p := future.NewPromise[T]()
	p.Set(val, nil)
	return p.Future()
}

// Failed returns an already failed future.
func Failed[T any](err error) *future.Future[T] {
	p := future.NewPromise[T]()
	var zero T
	p.Set(zero, err)
	return p.Future()
}

// Normalized resolves to the same value as f but swallows its failure,
// so stored stage references are never poisoned by a failed predecessor.
func Normalized[T any](f *future.Future[T]) *future.Future[T] {
	return Run(func() (T, error) {
		val, err := f.Get()
		if err != nil {
			var zero T
			return zero, nil
		}
		return val, nil
	})
}

// BlockingGet waits for f, honouring cancellation of ctx: when ctx is done
// before the future resolves, onInterrupt is invoked (best effort
// termination of the current connection) and the context error is
// returned.
func BlockingGet[T any](ctx context.Context, f *future.Future[T], onInterrupt func()) (T, error) {
	done := make(chan struct{})
	var val T
	var err error
	go func() {
		val, err = f.Get()
		close(done)
	}()
	select {
	case <-done:
		return val, err
	case <-ctx.Done():
		if onInterrupt != nil {
			onInterrupt()
		}
		var zero T
		return zero, ctx.Err()
	}
}
