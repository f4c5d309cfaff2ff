/*
 *	pvrpc carries typed method calls over ordered packet channels.
 *	Copyright (C) 2022 Arsen Musayelyan
 *
 *	This program is free software: you can redistribute it and/or modify
 *	it under the terms of the GNU General Public License as published by
 *	the Free Software Foundation, either version 3 of the License, or
 *	(at your option) any later version.
 *
 *	This program is distributed in the hope that it will be useful,
 *	but WITHOUT ANY WARRANTY; without even the implied warranty of
 *	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 *	GNU General Public License for more details.
 *
 *	You should have received a copy of the GNU General Public License
 *	along with this program.  If not, see <http://www.gnu.org/licenses/>.
 */

// Package future provides a handle for a value that becomes
// available later and can be shared by any number of waiters.
package future

import (
	"context"
	"sync"
)

// Future holds the outcome of an operation that may not have completed yet.
// It completes exactly once, either with a value or with an error.
type Future[T any] struct {
	mtx  sync.Mutex
	done chan struct{}
	val  T
	err  error

	callbacks []func(T, error)
}

// New returns a pending Future
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future that has already completed with val
func Resolved[T any](val T) *Future[T] {
	f := New[T]()
	f.Resolve(val)
	return f
}

// Rejected returns a Future that has already failed with err
func Rejected[T any](err error) *Future[T] {
	f := New[T]()
	f.Reject(err)
	return f
}

// Resolve completes the future with val. It returns false
// if the future was already complete.
func (f *Future[T]) Resolve(val T) bool {
	return f.complete(val, nil)
}

// Reject completes the future with err. It returns false
// if the future was already complete.
func (f *Future[T]) Reject(err error) bool {
	var zero T
	return f.complete(zero, err)
}

func (f *Future[T]) complete(val T, err error) bool {
	f.mtx.Lock()
	select {
	case <-f.done:
		f.mtx.Unlock()
		return false
	default:
	}
	f.val, f.err = val, err
	close(f.done)
	cbs := f.callbacks
	f.callbacks = nil
	f.mtx.Unlock()

	for _, cb := range cbs {
		cb(val, err)
	}
	return true
}

// Done returns a channel that is closed once the future completes
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Peek returns the outcome without waiting. done is false
// if the future is still pending.
func (f *Future[T]) Peek() (val T, done bool, err error) {
	select {
	case <-f.done:
		return f.val, true, f.err
	default:
		return val, false, nil
	}
}

// Await waits for the future to complete or for ctx to be done.
// Giving up because of ctx does not affect the future itself.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// OnComplete registers fn to be called with the outcome.
// If the future has already completed, fn is called immediately
// in the calling goroutine, otherwise it runs in the goroutine
// that completes the future. fn must not block.
func (f *Future[T]) OnComplete(fn func(T, error)) {
	f.mtx.Lock()
	select {
	case <-f.done:
		f.mtx.Unlock()
		fn(f.val, f.err)
		return
	default:
	}
	f.callbacks = append(f.callbacks, fn)
	f.mtx.Unlock()
}

// Then returns a future completed with fn applied to the value of f.
// If f fails, the returned future fails with the same error.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := New[U]()
	f.OnComplete(func(val T, err error) {
		if err != nil {
			out.Reject(err)
			return
		}
		res, err := fn(val)
		if err != nil {
			out.Reject(err)
			return
		}
		out.Resolve(res)
	})
	return out
}
