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

// Package proxy turns a Dispatcher into typed method callables,
// so callers never have to build packets themselves.
package proxy

import (
	"fmt"
	"time"

	"go.arsenm.dev/pvrpc/future"
	"go.arsenm.dev/pvrpc/internal/reflectutil"
	"go.arsenm.dev/pvrpc/packet"
)

// Dispatcher sends requests and tracks their responses.
// *client.Client implements it.
type Dispatcher interface {
	Open() error
	Close() error
	Send(method string, payload any, timeout time.Duration) *future.Future[packet.Result]
}

// NoArgs is used as the argument type of methods
// that take no arguments. It is sent as a nil payload.
type NoArgs struct{}

// Option configures a method
type Option func(*options)

type options struct {
	timeout time.Duration
}

// Timeout sets how long a call may wait for its response.
// Without it, the dispatcher's default is used.
func Timeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Func is a typed remote method
type Func[A, R any] struct {
	d         Dispatcher
	name      string
	timeout   time.Duration
	normalize func(A) (A, error)
}

// Method returns a callable for the remote method name,
// taking arguments of type A and returning results of type R
func Method[A, R any](d Dispatcher, name string, opts ...Option) Func[A, R] {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	return Func[A, R]{
		d:       d,
		name:    name,
		timeout: o.timeout,
	}
}

// Normalize returns a copy of f that passes every argument through fn
// before sending it. If fn returns an error, the call fails without
// being sent.
func (f Func[A, R]) Normalize(fn func(A) (A, error)) Func[A, R] {
	f.normalize = fn
	return f
}

// Name returns the remote method name
func (f Func[A, R]) Name() string {
	return f.name
}

// Call sends a request for the method and returns
// a future completed with the decoded result
func (f Func[A, R]) Call(arg A) *future.Future[R] {
	if f.normalize != nil {
		var err error
		arg, err = f.normalize(arg)
		if err != nil {
			return future.Rejected[R](fmt.Errorf("%s: %w", f.name, err))
		}
	}

	var payload any = arg
	if _, ok := payload.(NoArgs); ok {
		payload = nil
	}

	res := f.d.Send(f.name, payload, f.timeout)
	return future.Then(res, func(res packet.Result) (R, error) {
		return decode[R](f.name, res)
	})
}

// decode converts the payload of a result to R and hands
// the result's buffers to R if it accepts them
func decode[R any](method string, res packet.Result) (R, error) {
	out, err := reflectutil.To[R](res.Payload)
	if err != nil {
		return out, fmt.Errorf("%s: decoding result: %w", method, err)
	}

	if a, ok := any(&out).(packet.Attachable); ok {
		a.Attach(res.Buffers)
	}

	return out, nil
}
