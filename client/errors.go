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

package client

import (
	"errors"
	"fmt"
	"time"
)

// Client error values
var (
	// ErrTimeout is returned when no response arrives
	// within a call's timeout
	ErrTimeout = errors.New("call timed out")
	// ErrClosed is returned when the client or its channel is closed
	// while a call is pending, or when a call is attempted after closing
	ErrClosed = errors.New("client is closed")
	// ErrRemoteFailure matches every *RemoteError
	ErrRemoteFailure = errors.New("remote call failed")
	// ErrProtocolMismatch describes a response with no pending call.
	// It is only logged, as no caller is waiting for it.
	ErrProtocolMismatch = errors.New("response does not match any pending call")
	// ErrReturnNotPointer is returned by Call if ret is not a pointer
	ErrReturnNotPointer = errors.New("function call returns value but return value is not a pointer")
)

// RemoteError is a failure reported by the peer
type RemoteError struct {
	Method  string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: %s", e.Method, e.Message)
}

// Is reports whether target is ErrRemoteFailure
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteFailure
}

func timeoutError(method string, d time.Duration) error {
	return fmt.Errorf("%s: %w after %s", method, ErrTimeout, d)
}
