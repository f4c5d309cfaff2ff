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

// Package channel defines the ordered, bidirectional packet transport
// that pvrpc clients and servers run on, along with stream and
// WebSocket implementations of it.
package channel

import "errors"

// ErrClosed is returned when sending on a closed channel
var ErrClosed = errors.New("channel is closed")

// Channel moves packets between two peers. Packets of type Out are
// sent with Send, packets of type In are delivered in arrival order
// on the channel returned by Receive.
//
// Open and Close are idempotent. Once the channel terminates, either
// because Close was called or because the remote end went away, the
// receive channel is closed and Send returns ErrClosed.
type Channel[In, Out any] interface {
	Open() error
	Close() error
	Send(Out) error
	// Receive returns the channel incoming packets are delivered on.
	// It must only have one consumer.
	Receive() <-chan In
}
