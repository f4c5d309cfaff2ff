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

// Package packet contains the units exchanged over a pvrpc channel.
package packet

// Request is sent by the calling side. ID correlates it with
// the Response the peer eventually sends back.
type Request struct {
	ID      string `msgpack:"id" json:"id"`
	Method  string `msgpack:"method" json:"method"`
	Payload any    `msgpack:"payload" json:"payload"`
}

// Response is sent by the peer for a previously received Request.
// If OK is false, Error describes the failure and Payload is unset.
//
// Binary segments travel in Buffers rather than inside Payload.
type Response struct {
	ID      string   `msgpack:"id" json:"id"`
	OK      bool     `msgpack:"ok" json:"ok"`
	Payload any      `msgpack:"payload,omitempty" json:"payload,omitempty"`
	Error   string   `msgpack:"error,omitempty" json:"error,omitempty"`
	Buffers [][]byte `msgpack:"buffers,omitempty" json:"buffers,omitempty"`
}

// Result is the successful outcome of a call
type Result struct {
	Payload any
	Buffers [][]byte
}

// Detacher is implemented by values that carry binary attachments.
// Detach returns the structured part of the value and the buffers
// that should be sent out of band.
type Detacher interface {
	Detach() (payload any, buffers [][]byte)
}

// Attachable is implemented by result types that want to
// receive the binary attachments of a response.
type Attachable interface {
	Attach(buffers [][]byte)
}
