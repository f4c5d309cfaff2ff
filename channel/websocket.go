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

package channel

import (
	"go.arsenm.dev/pvrpc/codec"
	"go.arsenm.dev/pvrpc/packet"
	"golang.org/x/net/websocket"
)

// DialWS connects to a pvrpc server listening on a WebSocket and
// returns a client-side stream. origin defaults to url.
func DialWS(url, origin string, cf codec.CodecFunc, opts ...Option) (*Stream[*packet.Response, *packet.Request], error) {
	if origin == "" {
		origin = url
	}

	conn, err := websocket.Dial(url, "", origin)
	if err != nil {
		return nil, err
	}
	conn.PayloadType = websocket.BinaryFrame

	return NewStream[*packet.Response, *packet.Request](conn, cf, opts...), nil
}
