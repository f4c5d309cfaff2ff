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
	"errors"
	"io"
	"net"
	"sync"

	"go.arsenm.dev/pvrpc/codec"
	"go.uber.org/zap"
)

// Option configures a Stream
type Option func(*options)

type options struct {
	logger  *zap.Logger
	backlog int
}

// WithLogger sets the logger used by the stream
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithBacklog sets how many decoded packets may be buffered
// before the stream stops reading from the connection
func WithBacklog(n int) Option {
	return func(o *options) {
		o.backlog = n
	}
}

// Stream is a Channel over any io.ReadWriteCloser,
// using a codec to encode and decode packets
type Stream[In, Out any] struct {
	conn   io.ReadWriteCloser
	codec  codec.Codec
	logger *zap.Logger

	encMtx sync.Mutex

	in        chan In
	done      chan struct{}
	openOnce  sync.Once
	closeOnce sync.Once
}

// NewStream creates a new stream bound to conn. Packets are not
// read until Open is called.
func NewStream[In, Out any](conn io.ReadWriteCloser, cf codec.CodecFunc, opts ...Option) *Stream[In, Out] {
	o := options{
		logger:  zap.NewNop(),
		backlog: 16,
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Stream[In, Out]{
		conn:   conn,
		codec:  cf(conn),
		logger: o.logger,
		in:     make(chan In, o.backlog),
		done:   make(chan struct{}),
	}
}

// Open starts reading packets from the connection
func (s *Stream[In, Out]) Open() error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.openOnce.Do(func() {
		go s.readLoop()
	})
	return nil
}

// Close closes the stream and its underlying connection
func (s *Stream[In, Out]) Close() (err error) {
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}

// Send encodes a packet onto the connection
func (s *Stream[In, Out]) Send(pkt Out) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}

	s.encMtx.Lock()
	defer s.encMtx.Unlock()

	err := s.codec.Encode(pkt)
	if err != nil && isClosedErr(err) {
		return ErrClosed
	}
	return err
}

// Receive returns the channel decoded packets are sent to
func (s *Stream[In, Out]) Receive() <-chan In {
	return s.in
}

// Done returns a channel that's closed once the stream is closed
func (s *Stream[In, Out]) Done() <-chan struct{} {
	return s.done
}

func (s *Stream[In, Out]) readLoop() {
	defer close(s.in)
	// Once the connection can no longer be read,
	// the stream is of no further use
	defer s.Close()

	for {
		var pkt In
		// Attempt to decode packet using codec
		err := s.codec.Decode(&pkt)
		if err != nil {
			if !isClosedErr(err) {
				s.logger.Warn("decoding packet failed, closing stream", zap.Error(err))
			}
			return
		}

		select {
		case s.in <- pkt:
		case <-s.done:
			return
		}
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed)
}
