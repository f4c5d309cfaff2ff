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

// Package server implements the peer side of pvrpc. It decodes
// requests from a channel, dispatches them to registered handlers
// and sends back their results.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"sync"
	"unicode"
	"unicode/utf8"

	"go.arsenm.dev/pvrpc/channel"
	"go.arsenm.dev/pvrpc/codec"
	"go.arsenm.dev/pvrpc/internal/reflectutil"
	"go.arsenm.dev/pvrpc/metrics"
	"go.arsenm.dev/pvrpc/packet"

	"go.uber.org/zap"
	"golang.org/x/net/websocket"
)

var (
	ErrInvalidType        = errors.New("type must be struct or pointer to struct")
	ErrNoSuchMethod       = errors.New("no such method was found")
	ErrInvalidMethod      = errors.New("method invalid for pvrpc call")
	ErrUnexpectedArgument = errors.New("argument provided but the function does not accept any arguments")
	ErrHandlerPanic       = errors.New("handler panicked")
)

var (
	ctxType   = reflect.TypeOf((*Context)(nil))
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// Stream is the server side of a channel
type Stream = channel.Channel[*packet.Request, *packet.Response]

// Option configures a Server
type Option func(*Server)

// WithLogger sets the server's logger
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithMetrics sets the collectors the server reports to
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// Server is a pvrpc server
type Server struct {
	logger  *zap.Logger
	metrics *metrics.Metrics

	mtdsMtx sync.RWMutex
	mtds    map[string]reflect.Value

	ctx    context.Context
	cancel context.CancelFunc

	streamsMtx sync.Mutex
	streams    map[Stream]struct{}
}

// New creates and returns a new server
func New(opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())

	// Create new server
	out := &Server{
		logger:  zap.NewNop(),
		mtds:    map[string]reflect.Value{},
		ctx:     ctx,
		cancel:  cancel,
		streams: map[Stream]struct{}{},
	}

	for _, opt := range opts {
		opt(out)
	}

	return out
}

// Close cancels all handlers and closes all connections
func (s *Server) Close() {
	s.cancel()

	s.streamsMtx.Lock()
	defer s.streamsMtx.Unlock()
	for st := range s.streams {
		st.Close()
	}
}

// Register registers every valid exported method of v. Methods are
// registered under their name with the first letter lowercased, so
// a method named Frame handles calls to "frame".
func (s *Server) Register(v any) error {
	// Get reflect values for v
	val := reflect.ValueOf(v)

	switch val.Kind() {
	case reflect.Ptr:
		if val.Elem().Kind() != reflect.Struct {
			return ErrInvalidType
		}
	case reflect.Struct:
	default:
		// If v is not pointer or struct, return error
		return ErrInvalidType
	}

	s.mtdsMtx.Lock()
	defer s.mtdsMtx.Unlock()

	// For every method of v
	for i := 0; i < val.NumMethod(); i++ {
		mtd := val.Method(i)
		// If invalid, skip
		if !mtdValid(mtd) {
			continue
		}
		s.mtds[lowerFirst(val.Type().Method(i).Name)] = mtd
	}

	return nil
}

// Handle registers fn as the handler for method. fn must be a
// function accepting a *Context and optionally an argument, and
// returning at most a value and an error.
func (s *Server) Handle(method string, fn any) error {
	val := reflect.ValueOf(fn)
	if val.Kind() != reflect.Func || !mtdValid(val) {
		return ErrInvalidMethod
	}

	s.mtdsMtx.Lock()
	s.mtds[method] = val
	s.mtdsMtx.Unlock()
	return nil
}

// Methods returns the names of all registered methods
func (s *Server) Methods() []string {
	s.mtdsMtx.RLock()
	defer s.mtdsMtx.RUnlock()

	out := make([]string, 0, len(s.mtds))
	for name := range s.mtds {
		out = append(out, name)
	}
	return out
}

// execute runs a registered method
func (s *Server) execute(ctx *Context, arg any) (a any, err error) {
	// Try to retrieve given method
	s.mtdsMtx.RLock()
	mtd, ok := s.mtds[ctx.method]
	s.mtdsMtx.RUnlock()
	if !ok {
		return nil, ErrNoSuchMethod
	}

	// Get method type
	mtdType := mtd.Type()

	// Return error if argument provided but isn't expected
	if mtdType.NumIn() == 1 && arg != nil {
		return nil, ErrUnexpectedArgument
	}

	// Get reflect value of context
	in := []reflect.Value{reflect.ValueOf(ctx)}

	if mtdType.NumIn() == 2 {
		argType := mtdType.In(1)

		var argVal reflect.Value
		if arg == nil {
			// Missing arguments become the zero value
			argVal = reflect.Zero(argType)
		} else if anySlice, ok := arg.([]any); ok {
			// Convert slice to the method's arg type
			argVal = reflect.ValueOf(reflectutil.ConvertSlice(anySlice, argType))
		} else {
			argVal, err = reflectutil.Convert(reflect.ValueOf(arg), argType)
			if err != nil {
				return nil, err
			}
		}
		in = append(in, argVal)
	}

	defer func() {
		if r := recover(); r != nil {
			ctx.logger.Error("handler panicked", zap.Any("panic", r))
			a, err = nil, fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()

	out := mtd.Call(in)

	switch len(out) {
	case 1: // If method has one return value
		// If the return value's type is error
		if mtdType.Out(0) == errorType {
			return nil, asError(out[0])
		}
		return out[0].Interface(), nil
	case 2: // If method has two return values
		return out[0].Interface(), asError(out[1])
	}

	return nil, nil
}

// Serve starts the server using the provided listener
// and codec function
func (s *Server) Serve(ctx context.Context, ln net.Listener, cf codec.CodecFunc) {
	go func() {
		select {
		case <-ctx.Done():
		case <-s.ctx.Done():
		}
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if errors.Is(err, net.ErrClosed) {
			break
		} else if err != nil {
			s.logger.Warn("accepting connection failed", zap.Error(err))
			continue
		}

		// Handle connection
		go s.ServeConn(ctx, conn, cf)
	}
}

// WSHandler returns an HTTP handler serving pvrpc over WebSocket.
// This may be useful for clients written in other languages,
// such as JS for a browser.
func (s *Server) WSHandler(cf codec.CodecFunc) http.Handler {
	// Create new WebSocket server
	return websocket.Server{
		// Create new WebSocket config
		Config: websocket.Config{
			Version: websocket.ProtocolVersionHybi13,
		},
		// Set server handler
		Handler: func(c *websocket.Conn) {
			c.PayloadType = websocket.BinaryFrame
			s.ServeConn(c.Request().Context(), c, cf)
		},
	}
}

// ServeWS starts a server using WebSocket
func (s *Server) ServeWS(ctx context.Context, addr string, cf codec.CodecFunc) (err error) {
	server := &http.Server{
		Addr: addr,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
		Handler: s.WSHandler(cf),
	}

	go func() {
		<-ctx.Done()
		server.Close()
	}()

	// Listen and serve on given address
	err = server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// ServeConn uses the provided connection to serve the client.
// This may be useful if something other than a net.Listener
// needs to be used. It returns once the connection is closed.
func (s *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser, cf codec.CodecFunc) {
	s.ServeChannel(ctx, channel.NewStream[*packet.Request, *packet.Response](
		conn,
		cf,
		channel.WithLogger(s.logger),
	))
}

// ServeChannel serves requests received on st until it terminates
func (s *Server) ServeChannel(ctx context.Context, st Stream) {
	err := st.Open()
	if err != nil {
		s.logger.Warn("opening channel failed", zap.Error(err))
		return
	}

	s.streamsMtx.Lock()
	s.streams[st] = struct{}{}
	s.streamsMtx.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		st.Close()

		s.streamsMtx.Lock()
		delete(s.streams, st)
		s.streamsMtx.Unlock()
	}()

	// Close the channel once the server is closed
	// or the parent context is canceled
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()
	go func() {
		<-ctx.Done()
		st.Close()
	}()

	for req := range st.Receive() {
		if req == nil {
			continue
		}
		// Requests are handled concurrently, so responses
		// may be sent in a different order
		go s.handleRequest(ctx, st, req)
	}
}

// handleRequest executes a request and sends its response
func (s *Server) handleRequest(pCtx context.Context, st Stream, req *packet.Request) {
	ctx := newContext(pCtx, req.ID, req.Method, s.logger)

	val, err := s.execute(ctx, req.Payload)
	if err != nil {
		s.metrics.ServerRequest(req.Method, metrics.OutcomeRemoteFailure)
		ctx.logger.Debug("request failed", zap.Error(err))
		s.send(ctx, st, &packet.Response{
			ID:    req.ID,
			Error: err.Error(),
		})
		return
	}

	// Create response
	res := &packet.Response{
		ID:      req.ID,
		OK:      true,
		Payload: val,
	}

	// Move binary attachments out of the payload
	if d, ok := val.(packet.Detacher); ok {
		res.Payload, res.Buffers = d.Detach()
	}

	s.metrics.ServerRequest(req.Method, metrics.OutcomeOK)
	s.send(ctx, st, res)
}

func (s *Server) send(ctx *Context, st Stream, res *packet.Response) {
	err := st.Send(res)
	if err != nil && !errors.Is(err, channel.ErrClosed) {
		ctx.logger.Warn("sending response failed", zap.Error(err))
	}
}

func asError(val reflect.Value) error {
	if val.IsNil() {
		return nil
	}
	return val.Interface().(error)
}

func lowerFirst(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[n:]
}

func mtdValid(mtd reflect.Value) bool {
	// Get method's type
	mtdType := mtd.Type()

	// If method has more than 2 or less than 1 input, it is invalid
	if mtdType.NumIn() > 2 || mtdType.NumIn() < 1 {
		return false
	}

	// If method has more than 2 outputs, it is invalid
	if mtdType.NumOut() > 2 {
		return false
	}

	// Check to ensure first parameter is context
	if mtdType.In(0) != ctxType {
		return false
	}

	// If method has 2 outputs
	if mtdType.NumOut() == 2 {
		// Check to ensure the second one is an error
		if mtdType.Out(1) != errorType {
			return false
		}
	}

	return true
}
