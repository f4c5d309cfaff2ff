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

// Package client implements the calling side of pvrpc. It assigns
// correlation ids to outgoing requests and matches incoming
// responses to the calls waiting for them.
package client

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"go.arsenm.dev/pvrpc/channel"
	"go.arsenm.dev/pvrpc/future"
	"go.arsenm.dev/pvrpc/internal/reflectutil"
	"go.arsenm.dev/pvrpc/metrics"
	"go.arsenm.dev/pvrpc/packet"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// DefaultTimeout is used for calls sent without a timeout
const DefaultTimeout = 10 * time.Second

// Channel is the transport a client runs on
type Channel = channel.Channel[*packet.Response, *packet.Request]

// Option configures a Client
type Option func(*Client)

// WithLogger sets the client's logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithMetrics sets the collectors the client reports to
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithDefaultTimeout sets the timeout used when Send
// is called with a non-positive timeout
func WithDefaultTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// pending tracks a call waiting for its response
type pending struct {
	method  string
	fut     *future.Future[packet.Result]
	timer   *time.Timer
	sent    time.Time
	timeout time.Duration
}

// outgoing is a request waiting to be written to the channel
type outgoing struct {
	id  string
	p   *pending
	req *packet.Request
}

// Client is a pvrpc client
type Client struct {
	ch      Channel
	logger  *zap.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mtx     sync.Mutex
	opened  bool
	closed  bool
	pending map[string]*pending

	// Requests are written by a single goroutine so
	// that Send never blocks on the channel
	queue []outgoing
	wake  chan struct{}
	done  chan struct{}
}

// New creates and returns a new client on top of ch.
// The channel is opened by Open or by the first call.
func New(ch Channel, opts ...Option) *Client {
	out := &Client{
		ch:      ch,
		logger:  zap.NewNop(),
		timeout: DefaultTimeout,
		pending: map[string]*pending{},
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	for _, opt := range opts {
		opt(out)
	}

	return out
}

// Open opens the underlying channel and starts handling responses.
// Calling Open more than once has no effect.
func (c *Client) Open() error {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.opened {
		return nil
	}

	err := c.ch.Open()
	if err != nil {
		return err
	}
	c.opened = true

	go c.handleResponses(c.ch.Receive())
	go c.writeLoop()
	return nil
}

// Close closes the underlying channel and rejects every pending
// call with ErrClosed. Calling Close more than once has no effect.
func (c *Client) Close() error {
	if !c.shutdown() {
		return nil
	}
	return c.ch.Close()
}

// Pending returns the number of calls waiting for a response
func (c *Client) Pending() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return len(c.pending)
}

// Send queues a request for method and returns a future that completes
// when the matching response arrives. It never waits for the request
// to be written. If no response arrives within
// timeout, the future fails with ErrTimeout. A non-positive timeout
// selects the client's default.
func (c *Client) Send(method string, payload any, timeout time.Duration) *future.Future[packet.Result] {
	if timeout <= 0 {
		timeout = c.timeout
	}

	err := c.Open()
	if err != nil {
		return future.Rejected[packet.Result](err)
	}

	fut := future.New[packet.Result]()

	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		fut.Reject(ErrClosed)
		return fut
	}

	id, err := c.newID()
	if err != nil {
		c.mtx.Unlock()
		fut.Reject(err)
		return fut
	}

	p := &pending{
		method:  method,
		fut:     fut,
		sent:    time.Now(),
		timeout: timeout,
	}
	// The entry must exist before the request is sent, as the
	// response may arrive before Send returns
	c.pending[id] = p
	p.timer = time.AfterFunc(timeout, func() {
		c.expire(id, p)
	})
	c.metrics.CallStarted()

	c.queue = append(c.queue, outgoing{
		id: id,
		p:  p,
		req: &packet.Request{
			ID:      id,
			Method:  method,
			Payload: payload,
		},
	})
	c.mtx.Unlock()

	// Wake the writer if it isn't already awake
	select {
	case c.wake <- struct{}{}:
	default:
	}

	return fut
}

// writeLoop writes queued requests to the channel until the client closes
func (c *Client) writeLoop() {
	for {
		select {
		case <-c.wake:
		case <-c.done:
			return
		}

		for {
			out, ok := c.dequeue()
			if !ok {
				break
			}
			c.write(out)
		}
	}
}

// dequeue returns the next queued request whose call is still pending.
// Requests of calls that already timed out are dropped.
func (c *Client) dequeue() (outgoing, bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	for len(c.queue) > 0 {
		out := c.queue[0]
		c.queue[0] = outgoing{}
		c.queue = c.queue[1:]

		if cur, ok := c.pending[out.id]; ok && cur == out.p {
			return out, true
		}
	}
	return outgoing{}, false
}

// write sends a request, failing its call if that isn't possible
func (c *Client) write(out outgoing) {
	c.logger.Debug("sending request",
		zap.String("id", out.id),
		zap.String("method", out.p.method),
		zap.Duration("timeout", out.p.timeout),
	)

	err := c.ch.Send(out.req)
	if err == nil {
		return
	}

	outcome := metrics.OutcomeSendFailure
	if errors.Is(err, channel.ErrClosed) {
		outcome = metrics.OutcomeClosed
		err = ErrClosed
	} else {
		err = fmt.Errorf("%s: sending request: %w", out.p.method, err)
	}
	if c.take(out.id, out.p) {
		out.p.timer.Stop()
		c.metrics.CallFinished(out.p.method, outcome, 0)
		out.p.fut.Reject(err)
	}
}

// Call calls a method on the server and waits for the result,
// storing it in ret, which must be a pointer unless it is nil.
// Canceling ctx stops waiting, but the call itself stays pending
// until its response or timeout.
func (c *Client) Call(ctx context.Context, method string, arg any, ret any) error {
	res, err := c.Send(method, arg, 0).Await(ctx)
	if err != nil {
		return err
	}

	// If there is nowhere to store a result, stop now
	if ret == nil {
		return nil
	}

	// Get reflect value of return value
	retVal := reflect.ValueOf(ret)
	// IF return value is not a pointer, return error
	if retVal.Kind() != reflect.Ptr {
		return ErrReturnNotPointer
	}

	if res.Payload != nil {
		// Get return type
		retType := retVal.Type().Elem()
		// Attempt to convert types, return error if not possible
		rVal, err := reflectutil.Convert(reflect.ValueOf(res.Payload), retType)
		if err != nil {
			return err
		}
		// Set return value to received value
		retVal.Elem().Set(rVal)
	}

	if a, ok := ret.(packet.Attachable); ok {
		a.Attach(res.Buffers)
	}

	return nil
}

// newID returns a correlation id not used by any pending call.
// c.mtx must be held.
func (c *Client) newID() (string, error) {
	for {
		// Create new v4 UUID
		id, err := uuid.NewV4()
		if err != nil {
			return "", err
		}
		idStr := id.String()

		if _, ok := c.pending[idStr]; !ok {
			return idStr, nil
		}
	}
}

// take removes p from the pending table if it's still there
// under id. It returns false if p was already completed.
func (c *Client) take(id string, p *pending) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	cur, ok := c.pending[id]
	if !ok || cur != p {
		return false
	}
	delete(c.pending, id)
	return true
}

// expire is called when a call's timeout elapses
func (c *Client) expire(id string, p *pending) {
	if !c.take(id, p) {
		return
	}

	c.logger.Warn("call timed out",
		zap.String("id", id),
		zap.String("method", p.method),
		zap.Duration("timeout", p.timeout),
	)
	c.metrics.CallFinished(p.method, metrics.OutcomeTimeout, 0)
	p.fut.Reject(timeoutError(p.method, p.timeout))
}

func (c *Client) handleResponses(in <-chan *packet.Response) {
	for resp := range in {
		if resp == nil {
			continue
		}
		c.handleResponse(resp)
	}

	// The channel has terminated, nothing
	// pending can be answered anymore
	if c.shutdown() {
		c.logger.Debug("channel terminated, client closed")
	}
}

func (c *Client) handleResponse(resp *packet.Response) {
	// Get pending call from map, discard response if it doesn't exist
	c.mtx.Lock()
	p, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mtx.Unlock()

	if !ok {
		// Most likely a response to a call that has already
		// timed out, so this is not an error
		c.logger.Debug("discarding response",
			zap.String("id", resp.ID),
			zap.Error(ErrProtocolMismatch),
		)
		c.metrics.UnmatchedResponse()
		return
	}
	p.timer.Stop()

	elapsed := time.Since(p.sent).Seconds()
	if !resp.OK {
		c.metrics.CallFinished(p.method, metrics.OutcomeRemoteFailure, elapsed)
		p.fut.Reject(&RemoteError{
			Method:  p.method,
			Message: resp.Error,
		})
		return
	}

	c.metrics.CallFinished(p.method, metrics.OutcomeOK, elapsed)
	p.fut.Resolve(packet.Result{
		Payload: resp.Payload,
		Buffers: resp.Buffers,
	})
}

// shutdown marks the client closed and rejects all pending calls.
// It returns false if the client was already closed.
func (c *Client) shutdown() bool {
	c.mtx.Lock()
	if c.closed {
		c.mtx.Unlock()
		return false
	}
	c.closed = true
	pend := c.pending
	c.pending = map[string]*pending{}
	c.queue = nil
	close(c.done)
	c.mtx.Unlock()

	for id, p := range pend {
		p.timer.Stop()
		c.logger.Debug("rejecting pending call",
			zap.String("id", id),
			zap.String("method", p.method),
		)
		c.metrics.CallFinished(p.method, metrics.OutcomeClosed, 0)
		p.fut.Reject(ErrClosed)
	}
	return true
}
