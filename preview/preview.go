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

// Package preview implements the RPC surface of a clip preview:
// querying the length of a clip and rendering individual frames.
//
// New wires a client channel into a proxy-backed RPC with a frame
// cache in front of it. The peer side is provided by Service.
package preview

import (
	"fmt"
	"time"

	"go.arsenm.dev/pvrpc/client"
	"go.arsenm.dev/pvrpc/future"
	"go.arsenm.dev/pvrpc/proxy"
)

// DefaultTimeout is the timeout of preview calls
const DefaultTimeout = 10 * time.Second

// Image selects which image of a frame is rendered
type Image string

// Image kinds
const (
	ImageClip Image = "clip"
	ImageDiff Image = "diff"
)

// LengthResult is the result of Length
type LengthResult struct {
	Length int `json:"length"`
}

// FrameRequest requests a single frame.
// An empty Image selects ImageClip.
type FrameRequest struct {
	Frame int   `json:"frame"`
	Image Image `json:"image,omitempty"`
}

// FrameResult is a rendered frame. The image data is
// carried as binary attachments in Buffers.
type FrameResult struct {
	Size    [2]int   `json:"size"`
	Buffers [][]byte `json:"-"`
}

// Attach stores the attachments of the response in r
func (r *FrameResult) Attach(buffers [][]byte) {
	r.Buffers = buffers
}

// Detach splits r into its structured part and its attachments
func (r FrameResult) Detach() (any, [][]byte) {
	bufs := r.Buffers
	r.Buffers = nil
	return r, bufs
}

// RPC is the method surface of a preview
type RPC interface {
	Open() error
	Close() error
	// Length returns the number of frames of the clip
	Length() *future.Future[LengthResult]
	// Frame renders a frame
	Frame(FrameRequest) *future.Future[FrameResult]
}

// normalize fills in defaults and rejects invalid requests
func (r FrameRequest) normalize() (FrameRequest, error) {
	if r.Frame < 0 {
		return r, fmt.Errorf("invalid frame number %d", r.Frame)
	}

	switch r.Image {
	case "":
		r.Image = ImageClip
	case ImageClip, ImageDiff:
	default:
		return r, fmt.Errorf("invalid image kind %q", r.Image)
	}
	return r, nil
}

// Option configures a preview RPC
type Option func(*options)

type options struct {
	timeout    time.Duration
	cacheOpts  []CacheOption
	clientOpts []client.Option
}

// WithTimeout sets the timeout of every call
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// WithCache configures the frame cache
func WithCache(opts ...CacheOption) Option {
	return func(o *options) {
		o.cacheOpts = append(o.cacheOpts, opts...)
	}
}

// WithClientOptions configures the client created by New
func WithClientOptions(opts ...client.Option) Option {
	return func(o *options) {
		o.clientOpts = append(o.clientOpts, opts...)
	}
}

// remote is an RPC backed by proxy methods
type remote struct {
	proxy.Dispatcher
	length proxy.Func[proxy.NoArgs, LengthResult]
	frame  proxy.Func[FrameRequest, FrameResult]
}

// NewClient returns an RPC whose methods are sent through d
func NewClient(d proxy.Dispatcher, opts ...Option) RPC {
	o := options{timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	return remote{
		Dispatcher: d,
		length:     proxy.Method[proxy.NoArgs, LengthResult](d, "length", proxy.Timeout(o.timeout)),
		frame: proxy.Method[FrameRequest, FrameResult](d, "frame", proxy.Timeout(o.timeout)).
			Normalize(FrameRequest.normalize),
	}
}

func (r remote) Length() *future.Future[LengthResult] {
	return r.length.Call(proxy.NoArgs{})
}

func (r remote) Frame(req FrameRequest) *future.Future[FrameResult] {
	return r.frame.Call(req)
}

// New creates the full client stack for a preview: a client on ch,
// a proxy-backed RPC and a frame cache keyed by the versions
// reported by versions.
func New(ch client.Channel, versions VersionSource, opts ...Option) *Cached {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	c := client.New(ch, o.clientOpts...)
	return NewCached(NewClient(c, opts...), versions, o.cacheOpts...)
}
