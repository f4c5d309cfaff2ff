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

package preview

import (
	"fmt"

	"go.arsenm.dev/pvrpc/cache"
	"go.arsenm.dev/pvrpc/future"
	"go.arsenm.dev/pvrpc/metrics"

	"go.uber.org/zap"
)

// VersionSource reports the current content version of an image kind.
// Whenever the content of a clip changes, its version must change too,
// which keeps stale frames from being served by the cache.
type VersionSource interface {
	Version(image Image) string
}

// VersionFunc is a function implementing VersionSource
type VersionFunc func(image Image) string

// Version calls f
func (f VersionFunc) Version(image Image) string {
	return f(image)
}

// CacheOption configures a Cached RPC
type CacheOption func(*cacheOptions)

type cacheOptions struct {
	capacity int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// CacheCapacity sets how many frames are cached
func CacheCapacity(n int) CacheOption {
	return func(o *cacheOptions) {
		o.capacity = n
	}
}

// CacheLogger sets the logger of the frame cache
func CacheLogger(l *zap.Logger) CacheOption {
	return func(o *cacheOptions) {
		o.logger = l
	}
}

// CacheMetrics sets the collectors of the frame cache
func CacheMetrics(m *metrics.Metrics) CacheOption {
	return func(o *cacheOptions) {
		o.metrics = m
	}
}

// Cached is an RPC that caches rendered frames of its parent.
// Identical frame requests share a single call, including calls
// that are still in flight and calls that failed. Length, Open
// and Close are passed through.
type Cached struct {
	parent   RPC
	versions VersionSource
	frames   *cache.Futures[string, FrameResult]
}

var _ RPC = (*Cached)(nil)

// NewCached wraps parent with a frame cache.
// If versions is nil, every frame has an empty version.
func NewCached(parent RPC, versions VersionSource, opts ...CacheOption) *Cached {
	if versions == nil {
		versions = VersionFunc(func(Image) string { return "" })
	}

	o := cacheOptions{
		capacity: cache.DefaultCapacity,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	return &Cached{
		parent:   parent,
		versions: versions,
		frames: cache.New(
			o.capacity,
			cache.WithLogger[string, FrameResult](o.logger),
			cache.WithMetrics[string, FrameResult](o.metrics),
		),
	}
}

// Open opens the parent RPC
func (c *Cached) Open() error {
	return c.parent.Open()
}

// Close closes the parent RPC. Cached frames are kept.
func (c *Cached) Close() error {
	return c.parent.Close()
}

// Length calls Length on the parent RPC
func (c *Cached) Length() *future.Future[LengthResult] {
	return c.parent.Length()
}

// Frame returns the cached frame for req,
// requesting it from the parent if needed
func (c *Cached) Frame(req FrameRequest) *future.Future[FrameResult] {
	if req.Image == "" {
		req.Image = ImageClip
	}

	return c.frames.Get(c.key(req), func() *future.Future[FrameResult] {
		return c.parent.Frame(req)
	})
}

// Clear removes all cached frames
func (c *Cached) Clear() {
	c.frames.Clear()
}

// Keys returns the keys of the cached frames, most recently used first
func (c *Cached) Keys() []string {
	return c.frames.Keys()
}

// key derives the cache key of a frame request
func (c *Cached) key(req FrameRequest) string {
	return FrameKey(c.versions.Version(req.Image), req.Image, req.Frame)
}

// FrameKey returns the cache key of a frame of the given content version
func FrameKey(version string, image Image, frame int) string {
	return fmt.Sprintf("%s--%s--%d", version, image, frame)
}
