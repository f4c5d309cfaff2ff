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

// Package cache stores futures by key so that identical calls share
// a single in-flight or completed result. The number of keys is
// bounded, the least recently used key is evicted first.
package cache

import (
	"fmt"
	"slices"
	"sync"

	"go.arsenm.dev/pvrpc/future"
	"go.arsenm.dev/pvrpc/metrics"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.uber.org/zap"
)

// DefaultCapacity is the number of keys kept when no capacity is given
const DefaultCapacity = 10

// Option configures a cache
type Option[K comparable, V any] func(*Futures[K, V])

// WithLogger sets the cache's logger
func WithLogger[K comparable, V any](l *zap.Logger) Option[K, V] {
	return func(c *Futures[K, V]) {
		c.logger = l
	}
}

// WithMetrics sets the collectors the cache reports to
func WithMetrics[K comparable, V any](m *metrics.Metrics) Option[K, V] {
	return func(c *Futures[K, V]) {
		c.metrics = m
	}
}

// OnEvict sets a function called whenever a key is evicted
// to make room for a new one. It is called with the cache locked
// and must not use the cache.
func OnEvict[K comparable, V any](fn func(K, *future.Future[V])) Option[K, V] {
	return func(c *Futures[K, V]) {
		c.onEvict = fn
	}
}

// Futures maps keys to futures. Failed futures are kept like any
// other, a key is only released by eviction, Remove or Clear.
type Futures[K comparable, V any] struct {
	mtx sync.Mutex
	lru *simplelru.LRU[K, *future.Future[V]]

	capacity int
	logger   *zap.Logger
	metrics  *metrics.Metrics
	onEvict  func(K, *future.Future[V])
}

// New creates a cache holding at most capacity keys.
// A non-positive capacity selects DefaultCapacity.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *Futures[K, V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}

	// NewLRU only fails for non-positive sizes
	lru, _ := simplelru.NewLRU[K, *future.Future[V]](capacity, nil)

	out := &Futures[K, V]{
		lru:      lru,
		capacity: capacity,
		logger:   zap.NewNop(),
	}

	for _, opt := range opts {
		opt(out)
	}

	return out
}

// Get returns the future stored under key and marks the key as most
// recently used. If there is none, fn is called to start the work and
// its future is stored before Get returns, so that callers arriving
// later for the same key share it. fn must not block.
func (c *Futures[K, V]) Get(key K, fn func() *future.Future[V]) *future.Future[V] {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	// Get also moves the key to the front
	if f, ok := c.lru.Get(key); ok {
		c.metrics.CacheHit()
		c.logger.Debug("cache hit", zap.String("key", fmt.Sprint(key)))
		return f
	}

	c.metrics.CacheMiss()
	c.logger.Debug("cache miss", zap.String("key", fmt.Sprint(key)))

	// Make room before the new key is inserted
	if c.lru.Len() >= c.capacity {
		if k, f, ok := c.lru.RemoveOldest(); ok {
			c.metrics.CacheEviction()
			c.logger.Debug("evicted cache entry", zap.String("key", fmt.Sprint(k)))
			if c.onEvict != nil {
				c.onEvict(k, f)
			}
		}
	}

	f := fn()
	c.lru.Add(key, f)
	return f
}

// Peek returns the future stored under key
// without changing how recently it was used
func (c *Futures[K, V]) Peek(key K) (*future.Future[V], bool) {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.lru.Peek(key)
}

// Remove removes key from the cache. It returns false
// if key was not present.
func (c *Futures[K, V]) Remove(key K) bool {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.lru.Remove(key)
}

// Clear removes every key from the cache
func (c *Futures[K, V]) Clear() {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	c.lru.Purge()
}

// Len returns the number of keys in the cache
func (c *Futures[K, V]) Len() int {
	c.mtx.Lock()
	defer c.mtx.Unlock()
	return c.lru.Len()
}

// Capacity returns the maximum number of keys in the cache
func (c *Futures[K, V]) Capacity() int {
	return c.capacity
}

// Keys returns the keys in the cache, most recently used first
func (c *Futures[K, V]) Keys() []K {
	c.mtx.Lock()
	defer c.mtx.Unlock()

	keys := c.lru.Keys()
	slices.Reverse(keys)
	return keys
}
