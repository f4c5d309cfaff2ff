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

package server

import (
	"context"

	"go.uber.org/zap"
)

// Context is passed to every handler. It is canceled
// when the server is closed or the connection ends.
type Context struct {
	context.Context

	id     string
	method string
	logger *zap.Logger
}

func newContext(parent context.Context, id, method string, logger *zap.Logger) *Context {
	return &Context{
		Context: parent,
		id:      id,
		method:  method,
		logger:  logger.With(zap.String("id", id), zap.String("method", method)),
	}
}

// RequestID returns the correlation id of the request being handled
func (ctx *Context) RequestID() string {
	return ctx.id
}

// Method returns the name of the method being called
func (ctx *Context) Method() string {
	return ctx.method
}

// Logger returns a logger annotated with the request id and method
func (ctx *Context) Logger() *zap.Logger {
	return ctx.logger
}
