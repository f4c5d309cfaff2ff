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
	"context"
	"fmt"

	"go.arsenm.dev/pvrpc/server"
)

// Renderer produces the frames served by a Service
type Renderer interface {
	// Length returns the number of frames
	Length(ctx context.Context) (int, error)
	// Frame renders a frame. The returned buffers hold the encoded image.
	Frame(ctx context.Context, frame int, image Image) (FrameResult, error)
}

// Service exposes a Renderer as the "length"
// and "frame" methods of a server
type Service struct {
	r Renderer
}

// NewService creates a service for r
func NewService(r Renderer) *Service {
	return &Service{r: r}
}

// Register registers a service for r on srv
func Register(srv *server.Server, r Renderer) error {
	return srv.Register(NewService(r))
}

// Length handles the "length" method
func (s *Service) Length(ctx *server.Context) (LengthResult, error) {
	n, err := s.r.Length(ctx)
	if err != nil {
		return LengthResult{}, err
	}
	return LengthResult{Length: n}, nil
}

// Frame handles the "frame" method
func (s *Service) Frame(ctx *server.Context, req FrameRequest) (FrameResult, error) {
	req, err := req.normalize()
	if err != nil {
		return FrameResult{}, err
	}

	n, err := s.r.Length(ctx)
	if err != nil {
		return FrameResult{}, err
	}
	if req.Frame >= n {
		return FrameResult{}, fmt.Errorf("frame %d out of range, clip has %d frames", req.Frame, n)
	}

	return s.r.Frame(ctx, req.Frame, req.Image)
}
