package channel_test

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.arsenm.dev/pvrpc/channel"
	"go.arsenm.dev/pvrpc/codec"
	"go.arsenm.dev/pvrpc/packet"
)

func streams(cf codec.CodecFunc) (*channel.Stream[*packet.Response, *packet.Request], *channel.Stream[*packet.Request, *packet.Response]) {
	cConn, sConn := net.Pipe()
	return channel.NewStream[*packet.Response, *packet.Request](cConn, cf),
		channel.NewStream[*packet.Request, *packet.Response](sConn, cf)
}

func recv[T any](t *testing.T, ch <-chan T) (T, bool) {
	t.Helper()
	select {
	case v, ok := <-ch:
		return v, ok
	case <-time.After(time.Second):
		t.Fatal("nothing received")
		var zero T
		return zero, false
	}
}

func TestStreamRoundTrip(t *testing.T) {
	for name, cf := range map[string]codec.CodecFunc{
		"msgpack": codec.Msgpack,
		"json":    codec.JSON,
	} {
		t.Run(name, func(t *testing.T) {
			c, s := streams(cf)
			defer c.Close()
			defer s.Close()

			require.NoError(t, c.Open())
			require.NoError(t, s.Open())
			// Open is idempotent
			require.NoError(t, s.Open())

			go func() {
				c.Send(&packet.Request{ID: "1", Method: "length"})
				c.Send(&packet.Request{ID: "2", Method: "frame", Payload: map[string]any{"frame": 3}})
			}()

			// Packets arrive in order
			req, ok := recv(t, s.Receive())
			require.True(t, ok)
			assert.Equal(t, "1", req.ID)
			assert.Nil(t, req.Payload)

			req, ok = recv(t, s.Receive())
			require.True(t, ok)
			assert.Equal(t, "2", req.ID)
			assert.Equal(t, "frame", req.Method)
			assert.Contains(t, req.Payload, "frame")

			go s.Send(&packet.Response{ID: "2", OK: true, Buffers: [][]byte{{1, 2}}})

			resp, ok := recv(t, c.Receive())
			require.True(t, ok)
			assert.Equal(t, "2", resp.ID)
			assert.True(t, resp.OK)
			assert.Equal(t, [][]byte{{1, 2}}, resp.Buffers)
		})
	}
}

func TestStreamClose(t *testing.T) {
	c, s := streams(codec.Default)
	require.NoError(t, c.Open())
	require.NoError(t, s.Open())

	require.NoError(t, c.Close())
	// Close is idempotent
	assert.NoError(t, c.Close())

	assert.ErrorIs(t, c.Send(&packet.Request{ID: "1"}), channel.ErrClosed)
	assert.ErrorIs(t, c.Open(), channel.ErrClosed)

	// Both ends terminate
	_, ok := recv(t, c.Receive())
	assert.False(t, ok)
	_, ok = recv(t, s.Receive())
	assert.False(t, ok)

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("remote stream not closed")
	}
}
