package pvrpc_test

import (
	"context"
	"encoding/gob"
	"fmt"
	"net"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.arsenm.dev/pvrpc/channel"
	"go.arsenm.dev/pvrpc/client"
	"go.arsenm.dev/pvrpc/codec"
	"go.arsenm.dev/pvrpc/future"
	"go.arsenm.dev/pvrpc/packet"
	"go.arsenm.dev/pvrpc/preview"
	"go.arsenm.dev/pvrpc/server"
)

// clipRenderer renders fake frames of a clip
type clipRenderer struct {
	frames int
}

func (r clipRenderer) Length(context.Context) (int, error) {
	return r.frames, nil
}

func (r clipRenderer) Frame(_ context.Context, frame int, image preview.Image) (preview.FrameResult, error) {
	return preview.FrameResult{
		Size:    [2]int{640, 480},
		Buffers: [][]byte{[]byte(fmt.Sprintf("%s-%d", image, frame))},
	}, nil
}

// pipe starts a server on one end of a network pipe
// and returns a client stream for the other end
func pipe(t *testing.T, s *server.Server, cf codec.CodecFunc) client.Channel {
	t.Helper()

	// Create new network pipe
	sConn, cConn := net.Pipe()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Serve the pipe connection using provided codec
	go s.ServeConn(ctx, sConn, cf)

	return channel.NewStream[*packet.Response, *packet.Request](cConn, cf)
}

func await[T any](t *testing.T, f *future.Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	val, err := f.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded)
	return val, err
}

func TestPreview(t *testing.T) {
	s := server.New()
	defer s.Close()
	require.NoError(t, preview.Register(s, clipRenderer{frames: 3}))

	rpc := preview.New(
		pipe(t, s, codec.Default),
		preview.VersionFunc(func(preview.Image) string { return "v1" }),
	)
	require.NoError(t, rpc.Open())
	defer rpc.Close()

	length, err := await(t, rpc.Length())
	require.NoError(t, err)
	assert.Equal(t, 3, length.Length)

	frame, err := await(t, rpc.Frame(preview.FrameRequest{Frame: 2}))
	require.NoError(t, err)
	assert.Equal(t, [2]int{640, 480}, frame.Size)
	assert.Equal(t, [][]byte{[]byte("clip-2")}, frame.Buffers)

	diff, err := await(t, rpc.Frame(preview.FrameRequest{Frame: 2, Image: preview.ImageDiff}))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("diff-2")}, diff.Buffers)

	// Failures are reported by the peer
	_, err = await(t, rpc.Frame(preview.FrameRequest{Frame: 7}))
	assert.ErrorIs(t, err, client.ErrRemoteFailure)

	// Invalid requests fail before they are sent
	_, err = await(t, rpc.Frame(preview.FrameRequest{Frame: 1, Image: "bogus"}))
	assert.ErrorContains(t, err, "invalid image kind")

	assert.Equal(t, []string{
		"v1--bogus--1",
		"v1--clip--7",
		"v1--diff--2",
		"v1--clip--2",
	}, rpc.Keys())
}

func TestWebSocket(t *testing.T) {
	s := server.New()
	defer s.Close()
	require.NoError(t, preview.Register(s, clipRenderer{frames: 5}))

	ts := httptest.NewServer(s.WSHandler(codec.Default))
	defer ts.Close()

	ch, err := channel.DialWS("ws"+strings.TrimPrefix(ts.URL, "http"), ts.URL, codec.Default)
	require.NoError(t, err)

	rpc := preview.New(ch, preview.VersionFunc(func(preview.Image) string { return "ws" }))
	defer rpc.Close()

	length, err := await(t, rpc.Length())
	require.NoError(t, err)
	assert.Equal(t, 5, length.Length)

	frame, err := await(t, rpc.Frame(preview.FrameRequest{Frame: 4}))
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("clip-4")}, frame.Buffers)
}

func TestStalledPeer(t *testing.T) {
	// The peer end is never read, so every write blocks
	sConn, cConn := net.Pipe()
	defer sConn.Close()

	rpc := preview.New(
		channel.NewStream[*packet.Response, *packet.Request](cConn, codec.Default),
		nil,
		preview.WithTimeout(30*time.Millisecond),
	)
	require.NoError(t, rpc.Open())
	defer rpc.Close()

	frames := make(chan *future.Future[preview.FrameResult], 1)
	go func() {
		frames <- rpc.Frame(preview.FrameRequest{Frame: 1})
	}()

	var f *future.Future[preview.FrameResult]
	select {
	case f = <-frames:
	case <-time.After(time.Second):
		t.Fatal("Frame blocked on the stalled peer")
	}

	// The cache stays usable while the write is stuck
	keys := make(chan []string, 1)
	go func() { keys <- rpc.Keys() }()
	select {
	case k := <-keys:
		assert.Equal(t, []string{"--clip--1"}, k)
	case <-time.After(time.Second):
		t.Fatal("Keys blocked on the stalled peer")
	}

	_, err := await(t, f)
	assert.ErrorIs(t, err, client.ErrTimeout)
}

func TestCodecs(t *testing.T) {
	// Register payload types for gob
	gob.Register(preview.LengthResult{})
	gob.Register(preview.FrameRequest{})
	gob.Register(preview.FrameResult{})

	// Create function to test each codec
	testCodec := func(cf codec.CodecFunc, name string) {
		s := server.New()
		defer s.Close()
		require.NoError(t, preview.Register(s, clipRenderer{frames: 10}))

		c := client.New(pipe(t, s, cf))
		defer c.Close()
		rpc := preview.NewClient(c)

		length, err := await(t, rpc.Length())
		if assert.NoError(t, err, "codec/%s", name) {
			assert.Equal(t, 10, length.Length, "codec/%s", name)
		}

		frame, err := await(t, rpc.Frame(preview.FrameRequest{Frame: 4}))
		if assert.NoError(t, err, "codec/%s", name) {
			assert.Equal(t, [2]int{640, 480}, frame.Size, "codec/%s", name)
			assert.Equal(t, [][]byte{[]byte("clip-4")}, frame.Buffers, "codec/%s", name)
		}
	}

	// Test all codecs
	testCodec(codec.Msgpack, "msgpack")
	testCodec(codec.JSON, "json")
	testCodec(codec.Gob, "gob")
}

type Sleeper struct{}

func (Sleeper) Sleep(ctx *server.Context, ms int) int {
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
	case <-ctx.Done():
	}
	return ms
}

func TestOutOfOrder(t *testing.T) {
	s := server.New()
	defer s.Close()
	require.NoError(t, s.Register(Sleeper{}))

	c := client.New(pipe(t, s, codec.Default))
	defer c.Close()

	// Later calls finish first
	durations := []int{90, 60, 30, 0}
	futs := make([]*future.Future[packet.Result], len(durations))
	for i, ms := range durations {
		futs[i] = c.Send("sleep", ms, time.Minute)
	}

	for i, f := range futs {
		res, err := await(t, f)
		require.NoError(t, err)

		var ms int
		ms, err = toInt(res.Payload)
		require.NoError(t, err)
		assert.Equal(t, durations[i], ms)
	}
}

func TestTimeout(t *testing.T) {
	s := server.New()
	defer s.Close()
	require.NoError(t, s.Register(Sleeper{}))

	c := client.New(pipe(t, s, codec.Default))
	defer c.Close()

	_, err := await(t, c.Send("sleep", 100, 10*time.Millisecond))
	require.ErrorIs(t, err, client.ErrTimeout)

	// Wait for the late response to arrive and be discarded
	time.Sleep(150 * time.Millisecond)

	var ms int
	err = c.Call(context.Background(), "sleep", 1, &ms)
	require.NoError(t, err)
	assert.Equal(t, 1, ms)
	assert.Equal(t, 0, c.Pending())
}

func TestServerClose(t *testing.T) {
	s := server.New()
	require.NoError(t, s.Register(Sleeper{}))

	c := client.New(pipe(t, s, codec.Default))
	defer c.Close()

	futs := make([]*future.Future[packet.Result], 3)
	for i := range futs {
		futs[i] = c.Send("sleep", 60_000, time.Minute)
	}
	assert.Eventually(t, func() bool {
		return c.Pending() == len(futs)
	}, time.Second, 5*time.Millisecond)

	s.Close()

	for _, f := range futs {
		_, err := await(t, f)
		assert.ErrorIs(t, err, client.ErrClosed)
	}
	assert.Equal(t, 0, c.Pending())
}

func toInt(v any) (int, error) {
	switch v := v.(type) {
	case int8:
		return int(v), nil
	case int16:
		return int(v), nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint8:
		return int(v), nil
	case uint16:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case int:
		return v, nil
	default:
		return 0, fmt.Errorf("unexpected type %T", v)
	}
}
