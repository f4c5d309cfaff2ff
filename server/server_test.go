package server_test

import (
	"context"
	"errors"
	"net"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.arsenm.dev/pvrpc/channel"
	"go.arsenm.dev/pvrpc/client"
	"go.arsenm.dev/pvrpc/codec"
	"go.arsenm.dev/pvrpc/packet"
	"go.arsenm.dev/pvrpc/server"
)

type Arith struct{}

func (Arith) Add(ctx *server.Context, in [2]int) int {
	return in[0] + in[1]
}

func (Arith) Div(ctx *server.Context, in [2]int) (int, error) {
	if in[1] == 0 {
		return 0, errors.New("division by zero")
	}
	return in[0] / in[1], nil
}

func (Arith) Panic(ctx *server.Context) error {
	panic("oops")
}

// Not a valid handler, must be skipped
func (Arith) Helper(a, b int) int {
	return a + b
}

func newClient(t *testing.T, s *server.Server) *client.Client {
	t.Helper()

	sConn, cConn := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go s.ServeConn(ctx, sConn, codec.Default)

	c := client.New(
		channel.NewStream[*packet.Response, *packet.Request](cConn, codec.Default),
		client.WithDefaultTimeout(5*time.Second),
	)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRegister(t *testing.T) {
	s := server.New()
	defer s.Close()

	require.NoError(t, s.Register(Arith{}))
	assert.ErrorIs(t, s.Register(42), server.ErrInvalidType)

	methods := s.Methods()
	sort.Strings(methods)
	assert.Equal(t, []string{"add", "div", "panic"}, methods)
}

func TestHandle(t *testing.T) {
	s := server.New()
	defer s.Close()

	assert.ErrorIs(t, s.Handle("bad", func(int) int { return 0 }), server.ErrInvalidMethod)
	assert.ErrorIs(t, s.Handle("bad", "not a func"), server.ErrInvalidMethod)

	require.NoError(t, s.Handle("whoami", func(ctx *server.Context) (string, error) {
		return ctx.Method() + ":" + ctx.RequestID(), nil
	}))

	c := newClient(t, s)

	var out string
	require.NoError(t, c.Call(context.Background(), "whoami", nil, &out))
	assert.Regexp(t, `^whoami:[0-9a-f-]{36}$`, out)
}

func TestCalls(t *testing.T) {
	s := server.New()
	defer s.Close()
	require.NoError(t, s.Register(Arith{}))

	c := newClient(t, s)
	ctx := context.Background()

	var add int
	require.NoError(t, c.Call(ctx, "add", [2]int{5, 5}, &add))
	assert.Equal(t, 10, add)

	var div int
	require.NoError(t, c.Call(ctx, "div", [2]int{10, 5}, &div))
	assert.Equal(t, 2, div)

	err := c.Call(ctx, "div", [2]int{1, 0}, &div)
	require.ErrorIs(t, err, client.ErrRemoteFailure)
	assert.ErrorContains(t, err, "division by zero")

	err = c.Call(ctx, "nope", nil, nil)
	assert.ErrorContains(t, err, server.ErrNoSuchMethod.Error())

	err = c.Call(ctx, "panic", nil, nil)
	assert.ErrorContains(t, err, server.ErrHandlerPanic.Error())

	err = c.Call(ctx, "panic", 1, nil)
	assert.ErrorContains(t, err, server.ErrUnexpectedArgument.Error())
}
