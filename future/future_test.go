package future_test

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.arsenm.dev/pvrpc/future"
)

func TestResolveOnce(t *testing.T) {
	f := future.New[int]()

	_, ok, _ := f.Peek()
	assert.False(t, ok)

	assert.True(t, f.Resolve(1))
	assert.False(t, f.Resolve(2))
	assert.False(t, f.Reject(errors.New("late")))

	val, ok, err := f.Peek()
	require.True(t, ok)
	require.NoError(t, err)
	assert.Equal(t, 1, val)
}

func TestAwaitContext(t *testing.T) {
	f := future.New[string]()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Giving up must not complete the future
	_, ok, _ := f.Peek()
	assert.False(t, ok)

	go f.Resolve("done")
	val, err := f.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "done", val)
}

func TestOnComplete(t *testing.T) {
	f := future.New[int]()

	var got []int
	f.OnComplete(func(v int, _ error) { got = append(got, v) })
	f.Resolve(3)
	// Registered after completion, runs immediately
	f.OnComplete(func(v int, _ error) { got = append(got, v*2) })

	assert.Equal(t, []int{3, 6}, got)
}

func TestThen(t *testing.T) {
	ctx := context.Background()

	f := future.New[int]()
	s := future.Then(f, func(v int) (string, error) {
		return strconv.Itoa(v), nil
	})
	f.Resolve(42)

	val, err := s.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "42", val)

	errBoom := errors.New("boom")
	r := future.Then(future.Rejected[int](errBoom), func(v int) (int, error) {
		t.Fatal("mapping function called for rejected future")
		return 0, nil
	})
	_, err = r.Await(ctx)
	assert.ErrorIs(t, err, errBoom)

	m := future.Then(future.Resolved(1), func(int) (int, error) {
		return 0, errBoom
	})
	_, err = m.Await(ctx)
	assert.ErrorIs(t, err, errBoom)
}
