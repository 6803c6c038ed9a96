package async

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirstSettlementWins(t *testing.T) {
	c := New[int]()

	assert.True(t, c.Resolve(1))
	assert.False(t, c.Resolve(2))
	assert.False(t, c.Reject(errors.New("late")))

	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

func TestRejectDiscardsValue(t *testing.T) {
	boom := errors.New("boom")
	c := New[string]()
	c.Settle("ignored", boom)

	v, ok, err := c.Result()
	require.True(t, ok)
	assert.Equal(t, "", v)
	assert.ErrorIs(t, err, boom)
}

func TestResultWhilePending(t *testing.T) {
	c := New[int]()
	_, ok, _ := c.Result()
	assert.False(t, ok)
}

func TestWaitHonoursContext(t *testing.T) {
	c := New[int]()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A settlement after the caller gave up is still recorded.
	c.Resolve(5)
	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, v)
}

func TestFromCallbackAsynchronous(t *testing.T) {
	c := FromCallback(func(cb func(int, error)) {
		go func() {
			cb(42, nil)
			cb(43, errors.New("second call"))
		}()
	})

	v, err := c.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFromErrCallback(t *testing.T) {
	boom := errors.New("boom")

	ok := FromErrCallback(func(cb func(error)) { cb(nil) })
	_, err := ok.Wait(context.Background())
	assert.NoError(t, err)

	failed := FromErrCallback(func(cb func(error)) { cb(boom); cb(nil) })
	_, err = failed.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestThen(t *testing.T) {
	c := New[int]()
	got := make(chan int, 1)
	c.Then(func(v int, err error) {
		assert.NoError(t, err)
		got <- v
	})
	c.Resolve(9)

	select {
	case v := <-got:
		assert.Equal(t, 9, v)
	case <-time.After(time.Second):
		t.Fatal("Then callback never ran")
	}
}

func TestRejected(t *testing.T) {
	v, ok, err := Rejected[int](errors.New("x")).Result()
	assert.True(t, ok)
	assert.Equal(t, 0, v)
	assert.EqualError(t, err, "x")
}
