// Package async turns the engine's callback entry points into single-result
// operations. A Completion settles exactly once; later settlements are
// ignored, so the first callback invocation is authoritative.
package async

import (
	"context"
	"sync"
)

// Completion is the result of one engine operation.
type Completion[T any] struct {
	once sync.Once
	done chan struct{}
	val  T
	err  error
}

func New[T any]() *Completion[T] {
	return &Completion[T]{done: make(chan struct{})}
}

// Rejected returns a Completion already settled with err.
func Rejected[T any](err error) *Completion[T] {
	c := New[T]()
	c.Reject(err)
	return c
}

// Settle records the outcome of the operation. A non-nil err rejects, in
// which case v is discarded. It returns false if c had already settled.
func (c *Completion[T]) Settle(v T, err error) bool {
	settled := false
	c.once.Do(func() {
		if err == nil {
			c.val = v
		}
		c.err = err
		settled = true
		close(c.done)
	})
	return settled
}

func (c *Completion[T]) Resolve(v T) bool {
	return c.Settle(v, nil)
}

func (c *Completion[T]) Reject(err error) bool {
	var zero T
	return c.Settle(zero, err)
}

// Done is closed once c has settled.
func (c *Completion[T]) Done() <-chan struct{} {
	return c.done
}

// Result returns the outcome without blocking. ok is false while c is
// pending.
func (c *Completion[T]) Result() (v T, ok bool, err error) {
	select {
	case <-c.done:
		return c.val, true, c.err
	default:
		var zero T
		return zero, false, nil
	}
}

// Wait blocks until c settles or ctx is done. Cancelling ctx only stops the
// wait; the operation itself keeps running and its outcome is dropped.
func (c *Completion[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-c.done:
		return c.val, c.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Then calls fn with the outcome once c settles. fn runs on its own
// goroutine.
func (c *Completion[T]) Then(fn func(T, error)) {
	go func() {
		<-c.done
		fn(c.val, c.err)
	}()
}

// FromCallback starts a callback-style operation and returns its
// Completion. start receives the callback to hand to the engine.
func FromCallback[T any](start func(cb func(T, error))) *Completion[T] {
	c := New[T]()
	start(func(v T, err error) {
		c.Settle(v, err)
	})
	return c
}

// FromErrCallback is FromCallback for operations that deliver no payload.
func FromErrCallback(start func(cb func(error))) *Completion[struct{}] {
	c := New[struct{}]()
	start(func(err error) {
		c.Settle(struct{}{}, err)
	})
	return c
}
