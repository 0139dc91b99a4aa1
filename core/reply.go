package core

import (
	"context"
	"sync"
)

// Reply is the wait handle returned by InvokeSync. It resolves exactly once,
// with either the operation's result or its error; waiting more than once
// yields the same outcome every time.
type Reply[R any] struct {
	once  sync.Once
	done  chan struct{}
	value R
	err   error
}

func newReply[R any]() *Reply[R] {
	return &Reply[R]{done: make(chan struct{})}
}

// resolve fulfills the reply. Only the first call has any effect.
func (r *Reply[R]) resolve(value R, err error) {
	r.once.Do(func() {
		r.value = value
		r.err = err
		close(r.done)
	})
}

// Wait blocks until the reply is resolved or the context is canceled.
func (r *Reply[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-r.done:
		return r.value, r.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the reply has been resolved.
func (r *Reply[R]) Done() <-chan struct{} {
	return r.done
}
