package actorutil

import (
	"errors"
	"time"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/primetalk/goio/io"
)

var (
	ErrNilResult          = errors.New("result is nil")
	ErrUnexpectedResponse = errors.New("unexpected response type")
)

// SafeBackgroundTask runs blocking work off the actor goroutine and delivers
// the result, or the recovered error, as a message.
type SafeBackgroundTask[T any] struct {
	system  *actor.ActorSystem
	fn      func() (*T, error)
	timeout *time.Duration
	recover func(error) T
}

func NewBackgroundTask[T any](ctx actor.Context, fn func() (*T, error)) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		system: ctx.ActorSystem(),
		fn:     fn,
	}
}

func NewBackgroundTaskNoError[T any](ctx actor.Context, fn func() *T) *SafeBackgroundTask[T] {
	return &SafeBackgroundTask[T]{
		system: ctx.ActorSystem(),
		fn: func() (*T, error) {
			return fn(), nil
		},
	}
}

func (t *SafeBackgroundTask[T]) WithTimeout(timeout time.Duration) *SafeBackgroundTask[T] {
	t.timeout = &timeout
	return t
}

// Recover maps a failure (error, nil result or timeout) to a message.
// Without it failures are dropped.
func (t *SafeBackgroundTask[T]) Recover(fn func(error) T) *SafeBackgroundTask[T] {
	t.recover = fn
	return t
}

func (t *SafeBackgroundTask[T]) PipeTo(pid *actor.PID) {
	go func() {
		if value, ok := t.RunSync(); ok {
			t.system.Root.Send(pid, value)
		}
	}()
}

// RunSync runs the task on the calling goroutine.
func (t *SafeBackgroundTask[T]) RunSync() (T, bool) {
	bg := io.Eval(func() (T, error) {
		var zero T
		a, err := t.fn()
		if err != nil {
			return zero, err
		}
		if a == nil {
			return zero, ErrNilResult
		}
		return *a, nil
	})
	if t.timeout != nil {
		bg = io.WithTimeout[T](*t.timeout)(bg)
	}
	result := io.RunSync(bg)
	if result.Error != nil {
		if t.recover != nil {
			return t.recover(result.Error), true
		}
		var zero T
		return zero, false
	}
	return result.Value, true
}

func MapBackgroundTask[T, T2 any](bgt *SafeBackgroundTask[T], mapFn func(*T) *T2) *SafeBackgroundTask[T2] {
	newFn := func() (*T2, error) {
		r, err := bgt.fn()
		if err != nil {
			return nil, err
		}
		return mapFn(r), nil
	}
	return &SafeBackgroundTask[T2]{
		system:  bgt.system,
		fn:      newFn,
		timeout: bgt.timeout,
	}
}
