package ratelimit

import (
	"context"
	"time"
)

// Lock serializes requests and enforces a minimum wait between them.
type Lock interface {
	// Lock blocks until the caller may proceed and returns the unlock
	// function. The next caller is released only after the configured
	// wait has elapsed.
	Lock(ctx context.Context) func()
}

type lock struct {
	wait time.Duration
	ch   chan struct{}
}

func New(wait time.Duration) Lock {
	l := &lock{
		wait: wait,
		ch:   make(chan struct{}, 1),
	}
	l.ch <- struct{}{}
	return l
}

func (l *lock) Lock(ctx context.Context) func() {
	select {
	case <-ctx.Done():
		return func() {}
	case <-l.ch:
	}
	return func() {
		go func() {
			time.Sleep(l.wait)
			l.ch <- struct{}{}
		}()
	}
}
