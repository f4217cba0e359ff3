package db

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var ErrClosed = errors.New("connection provider closed")

// lazyConn opens a handle on first use and shares it for the rest of the process.
// Concurrent first callers share a single dial. A failed dial is not cached.
type lazyConn[T any] struct {
	open    func(ctx context.Context) (T, error)
	close   func(T) error
	timeout time.Duration

	mu     sync.RWMutex
	val    T
	ready  bool
	closed bool
	group  singleflight.Group
}

func (l *lazyConn[T]) get(ctx context.Context) (T, error) {
	l.mu.RLock()
	val, ready, closed := l.val, l.ready, l.closed
	l.mu.RUnlock()
	var zero T
	if closed {
		return zero, ErrClosed
	}
	if ready {
		return val, nil
	}

	// The dial outlives any single caller, so it must not inherit their cancellation.
	dialCtx := context.WithoutCancel(ctx)
	v, err, _ := l.group.Do("open", func() (interface{}, error) {
		l.mu.RLock()
		if l.ready {
			v := l.val
			l.mu.RUnlock()
			return v, nil
		}
		l.mu.RUnlock()

		if l.timeout > 0 {
			var cancel context.CancelFunc
			dialCtx, cancel = context.WithTimeout(dialCtx, l.timeout)
			defer cancel()
		}
		opened, err := l.open(dialCtx)
		if err != nil {
			return nil, err
		}

		l.mu.Lock()
		defer l.mu.Unlock()
		if l.closed {
			if l.close != nil {
				_ = l.close(opened)
			}
			return nil, ErrClosed
		}
		l.val = opened
		l.ready = true
		return opened, nil
	})
	if err != nil {
		return zero, err
	}
	return v.(T), nil
}

func (l *lazyConn[T]) shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if !l.ready || l.close == nil {
		return nil
	}
	var zero T
	val := l.val
	l.val = zero
	l.ready = false
	return l.close(val)
}
