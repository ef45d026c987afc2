package service

import (
	"context"
	"sync"
)

// KeyedQueue runs at most one function per key at a time, in arrival order.
// Handlers for different keys run concurrently.
type KeyedQueue struct {
	mu     sync.Mutex
	chains map[string]chan struct{}
	active int
}

func NewKeyedQueue() *KeyedQueue {
	return &KeyedQueue{chains: map[string]chan struct{}{}}
}

func (q *KeyedQueue) Run(ctx context.Context, key string, fn func(context.Context) error) error {
	q.mu.Lock()
	previous := q.chains[key]
	next := make(chan struct{})
	q.chains[key] = next
	q.active++
	q.mu.Unlock()

	release := func() {
		close(next)
		q.mu.Lock()
		q.active--
		if q.chains[key] == next {
			delete(q.chains, key)
		}
		q.mu.Unlock()
	}

	if previous != nil {
		select {
		case <-previous:
		case <-ctx.Done():
			// Keep the chain intact: later callers must still wait for previous.
			go func() {
				<-previous
				release()
			}()
			return ctx.Err()
		}
	}
	defer release()

	return fn(ctx)
}

// InFlight reports how many functions are running or waiting.
func (q *KeyedQueue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active
}
