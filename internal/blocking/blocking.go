// Package blocking implements the waiter coordinator described in
// spec.md §4.10: callers suspend on an empty list/zset key, registering
// a one-shot waiter keyed by (database index, key); a producer command
// wakes exactly one waiter per item it makes available, in FIFO arrival
// order, by attempting an atomic pop and trying the next waiter if that
// pop loses a race. This keeps blocking state out of the keyspace data
// model (spec.md §9 "async control flow... explicit coordinators, not
// suspended closures captured inside the keyspace").
package blocking

import (
	"container/list"
	"context"
	"sync"
)

// popAttempt tries to atomically take one item for a woken waiter.
// Returns ok=false if nothing was available (another waiter or a
// concurrent consumer won the race), in which case the coordinator
// moves on to the next waiter in the queue.
type popAttempt func() (value any, ok bool)

type waiter struct {
	ch chan any // receives the popped value, or nil on timeout/cancel
}

// Coordinator tracks waiter queues per (dbIndex, key).
type Coordinator struct {
	mu      sync.Mutex
	waiters map[waitKey]*list.List // element type: *waiter
}

type waitKey struct {
	db  int
	key string
}

func New() *Coordinator {
	return &Coordinator{waiters: map[waitKey]*list.List{}}
}

// Wait blocks the caller until attempt succeeds, ctx is done, or a
// producer hands it a value via Notify. It first tries attempt
// immediately (the non-blocking fast path spec.md §4.10 requires:
// "if data already present, pop and return without blocking").
func (c *Coordinator) Wait(ctx context.Context, db int, key string, attempt popAttempt) (any, bool) {
	if v, ok := attempt(); ok {
		return v, true
	}

	k := waitKey{db: db, key: key}
	w := &waiter{ch: make(chan any, 1)}

	c.mu.Lock()
	q, ok := c.waiters[k]
	if !ok {
		q = list.New()
		c.waiters[k] = q
	}
	elem := q.PushBack(w)
	c.mu.Unlock()

	select {
	case v := <-w.ch:
		return v, v != nil
	case <-ctx.Done():
		c.mu.Lock()
		q.Remove(elem)
		if q.Len() == 0 {
			delete(c.waiters, k)
		}
		c.mu.Unlock()
		return nil, false
	}
}

// Notify is called by a producer command after making data available at
// (db, key). It takes waiters off the queue in FIFO order, calling
// attempt once per candidate waiter. A waiter whose attempt succeeds
// receives the value and Notify returns; a waiter whose attempt fails
// is still removed and woken with nil (its Wait returns nil, false),
// and Notify moves on to the next waiter.
func (c *Coordinator) Notify(db int, key string, attempt popAttempt) {
	k := waitKey{db: db, key: key}
	for {
		c.mu.Lock()
		q, ok := c.waiters[k]
		if !ok || q.Len() == 0 {
			c.mu.Unlock()
			return
		}
		front := q.Front()
		w := front.Value.(*waiter)
		q.Remove(front)
		if q.Len() == 0 {
			delete(c.waiters, k)
		}
		c.mu.Unlock()

		v, ok := attempt()
		if !ok {
			// This waiter's slot already has nothing to give it (a
			// concurrent reader won); keep trying the next one.
			w.ch <- nil
			continue
		}
		w.ch <- v
		return
	}
}

// WaiterCount reports how many callers are currently blocked on key;
// the wake path does not use it.
func (c *Coordinator) WaiterCount(db int, key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.waiters[waitKey{db: db, key: key}]
	if !ok {
		return 0
	}
	return q.Len()
}
