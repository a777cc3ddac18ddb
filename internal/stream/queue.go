package stream

import (
	"context"
	"sync"
)

// Queue is the FIFO of serialized records waiting for the outbound socket.
// Pushes never block. With a positive limit a full queue drops its oldest
// entry to make room.
type Queue struct {
	mu      sync.Mutex
	items   [][]byte
	limit   int
	dropped uint64
	// ready is closed and replaced whenever an item is added.
	ready chan struct{}
}

// NewQueue creates a queue. A limit of zero or less means unbounded.
func NewQueue(limit int) *Queue {
	return &Queue{limit: limit, ready: make(chan struct{})}
}

// PushBack appends msg. It reports false if an older entry was dropped.
func (q *Queue) PushBack(msg []byte) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	ok := true
	if q.limit > 0 && len(q.items) >= q.limit {
		q.items[0] = nil
		q.items = q.items[1:]
		q.dropped++
		ok = false
	}
	q.items = append(q.items, msg)
	q.signal()
	return ok
}

// PushFront puts msg back at the head, ahead of everything queued since.
// It is used to requeue a failed send and ignores the limit.
func (q *Queue) PushFront(msg []byte) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.items = append(q.items, nil)
	copy(q.items[1:], q.items)
	q.items[0] = msg
	q.signal()
}

// Pop removes and returns the head, waiting until one is available or ctx
// is done.
func (q *Queue) Pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			msg := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			q.mu.Unlock()
			return msg, nil
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Len returns the number of queued entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many entries the limit has discarded.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Snapshot returns a copy of the queued entries in order.
func (q *Queue) Snapshot() [][]byte {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([][]byte, len(q.items))
	copy(out, q.items)
	return out
}

func (q *Queue) signal() {
	close(q.ready)
	q.ready = make(chan struct{})
}
