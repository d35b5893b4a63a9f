package discovery

import "sync"

// workQueue is an unbounded FIFO of functions run by the manager loop.
// Pushing never blocks, so provider goroutines and device listeners can
// enqueue while the loop is busy.
type workQueue struct {
	mu     sync.Mutex
	items  []func()
	closed bool
	wake   chan struct{}
}

func newWorkQueue() *workQueue {
	return &workQueue{wake: make(chan struct{}, 1)}
}

// push appends fn. It reports false once the queue is closed.
func (q *workQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, fn)
	q.mu.Unlock()
	q.signal()
	return true
}

// pop removes the oldest item. fn is nil when the queue is empty.
func (q *workQueue) pop() (fn func(), closed bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, q.closed
	}
	fn = q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return fn, q.closed
}

func (q *workQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *workQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

func (q *workQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}
