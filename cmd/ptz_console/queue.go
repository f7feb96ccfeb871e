package main

import "sync"

// commandQueue runs submitted commands one at a time in submission order.
type commandQueue struct {
	mu     sync.Mutex
	closed bool
	ops    chan func()
}

func newCommandQueue(size int) *commandQueue {
	return &commandQueue{ops: make(chan func(), size)}
}

// Submit queues op without blocking. It reports false if the queue is full or
// closed.
func (q *commandQueue) Submit(op func()) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	select {
	case q.ops <- op:
		return true
	default:
		return false
	}
}

// Run executes queued commands until Close.
func (q *commandQueue) Run() {
	for op := range q.ops {
		op()
	}
}

// Close stops accepting commands. Commands already queued still run.
func (q *commandQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.ops)
}
