package session

import "sync"

// OutboundQueue is a FIFO of frames waiting to be written to one socket. It
// implements the spec's invariant directly: exactly one write is ever "in
// flight" (returned by Next and not yet released by Done) at a time, the
// in-flight frame is always the queue's front, and it is popped only once
// that write completes.
type OutboundQueue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  [][]byte
	closed bool
}

// NewOutboundQueue returns an empty, open queue.
func NewOutboundQueue() *OutboundQueue {
	q := &OutboundQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues a frame for writing. Safe to call from any goroutine.
func (q *OutboundQueue) Push(frame []byte) {
	q.mu.Lock()
	q.queue = append(q.queue, frame)
	q.cond.Signal()
	q.mu.Unlock()
}

// Next blocks until a frame is available to write, or the queue has been
// closed and fully drained, in which case it returns ok=false. The caller
// must call Done exactly once after finishing (successfully or not) with
// the returned frame before calling Next again.
func (q *OutboundQueue) Next() (frame []byte, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.queue) == 0 {
		if q.closed {
			return nil, false
		}
		q.cond.Wait()
	}
	return q.queue[0], true
}

// Done pops the frame most recently returned by Next.
func (q *OutboundQueue) Done() {
	q.mu.Lock()
	if len(q.queue) > 0 {
		q.queue = q.queue[1:]
	}
	q.mu.Unlock()
}

// Close marks the queue closed; any writer goroutine blocked in Next wakes
// and returns ok=false once the queue has drained.
func (q *OutboundQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
}
