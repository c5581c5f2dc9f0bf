package saver

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type OpKind int

const (
	OpChunk OpKind = iota
	OpEntity
	OpMetadata
	OpShutdown
)

func (k OpKind) String() string {
	switch k {
	case OpChunk:
		return "chunk"
	case OpEntity:
		return "entity"
	case OpMetadata:
		return "metadata"
	case OpShutdown:
		return "shutdown"
	}
	return "unknown"
}

type op struct {
	kind     OpKind
	cx, cz   int32
	id       uuid.UUID
	data     []byte
	enqueued time.Time
}

// queue is an unbounded FIFO. Once closed it accepts nothing further; the
// sentinel pushed by close is the last item ever popped.
type queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	items  []op
	head   int
	closed bool
}

func newQueue() *queue {
	q := &queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *queue) push(o op) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.items = append(q.items, o)
	q.cond.Signal()
	return true
}

// close appends the sentinel and refuses later pushes. It reports false if
// the queue was already closed.
func (q *queue) close(sentinel op) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.closed = true
	q.items = append(q.items, sentinel)
	q.cond.Signal()
	return true
}

func (q *queue) pop() op {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.head == len(q.items) {
		q.cond.Wait()
	}
	o := q.items[q.head]
	q.items[q.head] = op{}
	q.head++
	// Reclaim the backing array once the consumer has caught up.
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
	}
	return o
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}
