package queue

import "sync"

// FIFO is a first-in first-out worklist for breadth-first crawls.
type FIFO struct {
	mu     sync.Mutex
	items  []Item
	head   int
	closed bool
}

// NewFIFO creates an empty FIFO.
func NewFIFO() *FIFO {
	return &FIFO{items: make([]Item, 0)}
}

func (q *FIFO) Push(item Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, item)
	return nil
}

func (q *FIFO) PushAll(items []Item) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, items...)
	return nil
}

func (q *FIFO) Pop() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return Item{}, ErrQueueClosed
	}
	if q.head >= len(q.items) {
		return Item{}, ErrQueueEmpty
	}

	item := q.items[q.head]
	q.items[q.head] = Item{}
	q.head++

	// Compact once the consumed prefix dominates the backing array.
	if q.head > 64 && q.head*2 > len(q.items) {
		q.items = append([]Item(nil), q.items[q.head:]...)
		q.head = 0
	}
	return item, nil
}

func (q *FIFO) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

func (q *FIFO) IsEmpty() bool {
	return q.Len() == 0
}

func (q *FIFO) Items() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make([]Item, len(q.items)-q.head)
	copy(out, q.items[q.head:])
	return out
}

func (q *FIFO) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}
