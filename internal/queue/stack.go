package queue

import "sync"

// Stack is a LIFO worklist. Popping the most recent push makes the
// traversal finish a child's subtree before the next sibling starts.
type Stack struct {
	mu     sync.Mutex
	items  []Item
	closed bool
}

// NewStack creates an empty stack.
func NewStack() *Stack {
	return &Stack{items: make([]Item, 0)}
}

// Push adds an item on top.
func (s *Stack) Push(item Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrQueueClosed
	}
	s.items = append(s.items, item)
	return nil
}

// PushAll pushes items in reverse so items[0] is popped first.
func (s *Stack) PushAll(items []Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrQueueClosed
	}
	for i := len(items) - 1; i >= 0; i-- {
		s.items = append(s.items, items[i])
	}
	return nil
}

// Pop removes and returns the top item.
func (s *Stack) Pop() (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Item{}, ErrQueueClosed
	}
	if len(s.items) == 0 {
		return Item{}, ErrQueueEmpty
	}

	n := len(s.items) - 1
	item := s.items[n]
	s.items = s.items[:n]
	return item, nil
}

func (s *Stack) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

func (s *Stack) IsEmpty() bool {
	return s.Len() == 0
}

// Items returns the pending items top first.
func (s *Stack) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Item, 0, len(s.items))
	for i := len(s.items) - 1; i >= 0; i-- {
		out = append(out, s.items[i])
	}
	return out
}

func (s *Stack) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
