// Package queue provides the crawl worklists: a stack for depth-first
// traversal and a FIFO for breadth-first traversal.
package queue

import (
	"errors"
	"fmt"
)

var (
	ErrQueueEmpty  = errors.New("queue is empty")
	ErrQueueClosed = errors.New("queue is closed")
)

// Order selects the traversal discipline.
type Order string

const (
	DepthFirst   Order = "depth-first"
	BreadthFirst Order = "breadth-first"
)

// Worklist holds (url, depth) items awaiting a visit. Duplicates are
// allowed; the crawler filters visited URLs when it pops.
type Worklist interface {
	// Push adds a single item.
	Push(item Item) error

	// PushAll adds items so that they are popped in slice order
	// relative to each other.
	PushAll(items []Item) error

	// Pop removes and returns the next item.
	Pop() (Item, error)

	// Len returns the number of pending items.
	Len() int

	// IsEmpty returns true if nothing is pending.
	IsEmpty() bool

	// Items returns the pending items in the order they would be popped.
	Items() []Item

	// Close stops accepting pushes and pops.
	Close() error
}

// New creates the worklist for an order.
func New(order Order) (Worklist, error) {
	switch order {
	case DepthFirst, "":
		return NewStack(), nil
	case BreadthFirst:
		return NewFIFO(), nil
	default:
		return nil, fmt.Errorf("unknown traversal order %q", order)
	}
}
