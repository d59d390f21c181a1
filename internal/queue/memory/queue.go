// Package memory provides the in-process job queue used by the worker
// pool. It is the only queue implementation; jobs never leave the
// process, only completion events do.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tastewell/harvester/internal/harvest"
)

// ErrClosed is returned by Enqueue and Dequeue once the queue is closed.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
// Close never closes the item channel, so producers racing a shutdown
// get ErrClosed instead of a send panic.
type Queue struct {
	ch   chan harvest.QueueItem
	done chan struct{}
	once sync.Once
}

var _ harvest.Queue = (*Queue)(nil)

// NewQueue constructs a queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	return &Queue{
		ch:   make(chan harvest.QueueItem, capacity),
		done: make(chan struct{}),
	}
}

// Enqueue pushes an item into the queue or returns when the context ends
// or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, item harvest.QueueItem) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return ErrClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. After
// Close, buffered items are still handed out before ErrClosed.
func (q *Queue) Dequeue(ctx context.Context) (harvest.QueueItem, error) {
	select {
	case <-ctx.Done():
		return harvest.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item := <-q.ch:
		return item, nil
	case <-q.done:
		select {
		case item := <-q.ch:
			return item, nil
		default:
			return harvest.QueueItem{}, ErrClosed
		}
	}
}

// Close marks the queue closed for shutdown. Safe to call twice.
func (q *Queue) Close() {
	q.once.Do(func() { close(q.done) })
}
