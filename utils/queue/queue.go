package queue

import (
	"context"
	"errors"
	"sync"
)

var ErrClosed = errors.New("queue closed")

// Queue неограниченная FIFO очередь. Push никогда не блокируется.
// После закрытия Pop отдает оставшиеся элементы, затем ошибку закрытия.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	err    error
	notify chan struct{}
	done   chan struct{}
}

func New[T any]() *Queue[T] {
	return &Queue[T]{
		items:  make([]T, 0, 16),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

func (q *Queue[T]) Push(v T) error {
	q.mu.Lock()
	if q.err != nil {
		err := q.err
		q.mu.Unlock()
		return err
	}
	q.items = append(q.items, v)
	q.mu.Unlock()

	q.signal()
	return nil
}

func (q *Queue[T]) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop returns the head of the queue without blocking.
func (q *Queue[T]) TryPop() (v T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pop()
}

func (q *Queue[T]) pop() (v T, ok bool) {
	if len(q.items) == 0 {
		return v, false
	}
	v = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return v, true
}

// Pop blocks until an element is available, the queue is closed and drained,
// or ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		v, ok := q.pop()
		rest, closeErr := len(q.items), q.err
		q.mu.Unlock()

		if ok {
			if rest > 0 {
				// будим следующего ожидающего
				q.signal()
			}
			return v, nil
		}
		if closeErr != nil {
			return v, closeErr
		}

		select {
		case <-q.notify:
		case <-q.done:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close closes the queue with ErrClosed.
func (q *Queue[T]) Close() { q.CloseWithError(nil) }

// CloseWithError closes the queue; Push and drained Pop return err afterwards.
// Only the first call has effect.
func (q *Queue[T]) CloseWithError(err error) {
	if err == nil {
		err = ErrClosed
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return
	}
	q.err = err
	close(q.done)
}

// Done is closed once the queue is closed.
func (q *Queue[T]) Done() <-chan struct{} { return q.done }

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
