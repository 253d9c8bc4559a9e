// Package memqueue is an in-process FIFO Queue backed by a buffered channel
// and a receipt-handle map, modeling spec.md §6's receive/delete contract
// without a real broker.
package memqueue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"reservecore/internal/queue"
)

// Queue is an in-memory queue.Queue; safe for concurrent use.
type Queue struct {
	mu       sync.Mutex
	pending  []queue.Message
	inFlight map[string]queue.Message
	notify   chan struct{}
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{
		inFlight: make(map[string]queue.Message),
		notify:   make(chan struct{}, 1),
	}
}

func (q *Queue) Publish(_ context.Context, body []byte) error {
	q.mu.Lock()
	q.pending = append(q.pending, queue.Message{Body: body})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return nil
}

func (q *Queue) Receive(ctx context.Context, maxMessages int, maxWait time.Duration) ([]queue.Message, error) {
	deadline := time.Now().Add(maxWait)
	for {
		q.mu.Lock()
		if len(q.pending) > 0 {
			n := maxMessages
			if n > len(q.pending) {
				n = len(q.pending)
			}
			batch := q.pending[:n]
			q.pending = q.pending[n:]

			out := make([]queue.Message, 0, n)
			for _, m := range batch {
				handle := uuid.New().String()
				m.ReceiptHandle = handle
				q.inFlight[handle] = m
				out = append(out, m)
			}
			q.mu.Unlock()
			return out, nil
		}
		q.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, nil
		}
		wait := remaining
		if wait > 50*time.Millisecond {
			wait = 50 * time.Millisecond
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.notify:
		case <-time.After(wait):
		}
	}
}

func (q *Queue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.inFlight, receiptHandle)
	return nil
}
