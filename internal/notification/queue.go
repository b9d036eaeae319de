package notification

import (
	"container/heap"
	"errors"
	"sync"
	"time"

	"mewayz-notifications/internal/models"
)

var ErrQueueFull = errors.New("delivery queue is full")

type queueItem struct {
	n   *models.Notification
	due time.Time
	seq uint64
}

type itemHeap []*queueItem

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].due.Equal(h[j].due) {
		return h[i].seq < h[j].seq
	}
	return h[i].due.Before(h[j].due)
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*queueItem)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}

// DeliveryQueue orders pending notifications by the instant they become due.
// Items due at the same instant leave in admission order.
type DeliveryQueue struct {
	mu       sync.Mutex
	items    itemHeap
	seq      uint64
	capacity int
	wake     chan struct{}
}

// NewDeliveryQueue creates a queue holding at most capacity items;
// capacity <= 0 means unbounded.
func NewDeliveryQueue(capacity int) *DeliveryQueue {
	return &DeliveryQueue{
		capacity: capacity,
		wake:     make(chan struct{}, 1),
	}
}

// Push admits n at now. Its due time is scheduledFor when that lies in the
// future and the admission time otherwise.
func (q *DeliveryQueue) Push(n *models.Notification, now time.Time) error {
	due := now
	if n.ScheduledFor != nil && n.ScheduledFor.After(now) {
		due = *n.ScheduledFor
	}

	q.mu.Lock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return ErrQueueFull
	}
	q.seq++
	heap.Push(&q.items, &queueItem{n: n, due: due, seq: q.seq})
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return nil
}

// Next pops the earliest item if it is due at now. Otherwise it returns nil
// and how long until the earliest item becomes due, or zero when the queue
// is empty.
func (q *DeliveryQueue) Next(now time.Time) (*models.Notification, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, 0
	}
	top := q.items[0]
	if top.due.After(now) {
		return nil, top.due.Sub(now)
	}
	heap.Pop(&q.items)
	return top.n, 0
}

// Wakeup is signalled whenever an item is admitted.
func (q *DeliveryQueue) Wakeup() <-chan struct{} {
	return q.wake
}

func (q *DeliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
