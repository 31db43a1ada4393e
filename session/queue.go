package session

import (
	"sync"
	"time"

	"github.com/relaymobile/sessionwire-go/contracts"
)

// DefaultQueueCapacity is the documented outbound buffer cap.
const DefaultQueueCapacity = 100

// QueueEntry is one buffered outbound envelope.
type QueueEntry struct {
	Envelope   *contracts.Envelope
	EnqueuedAt time.Time
}

// OutboundQueue buffers envelopes that cannot be sent while disconnected.
// It is a capacity-bounded FIFO: when full, the oldest entry is evicted to
// make room (recency is favored over completeness). There is no durable
// persistence across process restarts.
type OutboundQueue struct {
	mu       sync.Mutex
	entries  []QueueEntry
	capacity int
}

// NewOutboundQueue creates a queue. A capacity below one falls back to
// DefaultQueueCapacity.
func NewOutboundQueue(capacity int) *OutboundQueue {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	return &OutboundQueue{capacity: capacity}
}

// Enqueue appends an envelope, evicting the oldest entry first when the
// queue is full. It reports whether an eviction happened.
func (q *OutboundQueue) Enqueue(env *contracts.Envelope) (evicted bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) >= q.capacity {
		q.entries = q.entries[1:]
		evicted = true
	}
	q.entries = append(q.entries, QueueEntry{Envelope: env, EnqueuedAt: time.Now()})
	return evicted
}

// Drain removes and returns all buffered envelopes in enqueue order.
func (q *OutboundQueue) Drain() []*contracts.Envelope {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.entries) == 0 {
		return nil
	}
	envs := make([]*contracts.Envelope, len(q.entries))
	for i, e := range q.entries {
		envs[i] = e.Envelope
	}
	q.entries = nil
	return envs
}

// Requeue puts the unsent remainder of a failed drain back at the front,
// preserving order ahead of anything enqueued since. Overflow drops the
// oldest entries.
func (q *OutboundQueue) Requeue(envs []*contracts.Envelope) {
	if len(envs) == 0 {
		return
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now()
	front := make([]QueueEntry, len(envs), len(envs)+len(q.entries))
	for i, env := range envs {
		front[i] = QueueEntry{Envelope: env, EnqueuedAt: now}
	}
	q.entries = append(front, q.entries...)
	if overflow := len(q.entries) - q.capacity; overflow > 0 {
		q.entries = q.entries[overflow:]
	}
}

// Clear discards all buffered envelopes.
func (q *OutboundQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = nil
}

// Len returns the number of buffered envelopes.
func (q *OutboundQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// Cap returns the queue capacity.
func (q *OutboundQueue) Cap() int {
	return q.capacity
}
