// Package queue implements the durable store-and-forward FIFO described in
// §4.2: a persistent buffer of events awaiting forwarding, surviving
// process restarts, with retry bookkeeping and age/capacity eviction.
package queue

import (
	"time"

	"github.com/google/uuid"

	"github.com/siemagent/agent/internal/event"
)

// Entry wraps an Event with the durable-queue bookkeeping fields from §3.
type Entry struct {
	Event       event.Event
	CachedAt    time.Time
	SubmittedAt time.Time
	RetryCount  int
	LastRetryAt *time.Time
}

// ID is a convenience accessor; an entry's identity never changes for its
// lifetime in the queue.
func (e Entry) ID() uuid.UUID { return e.Event.ID }

// ErrFull is returned by Enqueue when the queue is at its configured
// capacity.
type ErrFull struct{ Capacity int }

func (e ErrFull) Error() string {
	return "queue is at capacity"
}
