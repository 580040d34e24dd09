// Package queue holds the utterances waiting to be spoken.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/tizenorg/platform.core.uifw.tts-sub001/tts/engine"
)

var (
	// ErrQueueFull is returned when the queue is at capacity
	ErrQueueFull = errors.New("queue is full")

	// ErrEmpty is returned by Peek and Pop on an empty queue
	ErrEmpty = errors.New("queue is empty")
)

// Utterance is one piece of text waiting to be spoken.
type Utterance struct {
	ID       int
	Text     string
	Language string // As given by the caller
	Voice    engine.Voice
	Speed    int
	Enqueued time.Time
}

// Stats tracks queue usage.
type Stats struct {
	TotalEnqueued   int64
	TotalDequeued   int64
	TotalDropped    int64 // Removed by Clear
	CurrentSize     int
	PeakSize        int
	LastEnqueue     time.Time
	LastDequeue     time.Time
	AverageWaitTime time.Duration
}

// Queue is a FIFO of utterances. It assigns ids starting at 1 that keep
// increasing for the life of the queue, including across Clear.
type Queue struct {
	mu       sync.Mutex
	items    []Utterance
	capacity int // 0 means unbounded
	lastID   int
	stats    Stats
	waitSum  time.Duration
}

// New creates a queue. A capacity of 0 means unbounded.
func New(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{capacity: capacity}
}

// Push appends u, assigning and returning its id. Push never blocks.
func (q *Queue) Push(u Utterance) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.capacity > 0 && len(q.items) >= q.capacity {
		return 0, ErrQueueFull
	}

	q.lastID++
	u.ID = q.lastID
	if u.Enqueued.IsZero() {
		u.Enqueued = time.Now()
	}
	q.items = append(q.items, u)

	q.stats.TotalEnqueued++
	q.stats.LastEnqueue = u.Enqueued
	q.stats.CurrentSize = len(q.items)
	if q.stats.CurrentSize > q.stats.PeakSize {
		q.stats.PeakSize = q.stats.CurrentSize
	}
	return u.ID, nil
}

// Peek returns the head without removing it.
func (q *Queue) Peek() (Utterance, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Utterance{}, ErrEmpty
	}
	return q.items[0], nil
}

// Pop removes and returns the head.
func (q *Queue) Pop() (Utterance, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Utterance{}, ErrEmpty
	}

	u := q.items[0]
	q.items[0] = Utterance{}
	q.items = q.items[1:]

	now := time.Now()
	q.stats.TotalDequeued++
	q.stats.LastDequeue = now
	q.stats.CurrentSize = len(q.items)
	q.waitSum += now.Sub(u.Enqueued)
	q.stats.AverageWaitTime = q.waitSum / time.Duration(q.stats.TotalDequeued)
	return u, nil
}

// Len returns the number of queued utterances.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes every utterance and returns their ids in queue order. The
// id sequence is not reset.
func (q *Queue) Clear() []int {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]int, len(q.items))
	for i, u := range q.items {
		ids[i] = u.ID
	}
	q.stats.TotalDropped += int64(len(q.items))
	q.items = nil
	q.stats.CurrentSize = 0
	return ids
}

// Snapshot returns a copy of the queued utterances, head first.
func (q *Queue) Snapshot() []Utterance {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Utterance(nil), q.items...)
}

// Stats returns a copy of the queue statistics.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stats
}

// LastID returns the most recently assigned id, or 0.
func (q *Queue) LastID() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastID
}
