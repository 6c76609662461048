package queue

import (
	"container/heap"
	"sync"
	"time"
)

// Releaser destroys an object whose refcount has dropped to zero once its
// grace period elapses. Implementations live in internal/lifecycle.
type Releaser interface {
	Release(id uint64)
}

type putEntry struct {
	id       uint64
	deadline time.Time
	index    int
}

// putHeap is a min-heap on deadline, giving the put-queue O(log n)
// insert and O(1) peek-earliest.
type putHeap []*putEntry

func (h putHeap) Len() int            { return len(h) }
func (h putHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h putHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index, h[j].index = i, j }
func (h *putHeap) Push(x interface{}) {
	e := x.(*putEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *putHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// PutQueue is the time-ordered structure backing deferred object
// destruction (§4.D): Schedule(id) arms a timer firing grace after the
// call, and Cancel(id) revives the object if something re-gets it before
// the timer fires.
type PutQueue struct {
	mu       sync.Mutex
	grace    time.Duration
	releaser Releaser
	entries  map[uint64]*putEntry
	heap     putHeap
	timer    *time.Timer
	stopped  bool
}

// NewPutQueue creates a PutQueue that calls releaser.Release(id) grace
// after each Schedule(id), unless Cancel(id) runs first.
func NewPutQueue(grace time.Duration, releaser Releaser) *PutQueue {
	return &PutQueue{
		grace:    grace,
		releaser: releaser,
		entries:  make(map[uint64]*putEntry),
	}
}

// Schedule arms deferred destruction of id after the queue's configured
// grace period. Re-scheduling an id already pending refreshes its
// deadline.
func (q *PutQueue) Schedule(id uint64) {
	q.ScheduleAfter(id, q.grace)
}

// ScheduleAfter arms deferred destruction of id after a caller-chosen
// delay instead of the queue's default grace period — used for the
// unbound-flow sweep, which runs on a much shorter timeout than the
// postponed-deallocation grace period sharing the same queue.
func (q *PutQueue) ScheduleAfter(id uint64, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.stopped {
		return
	}

	if e, ok := q.entries[id]; ok {
		e.deadline = time.Now().Add(delay)
		heap.Fix(&q.heap, e.index)
	} else {
		e := &putEntry{id: id, deadline: time.Now().Add(delay)}
		q.entries[id] = e
		heap.Push(&q.heap, e)
	}
	q.rearmLocked()
}

// Cancel un-arms a pending destruction, e.g. because a new reference was
// taken before the grace period expired. Returns true if id had a pending
// entry that was removed.
func (q *PutQueue) Cancel(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.entries[id]
	if !ok {
		return false
	}
	heap.Remove(&q.heap, e.index)
	delete(q.entries, id)
	q.rearmLocked()
	return true
}

// Pending reports whether id currently has a deferred destruction armed.
func (q *PutQueue) Pending(id uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.entries[id]
	return ok
}

// Stop disarms the underlying timer. Already-fired releases are not
// recalled.
func (q *PutQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.stopped = true
	if q.timer != nil {
		q.timer.Stop()
	}
}

// rearmLocked (re)starts the single timer to fire at the earliest pending
// deadline. Caller holds q.mu.
func (q *PutQueue) rearmLocked() {
	if q.timer != nil {
		q.timer.Stop()
	}
	if len(q.heap) == 0 {
		return
	}
	delay := time.Until(q.heap[0].deadline)
	if delay < 0 {
		delay = 0
	}
	q.timer = time.AfterFunc(delay, q.fire)
}

// fire releases every entry whose deadline has passed, then rearms for
// the next one.
func (q *PutQueue) fire() {
	var due []uint64

	q.mu.Lock()
	now := time.Now()
	for len(q.heap) > 0 && !q.heap[0].deadline.After(now) {
		e := heap.Pop(&q.heap).(*putEntry)
		delete(q.entries, e.id)
		due = append(due, e.id)
	}
	if !q.stopped {
		q.rearmLocked()
	}
	q.mu.Unlock()

	for _, id := range due {
		q.releaser.Release(id)
	}
}
