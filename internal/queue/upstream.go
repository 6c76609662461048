// Package queue implements the per-control-device upstream delivery queue
// (§4.B) and the time-ordered deferred-destruction put-queue (§4.D).
package queue

import (
	"sync"
	"time"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/wire"
)

// UpstreamByteBudget is the total encoded-message byte budget a single
// control device's upstream queue may hold before Append blocks or, for a
// non-blocking producer, fails with NoSpace.
const UpstreamByteBudget = 16 * 1024

// AppendWait is how long a blocking Append waits for room to free up
// before giving up with a Busy error.
const AppendWait = 5 * time.Millisecond

// Upstream is the bounded FIFO of pending messages a control device drains
// into its client connection. One Upstream serves one control device.
type Upstream struct {
	mu     sync.Mutex
	msgs   []wire.Message
	bytes  int
	closed bool

	// roomFreed/msgAdded are re-created (closed, then replaced) each time
	// room frees up or a message arrives, letting blocked callers select
	// on them with a timeout instead of polling.
	roomFreed chan struct{}
	msgAdded  chan struct{}
}

// NewUpstream creates an empty Upstream.
func NewUpstream() *Upstream {
	return &Upstream{
		roomFreed: make(chan struct{}),
		msgAdded:  make(chan struct{}),
	}
}

func encodedSize(m wire.Message) (int, error) {
	buf, err := wire.Encode(m)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

// Append enqueues m, blocking up to AppendWait for room if the queue is
// over budget. Returns Busy if no room freed up in time, or NoSpace if the
// message alone cannot fit (oversized relative to the budget).
func (u *Upstream) Append(m wire.Message) error {
	n, err := encodedSize(m)
	if err != nil {
		return err
	}
	if n > UpstreamByteBudget {
		return coreerr.New("upstream.Append", coreerr.NoSpace, "message exceeds upstream byte budget")
	}

	deadline := time.Now().Add(AppendWait)
	for {
		u.mu.Lock()
		if u.closed {
			u.mu.Unlock()
			return coreerr.New("upstream.Append", coreerr.NoDevice, "upstream closed")
		}
		if u.bytes+n <= UpstreamByteBudget {
			u.msgs = append(u.msgs, m)
			u.bytes += n
			u.signalLocked(&u.msgAdded)
			u.mu.Unlock()
			return nil
		}
		wait := u.roomFreed
		u.mu.Unlock()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return coreerr.New("upstream.Append", coreerr.Busy, "upstream queue full")
		}
		select {
		case <-wait:
		case <-time.After(remaining):
			return coreerr.New("upstream.Append", coreerr.Busy, "upstream queue full")
		}
	}
}

// AppendNonBlocking enqueues m without waiting, failing immediately with
// NoSpace if the byte budget would be exceeded.
func (u *Upstream) AppendNonBlocking(m wire.Message) error {
	n, err := encodedSize(m)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return coreerr.New("upstream.AppendNonBlocking", coreerr.NoDevice, "upstream closed")
	}
	if u.bytes+n > UpstreamByteBudget {
		return coreerr.New("upstream.AppendNonBlocking", coreerr.NoSpace, "upstream queue full")
	}
	u.msgs = append(u.msgs, m)
	u.bytes += n
	u.signalLocked(&u.msgAdded)
	return nil
}

// Read dequeues the oldest pending message, blocking until one arrives or
// the upstream is closed.
func (u *Upstream) Read() (wire.Message, error) {
	for {
		u.mu.Lock()
		if len(u.msgs) > 0 {
			m, err := u.popLocked()
			u.mu.Unlock()
			return m, err
		}
		if u.closed {
			u.mu.Unlock()
			return nil, coreerr.New("upstream.Read", coreerr.NoDevice, "upstream closed")
		}
		wait := u.msgAdded
		u.mu.Unlock()
		<-wait
	}
}

// ReadNonBlocking dequeues the oldest pending message without waiting,
// returning WouldBlock if the queue is currently empty.
func (u *Upstream) ReadNonBlocking() (wire.Message, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if len(u.msgs) == 0 {
		if u.closed {
			return nil, coreerr.New("upstream.ReadNonBlocking", coreerr.NoDevice, "upstream closed")
		}
		return nil, coreerr.New("upstream.ReadNonBlocking", coreerr.WouldBlock, "upstream queue empty")
	}
	return u.popLocked()
}

// popLocked removes and returns the oldest message. Caller holds u.mu and
// has already established len(u.msgs) > 0.
func (u *Upstream) popLocked() (wire.Message, error) {
	m := u.msgs[0]
	n, _ := encodedSize(m)
	u.msgs[0] = nil
	u.msgs = u.msgs[1:]
	u.bytes -= n
	u.signalLocked(&u.roomFreed)
	return m, nil
}

// signalLocked wakes every goroutine waiting on *ch by closing it and
// replacing it with a fresh channel for the next round of waiters. Caller
// holds u.mu.
func (u *Upstream) signalLocked(ch *chan struct{}) {
	close(*ch)
	*ch = make(chan struct{})
}

// Len reports the number of messages currently queued.
func (u *Upstream) Len() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.msgs)
}

// Close marks the upstream closed, waking any blocked Append/Read callers.
func (u *Upstream) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return
	}
	u.closed = true
	u.signalLocked(&u.msgAdded)
	u.signalLocked(&u.roomFreed)
}
