package objects

import (
	"sync"

	"github.com/google/uuid"

	"github.com/dif-systems/rina-core/internal/queue"
)

// SubscribeIPCPUpdates is the one defined ioctl subscription bit (§6):
// "subscribe to IPCP updates".
const SubscribeIPCPUpdates uint32 = 1 << 0

// ControlDevice is per-open-handle state (§3 "ControlDevice"): the
// outbound upstream queue, fetch cursors for flow/registration
// enumeration, and subscription flags.
type ControlDevice struct {
	ID uuid.UUID

	Upstream *queue.Upstream

	mu            sync.Mutex
	subscriptions uint32

	flowFetch *FetchCursor
	regFetch  *FetchCursor
}

// FetchCursor is the stateful enumeration queue behind FLOW_FETCH/
// REG_FETCH (§4.J); internal/fetch owns the snapshot logic, this is just
// the per-device queued-entry storage.
type FetchCursor struct {
	mu      sync.Mutex
	entries []any
}

func (c *FetchCursor) Empty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries) == 0
}

func (c *FetchCursor) Fill(entries []any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
}

func (c *FetchCursor) Pop() (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return nil, false
	}
	e := c.entries[0]
	c.entries = c.entries[1:]
	return e, true
}

// NewControlDevice creates a fresh control device with its own upstream
// queue and fetch cursors.
func NewControlDevice() *ControlDevice {
	return &ControlDevice{
		ID:        uuid.New(),
		Upstream:  queue.NewUpstream(),
		flowFetch: &FetchCursor{},
		regFetch:  &FetchCursor{},
	}
}

func (cd *ControlDevice) FlowFetch() *FetchCursor { return cd.flowFetch }
func (cd *ControlDevice) RegFetch() *FetchCursor   { return cd.regFetch }

// SetSubscription turns subscription bits on or off.
func (cd *ControlDevice) SetSubscription(bits uint32, on bool) {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	if on {
		cd.subscriptions |= bits
	} else {
		cd.subscriptions &^= bits
	}
}

func (cd *ControlDevice) Subscribed(bits uint32) bool {
	cd.mu.Lock()
	defer cd.mu.Unlock()
	return cd.subscriptions&bits == bits
}

// Close tears down the device's upstream queue, unblocking any pending
// readers.
func (cd *ControlDevice) Close() {
	cd.Upstream.Close()
}
