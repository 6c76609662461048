// Package lifecycle implements the refcounted object lifecycle with
// deferred destruction (§4.D): IPCP put/release is immediate-on-zero,
// while flow put/release goes through a two-stage grace period backed by
// internal/queue.PutQueue.
package lifecycle

import (
	"sync/atomic"
	"time"

	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/queue"
)

// DefaultFlowDelWaitMs is the default grace period before a postponed
// flow's second release runs (§4.D, overridable via the flow-del-wait-ms
// config parameter).
const DefaultFlowDelWaitMs = 4000

// UnboundSweepDelay is the short timeout a freshly created, still
// NEVER_BOUND flow gets in the put-queue; if nothing ever "makes it
// mortal" (binds an application or upper IPCP), the sweep collects it.
const UnboundSweepDelay = 2 * time.Second

// IPCPLifecycle runs IPCP put/release (§4.D "IPCP put"): decrement;
// destroy immediately on last release.
type IPCPLifecycle struct {
	ipcps     *objects.IPCPTable
	difs      *objects.DIFTable
	factories *factory.Registry
	broadcast func(ipcp *objects.IPCP, kind int)
	log       *logging.Logger
}

// Broadcast update kinds, mirroring wire.UpdateAdd/Upd/Del/UipcpDel so
// internal/lifecycle doesn't need to import internal/wire for an enum.
const (
	BroadcastDel = iota
	BroadcastUipcpDel
)

// NewIPCPLifecycle wires an IPCP lifecycle manager. broadcast is called
// (outside any table lock) after an IPCP is actually destroyed.
func NewIPCPLifecycle(ipcps *objects.IPCPTable, difs *objects.DIFTable, factories *factory.Registry, broadcast func(*objects.IPCP, int)) *IPCPLifecycle {
	return &IPCPLifecycle{ipcps: ipcps, difs: difs, factories: factories, broadcast: broadcast, log: logging.Default().With("component", "lifecycle.ipcp")}
}

// Put decrements ipcp's refcount; on last release it unlinks it from the
// table, then outside the lock: destroys the factory-private state,
// releases the DIF, and broadcasts an IPCP-DELETE update.
func (l *IPCPLifecycle) Put(ipcp *objects.IPCP) {
	if !l.ipcps.PutLocked(ipcp) {
		return
	}

	if f, err := l.factories.Get(ipcp.FactoryType()); err == nil && f.Ops.Destroy != nil {
		f.Ops.Destroy(ipcp.Priv())
	}
	l.difs.PutByName(ipcp.DIFName())

	l.log.Debug("ipcp destroyed", "ipcp_id", ipcp.ID(), "name", ipcp.Name())
	if l.broadcast != nil {
		l.broadcast(ipcp, BroadcastDel)
	}
}

// FlowLifecycle runs the two-stage flow put/release with grace period
// (§4.D "Flow put").
type FlowLifecycle struct {
	flows    *objects.FlowTable
	putQueue *queue.PutQueue
	delWaitMs int64

	deallocatedHook func(f *objects.Flow)
	log             *logging.Logger
}

// NewFlowLifecycle wires a flow lifecycle manager. deallocatedHook runs
// (in process context, outside any lock) on the second, final release —
// this is where the factory's flow_deallocated hook, DTP teardown, and
// FLOW_DEALLOCATED notification to a uipcp belong.
func NewFlowLifecycle(flows *objects.FlowTable, delWaitMs int64, deallocatedHook func(*objects.Flow)) *FlowLifecycle {
	l := &FlowLifecycle{flows: flows, delWaitMs: delWaitMs, deallocatedHook: deallocatedHook, log: logging.Default().With("component", "lifecycle.flow")}
	l.putQueue = queue.NewPutQueue(time.Duration(delWaitMs)*time.Millisecond, l)
	return l
}

// ScheduleUnboundSweep arms the short NEVER_BOUND collection timeout for
// a freshly created flow.
func (l *FlowLifecycle) ScheduleUnboundSweep(f *objects.Flow) {
	f.SetExpiration(time.Now().Add(UnboundSweepDelay))
	l.putQueue.ScheduleAfter(encodeKey(f.IPCPID(), f.PortID()), UnboundSweepDelay)
}

// MakeMortal removes f from the unbound sweep once an application opens
// its I/O device (clearing NEVER_BOUND).
func (l *FlowLifecycle) MakeMortal(f *objects.Flow) {
	f.ClearFlag(objects.FlowNeverBound)
	l.putQueue.Cancel(encodeKey(f.IPCPID(), f.PortID()))
}

// Put runs the first-stage release of a flow (§4.D step 1): set
// DEALLOCATED; if it was ALLOCATED, never postponed, and not
// NEVER_BOUND, mark DEL_POSTPONED, re-raise the refcount to 1, and insert
// into the put-queue for the grace period. Otherwise this was already the
// final release and the flow is unlinked immediately.
func (l *FlowLifecycle) Put(f *objects.Flow) {
	wasAllocated := f.HasFlag(objects.FlowAllocated)
	f.TransitionDeallocated()

	if wasAllocated && !f.HasFlag(objects.FlowDelPostponed) && !f.HasFlag(objects.FlowNeverBound) {
		f.SetFlag(objects.FlowDelPostponed)
		f.Reset() // re-raise refcount to 1
		f.SetExpiration(time.Now().Add(time.Duration(atomic.LoadInt64(&l.delWaitMs)) * time.Millisecond))
		l.putQueue.Schedule(encodeKey(f.IPCPID(), f.PortID()))
		return
	}

	l.finalRelease(f)
}

// Release implements queue.Releaser: the put-queue timer fires this when
// a postponed flow's grace period elapses.
func (l *FlowLifecycle) Release(key uint64) {
	ipcpID, portID := decodeKey(key)
	f, err := l.flows.GetByPort(portID)
	if err != nil {
		return
	}
	if f.IPCPID() != ipcpID {
		l.flows.PutLocked(f) // stale key from a reused port id; drop the extra ref only
		return
	}
	l.flows.PutLocked(f) // drop the Get() from GetByPort
	l.finalRelease(f)
}

// finalRelease unlinks f from the table and, if that was the flow's last
// reference, runs the deallocated hook.
func (l *FlowLifecycle) finalRelease(f *objects.Flow) {
	if !l.flows.PutLocked(f) {
		return
	}
	l.log.Debug("flow released", "port_id", f.PortID(), "ipcp_id", f.IPCPID())
	if l.deallocatedHook != nil {
		l.deallocatedHook(f)
	}
}

// Stop disarms the put-queue timer, used during DM teardown.
func (l *FlowLifecycle) Stop() { l.putQueue.Stop() }

// SetDelWaitMs updates the grace period applied to flows postponed from
// now on (the IPCP_CONFIG "flow-del-wait-ms" parameter); flows already
// sitting in the put-queue keep the expiration they were scheduled with.
func (l *FlowLifecycle) SetDelWaitMs(ms int64) {
	atomic.StoreInt64(&l.delWaitMs, ms)
}

func encodeKey(ipcpID, portID int32) uint64 {
	return uint64(uint32(ipcpID))<<32 | uint64(uint32(portID))
}

func decodeKey(key uint64) (ipcpID, portID int32) {
	return int32(key >> 32), int32(uint32(key))
}
