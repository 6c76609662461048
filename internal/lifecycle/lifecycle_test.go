package lifecycle

import (
	"testing"
	"time"

	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
	"github.com/stretchr/testify/require"
)

func completeOps(destroyed *bool) factory.Ops {
	return factory.Ops{
		Create:   func(factory.IPCPHandle) (any, error) { return nil, nil },
		Destroy:  func(any) { *destroyed = true },
		SDUWrite: func(any, int32, []byte) error { return nil },
	}
}

func TestIPCPLifecyclePutDestroysOnLastRelease(t *testing.T) {
	ipcps := objects.NewIPCPTable()
	difs := objects.NewDIFTable()
	reg := factory.NewRegistry()
	destroyed := false
	require.NoError(t, reg.Register(&factory.Factory{DIFType: "normal", Ops: completeOps(&destroyed)}))

	var broadcasted int
	l := NewIPCPLifecycle(ipcps, difs, reg, func(ipcp *objects.IPCP, kind int) { broadcasted = kind })

	id, err := ipcps.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, "normal0", "dif.normal.1", "normal", false)
	ipcps.Insert(ipcp)

	l.Put(ipcp)
	require.True(t, destroyed)
	require.Equal(t, BroadcastDel, broadcasted)

	_, err = ipcps.Get(id)
	require.Error(t, err)
}

func TestIPCPLifecyclePutDoesNotDestroyWhileReferenced(t *testing.T) {
	ipcps := objects.NewIPCPTable()
	difs := objects.NewDIFTable()
	reg := factory.NewRegistry()
	destroyed := false
	require.NoError(t, reg.Register(&factory.Factory{DIFType: "normal", Ops: completeOps(&destroyed)}))
	l := NewIPCPLifecycle(ipcps, difs, reg, nil)

	id, _ := ipcps.AllocID()
	ipcp := objects.NewIPCP(id, "normal0", "dif.normal.1", "normal", false)
	ipcps.Insert(ipcp)
	ipcp.Get() // second reference

	l.Put(ipcp)
	require.False(t, destroyed)
	_, err := ipcps.Get(id)
	require.NoError(t, err)
}

func TestFlowLifecycleImmediateReleaseWhenNeverBound(t *testing.T) {
	flows := objects.NewFlowTable()
	var deallocated bool
	l := NewFlowLifecycle(flows, 50, func(f *objects.Flow) { deallocated = true })
	defer l.Stop()

	portID, _ := flows.AllocPort()
	f := objects.NewFlow(portID, 1, wire.NewName("cli"), wire.NewName("srv"), flows.NextUID(), true)
	flows.Insert(f)

	l.Put(f) // still NEVER_BOUND -> immediate final release
	require.True(t, deallocated)

	_, err := flows.GetByPort(portID)
	require.Error(t, err)
}

func TestFlowLifecyclePostponesAllocatedFlow(t *testing.T) {
	flows := objects.NewFlowTable()
	released := make(chan struct{})
	l := NewFlowLifecycle(flows, 20, func(f *objects.Flow) { close(released) })
	defer l.Stop()

	portID, _ := flows.AllocPort()
	f := objects.NewFlow(portID, 1, wire.NewName("cli"), wire.NewName("srv"), flows.NextUID(), true)
	flows.Insert(f)
	f.ClearFlag(objects.FlowNeverBound) // application opened the I/O device
	f.TransitionAllocated()

	l.Put(f)
	// still reachable immediately after Put (grace period in effect)
	got, err := flows.GetByPort(portID)
	require.NoError(t, err)
	flows.PutLocked(got) // drop the lookup reference

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("flow was not released after grace period")
	}

	_, err = flows.GetByPort(portID)
	require.Error(t, err)
}

func TestFlowLifecycleUnboundSweepCollectsStaleFlow(t *testing.T) {
	flows := objects.NewFlowTable()
	released := make(chan struct{})
	l := NewFlowLifecycle(flows, 4000, func(f *objects.Flow) { close(released) })
	defer l.Stop()

	portID, _ := flows.AllocPort()
	f := objects.NewFlow(portID, 1, wire.NewName("cli"), wire.NewName("srv"), flows.NextUID(), true)
	flows.Insert(f)

	// Exercise the sweep with a much shorter delay than the package
	// default to keep the test fast.
	l.putQueue.ScheduleAfter(encodeKey(f.IPCPID(), f.PortID()), 20*time.Millisecond)

	select {
	case <-released:
	case <-time.After(time.Second):
		t.Fatal("unbound flow was not swept")
	}
}

func TestFlowLifecycleMakeMortalCancelsSweep(t *testing.T) {
	flows := objects.NewFlowTable()
	var released bool
	l := NewFlowLifecycle(flows, 4000, func(f *objects.Flow) { released = true })
	defer l.Stop()

	portID, _ := flows.AllocPort()
	f := objects.NewFlow(portID, 1, wire.NewName("cli"), wire.NewName("srv"), flows.NextUID(), true)
	flows.Insert(f)

	l.ScheduleUnboundSweep(f)
	l.MakeMortal(f)
	require.False(t, l.putQueue.Pending(encodeKey(f.IPCPID(), f.PortID())))

	time.Sleep(30 * time.Millisecond)
	require.False(t, released)
}
