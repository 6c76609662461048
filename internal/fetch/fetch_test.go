package fetch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

func testRegistry(t *testing.T) *factory.Registry {
	t.Helper()
	reg := factory.NewRegistry()
	require.NoError(t, reg.Register(&factory.Factory{
		DIFType: "normal",
		Ops: factory.Ops{
			Create:   func(factory.IPCPHandle) (any, error) { return nil, nil },
			Destroy:  func(any) {},
			SDUWrite: func(any, int32, []byte) error { return nil },
		},
	}))
	return reg
}

func newTestIPCP(t *testing.T, d *dm.IsolationDomain, name string) *objects.IPCP {
	t.Helper()
	id, err := d.IPCPs.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, name, "dif.normal.1", "normal", false)
	d.IPCPs.Insert(ipcp)
	return ipcp
}

func TestFlowFetchEmptyTableReturnsEndImmediately(t *testing.T) {
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), nil)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	cd := objects.NewControlDevice()
	resp := FlowFetch(d, cd, objects.NotValid)
	require.True(t, resp.End)
}

func TestFlowFetchEnumeratesThenTerminates(t *testing.T) {
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), nil)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	ipcp := newTestIPCP(t, d, "normal0")
	defer d.IPCPLifecycle.Put(ipcp)

	portID, err := d.Flows.AllocPort()
	require.NoError(t, err)
	local := wire.NewName("src")
	remote := wire.NewName("dst")
	f := objects.NewFlow(portID, ipcp.ID(), local, remote, d.Flows.NextUID(), true)
	d.Flows.Insert(f)

	cd := objects.NewControlDevice()
	first := FlowFetch(d, cd, objects.NotValid)
	require.False(t, first.End)
	require.Equal(t, portID, first.PortID)

	second := FlowFetch(d, cd, objects.NotValid)
	require.True(t, second.End)
}

func TestFlowFetchFiltersByIPCP(t *testing.T) {
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), nil)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	ipcpA := newTestIPCP(t, d, "normal0")
	ipcpB := newTestIPCP(t, d, "normal1")
	defer d.IPCPLifecycle.Put(ipcpA)
	defer d.IPCPLifecycle.Put(ipcpB)

	portA, err := d.Flows.AllocPort()
	require.NoError(t, err)
	fA := objects.NewFlow(portA, ipcpA.ID(), wire.NewName("a1"), wire.NewName("a2"), d.Flows.NextUID(), true)
	d.Flows.Insert(fA)

	portB, err := d.Flows.AllocPort()
	require.NoError(t, err)
	fB := objects.NewFlow(portB, ipcpB.ID(), wire.NewName("b1"), wire.NewName("b2"), d.Flows.NextUID(), true)
	d.Flows.Insert(fB)

	cd := objects.NewControlDevice()
	resp := FlowFetch(d, cd, ipcpB.ID())
	require.False(t, resp.End)
	require.Equal(t, ipcpB.ID(), resp.IPCPID)

	end := FlowFetch(d, cd, ipcpB.ID())
	require.True(t, end.End)
}

func TestRegFetchEnumeratesThenTerminates(t *testing.T) {
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), nil)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	ipcp := newTestIPCP(t, d, "normal0")
	defer d.IPCPLifecycle.Put(ipcp)

	owner := objects.NewControlDevice()
	_, _, err = ipcp.Apps().Add(wire.NewName("server"), owner, ipcp.ID(), 1, false)
	require.NoError(t, err)

	cd := objects.NewControlDevice()
	first := RegFetch(d, cd, objects.NotValid)
	require.False(t, first.End)
	require.Equal(t, "server", first.ApplName.Process)

	second := RegFetch(d, cd, objects.NotValid)
	require.True(t, second.End)
}

func TestRegFetchEachCallerGetsOwnCursor(t *testing.T) {
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), nil)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	ipcp := newTestIPCP(t, d, "normal0")
	defer d.IPCPLifecycle.Put(ipcp)

	owner := objects.NewControlDevice()
	_, _, err = ipcp.Apps().Add(wire.NewName("server"), owner, ipcp.ID(), 1, false)
	require.NoError(t, err)

	cd1 := objects.NewControlDevice()
	cd2 := objects.NewControlDevice()

	r1 := RegFetch(d, cd1, objects.NotValid)
	require.False(t, r1.End)

	r2 := RegFetch(d, cd2, objects.NotValid)
	require.False(t, r2.End)
}
