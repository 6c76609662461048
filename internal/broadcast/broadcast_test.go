package broadcast

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/lifecycle"
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

func TestSubscribeReplaysExistingIPCPsAsAdd(t *testing.T) {
	b := New()
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), b.Hook)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	id, err := d.IPCPs.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, "normal0", "dif.normal.1", "normal", false)
	d.IPCPs.Insert(ipcp)

	cd := objects.NewControlDevice()
	d.RegisterDevice(cd)
	b.Subscribe(d, cd)

	msg, err := cd.Upstream.ReadNonBlocking()
	require.NoError(t, err)
	upd, ok := msg.(*wire.IPCPUpdateMsg)
	require.True(t, ok)
	require.Equal(t, wire.UpdateAdd, upd.Kind)
	require.Equal(t, id, upd.IPCPID)
}

func TestUnsubscribedDeviceGetsNothing(t *testing.T) {
	b := New()
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), b.Hook)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	cd := objects.NewControlDevice()
	d.RegisterDevice(cd)

	id, err := d.IPCPs.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, "normal0", "dif.normal.1", "normal", false)
	d.IPCPs.Insert(ipcp)
	b.Add(d, ipcp)

	_, err = cd.Upstream.ReadNonBlocking()
	require.Error(t, err)
}

func TestIPCPDestroyBroadcastsDel(t *testing.T) {
	b := New()
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), b.Hook)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	cd := objects.NewControlDevice()
	d.RegisterDevice(cd)

	id, err := d.IPCPs.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, "normal0", "dif.normal.1", "normal", false)
	d.IPCPs.Insert(ipcp)
	b.Subscribe(d, cd) // drains the replayed ADD below

	_, err = cd.Upstream.ReadNonBlocking()
	require.NoError(t, err)

	d.IPCPLifecycle.Put(ipcp)

	msg, err := cd.Upstream.ReadNonBlocking()
	require.NoError(t, err)
	upd, ok := msg.(*wire.IPCPUpdateMsg)
	require.True(t, ok)
	require.Equal(t, uint8(wire.UpdateDel), upd.Kind)
}

func TestHookTranslatesUipcpDelKind(t *testing.T) {
	b := New()
	m := dm.NewManager(testRegistry(t), dm.DefaultConfig(), b.Hook)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	cd := objects.NewControlDevice()
	d.RegisterDevice(cd)
	cd.SetSubscription(objects.SubscribeIPCPUpdates, true)

	id, err := d.IPCPs.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, "normal0", "dif.normal.1", "normal", false)
	d.IPCPs.Insert(ipcp)

	b.Hook(d, ipcp, lifecycle.BroadcastUipcpDel)

	msg, err := cd.Upstream.ReadNonBlocking()
	require.NoError(t, err)
	upd, ok := msg.(*wire.IPCPUpdateMsg)
	require.True(t, ok)
	require.Equal(t, uint8(wire.UpdateUipcpDel), upd.Kind)
}
