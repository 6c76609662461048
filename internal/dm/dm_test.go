package dm

import (
	"context"
	"sync"
	"testing"

	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/stretchr/testify/require"
)

func testFactories(t *testing.T) *factory.Registry {
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

func TestManagerGetOrCreateReusesDomain(t *testing.T) {
	m := NewManager(testFactories(t), DefaultConfig(), nil)
	d1, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	d2, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	require.Same(t, d1, d2)
}

func TestManagerGetOrCreateConcurrentSameNamespace(t *testing.T) {
	m := NewManager(testFactories(t), DefaultConfig(), nil)
	const n = 32
	domains := make([]*IsolationDomain, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := m.GetOrCreate(context.Background(), "shared")
			require.NoError(t, err)
			domains[i] = d
		}(i)
	}
	wg.Wait()
	for i := 1; i < n; i++ {
		require.Same(t, domains[0], domains[i])
	}
}

func TestManagerPutTearsDownOnLastRelease(t *testing.T) {
	m := NewManager(testFactories(t), DefaultConfig(), nil)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	require.NoError(t, m.Put(d))
	_, err = m.Lookup("ns0")
	require.Error(t, err)
}

func TestManagerPutKeepsAliveUntilLastRelease(t *testing.T) {
	m := NewManager(testFactories(t), DefaultConfig(), nil)
	d1, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	d2, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	require.Same(t, d1, d2)

	require.NoError(t, m.Put(d1)) // refcount 2 -> 1, still alive
	alive, err := m.Lookup("ns0")
	require.NoError(t, err)
	require.NoError(t, m.Put(alive)) // undo the Lookup()'s own Get()

	require.NoError(t, m.Put(d2)) // refcount 1 -> 0, torn down
	_, err = m.Lookup("ns0")
	require.Error(t, err)
}

func TestIsolationDomainDeviceRegistry(t *testing.T) {
	m := NewManager(testFactories(t), DefaultConfig(), nil)
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	cd := objects.NewControlDevice()
	d.RegisterDevice(cd)
	require.Len(t, d.Devices(), 1)

	d.UnregisterDevice(cd)
	require.Empty(t, d.Devices())
}

func TestManagerBroadcastCallback(t *testing.T) {
	var gotNamespace string
	m := NewManager(testFactories(t), DefaultConfig(), func(domain *IsolationDomain, ipcp *objects.IPCP, kind int) {
		gotNamespace = domain.Namespace
	})
	d, err := m.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)

	id, err := d.IPCPs.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, "normal0", "dif.normal.1", "normal", false)
	d.IPCPs.Insert(ipcp)

	d.IPCPLifecycle.Put(ipcp)
	require.Equal(t, "ns0", gotNamespace)
}
