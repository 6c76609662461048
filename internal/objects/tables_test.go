package objects

import (
	"testing"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/wire"
	"github.com/stretchr/testify/require"
)

func newTestIPCP(t *testing.T, table *IPCPTable, name, dif, factoryType string) *IPCP {
	t.Helper()
	id, err := table.AllocID()
	require.NoError(t, err)
	ipcp := NewIPCP(id, name, dif, factoryType, false)
	table.Insert(ipcp)
	return ipcp
}

func TestIPCPTableInsertGetUnlink(t *testing.T) {
	tbl := NewIPCPTable()
	ipcp := newTestIPCP(t, tbl, "shim0", "dif.shim.1", "shim-eth")

	got, err := tbl.Get(ipcp.ID())
	require.NoError(t, err)
	require.Equal(t, ipcp.ID(), got.ID())
	require.Equal(t, int32(2), got.RefCount()) // 1 from creation + 1 from Get

	require.False(t, tbl.PutLocked(got)) // drop the Get() reference
	require.True(t, tbl.PutLocked(ipcp)) // drop the creation reference -> unlinked

	_, err = tbl.Get(ipcp.ID())
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.NoDevice))
}

func TestIPCPTableSelectByDIFPrefersNormal(t *testing.T) {
	tbl := NewIPCPTable()
	newTestIPCP(t, tbl, "shim0", "dif.shim.1", "shim-eth")
	normal := newTestIPCP(t, tbl, "normal0", "dif.normal.1", "normal")

	got, err := tbl.SelectByDIF("")
	require.NoError(t, err)
	require.Equal(t, normal.ID(), got.ID())
}

func TestIPCPTableSelectByDIFSkipsZombies(t *testing.T) {
	tbl := NewIPCPTable()
	ipcp := newTestIPCP(t, tbl, "normal0", "dif.normal.1", "normal")
	ipcp.MarkZombie()

	_, err := tbl.SelectByDIF("")
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.NoDevice))
}

func TestIPCPTableSelectByDIFExactName(t *testing.T) {
	tbl := NewIPCPTable()
	newTestIPCP(t, tbl, "a", "dif.normal.1", "normal")
	b := newTestIPCP(t, tbl, "b", "dif.normal.2", "normal")

	got, err := tbl.SelectByDIF("dif.normal.2")
	require.NoError(t, err)
	require.Equal(t, b.ID(), got.ID())
}

func TestDIFTableGetOrCreateAndMismatch(t *testing.T) {
	tbl := NewDIFTable()
	d, err := tbl.GetOrCreate("dif.normal.1", "normal")
	require.NoError(t, err)
	require.Equal(t, int32(1), d.RefCount())

	d2, err := tbl.GetOrCreate("dif.normal.1", "normal")
	require.NoError(t, err)
	require.Equal(t, int32(2), d2.RefCount())

	_, err = tbl.GetOrCreate("dif.normal.1", "shim-eth")
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.Invalid))
}

func TestDIFTablePutUnlinksAtZero(t *testing.T) {
	tbl := NewDIFTable()
	d, err := tbl.GetOrCreate("dif.normal.1", "normal")
	require.NoError(t, err)
	tbl.Put(d)

	d2, err := tbl.GetOrCreate("dif.normal.1", "normal")
	require.NoError(t, err)
	require.Equal(t, int32(1), d2.RefCount(), "should have been recreated, not reused")
}

func TestFlowTableAllocInsertGet(t *testing.T) {
	tbl := NewFlowTable()
	portID, err := tbl.AllocPort()
	require.NoError(t, err)

	f := NewFlow(portID, 1, wire.NewName("cli"), wire.NewName("srv"), tbl.NextUID(), true)
	tbl.Insert(f)

	got, err := tbl.GetByPort(portID)
	require.NoError(t, err)
	require.Equal(t, portID, got.PortID())
}

func TestFlowTablePutUnlinksAndFreesPort(t *testing.T) {
	tbl := NewFlowTable()
	portID, err := tbl.AllocPort()
	require.NoError(t, err)
	f := NewFlow(portID, 1, wire.NewName("cli"), wire.NewName("srv"), tbl.NextUID(), true)
	tbl.Insert(f)

	require.True(t, tbl.PutLocked(f))
	_, err = tbl.GetByPort(portID)
	require.Error(t, err)

	// the port id should be reusable now
	newID, err := tbl.AllocPort()
	require.NoError(t, err)
	require.Equal(t, portID, newID)
}

func TestFlowTableListFiltersByIPCP(t *testing.T) {
	tbl := NewFlowTable()
	p1, _ := tbl.AllocPort()
	p2, _ := tbl.AllocPort()
	tbl.Insert(NewFlow(p1, 1, wire.NewName("a"), wire.NewName("b"), tbl.NextUID(), true))
	tbl.Insert(NewFlow(p2, 2, wire.NewName("c"), wire.NewName("d"), tbl.NextUID(), true))

	all := tbl.List(NotValid)
	require.Len(t, all, 2)

	only1 := tbl.List(1)
	require.Len(t, only1, 1)
	require.Equal(t, int32(1), only1[0].IPCPID())
}

func TestAppRegistryAddIdempotentAndBusy(t *testing.T) {
	reg := NewAppRegistry()
	cdA := NewControlDevice()
	cdB := NewControlDevice()
	name := wire.NewName("srv")

	code, r1, err := reg.Add(name, cdA, 1, 1, false)
	require.NoError(t, err)
	require.Equal(t, 0, code)
	require.Equal(t, RegComplete, r1.State())

	code, r2, err := reg.Add(name, cdA, 1, 1, false)
	require.NoError(t, err)
	require.Equal(t, AlreadyRegisteredBySameDevice, code)
	require.Same(t, r1, r2)

	_, _, err = reg.Add(name, cdB, 1, 2, false)
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.Busy))
}

func TestAppRegistryPendingThenComplete(t *testing.T) {
	reg := NewAppRegistry()
	cd := NewControlDevice()
	name := wire.NewName("srv")

	_, r, err := reg.Add(name, cd, 1, 1, true)
	require.NoError(t, err)
	require.Equal(t, RegPending, r.State())

	r.Complete()
	require.Equal(t, RegComplete, r.State())
}

func TestAppRegistryDelUnlinksOnLastRelease(t *testing.T) {
	reg := NewAppRegistry()
	cd := NewControlDevice()
	name := wire.NewName("srv")
	_, _, err := reg.Add(name, cd, 1, 1, false)
	require.NoError(t, err)

	_, unlinked, err := reg.Del(name)
	require.NoError(t, err)
	require.True(t, unlinked)

	_, err = reg.Get(name)
	require.Error(t, err)
}

func TestAppRegistryStealAll(t *testing.T) {
	reg := NewAppRegistry()
	cd := NewControlDevice()
	other := NewControlDevice()
	_, _, err := reg.Add(wire.NewName("a"), cd, 1, 1, false)
	require.NoError(t, err)
	_, _, err = reg.Add(wire.NewName("b"), other, 1, 2, false)
	require.NoError(t, err)

	stolen := reg.StealAll(cd)
	require.Len(t, stolen, 1)
	require.Equal(t, "a", stolen[0].Name.Process)
	require.Len(t, reg.List(), 1)
}
