package metrics

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

func testManager(t *testing.T) *dm.Manager {
	t.Helper()
	reg := factory.NewRegistry()
	require.NoError(t, reg.Register(&factory.Factory{
		DIFType: "normal",
		Ops: factory.Ops{
			Create:  func(factory.IPCPHandle) (any, error) { return nil, nil },
			Destroy: func(any) {},
			SDUWrite: func(any, int32, []byte) error { return nil },
		},
	}))
	return dm.NewManager(reg, dm.DefaultConfig(), nil)
}

func TestObserveDispatchCountsByType(t *testing.T) {
	r := NewRegistry(testManager(t))

	r.ObserveDispatch(wire.IPCPCreate, nil)
	r.ObserveDispatch(wire.IPCPCreate, nil)
	r.ObserveDispatch(wire.IPCPCreate, errors.New("boom"))

	require.Equal(t, float64(3), testutil.ToFloat64(r.dispatchTotal.WithLabelValues("ipcp_create")))
	require.Equal(t, float64(1), testutil.ToFloat64(r.dispatchErrors.WithLabelValues("ipcp_create")))
}

func TestStatsCollectorReportsLiveIPCPs(t *testing.T) {
	mgr := testManager(t)
	r := NewRegistry(mgr)

	domain, err := mgr.GetOrCreate(context.Background(), "ns0")
	require.NoError(t, err)
	defer mgr.Put(domain)

	id, err := domain.IPCPs.AllocID()
	require.NoError(t, err)
	ipcp := objects.NewIPCP(id, "n0", "dif.normal.1", "normal", false)
	ipcp.AddTxStats(4, 400)
	domain.IPCPs.Insert(ipcp)

	metricFamilies, err := r.Gatherer().Gather()
	require.NoError(t, err)

	var sawIPCPs, sawTxPDUs bool
	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "rina_ipcps":
			sawIPCPs = true
			require.Len(t, mf.GetMetric(), 1)
			require.Equal(t, float64(1), mf.GetMetric()[0].GetGauge().GetValue())
		case "rina_ipcp_tx_pdus_total":
			sawTxPDUs = true
			require.Len(t, mf.GetMetric(), 1)
			require.Equal(t, float64(4), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, sawIPCPs, "rina_ipcps metric family not present in scrape")
	require.True(t, sawTxPDUs, "rina_ipcp_tx_pdus_total metric family not present in scrape")
}
