package dispatch

import (
	"context"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/fetch"
	"github.com/dif-systems/rina-core/internal/wire"
)

func handleFARequest(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FARequestMsg)
	return c.FlowAlloc.FARequest(c.Domain, c.Device, msg.H.EventID, msg)
}

func handleFAResp(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FARespMsg)
	return c.FlowAlloc.FAResp(c.Domain, c.Device, msg)
}

func handleFAReqArrived(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FAReqArrivedMsg)
	ipcp, err := findUipcpOwner(c.Domain, c.Device)
	if err != nil {
		return err
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)
	return c.FlowAlloc.FAReqArrived(c.Domain, ipcp, msg.H.EventID, msg)
}

func handleFARespArrived(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FARespArrivedMsg)
	return c.FlowAlloc.FARespArrived(c.Domain, msg)
}

func handleFlowDealloc(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FlowDeallocMsg)
	f, err := c.Domain.Flows.GetByPort(msg.PortID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	if f.UID() != msg.UID {
		c.Domain.Flows.PutLocked(f)
		return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.FlowDealloc", coreerr.Invalid, "uid mismatch").WithPort(msg.PortID)))
	}
	// Release the lookup reference before handing the flow to the
	// lifecycle manager's own put/release accounting, mirroring the same
	// ordering internal/flowalloc.FAResp uses.
	c.Domain.Flows.PutLocked(f)
	c.Domain.FlowLifecycle.Put(f)
	return c.Device.Upstream.Append(result(msg.H.EventID, nil))
}

func handleFlowStats(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FlowStatsMsg)
	f, err := c.Domain.Flows.GetByPort(msg.PortID)
	if err != nil {
		return c.Device.Upstream.Append(&wire.FlowStatsRespMsg{H: wire.Header{Type: wire.FlowStatsResp, EventID: msg.H.EventID}, Result: resultCode(err)})
	}
	defer c.Domain.Flows.PutLocked(f)
	st := f.Stats()
	return c.Device.Upstream.Append(&wire.FlowStatsRespMsg{
		H: wire.Header{Type: wire.FlowStatsResp, EventID: msg.H.EventID},
		TxPDUs: st.TxPDUs, RxPDUs: st.RxPDUs, TxBytes: st.TxBytes, RxBytes: st.RxBytes,
	})
}

func handleFlowCfgUpdate(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FlowCfgUpdateMsg)
	f, err := c.Domain.Flows.GetByPort(msg.PortID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.Flows.PutLocked(f)

	ipcp, ierr := c.Domain.IPCPs.Get(f.IPCPID())
	if ierr != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, ierr))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)

	fac, ferr := c.Factories.Get(ipcp.FactoryType())
	if ferr != nil || fac.Ops.FlowCfgUpdate == nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.FlowCfgUpdate", coreerr.Unsupported, "IPCP does not support flow config update")))
	}
	return c.Device.Upstream.Append(result(msg.H.EventID, fac.Ops.FlowCfgUpdate(ipcp.Priv(), msg.PortID, msg.Param, msg.Value)))
}

func handleFlowFetch(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.FlowFetchMsg)
	resp := fetch.FlowFetch(c.Domain, c.Device, msg.IPCPID)
	resp.H.EventID = msg.H.EventID
	return c.Device.Upstream.Append(resp)
}

func handleRegFetch(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.RegFetchMsg)
	resp := fetch.RegFetch(c.Domain, c.Device, msg.IPCPID)
	resp.H.EventID = msg.H.EventID
	return c.Device.Upstream.Append(resp)
}
