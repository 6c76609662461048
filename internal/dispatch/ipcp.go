package dispatch

import (
	"context"
	"strconv"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

func handleIPCPCreate(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.IPCPCreateMsg)

	f, err := c.Factories.Get(msg.DIFType)
	if err != nil {
		return c.Device.Upstream.Append(&wire.IPCPCreateRespMsg{
			H: wire.Header{Type: wire.IPCPCreateResp, EventID: msg.H.EventID}, IPCPID: objects.NotValid, Result: resultCode(err),
		})
	}
	if _, err := c.Domain.DIFs.GetOrCreate(msg.DIFName, msg.DIFType); err != nil {
		return c.Device.Upstream.Append(&wire.IPCPCreateRespMsg{
			H: wire.Header{Type: wire.IPCPCreateResp, EventID: msg.H.EventID}, IPCPID: objects.NotValid, Result: resultCode(err),
		})
	}

	id, err := c.Domain.IPCPs.AllocID()
	if err != nil {
		c.Domain.DIFs.PutByName(msg.DIFName)
		return c.Device.Upstream.Append(&wire.IPCPCreateRespMsg{
			H: wire.Header{Type: wire.IPCPCreateResp, EventID: msg.H.EventID}, IPCPID: objects.NotValid, Result: resultCode(err),
		})
	}

	ipcp := objects.NewIPCP(id, msg.Name.Process, msg.DIFName, msg.DIFType, f.UseCepIDs)
	priv, err := f.Ops.Create(ipcp)
	if err != nil {
		c.Domain.IPCPs.Unlink(id)
		c.Domain.DIFs.PutByName(msg.DIFName)
		return c.Device.Upstream.Append(&wire.IPCPCreateRespMsg{
			H: wire.Header{Type: wire.IPCPCreateResp, EventID: msg.H.EventID}, IPCPID: objects.NotValid, Result: resultCode(err),
		})
	}
	ipcp.SetPriv(priv)

	c.Domain.IPCPs.Insert(ipcp)
	c.Broadcast.Add(c.Domain, ipcp)
	return c.Device.Upstream.Append(&wire.IPCPCreateRespMsg{
		H: wire.Header{Type: wire.IPCPCreateResp, EventID: msg.H.EventID}, IPCPID: id, Result: 0,
	})
}

func handleIPCPDestroy(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.IPCPDestroyMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	// Mark zombie before releasing the table's own reference, so no new
	// flow/registration picks this IPCP up while the grace-period flows it
	// still owns drain out from under it.
	ipcp.MarkZombie()
	c.Domain.IPCPLifecycle.Put(ipcp) // release the lookup ref taken above
	c.Domain.IPCPLifecycle.Put(ipcp) // release the table's creation-time ref
	return c.Device.Upstream.Append(result(msg.H.EventID, nil))
}

func handleIPCPConfig(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.IPCPConfigMsg)

	if msg.Param == "flow-del-wait-ms" {
		ms, err := parseInt64(msg.Value)
		if err != nil {
			return c.Device.Upstream.Append(result(msg.H.EventID, err))
		}
		c.Domain.FlowLifecycle.SetDelWaitMs(ms)
		return c.Device.Upstream.Append(result(msg.H.EventID, nil))
	}

	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)

	broadcastUpdate := false
	switch msg.Param {
	case "txhdroom":
		v, err := parseUint32(msg.Value)
		if err != nil {
			return c.Device.Upstream.Append(result(msg.H.EventID, err))
		}
		ipcp.SetHeadroom(v, ipcp.RxHdroom(), ipcp.MaxSDUSize())
	case "rxhdroom":
		v, err := parseUint32(msg.Value)
		if err != nil {
			return c.Device.Upstream.Append(result(msg.H.EventID, err))
		}
		ipcp.SetHeadroom(ipcp.TxHdroom(), v, ipcp.MaxSDUSize())
	case "mss":
		v, err := parseUint32(msg.Value)
		if err != nil {
			return c.Device.Upstream.Append(result(msg.H.EventID, err))
		}
		if v < 128 {
			v = 128
		}
		ipcp.SetHeadroom(ipcp.TxHdroom(), ipcp.RxHdroom(), v)
		broadcastUpdate = true
	default:
		f, ferr := c.Factories.Get(ipcp.FactoryType())
		if ferr != nil || f.Ops.Config == nil {
			return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.IPCPConfig", coreerr.Unsupported, "unrecognized config parameter")))
		}
		cerr := f.Ops.Config(ipcp.Priv(), msg.Param, msg.Value)
		return c.Device.Upstream.Append(result(msg.H.EventID, cerr))
	}
	// The ack is queued before the async IPCP_UPDATE broadcast, so a
	// synchronous caller sees its own result before any notification echo.
	if err := c.Device.Upstream.Append(result(msg.H.EventID, nil)); err != nil {
		return err
	}
	if broadcastUpdate {
		c.Broadcast.Update(c.Domain, ipcp)
	}
	return nil
}

func handleIPCPConfigGet(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.IPCPConfigGetMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(&wire.IPCPConfigGetRespMsg{H: wire.Header{Type: wire.IPCPConfigGetResp, EventID: msg.H.EventID}, Result: resultCode(err)})
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)

	var value string
	switch msg.Param {
	case "txhdroom":
		value = uitoa(ipcp.TxHdroom())
	case "rxhdroom":
		value = uitoa(ipcp.RxHdroom())
	case "mss":
		value = uitoa(ipcp.MaxSDUSize())
	default:
		f, ferr := c.Factories.Get(ipcp.FactoryType())
		if ferr != nil || f.Ops.ConfigGet == nil {
			return c.Device.Upstream.Append(&wire.IPCPConfigGetRespMsg{
				H: wire.Header{Type: wire.IPCPConfigGetResp, EventID: msg.H.EventID},
				Result: resultCode(coreerr.New("dispatch.IPCPConfigGet", coreerr.Unsupported, "unrecognized config parameter")),
			})
		}
		v, cerr := f.Ops.ConfigGet(ipcp.Priv(), msg.Param)
		return c.Device.Upstream.Append(&wire.IPCPConfigGetRespMsg{
			H: wire.Header{Type: wire.IPCPConfigGetResp, EventID: msg.H.EventID}, Result: resultCode(cerr), Value: v,
		})
	}
	return c.Device.Upstream.Append(&wire.IPCPConfigGetRespMsg{
		H: wire.Header{Type: wire.IPCPConfigGetResp, EventID: msg.H.EventID}, Result: 0, Value: value,
	})
}

func handleIPCPStats(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.IPCPStatsMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(&wire.IPCPStatsRespMsg{H: wire.Header{Type: wire.IPCPStatsResp, EventID: msg.H.EventID}, Result: resultCode(err)})
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)
	st := ipcp.Stats()
	return c.Device.Upstream.Append(&wire.IPCPStatsRespMsg{
		H: wire.Header{Type: wire.IPCPStatsResp, EventID: msg.H.EventID},
		TxPDUs: st.TxPDUs, RxPDUs: st.RxPDUs, TxBytes: st.TxBytes, RxBytes: st.RxBytes,
	})
}

func handleIPCPQosSupported(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.IPCPQosSupportedMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(&wire.IPCPQosSupportedRespMsg{H: wire.Header{Type: wire.IPCPQosSupportedResp, EventID: msg.H.EventID}, Result: resultCode(err)})
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)

	f, ferr := c.Factories.Get(ipcp.FactoryType())
	if ferr != nil || f.Ops.QosSupported == nil {
		return c.Device.Upstream.Append(&wire.IPCPQosSupportedRespMsg{
			H: wire.Header{Type: wire.IPCPQosSupportedResp, EventID: msg.H.EventID},
			Result: resultCode(coreerr.New("dispatch.IPCPQosSupported", coreerr.Unsupported, "IPCP reports no QoS cubes")),
		})
	}
	return c.Device.Upstream.Append(&wire.IPCPQosSupportedRespMsg{
		H: wire.Header{Type: wire.IPCPQosSupportedResp, EventID: msg.H.EventID}, QosIDs: f.Ops.QosSupported(ipcp.Priv()),
	})
}

func handleUipcpSet(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.UipcpSetMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)
	ipcp.SetUipcp(c.Device)
	return c.Device.Upstream.Append(result(msg.H.EventID, nil))
}

func handleUipcpWait(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.UipcpWaitMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)

	select {
	case <-ipcp.UipcpReady():
		return c.Device.Upstream.Append(result(msg.H.EventID, nil))
	case <-ctx.Done():
		return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.UipcpWait", coreerr.Interrupted, "wait cancelled")))
	}
}

func handleSubscribe(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.SubscribeMsg)
	// Ack before the replay, so the caller's own ResultMsg always precedes
	// the ADD notifications Subscribe replays for existing IPCPs.
	if err := c.Device.Upstream.Append(result(msg.H.EventID, nil)); err != nil {
		return err
	}
	if msg.On {
		c.Broadcast.Subscribe(c.Domain, c.Device)
	} else {
		c.Broadcast.Unsubscribe(c.Device)
	}
	return nil
}

func uitoa(v uint32) string {
	return strconv.FormatUint(uint64(v), 10)
}
