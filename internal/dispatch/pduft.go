package dispatch

import (
	"context"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/wire"
)

func handlePduftSet(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.PduftSetMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)
	f, ferr := c.Factories.Get(ipcp.FactoryType())
	if ferr != nil || f.Ops.PDUFTSet == nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.PduftSet", coreerr.Unsupported, "IPCP does not support PDU forwarding table updates")))
	}
	return c.Device.Upstream.Append(result(msg.H.EventID, f.Ops.PDUFTSet(ipcp.Priv(), msg.DestAddr, msg.LowerPortID)))
}

func handlePduftDel(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.PduftDelMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)
	f, ferr := c.Factories.Get(ipcp.FactoryType())
	if ferr != nil || f.Ops.PDUFTDel == nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.PduftDel", coreerr.Unsupported, "IPCP does not support PDU forwarding table updates")))
	}
	return c.Device.Upstream.Append(result(msg.H.EventID, f.Ops.PDUFTDel(ipcp.Priv(), msg.DestAddr)))
}

func handlePduftFlush(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.PduftFlushMsg)
	ipcp, err := resolveIPCP(c.Domain, msg.IPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)
	f, ferr := c.Factories.Get(ipcp.FactoryType())
	if ferr != nil || f.Ops.PDUFTFlush == nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.PduftFlush", coreerr.Unsupported, "IPCP does not support PDU forwarding table updates")))
	}
	return c.Device.Upstream.Append(result(msg.H.EventID, f.Ops.PDUFTFlush(ipcp.Priv())))
}
