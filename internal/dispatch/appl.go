package dispatch

import (
	"context"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

func applRegisterResp(eventID uint32, name wire.Name, reg bool, result int32) *wire.ApplRegisterRespMsg {
	return &wire.ApplRegisterRespMsg{
		H: wire.Header{Type: wire.ApplRegisterResp, EventID: eventID}, ApplName: name, Reg: reg, Response: result,
	}
}

func handleApplRegister(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.ApplRegisterMsg)

	var ipcp *objects.IPCP
	var err error
	if msg.IPCPID != objects.NotValid {
		ipcp, err = resolveIPCP(c.Domain, msg.IPCPID)
	} else {
		ipcp, err = c.Domain.IPCPs.SelectByDIF(msg.DIFName)
	}
	if err != nil {
		return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, msg.Reg, resultCode(err)))
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)

	if !msg.Reg {
		reg, removed, derr := ipcp.Apps().Del(msg.ApplName)
		if derr != nil {
			return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, false, resultCode(derr)))
		}
		if removed {
			if f, ferr := c.Factories.Get(ipcp.FactoryType()); ferr == nil && f.Ops.ApplRegister != nil {
				_ = f.Ops.ApplRegister(ipcp.Priv(), msg.ApplName.Process, false)
			} else if ipcp.Uipcp() != nil {
				_ = ipcp.Uipcp().Upstream.Append(&wire.ApplRegisterMsg{
					H: wire.Header{Type: wire.ApplRegister, EventID: reg.EventID},
					IPCPID: ipcp.ID(), DIFName: ipcp.DIFName(), ApplName: msg.ApplName, Reg: false,
				})
			}
		}
		return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, false, 0))
	}

	f, ferr := c.Factories.Get(ipcp.FactoryType())
	kernelMediated := ferr == nil && f.Ops.ApplRegister != nil
	uipcpMediated := !kernelMediated && ipcp.Uipcp() != nil
	if !kernelMediated && !uipcpMediated {
		notSupported := coreerr.New("dispatch.ApplRegister", coreerr.NoDevice, "IPCP has neither a kernel hook nor a uipcp")
		return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, true, resultCode(notSupported)))
	}

	code, _, aerr := ipcp.Apps().Add(msg.ApplName, c.Device, ipcp.ID(), msg.H.EventID, uipcpMediated)
	if aerr != nil {
		return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, true, resultCode(aerr)))
	}
	if code == objects.AlreadyRegisteredBySameDevice {
		return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, true, 0))
	}

	if kernelMediated {
		if cerr := f.Ops.ApplRegister(ipcp.Priv(), msg.ApplName.Process, true); cerr != nil {
			ipcp.Apps().Del(msg.ApplName)
			return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, true, resultCode(cerr)))
		}
		return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, true, 0))
	}

	// uipcp-mediated: reflect the request up and let the write succeed now —
	// the real outcome arrives later via APPL_REGISTER_RESP (§7's soft-denied
	// propagation policy: a pending mediated request doesn't fail the write).
	if werr := ipcp.Uipcp().Upstream.Append(&wire.ApplRegisterMsg{
		H: wire.Header{Type: wire.ApplRegister, EventID: msg.H.EventID},
		IPCPID: ipcp.ID(), DIFName: ipcp.DIFName(), ApplName: msg.ApplName, Reg: true,
	}); werr != nil {
		ipcp.Apps().Del(msg.ApplName)
		return c.Device.Upstream.Append(applRegisterResp(msg.H.EventID, msg.ApplName, true, resultCode(werr)))
	}
	return nil
}

// handleApplRegisterResp receives the uipcp's verdict on a mediated
// registration it was previously reflected (via handleApplRegister), then
// relays the same message shape down to the original registering client —
// the same wire type serves both the uipcp→core and core→client legs,
// mirroring internal/flowalloc's FAReqArrived reflection.
func handleApplRegisterResp(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.ApplRegisterRespMsg)
	ipcp, err := findUipcpOwner(c.Domain, c.Device)
	if err != nil {
		return err
	}
	defer c.Domain.IPCPs.PutLocked(ipcp)

	if msg.Response < 0 {
		reg, _, derr := ipcp.Apps().Del(msg.ApplName)
		if derr != nil {
			return derr
		}
		return reg.Owner.Upstream.Append(applRegisterResp(reg.EventID, msg.ApplName, true, msg.Response))
	}

	reg, gerr := ipcp.Apps().Get(msg.ApplName)
	if gerr != nil {
		return gerr
	}
	reg.Complete()
	reg.Put() // release the lookup ref; Get() only bumped the table-held refcount
	return reg.Owner.Upstream.Append(applRegisterResp(reg.EventID, msg.ApplName, true, msg.Response))
}

func handleApplMove(ctx context.Context, c *Context, m wire.Message) error {
	msg := m.(*wire.ApplMoveMsg)

	newIPCP, err := resolveIPCP(c.Domain, msg.NewIPCPID)
	if err != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, err))
	}
	defer c.Domain.IPCPs.PutLocked(newIPCP)

	var owner *objects.IPCP
	for _, candidate := range c.Domain.IPCPs.List() {
		for _, reg := range candidate.Apps().List() {
			if reg.Name == msg.ApplName {
				owner = candidate
				break
			}
		}
		if owner != nil {
			break
		}
	}
	if owner == nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, coreerr.New("dispatch.ApplMove", coreerr.Invalid, "application not registered")))
	}

	reg, _, derr := owner.Apps().Del(msg.ApplName)
	if derr != nil {
		return c.Device.Upstream.Append(result(msg.H.EventID, derr))
	}
	_, _, aerr := newIPCP.Apps().Add(reg.Name, reg.Owner, newIPCP.ID(), reg.EventID, reg.UipcpMediated())
	return c.Device.Upstream.Append(result(msg.H.EventID, aerr))
}
