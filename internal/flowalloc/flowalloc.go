// Package flowalloc implements the four-step flow allocation state
// machine (§4.G): FA_REQ, FA_REQ_ARRIVED, FA_RESP, FA_RESP_ARRIVED, plus
// the UIPCP_FA_*_ARRIVED reflection messages sent to a user-space IPCP
// implementation.
package flowalloc

import (
	"github.com/dif-systems/rina-core/internal/dm"
	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

// Allocator drives the flow allocation state machine against a given DM.
// It holds no per-call state itself — every method takes the DM and
// control devices it operates on, so one Allocator serves every
// namespace.
type Allocator struct {
	factories *factory.Registry
	log       *logging.Logger
}

func NewAllocator(factories *factory.Registry) *Allocator {
	return &Allocator{factories: factories, log: logging.Default().With("component", "flowalloc")}
}

// hookFor returns the IPCP's kernel-side flow allocation hook, if its
// factory provides one.
func (a *Allocator) hookFor(ipcp *objects.IPCP) *factory.Ops {
	f, err := a.factories.Get(ipcp.FactoryType())
	if err != nil {
		return nil
	}
	return &f.Ops
}

// FARequest handles step 1 (§4.G): client application requests a flow.
// Selects the IPCP by DIF, allocates a client-side flow (PENDING,
// NEVER_BOUND, INITIATOR), then either invokes the kernel
// flow_allocate_req hook or reflects UIPCP_FA_REQ_ARRIVED to the IPCP's
// uipcp. If neither is available, fails no-device and synthesizes a
// negative FA_RESP_ARRIVED locally so the client gets a prompt answer.
func (a *Allocator) FARequest(domain *dm.IsolationDomain, reqCD *objects.ControlDevice, eventID uint32, msg *wire.FARequestMsg) error {
	var ipcp *objects.IPCP
	var err error
	if msg.IPCPID != objects.NotValid {
		ipcp, err = domain.IPCPs.Get(msg.IPCPID)
	} else {
		ipcp, err = domain.IPCPs.SelectByDIF(msg.DIFName)
	}
	if err != nil {
		return coreerr.Wrap("flowalloc.FARequest", coreerr.NoDevice, err)
	}
	defer domain.IPCPLifecycle.Put(ipcp)

	portID, err := domain.Flows.AllocPort()
	if err != nil {
		return coreerr.Wrap("flowalloc.FARequest", coreerr.NoSpace, err)
	}
	uid := domain.Flows.NextUID()
	f := objects.NewFlow(portID, ipcp.ID(), msg.LocalAppl, msg.RemoteAppl, uid, true)
	f.SetEventID(eventID)
	f.BindDevice(reqCD)
	domain.Flows.Insert(f)
	domain.FlowLifecycle.ScheduleUnboundSweep(f)

	ops := a.hookFor(ipcp)
	switch {
	case ops != nil && ops.FlowAllocateReq != nil:
		if err := ops.FlowAllocateReq(ipcp.Priv(), portID, msg.QosID); err != nil {
			a.failLocally(domain, reqCD, f, eventID)
			return nil
		}
	case ipcp.Uipcp() != nil:
		reflect := &wire.UipcpFAReqArrivedMsg{
			H:          wire.Header{Type: wire.UipcpFAReqArrived, EventID: eventID},
			IPCPID:     ipcp.ID(),
			RemotePort: objects.NotValid,
			RemoteCep:  objects.NotValid,
			LocalAppl:  msg.LocalAppl,
			RemoteAppl: msg.RemoteAppl,
			KEventID:   eventID,
			QosID:      msg.QosID,
		}
		if err := ipcp.Uipcp().Upstream.Append(reflect); err != nil {
			a.failLocally(domain, reqCD, f, eventID)
			return nil
		}
	default:
		a.failLocally(domain, reqCD, f, eventID)
		return coreerr.New("flowalloc.FARequest", coreerr.NoDevice, "IPCP has neither a kernel hook nor a uipcp")
	}
	return nil
}

// failLocally synthesizes a negative FA_RESP_ARRIVED to reqCD and
// releases the half-built flow, per §4.G step 1's failure path.
func (a *Allocator) failLocally(domain *dm.IsolationDomain, reqCD *objects.ControlDevice, f *objects.Flow, eventID uint32) {
	_ = reqCD.Upstream.Append(&wire.FARespArrivedMsg{
		H:        wire.Header{Type: wire.FARespArrived, EventID: eventID},
		PortID:   f.PortID(),
		Response: -1,
	})
	domain.FlowLifecycle.Put(f)
}

// FAReqArrived handles step 2 (§4.G): the IPCP layer (kernel hook or a
// uipcp writing FA_REQ_ARRIVED up to the core) reports a request arrived
// for a locally registered application. Allocates the server-side flow
// and notifies the target application's control device.
func (a *Allocator) FAReqArrived(domain *dm.IsolationDomain, ipcp *objects.IPCP, eventID uint32, msg *wire.FAReqArrivedMsg) error {
	app, err := ipcp.Apps().Get(msg.LocalAppl)
	if err != nil {
		return coreerr.Wrap("flowalloc.FAReqArrived", coreerr.Invalid, err)
	}

	portID, err := domain.Flows.AllocPort()
	if err != nil {
		return coreerr.Wrap("flowalloc.FAReqArrived", coreerr.NoSpace, err)
	}
	uid := domain.Flows.NextUID()
	f := objects.NewFlow(portID, ipcp.ID(), msg.LocalAppl, msg.RemoteAppl, uid, false)
	f.SetRemote(msg.PortID, objects.NotValid, int64(objects.NotValid), uint32(objects.NotValid))
	f.SetEventID(eventID) // overwritten with the uipcp-chosen kernel-event id, per §4.G step 2
	f.BindDevice(app.Owner)
	domain.Flows.Insert(f)
	domain.FlowLifecycle.ScheduleUnboundSweep(f)

	notify := &wire.FAReqArrivedMsg{
		H:          wire.Header{Type: wire.FAReqArrived, EventID: eventID},
		PortID:     portID,
		LocalAppl:  msg.LocalAppl,
		RemoteAppl: msg.RemoteAppl,
		DIFName:    msg.DIFName,
	}
	if err := app.Owner.Upstream.Append(notify); err != nil {
		domain.FlowLifecycle.Put(f) // undelivered arrival, tear the half-built flow back down
		return err
	}
	return nil
}

// FAResp handles step 3 (§4.G): the server application responds.
// PENDING→ALLOCATED on accept (clearing upper.rc), or PENDING→destroy on
// refusal. Optionally binds an upper IPCP for datapath stacking, then
// forwards the response to the IPCP's kernel hook or uipcp.
func (a *Allocator) FAResp(domain *dm.IsolationDomain, respCD *objects.ControlDevice, msg *wire.FARespMsg) error {
	f, err := domain.Flows.GetByPort(msg.PortID)
	if err != nil {
		return coreerr.Wrap("flowalloc.FAResp", coreerr.NoDevice, err)
	}
	var refused bool
	// The lookup reference from GetByPort must be dropped raw, before
	// FlowLifecycle.Put runs the refusal teardown — otherwise the table
	// still sees two references at the point FlowLifecycle.Put checks
	// for the last release, and the deallocated hook never fires.
	defer func() {
		domain.Flows.PutLocked(f)
		if refused {
			domain.FlowLifecycle.Put(f)
		}
	}()

	if !f.HasFlag(objects.FlowPending) {
		return coreerr.New("flowalloc.FAResp", coreerr.Invalid, "flow not PENDING")
	}
	if f.Upper().Device != respCD {
		return coreerr.New("flowalloc.FAResp", coreerr.Invalid, "control device mismatch").WithPort(msg.PortID)
	}
	if f.EventID() != msg.KEventID {
		return coreerr.New("flowalloc.FAResp", coreerr.Invalid, "kevent id mismatch").WithPort(msg.PortID)
	}

	ipcp, err := domain.IPCPs.Get(f.IPCPID())
	if err != nil {
		return coreerr.Wrap("flowalloc.FAResp", coreerr.NoDevice, err)
	}
	defer domain.IPCPLifecycle.Put(ipcp)

	switch {
	case msg.Response < 0:
		refused = true
	case msg.UpperIPCPID != objects.NotValid:
		// Bind to an upper IPCP for datapath stacking; an unknown upper
		// IPCP rolls the flow back to DEALLOCATED rather than leaving it
		// ALLOCATED with a dangling upper binding (Open Question (a)).
		upper, uerr := domain.IPCPs.Get(msg.UpperIPCPID)
		if uerr != nil {
			refused = true
			break
		}
		domain.IPCPLifecycle.Put(upper)
		f.TransitionAllocated()
		f.ClearUpperDevice()
		f.BindUpperIPCP(msg.UpperIPCPID)
	default:
		f.TransitionAllocated()
		f.ClearUpperDevice()
	}

	ops := a.hookFor(ipcp)
	switch {
	case ops != nil && ops.FlowAllocateResp != nil:
		return ops.FlowAllocateResp(ipcp.Priv(), f.PortID(), msg.Response >= 0)
	case ipcp.Uipcp() != nil:
		return ipcp.Uipcp().Upstream.Append(&wire.UipcpFARespArrivedMsg{
			H:          wire.Header{Type: wire.UipcpFARespArrived, EventID: msg.KEventID},
			LocalPort:  f.RemotePortID(),
			Response:   msg.Response,
			RemotePort: f.PortID(),
		})
	}
	return nil
}

// FARespArrived handles step 4 (§4.G): the client-side flow gets its
// response. Same matching/state checks as FAResp, applied client-side.
// On accept the upstream FA_RESP_ARRIVED is forwarded to the requesting
// application; on refusal or error the flow is removed from the
// put-queue and released.
func (a *Allocator) FARespArrived(domain *dm.IsolationDomain, msg *wire.FARespArrivedMsg) error {
	f, err := domain.Flows.GetByPort(msg.PortID)
	if err != nil {
		return coreerr.Wrap("flowalloc.FARespArrived", coreerr.NoDevice, err)
	}
	var refused bool
	defer func() {
		domain.Flows.PutLocked(f) // drop the GetByPort lookup reference first
		if refused {
			domain.FlowLifecycle.Put(f)
		}
	}()

	if !f.HasFlag(objects.FlowPending) {
		return coreerr.New("flowalloc.FARespArrived", coreerr.Invalid, "flow not PENDING")
	}

	cd := f.Upper().Device
	if msg.Response >= 0 {
		f.TransitionAllocated()
		f.ClearUpperDevice()
	} else {
		refused = true
	}

	if cd == nil {
		return nil
	}
	return cd.Upstream.Append(&wire.FARespArrivedMsg{
		H:        wire.Header{Type: wire.FARespArrived, EventID: f.EventID()},
		PortID:   f.PortID(),
		Response: msg.Response,
	})
}
