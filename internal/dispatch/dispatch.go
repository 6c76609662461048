// Package dispatch implements the message dispatcher (§4.H): one decoded
// request per control-device write, routed through a capability table and
// a per-type handler, wiring together internal/flowalloc,
// internal/broadcast, internal/fetch, internal/factory, and internal/dm.
package dispatch

import (
	"context"
	"strconv"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/broadcast"
	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/fetch"
	"github.com/dif-systems/rina-core/internal/flowalloc"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

// Context bundles the per-request state a handler needs: the owning
// domain, the requesting control device, and the process-wide singletons
// a handler may have to reach through.
type Context struct {
	Domain    *dm.IsolationDomain
	Device    *objects.ControlDevice
	Factories *factory.Registry
	FlowAlloc *flowalloc.Allocator
	Broadcast *broadcast.Broadcaster
}

type handlerFunc func(ctx context.Context, c *Context, msg wire.Message) error

// privileged lists the message types reserved for uipcp/admin control
// devices (§4.H). Notably pduft-del is absent from this set while
// pduft-set/flush are present — not an oversight here, carried over unchanged.
var privileged = map[wire.MsgType]bool{
	wire.IPCPCreate:         true,
	wire.IPCPDestroy:        true,
	wire.IPCPConfig:         true,
	wire.PduftSet:           true,
	wire.PduftFlush:         true,
	wire.ApplRegisterResp:   true,
	wire.UipcpSet:           true,
	wire.UipcpFAReqArrived:  true,
	wire.UipcpFARespArrived: true,
	wire.FlowDealloc:        true,
}

// Recorder observes every dispatched request, independent of its outcome.
// internal/metrics.Registry satisfies this so a Listener can wire request
// counters in without this package importing internal/metrics.
type Recorder interface {
	ObserveDispatch(msgType wire.MsgType, err error)
}

// Dispatcher decodes one request buffer at a time and routes it through
// the capability table to its handler.
type Dispatcher struct {
	handlers map[wire.MsgType]handlerFunc
	log      *logging.Logger

	// Recorder, if set, is notified after every successfully decoded
	// request (known type, capability check passed or not, handler run or
	// not). Left nil, dispatch does no metrics work at all.
	Recorder Recorder
}

// New builds a Dispatcher with every known request type registered.
// Purely-outbound wire types (IPCP_UPDATE, RESULT, FLOW_DEALLOCATED,
// UIPCP_FA_{REQ,RESP}_ARRIVED, *_FETCH_RESP) have no inbound handler —
// the core only ever emits them — so a client write using one of those
// types fails at the "no registered handler" check, before capability is
// even consulted (§4.H's stated check order).
func New() *Dispatcher {
	d := &Dispatcher{handlers: make(map[wire.MsgType]handlerFunc), log: logging.Default().With("component", "dispatch")}
	d.handlers[wire.IPCPCreate] = handleIPCPCreate
	d.handlers[wire.IPCPDestroy] = handleIPCPDestroy
	d.handlers[wire.IPCPConfig] = handleIPCPConfig
	d.handlers[wire.IPCPConfigGet] = handleIPCPConfigGet
	d.handlers[wire.IPCPStats] = handleIPCPStats
	d.handlers[wire.IPCPQosSupported] = handleIPCPQosSupported
	d.handlers[wire.UipcpSet] = handleUipcpSet
	d.handlers[wire.UipcpWait] = handleUipcpWait
	d.handlers[wire.ApplRegister] = handleApplRegister
	d.handlers[wire.ApplRegisterResp] = handleApplRegisterResp
	d.handlers[wire.ApplMove] = handleApplMove
	d.handlers[wire.FARequest] = handleFARequest
	d.handlers[wire.FAResp] = handleFAResp
	d.handlers[wire.FAReqArrived] = handleFAReqArrived
	d.handlers[wire.FARespArrived] = handleFARespArrived
	d.handlers[wire.FlowDealloc] = handleFlowDealloc
	d.handlers[wire.FlowStats] = handleFlowStats
	d.handlers[wire.FlowCfgUpdate] = handleFlowCfgUpdate
	d.handlers[wire.FlowFetch] = handleFlowFetch
	d.handlers[wire.RegFetch] = handleRegFetch
	d.handlers[wire.PduftSet] = handlePduftSet
	d.handlers[wire.PduftDel] = handlePduftDel
	d.handlers[wire.PduftFlush] = handlePduftFlush
	d.handlers[wire.Subscribe] = handleSubscribe
	return d
}

// Dispatch decodes buf, enforces the capability table against isPrivileged
// (whether the requesting control device was opened with privileges), and
// runs the matched handler. Returns len(buf) on success, matching a write
// syscall's byte-count return; on failure the caller should surface the
// error as a negative result instead (§4.H: "0 on handler success ... else
// the negative error code").
func (d *Dispatcher) Dispatch(ctx context.Context, c *Context, isPrivileged bool, buf []byte) (int, error) {
	msg, err := wire.Decode(buf)
	if err != nil {
		return 0, err
	}
	h := msg.Header()
	if h.Type == 0 || h.Type > wire.MaxMsgType {
		return 0, coreerr.New("dispatch.Dispatch", coreerr.Unsupported, "message type out of range")
	}
	handler, ok := d.handlers[h.Type]
	if !ok {
		return 0, coreerr.New("dispatch.Dispatch", coreerr.Unsupported, "no handler registered for message type")
	}
	if privileged[h.Type] && !isPrivileged {
		err := coreerr.New("dispatch.Dispatch", coreerr.Invalid, "privileged message type on an unprivileged control device")
		d.record(h.Type, err)
		return 0, err
	}
	err = handler(ctx, c, msg)
	d.record(h.Type, err)
	if err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (d *Dispatcher) record(msgType wire.MsgType, err error) {
	if d.Recorder != nil {
		d.Recorder.ObserveDispatch(msgType, err)
	}
}

// resultCode maps the eight-way error taxonomy onto the small negative
// integers carried in ResultMsg/*RespMsg.Result fields.
func resultCode(err error) int32 {
	if err == nil {
		return 0
	}
	code, ok := coreerr.Of(err)
	if !ok {
		return -1
	}
	switch code {
	case coreerr.Invalid:
		return -1
	case coreerr.NoDevice:
		return -2
	case coreerr.Busy:
		return -3
	case coreerr.NoSpace:
		return -4
	case coreerr.NoMemory:
		return -5
	case coreerr.Unsupported:
		return -6
	case coreerr.Interrupted:
		return -7
	case coreerr.WouldBlock:
		return -8
	default:
		return -1
	}
}

func result(eventID uint32, err error) *wire.ResultMsg {
	return &wire.ResultMsg{H: wire.Header{Type: wire.Result, EventID: eventID}, Result: resultCode(err)}
}

// resolveIPCP is the common "look up by id, caller releases" pattern every
// IPCP-scoped handler needs.
func resolveIPCP(domain *dm.IsolationDomain, id int32) (*objects.IPCP, error) {
	return domain.IPCPs.Get(id)
}

// findUipcpOwner scans the domain's IPCPs for the one cd is currently
// bound to as a uipcp. Messages reflecting an inbound arrival from a
// uipcp (FA_REQ_ARRIVED) don't carry an IPCP id on the wire, so the
// dispatcher recovers it from the UIPCP_SET binding instead.
func findUipcpOwner(domain *dm.IsolationDomain, cd *objects.ControlDevice) (*objects.IPCP, error) {
	for _, candidate := range domain.IPCPs.List() {
		if candidate.Uipcp() == cd {
			return domain.IPCPs.Get(candidate.ID())
		}
	}
	return nil, coreerr.New("dispatch.findUipcpOwner", coreerr.NoDevice, "control device is not bound as a uipcp")
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, coreerr.Wrap("dispatch.parseUint32", coreerr.Invalid, err)
	}
	return uint32(v), nil
}

func parseInt64(s string) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, coreerr.Wrap("dispatch.parseInt64", coreerr.Invalid, err)
	}
	return v, nil
}
