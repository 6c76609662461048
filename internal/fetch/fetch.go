// Package fetch implements the flow/registration enumeration cursors
// behind FLOW_FETCH/REG_FETCH (§4.J): snapshot the matching table once,
// then hand back one entry per call until a terminator is reached.
package fetch

import (
	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

// flowEntry/regEntry are what gets stashed in a ControlDevice's
// FetchCursor between calls — already-extracted plain data so repeated
// Pop()s don't need to keep holding a Flow/RegisteredApplication
// reference across cursor cycles.
type flowEntry struct {
	portID     int32
	localAppl  wire.Name
	remoteAppl wire.Name
	ipcpID     int32
	state      uint8
}

type regEntry struct {
	name   wire.Name
	ipcpID int32
	state  uint8
}

const (
	flowStatePending     uint8 = 0
	flowStateAllocated   uint8 = 1
	flowStateDeallocated uint8 = 2
)

func flowState(f *objects.Flow) uint8 {
	switch {
	case f.HasFlag(objects.FlowAllocated):
		return flowStateAllocated
	case f.HasFlag(objects.FlowDeallocated):
		return flowStateDeallocated
	default:
		return flowStatePending
	}
}

func regState(r *objects.RegisteredApplication) uint8 {
	if r.State() == objects.RegComplete {
		return 1
	}
	return 0
}

// FlowFetch advances cd's flow cursor one step and returns the next
// FlowFetchRespMsg to enqueue (§4.J: "regardless, pop the head and
// enqueue it upstream").
func FlowFetch(domain *dm.IsolationDomain, cd *objects.ControlDevice, ipcpID int32) *wire.FlowFetchRespMsg {
	cursor := cd.FlowFetch()
	if cursor.Empty() {
		snapshot := make([]any, 0)
		for _, f := range domain.Flows.List(ipcpID) {
			snapshot = append(snapshot, flowEntry{
				portID:     f.PortID(),
				localAppl:  f.LocalAppl(),
				remoteAppl: f.RemoteAppl(),
				ipcpID:     f.IPCPID(),
				state:      flowState(f),
			})
		}
		snapshot = append(snapshot, nil) // terminator
		cursor.Fill(snapshot)
	}

	e, ok := cursor.Pop()
	if !ok || e == nil {
		return &wire.FlowFetchRespMsg{H: wire.Header{Type: wire.FlowFetchResp}, End: true}
	}
	fe := e.(flowEntry)
	return &wire.FlowFetchRespMsg{
		H:          wire.Header{Type: wire.FlowFetchResp},
		PortID:     fe.portID,
		LocalAppl:  fe.localAppl,
		RemoteAppl: fe.remoteAppl,
		IPCPID:     fe.ipcpID,
		State:      fe.state,
	}
}

// RegFetch advances cd's registration cursor one step, scanning every
// IPCP in the DM filtered to ipcpID when it is valid.
func RegFetch(domain *dm.IsolationDomain, cd *objects.ControlDevice, ipcpID int32) *wire.RegFetchRespMsg {
	cursor := cd.RegFetch()
	if cursor.Empty() {
		snapshot := make([]any, 0)
		for _, ipcp := range domain.IPCPs.List() {
			if ipcpID != objects.NotValid && ipcp.ID() != ipcpID {
				continue
			}
			for _, r := range ipcp.Apps().List() {
				snapshot = append(snapshot, regEntry{name: r.Name, ipcpID: ipcp.ID(), state: regState(r)})
			}
		}
		snapshot = append(snapshot, nil) // terminator
		cursor.Fill(snapshot)
	}

	e, ok := cursor.Pop()
	if !ok || e == nil {
		return &wire.RegFetchRespMsg{H: wire.Header{Type: wire.RegFetchResp}, End: true}
	}
	re := e.(regEntry)
	return &wire.RegFetchRespMsg{
		H:        wire.Header{Type: wire.RegFetchResp},
		ApplName: re.name,
		IPCPID:   re.ipcpID,
		State:    re.state,
	}
}
