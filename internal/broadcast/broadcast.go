// Package broadcast implements the per-DM IPCP update broadcaster
// (§4.K): ADD/UPD/DEL/UIPCP_DEL notifications pushed to every control
// device that set objects.SubscribeIPCPUpdates with a SUBSCRIBE message.
package broadcast

import (
	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/lifecycle"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

// Broadcaster pushes IPCPUpdateMsg notifications to subscribed control
// devices. It holds no per-DM state of its own — subscription
// membership lives on each domain's device list, queried fresh on every
// call — so one Broadcaster serves every namespace.
type Broadcaster struct {
	log *logging.Logger
}

func New() *Broadcaster {
	return &Broadcaster{log: logging.Default().With("component", "broadcast")}
}

func updateMsg(kind uint8, ipcp *objects.IPCP) *wire.IPCPUpdateMsg {
	return &wire.IPCPUpdateMsg{
		H:          wire.Header{Type: wire.IPCPUpdate},
		Kind:       kind,
		IPCPID:     ipcp.ID(),
		DIFName:    ipcp.DIFName(),
		DIFType:    ipcp.FactoryType(),
		MaxSDUSize: ipcp.MaxSDUSize(),
	}
}

func (b *Broadcaster) push(domain *dm.IsolationDomain, msg *wire.IPCPUpdateMsg) {
	for _, cd := range domain.Devices() {
		if !cd.Subscribed(objects.SubscribeIPCPUpdates) {
			continue
		}
		if err := cd.Upstream.Append(msg); err != nil {
			b.log.Warn("dropped update notification", "ipcp_id", msg.IPCPID, "kind", msg.Kind, "err", err)
		}
	}
}

// Add broadcasts an ADD for a newly created IPCP.
func (b *Broadcaster) Add(domain *dm.IsolationDomain, ipcp *objects.IPCP) {
	b.push(domain, updateMsg(wire.UpdateAdd, ipcp))
}

// Update broadcasts an UPD after a config change (IPCP_CONFIG altering
// mss; txhdroom/rxhdroom changes do not trigger one).
func (b *Broadcaster) Update(domain *dm.IsolationDomain, ipcp *objects.IPCP) {
	b.push(domain, updateMsg(wire.UpdateUpd, ipcp))
}

// Del broadcasts a DEL or UIPCP_DEL, driven directly by
// internal/lifecycle.IPCPLifecycle's destruction hook — see Hook.
func (b *Broadcaster) Del(domain *dm.IsolationDomain, ipcp *objects.IPCP, uipcp bool) {
	kind := uint8(wire.UpdateDel)
	if uipcp {
		kind = wire.UpdateUipcpDel
	}
	b.push(domain, updateMsg(kind, ipcp))
}

// Hook adapts Del to the func(domain, ipcp, kind) shape
// internal/dm.Manager invokes its IPCPLifecycle destruction callback
// with, translating lifecycle.BroadcastDel/BroadcastUipcpDel into a
// DEL/UIPCP_DEL push.
func (b *Broadcaster) Hook(domain *dm.IsolationDomain, ipcp *objects.IPCP, kind int) {
	b.Del(domain, ipcp, kind == lifecycle.BroadcastUipcpDel)
}

// Subscribe turns the subscription flag on for cd and immediately
// replays one ADD per IPCP currently in the domain, so a late subscriber
// still converges to the current IPCP set (§4.K: "immediately enqueues
// one ADD for each existing IPCP").
func (b *Broadcaster) Subscribe(domain *dm.IsolationDomain, cd *objects.ControlDevice) {
	cd.SetSubscription(objects.SubscribeIPCPUpdates, true)
	for _, ipcp := range domain.IPCPs.List() {
		_ = cd.Upstream.Append(updateMsg(wire.UpdateAdd, ipcp))
	}
}

// Unsubscribe turns the subscription flag off.
func (b *Broadcaster) Unsubscribe(cd *objects.ControlDevice) {
	cd.SetSubscription(objects.SubscribeIPCPUpdates, false)
}
