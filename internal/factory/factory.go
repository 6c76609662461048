// Package factory implements the process-wide registry of IPCP factories
// keyed by DIF type string (§4.E). A Factory supplies the datapath
// behavior behind an IPCP — the "normal" DTP-capable IPCP and shim IPCPs
// are both factories plugged in through this contract, never built into
// the core itself.
package factory

import (
	"sync"

	coreerr "github.com/dif-systems/rina-core/errors"
)

// IPCPHandle is the minimal view of an IPCP a Factory's callbacks need;
// internal/objects.IPCP satisfies it. Kept narrow so this package has no
// import-cycle back into internal/objects.
type IPCPHandle interface {
	ID() int32
	Name() string
}

// Ops is the plugin contract a Factory implements (§6 "Factory API").
// Create must be set; Destroy and SDUWrite are mandatory per §4.E's
// "incomplete op tables" rejection rule. Everything else is optional —
// a nil hook means the core handles the concern itself or skips it.
type Ops struct {
	Create   func(ipcp IPCPHandle) (priv any, err error)
	Destroy  func(priv any)
	SDUWrite func(priv any, portID int32, sdu []byte) error
	SDURx    func(priv any, portID int32, sdu []byte)

	FlowInit         func(priv any, portID int32) error
	FlowAllocateReq  func(priv any, portID int32, qosID uint32) error
	FlowAllocateResp func(priv any, portID int32, accept bool) error
	FlowDeallocated  func(priv any, portID int32)
	FlowCfgUpdate    func(priv any, portID int32, param, value string) error

	ApplRegister func(priv any, name string, reg bool) error

	Config    func(priv any, param, value string) error
	ConfigGet func(priv any, param string) (string, error)

	// PDUFT cluster is all-or-nothing: Register rejects a Factory that
	// sets some but not all of these.
	PDUFTSet         func(priv any, destAddr uint64, lowerPortID int32) error
	PDUFTDel         func(priv any, destAddr uint64) error
	PDUFTDelAddr     func(priv any, destAddr uint64) error
	PDUFTFlush       func(priv any) error
	PDUFTFlushByFlow func(priv any, portID int32) error

	QosSupported func(priv any) []uint32
	SchedConfig  func(priv any, params map[string]string) error
}

// Factory is {DIF type string, owner handle, operation table, use_cep_ids
// bool, create function} per §3, process-wide rather than per-DM.
type Factory struct {
	DIFType   string
	Owner     string // opaque provider-module identifier
	Ops       Ops
	UseCepIDs bool
}

func (f *Factory) hasPartialPDUFT() bool {
	set := []bool{
		f.Ops.PDUFTSet != nil,
		f.Ops.PDUFTDel != nil,
		f.Ops.PDUFTDelAddr != nil,
		f.Ops.PDUFTFlush != nil,
		f.Ops.PDUFTFlushByFlow != nil,
	}
	some, all := false, true
	for _, s := range set {
		if s {
			some = true
		} else {
			all = false
		}
	}
	return some && !all
}

// Registry is the process-wide set of registered factories.
type Registry struct {
	mu    sync.RWMutex
	byDIF map[string]*Factory
}

// NewRegistry creates an empty factory registry.
func NewRegistry() *Registry {
	return &Registry{byDIF: make(map[string]*Factory)}
}

// Register adds f under f.DIFType. Rejects a duplicate type or an
// incomplete op table (missing Destroy/SDUWrite, or a partial PDUFT
// cluster).
func (r *Registry) Register(f *Factory) error {
	if f.DIFType == "" {
		return coreerr.New("factory.Register", coreerr.Invalid, "empty DIF type")
	}
	if f.Ops.Create == nil || f.Ops.Destroy == nil || f.Ops.SDUWrite == nil {
		return coreerr.New("factory.Register", coreerr.Invalid, "factory missing destroy/sdu_write")
	}
	if f.hasPartialPDUFT() {
		return coreerr.New("factory.Register", coreerr.Invalid, "partial pduft operation cluster")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byDIF[f.DIFType]; exists {
		return coreerr.New("factory.Register", coreerr.Busy, "DIF type already has a factory")
	}
	r.byDIF[f.DIFType] = f
	return nil
}

// Unregister removes the factory for difType. Ownership of the Factory
// value remains with the caller; Unregister does not call Destroy on any
// IPCP instance.
func (r *Registry) Unregister(difType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byDIF, difType)
}

// Get looks up the factory for a DIF type.
func (r *Registry) Get(difType string) (*Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.byDIF[difType]
	if !ok {
		return nil, coreerr.New("factory.Get", coreerr.NoDevice, "no factory registered for DIF type")
	}
	return f, nil
}

// Types lists every DIF type with a registered factory.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byDIF))
	for t := range r.byDIF {
		out = append(out, t)
	}
	return out
}
