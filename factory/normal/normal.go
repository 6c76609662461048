// Package normal implements a sample "normal" IPCP factory (§4.E, §12):
// a DTP-less echo datapath that exercises the Factory contract without a
// kernel-backed shim behind it. An SDU written to a port is held in that
// port's own buffer rather than actually transmitted anywhere, the same
// way backend.Memory shards a device's address range across per-region
// locks — here the unit sharded is a live port instead of a fixed-size
// block range, since a control-plane core has no address space to carve
// up.
//
// A "normal" IPCP always delegates flow allocation and application
// registration to its uipcp (real rlite draws the same line between
// kernel shims, which implement FlowAllocateReq/Resp themselves, and the
// normal IPCP, which never does) — so this factory leaves those hooks
// nil and only implements the mandatory Create/Destroy/SDUWrite plus the
// QoS/Config hooks a normal IPCP can answer on its own.
package normal

import (
	"strconv"
	"sync"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/factory"
)

// DIFType is the registry key this package's Factory registers under.
const DIFType = "normal"

// QoS classes rina-normal.c's qos_supported hook reports: a fixed pair,
// not a configurable catalog (§13).
const (
	QosBestEffort uint32 = 0
	QosReliable   uint32 = 1
)

// instance is the private state behind one IPCP built by this factory
// (factory.Ops's priv any): one echo buffer per live port.
type instance struct {
	mu    sync.Mutex
	ports map[int32][][]byte

	mss uint32
}

func newInstance() *instance {
	return &instance{ports: make(map[int32][][]byte), mss: 1500}
}

func (in *instance) write(portID int32, sdu []byte) {
	cp := make([]byte, len(sdu))
	copy(cp, sdu)
	in.mu.Lock()
	in.ports[portID] = append(in.ports[portID], cp)
	in.mu.Unlock()
}

func (in *instance) recv(portID int32) ([]byte, bool) {
	in.mu.Lock()
	defer in.mu.Unlock()
	q := in.ports[portID]
	if len(q) == 0 {
		return nil, false
	}
	sdu := q[0]
	in.ports[portID] = q[1:]
	return sdu, true
}

func (in *instance) closePort(portID int32) {
	in.mu.Lock()
	delete(in.ports, portID)
	in.mu.Unlock()
}

// Instance is the handle this package's tests use to read back what a "normal" IPCP echoed, and to drop a port's buffer
// once a flow is torn down.
type Instance struct{ in *instance }

// Recv drains one queued SDU for portID, FIFO order.
func (i Instance) Recv(portID int32) ([]byte, bool) { return i.in.recv(portID) }

// ClosePort releases portID's echo buffer.
func (i Instance) ClosePort(portID int32) { i.in.closePort(portID) }

// FromPriv recovers an Instance from an IPCP's opaque Priv() value; ok is
// false if priv didn't come from this factory.
func FromPriv(priv any) (Instance, bool) {
	in, ok := priv.(*instance)
	if !ok {
		return Instance{}, false
	}
	return Instance{in: in}, true
}

// Factory builds the sample "normal" IPCP factory.
func Factory() *factory.Factory {
	return &factory.Factory{
		DIFType: DIFType,
		Owner:   "factory/normal",
		Ops: factory.Ops{
			Create: func(h factory.IPCPHandle) (any, error) {
				return newInstance(), nil
			},
			Destroy: func(priv any) {
				// Echo buffers are only ever referenced through this
				// instance; nothing external to release.
			},
			SDUWrite: func(priv any, portID int32, sdu []byte) error {
				in, ok := priv.(*instance)
				if !ok {
					return coreerr.New("normal.SDUWrite", coreerr.Invalid, "priv is not a normal IPCP instance")
				}
				in.write(portID, sdu)
				return nil
			},
			Config: func(priv any, param, value string) error {
				in, ok := priv.(*instance)
				if !ok {
					return coreerr.New("normal.Config", coreerr.Invalid, "priv is not a normal IPCP instance")
				}
				if param != "mss" {
					return coreerr.New("normal.Config", coreerr.Unsupported, "unknown config parameter")
				}
				v, err := strconv.ParseUint(value, 10, 32)
				if err != nil {
					return coreerr.Wrap("normal.Config", coreerr.Invalid, err)
				}
				in.mu.Lock()
				in.mss = uint32(v)
				in.mu.Unlock()
				return nil
			},
			ConfigGet: func(priv any, param string) (string, error) {
				in, ok := priv.(*instance)
				if !ok || param != "mss" {
					return "", coreerr.New("normal.ConfigGet", coreerr.Unsupported, "unknown config parameter")
				}
				in.mu.Lock()
				defer in.mu.Unlock()
				return strconv.FormatUint(uint64(in.mss), 10), nil
			},
			QosSupported: func(priv any) []uint32 {
				return []uint32{QosBestEffort, QosReliable}
			},
		},
	}
}
