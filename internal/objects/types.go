// Package objects holds the core's data model (§3): IPCP, DIF, Flow,
// RegisteredApplication, ControlDevice, and the hash-table-plus-bitmap
// tables that own them. Every table mutation happens under the owning
// table's lock; every successful lookup hands the caller a live reference
// by atomically incrementing the object's refcount (§4.C).
package objects

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/dif-systems/rina-core/internal/wire"
)

// IPCPFlag is a bitset of IPCP lifecycle flags.
type IPCPFlag uint32

const (
	IPCPZombie     IPCPFlag = 1 << iota // accepts no new flows/registrations, invisible to DIF selection
	IPCPUseCepIDs                       // this IPCP's flows allocate a CEP id in addition to a port id
)

// NullAddress is the initial, unassigned IPCP address.
const NullAddress int64 = 0

// IPCP is a named IPC Process (§3 "IPCP").
type IPCP struct {
	mu sync.Mutex

	id      int32
	name    string
	difName string

	factoryType string // DIF type string, selects which Factory owns this IPCP
	priv        any     // factory-private state returned by Ops.Create

	refcount int32

	address    int64
	txHdroom   uint32
	rxHdroom   uint32
	maxSDUSize uint32

	flags IPCPFlag

	apps  *AppRegistry
	uipcp *ControlDevice // nil until UIPCP_SET binds a user-space implementation

	uipcpReady chan struct{}
	uipcpOnce  sync.Once

	stats IPCPStats
}

// IPCPStats are the per-CPU-aggregated counters exposed by IPCP_STATS.
type IPCPStats struct {
	TxPDUs  uint64
	RxPDUs  uint64
	TxBytes uint64
	RxBytes uint64
}

// NewIPCP constructs an IPCP in its initial (non-zombie) state. Callers
// get it back with refcount 1, already "held" by the table that created
// it.
func NewIPCP(id int32, name, difName, factoryType string, useCepIDs bool) *IPCP {
	var flags IPCPFlag
	if useCepIDs {
		flags |= IPCPUseCepIDs
	}
	return &IPCP{
		id:          id,
		name:        name,
		difName:     difName,
		factoryType: factoryType,
		refcount:    1,
		maxSDUSize:  defaultMaxSDUSize,
		apps:        NewAppRegistry(),
		uipcpReady:  make(chan struct{}),
		flags:       flags,
	}
}

const defaultMaxSDUSize = 1460 // clamped to >= 128 by config handling (see internal/dispatch)

func (i *IPCP) ID() int32      { return i.id }
func (i *IPCP) Name() string   { return i.name }
func (i *IPCP) DIFName() string { return i.difName }
func (i *IPCP) FactoryType() string { return i.factoryType }

func (i *IPCP) Apps() *AppRegistry { return i.apps }

func (i *IPCP) SetPriv(p any)  { i.mu.Lock(); defer i.mu.Unlock(); i.priv = p }
func (i *IPCP) Priv() any       { i.mu.Lock(); defer i.mu.Unlock(); return i.priv }

// SetUipcp binds cd as this IPCP's user-space implementation. The first
// non-nil bind closes UipcpReady(), waking any UIPCP_WAIT callers.
func (i *IPCP) SetUipcp(cd *ControlDevice) {
	i.mu.Lock()
	i.uipcp = cd
	i.mu.Unlock()
	if cd != nil {
		i.uipcpOnce.Do(func() { close(i.uipcpReady) })
	}
}
func (i *IPCP) Uipcp() *ControlDevice { i.mu.Lock(); defer i.mu.Unlock(); return i.uipcp }

// UipcpReady is closed the first time a uipcp is attached via SetUipcp,
// signaling any blocked UIPCP_WAIT caller.
func (i *IPCP) UipcpReady() <-chan struct{} { return i.uipcpReady }

func (i *IPCP) IsZombie() bool {
	return IPCPFlag(atomic.LoadUint32((*uint32)(&i.flags)))&IPCPZombie != 0
}

func (i *IPCP) MarkZombie() {
	for {
		old := atomic.LoadUint32((*uint32)(&i.flags))
		if old&uint32(IPCPZombie) != 0 {
			return
		}
		if atomic.CompareAndSwapUint32((*uint32)(&i.flags), old, old|uint32(IPCPZombie)) {
			return
		}
	}
}

func (i *IPCP) UseCepIDs() bool {
	return IPCPFlag(atomic.LoadUint32((*uint32)(&i.flags)))&IPCPUseCepIDs != 0
}

func (i *IPCP) TxHdroom() uint32 { i.mu.Lock(); defer i.mu.Unlock(); return i.txHdroom }
func (i *IPCP) RxHdroom() uint32 { i.mu.Lock(); defer i.mu.Unlock(); return i.rxHdroom }
func (i *IPCP) MaxSDUSize() uint32 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.maxSDUSize
}

// SetHeadroom updates header-room/MSS config (the core-recognized
// txhdroom/rxhdroom/mss parameters from §6).
func (i *IPCP) SetHeadroom(tx, rx, mss uint32) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.txHdroom = tx
	i.rxHdroom = rx
	i.maxSDUSize = mss
}

func (i *IPCP) Address() int64     { return atomic.LoadInt64(&i.address) }
func (i *IPCP) SetAddress(a int64) { atomic.StoreInt64(&i.address, a) }

func (i *IPCP) Stats() IPCPStats {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.stats
}

func (i *IPCP) AddTxStats(pdus, bytes uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.TxPDUs += pdus
	i.stats.TxBytes += bytes
}

func (i *IPCP) AddRxStats(pdus, bytes uint64) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.stats.RxPDUs += pdus
	i.stats.RxBytes += bytes
}

// Get/Put implement the refcount half of §4.C/§4.D; table-level
// unlink-on-zero is handled by internal/lifecycle, which owns the table
// lock these decrements must occur under.
func (i *IPCP) Get() { atomic.AddInt32(&i.refcount, 1) }

// Put decrements the refcount and reports whether it reached zero.
func (i *IPCP) Put() bool { return atomic.AddInt32(&i.refcount, -1) == 0 }

func (i *IPCP) RefCount() int32 { return atomic.LoadInt32(&i.refcount) }

// DIF is the shared {name, type, refcount} identity from §3.
type DIF struct {
	Name     string
	Type     string
	refcount int32
}

func NewDIF(name, difType string) *DIF {
	return &DIF{Name: name, Type: difType, refcount: 1}
}

func (d *DIF) Get() { atomic.AddInt32(&d.refcount, 1) }
func (d *DIF) Put() bool { return atomic.AddInt32(&d.refcount, -1) == 0 }
func (d *DIF) RefCount() int32 { return atomic.LoadInt32(&d.refcount) }

// FlowFlag is a bitset of flow lifecycle flags (§3 "Flow").
type FlowFlag uint32

const (
	FlowPending FlowFlag = 1 << iota
	FlowAllocated
	FlowDeallocated
	FlowNeverBound
	FlowDelPostponed
	FlowInitiator
)

// NotValid marks a remote port/CEP/address/QoS field that hasn't been
// filled in yet.
const NotValid int32 = -1

// FlowUpperBinding is whichever of {owning control device, upper IPCP}
// currently owns this flow's upper half. Exactly one is non-nil once the
// flow leaves NEVER_BOUND.
type FlowUpperBinding struct {
	Device *ControlDevice
	IPCPID int32 // NotValid if bound to a ControlDevice instead
}

// Flow is a half-association owned by an IPCP (§3 "Flow").
type Flow struct {
	mu sync.Mutex

	portID int32
	cepID  int32 // NotValid if the IPCP does not use CEP ids
	ipcpID int32

	localAppl  wire.Name
	remoteAppl wire.Name

	remotePortID int32
	remoteCepID  int32
	remoteAddr   int64
	qosID        uint32

	uid uint64

	upper FlowUpperBinding

	flags      FlowFlag
	refcount   int32
	eventID    uint32 // kernel-event id matched by FA_RESP/FA_RESP_ARRIVED
	expiration time.Time

	stats IPCPStats // reused shape: {TxPDUs, RxPDUs, TxBytes, RxBytes}
}

// NewFlow constructs a flow in PENDING|NEVER_BOUND, optionally INITIATOR
// (client side), per §4.G step 1/2.
func NewFlow(portID, ipcpID int32, local, remote wire.Name, uid uint64, initiator bool) *Flow {
	flags := FlowPending | FlowNeverBound
	if initiator {
		flags |= FlowInitiator
	}
	return &Flow{
		portID:       portID,
		cepID:        NotValid,
		ipcpID:       ipcpID,
		localAppl:    local,
		remoteAppl:   remote,
		remotePortID: NotValid,
		remoteCepID:  NotValid,
		remoteAddr:   int64(NotValid),
		qosID:        uint32(NotValid),
		uid:          uid,
		upper:        FlowUpperBinding{IPCPID: NotValid},
		flags:        flags,
		refcount:     1,
	}
}

func (f *Flow) PortID() int32 { return f.portID }
func (f *Flow) IPCPID() int32 { return f.ipcpID }
func (f *Flow) UID() uint64   { return f.uid }

func (f *Flow) LocalAppl() wire.Name  { f.mu.Lock(); defer f.mu.Unlock(); return f.localAppl }
func (f *Flow) RemoteAppl() wire.Name { f.mu.Lock(); defer f.mu.Unlock(); return f.remoteAppl }

func (f *Flow) CepID() int32 { f.mu.Lock(); defer f.mu.Unlock(); return f.cepID }
func (f *Flow) SetCepID(id int32) { f.mu.Lock(); defer f.mu.Unlock(); f.cepID = id }

func (f *Flow) EventID() uint32     { f.mu.Lock(); defer f.mu.Unlock(); return f.eventID }
func (f *Flow) SetEventID(id uint32) { f.mu.Lock(); defer f.mu.Unlock(); f.eventID = id }

func (f *Flow) RemotePortID() int32 { f.mu.Lock(); defer f.mu.Unlock(); return f.remotePortID }
func (f *Flow) RemoteCepID() int32  { f.mu.Lock(); defer f.mu.Unlock(); return f.remoteCepID }
func (f *Flow) RemoteAddr() int64   { f.mu.Lock(); defer f.mu.Unlock(); return f.remoteAddr }
func (f *Flow) QosID() uint32       { f.mu.Lock(); defer f.mu.Unlock(); return f.qosID }

// SetRemote fills in the remote-side fields once they become known (§4.G
// step 2: "copies in remote port/CEP/addr/QoS").
func (f *Flow) SetRemote(portID, cepID int32, addr int64, qosID uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remotePortID = portID
	f.remoteCepID = cepID
	f.remoteAddr = addr
	f.qosID = qosID
}

func (f *Flow) Upper() FlowUpperBinding { f.mu.Lock(); defer f.mu.Unlock(); return f.upper }

func (f *Flow) BindDevice(cd *ControlDevice) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upper = FlowUpperBinding{Device: cd, IPCPID: NotValid}
	f.flags &^= FlowNeverBound
}

func (f *Flow) BindUpperIPCP(ipcpID int32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upper = FlowUpperBinding{IPCPID: ipcpID}
	f.flags &^= FlowNeverBound
}

// ClearUpperDevice clears the owning-device half of the binding on
// ALLOCATED transition (§3 invariant iii: "ALLOCATED ⇒ upper.rc is
// cleared").
func (f *Flow) ClearUpperDevice() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upper.Device = nil
}

func (f *Flow) HasFlag(fl FlowFlag) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.flags&fl != 0
}

func (f *Flow) SetFlag(fl FlowFlag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags |= fl
}

func (f *Flow) ClearFlag(fl FlowFlag) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags &^= fl
}

// TransitionAllocated moves PENDING → ALLOCATED on an accepted response.
func (f *Flow) TransitionAllocated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = (f.flags &^ FlowPending) | FlowAllocated
}

// TransitionDeallocated moves to DEALLOCATED (rejection, timeout, or
// shutdown-driven release).
func (f *Flow) TransitionDeallocated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flags = (f.flags &^ (FlowPending | FlowAllocated)) | FlowDeallocated
}

func (f *Flow) Expiration() time.Time     { f.mu.Lock(); defer f.mu.Unlock(); return f.expiration }
func (f *Flow) SetExpiration(t time.Time) { f.mu.Lock(); defer f.mu.Unlock(); f.expiration = t }

func (f *Flow) Get() { atomic.AddInt32(&f.refcount, 1) }
func (f *Flow) Put() bool { return atomic.AddInt32(&f.refcount, -1) == 0 }
func (f *Flow) RefCount() int32 { return atomic.LoadInt32(&f.refcount) }

// Reset sets refcount back to 1, used by the DEL_POSTPONED "re-raise
// refcount to 1" step (§4.D) before insertion into the put-queue.
func (f *Flow) Reset() { atomic.StoreInt32(&f.refcount, 1) }

func (f *Flow) Stats() IPCPStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

func (f *Flow) AddTxStats(pdus, bytes uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.TxPDUs += pdus
	f.stats.TxBytes += bytes
}

func (f *Flow) AddRxStats(pdus, bytes uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats.RxPDUs += pdus
	f.stats.RxBytes += bytes
}

// RegState is a RegisteredApplication's pending/complete lifecycle state.
type RegState int

const (
	RegPending RegState = iota
	RegComplete
)

// RegisteredApplication is {name, owning control device, IPCP, event id,
// state, refcount} from §3.
type RegisteredApplication struct {
	mu sync.Mutex

	Name    wire.Name
	Owner   *ControlDevice
	IPCPID  int32
	EventID uint32

	state             RegState
	uipcpMediated     bool
	refcount          int32
}

func NewRegisteredApplication(name wire.Name, owner *ControlDevice, ipcpID int32, eventID uint32, uipcpMediated bool) *RegisteredApplication {
	state := RegComplete
	if uipcpMediated {
		state = RegPending
	}
	return &RegisteredApplication{
		Name: name, Owner: owner, IPCPID: ipcpID, EventID: eventID,
		state: state, uipcpMediated: uipcpMediated, refcount: 1,
	}
}

func (r *RegisteredApplication) State() RegState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *RegisteredApplication) Complete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state = RegComplete
}

func (r *RegisteredApplication) UipcpMediated() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.uipcpMediated
}

func (r *RegisteredApplication) Get() { atomic.AddInt32(&r.refcount, 1) }
func (r *RegisteredApplication) Put() bool {
	return atomic.AddInt32(&r.refcount, -1) == 0
}
