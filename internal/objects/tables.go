package objects

import (
	"sync"
	"sync/atomic"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/bitmap"
)

// MaxIPCPs, MaxPorts, MaxCepIDs are the fixed bitmap ranges from §3: IPCP
// ids 0..255, port ids and CEP ids 0..65535.
const (
	MaxIPCPs  = 256
	MaxPorts  = 65536
	MaxCepIDs = 65536
)

// IPCPTable is the DM's hash table of IPCPs plus their id bitmap (§4.C).
type IPCPTable struct {
	mu   sync.RWMutex
	ids  *bitmap.Allocator
	byID map[int32]*IPCP
}

func NewIPCPTable() *IPCPTable {
	return &IPCPTable{ids: bitmap.New(MaxIPCPs), byID: make(map[int32]*IPCP)}
}

// AllocID reserves the next free IPCP id and returns it; it stores
// nothing. Callers build the IPCP with that id via NewIPCP and then store
// it with Insert.
func (t *IPCPTable) AllocID() (int32, error) {
	id, err := t.ids.Alloc()
	if err != nil {
		return 0, coreerr.Wrap("ipcptable.AllocID", coreerr.NoSpace, err)
	}
	return int32(id), nil
}

func (t *IPCPTable) Insert(ipcp *IPCP) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[ipcp.ID()] = ipcp
}

// Get looks up id, incrementing the IPCP's refcount on success.
func (t *IPCPTable) Get(id int32) (*IPCP, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	ipcp, ok := t.byID[id]
	if !ok {
		return nil, coreerr.New("ipcptable.Get", coreerr.NoDevice, "unknown IPCP id").WithIPCP(id)
	}
	ipcp.Get()
	return ipcp, nil
}

// SelectByDIF implements §4.C's selection rule: linear scan skipping
// ZOMBIE entries; if difName is empty, pick any non-zombie IPCP,
// preferring "normal" DIF type and the largest tx header room.
func (t *IPCPTable) SelectByDIF(difName string) (*IPCP, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var best *IPCP
	for _, ipcp := range t.byID {
		if ipcp.IsZombie() {
			continue
		}
		if difName != "" {
			if ipcp.DIFName() == difName {
				ipcp.Get()
				return ipcp, nil
			}
			continue
		}
		if best == nil {
			best = ipcp
			continue
		}
		bestNormal := best.FactoryType() == "normal"
		candNormal := ipcp.FactoryType() == "normal"
		switch {
		case candNormal && !bestNormal:
			best = ipcp
		case candNormal == bestNormal && ipcp.TxHdroom() > best.TxHdroom():
			best = ipcp
		}
	}
	if best == nil {
		return nil, coreerr.New("ipcptable.SelectByDIF", coreerr.NoDevice, "no matching IPCP")
	}
	best.Get()
	return best, nil
}

// Unlink removes id from the table and frees its bitmap slot. Caller must
// already hold the last reference (refcount reached zero under this
// table's lock) — see internal/lifecycle.
func (t *IPCPTable) Unlink(id int32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, id)
	t.ids.Free(int(id))
}

// PutLocked decrements ipcp's refcount and, if it reaches zero, unlinks it
// under the table's write lock in the same critical section — this is
// what makes the decrement-to-zero/unlink atomic per §4.D's "double-free
// guard".
func (t *IPCPTable) PutLocked(ipcp *IPCP) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !ipcp.Put() {
		return false
	}
	delete(t.byID, ipcp.ID())
	t.ids.Free(int(ipcp.ID()))
	return true
}

// List returns every non-removed IPCP, for REG_FETCH/FLOW_FETCH
// snapshots and the update broadcaster's initial ADD replay.
func (t *IPCPTable) List() []*IPCP {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*IPCP, 0, len(t.byID))
	for _, ipcp := range t.byID {
		out = append(out, ipcp)
	}
	return out
}

// DIFTable is the DM's name-keyed DIF identity table.
type DIFTable struct {
	mu     sync.Mutex
	byName map[string]*DIF
}

func NewDIFTable() *DIFTable {
	return &DIFTable{byName: make(map[string]*DIF)}
}

// GetOrCreate returns the DIF named name, creating it (refcount 1) if
// absent, or incrementing the refcount of an existing one. A name/type
// mismatch against an existing DIF is an error (§3 "a name maps to at
// most one type").
func (t *DIFTable) GetOrCreate(name, difType string) (*DIF, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d, ok := t.byName[name]; ok {
		if d.Type != difType {
			return nil, coreerr.New("diftable.GetOrCreate", coreerr.Invalid, "DIF name/type mismatch")
		}
		d.Get()
		return d, nil
	}
	d := NewDIF(name, difType)
	t.byName[name] = d
	return d, nil
}

// Put decrements dif's refcount, unlinking it from the table on last
// release.
func (t *DIFTable) Put(d *DIF) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if d.Put() {
		delete(t.byName, d.Name)
	}
}

// PutByName releases the DIF reference taken by the IPCP that was named
// name, looking it up by name rather than by a stashed pointer — this is
// what an IPCP's destruction path releases through, since an IPCP only
// remembers its DIF's name, not a reference to the DIF object itself.
func (t *DIFTable) PutByName(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	d, ok := t.byName[name]
	if !ok {
		return
	}
	if d.Put() {
		delete(t.byName, name)
	}
}

// FlowTable is the DM's by-port and by-CEP flow tables plus their id
// bitmaps (§4.C).
type FlowTable struct {
	mu      sync.RWMutex
	ports   *bitmap.Allocator
	ceps    *bitmap.Allocator
	byPort  map[int32]*Flow
	byCep   map[int32]*Flow
	nextUID uint64
}

func NewFlowTable() *FlowTable {
	return &FlowTable{
		ports:  bitmap.New(MaxPorts),
		ceps:   bitmap.New(MaxCepIDs),
		byPort: make(map[int32]*Flow),
		byCep:  make(map[int32]*Flow),
	}
}

// NextUID returns the next per-DM monotonically increasing flow uid
// (§3 "uid").
func (t *FlowTable) NextUID() uint64 { return atomic.AddUint64(&t.nextUID, 1) }

// AllocPort reserves the next free port id.
func (t *FlowTable) AllocPort() (int32, error) {
	id, err := t.ports.Alloc()
	if err != nil {
		return 0, coreerr.Wrap("flowtable.AllocPort", coreerr.NoSpace, err)
	}
	return int32(id), nil
}

// AllocCep reserves the next free CEP id, for IPCPs with UseCepIDs.
func (t *FlowTable) AllocCep() (int32, error) {
	id, err := t.ceps.Alloc()
	if err != nil {
		return 0, coreerr.Wrap("flowtable.AllocCep", coreerr.NoSpace, err)
	}
	return int32(id), nil
}

// Insert adds flow to the by-port table (and by-CEP, if it holds one).
func (t *FlowTable) Insert(f *Flow) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byPort[f.PortID()] = f
	if cep := f.CepID(); cep != NotValid {
		t.byCep[cep] = f
	}
}

// GetByPort looks up a flow by port id, incrementing its refcount.
func (t *FlowTable) GetByPort(portID int32) (*Flow, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.byPort[portID]
	if !ok {
		return nil, coreerr.New("flowtable.GetByPort", coreerr.NoDevice, "unknown port id").WithPort(portID)
	}
	f.Get()
	return f, nil
}

// GetByCep looks up a flow by CEP id, incrementing its refcount.
func (t *FlowTable) GetByCep(cepID int32) (*Flow, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	f, ok := t.byCep[cepID]
	if !ok {
		return nil, coreerr.New("flowtable.GetByCep", coreerr.NoDevice, "unknown CEP id")
	}
	f.Get()
	return f, nil
}

// PutLocked decrements f's refcount and, if it reaches zero, unlinks it
// from both tables and frees its bitmap slots under this table's write
// lock (§4.D's double-free guard).
func (t *FlowTable) PutLocked(f *Flow) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !f.Put() {
		return false
	}
	delete(t.byPort, f.PortID())
	t.ports.Free(int(f.PortID()))
	if cep := f.CepID(); cep != NotValid {
		delete(t.byCep, cep)
		t.ceps.Free(int(cep))
	}
	return true
}

// List returns every live flow, optionally filtered to one IPCP, for
// FLOW_FETCH snapshots.
func (t *FlowTable) List(ipcpID int32) []*Flow {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*Flow, 0, len(t.byPort))
	for _, f := range t.byPort {
		if ipcpID != NotValid && f.IPCPID() != ipcpID {
			continue
		}
		out = append(out, f)
	}
	return out
}
