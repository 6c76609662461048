// Package dm implements the IsolationDomain (root per-namespace container,
// §3 "IsolationDomain (DM)") and the namespace-keyed DataModelManager
// (§4.I).
package dm

import (
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/lifecycle"
	"github.com/dif-systems/rina-core/internal/logging"
	"github.com/dif-systems/rina-core/internal/objects"
)

// IsolationDomain owns one namespace's IPCP/flow/DIF/control-device
// tables, the factory registry reference, and the worker plumbing that
// drives deferred destruction (§3).
type IsolationDomain struct {
	Namespace string

	IPCPs *objects.IPCPTable
	DIFs  *objects.DIFTable
	Flows *objects.FlowTable

	IPCPLifecycle *lifecycle.IPCPLifecycle
	FlowLifecycle *lifecycle.FlowLifecycle

	mu      sync.Mutex
	devices map[*objects.ControlDevice]struct{}

	refcount int32
}

// Config parameters a DM-scoped FlowLifecycle is built with; defaults to
// lifecycle.DefaultFlowDelWaitMs.
type Config struct {
	FlowDelWaitMs int64
}

// DefaultConfig returns the spec-documented default configuration.
func DefaultConfig() Config {
	return Config{FlowDelWaitMs: lifecycle.DefaultFlowDelWaitMs}
}

// newIsolationDomain constructs a fresh DM: bitmaps, tables, and the
// lifecycle workers ("initialize bitmaps, hash tables, worker threads,
// timers" per §4.I).
func newIsolationDomain(namespace string, cfg Config, factories *factory.Registry, broadcastDel func(*objects.IPCP, int)) *IsolationDomain {
	d := &IsolationDomain{
		Namespace: namespace,
		IPCPs:     objects.NewIPCPTable(),
		DIFs:      objects.NewDIFTable(),
		Flows:     objects.NewFlowTable(),
		devices:   make(map[*objects.ControlDevice]struct{}),
		refcount:  1,
	}
	d.IPCPLifecycle = lifecycle.NewIPCPLifecycle(d.IPCPs, d.DIFs, factories, broadcastDel)
	d.FlowLifecycle = lifecycle.NewFlowLifecycle(d.Flows, cfg.FlowDelWaitMs, nil)
	return d
}

// RegisterDevice adds cd to the DM's control-device list.
func (d *IsolationDomain) RegisterDevice(cd *objects.ControlDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.devices[cd] = struct{}{}
}

// UnregisterDevice removes cd from the DM's control-device list.
func (d *IsolationDomain) UnregisterDevice(cd *objects.ControlDevice) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.devices, cd)
}

// Devices returns a snapshot of every registered control device, used by
// the update broadcaster and fetch-cursor replay.
func (d *IsolationDomain) Devices() []*objects.ControlDevice {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*objects.ControlDevice, 0, len(d.devices))
	for cd := range d.devices {
		out = append(out, cd)
	}
	return out
}

// Get/Put implement the DM's own refcount (one reference per object or
// control device still referencing this namespace).
func (d *IsolationDomain) Get() { atomic.AddInt32(&d.refcount, 1) }
func (d *IsolationDomain) Put() bool {
	return atomic.AddInt32(&d.refcount, -1) == 0
}

// teardown cancels the DM's workers and asserts its tables are empty
// (§4.I "drained ... assert all tables empty").
func (d *IsolationDomain) teardown() error {
	d.FlowLifecycle.Stop()
	if len(d.IPCPs.List()) != 0 {
		return coreerr.New("dm.teardown", coreerr.Invalid, "IPCP table not empty at DM teardown").WithIPCP(-1)
	}
	if len(d.Flows.List(objects.NotValid)) != 0 {
		return coreerr.New("dm.teardown", coreerr.Invalid, "flow table not empty at DM teardown")
	}
	return nil
}

// Manager is the namespace-keyed hash table of refcounted DMs (§4.I).
// Construction of a DM for a namespace is deduplicated via singleflight
// so concurrent first-touches from different control devices don't race
// to build two DMs for the same namespace.
type Manager struct {
	mu        sync.Mutex
	domains   map[string]*IsolationDomain
	factories *factory.Registry
	cfg       Config

	group       singleflight.Group
	log         *logging.Logger
	onDIFUpdate func(domain *IsolationDomain, ipcp *objects.IPCP, kind int)
}

// NewManager creates a DataModelManager backed by the given process-wide
// factory registry. onUpdate, if non-nil, is internal/broadcast's hook
// into IPCP destruction (§4.K's DEL/UIPCP_DEL notifications); it fires
// outside any table lock, already resolved to the owning domain.
func NewManager(factories *factory.Registry, cfg Config, onUpdate func(domain *IsolationDomain, ipcp *objects.IPCP, kind int)) *Manager {
	return &Manager{
		domains:     make(map[string]*IsolationDomain),
		factories:   factories,
		cfg:         cfg,
		log:         logging.Default().With("component", "dm.manager"),
		onDIFUpdate: onUpdate,
	}
}

// GetOrCreate returns the DM for namespace, constructing it on first
// reference and incrementing its refcount, or incrementing the refcount
// of an already-live one.
func (m *Manager) GetOrCreate(ctx context.Context, namespace string) (*IsolationDomain, error) {
	v, err := m.group.Do(namespace, func() (any, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		if d, ok := m.domains[namespace]; ok {
			d.Get()
			return d, nil
		}
		var d *IsolationDomain
		broadcast := func(ipcp *objects.IPCP, kind int) {
			if m.onDIFUpdate != nil {
				m.onDIFUpdate(d, ipcp, kind)
			}
		}
		d = newIsolationDomain(namespace, m.cfg, m.factories, broadcast)
		m.domains[namespace] = d
		m.log.Info("isolation domain created", "namespace", namespace)
		return d, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*IsolationDomain), nil
}

// Namespaces returns a snapshot of every namespace with a live DM, for the
// metrics collector's per-namespace scrape.
func (m *Manager) Namespaces() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.domains))
	for ns := range m.domains {
		out = append(out, ns)
	}
	return out
}

// Lookup returns the DM for namespace without creating one.
func (m *Manager) Lookup(namespace string) (*IsolationDomain, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.domains[namespace]
	if !ok {
		return nil, coreerr.New("dm.Lookup", coreerr.NoDevice, "no isolation domain for namespace")
	}
	d.Get()
	return d, nil
}

// Put decrements the DM's refcount for namespace and, on last release,
// tears it down and removes it from the manager.
func (m *Manager) Put(d *IsolationDomain) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !d.Put() {
		return nil
	}
	delete(m.domains, d.Namespace)
	m.log.Info("isolation domain destroyed", "namespace", d.Namespace)
	return d.teardown()
}
