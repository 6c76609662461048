package objects

import (
	"sync"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/wire"
)

// AlreadyRegisteredBySameDevice is the positive sentinel Add returns when
// an identical registration already exists on the same control device
// (§4.F: "idempotent" from the same device).
const AlreadyRegisteredBySameDevice = 1

// AppRegistry is the per-IPCP set of registered applications (§4.F).
type AppRegistry struct {
	mu     sync.Mutex
	byName map[string]*RegisteredApplication
}

func NewAppRegistry() *AppRegistry {
	return &AppRegistry{byName: make(map[string]*RegisteredApplication)}
}

// Add registers name owned by owner. Returns (AlreadyRegisteredBySameDevice,
// nil) if an identical registration already exists on the same device;
// *Busy if name is registered on a different device; otherwise creates the
// entry (PENDING if uipcpMediated, else COMPLETE) and returns (0, nil).
func (a *AppRegistry) Add(name wire.Name, owner *ControlDevice, ipcpID int32, eventID uint32, uipcpMediated bool) (int, *RegisteredApplication, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	key := name.String()
	if existing, ok := a.byName[key]; ok {
		if existing.Owner == owner {
			return AlreadyRegisteredBySameDevice, existing, nil
		}
		return 0, nil, coreerr.New("appregistry.Add", coreerr.Busy, "application already registered by another control device")
	}

	reg := NewRegisteredApplication(name, owner, ipcpID, eventID, uipcpMediated)
	a.byName[key] = reg
	return 0, reg, nil
}

// Get looks up name, incrementing its refcount on success.
func (a *AppRegistry) Get(name wire.Name) (*RegisteredApplication, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	reg, ok := a.byName[name.String()]
	if !ok {
		return nil, coreerr.New("appregistry.Get", coreerr.Invalid, "application not registered")
	}
	reg.Get()
	return reg, nil
}

// Del requires name to be present, decrements its refcount, and on the
// last release unlinks it from the table. Returns the removed entry (for
// the caller to run deferred uipcp-mediated cleanup) and whether this call
// performed the unlink.
func (a *AppRegistry) Del(name wire.Name) (*RegisteredApplication, bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := name.String()
	reg, ok := a.byName[key]
	if !ok {
		return nil, false, coreerr.New("appregistry.Del", coreerr.Invalid, "application not registered")
	}
	if reg.Put() {
		delete(a.byName, key)
		return reg, true, nil
	}
	return reg, false, nil
}

// StealAll removes every registration owned by owner and returns them;
// registrations of other control devices stay. Used when a control device
// closes (§4.F: "steals its registrations into a local
// list").
func (a *AppRegistry) StealAll(owner *ControlDevice) []*RegisteredApplication {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []*RegisteredApplication
	for key, reg := range a.byName {
		if reg.Owner == owner {
			out = append(out, reg)
			delete(a.byName, key)
		}
	}
	return out
}

// List returns every currently registered application, used by REG_FETCH
// snapshots.
func (a *AppRegistry) List() []*RegisteredApplication {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*RegisteredApplication, 0, len(a.byName))
	for _, reg := range a.byName {
		out = append(out, reg)
	}
	return out
}
