// Package testutil offers in-memory test doubles for exercising flow
// allocation and application registration without a real factory (§10
// Test tooling): MockFactory mirrors the shape of the teacher's
// MockBackend in testing.go — a fully-implemented op table with every
// call counted, rather than assertions baked into the double itself, and
// injectable errors for the negative-path tests a real factory can't
// conveniently force.
package testutil

import (
	"sync"

	"github.com/dif-systems/rina-core/internal/factory"
)

// MockFactory backs a factory.Factory with counted, always-succeeding
// hooks by default. Set the Err fields before a test drives a request to
// force that hook to fail instead.
type MockFactory struct {
	mu sync.Mutex

	CreateCalls           int
	DestroyCalls          int
	SDUWriteCalls         int
	ApplRegisterCalls     int
	ConfigCalls           int
	FlowAllocateReqCalls  int
	FlowAllocateRespCalls int

	ApplRegisterErr     error
	FlowAllocateReqErr  error
	FlowAllocateRespErr error
	ConfigErr           error

	// SDUs records every SDU handed to SDUWrite, keyed by port, for tests
	// that want to assert on what was sent without a real datapath.
	SDUs map[int32][][]byte
}

func (m *MockFactory) count(n *int) {
	m.mu.Lock()
	*n++
	m.mu.Unlock()
}

func (m *MockFactory) create(factory.IPCPHandle) (any, error) {
	m.count(&m.CreateCalls)
	return m, nil
}

func (m *MockFactory) destroy(any) {
	m.count(&m.DestroyCalls)
}

func (m *MockFactory) sduWrite(priv any, portID int32, sdu []byte) error {
	m.count(&m.SDUWriteCalls)
	m.mu.Lock()
	if m.SDUs == nil {
		m.SDUs = make(map[int32][][]byte)
	}
	cp := make([]byte, len(sdu))
	copy(cp, sdu)
	m.SDUs[portID] = append(m.SDUs[portID], cp)
	m.mu.Unlock()
	return nil
}

func (m *MockFactory) applRegister(priv any, name string, reg bool) error {
	m.count(&m.ApplRegisterCalls)
	return m.ApplRegisterErr
}

func (m *MockFactory) flowAllocateReq(priv any, portID int32, qosID uint32) error {
	m.count(&m.FlowAllocateReqCalls)
	return m.FlowAllocateReqErr
}

func (m *MockFactory) flowAllocateResp(priv any, portID int32, accept bool) error {
	m.count(&m.FlowAllocateRespCalls)
	return m.FlowAllocateRespErr
}

func (m *MockFactory) config(priv any, param, value string) error {
	m.count(&m.ConfigCalls)
	return m.ConfigErr
}

// NewMockFactory builds a *factory.Factory for difType backed by a fresh
// MockFactory, with ApplRegister and FlowAllocateReq/Resp wired so flow
// allocation and registration tests never need a uipcp-mediated round
// trip just to exercise the core's state machine.
func NewMockFactory(difType string) *factory.Factory {
	m := &MockFactory{}
	return &factory.Factory{
		DIFType: difType,
		Owner:   "testutil",
		Ops: factory.Ops{
			Create:           m.create,
			Destroy:          m.destroy,
			SDUWrite:         m.sduWrite,
			ApplRegister:     m.applRegister,
			FlowAllocateReq:  m.flowAllocateReq,
			FlowAllocateResp: m.flowAllocateResp,
			Config:           m.config,
			ConfigGet:        func(priv any, param string) (string, error) { return "", nil },
			QosSupported:     func(priv any) []uint32 { return []uint32{0} },
		},
	}
}
