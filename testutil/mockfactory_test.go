package testutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dif-systems/rina-core/internal/factory"
)

func TestNewMockFactoryRegisters(t *testing.T) {
	reg := factory.NewRegistry()
	require.NoError(t, reg.Register(NewMockFactory("normal")))
	got, err := reg.Get("normal")
	require.NoError(t, err)
	require.Equal(t, "normal", got.DIFType)
}

func TestMockFactoryCountsCalls(t *testing.T) {
	f := NewMockFactory("normal")
	priv, err := f.Ops.Create(nil)
	require.NoError(t, err)

	require.NoError(t, f.Ops.SDUWrite(priv, 3, []byte("hi")))
	require.NoError(t, f.Ops.ApplRegister(priv, "srv", true))
	require.NoError(t, f.Ops.FlowAllocateReq(priv, 3, 0))
	require.NoError(t, f.Ops.FlowAllocateResp(priv, 3, true))
	f.Ops.Destroy(priv)

	m := priv.(*MockFactory)
	require.Equal(t, 1, m.CreateCalls)
	require.Equal(t, 1, m.SDUWriteCalls)
	require.Equal(t, 1, m.ApplRegisterCalls)
	require.Equal(t, 1, m.FlowAllocateReqCalls)
	require.Equal(t, 1, m.FlowAllocateRespCalls)
	require.Equal(t, 1, m.DestroyCalls)
	require.Equal(t, [][]byte{[]byte("hi")}, m.SDUs[3])
}

func TestMockFactoryInjectedErrors(t *testing.T) {
	f := NewMockFactory("normal")
	priv, err := f.Ops.Create(nil)
	require.NoError(t, err)

	m := priv.(*MockFactory)
	m.ApplRegisterErr = errors.New("forced failure")

	err = f.Ops.ApplRegister(priv, "srv", true)
	require.ErrorIs(t, err, m.ApplRegisterErr)
}
