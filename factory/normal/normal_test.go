package normal

import (
	"testing"

	"github.com/stretchr/testify/require"

	coreerr "github.com/dif-systems/rina-core/errors"
)

func TestFactoryHasCompleteOpsTable(t *testing.T) {
	f := Factory()
	require.Equal(t, DIFType, f.DIFType)
	require.NotNil(t, f.Ops.Create)
	require.NotNil(t, f.Ops.Destroy)
	require.NotNil(t, f.Ops.SDUWrite)
	require.Nil(t, f.Ops.FlowAllocateReq, "a normal IPCP always defers flow allocation to its uipcp")
	require.Nil(t, f.Ops.FlowAllocateResp)
}

func TestSDUWriteEchoesToSamePort(t *testing.T) {
	f := Factory()
	priv, err := f.Ops.Create(nil)
	require.NoError(t, err)

	require.NoError(t, f.Ops.SDUWrite(priv, 7, []byte("hello")))
	require.NoError(t, f.Ops.SDUWrite(priv, 7, []byte("world")))
	require.NoError(t, f.Ops.SDUWrite(priv, 9, []byte("other port")))

	in, ok := FromPriv(priv)
	require.True(t, ok)

	first, ok := in.Recv(7)
	require.True(t, ok)
	require.Equal(t, "hello", string(first))

	second, ok := in.Recv(7)
	require.True(t, ok)
	require.Equal(t, "world", string(second))

	_, ok = in.Recv(7)
	require.False(t, ok, "port 7's buffer should be drained")

	other, ok := in.Recv(9)
	require.True(t, ok)
	require.Equal(t, "other port", string(other))
}

func TestClosePortDropsBufferedSDUs(t *testing.T) {
	f := Factory()
	priv, err := f.Ops.Create(nil)
	require.NoError(t, err)
	require.NoError(t, f.Ops.SDUWrite(priv, 1, []byte("buffered")))

	in, _ := FromPriv(priv)
	in.ClosePort(1)

	_, ok := in.Recv(1)
	require.False(t, ok)
}

func TestConfigMSSRoundTrips(t *testing.T) {
	f := Factory()
	priv, err := f.Ops.Create(nil)
	require.NoError(t, err)

	require.NoError(t, f.Ops.Config(priv, "mss", "1400"))
	v, err := f.Ops.ConfigGet(priv, "mss")
	require.NoError(t, err)
	require.Equal(t, "1400", v)
}

func TestConfigUnknownParamUnsupported(t *testing.T) {
	f := Factory()
	priv, err := f.Ops.Create(nil)
	require.NoError(t, err)

	err = f.Ops.Config(priv, "bogus", "1")
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.Unsupported))
}

func TestQosSupportedReturnsFixedPair(t *testing.T) {
	f := Factory()
	priv, err := f.Ops.Create(nil)
	require.NoError(t, err)
	require.ElementsMatch(t, []uint32{QosBestEffort, QosReliable}, f.Ops.QosSupported(priv))
}
