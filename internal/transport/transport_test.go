package transport

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dif-systems/rina-core/internal/broadcast"
	"github.com/dif-systems/rina-core/internal/dm"
	"github.com/dif-systems/rina-core/internal/factory"
	"github.com/dif-systems/rina-core/internal/flowalloc"
	"github.com/dif-systems/rina-core/internal/objects"
	"github.com/dif-systems/rina-core/internal/wire"
)

func testListener(t *testing.T) (*Listener, string) {
	t.Helper()
	reg := factory.NewRegistry()
	require.NoError(t, reg.Register(&factory.Factory{
		DIFType: "normal",
		Ops: factory.Ops{
			Create:   func(factory.IPCPHandle) (any, error) { return nil, nil },
			Destroy:  func(any) {},
			SDUWrite: func(any, int32, []byte) error { return nil },
		},
	}))
	b := broadcast.New()
	mgr := dm.NewManager(reg, dm.DefaultConfig(), b.Hook)

	path := filepath.Join(t.TempDir(), "ctrl.sock")
	ln, err := Listen(Config{
		Namespace:      "ns0",
		SocketPath:     path,
		Manager:        mgr,
		Factories:      reg,
		FlowAlloc:      flowalloc.NewAllocator(reg),
		Broadcast:      b,
		PrivilegedUIDs: map[uint32]bool{uint32(os.Getuid()): true},
	})
	require.NoError(t, err)
	return ln, path
}

func writeClientFrame(t *testing.T, c net.Conn, m wire.Message) {
	t.Helper()
	buf, err := wire.Encode(m)
	require.NoError(t, err)
	var hdr [4]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(buf)))
	_, err = c.Write(hdr[:])
	require.NoError(t, err)
	_, err = c.Write(buf)
	require.NoError(t, err)
}

func readClientFrame(t *testing.T, c net.Conn) wire.Message {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var hdr [4]byte
	_, err := io.ReadFull(c, hdr[:])
	require.NoError(t, err)
	n := binary.LittleEndian.Uint32(hdr[:])
	buf := make([]byte, n)
	_, err = io.ReadFull(c, buf)
	require.NoError(t, err)
	msg, err := wire.Decode(buf)
	require.NoError(t, err)
	return msg
}

func TestListenerIPCPCreateRoundTrip(t *testing.T) {
	ln, path := testListener(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- ln.Serve(ctx) }()

	var c net.Conn
	var err error
	for i := 0; i < 50; i++ {
		c, err = net.Dial("unix", path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer c.Close()

	writeClientFrame(t, c, &wire.IPCPCreateMsg{
		H: wire.Header{Type: wire.IPCPCreate, EventID: 1}, Name: wire.NewName("n0"), DIFName: "dif.normal.1", DIFType: "normal",
	})

	resp := readClientFrame(t, c)
	created, ok := resp.(*wire.IPCPCreateRespMsg)
	require.True(t, ok)
	require.Equal(t, int32(0), created.Result)
	require.NotEqual(t, objects.NotValid, created.IPCPID)

	require.NoError(t, ln.Close())
	<-serveDone
}

func TestListenerRejectsPrivilegedFromUnknownUID(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("root is always privileged, regardless of PrivilegedUIDs")
	}
	reg := factory.NewRegistry()
	b := broadcast.New()
	mgr := dm.NewManager(reg, dm.DefaultConfig(), b.Hook)
	path := filepath.Join(t.TempDir(), "ctrl.sock")
	ln, err := Listen(Config{
		Namespace: "ns0", SocketPath: path, Manager: mgr, Factories: reg,
		FlowAlloc: flowalloc.NewAllocator(reg), Broadcast: b,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	serveDone := make(chan error, 1)
	go func() { serveDone <- ln.Serve(ctx) }()

	var c net.Conn
	for i := 0; i < 50; i++ {
		c, err = net.Dial("unix", path)
		if err == nil {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, err)
	defer c.Close()

	// The dialing process isn't in PrivilegedUIDs (and isn't root in most
	// test environments), so IPCP_CREATE is rejected before any handler
	// runs — the server logs and drops it, the client sees no response.
	writeClientFrame(t, c, &wire.IPCPCreateMsg{
		H: wire.Header{Type: wire.IPCPCreate, EventID: 1}, Name: wire.NewName("n0"), DIFName: "dif.normal.1", DIFType: "normal",
	})
	require.NoError(t, c.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var b1 [1]byte
	_, err = c.Read(b1[:])
	require.Error(t, err) // deadline exceeded: nothing was ever written back

	require.NoError(t, ln.Close())
	<-serveDone
}
