package queue

import (
	"testing"
	"time"

	coreerr "github.com/dif-systems/rina-core/errors"
	"github.com/dif-systems/rina-core/internal/wire"
	"github.com/stretchr/testify/require"
)

func resultMsg(eventID uint32) wire.Message {
	return &wire.ResultMsg{H: wire.Header{Type: wire.Result, EventID: eventID}, Result: 0}
}

func TestUpstreamAppendAndRead(t *testing.T) {
	u := NewUpstream()
	require.NoError(t, u.Append(resultMsg(1)))
	require.NoError(t, u.Append(resultMsg(2)))
	require.Equal(t, 2, u.Len())

	m1, err := u.Read()
	require.NoError(t, err)
	require.Equal(t, uint32(1), m1.Header().EventID)

	m2, err := u.Read()
	require.NoError(t, err)
	require.Equal(t, uint32(2), m2.Header().EventID)
}

func TestUpstreamReadNonBlockingEmpty(t *testing.T) {
	u := NewUpstream()
	_, err := u.ReadNonBlocking()
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.WouldBlock))
}

func TestUpstreamAppendNonBlockingFull(t *testing.T) {
	u := NewUpstream()
	big := &wire.IPCPQosSupportedRespMsg{
		H:      wire.Header{Type: wire.IPCPQosSupportedResp},
		QosIDs: make([]uint32, UpstreamByteBudget/4),
	}
	err := u.AppendNonBlocking(big)
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.NoSpace))
}

func TestUpstreamBlockingReadWakesOnAppend(t *testing.T) {
	u := NewUpstream()
	done := make(chan wire.Message, 1)
	go func() {
		m, err := u.Read()
		require.NoError(t, err)
		done <- m
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, u.Append(resultMsg(9)))

	select {
	case m := <-done:
		require.Equal(t, uint32(9), m.Header().EventID)
	case <-time.After(time.Second):
		t.Fatal("Read did not wake up")
	}
}

func TestUpstreamAppendBlocksUntilRoomFreed(t *testing.T) {
	u := NewUpstream()
	// Fill the queue close to budget with many small messages so a
	// blocking Append has to wait for a Read to free room.
	filler := &wire.FlowDeallocatedMsg{H: wire.Header{Type: wire.FlowDeallocated}, PortID: 1}
	n, err := encodedSize(filler)
	require.NoError(t, err)
	count := UpstreamByteBudget / n
	for i := 0; i < count; i++ {
		require.NoError(t, u.AppendNonBlocking(filler))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- u.Append(resultMsg(1))
	}()

	time.Sleep(time.Millisecond)
	_, err = u.Read()
	require.NoError(t, err)

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Append did not unblock after Read freed room")
	}
}

func TestUpstreamAppendTimesOutWhenStillFull(t *testing.T) {
	u := NewUpstream()
	filler := &wire.FlowDeallocatedMsg{H: wire.Header{Type: wire.FlowDeallocated}, PortID: 1}
	n, _ := encodedSize(filler)
	for i := 0; i < UpstreamByteBudget/n; i++ {
		require.NoError(t, u.AppendNonBlocking(filler))
	}

	start := time.Now()
	err := u.Append(resultMsg(1))
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.Busy))
	require.GreaterOrEqual(t, time.Since(start), AppendWait)
}

func TestUpstreamCloseWakesBlockedRead(t *testing.T) {
	u := NewUpstream()
	errCh := make(chan error, 1)
	go func() {
		_, err := u.Read()
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	u.Close()

	select {
	case err := <-errCh:
		require.Error(t, err)
		require.True(t, coreerr.Is(err, coreerr.NoDevice))
	case <-time.After(time.Second):
		t.Fatal("Read did not wake up on Close")
	}
}

func TestUpstreamAppendAfterCloseFails(t *testing.T) {
	u := NewUpstream()
	u.Close()
	err := u.Append(resultMsg(1))
	require.Error(t, err)
	require.True(t, coreerr.Is(err, coreerr.NoDevice))
}
