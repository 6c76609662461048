package wire

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTrip(t *testing.T, m Message) Message {
	t.Helper()
	buf, err := Encode(m)
	require.NoError(t, err)

	got, err := Decode(buf)
	require.NoError(t, err)
	return got
}

func TestRoundTripIPCPCreate(t *testing.T) {
	m := &IPCPCreateMsg{
		H:       Header{Type: IPCPCreate, EventID: 7},
		Name:    NewName("shim-eth"),
		DIFName: "dif.normal.1",
		DIFType: "normal",
	}
	got := roundTrip(t, m).(*IPCPCreateMsg)
	require.Equal(t, m.H, got.H)
	require.True(t, m.Name.Equal(got.Name))
	require.Equal(t, m.DIFName, got.DIFName)
	require.Equal(t, m.DIFType, got.DIFType)
}

func TestRoundTripIPCPCreateResp(t *testing.T) {
	m := &IPCPCreateRespMsg{H: Header{Type: IPCPCreateResp, EventID: 7}, IPCPID: 3, Result: 0}
	got := roundTrip(t, m).(*IPCPCreateRespMsg)
	require.Equal(t, m, got)
}

func TestRoundTripIPCPQosSupportedResp(t *testing.T) {
	m := &IPCPQosSupportedRespMsg{
		H:      Header{Type: IPCPQosSupportedResp, EventID: 1},
		Result: 0,
		QosIDs: []uint32{1, 2, 3},
	}
	got := roundTrip(t, m).(*IPCPQosSupportedRespMsg)
	require.Equal(t, m, got)
}

func TestRoundTripApplRegister(t *testing.T) {
	m := &ApplRegisterMsg{
		H:        Header{Type: ApplRegister, EventID: 42},
		IPCPID:   1,
		DIFName:  "dif.normal.1",
		ApplName: NewName("srv"),
		Reg:      true,
	}
	got := roundTrip(t, m).(*ApplRegisterMsg)
	require.Equal(t, m.IPCPID, got.IPCPID)
	require.Equal(t, m.DIFName, got.DIFName)
	require.True(t, m.ApplName.Equal(got.ApplName))
	require.Equal(t, m.Reg, got.Reg)
}

func TestRoundTripFARequest(t *testing.T) {
	m := &FARequestMsg{
		H:          Header{Type: FARequest, EventID: 99},
		DIFName:    "dif.normal.1",
		LocalAppl:  NewName("cli"),
		RemoteAppl: NewName("srv"),
		IPCPID:     -1,
		QosID:      0,
	}
	got := roundTrip(t, m).(*FARequestMsg)
	require.Equal(t, m.DIFName, got.DIFName)
	require.True(t, m.LocalAppl.Equal(got.LocalAppl))
	require.True(t, m.RemoteAppl.Equal(got.RemoteAppl))
	require.Equal(t, m.IPCPID, got.IPCPID)
	require.Equal(t, m.QosID, got.QosID)
}

func TestRoundTripUipcpFAReqArrived(t *testing.T) {
	m := &UipcpFAReqArrivedMsg{
		H:          Header{Type: UipcpFAReqArrived, EventID: 5},
		IPCPID:     2,
		RemotePort: 10,
		RemoteCep:  20,
		RemoteAddr: 0xdeadbeef,
		LocalAppl:  NewName("cli"),
		RemoteAppl: NewName("srv"),
		KEventID:   5,
		QosID:      1,
	}
	got := roundTrip(t, m).(*UipcpFAReqArrivedMsg)
	require.Equal(t, m.IPCPID, got.IPCPID)
	require.Equal(t, m.RemotePort, got.RemotePort)
	require.Equal(t, m.RemoteCep, got.RemoteCep)
	require.Equal(t, m.RemoteAddr, got.RemoteAddr)
	require.True(t, m.LocalAppl.Equal(got.LocalAppl))
	require.True(t, m.RemoteAppl.Equal(got.RemoteAppl))
	require.Equal(t, m.KEventID, got.KEventID)
	require.Equal(t, m.QosID, got.QosID)
}

func TestRoundTripFlowFetchResp(t *testing.T) {
	m := &FlowFetchRespMsg{
		H:          Header{Type: FlowFetchResp, EventID: 1},
		End:        false,
		PortID:     4,
		LocalAppl:  NewName("cli"),
		RemoteAppl: NewName("srv"),
		IPCPID:     1,
		State:      2,
	}
	got := roundTrip(t, m).(*FlowFetchRespMsg)
	require.Equal(t, m, got)
}

func TestRoundTripRegFetchRespEnd(t *testing.T) {
	m := &RegFetchRespMsg{H: Header{Type: RegFetchResp, EventID: 1}, End: true}
	got := roundTrip(t, m).(*RegFetchRespMsg)
	require.True(t, got.End)
}

func TestRoundTripResult(t *testing.T) {
	m := &ResultMsg{H: Header{Type: Result, EventID: 3}, Result: -1}
	got := roundTrip(t, m).(*ResultMsg)
	require.Equal(t, m, got)
}

func TestRoundTripSubscribe(t *testing.T) {
	m := &SubscribeMsg{H: Header{Type: Subscribe, EventID: 4}, Bits: 1, On: true}
	got := roundTrip(t, m).(*SubscribeMsg)
	require.Equal(t, m, got)
}

func TestDecodeUnknownType(t *testing.T) {
	buf, err := Encode(&ResultMsg{H: Header{Type: Result, EventID: 1}, Result: 0})
	require.NoError(t, err)
	buf[0] = 0xff // corrupt the type field beyond MaxMsgType
	buf[1] = 0xff

	_, err = Decode(buf)
	require.Error(t, err)
}

func TestDecodeTruncated(t *testing.T) {
	buf, err := Encode(&IPCPCreateRespMsg{H: Header{Type: IPCPCreateResp, EventID: 1}, IPCPID: 1, Result: 0})
	require.NoError(t, err)

	_, err = Decode(buf[:len(buf)-2])
	require.Error(t, err)
}

func TestMsgTypeString(t *testing.T) {
	require.Equal(t, "ipcp_create", IPCPCreate.String())
	require.Equal(t, "subscribe", Subscribe.String())
	require.Contains(t, MsgType(9999).String(), "unknown")
}

func TestNameString(t *testing.T) {
	n := NewName("cli")
	require.Equal(t, "cli///", n.String())
}
