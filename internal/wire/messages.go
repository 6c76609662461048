package wire

// Update kinds carried by IPCPUpdateMsg (§4.K).
const (
	UpdateAdd uint8 = iota
	UpdateUpd
	UpdateDel
	UpdateUipcpDel
)

// ---- IPCP lifecycle ----

type IPCPCreateMsg struct {
	H       Header
	Name    Name
	DIFName string
	DIFType string
}

func (m *IPCPCreateMsg) Header() Header { return m.H }

type IPCPCreateRespMsg struct {
	H      Header
	IPCPID int32
	Result int32
}

func (m *IPCPCreateRespMsg) Header() Header { return m.H }

type IPCPDestroyMsg struct {
	H      Header
	IPCPID int32
}

func (m *IPCPDestroyMsg) Header() Header { return m.H }

type IPCPConfigMsg struct {
	H      Header
	IPCPID int32
	Param  string
	Value  string
}

func (m *IPCPConfigMsg) Header() Header { return m.H }

type IPCPConfigGetMsg struct {
	H      Header
	IPCPID int32
	Param  string
}

func (m *IPCPConfigGetMsg) Header() Header { return m.H }

type IPCPConfigGetRespMsg struct {
	H      Header
	Result int32
	Value  string
}

func (m *IPCPConfigGetRespMsg) Header() Header { return m.H }

type IPCPStatsMsg struct {
	H      Header
	IPCPID int32
}

func (m *IPCPStatsMsg) Header() Header { return m.H }

type IPCPStatsRespMsg struct {
	H       Header
	Result  int32
	TxPDUs  uint64
	RxPDUs  uint64
	TxBytes uint64
	RxBytes uint64
}

func (m *IPCPStatsRespMsg) Header() Header { return m.H }

type IPCPQosSupportedMsg struct {
	H      Header
	IPCPID int32
}

func (m *IPCPQosSupportedMsg) Header() Header { return m.H }

type IPCPQosSupportedRespMsg struct {
	H      Header
	Result int32
	QosIDs []uint32
}

func (m *IPCPQosSupportedRespMsg) Header() Header { return m.H }

type IPCPUpdateMsg struct {
	H          Header
	Kind       uint8
	IPCPID     int32
	DIFName    string
	DIFType    string
	MaxSDUSize uint32
}

func (m *IPCPUpdateMsg) Header() Header { return m.H }

type UipcpSetMsg struct {
	H      Header
	IPCPID int32
}

func (m *UipcpSetMsg) Header() Header { return m.H }

type UipcpWaitMsg struct {
	H      Header
	IPCPID int32
}

func (m *UipcpWaitMsg) Header() Header { return m.H }

// ---- application registration ----

type ApplRegisterMsg struct {
	H        Header
	IPCPID   int32
	DIFName  string
	ApplName Name
	Reg      bool
}

func (m *ApplRegisterMsg) Header() Header { return m.H }

type ApplRegisterRespMsg struct {
	H        Header
	ApplName Name
	Reg      bool
	Response int32
}

func (m *ApplRegisterRespMsg) Header() Header { return m.H }

type ApplMoveMsg struct {
	H         Header
	ApplName  Name
	NewIPCPID int32
}

func (m *ApplMoveMsg) Header() Header { return m.H }

// ---- flow allocation ----

type FARequestMsg struct {
	H          Header
	DIFName    string
	LocalAppl  Name
	RemoteAppl Name
	IPCPID     int32 // -1: let the core pick by DIF
	QosID      uint32
}

func (m *FARequestMsg) Header() Header { return m.H }

type FARespMsg struct {
	H           Header
	PortID      int32
	Response    int32
	KEventID    uint32
	UpperIPCPID int32 // -1: no upper-IPCP stacking requested
}

func (m *FARespMsg) Header() Header { return m.H }

type FAReqArrivedMsg struct {
	H          Header
	PortID     int32
	LocalAppl  Name
	RemoteAppl Name
	DIFName    string
}

func (m *FAReqArrivedMsg) Header() Header { return m.H }

type FARespArrivedMsg struct {
	H        Header
	PortID   int32
	Response int32
}

func (m *FARespArrivedMsg) Header() Header { return m.H }

type UipcpFAReqArrivedMsg struct {
	H          Header
	IPCPID     int32
	RemotePort int32
	RemoteCep  int32
	RemoteAddr uint64
	LocalAppl  Name
	RemoteAppl Name
	KEventID   uint32
	QosID      uint32
}

func (m *UipcpFAReqArrivedMsg) Header() Header { return m.H }

type UipcpFARespArrivedMsg struct {
	H          Header
	LocalPort  int32
	Response   int32
	RemotePort int32
	RemoteCep  int32
	RemoteAddr uint64
}

func (m *UipcpFARespArrivedMsg) Header() Header { return m.H }

// ---- flow teardown & stats ----

type FlowDeallocMsg struct {
	H      Header
	PortID int32
	UID    uint64
}

func (m *FlowDeallocMsg) Header() Header { return m.H }

type FlowDeallocatedMsg struct {
	H      Header
	PortID int32
}

func (m *FlowDeallocatedMsg) Header() Header { return m.H }

type FlowStatsMsg struct {
	H      Header
	PortID int32
}

func (m *FlowStatsMsg) Header() Header { return m.H }

type FlowStatsRespMsg struct {
	H       Header
	Result  int32
	TxPDUs  uint64
	RxPDUs  uint64
	TxBytes uint64
	RxBytes uint64
}

func (m *FlowStatsRespMsg) Header() Header { return m.H }

type FlowCfgUpdateMsg struct {
	H      Header
	PortID int32
	Param  string
	Value  string
}

func (m *FlowCfgUpdateMsg) Header() Header { return m.H }

// ---- fetch cursors ----

type FlowFetchMsg struct {
	H      Header
	IPCPID int32 // -1: no filter
}

func (m *FlowFetchMsg) Header() Header { return m.H }

type FlowFetchRespMsg struct {
	H          Header
	End        bool
	PortID     int32
	LocalAppl  Name
	RemoteAppl Name
	IPCPID     int32
	State      uint8
}

func (m *FlowFetchRespMsg) Header() Header { return m.H }

type RegFetchMsg struct {
	H      Header
	IPCPID int32
}

func (m *RegFetchMsg) Header() Header { return m.H }

type RegFetchRespMsg struct {
	H        Header
	End      bool
	ApplName Name
	IPCPID   int32
	State    uint8
}

func (m *RegFetchRespMsg) Header() Header { return m.H }

// ---- PDU forwarding table (forwarded opaquely to the factory) ----

type PduftSetMsg struct {
	H           Header
	IPCPID      int32
	DestAddr    uint64
	LowerPortID int32
}

func (m *PduftSetMsg) Header() Header { return m.H }

type PduftDelMsg struct {
	H        Header
	IPCPID   int32
	DestAddr uint64
}

func (m *PduftDelMsg) Header() Header { return m.H }

type PduftFlushMsg struct {
	H      Header
	IPCPID int32
}

func (m *PduftFlushMsg) Header() Header { return m.H }

// ---- generic result ----

// ResultMsg is the generic {event_id, result} acknowledgement used by
// handlers that have nothing else to report (IPCP_DESTROY, FLOW_DEALLOC,
// PDUFT_* acks).
type ResultMsg struct {
	H      Header
	Result int32
}

func (m *ResultMsg) Header() Header { return m.H }

// ---- subscription ----

// SubscribeMsg is the control device's flag-change command (§3 "one ioctl
// flag-change command sets subscription bits"): turns update-subscription
// bits on or off for the sending control device. The only defined bit
// today is SubscribeIPCPUpdates.
type SubscribeMsg struct {
	H    Header
	Bits uint32
	On   bool
}

func (m *SubscribeMsg) Header() Header { return m.H }
