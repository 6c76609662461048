package wire

// encodeBody writes the type-specific body of m following the header that
// Encode already wrote. The switch is exhaustive over every MsgType; adding
// a message type here without a matching case in decodeBody is a bug caught
// by the round-trip tests.
func encodeBody(w *writer, m Message) error {
	switch v := m.(type) {
	case *IPCPCreateMsg:
		w.putName(v.Name)
		w.putString(v.DIFName)
		w.putString(v.DIFType)
	case *IPCPCreateRespMsg:
		w.putI32(v.IPCPID)
		w.putI32(v.Result)
	case *IPCPDestroyMsg:
		w.putI32(v.IPCPID)
	case *IPCPConfigMsg:
		w.putI32(v.IPCPID)
		w.putString(v.Param)
		w.putString(v.Value)
	case *IPCPConfigGetMsg:
		w.putI32(v.IPCPID)
		w.putString(v.Param)
	case *IPCPConfigGetRespMsg:
		w.putI32(v.Result)
		w.putString(v.Value)
	case *IPCPStatsMsg:
		w.putI32(v.IPCPID)
	case *IPCPStatsRespMsg:
		w.putI32(v.Result)
		w.putU64(v.TxPDUs)
		w.putU64(v.RxPDUs)
		w.putU64(v.TxBytes)
		w.putU64(v.RxBytes)
	case *IPCPQosSupportedMsg:
		w.putI32(v.IPCPID)
	case *IPCPQosSupportedRespMsg:
		w.putI32(v.Result)
		w.putU16(uint16(len(v.QosIDs)))
		for _, id := range v.QosIDs {
			w.putU32(id)
		}
	case *IPCPUpdateMsg:
		w.putU8(v.Kind)
		w.putI32(v.IPCPID)
		w.putString(v.DIFName)
		w.putString(v.DIFType)
		w.putU32(v.MaxSDUSize)
	case *UipcpSetMsg:
		w.putI32(v.IPCPID)
	case *UipcpWaitMsg:
		w.putI32(v.IPCPID)
	case *ApplRegisterMsg:
		w.putI32(v.IPCPID)
		w.putString(v.DIFName)
		w.putName(v.ApplName)
		w.putBool(v.Reg)
	case *ApplRegisterRespMsg:
		w.putName(v.ApplName)
		w.putBool(v.Reg)
		w.putI32(v.Response)
	case *ApplMoveMsg:
		w.putName(v.ApplName)
		w.putI32(v.NewIPCPID)
	case *FARequestMsg:
		w.putString(v.DIFName)
		w.putName(v.LocalAppl)
		w.putName(v.RemoteAppl)
		w.putI32(v.IPCPID)
		w.putU32(v.QosID)
	case *FARespMsg:
		w.putI32(v.PortID)
		w.putI32(v.Response)
		w.putU32(v.KEventID)
		w.putI32(v.UpperIPCPID)
	case *FAReqArrivedMsg:
		w.putI32(v.PortID)
		w.putName(v.LocalAppl)
		w.putName(v.RemoteAppl)
		w.putString(v.DIFName)
	case *FARespArrivedMsg:
		w.putI32(v.PortID)
		w.putI32(v.Response)
	case *UipcpFAReqArrivedMsg:
		w.putI32(v.IPCPID)
		w.putI32(v.RemotePort)
		w.putI32(v.RemoteCep)
		w.putU64(v.RemoteAddr)
		w.putName(v.LocalAppl)
		w.putName(v.RemoteAppl)
		w.putU32(v.KEventID)
		w.putU32(v.QosID)
	case *UipcpFARespArrivedMsg:
		w.putI32(v.LocalPort)
		w.putI32(v.Response)
		w.putI32(v.RemotePort)
		w.putI32(v.RemoteCep)
		w.putU64(v.RemoteAddr)
	case *FlowDeallocMsg:
		w.putI32(v.PortID)
		w.putU64(v.UID)
	case *FlowDeallocatedMsg:
		w.putI32(v.PortID)
	case *FlowStatsMsg:
		w.putI32(v.PortID)
	case *FlowStatsRespMsg:
		w.putI32(v.Result)
		w.putU64(v.TxPDUs)
		w.putU64(v.RxPDUs)
		w.putU64(v.TxBytes)
		w.putU64(v.RxBytes)
	case *FlowCfgUpdateMsg:
		w.putI32(v.PortID)
		w.putString(v.Param)
		w.putString(v.Value)
	case *FlowFetchMsg:
		w.putI32(v.IPCPID)
	case *FlowFetchRespMsg:
		w.putBool(v.End)
		w.putI32(v.PortID)
		w.putName(v.LocalAppl)
		w.putName(v.RemoteAppl)
		w.putI32(v.IPCPID)
		w.putU8(v.State)
	case *RegFetchMsg:
		w.putI32(v.IPCPID)
	case *RegFetchRespMsg:
		w.putBool(v.End)
		w.putName(v.ApplName)
		w.putI32(v.IPCPID)
		w.putU8(v.State)
	case *PduftSetMsg:
		w.putI32(v.IPCPID)
		w.putU64(v.DestAddr)
		w.putI32(v.LowerPortID)
	case *PduftDelMsg:
		w.putI32(v.IPCPID)
		w.putU64(v.DestAddr)
	case *PduftFlushMsg:
		w.putI32(v.IPCPID)
	case *ResultMsg:
		w.putI32(v.Result)
	case *SubscribeMsg:
		w.putU32(v.Bits)
		w.putBool(v.On)
	default:
		return errUnknownType(m.Header().Type)
	}
	return nil
}

// decodeBody decodes the type-specific body following h, already consumed
// from r by Decode.
func decodeBody(h Header, r *reader) (Message, error) {
	var err error
	switch h.Type {
	case IPCPCreate:
		m := &IPCPCreateMsg{H: h}
		if m.Name, err = r.getName(); err != nil {
			return nil, err
		}
		if m.DIFName, err = r.getString(); err != nil {
			return nil, err
		}
		if m.DIFType, err = r.getString(); err != nil {
			return nil, err
		}
		return m, nil
	case IPCPCreateResp:
		if r.remaining() < 8 {
			return nil, errMalformed("IPCPCreateResp")
		}
		return &IPCPCreateRespMsg{H: h, IPCPID: r.getI32(), Result: r.getI32()}, nil
	case IPCPDestroy:
		if r.remaining() < 4 {
			return nil, errMalformed("IPCPDestroy")
		}
		return &IPCPDestroyMsg{H: h, IPCPID: r.getI32()}, nil
	case IPCPConfig:
		m := &IPCPConfigMsg{H: h}
		if r.remaining() < 4 {
			return nil, errMalformed("IPCPConfig")
		}
		m.IPCPID = r.getI32()
		if m.Param, err = r.getString(); err != nil {
			return nil, err
		}
		if m.Value, err = r.getString(); err != nil {
			return nil, err
		}
		return m, nil
	case IPCPConfigGet:
		m := &IPCPConfigGetMsg{H: h}
		if r.remaining() < 4 {
			return nil, errMalformed("IPCPConfigGet")
		}
		m.IPCPID = r.getI32()
		if m.Param, err = r.getString(); err != nil {
			return nil, err
		}
		return m, nil
	case IPCPConfigGetResp:
		m := &IPCPConfigGetRespMsg{H: h}
		if r.remaining() < 4 {
			return nil, errMalformed("IPCPConfigGetResp")
		}
		m.Result = r.getI32()
		if m.Value, err = r.getString(); err != nil {
			return nil, err
		}
		return m, nil
	case IPCPStats:
		if r.remaining() < 4 {
			return nil, errMalformed("IPCPStats")
		}
		return &IPCPStatsMsg{H: h, IPCPID: r.getI32()}, nil
	case IPCPStatsResp:
		if r.remaining() < 4+8*4 {
			return nil, errMalformed("IPCPStatsResp")
		}
		return &IPCPStatsRespMsg{
			H: h, Result: r.getI32(),
			TxPDUs: r.getU64(), RxPDUs: r.getU64(),
			TxBytes: r.getU64(), RxBytes: r.getU64(),
		}, nil
	case IPCPQosSupported:
		if r.remaining() < 4 {
			return nil, errMalformed("IPCPQosSupported")
		}
		return &IPCPQosSupportedMsg{H: h, IPCPID: r.getI32()}, nil
	case IPCPQosSupportedResp:
		if r.remaining() < 6 {
			return nil, errMalformed("IPCPQosSupportedResp")
		}
		m := &IPCPQosSupportedRespMsg{H: h, Result: r.getI32()}
		n := int(r.getU16())
		if r.remaining() < n*4 {
			return nil, errMalformed("IPCPQosSupportedResp.QosIDs")
		}
		m.QosIDs = make([]uint32, n)
		for i := range m.QosIDs {
			m.QosIDs[i] = r.getU32()
		}
		return m, nil
	case IPCPUpdate:
		m := &IPCPUpdateMsg{H: h}
		if r.remaining() < 1+4 {
			return nil, errMalformed("IPCPUpdate")
		}
		m.Kind = r.getU8()
		m.IPCPID = r.getI32()
		if m.DIFName, err = r.getString(); err != nil {
			return nil, err
		}
		if m.DIFType, err = r.getString(); err != nil {
			return nil, err
		}
		if r.remaining() < 4 {
			return nil, errMalformed("IPCPUpdate.MaxSDUSize")
		}
		m.MaxSDUSize = r.getU32()
		return m, nil
	case UipcpSet:
		if r.remaining() < 4 {
			return nil, errMalformed("UipcpSet")
		}
		return &UipcpSetMsg{H: h, IPCPID: r.getI32()}, nil
	case UipcpWait:
		if r.remaining() < 4 {
			return nil, errMalformed("UipcpWait")
		}
		return &UipcpWaitMsg{H: h, IPCPID: r.getI32()}, nil
	case ApplRegister:
		m := &ApplRegisterMsg{H: h}
		if r.remaining() < 4 {
			return nil, errMalformed("ApplRegister")
		}
		m.IPCPID = r.getI32()
		if m.DIFName, err = r.getString(); err != nil {
			return nil, err
		}
		if m.ApplName, err = r.getName(); err != nil {
			return nil, err
		}
		if r.remaining() < 1 {
			return nil, errMalformed("ApplRegister.Reg")
		}
		m.Reg = r.getBool()
		return m, nil
	case ApplRegisterResp:
		m := &ApplRegisterRespMsg{H: h}
		if m.ApplName, err = r.getName(); err != nil {
			return nil, err
		}
		if r.remaining() < 1+4 {
			return nil, errMalformed("ApplRegisterResp")
		}
		m.Reg = r.getBool()
		m.Response = r.getI32()
		return m, nil
	case ApplMove:
		m := &ApplMoveMsg{H: h}
		if m.ApplName, err = r.getName(); err != nil {
			return nil, err
		}
		if r.remaining() < 4 {
			return nil, errMalformed("ApplMove")
		}
		m.NewIPCPID = r.getI32()
		return m, nil
	case FARequest:
		m := &FARequestMsg{H: h}
		if m.DIFName, err = r.getString(); err != nil {
			return nil, err
		}
		if m.LocalAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if m.RemoteAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if r.remaining() < 4+4 {
			return nil, errMalformed("FARequest")
		}
		m.IPCPID = r.getI32()
		m.QosID = r.getU32()
		return m, nil
	case FAResp:
		if r.remaining() < 4+4+4+4 {
			return nil, errMalformed("FAResp")
		}
		return &FARespMsg{
			H: h, PortID: r.getI32(), Response: r.getI32(),
			KEventID: r.getU32(), UpperIPCPID: r.getI32(),
		}, nil
	case FAReqArrived:
		m := &FAReqArrivedMsg{H: h}
		if r.remaining() < 4 {
			return nil, errMalformed("FAReqArrived")
		}
		m.PortID = r.getI32()
		if m.LocalAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if m.RemoteAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if m.DIFName, err = r.getString(); err != nil {
			return nil, err
		}
		return m, nil
	case FARespArrived:
		if r.remaining() < 8 {
			return nil, errMalformed("FARespArrived")
		}
		return &FARespArrivedMsg{H: h, PortID: r.getI32(), Response: r.getI32()}, nil
	case UipcpFAReqArrived:
		m := &UipcpFAReqArrivedMsg{H: h}
		if r.remaining() < 4+4+4+8 {
			return nil, errMalformed("UipcpFAReqArrived")
		}
		m.IPCPID = r.getI32()
		m.RemotePort = r.getI32()
		m.RemoteCep = r.getI32()
		m.RemoteAddr = r.getU64()
		if m.LocalAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if m.RemoteAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if r.remaining() < 4+4 {
			return nil, errMalformed("UipcpFAReqArrived.tail")
		}
		m.KEventID = r.getU32()
		m.QosID = r.getU32()
		return m, nil
	case UipcpFARespArrived:
		if r.remaining() < 4+4+4+4+8 {
			return nil, errMalformed("UipcpFARespArrived")
		}
		return &UipcpFARespArrivedMsg{
			H: h, LocalPort: r.getI32(), Response: r.getI32(),
			RemotePort: r.getI32(), RemoteCep: r.getI32(), RemoteAddr: r.getU64(),
		}, nil
	case FlowDealloc:
		if r.remaining() < 4+8 {
			return nil, errMalformed("FlowDealloc")
		}
		return &FlowDeallocMsg{H: h, PortID: r.getI32(), UID: r.getU64()}, nil
	case FlowDeallocated:
		if r.remaining() < 4 {
			return nil, errMalformed("FlowDeallocated")
		}
		return &FlowDeallocatedMsg{H: h, PortID: r.getI32()}, nil
	case FlowStats:
		if r.remaining() < 4 {
			return nil, errMalformed("FlowStats")
		}
		return &FlowStatsMsg{H: h, PortID: r.getI32()}, nil
	case FlowStatsResp:
		if r.remaining() < 4+8*4 {
			return nil, errMalformed("FlowStatsResp")
		}
		return &FlowStatsRespMsg{
			H: h, Result: r.getI32(),
			TxPDUs: r.getU64(), RxPDUs: r.getU64(),
			TxBytes: r.getU64(), RxBytes: r.getU64(),
		}, nil
	case FlowCfgUpdate:
		m := &FlowCfgUpdateMsg{H: h}
		if r.remaining() < 4 {
			return nil, errMalformed("FlowCfgUpdate")
		}
		m.PortID = r.getI32()
		if m.Param, err = r.getString(); err != nil {
			return nil, err
		}
		if m.Value, err = r.getString(); err != nil {
			return nil, err
		}
		return m, nil
	case FlowFetch:
		if r.remaining() < 4 {
			return nil, errMalformed("FlowFetch")
		}
		return &FlowFetchMsg{H: h, IPCPID: r.getI32()}, nil
	case FlowFetchResp:
		m := &FlowFetchRespMsg{H: h}
		if r.remaining() < 1+4 {
			return nil, errMalformed("FlowFetchResp")
		}
		m.End = r.getBool()
		m.PortID = r.getI32()
		if m.LocalAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if m.RemoteAppl, err = r.getName(); err != nil {
			return nil, err
		}
		if r.remaining() < 4+1 {
			return nil, errMalformed("FlowFetchResp.tail")
		}
		m.IPCPID = r.getI32()
		m.State = r.getU8()
		return m, nil
	case RegFetch:
		if r.remaining() < 4 {
			return nil, errMalformed("RegFetch")
		}
		return &RegFetchMsg{H: h, IPCPID: r.getI32()}, nil
	case RegFetchResp:
		m := &RegFetchRespMsg{H: h}
		if r.remaining() < 1 {
			return nil, errMalformed("RegFetchResp")
		}
		m.End = r.getBool()
		if m.ApplName, err = r.getName(); err != nil {
			return nil, err
		}
		if r.remaining() < 4+1 {
			return nil, errMalformed("RegFetchResp.tail")
		}
		m.IPCPID = r.getI32()
		m.State = r.getU8()
		return m, nil
	case PduftSet:
		if r.remaining() < 4+8+4 {
			return nil, errMalformed("PduftSet")
		}
		return &PduftSetMsg{H: h, IPCPID: r.getI32(), DestAddr: r.getU64(), LowerPortID: r.getI32()}, nil
	case PduftDel:
		if r.remaining() < 4+8 {
			return nil, errMalformed("PduftDel")
		}
		return &PduftDelMsg{H: h, IPCPID: r.getI32(), DestAddr: r.getU64()}, nil
	case PduftFlush:
		if r.remaining() < 4 {
			return nil, errMalformed("PduftFlush")
		}
		return &PduftFlushMsg{H: h, IPCPID: r.getI32()}, nil
	case Result:
		if r.remaining() < 4 {
			return nil, errMalformed("Result")
		}
		return &ResultMsg{H: h, Result: r.getI32()}, nil
	case Subscribe:
		if r.remaining() < 4+1 {
			return nil, errMalformed("Subscribe")
		}
		return &SubscribeMsg{H: h, Bits: r.getU32(), On: r.getBool()}, nil
	default:
		return nil, errUnknownType(h.Type)
	}
}
