// Package wire implements the control-channel message codec (§4.A): a
// tagged, little-endian, length-prefixed message family shared by every
// control device. The header carries no version field. The codec owns no state; callers own the
// lifetime of decoded messages.
package wire

import (
	"encoding/binary"
	"fmt"

	coreerr "github.com/dif-systems/rina-core/errors"
)

// MsgType identifies a message's wire schema.
type MsgType uint16

const (
	IPCPCreate MsgType = iota + 1
	IPCPCreateResp
	IPCPDestroy
	IPCPConfig
	IPCPConfigGet
	IPCPConfigGetResp
	IPCPStats
	IPCPStatsResp
	IPCPQosSupported
	IPCPQosSupportedResp
	IPCPUpdate
	UipcpSet
	UipcpWait
	ApplRegister
	ApplRegisterResp
	ApplMove
	FARequest
	FAResp
	FAReqArrived
	FARespArrived
	UipcpFAReqArrived
	UipcpFARespArrived
	FlowDealloc
	FlowDeallocated
	FlowStats
	FlowStatsResp
	FlowCfgUpdate
	FlowFetch
	FlowFetchResp
	RegFetch
	RegFetchResp
	PduftSet
	PduftDel
	PduftFlush
	Result    // generic {event_id, result} response used by several handlers
	Subscribe // flag-change command setting a control device's update-subscription bits
	maxMsgType
)

// MaxMsgType is the largest defined message type; values above it are
// rejected as unknown-type by the dispatcher.
const MaxMsgType = maxMsgType - 1

var msgTypeNames = map[MsgType]string{
	IPCPCreate:            "ipcp_create",
	IPCPCreateResp:        "ipcp_create_resp",
	IPCPDestroy:           "ipcp_destroy",
	IPCPConfig:            "ipcp_config",
	IPCPConfigGet:         "ipcp_config_get",
	IPCPConfigGetResp:     "ipcp_config_get_resp",
	IPCPStats:             "ipcp_stats",
	IPCPStatsResp:         "ipcp_stats_resp",
	IPCPQosSupported:      "ipcp_qos_supported",
	IPCPQosSupportedResp:  "ipcp_qos_supported_resp",
	IPCPUpdate:            "ipcp_update",
	UipcpSet:              "uipcp_set",
	UipcpWait:             "uipcp_wait",
	ApplRegister:          "appl_register",
	ApplRegisterResp:      "appl_register_resp",
	ApplMove:              "appl_move",
	FARequest:             "fa_request",
	FAResp:                "fa_resp",
	FAReqArrived:          "fa_req_arrived",
	FARespArrived:         "fa_resp_arrived",
	UipcpFAReqArrived:     "uipcp_fa_req_arrived",
	UipcpFARespArrived:    "uipcp_fa_resp_arrived",
	FlowDealloc:           "flow_dealloc",
	FlowDeallocated:       "flow_deallocated",
	FlowStats:             "flow_stats",
	FlowStatsResp:         "flow_stats_resp",
	FlowCfgUpdate:         "flow_cfg_update",
	FlowFetch:             "flow_fetch",
	FlowFetchResp:         "flow_fetch_resp",
	RegFetch:              "reg_fetch",
	RegFetchResp:          "reg_fetch_resp",
	PduftSet:              "pduft_set",
	PduftDel:              "pduft_del",
	PduftFlush:            "pduft_flush",
	Result:                "result",
	Subscribe:             "subscribe",
}

// String names a message type for logging and metrics labels; unknown
// values fall back to their numeric form rather than panicking.
func (t MsgType) String() string {
	if name, ok := msgTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint16(t))
}

// Header is common to every message on the wire.
type Header struct {
	Type    MsgType
	EventID uint32
}

const headerLen = 2 + 4 // u16 type + u32 event_id

func putHeader(w *writer, h Header) {
	w.putU16(uint16(h.Type))
	w.putU32(h.EventID)
}

func getHeader(r *reader) (Header, error) {
	if r.remaining() < headerLen {
		return Header{}, errMalformed("header")
	}
	t := MsgType(r.getU16())
	ev := r.getU32()
	return Header{Type: t, EventID: ev}, nil
}

// Message is implemented by every decodable message body.
type Message interface {
	Header() Header
}

func errMalformed(field string) error {
	return coreerr.New("wire.decode", coreerr.Invalid, "malformed field: "+field)
}

func errUnknownType(t MsgType) error {
	return coreerr.New("wire.decode", coreerr.Unsupported, fmt.Sprintf("unknown message type %d", t))
}

// Encode serializes a message to bytes.
func Encode(m Message) ([]byte, error) {
	w := newWriter()
	putHeader(w, m.Header())
	if err := encodeBody(w, m); err != nil {
		return nil, err
	}
	return w.bytes(), nil
}

// Decode inspects the header and decodes the full message. The returned
// Message's concrete type depends on the header's Type field.
func Decode(buf []byte) (Message, error) {
	r := newReader(buf)
	h, err := getHeader(r)
	if err != nil {
		return nil, err
	}
	if h.Type == 0 || h.Type > MaxMsgType {
		return nil, errUnknownType(h.Type)
	}
	return decodeBody(h, r)
}

// ---- small cursor-based binary writer/reader ----

type writer struct {
	buf []byte
}

func newWriter() *writer { return &writer{buf: make([]byte, 0, 64)} }

func (w *writer) bytes() []byte { return w.buf }

func (w *writer) putU8(v uint8)   { w.buf = append(w.buf, v) }
func (w *writer) putU16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) putU32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) putU64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *writer) putI32(v int32) { w.putU32(uint32(v)) }
func (w *writer) putBool(v bool) {
	if v {
		w.putU8(1)
	} else {
		w.putU8(0)
	}
}
func (w *writer) putString(s string) {
	w.putU16(uint16(len(s)))
	w.buf = append(w.buf, s...)
}

type reader struct {
	buf []byte
	pos int
}

func newReader(b []byte) *reader { return &reader{buf: b} }

func (r *reader) remaining() int { return len(r.buf) - r.pos }

func (r *reader) getU8() uint8 {
	v := r.buf[r.pos]
	r.pos++
	return v
}
func (r *reader) getU16() uint16 {
	v := binary.LittleEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v
}
func (r *reader) getU32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	return v
}
func (r *reader) getU64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.pos:])
	r.pos += 8
	return v
}
func (r *reader) getI32() int32   { return int32(r.getU32()) }
func (r *reader) getBool() bool   { return r.getU8() != 0 }
func (r *reader) getString() (string, error) {
	if r.remaining() < 2 {
		return "", errMalformed("string length")
	}
	n := int(r.getU16())
	if r.remaining() < n {
		return "", errMalformed("string data")
	}
	s := string(r.buf[r.pos : r.pos+n])
	r.pos += n
	return s, nil
}
