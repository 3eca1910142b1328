package syncproto

import (
	"encoding/binary"
	"time"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

// MsgType identifies a message's wire shape, the first byte of every frame.
type MsgType byte

const (
	MsgVersionInfo      MsgType = 0x01
	MsgUpdates          MsgType = 0x02
	MsgSnapshotRequest  MsgType = 0x03
	MsgSnapshot         MsgType = 0x04
	MsgSnapshotChunk    MsgType = 0x05
	MsgSyncComplete     MsgType = 0x06
	MsgError            MsgType = 0x07
	MsgPing             MsgType = 0x08
	MsgPong             MsgType = 0x09
	MsgBlobHashes       MsgType = 0x10
	MsgBlobRequest      MsgType = 0x11
	MsgBlobData         MsgType = 0x12
	MsgBlobSyncComplete MsgType = 0x13
	MsgPeerRemoved      MsgType = 0x20
	MsgPeerAnnouncement MsgType = 0x21
	MsgPeerRequest      MsgType = 0x22
	MsgPeerLeft         MsgType = 0x23
	MsgDCOffer          MsgType = 0x40
	MsgDCAnswer         MsgType = 0x41
	MsgDCCandidate      MsgType = 0x42
	MsgDCReady          MsgType = 0x43
	MsgDCFailed         MsgType = 0x44
)

// frameHeaderSize is the fixed `u8 type | u64 timestamp` prefix every
// frame carries ahead of its payload.
const frameHeaderSize = 9

// Frame is one decoded wire message: its type tag, send timestamp, and
// raw (still-encoded) payload bytes.
type Frame struct {
	Type      MsgType
	Timestamp time.Time
	Payload   []byte
}

// EncodeFrame prepends the type/timestamp header to payload.
func EncodeFrame(typ MsgType, ts time.Time, payload []byte) []byte {
	buf := make([]byte, frameHeaderSize+len(payload))
	buf[0] = byte(typ)
	binary.BigEndian.PutUint64(buf[1:9], uint64(ts.UnixMilli()))
	copy(buf[9:], payload)
	return buf
}

// DecodeFrame splits a raw frame into its header and payload. It never
// inspects the payload; callers dispatch on Type to decode further.
func DecodeFrame(data []byte) (Frame, error) {
	if len(data) < frameHeaderSize {
		return Frame{}, vaulterr.New(vaulterr.CodeProtocolShort, "frame shorter than 9 bytes")
	}
	typ := MsgType(data[0])
	ms := binary.BigEndian.Uint64(data[1:9])
	return Frame{
		Type:      typ,
		Timestamp: time.UnixMilli(int64(ms)).UTC(),
		Payload:   data[9:],
	}, nil
}

var knownTypes = map[MsgType]bool{
	MsgVersionInfo: true, MsgUpdates: true, MsgSnapshotRequest: true,
	MsgSnapshot: true, MsgSnapshotChunk: true, MsgSyncComplete: true,
	MsgError: true, MsgPing: true, MsgPong: true,
	MsgBlobHashes: true, MsgBlobRequest: true, MsgBlobData: true,
	MsgBlobSyncComplete: true, MsgPeerRemoved: true, MsgPeerAnnouncement: true,
	MsgPeerRequest: true, MsgPeerLeft: true,
	MsgDCOffer: true, MsgDCAnswer: true, MsgDCCandidate: true,
	MsgDCReady: true, MsgDCFailed: true,
}

// checkKnownType validates typ without decoding the payload, used by
// Decode before it dispatches.
func checkKnownType(typ MsgType) error {
	if !knownTypes[typ] {
		return vaulterr.New(vaulterr.CodeProtocolUnknownType, "unknown message type")
	}
	return nil
}
