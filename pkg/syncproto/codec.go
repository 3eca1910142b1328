package syncproto

import "time"

type encodable interface {
	encode() []byte
}

// Encode frames msg with timestamp ts, ready to hand to a Stream.Send.
func Encode(msg Message, ts time.Time) []byte {
	e, ok := msg.(encodable)
	if !ok {
		// DCSignal implements encode() via its own method set; every other
		// Message above does too, so this only trips for a caller-defined
		// type outside this package, which Decode could never produce.
		return EncodeFrame(msg.Type(), ts, nil)
	}
	return EncodeFrame(msg.Type(), ts, e.encode())
}

// Decode parses a raw frame into its header plus a concrete Message,
// dispatching on the type byte. Unknown type codes and malformed payloads
// return the protocol.* errors spec'd in the wire format section.
func Decode(data []byte) (Message, time.Time, error) {
	f, err := DecodeFrame(data)
	if err != nil {
		return nil, time.Time{}, err
	}
	if isDCKind(f.Type) {
		m, err := decodeDCSignal(f.Type, f.Payload)
		return m, f.Timestamp, err
	}
	if err := checkKnownType(f.Type); err != nil {
		return nil, f.Timestamp, err
	}

	var msg Message
	switch f.Type {
	case MsgVersionInfo:
		msg, err = decodeVersionInfo(f.Payload)
	case MsgUpdates:
		msg, err = decodeUpdates(f.Payload)
	case MsgSnapshotRequest:
		msg, err = decodeSnapshotRequest(f.Payload)
	case MsgSnapshot:
		msg, err = decodeSnapshot(f.Payload)
	case MsgSnapshotChunk:
		msg, err = decodeSnapshotChunk(f.Payload)
	case MsgSyncComplete:
		msg, err = decodeSyncComplete(f.Payload)
	case MsgError:
		msg, err = decodeErrorMsg(f.Payload)
	case MsgPing:
		msg, err = decodePing(f.Payload)
	case MsgPong:
		msg, err = decodePong(f.Payload)
	case MsgBlobHashes:
		msg, err = decodeBlobHashes(f.Payload)
	case MsgBlobRequest:
		msg, err = decodeBlobRequest(f.Payload)
	case MsgBlobData:
		msg, err = decodeBlobData(f.Payload)
	case MsgBlobSyncComplete:
		msg, err = decodeBlobSyncComplete(f.Payload)
	case MsgPeerRemoved:
		msg, err = decodePeerRemoved(f.Payload)
	case MsgPeerAnnouncement:
		msg, err = decodePeerAnnouncement(f.Payload)
	case MsgPeerRequest:
		msg, err = decodePeerRequest(f.Payload)
	case MsgPeerLeft:
		msg, err = decodePeerLeft(f.Payload)
	default:
		return nil, f.Timestamp, errUnsupportedEncode
	}
	return msg, f.Timestamp, err
}
