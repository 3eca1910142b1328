package syncproto

import "github.com/robcohen/peervault/pkg/vaulterr"

// Message is implemented by every concrete payload type below. Type
// reports the wire tag Encode/Decode dispatch on.
type Message interface {
	Type() MsgType
}

// KnownPeerHint is one entry of VersionInfo's v2 gossip list: a peer this
// side already knows about, offered so the receiver can dedup its own
// registry (see Open Question (b): most recent LastSeenMs wins on a
// nodeID collision).
type KnownPeerHint struct {
	NodeID     string
	LastSeenMs uint64
}

// VersionInfo is the first message exchanged on every session (§ handshake).
type VersionInfo struct {
	VaultID  string
	Version  []byte // opaque document.Version, JSON-encoded by the caller
	Ticket   string
	Hostname string
	Nickname string

	// v2 extension, present only when ProtocolVersion >= 2.
	HasV2Extension  bool
	ProtocolVersion uint8
	PluginVersion   string
	GroupIDs        []string
	KnownPeers      []KnownPeerHint
}

func (VersionInfo) Type() MsgType { return MsgVersionInfo }

func (m VersionInfo) encode() []byte {
	w := &writer{}
	w.str32(m.VaultID)
	w.bytes32(m.Version)
	w.str32(m.Ticket)
	w.str16(m.Hostname)
	w.str16(m.Nickname)
	if m.HasV2Extension {
		w.u8(m.ProtocolVersion)
		w.str16(m.PluginVersion)
		w.strList16(m.GroupIDs)
		w.u16(uint16(len(m.KnownPeers)))
		for _, k := range m.KnownPeers {
			w.str16(k.NodeID)
			w.u64(k.LastSeenMs)
		}
	}
	return w.buf
}

func decodeVersionInfo(p []byte) (VersionInfo, error) {
	r := newReader(p)
	var m VersionInfo
	var err error
	if m.VaultID, err = r.str32(); err != nil {
		return m, err
	}
	if m.Version, err = r.bytes32(); err != nil {
		return m, err
	}
	if m.Ticket, err = r.str32(); err != nil {
		return m, err
	}
	if m.Hostname, err = r.str16(); err != nil {
		return m, err
	}
	if m.Nickname, err = r.str16(); err != nil {
		return m, err
	}
	if r.atEnd() {
		return m, nil
	}
	if m.ProtocolVersion, err = r.u8(); err != nil {
		return m, err
	}
	if m.ProtocolVersion < 2 {
		// Bytes after a pre-v2 protocol version are left uninterpreted.
		return m, nil
	}
	m.HasV2Extension = true
	if m.PluginVersion, err = r.str16(); err != nil {
		return m, err
	}
	if m.GroupIDs, err = r.strList16(); err != nil {
		return m, err
	}
	n, err := r.u16()
	if err != nil {
		return m, err
	}
	m.KnownPeers = make([]KnownPeerHint, 0, n)
	for i := 0; i < int(n); i++ {
		nodeID, err := r.str16()
		if err != nil {
			return m, err
		}
		lastSeen, err := r.u64()
		if err != nil {
			return m, err
		}
		m.KnownPeers = append(m.KnownPeers, KnownPeerHint{NodeID: nodeID, LastSeenMs: lastSeen})
	}
	return m, nil
}

// Updates carries a batch of document ops (§ catchup / live).
type Updates struct {
	OpCount uint32
	Data    []byte
}

func (Updates) Type() MsgType { return MsgUpdates }

func (m Updates) encode() []byte {
	w := &writer{}
	w.u32(m.OpCount)
	w.bytes32(m.Data)
	return w.buf
}

func decodeUpdates(p []byte) (Updates, error) {
	r := newReader(p)
	var m Updates
	var err error
	if m.OpCount, err = r.u32(); err != nil {
		return m, err
	}
	if m.Data, err = r.bytes32(); err != nil {
		return m, err
	}
	return m, nil
}

// SnapshotRequest has no payload.
type SnapshotRequest struct{}

func (SnapshotRequest) Type() MsgType        { return MsgSnapshotRequest }
func (SnapshotRequest) encode() []byte       { return nil }
func decodeSnapshotRequest([]byte) (SnapshotRequest, error) {
	return SnapshotRequest{}, nil
}

// Snapshot carries a full CRDT snapshot in a single frame (used when it
// fits under the configured chunk size).
type Snapshot struct {
	TotalSize uint32
	Data      []byte
}

func (Snapshot) Type() MsgType { return MsgSnapshot }

func (m Snapshot) encode() []byte {
	w := &writer{}
	w.u32(m.TotalSize)
	w.bytes32(m.Data)
	return w.buf
}

func decodeSnapshot(p []byte) (Snapshot, error) {
	r := newReader(p)
	var m Snapshot
	var err error
	if m.TotalSize, err = r.u32(); err != nil {
		return m, err
	}
	if m.Data, err = r.bytes32(); err != nil {
		return m, err
	}
	return m, nil
}

// SnapshotChunk is one piece of a multi-frame snapshot transfer.
type SnapshotChunk struct {
	ChunkIndex  uint32
	TotalChunks uint32
	Data        []byte
}

func (SnapshotChunk) Type() MsgType { return MsgSnapshotChunk }

func (m SnapshotChunk) encode() []byte {
	w := &writer{}
	w.u32(m.ChunkIndex)
	w.u32(m.TotalChunks)
	w.bytes32(m.Data)
	return w.buf
}

func decodeSnapshotChunk(p []byte) (SnapshotChunk, error) {
	r := newReader(p)
	var m SnapshotChunk
	var err error
	if m.ChunkIndex, err = r.u32(); err != nil {
		return m, err
	}
	if m.TotalChunks, err = r.u32(); err != nil {
		return m, err
	}
	if m.Data, err = r.bytes32(); err != nil {
		return m, err
	}
	return m, nil
}

// SyncComplete marks the end of catchup (snapshot or incremental),
// carrying the sender's version vector as of that point.
type SyncComplete struct {
	Version []byte
}

func (SyncComplete) Type() MsgType { return MsgSyncComplete }

func (m SyncComplete) encode() []byte {
	w := &writer{}
	w.bytes32(m.Version)
	return w.buf
}

func decodeSyncComplete(p []byte) (SyncComplete, error) {
	r := newReader(p)
	var m SyncComplete
	var err error
	if m.Version, err = r.bytes32(); err != nil {
		return m, err
	}
	return m, nil
}

// ErrorCode is the single byte carried by an ErrorMsg, distinct from the
// dotted vaulterr.Code taxonomy: the wire format only needs a compact tag
// the peer can switch on without parsing a string.
type ErrorCode byte

const (
	ErrNetTimeout       ErrorCode = 1
	ErrProtocolBadFrame ErrorCode = 2
	ErrProtocolShort    ErrorCode = 3
	ErrProtocolUnknown  ErrorCode = 4
	ErrVaultMismatch    ErrorCode = 5
	ErrSnapshotGap      ErrorCode = 6
	ErrBlobMissing      ErrorCode = 7
)

// ErrorMsg signals a fatal or retryable condition to the peer (§ failure
// semantics).
type ErrorMsg struct {
	Code    ErrorCode
	Message string
}

func (ErrorMsg) Type() MsgType { return MsgError }

func (m ErrorMsg) encode() []byte {
	w := &writer{}
	w.u8(byte(m.Code))
	w.str32(m.Message)
	return w.buf
}

func decodeErrorMsg(p []byte) (ErrorMsg, error) {
	r := newReader(p)
	var m ErrorMsg
	code, err := r.u8()
	if err != nil {
		return m, err
	}
	m.Code = ErrorCode(code)
	if m.Message, err = r.str32(); err != nil {
		return m, err
	}
	return m, nil
}

// Ping/Pong implement the keepalive cadence.
type Ping struct{ Seq uint32 }

func (Ping) Type() MsgType  { return MsgPing }
func (m Ping) encode() []byte {
	w := &writer{}
	w.u32(m.Seq)
	return w.buf
}
func decodePing(p []byte) (Ping, error) {
	r := newReader(p)
	seq, err := r.u32()
	return Ping{Seq: seq}, err
}

type Pong struct{ Seq uint32 }

func (Pong) Type() MsgType { return MsgPong }
func (m Pong) encode() []byte {
	w := &writer{}
	w.u32(m.Seq)
	return w.buf
}
func decodePong(p []byte) (Pong, error) {
	r := newReader(p)
	seq, err := r.u32()
	return Pong{Seq: seq}, err
}

// BlobHashes advertises a set of content hashes (§ blob catchup).
type BlobHashes struct{ Hashes []string }

func (BlobHashes) Type() MsgType { return MsgBlobHashes }

func (m BlobHashes) encode() []byte {
	w := &writer{}
	w.u32(uint32(len(m.Hashes)))
	for _, h := range m.Hashes {
		w.str16(h)
	}
	return w.buf
}

func decodeHashList(p []byte) ([]string, error) {
	r := newReader(p)
	n, err := r.u32()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		h, err := r.str16()
		if err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, nil
}

func decodeBlobHashes(p []byte) (BlobHashes, error) {
	hashes, err := decodeHashList(p)
	return BlobHashes{Hashes: hashes}, err
}

// BlobRequest asks the peer for the content of each listed hash.
type BlobRequest struct{ Hashes []string }

func (BlobRequest) Type() MsgType { return MsgBlobRequest }

func (m BlobRequest) encode() []byte {
	return (BlobHashes{Hashes: m.Hashes}).encode()
}

func decodeBlobRequest(p []byte) (BlobRequest, error) {
	hashes, err := decodeHashList(p)
	return BlobRequest{Hashes: hashes}, err
}

// BlobData carries one blob's content in response to a BlobRequest.
type BlobData struct {
	Hash     string
	MimeType string
	Data     []byte
}

func (BlobData) Type() MsgType { return MsgBlobData }

func (m BlobData) encode() []byte {
	w := &writer{}
	w.str16(m.Hash)
	w.str16(m.MimeType)
	w.bytes32(m.Data)
	return w.buf
}

func decodeBlobData(p []byte) (BlobData, error) {
	r := newReader(p)
	var m BlobData
	var err error
	if m.Hash, err = r.str16(); err != nil {
		return m, err
	}
	if m.MimeType, err = r.str16(); err != nil {
		return m, err
	}
	if m.Data, err = r.bytes32(); err != nil {
		return m, err
	}
	return m, nil
}

// BlobSyncComplete ends a blob-catchup round.
type BlobSyncComplete struct{ BlobCount uint32 }

func (BlobSyncComplete) Type() MsgType { return MsgBlobSyncComplete }
func (m BlobSyncComplete) encode() []byte {
	w := &writer{}
	w.u32(m.BlobCount)
	return w.buf
}
func decodeBlobSyncComplete(p []byte) (BlobSyncComplete, error) {
	r := newReader(p)
	n, err := r.u32()
	return BlobSyncComplete{BlobCount: n}, err
}

// PeerRemoved is sent when the local side tears a session down
// deliberately (removePeer).
type PeerRemoved struct{ Reason string }

func (PeerRemoved) Type() MsgType { return MsgPeerRemoved }
func (m PeerRemoved) encode() []byte {
	w := &writer{}
	w.str16(m.Reason)
	return w.buf
}
func decodePeerRemoved(p []byte) (PeerRemoved, error) {
	r := newReader(p)
	reason, err := r.str16()
	return PeerRemoved{Reason: reason}, err
}

// PeerInfo is one gossip entry in a PeerAnnouncement.
type PeerInfo struct {
	NodeID   string
	Hostname string
	Nickname string
}

// PeerAnnouncement gossips known peers to the remote side.
type PeerAnnouncement struct {
	Reason byte
	Peers  []PeerInfo
}

func (PeerAnnouncement) Type() MsgType { return MsgPeerAnnouncement }

func (m PeerAnnouncement) encode() []byte {
	w := &writer{}
	w.u8(m.Reason)
	w.u16(uint16(len(m.Peers)))
	for _, p := range m.Peers {
		w.str16(p.NodeID)
		w.str16(p.Hostname)
		w.str16(p.Nickname)
	}
	return w.buf
}

func decodePeerAnnouncement(p []byte) (PeerAnnouncement, error) {
	r := newReader(p)
	var m PeerAnnouncement
	reason, err := r.u8()
	if err != nil {
		return m, err
	}
	m.Reason = reason
	n, err := r.u16()
	if err != nil {
		return m, err
	}
	m.Peers = make([]PeerInfo, 0, n)
	for i := 0; i < int(n); i++ {
		var info PeerInfo
		if info.NodeID, err = r.str16(); err != nil {
			return m, err
		}
		if info.Hostname, err = r.str16(); err != nil {
			return m, err
		}
		if info.Nickname, err = r.str16(); err != nil {
			return m, err
		}
		m.Peers = append(m.Peers, info)
	}
	return m, nil
}

// PeerRequest asks the remote side to announce peers within the given
// groups (or all known peers, when empty).
type PeerRequest struct{ GroupIDs []string }

func (PeerRequest) Type() MsgType { return MsgPeerRequest }
func (m PeerRequest) encode() []byte {
	w := &writer{}
	w.strList16(m.GroupIDs)
	return w.buf
}
func decodePeerRequest(p []byte) (PeerRequest, error) {
	r := newReader(p)
	ids, err := r.strList16()
	return PeerRequest{GroupIDs: ids}, err
}

// PeerLeft notifies the remote side that a third peer departed a shared
// group.
type PeerLeft struct {
	NodeID   string
	Reason   byte
	GroupIDs []string
}

func (PeerLeft) Type() MsgType { return MsgPeerLeft }

func (m PeerLeft) encode() []byte {
	w := &writer{}
	w.str16(m.NodeID)
	w.u8(m.Reason)
	w.strList16(m.GroupIDs)
	return w.buf
}

func decodePeerLeft(p []byte) (PeerLeft, error) {
	r := newReader(p)
	var m PeerLeft
	var err error
	if m.NodeID, err = r.str16(); err != nil {
		return m, err
	}
	if m.Reason, err = r.u8(); err != nil {
		return m, err
	}
	if m.GroupIDs, err = r.strList16(); err != nil {
		return m, err
	}
	return m, nil
}

// DCSignal carries one of the five direct-connection upgrade signaling
// messages (0x40-0x44). The SDP/ICE wire format itself is out of scope
// (spec §1): this side only frames and forwards the opaque payload the
// transport gave it.
type DCSignal struct {
	Kind MsgType
	Data []byte
}

func (m DCSignal) Type() MsgType { return m.Kind }
func (m DCSignal) encode() []byte { return m.Data }

func decodeDCSignal(kind MsgType, p []byte) (DCSignal, error) {
	return DCSignal{Kind: kind, Data: append([]byte(nil), p...)}, nil
}

// isDCKind reports whether typ is one of the direct-connection signaling
// message types.
func isDCKind(typ MsgType) bool {
	switch typ {
	case MsgDCOffer, MsgDCAnswer, MsgDCCandidate, MsgDCReady, MsgDCFailed:
		return true
	default:
		return false
	}
}

// errUnsupportedEncode is returned by Decode for a type code that passes
// checkKnownType but has no decoder case (defensive: every registered
// non-signaling type is covered).
var errUnsupportedEncode = vaulterr.New(vaulterr.CodeProtocolUnknownType, "no encoder for message type")
