package syncproto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robcohen/peervault/pkg/vaulterr"
)

func roundTrip(t *testing.T, msg Message) Message {
	t.Helper()
	ts := time.UnixMilli(1700000000000).UTC()
	data := Encode(msg, ts)
	got, gotTS, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, ts, gotTS)
	return got
}

func TestRoundTripEveryMessageKind(t *testing.T) {
	cases := []Message{
		VersionInfo{VaultID: "v1", Version: []byte(`{"a":1}`), Ticket: "tk", Hostname: "host", Nickname: "nick"},
		VersionInfo{
			VaultID: "v1", Version: []byte(`{}`), Ticket: "tk", Hostname: "h", Nickname: "",
			HasV2Extension: true, ProtocolVersion: 2, PluginVersion: "1.2.3",
			GroupIDs:   []string{"g1", "g2"},
			KnownPeers: []KnownPeerHint{{NodeID: "n1", LastSeenMs: 123}, {NodeID: "n2", LastSeenMs: 456}},
		},
		Updates{OpCount: 3, Data: []byte("ops")},
		SnapshotRequest{},
		Snapshot{TotalSize: 5, Data: []byte("hello")},
		SnapshotChunk{ChunkIndex: 1, TotalChunks: 4, Data: []byte("chunk")},
		SyncComplete{Version: []byte(`{"a":2}`)},
		ErrorMsg{Code: ErrVaultMismatch, Message: "mismatch"},
		Ping{Seq: 42},
		Pong{Seq: 42},
		BlobHashes{Hashes: []string{"aa", "bb"}},
		BlobRequest{Hashes: []string{"cc"}},
		BlobData{Hash: "dd", MimeType: "image/png", Data: []byte{1, 2, 3}},
		BlobSyncComplete{BlobCount: 7},
		PeerRemoved{Reason: "removed"},
		PeerAnnouncement{Reason: 1, Peers: []PeerInfo{{NodeID: "n1", Hostname: "h1", Nickname: "nn"}}},
		PeerRequest{GroupIDs: []string{"g1"}},
		PeerLeft{NodeID: "n1", Reason: 2, GroupIDs: []string{"g1", "g2"}},
		DCSignal{Kind: MsgDCOffer, Data: []byte("sdp-offer")},
		DCSignal{Kind: MsgDCCandidate, Data: []byte("ice")},
	}
	for _, want := range cases {
		got := roundTrip(t, want)
		assert.Equal(t, want, got, "%T", want)
	}
}

func TestDecodeShortFrame(t *testing.T) {
	_, _, err := Decode([]byte{0x01, 0x02, 0x03})
	require.Error(t, err)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeProtocolShort))
}

func TestDecodeUnknownType(t *testing.T) {
	ts := time.Now()
	frame := EncodeFrame(MsgType(0x99), ts, nil)
	_, _, err := Decode(frame)
	require.Error(t, err)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeProtocolUnknownType))
}

func TestDecodeBadFrameLengthOverrun(t *testing.T) {
	ts := time.Now()
	// Declares an 8-byte vault ID but supplies none.
	payload := []byte{0, 0, 0, 8}
	frame := EncodeFrame(MsgVersionInfo, ts, payload)
	_, _, err := Decode(frame)
	require.Error(t, err)
	assert.True(t, vaulterr.HasCode(err, vaulterr.CodeProtocolBadFrame))
}

func TestPingPongEncodeStable(t *testing.T) {
	ts := time.UnixMilli(1000).UTC()
	got := Encode(Ping{Seq: 1}, ts)
	require.Len(t, got, frameHeaderSize+4)
	assert.Equal(t, byte(MsgPing), got[0])
}
