package syncsession

import (
	"context"
	"fmt"

	"github.com/robcohen/peervault/pkg/document"
	"github.com/robcohen/peervault/pkg/syncproto"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// catchup brings the two document logs to the same frontier, choosing
// between a full snapshot transfer and an incremental update transfer
// per spec §4.9 (Open Question (a): prefer a snapshot whenever the
// incremental diff would cost more than half the full snapshot size).
func (s *Session) catchup(ctx context.Context) error {
	localVersion := s.doc.OplogVersion()

	remoteVersionBytes, err := s.exchangeVersions(ctx, localVersion)
	if err != nil {
		return err
	}
	remoteVersion, err := unmarshalVersion(remoteVersionBytes)
	if err != nil {
		return err
	}

	if err := s.sendCatchupFor(ctx, remoteVersion); err != nil {
		return err
	}
	if err := s.receiveCatchup(ctx); err != nil {
		return err
	}
	return nil
}

// exchangeVersions re-sends our version vector for the catchup phase (the
// handshake already carried it once, but we need the remote's copy
// available here without coupling to handshake's local variables) and
// returns the remote's version bytes.
func (s *Session) exchangeVersions(ctx context.Context, localVersion document.Version) ([]byte, error) {
	if err := s.sendMain(ctx, syncproto.VersionInfo{VaultID: s.doc.VaultID(), Version: marshalVersion(localVersion)}); err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}
	msg, err := s.recvMain(ctx)
	if err != nil {
		return nil, vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}
	remote, ok := msg.(syncproto.VersionInfo)
	if !ok {
		return nil, vaulterr.New(vaulterr.CodeSyncProtocolError, "expected VersionInfo in catchup")
	}
	return remote.Version, nil
}

// sendCatchupFor decides what this side owes the peer and sends it: a
// snapshot request (we're behind and small/freshly-adopted), a snapshot
// (they asked), or an incremental update batch.
func (s *Session) sendCatchupFor(ctx context.Context, remoteVersion document.Version) error {
	localVersion := s.doc.OplogVersion()
	remoteAhead := versionAhead(remoteVersion, localVersion)

	docSize, _ := s.doc.DocSize()
	updates, err := s.doc.ExportUpdates(&remoteVersion)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
	}

	preferSnapshot := remoteAhead && (s.adopted || (docSize > 0 && float64(len(updates)) > s.cfg.SnapshotThreshold*float64(docSize)))
	if preferSnapshot {
		return s.sendSnapshotRequest(ctx)
	}
	return s.sendMain(ctx, syncproto.Updates{Data: updates})
}

func (s *Session) sendSnapshotRequest(ctx context.Context) error {
	if err := s.sendMain(ctx, syncproto.SnapshotRequest{}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}
	msg, err := s.recvMain(ctx)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}
	return s.applyIncoming(msg)
}

// receiveCatchup drains this side's inbox for whatever the peer decided
// to send (snapshot request, snapshot, chunked snapshot, or updates) and
// applies it, looping until a message that concludes catchup arrives.
func (s *Session) receiveCatchup(ctx context.Context) error {
	cctx, cancel := withTimeout(ctx, s.cfg.SnapshotTimeout)
	defer cancel()

	var chunks [][]byte
	expectedChunks := -1

	for {
		msg, err := s.recvMain(cctx)
		if err != nil {
			if expectedChunks >= 0 && !allChunksPresent(chunks) {
				return s.reportSnapshotGap(ctx, chunks)
			}
			return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
		}

		switch m := msg.(type) {
		case syncproto.SnapshotRequest:
			if err := s.sendFullSnapshot(cctx); err != nil {
				return err
			}
			continue
		case syncproto.SnapshotChunk:
			if expectedChunks < 0 {
				expectedChunks = int(m.TotalChunks)
				chunks = make([][]byte, expectedChunks)
			}
			if int(m.ChunkIndex) < len(chunks) {
				chunks[m.ChunkIndex] = m.Data
			}
			if allChunksPresent(chunks) {
				full := joinChunks(chunks)
				if err := s.doc.ImportUpdates(full); err != nil {
					return vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
				}
				return nil
			}
			continue
		default:
			if err := s.applyIncoming(msg); err != nil {
				return err
			}
			return nil
		}
	}
}

// reportSnapshotGap tells the peer we gave up waiting on missing chunk
// indices and returns the typed error that ends the session so the
// supervisor reconnects and catchup restarts from scratch.
func (s *Session) reportSnapshotGap(ctx context.Context, chunks [][]byte) error {
	var missing []int
	for i, c := range chunks {
		if c == nil {
			missing = append(missing, i)
		}
	}
	_ = s.sendMain(ctx, syncproto.ErrorMsg{Code: syncproto.ErrSnapshotGap, Message: "timed out waiting for snapshot chunks"})
	return vaulterr.New(vaulterr.CodeSyncSnapshotGap, "snapshot catchup timed out with missing chunks").
		WithContext("missing_chunks", fmt.Sprint(missing))
}

func (s *Session) applyIncoming(msg syncproto.Message) error {
	switch m := msg.(type) {
	case syncproto.Snapshot:
		return vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, s.doc.ImportUpdates(m.Data))
	case syncproto.Updates:
		if len(m.Data) == 0 {
			return nil
		}
		return vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, s.doc.ImportUpdates(m.Data))
	case syncproto.ErrorMsg:
		return vaulterr.New(vaulterr.CodeSyncProtocolError, m.Message)
	default:
		return vaulterr.New(vaulterr.CodeSyncProtocolError, "unexpected message in catchup")
	}
}

// sendFullSnapshot transfers the entire log as one frame if it fits under
// the configured chunk size, else as a sequence of SnapshotChunk frames.
func (s *Session) sendFullSnapshot(ctx context.Context) error {
	data, err := s.doc.ExportUpdates(nil)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
	}
	if len(data) <= s.cfg.ChunkSize {
		return s.sendMain(ctx, syncproto.Snapshot{TotalSize: uint32(len(data)), Data: data})
	}

	total := (len(data) + s.cfg.ChunkSize - 1) / s.cfg.ChunkSize
	for i := 0; i < total; i++ {
		start := i * s.cfg.ChunkSize
		end := start + s.cfg.ChunkSize
		if end > len(data) {
			end = len(data)
		}
		chunk := syncproto.SnapshotChunk{ChunkIndex: uint32(i), TotalChunks: uint32(total), Data: data[start:end]}
		if err := s.sendMain(ctx, chunk); err != nil {
			return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
		}
	}
	return nil
}

func allChunksPresent(chunks [][]byte) bool {
	for _, c := range chunks {
		if c == nil {
			return false
		}
	}
	return len(chunks) > 0
}

func joinChunks(chunks [][]byte) []byte {
	var total int
	for _, c := range chunks {
		total += len(c)
	}
	out := make([]byte, 0, total)
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
