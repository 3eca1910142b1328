package syncsession

import (
	"context"

	"github.com/robcohen/peervault/pkg/metrics"
	"github.com/robcohen/peervault/pkg/syncproto"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// blobCatchup exchanges the set of blob hashes each side's document
// references, then transfers whichever blobs the other side is missing,
// per spec §4.9's BlobCatchup step. Both directions share one stream, so
// this dispatch loop handles the peer's request for our blobs and our
// request for theirs interleaved, ending once both BlobSyncComplete
// markers have been seen.
func (s *Session) blobCatchup(ctx context.Context) error {
	bctx, cancel := withTimeout(ctx, s.cfg.BlobBatchTimeout)
	defer cancel()

	ourHashes := hashSetToSlice(s.doc.ReferencedBlobHashes())
	if err := s.sendBlob(bctx, syncproto.BlobHashes{Hashes: ourHashes}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}

	msg, err := s.recvBlob(bctx)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}
	theirHashes, ok := msg.(syncproto.BlobHashes)
	if !ok {
		return vaulterr.New(vaulterr.CodeSyncProtocolError, "expected BlobHashes")
	}

	missing := s.blobs.GetMissing(bctx, theirHashes.Hashes)
	if err := s.sendBlob(bctx, syncproto.BlobRequest{Hashes: missing}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}

	sentComplete := false
	receivedComplete := false
	received := 0

	for !sentComplete || !receivedComplete {
		msg, err := s.recvBlob(bctx)
		if err != nil {
			return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
		}
		switch m := msg.(type) {
		case syncproto.BlobRequest:
			if err := s.fulfillBlobRequest(bctx, m.Hashes); err != nil {
				return err
			}
			sentComplete = true
		case syncproto.BlobData:
			if _, err := s.blobs.Add(bctx, m.Data, m.MimeType); err != nil {
				s.logger.Warn().Err(err).Str("hash", m.Hash).Msg("failed to store received blob")
				continue
			}
			received++
			metrics.BlobTransfersTotal.WithLabelValues("received").Inc()
			s.onEvent(Event{Kind: EventBlobReceived, PeerNodeID: s.peerNodeID, Hash: m.Hash})
		case syncproto.BlobSyncComplete:
			receivedComplete = true
		case syncproto.ErrorMsg:
			s.logger.Warn().Str("message", m.Message).Msg("peer reported blob error")
		default:
			return vaulterr.New(vaulterr.CodeSyncProtocolError, "unexpected message in blob catchup")
		}
	}
	_ = received
	return nil
}

func (s *Session) fulfillBlobRequest(ctx context.Context, hashes []string) error {
	sent := uint32(0)
	for _, hash := range hashes {
		data, err := s.blobs.Get(ctx, hash)
		if err != nil {
			continue
		}
		meta := ""
		if err := s.sendBlob(ctx, syncproto.BlobData{Hash: hash, MimeType: meta, Data: data}); err != nil {
			return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
		}
		sent++
		metrics.BlobTransfersTotal.WithLabelValues("sent").Inc()
	}
	if err := s.sendBlob(ctx, syncproto.BlobSyncComplete{BlobCount: sent}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}
	return nil
}

func hashSetToSlice(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	return out
}
