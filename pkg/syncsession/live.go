package syncsession

import (
	"context"
	"time"

	"github.com/robcohen/peervault/pkg/metrics"
	"github.com/robcohen/peervault/pkg/syncproto"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

type inboundFrame struct {
	data []byte
	err  error
}

func (s *Session) readLoop(ctx context.Context, stream Stream, out chan<- inboundFrame) {
	defer close(out)
	for {
		data, err := stream.Recv(ctx)
		select {
		case out <- inboundFrame{data: data, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil {
			return
		}
	}
}

// live holds the session open, forwarding local document updates to the
// peer and applying theirs, answering keepalive pings, and fetching any
// blob a live update newly references, until the stream closes or ctx is
// canceled.
func (s *Session) live(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	localUpdates := s.doc.Subscribe()
	defer s.doc.Unsubscribe(localUpdates)

	mainFrames := make(chan inboundFrame, 8)
	go s.readLoop(ctx, s.main, mainFrames)

	blobFrames := make(chan inboundFrame, 8)
	go s.readLoop(ctx, s.blob, blobFrames)

	ticker := time.NewTicker(s.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case delta, ok := <-localUpdates:
			if !ok {
				return nil
			}
			if err := s.sendMain(ctx, syncproto.Updates{Data: delta}); err != nil {
				return vaulterr.Wrap(vaulterr.CodeNetworkOffline, err)
			}

		case frame, ok := <-mainFrames:
			if !ok {
				return nil
			}
			if frame.err != nil {
				return vaulterr.Wrap(vaulterr.CodeNetworkOffline, frame.err)
			}
			if err := s.handleLiveFrame(ctx, frame.data); err != nil {
				s.errCount++
				if s.errCount >= s.cfg.MaxAttempts {
					return vaulterr.New(vaulterr.CodeSyncErrorLimit, "too many live-session errors")
				}
				s.logger.Warn().Err(err).Msg("live frame error, continuing")
			}

		case frame, ok := <-blobFrames:
			if !ok {
				blobFrames = nil
				continue
			}
			if frame.err != nil {
				blobFrames = nil
				continue
			}
			if err := s.handleLiveFrame(ctx, frame.data); err != nil {
				s.logger.Warn().Err(err).Msg("live blob-stream frame error, continuing")
			}

		case <-ticker.C:
			s.pingSeq++
			seq := s.pingSeq
			s.mu.Lock()
			s.pendingPongs[seq] = time.Now()
			s.mu.Unlock()
			if err := s.sendMain(ctx, syncproto.Ping{Seq: seq}); err != nil {
				return vaulterr.Wrap(vaulterr.CodeNetworkOffline, err)
			}
			if s.expirePendingPongs() {
				return vaulterr.New(vaulterr.CodeNetworkOffline, "peer missed PONG deadline")
			}
		}
	}
}

// expirePendingPongs drops any ping whose PONG hasn't arrived within
// PingInterval+PongTimeout and reports whether it dropped at least one,
// which live() treats as the peer having gone unresponsive.
func (s *Session) expirePendingPongs() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-(s.cfg.PingInterval + s.cfg.PongTimeout))
	expired := false
	for seq, sent := range s.pendingPongs {
		if sent.Before(cutoff) {
			delete(s.pendingPongs, seq)
			expired = true
		}
	}
	return expired
}

func (s *Session) handleLiveFrame(ctx context.Context, data []byte) error {
	msg, _, err := syncproto.Decode(data)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncBadFrame, err)
	}

	switch m := msg.(type) {
	case syncproto.Updates:
		if len(m.Data) == 0 {
			return nil
		}
		if err := s.doc.ImportUpdates(m.Data); err != nil {
			return vaulterr.Wrap(vaulterr.CodeSyncBadUpdate, err)
		}
		if err := s.fetchNewlyReferencedBlobs(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("fetch newly referenced blobs")
		}
		s.onEvent(Event{Kind: EventLiveUpdates, PeerNodeID: s.peerNodeID})
		return nil

	case syncproto.Ping:
		return s.sendMain(ctx, syncproto.Pong{Seq: m.Seq})

	case syncproto.Pong:
		s.mu.Lock()
		delete(s.pendingPongs, m.Seq)
		s.mu.Unlock()
		return nil

	case syncproto.BlobData:
		if _, err := s.blobs.Add(ctx, m.Data, m.MimeType); err != nil {
			return vaulterr.Wrap(vaulterr.CodeStorageWriteFail, err)
		}
		metrics.BlobTransfersTotal.WithLabelValues("received").Inc()
		s.onEvent(Event{Kind: EventBlobReceived, PeerNodeID: s.peerNodeID, Hash: m.Hash})
		return nil

	case syncproto.ErrorMsg:
		return vaulterr.New(vaulterr.CodeSyncProtocolError, m.Message)

	case syncproto.PeerRemoved:
		return vaulterr.New(vaulterr.CodePeerDisconnected, m.Reason)

	default:
		// Gossip/peer-discovery frames (PeerAnnouncement, PeerRequest,
		// PeerLeft) are handled by pkg/peer, which owns the peer registry;
		// this session only drives document/blob sync.
		return nil
	}
}

// fetchNewlyReferencedBlobs requests any blob the just-imported updates
// reference that we don't have yet, on the dedicated blob stream so a
// large transfer doesn't block further live document updates.
func (s *Session) fetchNewlyReferencedBlobs(ctx context.Context) error {
	refs := hashSetToSlice(s.doc.ReferencedBlobHashes())
	missing := s.blobs.GetMissing(ctx, refs)
	if len(missing) == 0 {
		return nil
	}
	return s.sendBlob(ctx, syncproto.BlobRequest{Hashes: missing})
}
