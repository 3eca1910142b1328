package syncsession

import (
	"context"

	"github.com/robcohen/peervault/pkg/syncproto"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// handshake exchanges VersionInfo and resolves a vault-identity mismatch,
// per spec §4.9's Opening/Handshaking steps.
func (s *Session) handshake(ctx context.Context) error {
	s.setState(StateHandshaking)
	hctx, cancel := withTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()

	localVersion := s.doc.OplogVersion()
	if err := s.sendMain(hctx, syncproto.VersionInfo{
		VaultID:         s.doc.VaultID(),
		Version:         marshalVersion(localVersion),
		HasV2Extension:  true,
		ProtocolVersion: 2,
	}); err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}

	msg, err := s.recvMain(hctx)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, err)
	}
	remote, ok := msg.(syncproto.VersionInfo)
	if !ok {
		return vaulterr.New(vaulterr.CodeSyncProtocolError, "expected VersionInfo")
	}

	return s.reconcileVaultID(hctx, remote.VaultID)
}

func (s *Session) reconcileVaultID(ctx context.Context, remoteVaultID string) error {
	ourID := s.doc.VaultID()
	if remoteVaultID == "" || remoteVaultID == ourID {
		return nil
	}
	if ourID == "" {
		s.doc.AdoptVaultID(remoteVaultID)
		s.adopted = true
		return nil
	}

	decision := make(chan bool, 1)
	s.onEvent(Event{
		Kind:        EventVaultAdoption,
		PeerNodeID:  s.peerNodeID,
		PeerVaultID: remoteVaultID,
		OurVaultID:  ourID,
		Respond:     func(accept bool) { decision <- accept },
	})

	select {
	case accept := <-decision:
		if !accept {
			_ = s.sendMain(ctx, syncproto.ErrorMsg{Code: syncproto.ErrVaultMismatch, Message: "vault adoption declined"})
			return vaulterr.New(vaulterr.CodeSyncVaultMismatch, "host declined vault adoption")
		}
		s.doc.AdoptVaultID(remoteVaultID)
		s.adopted = true
		return nil
	case <-ctx.Done():
		return vaulterr.Wrap(vaulterr.CodeSyncProtocolError, ctx.Err())
	}
}
