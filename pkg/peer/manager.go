package peer

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/robcohen/peervault/pkg/events"
	"github.com/robcohen/peervault/pkg/log"
	"github.com/robcohen/peervault/pkg/storage"
	"github.com/robcohen/peervault/pkg/syncsession"
	"github.com/robcohen/peervault/pkg/types"
	"github.com/robcohen/peervault/pkg/vaulterr"
)

// Manager owns the peer registry and one supervised pkg/syncsession.Session
// per connected peer.
type Manager struct {
	storage   storage.Adapter
	transport Transport
	doc       syncsession.DocumentManager
	blobs     syncsession.BlobStore
	broker    *events.Broker
	localNode string
	cfg       syncsession.Config
	logger    zerolog.Logger
	invites   *inviteManager

	mu      sync.Mutex
	peers   map[string]*types.PeerRecord
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup

	stopCh chan struct{}
}

// New builds a Manager. localNode is this device's stable node ID.
func New(adapter storage.Adapter, transport Transport, doc syncsession.DocumentManager, blobs syncsession.BlobStore, broker *events.Broker, localNode string) *Manager {
	return &Manager{
		storage:   adapter,
		transport: transport,
		doc:       doc,
		blobs:     blobs,
		broker:    broker,
		localNode: localNode,
		cfg:       syncsession.DefaultConfig(),
		logger:    log.WithComponent("peer"),
		invites:   newInviteManager(),
		peers:     make(map[string]*types.PeerRecord),
		cancels:   make(map[string]context.CancelFunc),
		stopCh:    make(chan struct{}),
	}
}

// Start loads the persisted peer registry and begins accepting inbound
// connections plus reconnecting to every previously known peer.
func (m *Manager) Start(ctx context.Context) error {
	peers, err := loadPeers(ctx, m.storage)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.peers = peers
	m.mu.Unlock()

	inbound, err := m.transport.Listen(ctx)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}
	m.wg.Add(1)
	go m.acceptLoop(ctx, inbound)

	for _, rec := range peers {
		m.startSupervising(ctx, rec)
	}

	m.wg.Add(1)
	go m.cleanupInvitesLoop(ctx)
	return nil
}

// ListInvites returns every pairing ticket this node has outstanding.
func (m *Manager) ListInvites() []string {
	invs := m.invites.list()
	out := make([]string, len(invs))
	for i, inv := range invs {
		out[i] = inv.Ticket
	}
	return out
}

func (m *Manager) cleanupInvitesLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.invites.cleanupExpired()
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		}
	}
}

// Stop cancels every supervised session and waits for them to exit.
func (m *Manager) Stop() {
	close(m.stopCh)
	m.mu.Lock()
	for _, cancel := range m.cancels {
		cancel()
	}
	m.mu.Unlock()
	m.wg.Wait()
}

// ListPeers returns every known peer record.
func (m *Manager) ListPeers(ctx context.Context) ([]types.PeerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.PeerRecord, 0, len(m.peers))
	for _, rec := range m.peers {
		out = append(out, *rec)
	}
	return out, nil
}

// GenerateInvite mints a pairing ticket and registers it with the
// transport so another node's AddPeer(ticket) can redeem it.
func (m *Manager) GenerateInvite(ctx context.Context) (string, error) {
	inv, err := m.invites.generate()
	if err != nil {
		return "", err
	}
	if err := m.transport.RegisterInvite(ctx, inv.Ticket); err != nil {
		return "", vaulterr.Wrap(vaulterr.CodeTransportNotInit, err)
	}
	return inv.Ticket, nil
}

// AddPeer redeems a ticket (minted by the remote node's GenerateInvite),
// dials it, and begins supervising the resulting session.
func (m *Manager) AddPeer(ctx context.Context, ticket string) error {
	ticket = trimTicket(ticket)
	main, blob, nodeID, err := m.transport.Dial(ctx, ticket)
	if err != nil {
		return vaulterr.Wrap(vaulterr.CodeTransportInvalidTicket, err)
	}

	now := time.Now()
	rec := &types.PeerRecord{
		NodeID: nodeID, Ticket: ticket,
		FirstSeen: now, LastSeen: now,
		State: types.PeerStateConnecting,
	}
	if err := m.upsertPeer(ctx, rec); err != nil {
		_ = main.Close()
		_ = blob.Close()
		return err
	}
	m.startSupervisingWithStreams(ctx, rec, main, blob)
	return nil
}

// RemovePeer stops the session (if any) and deletes the peer's persisted
// record.
func (m *Manager) RemovePeer(ctx context.Context, nodeID string) error {
	m.mu.Lock()
	cancel, ok := m.cancels[nodeID]
	delete(m.cancels, nodeID)
	delete(m.peers, nodeID)
	m.mu.Unlock()
	if ok {
		cancel()
	}
	return deletePeer(ctx, m.storage, nodeID)
}

func (m *Manager) upsertPeer(ctx context.Context, rec *types.PeerRecord) error {
	m.mu.Lock()
	if existing, ok := m.peers[rec.NodeID]; ok {
		rec = mergeGossip(existing, rec)
	}
	m.peers[rec.NodeID] = rec
	m.mu.Unlock()
	return savePeer(ctx, m.storage, rec)
}

func (m *Manager) setPeerState(ctx context.Context, nodeID string, state types.PeerState) {
	m.mu.Lock()
	rec, ok := m.peers[nodeID]
	if ok {
		cp := *rec
		cp.State = state
		cp.LastSeen = time.Now()
		if state == types.PeerStateSynced {
			cp.LastSyncTime = cp.LastSeen
		}
		m.peers[nodeID] = &cp
		rec = &cp
	}
	m.mu.Unlock()
	if ok {
		_ = savePeer(ctx, m.storage, rec)
	}
}

func (m *Manager) acceptLoop(ctx context.Context, inbound <-chan Inbound) {
	defer m.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case in, ok := <-inbound:
			if !ok {
				return
			}
			now := time.Now()
			rec := &types.PeerRecord{
				NodeID: in.PeerNodeID, FirstSeen: now, LastSeen: now,
				State: types.PeerStateConnecting,
			}
			if err := m.upsertPeer(ctx, rec); err != nil {
				m.logger.Warn().Err(err).Str("peer", in.PeerNodeID).Msg("failed to persist inbound peer")
				continue
			}
			m.runInbound(ctx, rec, in.Main, in.Blob)
		}
	}
}
